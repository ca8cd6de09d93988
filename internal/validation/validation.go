// Package validation provides centralized input validation for ringstore.
//
package validation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// =============================================================================
// Name Validation
// =============================================================================

// NameRules defines the validation rules for entity names.
type NameRules struct {
	MinLength    int
	MaxLength    int
	AllowDots    bool
	AllowHyphens bool
	AllowUnders  bool
}

// SeriesNameRules returns the rules for time-series names.
// Dots are allowed so ingesters can use hierarchical names like
// "bot.cpu.percent".
func SeriesNameRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    255,
		AllowDots:    true,
		AllowHyphens: true,
		AllowUnders:  true,
	}
}

// LabelKeyRules returns the rules for label keys.
func LabelKeyRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    128,
		AllowDots:    false,
		AllowHyphens: true,
		AllowUnders:  true,
	}
}

// ValidateName validates a name according to the given rules.
func ValidateName(name string, rules NameRules) error {
	if len(name) < rules.MinLength {
		return fmt.Errorf("name too short: minimum %d characters required", rules.MinLength)
	}
	if len(name) > rules.MaxLength {
		return fmt.Errorf("name too long: maximum %d characters allowed", rules.MaxLength)
	}

	if name == "." || name == ".." {
		return fmt.Errorf("name cannot be '.' or '..'")
	}

	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("name cannot start with '.'")
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("name cannot contain control characters at position %d", i)
		}
		if r == '/' || r == '\\' {
			return fmt.Errorf("name cannot contain path separators at position %d", i)
		}
		if !isAllowedNameChar(r, rules) {
			return fmt.Errorf("invalid character '%c' at position %d", r, i)
		}
	}

	return nil
}

func isAllowedNameChar(r rune, rules NameRules) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.':
		return rules.AllowDots
	case '-':
		return rules.AllowHyphens
	case '_':
		return rules.AllowUnders
	}
	return false
}

// ValidateSeriesName validates a time-series name.
func ValidateSeriesName(name string) error {
	return ValidateName(name, SeriesNameRules())
}

// ValidateLabelKey validates a single label key.
func ValidateLabelKey(key string) error {
	return ValidateName(key, LabelKeyRules())
}

// ValidateLabels validates all keys of a label set. Label values are
// free-form except for control characters.
func ValidateLabels(labels map[string]string) error {
	for k, v := range labels {
		if err := ValidateLabelKey(k); err != nil {
			return fmt.Errorf("label key %q: %w", k, err)
		}
		for i, r := range v {
			if r < 32 || r == 127 {
				return fmt.Errorf("label %q: value cannot contain control characters at position %d", k, i)
			}
		}
	}
	return nil
}

// =============================================================================
// Timestamp Parsing
// =============================================================================

// ParseTimestamp parses a user-supplied timestamp into unix milliseconds.
//
// Accepted forms:
//   - unix milliseconds: "1735689600000"
//   - RFC3339: "2025-01-01T00:00:00Z"
//   - relative offset from now: "-5m", "-1h30m"
//   - the literal "now"
func ParseTimestamp(s string, now time.Time) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty timestamp")
	}

	if s == "now" {
		return now.UnixMilli(), nil
	}

	// Bare integers are taken as unix milliseconds, so relative offsets
	// must carry a unit ("-5m", not "-300").
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UnixMilli(), nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(d).UnixMilli(), nil
	}

	return 0, fmt.Errorf("unparseable timestamp %q: want unix milliseconds, RFC3339, or a relative offset like '-5m'", s)
}
