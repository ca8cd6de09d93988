// Package metrics provides the in-memory multi-series store behind the
// ringstore daemon. Each named series keeps its points in a fixed-capacity
// ring; appending beyond capacity evicts the oldest point.
//
// The store owns all synchronization. The underlying rings are
// single-threaded by contract and are never reachable from outside the
// store's mutex.
package metrics

import "time"

// Metric type values as they appear on the ingest wire.
const (
	TypeCounter   = "counter"
	TypeGauge     = "gauge"
	TypeHistogram = "histogram"
)

// ValidType reports whether t is a known metric type.
func ValidType(t string) bool {
	switch t {
	case TypeCounter, TypeGauge, TypeHistogram:
		return true
	}
	return false
}

// Point is a single metric sample as it travels over the wire.
// Field names match the ingest JSON protocol.
type Point struct {
	Timestamp int64             `json:"timestamp"` // unix milliseconds
	Type      string            `json:"metric_type"`
	Name      string            `json:"metric_name"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// SeriesInfo describes one series for the query API.
type SeriesInfo struct {
	Name      string            `json:"name"`
	Type      string            `json:"type,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
	Count     int               `json:"count"`
	Capacity  int               `json:"capacity"`
	OldestMs  int64             `json:"oldest_ms"` // zero when the series is empty
	NewestMs  int64             `json:"newest_ms"`
	CreatedAt time.Time         `json:"created_at"`
}

// Stats is a point-in-time snapshot of store counters.
type Stats struct {
	Series        int   `json:"series"`
	Points        int   `json:"points"`
	Appends       int64 `json:"appends"`
	Rejected      int64 `json:"rejected"`
	SeriesCreated int64 `json:"series_created"`
}
