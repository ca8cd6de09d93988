package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ag-botkit/ringstore/internal/errors"
	"github.com/ag-botkit/ringstore/internal/logging"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Root Configuration
// =============================================================================

// Config is the root configuration structure for ringstored.
type Config struct {
	// Listen is the HTTP server listen address.
	// Format: "host:port" or ":port"
	// Default: "localhost:8080"
	Listen string `yaml:"listen"`

	// Store configures the in-memory metric store.
	Store StoreConfig `yaml:"store"`

	// Hub configures the WebSocket broadcast hub.
	Hub HubConfig `yaml:"hub"`

	// Server configures HTTP server timeouts.
	Server ServerConfig `yaml:"server"`

	// Log configures logging output.
	Log LogConfig `yaml:"log"`
}

// StoreConfig configures the metric store.
type StoreConfig struct {
	// Capacity is the per-series ring buffer capacity. Each series keeps
	// at most this many points; appends beyond that evict the oldest.
	// The backing array is allocated once per series and never resized.
	// Range: 1-10000000, Default: 10000
	Capacity int `yaml:"capacity"`
}

// HubConfig configures the WebSocket broadcast hub.
type HubConfig struct {
	// BroadcastBufferSize is the hub broadcast channel capacity.
	// Range: 1-65536, Default: 256
	BroadcastBufferSize int `yaml:"broadcast_buffer_size"`

	// ClientBufferSize is the per-client send channel capacity.
	// A client that falls this far behind is dropped.
	// Range: 1-65536, Default: 256
	ClientBufferSize int `yaml:"client_buffer_size"`

	// BackfillWindow is how much recent history a dashboard client
	// receives on connect. Zero disables backfill.
	// Default: 60s
	BackfillWindow Duration `yaml:"backfill_window"`

	// PingInterval is how often live clients are pinged.
	// Must be shorter than ReadDeadline.
	// Default: 54s
	PingInterval Duration `yaml:"ping_interval"`

	// WriteTimeout is the per-message write timeout for live clients.
	// Default: 10s
	WriteTimeout Duration `yaml:"write_timeout"`

	// ReadDeadline is how long a live client may take to answer a ping
	// before it is disconnected.
	// Default: 60s
	ReadDeadline Duration `yaml:"read_deadline"`
}

// ServerConfig configures HTTP server behavior.
type ServerConfig struct {
	// ReadTimeout is the max time to read a request.
	// Default: 15s
	ReadTimeout Duration `yaml:"read_timeout"`

	// WriteTimeout is the max time to write a response.
	// Default: 15s
	WriteTimeout Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 60s
	IdleTimeout Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the graceful shutdown budget.
	// Default: 10s
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is the log level: debug, info, warn, error.
	// Default: "info"
	Level string `yaml:"level"`

	// JSON selects JSON output instead of human-readable text.
	// Default: false
	JSON bool `yaml:"json"`
}

// =============================================================================
// Defaults
// =============================================================================

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen: DefaultListenAddress,

		Store: StoreConfig{
			Capacity: DefaultRingCapacity,
		},

		Hub: HubConfig{
			BroadcastBufferSize: DefaultBroadcastBufferSize,
			ClientBufferSize:    DefaultClientBufferSize,
			BackfillWindow:      Duration(DefaultBackfillWindow),
			PingInterval:        Duration(DefaultPingInterval),
			WriteTimeout:        Duration(DefaultWriteTimeout),
			ReadDeadline:        Duration(DefaultReadDeadline),
		},

		Server: ServerConfig{
			ReadTimeout:     Duration(DefaultHTTPReadTimeout),
			WriteTimeout:    Duration(DefaultHTTPWriteTimeout),
			IdleTimeout:     Duration(DefaultHTTPIdleTimeout),
			ShutdownTimeout: Duration(DefaultShutdownTimeout),
		},

		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

// =============================================================================
// Load
// =============================================================================

// Load loads configuration from a YAML file. Environment variables in the
// file are expanded before parsing. Fields absent from the file keep their
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	// Start with defaults
	cfg := DefaultConfig()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// =============================================================================
// Validate
// =============================================================================

// Validate validates the configuration.
func Validate(cfg *Config) error {
	errs := errors.NewValidationErrors()

	if cfg.Listen == "" {
		errs.AddField("listen", "cannot be empty")
	}

	if cfg.Store.Capacity <= 0 {
		errs.AddField("store.capacity", "must be positive")
	}

	if cfg.Hub.BroadcastBufferSize <= 0 {
		errs.AddField("hub.broadcast_buffer_size", "must be positive")
	}
	if cfg.Hub.ClientBufferSize <= 0 {
		errs.AddField("hub.client_buffer_size", "must be positive")
	}
	if cfg.Hub.BackfillWindow < 0 {
		errs.AddField("hub.backfill_window", "cannot be negative")
	}
	if cfg.Hub.PingInterval <= 0 {
		errs.AddField("hub.ping_interval", "must be positive")
	}
	if cfg.Hub.WriteTimeout <= 0 {
		errs.AddField("hub.write_timeout", "must be positive")
	}
	if cfg.Hub.ReadDeadline <= 0 {
		errs.AddField("hub.read_deadline", "must be positive")
	}
	if cfg.Hub.PingInterval > 0 && cfg.Hub.ReadDeadline > 0 &&
		cfg.Hub.PingInterval.Duration() >= cfg.Hub.ReadDeadline.Duration() {
		errs.AddField("hub.ping_interval", "must be shorter than hub.read_deadline")
	}

	if cfg.Server.ShutdownTimeout <= 0 {
		errs.AddField("server.shutdown_timeout", "must be positive")
	}

	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		errs.AddField("log.level", "must be one of: debug, info, warn, error")
	}

	return errs.Err()
}

// =============================================================================
// Custom Types
// =============================================================================

// Duration is a time.Duration that can be unmarshaled from YAML.
// Accepts duration strings ("90s", "1h30m") or plain integers (seconds).
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		// Try as int (seconds)
		var i int
		if err := unmarshal(&i); err != nil {
			return err
		}
		*d = Duration(time.Duration(i) * time.Second)
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
