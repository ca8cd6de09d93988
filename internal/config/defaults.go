// Package config provides configuration defaults and loading
// for the ringstore daemon.
//
// This package defines all configurable constants with documented defaults.
// Users can override these values via config.yaml or command-line flags.
package config

import "time"

// =============================================================================
// Network Defaults
// =============================================================================

const (
	// DefaultListenAddress is the default server listen address.
	// Override via config: listen
	DefaultListenAddress = "localhost:8080"
)

// =============================================================================
// Store Defaults
// =============================================================================

const (
	// DefaultRingCapacity is the per-series ring buffer capacity.
	// Once a series holds this many points, every append evicts the oldest.
	// Override via config: store.capacity
	DefaultRingCapacity = 10000
)

// =============================================================================
// Hub Defaults
// =============================================================================

const (
	// DefaultBroadcastBufferSize is the capacity of the hub broadcast channel.
	// When full, points are dropped rather than blocking ingest.
	// Override via config: hub.broadcast_buffer_size
	DefaultBroadcastBufferSize = 256

	// DefaultClientBufferSize is the capacity of the per-client send channel.
	// A live client that falls this far behind is disconnected.
	// Override via config: hub.client_buffer_size
	DefaultClientBufferSize = 256

	// DefaultBackfillWindow is how much recent history a dashboard client
	// receives on connect, before live points start streaming.
	// Override via config: hub.backfill_window
	DefaultBackfillWindow = 60 * time.Second

	// DefaultPingInterval is how often the server pings live clients.
	// Must be shorter than DefaultReadDeadline so a healthy connection
	// keeps its deadline extended.
	// Override via config: hub.ping_interval
	DefaultPingInterval = 54 * time.Second

	// DefaultWriteTimeout is the per-message write timeout for live clients.
	// Override via config: hub.write_timeout
	DefaultWriteTimeout = 10 * time.Second

	// DefaultReadDeadline is how long a live client may take to answer a
	// ping before it is disconnected.
	// Override via config: hub.read_deadline
	DefaultReadDeadline = 60 * time.Second
)

// =============================================================================
// HTTP Server Defaults
// =============================================================================

const (
	// DefaultHTTPReadTimeout is the max time to read a request.
	// WebSocket connections manage their own deadlines after the upgrade.
	// Override via config: server.read_timeout
	DefaultHTTPReadTimeout = 15 * time.Second

	// DefaultHTTPWriteTimeout is the max time to write a response.
	// Override via config: server.write_timeout
	DefaultHTTPWriteTimeout = 15 * time.Second

	// DefaultHTTPIdleTimeout is the keep-alive idle timeout.
	// Override via config: server.idle_timeout
	DefaultHTTPIdleTimeout = 60 * time.Second

	// DefaultShutdownTimeout is how long to wait for in-flight requests
	// and connected clients during graceful shutdown.
	// Override via config: server.shutdown_timeout
	DefaultShutdownTimeout = 10 * time.Second
)

// =============================================================================
// Logging Defaults
// =============================================================================

const (
	// DefaultLogLevel is the default log level.
	// Override via config: log.level
	DefaultLogLevel = "info"
)
