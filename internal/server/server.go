// LOCATION: internal/server/server.go

// Package server implements the ringstored HTTP and WebSocket surface.
//
// Two WebSocket endpoints carry the live traffic: /metrics accepts points
// from producers and /dashboard streams them back out to watchers. A small
// REST API under /api serves one-shot queries against the store.
package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ag-botkit/ringstore/internal/config"
	"github.com/ag-botkit/ringstore/internal/errors"
	"github.com/ag-botkit/ringstore/internal/logging"
	"github.com/ag-botkit/ringstore/internal/metrics"
)

var log = logging.Component("server")

const (
	// maxIngestBody bounds a single REST ingest request body.
	maxIngestBody = 1 << 20

	// defaultLastN is how many points /last returns when n is not given.
	defaultLastN = 10
)

// =============================================================================
// Server Configuration
// =============================================================================

// Config holds server configuration.
type Config struct {
	// Store is the metric store backing every endpoint (required).
	Store *metrics.Store

	// Listen is the address to listen on (e.g., "localhost:8080").
	Listen string

	// Hub tunes the broadcast hub. Zero fields fall back to defaults.
	Hub config.HubConfig

	// HTTP server timeouts. WebSocket connections manage their own
	// deadlines after the upgrade, so these only bound plain requests.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Version is reported by /api/stats and the index endpoint.
	Version string
}

// =============================================================================
// Server
// =============================================================================

// Server is the ringstored daemon: one metric store, one broadcast hub,
// one HTTP listener.
type Server struct {
	cfg   *Config
	store *metrics.Store
	hub   *Hub
	http  *http.Server

	listener net.Listener

	// baseCtx parents every request context. Canceling it on shutdown
	// unwinds ingest read loops that outlive http.Server.Shutdown.
	baseCtx    context.Context
	baseCancel context.CancelFunc

	startedAt time.Time
	requestID atomic.Uint64

	// sf collapses concurrent identical scans; dashboards poll the
	// list endpoint in bursts.
	sf singleflight.Group
}

// New creates a server. Zero timeouts fall back to the package defaults.
func New(cfg *Config) *Server {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = config.DefaultHTTPReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = config.DefaultHTTPWriteTimeout
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = config.DefaultHTTPIdleTimeout
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		cfg:       cfg,
		store:     cfg.Store,
		hub:       NewHub(cfg.Store, cfg.Hub),
		startedAt: time.Now(),
	}
	s.baseCtx, s.baseCancel = context.WithCancel(context.Background())

	s.http = &http.Server{
		Addr:         cfg.Listen,
		Handler:      s.withRequestLogging(s.routes()),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return s.baseCtx },
	}

	return s
}

// routes wires up the endpoint table.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Live traffic
	mux.HandleFunc("GET /metrics", s.hub.ServeIngest)
	mux.HandleFunc("GET /dashboard", s.hub.ServeDashboard)

	// One-shot queries
	mux.HandleFunc("POST /api/ingest", s.handleIngest)
	mux.HandleFunc("GET /api/series", s.handleSeriesList)
	mux.HandleFunc("GET /api/series/{name}", s.handleSeriesInfo)
	mux.HandleFunc("GET /api/series/{name}/last", s.handleSeriesLast)
	mux.HandleFunc("GET /api/series/{name}/range", s.handleSeriesRange)
	mux.HandleFunc("GET /api/stats", s.handleStats)

	mux.HandleFunc("GET /{$}", s.handleIndex)

	return mux
}

// Run listens on cfg.Listen and serves until Shutdown is called or
// serving fails.
func (s *Server) Run() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ln)
}

// Serve serves on a caller-provided listener and blocks until Shutdown
// is called or serving fails. The hub run loop lives alongside the HTTP
// server; if either fails the other is torn down.
func (s *Server) Serve(ln net.Listener) error {
	s.listener = ln
	addr := ln.Addr().String()

	log.Info("listening", "address", addr)
	log.Info("ingest websocket", "url", "ws://"+addr+"/metrics")
	log.Info("dashboard websocket", "url", "ws://"+addr+"/dashboard")

	g, ctx := errgroup.WithContext(s.baseCtx)

	g.Go(func() error {
		return s.hub.Run(ctx)
	})

	g.Go(func() error {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Shutdown stops the server gracefully: the listener closes, in-flight
// HTTP requests drain, dashboard clients receive close frames, and the
// base context cuts off ingest readers.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("shutting down")

	err := s.http.Shutdown(ctx)

	// Hijacked WebSocket connections are invisible to http.Server.Shutdown.
	// Let the hub finish its close handshakes before the base context is
	// pulled out from under the remaining readers.
	s.hub.Stop()
	select {
	case <-s.hub.Stopped():
	case <-ctx.Done():
	}
	s.baseCancel()

	log.Info("shutdown complete")
	return err
}

// Addr returns the bound address once Serve has been given a listener,
// or the configured listen address before that.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Listen
}

// =============================================================================
// Request Logging Middleware
// =============================================================================

// withRequestLogging assigns each request an id, threads it through the
// context for downstream log lines, and logs method, path, status and
// duration once the handler returns.
func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := s.requestID.Add(1)
		ctx := logging.ContextWithRequestID(r.Context(), id)
		ctx = logging.ContextWithClientAddr(ctx, r.RemoteAddr)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r.WithContext(ctx))

		log.Info("request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"client_addr", r.RemoteAddr,
		)
	})
}

// statusRecorder captures the response status for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack passes through so WebSocket upgrades work behind the middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	conn, rw, err := hj.Hijack()
	if err != nil {
		return nil, nil, err
	}
	// The server's read and write timeouts are still armed on the raw
	// connection and would kill the socket mid-stream. Upgraded
	// connections manage their own deadlines.
	if err := conn.SetDeadline(time.Time{}); err != nil {
		conn.Close()
		return nil, nil, err
	}
	r.status = http.StatusSwitchingProtocols
	return conn, rw, nil
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
