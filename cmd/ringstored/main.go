// ringstored is the in-memory time-series daemon: it ingests metric
// points over WebSocket or HTTP, keeps the newest points of every series
// in a fixed-capacity ring, and serves queries and a live dashboard feed.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ag-botkit/ringstore/internal/config"
	"github.com/ag-botkit/ringstore/internal/errors"
	"github.com/ag-botkit/ringstore/internal/logging"
	"github.com/ag-botkit/ringstore/internal/metrics"
	"github.com/ag-botkit/ringstore/internal/server"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// CLI flags
	cfgPath := flag.String("config", "ringstore.yaml", "config file path")
	listen := flag.String("listen", "", "listen address (overrides config)")
	capacity := flag.Int("capacity", 0, "per-series ring capacity (overrides config)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	logJSON := flag.Bool("log-json", false, "log in JSON format")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("ringstored %s\n", Version)
		return
	}

	// Load config. A missing file is not an error; defaults and flags
	// cover everything.
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = config.DefaultConfig()
		} else {
			fmt.Fprintf(os.Stderr, "ringstored: %v\n", err)
			os.Exit(1)
		}
	}

	// CLI overrides
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *capacity > 0 {
		cfg.Store.Capacity = *capacity
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logJSON {
		cfg.Log.JSON = true
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "ringstored: invalid configuration:\n%v\n", err)
		os.Exit(1)
	}

	// =========================================================================
	// Logging
	// =========================================================================

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ringstored: %v\n", err)
		os.Exit(1)
	}
	logging.Init(level, cfg.Log.JSON)
	log := logging.Component("main")

	log.Info("ringstored starting",
		"version", Version,
		"listen", cfg.Listen,
		"capacity", cfg.Store.Capacity)

	// =========================================================================
	// Store and Server
	// =========================================================================

	store, err := metrics.New(cfg.Store.Capacity)
	if err != nil {
		log.Error("create store", "error", err)
		os.Exit(1)
	}

	srv := server.New(&server.Config{
		Store:        store,
		Listen:       cfg.Listen,
		Hub:          cfg.Hub,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:  cfg.Server.IdleTimeout.Duration(),
		Version:      Version,
	})

	// =========================================================================
	// Signal Handling and Graceful Shutdown
	// =========================================================================

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sig
		log.Info("signal received", "signal", s.String())

		ctx, cancel := context.WithTimeout(context.Background(),
			cfg.Server.ShutdownTimeout.Duration())
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("shutdown", "error", err)
		}
		store.Close()
	}()

	// =========================================================================
	// Run
	// =========================================================================

	if err := srv.Run(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("ringstored stopped")
}
