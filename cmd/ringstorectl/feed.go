// LOCATION: cmd/ringstorectl/feed.go

package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ag-botkit/ringstore/internal/client"
	"github.com/ag-botkit/ringstore/internal/metrics"
)

// cmdFeed pushes synthetic metrics over the ingest socket: a sine-wave
// gauge, an event counter, a jittered latency gauge, and an occasional
// 0/1 flag. Handy for exercising a server and watching the live stream
// move.
func cmdFeed(c *client.Client, args []string) error {
	fs := flag.NewFlagSet("feed", flag.ContinueOnError)
	interval := fs.Duration("interval", 200*time.Millisecond, "time between batches")
	duration := fs.Duration("duration", 30*time.Second, "how long to feed (0 = until interrupted)")
	prefix := fs.String("prefix", "bot", "series name prefix")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	feed, err := c.Feed(ctx)
	if err != nil {
		return err
	}
	defer feed.Close()

	fmt.Printf("feeding %s.* every %s", *prefix, *interval)
	if *duration > 0 {
		fmt.Printf(" for %s", *duration)
	}
	fmt.Println(" (Ctrl-C to stop)")

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	start := time.Now()
	sent := 0

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
		}

		for _, p := range demoBatch(*prefix, time.Since(start)) {
			if err := feed.Send(ctx, p); err != nil {
				if ctx.Err() != nil {
					break loop
				}
				fmt.Fprintf(os.Stderr, "\nsend: %v, reconnecting\n", err)
				if err := feed.Reconnect(ctx); err != nil {
					fmt.Fprintf(os.Stderr, "reconnect: %v\n", err)
					break // retry next tick
				}
				continue
			}
			sent++
		}
		fmt.Printf("\rsent %d points", sent)
	}

	fmt.Printf("\rsent %d points in %s\n", sent, time.Since(start).Round(time.Second))
	return nil
}

// demoBatch builds one tick's worth of points: a slow sine so charts
// have a shape, a counter, uniform jitter, and a rarely-updated flag.
func demoBatch(prefix string, elapsed time.Duration) []metrics.Point {
	now := time.Now().UnixMilli()

	points := []metrics.Point{
		{
			Timestamp: now,
			Type:      metrics.TypeGauge,
			Name:      prefix + ".cpu.percent",
			Value:     50 + 40*math.Sin(2*math.Pi*elapsed.Seconds()/60) + rand.Float64()*4 - 2,
		},
		{
			Timestamp: now,
			Type:      metrics.TypeCounter,
			Name:      prefix + ".events.count",
			Value:     1,
			Labels:    map[string]string{"source": "feed"},
		},
		{
			Timestamp: now,
			Type:      metrics.TypeGauge,
			Name:      prefix + ".latency.ms",
			Value:     10 + rand.Float64()*90,
			Labels:    map[string]string{"op": "send"},
		},
	}

	if rand.Float64() < 0.05 {
		points = append(points, metrics.Point{
			Timestamp: now,
			Type:      metrics.TypeGauge,
			Name:      prefix + ".flag.active",
			Value:     float64(rand.Intn(2)),
		})
	}
	return points
}
