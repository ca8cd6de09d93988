// LOCATION: cmd/ringstorectl/main.go

// ringstorectl is the operator CLI for ringstored: one-shot queries
// against the HTTP API, a live tail of the dashboard stream, a demo
// feeder, and an interactive session when run without arguments.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"

	"github.com/ag-botkit/ringstore/internal/client"
	"github.com/ag-botkit/ringstore/internal/errors"
	"github.com/ag-botkit/ringstore/internal/metrics"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "ringstored base URL")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("ringstorectl %s\n", Version)
		return
	}

	c, err := client.New(&client.Config{BaseURL: *serverURL, Timeout: *timeout})
	if err != nil {
		fmt.Fprintf(os.Stderr, "ringstorectl: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			runREPL(c)
			return
		}
		usage()
		os.Exit(2)
	}

	if err := dispatch(c, args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "ringstorectl: %v\n", err)
		os.Exit(1)
	}
}

// dispatch runs one command. The REPL reuses it, so commands must not
// call os.Exit on ordinary failures.
func dispatch(c *client.Client, cmd string, args []string) error {
	switch cmd {
	case "series":
		return cmdSeries(c)
	case "info":
		return cmdInfo(c, args)
	case "last":
		return cmdLast(c, args)
	case "range":
		return cmdRange(c, args)
	case "stats":
		return cmdStats(c)
	case "live":
		return cmdLive(c, args)
	case "feed":
		return cmdFeed(c, args)
	case "help":
		usage()
		return nil
	default:
		return fmt.Errorf("unknown command %q (try 'help')", cmd)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `ringstorectl - query and feed a ringstored server

Usage:
  ringstorectl [flags] <command> [args]

Commands:
  series                 list all series
  info <series>          describe one series
  last <series> [n]      newest n points, newest first (default 10)
  range <series> <start> <end> [max]
                         points with start <= ts <= end, oldest first;
                         bounds take unix ms, RFC3339, "now", or "-5m"
  stats                  server statistics
  live [series...]       stream points as they arrive (Ctrl-C to stop)
  feed [feed flags]      push demo metrics (see 'feed -h')
  help                   show this help

Without a command, an interactive session starts when stdin is a
terminal.

Flags:
`)
	flag.PrintDefaults()
}

// =============================================================================
// Commands
// =============================================================================

func cmdSeries(c *client.Client) error {
	infos, err := c.Series(context.Background())
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("no series")
		return nil
	}

	table := newTable("NAME", "TYPE", "POINTS", "CAPACITY", "OLDEST", "NEWEST")
	for _, info := range infos {
		table.Append([]string{
			info.Name,
			orDash(info.Type),
			strconv.Itoa(info.Count),
			strconv.Itoa(info.Capacity),
			formatTimeMs(info.OldestMs),
			formatTimeMs(info.NewestMs),
		})
	}
	table.Render()
	return nil
}

func cmdInfo(c *client.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: info <series>")
	}

	info, err := c.Info(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Name:     %s\n", info.Name)
	fmt.Printf("Type:     %s\n", orDash(info.Type))
	fmt.Printf("Points:   %d / %d\n", info.Count, info.Capacity)
	fmt.Printf("Oldest:   %s\n", formatTimeMs(info.OldestMs))
	fmt.Printf("Newest:   %s\n", formatTimeMs(info.NewestMs))
	fmt.Printf("Created:  %s\n", info.CreatedAt.Local().Format(time.RFC3339))
	if len(info.Labels) > 0 {
		fmt.Printf("Labels:   %s\n", formatLabels(info.Labels))
	}
	return nil
}

func cmdLast(c *client.Client, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: last <series> [n]")
	}

	n := 10
	if len(args) == 2 {
		v, err := strconv.Atoi(args[1])
		if err != nil || v <= 0 {
			return fmt.Errorf("n must be a positive integer, got %q", args[1])
		}
		n = v
	}

	points, err := c.Last(context.Background(), args[0], n)
	if err != nil {
		return err
	}
	printPointTable(points)
	return nil
}

func cmdRange(c *client.Client, args []string) error {
	if len(args) < 3 || len(args) > 4 {
		return fmt.Errorf("usage: range <series> <start> <end> [max]")
	}

	max := 0
	if len(args) == 4 {
		v, err := strconv.Atoi(args[3])
		if err != nil || v < 0 {
			return fmt.Errorf("max must be a non-negative integer, got %q", args[3])
		}
		max = v
	}

	points, err := c.Range(context.Background(), args[0], args[1], args[2], max)
	if err != nil {
		return err
	}
	printPointTable(points)
	return nil
}

func cmdStats(c *client.Client) error {
	stats, err := c.Stats(context.Background())
	if err != nil {
		return err
	}

	uptime := time.Duration(stats.UptimeSeconds) * time.Second
	fmt.Printf("server  version=%s uptime=%s\n", stats.Version, uptime)
	fmt.Printf("store   series=%d points=%d appends=%d rejected=%d created=%d\n",
		stats.Store.Series, stats.Store.Points, stats.Store.Appends,
		stats.Store.Rejected, stats.Store.SeriesCreated)
	fmt.Printf("hub     clients=%d broadcasts=%d dropped_points=%d dropped_clients=%d backfill=%d\n",
		stats.Hub.Clients, stats.Hub.Broadcasts, stats.Hub.DroppedPoints,
		stats.Hub.DroppedClients, stats.Hub.BackfillPoints)
	return nil
}

func cmdLive(c *client.Client, args []string) error {
	filter := make(map[string]bool, len(args))
	for _, name := range args {
		filter[name] = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintln(os.Stderr, "streaming (Ctrl-C to stop)")
	err := c.Live(ctx, func(p metrics.Point) {
		if len(filter) > 0 && !filter[p.Name] {
			return
		}
		printPoint(p)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// =============================================================================
// Output Helpers
// =============================================================================

// newTable returns a borderless left-aligned table on stdout.
func newTable(headers ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}

func printPointTable(points []metrics.Point) {
	if len(points) == 0 {
		fmt.Println("no points")
		return
	}

	table := newTable("TIMESTAMP", "VALUE", "LABELS")
	for _, p := range points {
		table.Append([]string{
			formatTimeMs(p.Timestamp),
			formatValue(p.Value),
			formatLabels(p.Labels),
		})
	}
	table.Render()
}

func printPoint(p metrics.Point) {
	line := fmt.Sprintf("%s  %-7s  %-32s  %s",
		time.UnixMilli(p.Timestamp).Local().Format("15:04:05.000"),
		p.Type, p.Name, formatValue(p.Value))
	if len(p.Labels) > 0 {
		line += "  " + formatLabels(p.Labels)
	}
	fmt.Println(line)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatTimeMs(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04:05.000")
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+labels[k])
	}
	return strings.Join(parts, ",")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
