// LOCATION: internal/client/client.go

// Package client talks to a ringstored server over its HTTP and WebSocket
// API. One-shot queries (Series, Last, Range, Stats, Ingest) go over plain
// HTTP; Live attaches to the dashboard stream and Feed opens a push
// connection to the ingest socket.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/ag-botkit/ringstore/internal/errors"
	"github.com/ag-botkit/ringstore/internal/metrics"
	ringstoreSync "github.com/ag-botkit/ringstore/internal/sync"
)

// =============================================================================
// Constants
// =============================================================================

const (
	ingestPath    = "/metrics"
	dashboardPath = "/dashboard"

	// watchBackoffMin and watchBackoffMax bound the reconnect delay in Watch.
	// The delay doubles on every failed attempt and resets once points flow.
	watchBackoffMin = 1 * time.Second
	watchBackoffMax = 30 * time.Second

	// feedPingInterval is how often an idle feed pings the server. The
	// traffic keeps NAT and proxy idle timers from reaping the connection
	// and surfaces a dead peer between Sends.
	feedPingInterval = 30 * time.Second

	// feedPingTimeout bounds a single keepalive round trip.
	feedPingTimeout = 10 * time.Second

	// errorBodyLimit caps how much of an error response body is read.
	errorBodyLimit = 4096
)

// =============================================================================
// Errors
// =============================================================================

// ErrFeedClosed is returned by Send when the feed has no live connection,
// either because Close was called or because a Reconnect has not succeeded.
var ErrFeedClosed = errors.New("feed connection is closed")

// =============================================================================
// Response Types
// =============================================================================

// Stats mirrors the /api/stats response.
type Stats struct {
	Store         metrics.Stats `json:"store"`
	Hub           HubStats      `json:"hub"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	Version       string        `json:"version"`
}

// HubStats mirrors the hub section of /api/stats.
type HubStats struct {
	Clients        int   `json:"clients"`
	Broadcasts     int64 `json:"broadcasts"`
	DroppedPoints  int64 `json:"dropped_points"`
	DroppedClients int64 `json:"dropped_clients"`
	BackfillPoints int64 `json:"backfill_points"`
}

// IngestResult mirrors the /api/ingest response.
type IngestResult struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

type seriesListBody struct {
	Series []metrics.SeriesInfo `json:"series"`
	Count  int                  `json:"count"`
}

type pointsBody struct {
	Series string          `json:"series"`
	Points []metrics.Point `json:"points"`
	Count  int             `json:"count"`
}

type errorBody struct {
	Error string `json:"error"`
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds client configuration.
type Config struct {
	// BaseURL is the server root, e.g. "http://localhost:8080".
	BaseURL string

	// Timeout bounds each one-shot HTTP request. WebSocket connections are
	// not subject to it; cancel their context instead. Zero means the
	// default from DefaultConfig.
	Timeout time.Duration

	// Transport overrides the underlying HTTP transport for both one-shot
	// requests and WebSocket dials. Nil means http.DefaultTransport.
	Transport http.RoundTripper
}

// DefaultConfig returns a client configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "http://localhost:8080",
		Timeout: 30 * time.Second,
	}
}

// =============================================================================
// Client
// =============================================================================

// Client is a ringstored API client. It is safe for concurrent use.
type Client struct {
	base      *url.URL
	httpc     *http.Client
	transport http.RoundTripper
}

// New creates a client from the given configuration. A nil config uses
// DefaultConfig.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	raw := cfg.BaseURL
	if raw == "" {
		raw = DefaultConfig().BaseURL
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse server URL %q: %w", raw, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("server URL %q: scheme must be http or https", raw)
	}
	base.Path = strings.TrimSuffix(base.Path, "/")

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultConfig().Timeout
	}

	return &Client{
		base:      base,
		httpc:     &http.Client{Timeout: timeout, Transport: cfg.Transport},
		transport: cfg.Transport,
	}, nil
}

// =============================================================================
// One-Shot Queries
// =============================================================================

// Series returns a description of every series on the server, sorted by name.
func (c *Client) Series(ctx context.Context) ([]metrics.SeriesInfo, error) {
	var body seriesListBody
	if err := c.get(ctx, "/api/series", nil, &body); err != nil {
		return nil, err
	}
	return body.Series, nil
}

// Info returns the description of a single series.
func (c *Client) Info(ctx context.Context, name string) (metrics.SeriesInfo, error) {
	var info metrics.SeriesInfo
	err := c.get(ctx, "/api/series/"+url.PathEscape(name), nil, &info)
	return info, err
}

// Last returns the newest n points of a series, newest first. n <= 0 uses
// the server default.
func (c *Client) Last(ctx context.Context, name string, n int) ([]metrics.Point, error) {
	query := url.Values{}
	if n > 0 {
		query.Set("n", strconv.Itoa(n))
	}
	var body pointsBody
	if err := c.get(ctx, "/api/series/"+url.PathEscape(name)+"/last", query, &body); err != nil {
		return nil, err
	}
	return body.Points, nil
}

// Range returns the points of a series with start <= timestamp <= end,
// oldest first. Bounds are passed through verbatim and accept every form
// the server parses: unix milliseconds, RFC 3339, "now", or a relative
// offset such as "-5m". max <= 0 means no limit.
func (c *Client) Range(ctx context.Context, name, start, end string, max int) ([]metrics.Point, error) {
	query := url.Values{}
	query.Set("start", start)
	query.Set("end", end)
	if max > 0 {
		query.Set("max", strconv.Itoa(max))
	}
	var body pointsBody
	if err := c.get(ctx, "/api/series/"+url.PathEscape(name)+"/range", query, &body); err != nil {
		return nil, err
	}
	return body.Points, nil
}

// Stats returns store and hub statistics.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := c.get(ctx, "/api/stats", nil, &stats)
	return stats, err
}

// Ingest pushes points over HTTP. Malformed points are rejected
// individually; the result reports both counts.
func (c *Client) Ingest(ctx context.Context, points ...metrics.Point) (IngestResult, error) {
	var result IngestResult
	err := c.post(ctx, "/api/ingest", points, &result)
	return result, err
}

// =============================================================================
// Live Stream
// =============================================================================

// Live attaches to the dashboard stream and invokes fn for every point the
// server pushes, starting with the backfill of recent history. It blocks
// until ctx is canceled, the server closes the stream, or a read fails.
// A normal server-side close returns nil.
func (c *Client) Live(ctx context.Context, fn func(metrics.Point)) error {
	conn, err := c.dial(ctx, dashboardPath)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusInternalError, "")

	for {
		var p metrics.Point
		if err := wsjson.Read(ctx, conn, &p); err != nil {
			switch {
			case ctx.Err() != nil:
				conn.Close(websocket.StatusNormalClosure, "")
				return ctx.Err()
			case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
				websocket.CloseStatus(err) == websocket.StatusGoingAway:
				return nil
			default:
				return fmt.Errorf("read stream: %w", err)
			}
		}
		fn(p)
	}
}

// Watch is Live with reconnection. When the stream drops for any reason it
// redials with exponential backoff, so a watch survives server restarts.
// It returns only when ctx is canceled.
func (c *Client) Watch(ctx context.Context, fn func(metrics.Point)) error {
	backoff := watchBackoffMin
	for {
		received := false
		err := c.Live(ctx, func(p metrics.Point) {
			received = true
			fn(p)
		})
		if ctx.Err() != nil {
			if err == nil {
				err = ctx.Err()
			}
			return err
		}
		if received {
			backoff = watchBackoffMin
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > watchBackoffMax {
			backoff = watchBackoffMax
		}
	}
}

// =============================================================================
// Feed
// =============================================================================

// Feed opens a push connection to the ingest socket. Points sent on it
// appear in the store and on every dashboard stream.
func (c *Client) Feed(ctx context.Context) (*FeedConn, error) {
	f := &FeedConn{c: c}
	f.mu.Lock()
	err := f.connectLocked(ctx)
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f, nil
}

// FeedConn is a live ingest connection. It is safe for concurrent use.
//
// A failed Send leaves the connection unusable until Reconnect succeeds.
// Close hangs up; a closed feed can also be revived with Reconnect.
type FeedConn struct {
	c *Client

	mu       sync.Mutex
	conn     *websocket.Conn
	pingStop chan struct{}

	// closeOnce guards teardown so it runs exactly once per connection.
	// Reconnect re-arms it for the next one.
	closeOnce ringstoreSync.ResettableOnce
}

// Send pushes one point. It returns ErrFeedClosed when there is no live
// connection.
func (f *FeedConn) Send(ctx context.Context, p metrics.Point) error {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()

	if conn == nil {
		return ErrFeedClosed
	}
	if err := wsjson.Write(ctx, conn, p); err != nil {
		return fmt.Errorf("send point: %w", err)
	}
	return nil
}

// Close sends a close frame and hangs up. It is idempotent; subsequent
// Sends return ErrFeedClosed.
func (f *FeedConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var err error
	f.closeOnce.Do(func() {
		err = f.teardownLocked(websocket.StatusNormalClosure, "done")
	})
	return err
}

// Reconnect drops the current connection, if any, and dials a fresh one.
// On failure the feed stays closed and Reconnect may be called again.
func (f *FeedConn) Reconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closeOnce.Do(func() {
		f.teardownLocked(websocket.StatusGoingAway, "reconnecting")
	})
	if err := f.connectLocked(ctx); err != nil {
		return err
	}
	f.closeOnce.Reset()
	return nil
}

func (f *FeedConn) connectLocked(ctx context.Context) error {
	conn, err := f.c.dial(ctx, ingestPath)
	if err != nil {
		return err
	}
	// The feed never reads data frames, but a reader has to run anyway so
	// inbound control frames are processed and Ping sees its pong.
	conn.CloseRead(context.Background())
	f.conn = conn
	f.pingStop = make(chan struct{})
	go f.pingLoop(conn, f.pingStop)
	return nil
}

func (f *FeedConn) teardownLocked(code websocket.StatusCode, reason string) error {
	if f.pingStop != nil {
		close(f.pingStop)
		f.pingStop = nil
	}
	if f.conn == nil {
		return nil
	}
	err := f.conn.Close(code, reason)
	f.conn = nil
	return err
}

// pingLoop pings the peer on an interval so idle feeds keep generating
// traffic. It exits when a ping fails or stop is closed.
func (f *FeedConn) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(feedPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), feedPingTimeout)
			err := conn.Ping(ctx)
			cancel()
			if err != nil {
				return
			}
		case <-stop:
			return
		}
	}
}

// =============================================================================
// Transport Internals
// =============================================================================

// Paths handed to get and post are already escaped, so the target URL is
// assembled as a string. Round-tripping them through url.URL.Path would
// escape the escapes.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	target := c.base.String() + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.String()+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// dial opens a WebSocket connection to the given path, translating the
// base URL's scheme to ws or wss.
func (c *Client) dial(ctx context.Context, path string) (*websocket.Conn, error) {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	target := u.String() + path

	// Dial refuses an http.Client carrying a Timeout, and a whole-request
	// timeout is wrong for a long-lived connection anyway. The context
	// bounds the handshake instead.
	conn, resp, err := websocket.Dial(ctx, target, &websocket.DialOptions{
		HTTPClient: &http.Client{Transport: c.transport},
	})
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, decodeErrorResponse(resp)
		}
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return conn, nil
}

// decodeErrorResponse turns a non-200 response into a domain error. The
// status code picks the sentinel and the body supplies the message, so
// errors.IsNotFound and friends work on client-side errors too.
func decodeErrorResponse(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))

	var body errorBody
	if json.Unmarshal(data, &body) != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
	}
	if body.Error == "" {
		body.Error = http.StatusText(resp.StatusCode)
	}
	return errors.FromStatus(resp.StatusCode, body.Error)
}
