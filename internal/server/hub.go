// LOCATION: internal/server/hub.go

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"github.com/ag-botkit/ringstore/internal/config"
	"github.com/ag-botkit/ringstore/internal/errors"
	"github.com/ag-botkit/ringstore/internal/logging"
	"github.com/ag-botkit/ringstore/internal/metrics"
)

var hubLog = logging.Component("hub")

// =============================================================================
// Client
// =============================================================================

// client is one live dashboard connection. The send channel is never
// closed; a dead client is cut off by closing its connection, which
// unwinds its write pump through the read context.
type client struct {
	conn *websocket.Conn
	addr string
	send chan []byte
}

// =============================================================================
// Hub
// =============================================================================

// Hub fans ingested points out to live dashboard connections.
//
// Points enter through Broadcast, are serialized once, and are copied into
// each client's send buffer. A client whose buffer is full is dropped
// rather than allowed to stall everyone behind it.
type Hub struct {
	store *metrics.Store

	register   chan *client
	unregister chan *client
	broadcast  chan metrics.Point

	mu      sync.RWMutex
	clients map[*client]bool

	clientBufferSize int
	backfillWindow   time.Duration
	pingInterval     time.Duration
	writeTimeout     time.Duration
	readDeadline     time.Duration

	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	stats hubStats
}

type hubStats struct {
	broadcasts     atomic.Int64
	droppedPoints  atomic.Int64
	droppedClients atomic.Int64
	backfillPoints atomic.Int64
}

// HubStats is a point-in-time snapshot of hub activity.
type HubStats struct {
	// Clients is the number of live dashboard connections.
	Clients int `json:"clients"`

	// Broadcasts counts points fanned out to clients.
	Broadcasts int64 `json:"broadcasts"`

	// DroppedPoints counts points discarded because the broadcast
	// channel was full.
	DroppedPoints int64 `json:"dropped_points"`

	// DroppedClients counts clients disconnected for not draining
	// their send buffers.
	DroppedClients int64 `json:"dropped_clients"`

	// BackfillPoints counts historical points replayed to new clients.
	BackfillPoints int64 `json:"backfill_points"`
}

// NewHub creates a hub backed by store. Zero fields in cfg fall back to
// the package defaults, except BackfillWindow where zero disables backfill.
func NewHub(store *metrics.Store, cfg config.HubConfig) *Hub {
	if cfg.BroadcastBufferSize == 0 {
		cfg.BroadcastBufferSize = config.DefaultBroadcastBufferSize
	}
	if cfg.ClientBufferSize == 0 {
		cfg.ClientBufferSize = config.DefaultClientBufferSize
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = config.Duration(config.DefaultPingInterval)
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = config.Duration(config.DefaultWriteTimeout)
	}
	if cfg.ReadDeadline == 0 {
		cfg.ReadDeadline = config.Duration(config.DefaultReadDeadline)
	}

	return &Hub{
		store:            store,
		register:         make(chan *client),
		unregister:       make(chan *client),
		broadcast:        make(chan metrics.Point, cfg.BroadcastBufferSize),
		clients:          make(map[*client]bool),
		clientBufferSize: cfg.ClientBufferSize,
		backfillWindow:   cfg.BackfillWindow.Duration(),
		pingInterval:     cfg.PingInterval.Duration(),
		writeTimeout:     cfg.WriteTimeout.Duration(),
		readDeadline:     cfg.ReadDeadline.Duration(),
		done:             make(chan struct{}),
		stopped:          make(chan struct{}),
	}
}

// Run owns the client set until the hub is stopped. Registration,
// unregistration and fan-out are serialized here so handler goroutines
// never mutate the map directly.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.stopped)

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			hubLog.Debug("client registered", "client_addr", c.addr, "clients", n)

		case c := <-h.unregister:
			h.mu.Lock()
			delete(h.clients, c)
			n := len(h.clients)
			h.mu.Unlock()
			hubLog.Debug("client unregistered", "client_addr", c.addr, "clients", n)

		case p := <-h.broadcast:
			h.fanOut(p)

		case <-h.done:
			h.closeAll(websocket.StatusGoingAway, "server shutting down")
			return nil

		case <-ctx.Done():
			h.closeAll(websocket.StatusGoingAway, "server shutting down")
			return ctx.Err()
		}
	}
}

// Stop ends the run loop and closes every client connection. Idempotent.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Stopped is closed once the run loop has exited and every client has
// been sent a close frame.
func (h *Hub) Stopped() <-chan struct{} {
	return h.stopped
}

// Broadcast queues p for delivery to every live client. When the hub is
// saturated the point is dropped; ingest never blocks on slow dashboards.
func (h *Hub) Broadcast(p metrics.Point) {
	select {
	case h.broadcast <- p:
	default:
		h.stats.droppedPoints.Add(1)
		hubLog.Warn("broadcast channel full, dropping point", "series", p.Name)
	}
}

// Stats returns a snapshot of hub activity.
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	clients := len(h.clients)
	h.mu.RUnlock()

	return HubStats{
		Clients:        clients,
		Broadcasts:     h.stats.broadcasts.Load(),
		DroppedPoints:  h.stats.droppedPoints.Load(),
		DroppedClients: h.stats.droppedClients.Load(),
		BackfillPoints: h.stats.backfillPoints.Load(),
	}
}

// fanOut serializes p once and copies it into every client buffer.
func (h *Hub) fanOut(p metrics.Point) {
	data, err := json.Marshal(p)
	if err != nil {
		hubLog.Error("marshal point", "series", p.Name, "error", err)
		return
	}

	var slow []*client
	h.mu.Lock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			delete(h.clients, c)
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	h.stats.broadcasts.Add(1)

	for _, c := range slow {
		h.stats.droppedClients.Add(1)
		hubLog.Warn("dropping slow client", "client_addr", c.addr)
		c.conn.Close(websocket.StatusPolicyViolation, "connection too slow to keep up with messages")
	}
}

// closeAll disconnects every client. Close handshakes run outside the
// lock; they can block on dead peers.
func (h *Hub) closeAll(code websocket.StatusCode, reason string) {
	h.mu.Lock()
	all := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
		delete(h.clients, c)
	}
	h.mu.Unlock()

	for _, c := range all {
		c.conn.Close(code, reason)
	}
}

// addClient hands c to the run loop. Returns false if the hub is stopped.
func (h *Hub) addClient(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// removeClient hands c back to the run loop for removal.
func (h *Hub) removeClient(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// =============================================================================
// Ingest WebSocket
// =============================================================================

// ServeIngest accepts a producer connection and stores every JSON point it
// sends. Malformed or invalid points are logged and skipped; one bad
// sample never takes the connection down.
func (h *Hub) ServeIngest(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Producers are processes, not browsers; origin checks add nothing.
		InsecureSkipVerify: true,
	})
	if err != nil {
		hubLog.Error("ingest accept failed", "client_addr", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	hubLog.Info("ingest client connected", "client_addr", r.RemoteAddr)

	ctx := r.Context()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			break
		}

		var p metrics.Point
		if err := json.Unmarshal(data, &p); err != nil {
			hubLog.Warn("malformed point, skipping", "client_addr", r.RemoteAddr, "error", err)
			continue
		}

		if err := h.store.Append(p); err != nil {
			hubLog.Warn("rejected point", "client_addr", r.RemoteAddr, "series", p.Name, "error", err)
			continue
		}

		h.Broadcast(p)
	}

	hubLog.Info("ingest client disconnected", "client_addr", r.RemoteAddr)
	conn.Close(websocket.StatusNormalClosure, "")
}

// =============================================================================
// Dashboard WebSocket
// =============================================================================

// ServeDashboard upgrades the request and streams every ingested point to
// the client as JSON text messages until either side goes away. New
// clients receive a backfill of recent history first.
func (h *Hub) ServeDashboard(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Dashboards connect from file:// and arbitrary local origins.
		InsecureSkipVerify: true,
	})
	if err != nil {
		hubLog.Error("dashboard accept failed", "client_addr", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	c := &client{
		conn: conn,
		addr: r.RemoteAddr,
		send: make(chan []byte, h.clientBufferSize),
	}

	if !h.addClient(c) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.removeClient(c)

	if h.backfillWindow > 0 {
		go h.backfill(c)
	}

	err = h.writePump(r.Context(), c)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case websocket.CloseStatus(err) == websocket.StatusNormalClosure,
		websocket.CloseStatus(err) == websocket.StatusGoingAway:
	default:
		hubLog.Debug("dashboard client gone", "client_addr", c.addr, "error", err)
	}
}

// writePump forwards buffered messages to the peer and pings it on an
// interval. It returns when the connection dies or the context ends.
func (h *Hub) writePump(ctx context.Context, c *client) error {
	// CloseRead discards inbound data frames and cancels the context when
	// the peer goes away. Dashboards only listen.
	ctx = c.conn.CloseRead(ctx)

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			if err := writeWithTimeout(ctx, c.conn, data, h.writeTimeout); err != nil {
				return err
			}

		case <-ticker.C:
			// The pong must arrive within the read deadline or the
			// client is considered gone.
			pingCtx, cancel := context.WithTimeout(ctx, h.readDeadline)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return err
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// backfill replays recent history into a new client's buffer so its view
// starts populated instead of empty.
func (h *Hub) backfill(c *client) {
	// Let the client finish its handshake before the burst.
	time.Sleep(100 * time.Millisecond)

	recent := h.store.Recent(h.backfillWindow)
	for _, points := range recent {
		for i := range points {
			data, err := json.Marshal(points[i])
			if err != nil {
				continue
			}
			select {
			case c.send <- data:
				h.stats.backfillPoints.Add(1)
			default:
				// Buffer already full; live traffic wins over history.
				return
			}
		}
	}
}

func writeWithTimeout(ctx context.Context, conn *websocket.Conn, data []byte, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
