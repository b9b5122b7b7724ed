package gateway

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Black-And-White-Club/lastword/pkg/observability/attr"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ActiveChannel receives every round change.
const ActiveChannel = "active"

// HubConfig holds connection timing and buffer sizes.
type HubConfig struct {
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
	SendBuffer     int
	AllowedOrigins []string
}

// DefaultHubConfig returns production connection settings.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 1024,
		SendBuffer:     64,
	}
}

// Hub keeps websocket connections grouped by channel: ActiveChannel or a round id.
type Hub struct {
	channels map[string]map[*conn]struct{}
	mu       sync.RWMutex
	upgrader websocket.Upgrader
	cfg      HubConfig
	logger   *slog.Logger
}

type conn struct {
	id      string
	channel string
	ws      *websocket.Conn
	send    chan []byte
	hub     *Hub
	once    sync.Once
}

// NewHub creates a Hub. Without allowed origins every origin is accepted.
func NewHub(cfg HubConfig, logger *slog.Logger) *Hub {
	if cfg.SendBuffer < 1 {
		cfg.SendBuffer = DefaultHubConfig().SendBuffer
	}
	origins := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		origins[o] = struct{}{}
	}
	return &Hub{
		channels: make(map[string]map[*conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[r.Header.Get("Origin")]
				return ok
			},
		},
		cfg:    cfg,
		logger: logger,
	}
}

// Attach upgrades the request and joins the connection to channel. initial,
// when non-nil, is written before any broadcast.
func (h *Hub) Attach(w http.ResponseWriter, r *http.Request, channel string, initial []byte) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &conn{
		id:      uuid.NewString(),
		channel: channel,
		ws:      ws,
		send:    make(chan []byte, h.cfg.SendBuffer),
		hub:     h,
	}
	if initial != nil {
		c.send <- initial
	}
	h.register(c)

	go c.writePump()
	go c.readPump()
	return nil
}

func (h *Hub) register(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.channels[c.channel] == nil {
		h.channels[c.channel] = make(map[*conn]struct{})
	}
	h.channels[c.channel][c] = struct{}{}
	h.logger.Debug("Websocket registered",
		attr.String("connection_id", c.id),
		attr.String("channel", c.channel),
		attr.Int("channel_size", len(h.channels[c.channel])),
	)
}

func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.channels[c.channel]
	if !ok {
		return
	}
	if _, ok := conns[c]; !ok {
		return
	}
	delete(conns, c)
	close(c.send)
	if len(conns) == 0 {
		delete(h.channels, c.channel)
	}
}

// Broadcast sends data to every connection on channel. A connection whose
// buffer is full is dropped rather than slowing the others.
func (h *Hub) Broadcast(channel string, data []byte) int {
	var slow []*conn
	delivered := 0

	// Sends are non-blocking, and holding the read lock keeps unregister
	// from closing a send channel underneath us.
	h.mu.RLock()
	for c := range h.channels[channel] {
		select {
		case c.send <- data:
			delivered++
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("Websocket send buffer full, closing", attr.String("connection_id", c.id))
		h.unregister(c)
		c.close()
	}
	return delivered
}

// Count returns the number of connections on channel.
func (h *Hub) Count(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	var all []*conn
	for _, conns := range h.channels {
		for c := range conns {
			all = append(all, c)
		}
	}
	h.mu.Unlock()
	for _, c := range all {
		h.unregister(c)
		c.close()
	}
}

func (c *conn) close() {
	c.once.Do(func() { _ = c.ws.Close() })
}

func (c *conn) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.hub.unregister(c)
		c.close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only services pongs and close frames; clients do not send commands.
func (c *conn) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.close()
	}()

	c.ws.SetReadLimit(c.hub.cfg.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.hub.cfg.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.hub.cfg.ReadTimeout))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("Websocket closed unexpectedly", attr.String("connection_id", c.id), attr.Error(err))
			}
			return
		}
	}
}
