package handlers

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jarvislabs/jarvis-live/pkg/core"
	"github.com/jarvislabs/jarvis-live/pkg/gateway/config"
	"github.com/jarvislabs/jarvis-live/pkg/gateway/metrics"
	"github.com/jarvislabs/jarvis-live/pkg/gateway/mw"
)

// Hub fans every inbound websocket message out to all connected clients, so
// a browser UI and a local agent process can observe the same event stream.
type Hub struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	clients map[*hubClient]struct{}
}

type hubClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func NewHub(cfg config.Config, logger *slog.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		clients: make(map[*hubClient]struct{}),
	}
}

// ClientCount reports the number of attached clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())

	h.mu.Lock()
	full := len(h.clients) >= h.cfg.HubMaxClients
	h.mu.Unlock()
	if full {
		h.metrics.RecordError("hub", "capacity")
		http.Error(w, "hub is at capacity", http.StatusServiceUnavailable)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(h.cfg.CORSAllowedOrigins) == 0 {
				return true
			}
			_, ok := h.cfg.CORSAllowedOrigins[origin]
			return ok
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.metrics.RecordError("hub", string(core.ErrTransport))
		h.logger.Warn("hub upgrade failed", "request_id", reqID, "error", err)
		return
	}
	if h.cfg.HubMaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.HubMaxMessageBytes)
	}

	client := &hubClient{conn: conn}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.metrics.RecordHubConnect()
	h.logger.Info("hub client connected", "request_id", reqID, "clients", h.ClientCount())

	defer func() {
		h.detach(client)
		h.logger.Info("hub client disconnected", "request_id", reqID, "clients", h.ClientCount())
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		h.metrics.RecordHubMessage("inbound")
		h.broadcast(data)
	}
}

// broadcast delivers one message to every attached client. Clients that
// cannot be written to are dropped.
func (h *Hub) broadcast(data []byte) {
	h.mu.Lock()
	targets := make([]*hubClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		if err := c.write(data, h.cfg.HubWriteTimeout); err != nil {
			h.detach(c)
			continue
		}
		h.metrics.RecordHubMessage("outbound")
	}
}

func (h *Hub) detach(c *hubClient) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if present {
		h.metrics.RecordHubDisconnect()
		_ = c.conn.Close()
	}
}

func (c *hubClient) write(data []byte, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
