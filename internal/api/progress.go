package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anstrom/bannerscan/internal/logging"
	"github.com/anstrom/bannerscan/internal/scanning"
)

const (
	// WebSocket configuration constants.
	writeWait       = 10 * time.Second                                   // Time allowed to write a message to the peer
	pongWait        = 60 * time.Second                                   // Time to read next pong message from peer
	pingPeriodRatio = 0.9                                                // Ratio of pongWait for pingPeriod
	pingPeriod      = time.Duration(float64(pongWait) * pingPeriodRatio) // Send pings to peer (must be < pongWait)
	maxMessageSize  = 512                                                // Maximum message size allowed from peer
	sendBufferSize  = 256                                                // Per-client queue before messages are dropped
)

// Message types sent to progress clients.
const (
	MessageProgress      = "progress"
	MessageHostCompleted = "host_completed"
)

// Message is the envelope for every progress stream message.
type Message struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id,omitempty"`
	Data      any       `json:"data"`
}

// HostSummary is the payload of a host_completed message.
type HostSummary struct {
	Host     string          `json:"host"`
	Hostname string          `json:"hostname,omitempty"`
	Counts   scanning.Counts `json:"counts"`
	Duration string          `json:"duration"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// ProgressHub fans progress events out to websocket clients. Publishing
// never blocks: a client whose queue is full misses the message.
type ProgressHub struct {
	upgrader websocket.Upgrader
	logger   *logging.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	dropped atomic.Int64
}

// NewProgressHub creates an empty hub.
func NewProgressHub(logger *logging.Logger) *ProgressHub {
	if logger == nil {
		logger = logging.Default()
	}
	return &ProgressHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger:  logger.WithComponent("progress"),
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and streams messages until the peer leaves.
func (h *ProgressHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}
	h.register(c)
	h.logger.Debug("Progress client connected", "remote_addr", r.RemoteAddr, "clients", h.Clients())

	go h.writePump(c)
	h.readPump(c)
}

// Publish sends a progress event to every client.
func (h *ProgressHub) Publish(runID string, p scanning.Progress) {
	h.broadcast(Message{Type: MessageProgress, Timestamp: time.Now().UTC(), RunID: runID, Data: p})
}

// PublishHost announces a finished host.
func (h *ProgressHub) PublishHost(result *scanning.HostScanResult) {
	h.broadcast(Message{
		Type:      MessageHostCompleted,
		Timestamp: time.Now().UTC(),
		RunID:     result.RunID,
		Data: HostSummary{
			Host:     result.Host,
			Hostname: result.Hostname,
			Counts:   result.Counts(),
			Duration: result.Duration.String(),
		},
	})
}

func (h *ProgressHub) broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal progress message", "error", err)
		return
	}

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.dropped.Add(1)
		}
	}
}

// Clients returns the number of connected clients.
func (h *ProgressHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many messages were skipped for slow clients.
func (h *ProgressHub) Dropped() int64 {
	return h.dropped.Load()
}

// Close disconnects every client.
func (h *ProgressHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *ProgressHub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *ProgressHub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// readPump discards client messages and detects disconnects.
func (h *ProgressHub) readPump(c *client) {
	defer h.unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug("Progress client closed unexpectedly", "error", err)
			}
			return
		}
	}
}

// writePump drains the client's queue and keeps the connection alive.
func (h *ProgressHub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("Write failed, closing progress client", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
