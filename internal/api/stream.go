package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/aegis-t0/internal/contracts"
	"github.com/wonny/aegis-t0/internal/risk"
	"github.com/wonny/aegis-t0/pkg/logger"
)

const (
	// Ping/Pong settings
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
	writeWait    = 10 * time.Second

	clientBuffer = 256
)

// Event is one message pushed to stream subscribers
type Event struct {
	Type  string      `json:"type"` // signal, rejection, exclusion, session
	RunID string      `json:"run_id"`
	Data  interface{} `json:"data"`
}

// Hub fans backtest events out to websocket subscribers. It is a
// backtest.Observer: attach it to the engine and every run streams live.
// ⭐ SSOT: /ws/signals connections are managed here only
type Hub struct {
	upgrader websocket.Upgrader
	logger   *logger.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates an empty hub
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  log.WithComponent("stream"),
		clients: make(map[*client]struct{}),
	}
}

// Clients returns the number of connected subscribers
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and subscribes the connection
// GET /ws/signals
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.WithField("clients", h.Clients()).Debug("Stream subscriber connected")

	go h.writeLoop(c)
	go h.readLoop(c)
}

// Close disconnects every subscriber
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// Broadcast queues ev for every subscriber. Slow subscribers are dropped
// instead of blocking the caller.
func (h *Hub) Broadcast(ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal stream event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			close(c.send)
			delete(h.clients, c)
			h.logger.Warn("Stream subscriber too slow, disconnected")
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		close(c.send)
		delete(h.clients, c)
	}
}

// readLoop only handles control frames; subscribers never send data
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// =============================================================================
// backtest.Observer
// =============================================================================

func (h *Hub) OnSignal(runID string, sig contracts.Signal) {
	h.Broadcast(Event{Type: "signal", RunID: runID, Data: sig})
}

func (h *Hub) OnRejection(runID string, p risk.Proposal, d risk.Decision) {
	h.Broadcast(Event{Type: "rejection", RunID: runID, Data: map[string]interface{}{
		"proposal": p,
		"decision": d,
	}})
}

func (h *Hub) OnExclusion(runID string, ex contracts.Exclusion) {
	h.Broadcast(Event{Type: "exclusion", RunID: runID, Data: ex})
}

func (h *Hub) OnSessionEnd(runID string, pt contracts.EquityPoint) {
	h.Broadcast(Event{Type: "session", RunID: runID, Data: pt})
}

// Run closes the hub when ctx is done
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.Close()
}
