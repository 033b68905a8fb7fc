// Package websocket pushes domain events to connected browser clients,
// grouped by company.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/event"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

// ErrHubStopped is returned when a connection arrives after shutdown
var ErrHubStopped = errors.New("realtime hub is not running")

// Client is one websocket connection of a company member
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	companyID int64
	userID    string
}

// Hub tracks connected clients per company and fans events out to them
type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*Client]bool
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHub creates a hub. It accepts connections once started.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[int64]map[*Client]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
}

// Start opens the hub for connections until ctx is cancelled or Stop is called
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return errors.New("realtime hub already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})
	h.running = true

	go func(done chan struct{}) {
		defer close(done)
		<-runCtx.Done()
		h.closeAll()
	}(h.done)

	h.logger.Info("Realtime hub started")
	return nil
}

// Stop disconnects every client and refuses new connections
func (h *Hub) Stop() error {
	h.mu.RLock()
	cancel, done := h.cancel, h.done
	h.mu.RUnlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Name returns the worker name for identification
func (h *Hub) Name() string {
	return "RealtimeHub"
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	count := 0
	for companyID, clients := range h.clients {
		for client := range clients {
			close(client.send)
			count++
		}
		delete(h.clients, companyID)
	}
	h.running = false
	h.cancel = nil

	h.logger.Info("Realtime hub stopped", zap.Int("disconnected", count))
}

// Publish sends the event to every client of the company and returns how
// many received it. Clients whose buffer is full are disconnected.
func (h *Hub) Publish(companyID int64, evt *event.Event) int {
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("Failed to marshal realtime event",
			zap.String("event_id", evt.ID),
			zap.Error(err))
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	clients := h.clients[companyID]
	for client := range clients {
		select {
		case client.send <- data:
			delivered++
		default:
			close(client.send)
			delete(clients, client)
			h.logger.Warn("Dropped slow realtime client",
				zap.Int64("company_id", companyID),
				zap.String("user_id", client.userID))
		}
	}
	if len(clients) == 0 {
		delete(h.clients, companyID)
	}
	return delivered
}

// ServeWS upgrades the request and attaches the connection to the company
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, companyID int64, userID string) error {
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()
	if !running {
		return ErrHubStopped
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		companyID: companyID,
		userID:    userID,
	}
	if !h.add(client) {
		_ = conn.Close()
		return ErrHubStopped
	}

	h.logger.Info("Realtime client connected",
		zap.Int64("company_id", companyID),
		zap.String("user_id", userID))

	go client.writePump()
	go client.readPump()
	return nil
}

// ClientCount returns the number of connected clients of a company
func (h *Hub) ClientCount(companyID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[companyID])
}

func (h *Hub) add(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return false
	}
	if h.clients[c.companyID] == nil {
		h.clients[c.companyID] = make(map[*Client]bool)
	}
	h.clients[c.companyID][c] = true
	return true
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[c.companyID]
	if !ok || !clients[c] {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.clients, c.companyID)
	}

	h.logger.Debug("Realtime client disconnected",
		zap.Int64("company_id", c.companyID),
		zap.String("user_id", c.userID))
}

// writePump forwards queued messages and keeps the connection alive
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// readPump discards inbound messages and detects disconnects
func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("Realtime client read error", zap.Error(err))
			}
			return
		}
	}
}

// Verify interface compliance
var _ port.RealtimePublisher = (*Hub)(nil)
