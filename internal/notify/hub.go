package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"sensor-collector/internal/logging"
	"sensor-collector/internal/models"
)

const (
	maxConnections = 100
	writeWait      = 5 * time.Second
)

// Hub manages dashboard WebSocket connections and broadcasts alerts to all of them.
type Hub struct {
	connections map[*websocket.Conn]bool
	mutex       sync.Mutex
	log         *logrus.Entry
}

func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		connections: make(map[*websocket.Conn]bool),
		log:         logger.WithComponent("ws"),
	}
}

func (h *Hub) Name() string { return "websocket" }

// AddConnection registers conn; it reports false when the hub is full.
func (h *Hub) AddConnection(conn *websocket.Conn) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if len(h.connections) >= maxConnections {
		h.log.Warnf("Max connections reached (%d)", maxConnections)
		return false
	}
	h.connections[conn] = true
	h.log.Infof("Added WebSocket connection %s (total: %d)", conn.RemoteAddr(), len(h.connections))
	return true
}

// RemoveConnection removes a WebSocket connection
func (h *Hub) RemoveConnection(conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.connections[conn]; ok {
		delete(h.connections, conn)
		h.log.Infof("Removed WebSocket connection %s (remaining: %d)", conn.RemoteAddr(), len(h.connections))
	}
}

func (h *Hub) Count() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.connections)
}

// Send broadcasts the alert as JSON. Connections that fail the write are dropped.
func (h *Hub) Send(ctx context.Context, alert models.Alert) error {
	message, err := json.Marshal(struct {
		Type  string       `json:"type"`
		Alert models.Alert `json:"alert"`
	}{Type: "alert", Alert: alert})
	if err != nil {
		return fmt.Errorf("failed to marshal alert %d: %w", alert.ID, err)
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	failed := 0
	for conn := range h.connections {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.log.Errorf("Failed to send WebSocket message to %s: %v", conn.RemoteAddr(), err)
			delete(h.connections, conn)
			conn.Close()
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d websocket writes failed", failed, failed+len(h.connections))
	}
	return nil
}
