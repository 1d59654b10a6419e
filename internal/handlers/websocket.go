package handlers

import (
	"encoding/json"
	"log"
	"time"

	"acey/internal/models"
	"acey/internal/services"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

// WebSocketHandler handles operator console connections. Consoles are a
// one-way fan-out: the server pushes governance events; the only inbound
// traffic is pings.
type WebSocketHandler struct {
	connManager *services.ConnectionManager
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(connManager *services.ConnectionManager) *WebSocketHandler {
	return &WebSocketHandler{connManager: connManager}
}

// Handle handles a new operator console connection
func (h *WebSocketHandler) Handle(c *websocket.Conn) {
	connID := uuid.New().String()
	operatorID, _ := c.Locals("operator_id").(string)
	clientIP, _ := c.Locals("client_ip").(string)

	conn := &models.OperatorConnection{
		ConnID:     connID,
		OperatorID: operatorID,
		ClientIP:   clientIP,
		Conn:       c,
		CreatedAt:  time.Now(),
		WriteChan:  make(chan models.ServerMessage, 100),
		StopChan:   make(chan bool, 1),
	}

	h.connManager.Add(conn)
	defer h.connManager.Remove(connID)

	done := make(chan struct{})

	// Writer goroutine: the only place that writes to this socket.
	go func() {
		for {
			select {
			case msg, ok := <-conn.WriteChan:
				if !ok {
					return
				}
				data, err := json.Marshal(msg)
				if err != nil {
					log.Printf("⚠️ Failed to encode console message: %v", err)
					continue
				}
				conn.WriteMutex.Lock()
				err = c.WriteMessage(websocket.TextMessage, data)
				conn.WriteMutex.Unlock()
				if err != nil {
					log.Printf("❌ Console write failed (%s): %v", connID, err)
					return
				}
			case <-done:
				return
			}
		}
	}()

	// Greet the console with the connection id so it can correlate logs.
	conn.WriteChan <- models.ServerMessage{
		Type:      "connected",
		Payload:   map[string]any{"connId": connID, "operatorId": operatorID},
		Timestamp: time.Now(),
	}

	// Read loop: drains pings and detects disconnect.
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}
	close(done)
}
