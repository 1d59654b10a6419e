package models

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// ServerMessage is an event pushed to a connected operator console.
type ServerMessage struct {
	Type      string         `json:"type"` // "intent_pending", "intent_executed", ...
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// OperatorConnection is one live operator console WebSocket.
type OperatorConnection struct {
	ConnID     string
	OperatorID string
	ClientIP   string
	Conn       *websocket.Conn
	CreatedAt  time.Time

	WriteChan chan ServerMessage
	StopChan  chan bool

	WriteMutex sync.Mutex
}
