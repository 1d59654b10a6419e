package services

import (
	"time"

	"acey/internal/models"
)

// OperatorNotifier is the production implementation of the engine's and
// safety system's outbound message port. It fans events out to every
// connected operator console and, when Redis is available, to the other
// instances via pub/sub.
type OperatorNotifier struct {
	connManager *ConnectionManager
	pubsub      *PubSubService // optional
}

// NewOperatorNotifier creates a notifier over the given connection
// manager. pubsub may be nil when Redis is not configured.
func NewOperatorNotifier(connManager *ConnectionManager, pubsub *PubSubService) *OperatorNotifier {
	return &OperatorNotifier{connManager: connManager, pubsub: pubsub}
}

// Publish pushes one event. Fire-and-forget: a notification is never
// allowed to fail an intent's processing.
func (n *OperatorNotifier) Publish(topic string, payload map[string]any) {
	msg := models.ServerMessage{
		Type:      topic,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	n.connManager.Broadcast(msg)

	if n.pubsub != nil {
		n.pubsub.PublishEvent(topic, payload)
	}

	if m := GetMetrics(); m != nil {
		m.NotificationsSent.WithLabelValues(topic).Inc()
	}
}

// CaptureNotifier records published events for tests.
type CaptureNotifier struct {
	Events []CapturedEvent
}

// CapturedEvent is one published (topic, payload) pair.
type CapturedEvent struct {
	Topic   string
	Payload map[string]any
}

// Publish appends the event to the capture log.
func (n *CaptureNotifier) Publish(topic string, payload map[string]any) {
	n.Events = append(n.Events, CapturedEvent{Topic: topic, Payload: payload})
}

// Topics returns the published topics in order.
func (n *CaptureNotifier) Topics() []string {
	topics := make([]string, len(n.Events))
	for i, e := range n.Events {
		topics[i] = e.Topic
	}
	return topics
}
