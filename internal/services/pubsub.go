package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"acey/internal/models"

	"github.com/redis/go-redis/v9"
)

const governanceChannel = "governance:events"

// PubSubService relays governance events between instances via Redis
// pub/sub, so every operator console sees every event no matter which
// instance it is connected to.
type PubSubService struct {
	redis       *RedisService
	pubsub      *redis.PubSub
	connManager *ConnectionManager
	instanceID  string
	ctx         context.Context
	cancel      context.CancelFunc
}

// PubSubMessage is a governance event on the wire.
type PubSubMessage struct {
	Type       string         `json:"type"`
	InstanceID string         `json:"instanceId"` // source instance, used to skip own messages
	Payload    map[string]any `json:"payload"`
}

// NewPubSubService creates a new pub/sub service
func NewPubSubService(redisService *RedisService, connManager *ConnectionManager, instanceID string) *PubSubService {
	ctx, cancel := context.WithCancel(context.Background())
	return &PubSubService{
		redis:       redisService,
		connManager: connManager,
		instanceID:  instanceID,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins listening for events published by other instances.
func (s *PubSubService) Start() error {
	s.pubsub = s.redis.Client().Subscribe(s.ctx, governanceChannel)

	// Wait for subscription confirmation
	if _, err := s.pubsub.Receive(s.ctx); err != nil {
		return err
	}

	go s.processMessages()

	log.Printf("✅ [PUBSUB] Listening on %s (instance: %s)", governanceChannel, s.instanceID)
	return nil
}

// PublishEvent broadcasts one event to the other instances.
func (s *PubSubService) PublishEvent(eventType string, payload map[string]any) {
	msg := PubSubMessage{
		Type:       eventType,
		InstanceID: s.instanceID,
		Payload:    payload,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("⚠️ [PUBSUB] Failed to encode %s event: %v", eventType, err)
		return
	}
	if err := s.redis.Client().Publish(s.ctx, governanceChannel, data).Err(); err != nil {
		log.Printf("⚠️ [PUBSUB] Failed to publish %s event: %v", eventType, err)
	}
}

func (s *PubSubService) processMessages() {
	ch := s.pubsub.Channel()
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			s.handleMessage(msg)
		}
	}
}

func (s *PubSubService) handleMessage(msg *redis.Message) {
	var message PubSubMessage
	if err := json.Unmarshal([]byte(msg.Payload), &message); err != nil {
		log.Printf("⚠️ [PUBSUB] Failed to decode message: %v", err)
		return
	}

	// Events from this instance already reached local consoles directly.
	if message.InstanceID == s.instanceID {
		return
	}

	s.connManager.Broadcast(models.ServerMessage{
		Type:      message.Type,
		Payload:   message.Payload,
		Timestamp: time.Now(),
	})
}

// Stop shuts down the subscription.
func (s *PubSubService) Stop() {
	s.cancel()
	if s.pubsub != nil {
		s.pubsub.Close()
	}
}
