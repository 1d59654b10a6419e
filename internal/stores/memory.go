package stores

import (
	"context"
	"fmt"
	"time"

	"acey/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MemoryStore persists the host's three memory tiers: session events,
// keyed session memory and the single mutable global record.
type MemoryStore struct {
	events  *mongo.Collection
	session *mongo.Collection
	global  *mongo.Collection
}

// SessionEvent is one line of short-term memory.
type SessionEvent struct {
	Text      string    `bson:"text" json:"text"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
}

// SessionMemoryDoc groups session memory items under a key.
type SessionMemoryDoc struct {
	Key       string    `bson:"key" json:"key"`
	Items     []string  `bson:"items" json:"items"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// GlobalRecord is the single long-lived cross-stream memory record.
type GlobalRecord struct {
	Summaries []string  `bson:"summaries" json:"summaries"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// NewMemoryStore creates a memory store over the given MongoDB.
func NewMemoryStore(mongodb *database.MongoDB) *MemoryStore {
	return &MemoryStore{
		events:  mongodb.Collection(database.CollectionSessionEvents),
		session: mongodb.Collection(database.CollectionSessionMemory),
		global:  mongodb.Collection(database.CollectionGlobalMemory),
	}
}

// AddSessionEvent appends one event line to session memory.
func (s *MemoryStore) AddSessionEvent(ctx context.Context, text string) error {
	_, err := s.events.InsertOne(ctx, SessionEvent{Text: text, CreatedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to add session event: %w", err)
	}
	return nil
}

// AddSessionMemory appends items under a session memory key.
func (s *MemoryStore) AddSessionMemory(ctx context.Context, key string, items []string) error {
	_, err := s.session.UpdateOne(ctx,
		bson.M{"key": key},
		bson.M{
			"$push": bson.M{"items": bson.M{"$each": items}},
			"$set":  bson.M{"updatedAt": time.Now()},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to add session memory %q: %w", key, err)
	}
	return nil
}

// AppendGlobal appends one summary to the global record.
func (s *MemoryStore) AppendGlobal(ctx context.Context, summary string) error {
	_, err := s.global.UpdateOne(ctx,
		bson.M{"_id": "global"},
		bson.M{
			"$push": bson.M{"summaries": summary},
			"$set":  bson.M{"updatedAt": time.Now()},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to append global memory: %w", err)
	}
	return nil
}

// GetGlobal returns the global record, empty if none exists yet.
func (s *MemoryStore) GetGlobal(ctx context.Context) (GlobalRecord, error) {
	var record GlobalRecord
	err := s.global.FindOne(ctx, bson.M{"_id": "global"}).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return GlobalRecord{}, nil
	}
	if err != nil {
		return GlobalRecord{}, fmt.Errorf("failed to read global memory: %w", err)
	}
	return record, nil
}
