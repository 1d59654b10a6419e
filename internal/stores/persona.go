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

// PersonaStore persists the host's current personality mode.
type PersonaStore struct {
	collection *mongo.Collection
}

// PersonaState is the single current-mode document plus its history.
type PersonaState struct {
	Mode      string    `bson:"mode" json:"mode"`
	Reason    string    `bson:"reason" json:"reason"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// NewPersonaStore creates a persona store over the given MongoDB.
func NewPersonaStore(mongodb *database.MongoDB) *PersonaStore {
	return &PersonaStore{collection: mongodb.Collection(database.CollectionPersonaState)}
}

// SetPersona switches the host's personality mode.
func (s *PersonaStore) SetPersona(ctx context.Context, mode, reason string) error {
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": "current"},
		bson.M{"$set": bson.M{
			"mode":      mode,
			"reason":    reason,
			"updatedAt": time.Now(),
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to set persona mode %q: %w", mode, err)
	}
	return nil
}

// GetPersona returns the current persona state, empty if never set.
func (s *PersonaStore) GetPersona(ctx context.Context) (PersonaState, error) {
	var state PersonaState
	err := s.collection.FindOne(ctx, bson.M{"_id": "current"}).Decode(&state)
	if err == mongo.ErrNoDocuments {
		return PersonaState{}, nil
	}
	if err != nil {
		return PersonaState{}, fmt.Errorf("failed to read persona state: %w", err)
	}
	return state, nil
}
