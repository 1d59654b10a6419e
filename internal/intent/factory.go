package intent

import (
	"fmt"
	"time"

	"acey/internal/models"

	"github.com/google/uuid"
)

// CreateIntent turns a validated draft into a typed, identity-bearing
// intent record. Construction is the only place an intent id is assigned.
func CreateIntent(draft models.IntentDraft) (models.Intent, error) {
	if draft.Payload == nil {
		return models.Intent{}, fmt.Errorf("intent draft has no payload")
	}
	if draft.Payload.IntentType() != draft.Type {
		return models.Intent{}, fmt.Errorf("payload type %q does not match intent type %q",
			draft.Payload.IntentType(), draft.Type)
	}
	if draft.Justification == "" {
		return models.Intent{}, fmt.Errorf("intent requires a justification")
	}

	ttl := draft.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	now := time.Now()
	return models.Intent{
		ID:            uuid.New().String(),
		Type:          draft.Type,
		Confidence:    draft.Confidence,
		Justification: draft.Justification,
		Reversible:    draft.Reversible,
		TTL:           ttl,
		Payload:       draft.Payload,
		Status:        models.StatusCreated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}
