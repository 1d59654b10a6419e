package intent

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"acey/internal/models"
)

// ErrUnknownIntent is returned for lookups and transitions on ids the
// registry has never seen (or has already forgotten).
var ErrUnknownIntent = errors.New("intent not found")

// legalTransitions encodes the lifecycle state machine:
// created → pending → {approved → executed | rejected | expired}
// created → auto_approved → executed (high-confidence fast path)
// Any execution attempt may end in error instead of executed.
var legalTransitions = map[models.IntentStatus][]models.IntentStatus{
	models.StatusCreated:      {models.StatusPending, models.StatusAutoApproved},
	models.StatusPending:      {models.StatusApproved, models.StatusRejected, models.StatusExpired},
	models.StatusApproved:     {models.StatusExecuted, models.StatusError},
	models.StatusAutoApproved: {models.StatusExecuted, models.StatusError},
}

// Registry tracks every constructed intent and owns the only legal
// lifecycle mutation. It never executes anything.
type Registry struct {
	mu      sync.RWMutex
	intents map[string]*models.Intent
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{intents: make(map[string]*models.Intent)}
}

// Register records an intent as tracked and returns its id.
func (r *Registry) Register(in models.Intent) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := in
	r.intents[in.ID] = &copied
	return in.ID
}

// Get returns a copy of the tracked intent.
func (r *Registry) Get(id string) (models.Intent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	in, ok := r.intents[id]
	if !ok {
		return models.Intent{}, fmt.Errorf("%w: %s", ErrUnknownIntent, id)
	}
	return *in, nil
}

// UpdateStatus performs the only legal lifecycle mutation. Illegal
// transitions (including any transition out of a terminal state) fail.
func (r *Registry) UpdateStatus(id string, status models.IntentStatus, meta map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	in, ok := r.intents[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIntent, id)
	}

	if !transitionAllowed(in.Status, status) {
		return fmt.Errorf("illegal intent transition %s → %s for %s", in.Status, status, id)
	}

	in.Status = status
	in.UpdatedAt = time.Now()
	if len(meta) > 0 {
		if in.StatusMeta == nil {
			in.StatusMeta = make(map[string]any, len(meta))
		}
		for k, v := range meta {
			in.StatusMeta[k] = v
		}
	}
	return nil
}

func transitionAllowed(from, to models.IntentStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Count returns the number of tracked intents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.intents)
}

// ByStatus returns copies of every tracked intent in the given state.
func (r *Registry) ByStatus(status models.IntentStatus) []models.Intent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []models.Intent
	for _, in := range r.intents {
		if in.Status == status {
			out = append(out, *in)
		}
	}
	return out
}
