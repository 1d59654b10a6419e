package models

import (
	"time"
)

// IntentType identifies what kind of side effect an intent proposes.
// The set is closed: the validator rejects anything else.
type IntentType string

const (
	IntentMemoryWrite          IntentType = "memory_write"
	IntentTrustAdjustment      IntentType = "trust_signal"
	IntentModerationSuggestion IntentType = "moderation_suggestion"
	IntentPersonaMode          IntentType = "persona_mode"
	IntentGameEvent            IntentType = "game_event"
	IntentSelfEvaluation       IntentType = "self_evaluation"
)

// AllIntentTypes lists every recognized intent type.
var AllIntentTypes = []IntentType{
	IntentMemoryWrite,
	IntentTrustAdjustment,
	IntentModerationSuggestion,
	IntentPersonaMode,
	IntentGameEvent,
	IntentSelfEvaluation,
}

// IsValidIntentType reports whether t is one of the closed enumeration.
func IsValidIntentType(t IntentType) bool {
	for _, known := range AllIntentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// IntentStatus is the lifecycle state of an intent.
type IntentStatus string

const (
	StatusCreated      IntentStatus = "created"
	StatusPending      IntentStatus = "pending"
	StatusAutoApproved IntentStatus = "auto_approved"
	StatusApproved     IntentStatus = "approved"
	StatusExecuted     IntentStatus = "executed"
	StatusRejected     IntentStatus = "rejected"
	StatusExpired      IntentStatus = "expired"
	StatusError        IntentStatus = "error"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s IntentStatus) IsTerminal() bool {
	switch s {
	case StatusExecuted, StatusRejected, StatusExpired, StatusError:
		return true
	}
	return false
}

// IntentPayload is the type-specific portion of an intent. Exactly one
// concrete payload exists per intent type; fields legal for one type are
// structurally impossible for the others.
type IntentPayload interface {
	IntentType() IntentType
	// Fields returns the payload as a flat map for audit/safety inspection.
	Fields() map[string]any
}

// MemoryWritePayload proposes writing to the host's memory store.
type MemoryWritePayload struct {
	Scope   string `json:"scope"` // "event", "stream" or "global"
	Summary string `json:"summary"`
	Impact  string `json:"impact,omitempty"`
	Privacy string `json:"privacy,omitempty"`
}

func (p MemoryWritePayload) IntentType() IntentType { return IntentMemoryWrite }

func (p MemoryWritePayload) Fields() map[string]any {
	return map[string]any{"scope": p.Scope, "summary": p.Summary, "impact": p.Impact, "privacy": p.Privacy}
}

// TrustAdjustmentPayload proposes a trust-score delta for a viewer.
type TrustAdjustmentPayload struct {
	UserID string  `json:"userId"`
	Delta  float64 `json:"delta"` // within [-1, 1]
	Reason string  `json:"reason"`
}

func (p TrustAdjustmentPayload) IntentType() IntentType { return IntentTrustAdjustment }

func (p TrustAdjustmentPayload) Fields() map[string]any {
	return map[string]any{"userId": p.UserID, "delta": p.Delta, "reason": p.Reason}
}

// ModerationSuggestionPayload proposes a moderation action against a viewer.
type ModerationSuggestionPayload struct {
	UserID   string `json:"userId"`
	Severity string `json:"severity"` // "low", "medium", "high"
	Action   string `json:"action"`   // "shadow_ban", "rate_limit", "filter"
	Duration string `json:"duration,omitempty"`
	Evidence string `json:"evidence,omitempty"`
}

func (p ModerationSuggestionPayload) IntentType() IntentType { return IntentModerationSuggestion }

func (p ModerationSuggestionPayload) Fields() map[string]any {
	return map[string]any{"userId": p.UserID, "severity": p.Severity, "action": p.Action, "duration": p.Duration, "evidence": p.Evidence}
}

// PersonaModePayload proposes switching the host's personality mode.
type PersonaModePayload struct {
	Mode     string `json:"mode"`
	Reason   string `json:"reason"`
	Priority string `json:"priority,omitempty"`
}

func (p PersonaModePayload) IntentType() IntentType { return IntentPersonaMode }

func (p PersonaModePayload) Fields() map[string]any {
	return map[string]any{"mode": p.Mode, "reason": p.Reason, "priority": p.Priority}
}

// GameEventPayload announces a notable game moment (low risk).
type GameEventPayload struct {
	Event   string `json:"event"`
	Details string `json:"details,omitempty"`
}

func (p GameEventPayload) IntentType() IntentType { return IntentGameEvent }

func (p GameEventPayload) Fields() map[string]any {
	return map[string]any{"event": p.Event, "details": p.Details}
}

// SelfEvaluationPayload requests an evaluation of the host's own behavior
// (low risk).
type SelfEvaluationPayload struct {
	Aspect string `json:"aspect"`
	Notes  string `json:"notes,omitempty"`
}

func (p SelfEvaluationPayload) IntentType() IntentType { return IntentSelfEvaluation }

func (p SelfEvaluationPayload) Fields() map[string]any {
	return map[string]any{"aspect": p.Aspect, "notes": p.Notes}
}

// IntentDraft is a validated-but-unregistered intent: the output of the
// schema validator, the input of the factory.
type IntentDraft struct {
	Type          IntentType    `json:"type"`
	Confidence    float64       `json:"confidence"`
	Justification string        `json:"justification"`
	Reversible    bool          `json:"reversible"`
	TTL           time.Duration `json:"ttl"`
	Payload       IntentPayload `json:"payload"`
}

// Intent is a typed, identity-bearing proposal for a side effect. It is
// never itself a side effect.
type Intent struct {
	ID            string        `json:"id"`
	Type          IntentType    `json:"type"`
	Confidence    float64       `json:"confidence"`
	Justification string        `json:"justification"`
	Reversible    bool          `json:"reversible"`
	TTL           time.Duration `json:"ttl"`
	Payload       IntentPayload `json:"payload"`
	Status        IntentStatus  `json:"status"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	StatusMeta    map[string]any `json:"statusMeta,omitempty"`
}

// RequestContext carries caller-supplied context for approval decisions.
type RequestContext struct {
	Source     string `json:"source,omitempty"` // e.g. "twitch_chat", "game_loop"
	Role       string `json:"role,omitempty"`
	TrustLevel string `json:"trustLevel,omitempty"`
	UserID     string `json:"userId,omitempty"`
}

// PendingRecord wraps an intent awaiting operator approval. Removed on
// approval, rejection or expiry.
type PendingRecord struct {
	Intent     Intent         `json:"intent"`
	Context    RequestContext `json:"context"`
	EnqueuedAt time.Time      `json:"enqueuedAt"`
}
