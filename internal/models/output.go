package models

import (
	"encoding/json"
	"time"
)

// ModelOutput is the raw, untrusted response from the language model.
// Intents are kept as raw JSON until the schema validator has looked at
// each one individually.
type ModelOutput struct {
	Speech  string            `json:"speech"`
	Intents []json.RawMessage `json:"intents,omitempty"`
}

// FieldError is a structured, field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"` // "structure" or "business"
	Message string `json:"message"`
}

// IntentReview is the validator's verdict on one intent in the batch,
// in array order. A non-empty Errors slice means this intent is skipped;
// its siblings still proceed.
type IntentReview struct {
	Index  int          `json:"index"`
	Type   IntentType   `json:"type,omitempty"`
	Draft  IntentDraft  `json:"-"`
	Errors []FieldError `json:"errors,omitempty"`
}

// Skipped reports whether this intent failed its per-intent checks.
func (r IntentReview) Skipped() bool { return len(r.Errors) > 0 }

// ValidationResult is what the schema validator returns. Callers always
// receive a result object; validation never panics past its boundary.
// Valid=false means the whole output was rejected (malformed JSON,
// output-level structure, or a batch-rejecting rule); per-intent
// failures leave Valid=true and mark the offending review skipped.
type ValidationResult struct {
	Valid      bool           `json:"valid"`
	Speech     string         `json:"speech,omitempty"`
	Reviews    []IntentReview `json:"-"`
	Errors     []FieldError   `json:"errors,omitempty"`
	Message    string         `json:"message,omitempty"`
	SpeechOnly bool           `json:"speechOnly,omitempty"`
}

// ProcessingStatus is the outcome class of a single intent's trip through
// the engine.
type ProcessingStatus string

const (
	ProcessingExecuted ProcessingStatus = "executed"
	ProcessingPending  ProcessingStatus = "pending"
	ProcessingRejected ProcessingStatus = "rejected"
	ProcessingBlocked  ProcessingStatus = "blocked"
	ProcessingError    ProcessingStatus = "error"
	ProcessingSkipped  ProcessingStatus = "skipped"
)

// ProcessingResult reports what happened to one intent.
type ProcessingResult struct {
	IntentID string           `json:"intentId,omitempty"`
	Type     IntentType       `json:"type,omitempty"`
	Status   ProcessingStatus `json:"status"`
	Reason   string           `json:"reason,omitempty"`
	Output   map[string]any   `json:"output,omitempty"`
}

// ProcessOutputResult is the engine's answer to one model output.
type ProcessOutputResult struct {
	Success bool               `json:"success"`
	Speech  string             `json:"speech"`
	Intents []Intent           `json:"intents"`
	Results []ProcessingResult `json:"results"`
	Errors  []FieldError       `json:"errors,omitempty"`
}

// ExecutionRecord is one entry in the engine's execution history.
type ExecutionRecord struct {
	IntentID     string           `json:"intentId"`
	Type         IntentType       `json:"type"`
	ApprovalType string           `json:"approvalType"` // "auto", "operator" or "simulation"
	Status       ProcessingStatus `json:"status"`
	Output       map[string]any   `json:"output,omitempty"`
	Error        string           `json:"error,omitempty"`
	Duration     time.Duration    `json:"duration"`
	ExecutedAt   time.Time        `json:"executedAt"`
}
