package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"acey/internal/intent"
	"acey/internal/logging"
	"acey/internal/models"
	"acey/internal/safety"
	"acey/internal/validation"
)

// Sentinel errors surfaced to the HTTP layer.
var (
	ErrIntentNotFound = errors.New("intent not found")
	ErrQueueFull      = errors.New("pending queue full")
)

// Queue capacity policies.
const (
	QueuePolicyReject = "reject" // refuse new intents at capacity
	QueuePolicyForce  = "force"  // enqueue anyway (unbounded growth risk)
)

// Low-risk intent types get a lower auto-approval bar.
const lowRiskAutoApproveFloor = 0.8

var lowRiskTypes = map[models.IntentType]bool{
	models.IntentGameEvent:      true,
	models.IntentSelfEvaluation: true,
}

// Notifier is the one-way outbound message port for operator consoles.
type Notifier interface {
	Publish(topic string, payload map[string]any)
}

// Config holds the engine's tunables.
type Config struct {
	AutoApproveThreshold float64       // default 0.9, inclusive
	SimulationMode       bool
	MaxPendingIntents    int           // default 50
	IntentTimeout        time.Duration // default 5m
	QueuePolicy          string        // QueuePolicyReject (default) or QueuePolicyForce
}

func (c Config) withDefaults() Config {
	if c.AutoApproveThreshold == 0 {
		c.AutoApproveThreshold = 0.9
	}
	if c.MaxPendingIntents == 0 {
		c.MaxPendingIntents = 50
	}
	if c.IntentTimeout == 0 {
		c.IntentTimeout = 5 * time.Minute
	}
	if c.QueuePolicy == "" {
		c.QueuePolicy = QueuePolicyReject
	}
	return c
}

// Statistics are the engine's running counters.
type Statistics struct {
	Processed        int64   `json:"processed"`
	AutoApproved     int64   `json:"autoApproved"`
	Approved         int64   `json:"approved"` // production executions, never simulations
	Rejected         int64   `json:"rejected"`
	Expired          int64   `json:"expired"`
	Blocked          int64   `json:"blocked"`
	Errors           int64   `json:"errors"`
	Pending          int     `json:"pending"`
	AvgProcessingMs  float64 `json:"avgProcessingMs"`
	executionSamples int64
}

// Engine orchestrates the end-to-end intent flow: validate, construct,
// auto-approve or queue, execute or wait, expire. It exclusively owns the
// pending queue and all lifecycle transitions.
type Engine struct {
	cfg       Config
	validator *validation.Validator
	registry  *intent.Registry
	executors *ExecutorRegistry
	safety    *safety.System
	notifier  Notifier

	mu         sync.Mutex
	pending    map[string]*models.PendingRecord
	stats      Statistics
	history    []models.ExecutionRecord
	simHistory []models.ExecutionRecord
}

const maxHistoryEntries = 1000

// New creates an engine. The safety system and notifier may be shared
// with other components; the pending queue and registry are owned here.
func New(cfg Config, validator *validation.Validator, registry *intent.Registry,
	executors *ExecutorRegistry, safetySystem *safety.System, notifier Notifier) *Engine {
	return &Engine{
		cfg:       cfg.withDefaults(),
		validator: validator,
		registry:  registry,
		executors: executors,
		safety:    safetySystem,
		notifier:  notifier,
		pending:   make(map[string]*models.PendingRecord),
	}
}

// Snapshot supplies the point-in-time state recorded with audit entries.
func (e *Engine) Snapshot() models.SystemSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return models.SystemSnapshot{
		PendingIntents: len(e.pending),
		TotalProcessed: e.stats.Processed,
		BlockedOps:     e.stats.Blocked,
		SimulationMode: e.cfg.SimulationMode,
		CapturedAt:     time.Now(),
	}
}

// ProcessOutput runs the full pipeline for one raw model output. A single
// bad intent is skipped and logged; it never aborts the batch.
func (e *Engine) ProcessOutput(ctx context.Context, raw []byte, reqCtx models.RequestContext) models.ProcessOutputResult {
	validated := e.validator.ValidateRaw(raw)
	if !validated.Valid {
		e.safety.LogAudit("output_rejected", map[string]any{
			"source":  reqCtx.Source,
			"message": validated.Message,
		}, models.SeverityLow)
		return models.ProcessOutputResult{
			Success: false,
			Speech:  validated.Speech,
			Errors:  validated.Errors,
		}
	}

	result := models.ProcessOutputResult{
		Success: true,
		Speech:  validated.Speech,
		Intents: make([]models.Intent, 0, len(validated.Reviews)),
		Results: make([]models.ProcessingResult, 0, len(validated.Reviews)),
		Errors:  validated.Errors,
	}

	skipped := 0
	for _, review := range validated.Reviews {
		if review.Skipped() {
			// Skip this intent, keep the batch going.
			skipped++
			slog.Warn("intent skipped by validation",
				"index", review.Index, "type", review.Type, "reason", review.Errors[0].Message)
			result.Results = append(result.Results, models.ProcessingResult{
				Type:   review.Type,
				Status: models.ProcessingSkipped,
				Reason: review.Errors[0].Message,
			})
			continue
		}
		in, err := intent.CreateIntent(review.Draft)
		if err != nil {
			skipped++
			slog.Warn("intent construction failed", "index", review.Index, "type", review.Type, "error", err)
			result.Results = append(result.Results, models.ProcessingResult{
				Type:   review.Type,
				Status: models.ProcessingSkipped,
				Reason: err.Error(),
			})
			continue
		}
		e.registry.Register(in)
		result.Intents = append(result.Intents, in)
		result.Results = append(result.Results, e.ProcessIntent(ctx, in, reqCtx))
	}

	e.safety.LogAudit("output_processed", map[string]any{
		"source":      reqCtx.Source,
		"intentCount": len(validated.Reviews),
		"skipped":     skipped,
		"speechOnly":  validated.SpeechOnly,
	}, models.SeverityInfo)

	return result
}

// shouldAutoApprove implements the confidence gate: the threshold is
// inclusive, low-risk types get a lower floor, and simulation mode
// approves everything (executions are non-mutating there).
func (e *Engine) shouldAutoApprove(in models.Intent) bool {
	if e.cfg.SimulationMode {
		return true
	}
	if in.Confidence >= e.cfg.AutoApproveThreshold {
		return true
	}
	return lowRiskTypes[in.Type] && in.Confidence >= lowRiskAutoApproveFloor
}

// ProcessIntent routes one constructed intent: auto-approve and execute,
// or enqueue for operator review.
func (e *Engine) ProcessIntent(ctx context.Context, in models.Intent, reqCtx models.RequestContext) models.ProcessingResult {
	e.mu.Lock()
	e.stats.Processed++
	e.mu.Unlock()

	if e.shouldAutoApprove(in) {
		if err := e.registry.UpdateStatus(in.ID, models.StatusAutoApproved, nil); err != nil {
			return models.ProcessingResult{IntentID: in.ID, Type: in.Type, Status: models.ProcessingError, Reason: err.Error()}
		}
		e.mu.Lock()
		e.stats.AutoApproved++
		e.mu.Unlock()
		in.Status = models.StatusAutoApproved
		return e.ExecuteIntent(ctx, in, "auto")
	}

	e.mu.Lock()
	atCapacity := len(e.pending) >= e.cfg.MaxPendingIntents
	if atCapacity && e.cfg.QueuePolicy == QueuePolicyReject {
		e.mu.Unlock()
		// Reject-new keeps the queue self-bounding; callers back off.
		_ = e.registry.UpdateStatus(in.ID, models.StatusPending, nil)
		_ = e.registry.UpdateStatus(in.ID, models.StatusRejected, map[string]any{"reason": ErrQueueFull.Error()})
		e.mu.Lock()
		e.stats.Rejected++
		e.mu.Unlock()
		return models.ProcessingResult{
			IntentID: in.ID, Type: in.Type,
			Status: models.ProcessingRejected,
			Reason: ErrQueueFull.Error(),
		}
	}
	record := &models.PendingRecord{Intent: in, Context: reqCtx, EnqueuedAt: time.Now()}
	e.pending[in.ID] = record
	pendingDepth := len(e.pending)
	e.mu.Unlock()

	if err := e.registry.UpdateStatus(in.ID, models.StatusPending, nil); err != nil {
		e.mu.Lock()
		delete(e.pending, in.ID)
		e.mu.Unlock()
		return models.ProcessingResult{IntentID: in.ID, Type: in.Type, Status: models.ProcessingError, Reason: err.Error()}
	}

	if e.notifier != nil {
		e.notifier.Publish("intent_pending", map[string]any{
			"intentId":      in.ID,
			"type":          string(in.Type),
			"confidence":    in.Confidence,
			"justification": in.Justification,
			"pendingDepth":  pendingDepth,
		})
	}

	return models.ProcessingResult{IntentID: in.ID, Type: in.Type, Status: models.ProcessingPending}
}

// ExecuteIntent dispatches one approved intent to its executor. The
// safety system is consulted first for high-impact intents; a flagged
// violation blocks execution outright. Executor failures are never
// retried.
func (e *Engine) ExecuteIntent(ctx context.Context, in models.Intent, approvalType string) models.ProcessingResult {
	simulate := e.cfg.SimulationMode || approvalType == "simulation"

	data := in.Payload.Fields()
	data["intentType"] = string(in.Type)
	data["confidence"] = in.Confidence

	if highImpact(in.Type) {
		// Dry runs must not consume the memory-write rate window.
		check := e.safety.CheckSafetyRules
		if simulate {
			check = e.safety.PreviewSafetyRules
		}
		violations := check(string(in.Type), data)
		if blocking(violations) {
			if approvalType == "simulation" {
				return e.recordSimulation(in, models.ProcessingBlocked, nil,
					fmt.Errorf("blocked by safety rules: %v", violationTypes(violations)))
			}
			return e.block(in, approvalType, violations)
		}
	}

	executor, ok := e.executors.Get(in.Type)
	if !ok {
		err := fmt.Errorf("no executor registered for intent type %q", in.Type)
		if approvalType == "simulation" {
			return e.recordSimulation(in, models.ProcessingError, nil, err)
		}
		return e.fail(in, approvalType, err)
	}

	started := time.Now()
	output, err := executor.Execute(ctx, in, simulate)
	duration := time.Since(started)
	e.safety.LogPerformance("execute_"+string(in.Type), duration)

	if err != nil {
		if approvalType == "simulation" {
			return e.recordSimulation(in, models.ProcessingError, nil, err)
		}
		return e.fail(in, approvalType, err)
	}

	if approvalType == "simulation" {
		// Simulations never touch the canonical history or the approved
		// counter, and the intent stays in whatever state it was.
		return e.recordSimulation(in, models.ProcessingExecuted, output, nil)
	}

	record := models.ExecutionRecord{
		IntentID:     in.ID,
		Type:         in.Type,
		ApprovalType: approvalType,
		Status:       models.ProcessingExecuted,
		Output:       output,
		Duration:     duration,
		ExecutedAt:   time.Now(),
	}

	if err := e.registry.UpdateStatus(in.ID, models.StatusExecuted, map[string]any{"approvalType": approvalType}); err != nil {
		logging.WithIntent(in.ID, string(in.Type)).Warn("status update after execution failed", "error", err)
	}

	e.mu.Lock()
	e.stats.Approved++
	e.stats.executionSamples++
	// Incremental mean keeps the running average without storing samples.
	ms := float64(duration.Milliseconds())
	e.stats.AvgProcessingMs += (ms - e.stats.AvgProcessingMs) / float64(e.stats.executionSamples)
	e.history = appendCapped(e.history, record)
	e.mu.Unlock()

	e.safety.LogAudit("intent_executed", data, models.SeverityInfo)

	if e.notifier != nil {
		e.notifier.Publish("intent_executed", map[string]any{
			"intentId":     in.ID,
			"type":         string(in.Type),
			"approvalType": approvalType,
			"output":       output,
			"durationMs":   duration.Milliseconds(),
		})
	}

	return models.ProcessingResult{IntentID: in.ID, Type: in.Type, Status: models.ProcessingExecuted, Output: output}
}

// recordSimulation stores a dry-run outcome in the simulation history.
// No lifecycle transition, no production counters, no notifications.
func (e *Engine) recordSimulation(in models.Intent, status models.ProcessingStatus, output map[string]any, simErr error) models.ProcessingResult {
	record := models.ExecutionRecord{
		IntentID:     in.ID,
		Type:         in.Type,
		ApprovalType: "simulation",
		Status:       status,
		Output:       output,
		ExecutedAt:   time.Now(),
	}
	result := models.ProcessingResult{IntentID: in.ID, Type: in.Type, Status: status, Output: output}
	if simErr != nil {
		record.Error = simErr.Error()
		result.Reason = simErr.Error()
	}

	e.mu.Lock()
	e.simHistory = appendCapped(e.simHistory, record)
	e.mu.Unlock()
	return result
}

func violationTypes(violations []models.SafetyEntry) []string {
	types := make([]string, len(violations))
	for i, v := range violations {
		types[i] = v.SafetyType
	}
	return types
}

// block marks an execution attempt vetoed by the safety system.
func (e *Engine) block(in models.Intent, approvalType string, violations []models.SafetyEntry) models.ProcessingResult {
	reasons := make([]string, len(violations))
	for i, v := range violations {
		reasons[i] = v.SafetyType
	}

	if err := e.registry.UpdateStatus(in.ID, models.StatusError, map[string]any{
		"blocked": true, "violations": reasons,
	}); err != nil {
		logging.WithIntent(in.ID, string(in.Type)).Warn("status update after block failed", "error", err)
	}

	e.mu.Lock()
	e.stats.Blocked++
	e.history = appendCapped(e.history, models.ExecutionRecord{
		IntentID:     in.ID,
		Type:         in.Type,
		ApprovalType: approvalType,
		Status:       models.ProcessingBlocked,
		Error:        fmt.Sprintf("blocked by safety rules: %v", reasons),
		ExecutedAt:   time.Now(),
	})
	e.mu.Unlock()

	e.safety.LogAudit("intent_blocked", map[string]any{
		"intentId":   in.ID,
		"intentType": string(in.Type),
		"violations": reasons,
	}, models.SeverityHigh)

	if e.notifier != nil {
		e.notifier.Publish("operation_blocked", map[string]any{
			"intentId":   in.ID,
			"type":       string(in.Type),
			"violations": reasons,
		})
	}

	return models.ProcessingResult{
		IntentID: in.ID, Type: in.Type,
		Status: models.ProcessingBlocked,
		Reason: fmt.Sprintf("blocked by safety rules: %v", reasons),
	}
}

// fail marks an execution attempt that errored. Not retried.
func (e *Engine) fail(in models.Intent, approvalType string, execErr error) models.ProcessingResult {
	if err := e.registry.UpdateStatus(in.ID, models.StatusError, map[string]any{"error": execErr.Error()}); err != nil {
		logging.WithIntent(in.ID, string(in.Type)).Warn("status update after execution error failed", "error", err)
	}

	e.mu.Lock()
	e.stats.Errors++
	e.history = appendCapped(e.history, models.ExecutionRecord{
		IntentID:     in.ID,
		Type:         in.Type,
		ApprovalType: approvalType,
		Status:       models.ProcessingError,
		Error:        execErr.Error(),
		ExecutedAt:   time.Now(),
	})
	e.mu.Unlock()

	e.safety.LogAudit("intent_execution_error", map[string]any{
		"intentId":   in.ID,
		"intentType": string(in.Type),
		"error":      execErr.Error(),
	}, models.SeverityMedium)

	if e.notifier != nil {
		e.notifier.Publish("intent_executed", map[string]any{
			"intentId":     in.ID,
			"type":         string(in.Type),
			"approvalType": approvalType,
			"error":        execErr.Error(),
		})
	}

	return models.ProcessingResult{IntentID: in.ID, Type: in.Type, Status: models.ProcessingError, Reason: execErr.Error()}
}

// ApproveIntent is the operator-driven transition out of pending. It
// always proceeds to execution.
func (e *Engine) ApproveIntent(ctx context.Context, id string) (models.ProcessingResult, error) {
	e.mu.Lock()
	record, ok := e.pending[id]
	if ok {
		delete(e.pending, id)
	}
	e.mu.Unlock()
	if !ok {
		return models.ProcessingResult{}, fmt.Errorf("%w: %s", ErrIntentNotFound, id)
	}

	if err := e.registry.UpdateStatus(id, models.StatusApproved, nil); err != nil {
		return models.ProcessingResult{}, err
	}

	in := record.Intent
	in.Status = models.StatusApproved
	return e.ExecuteIntent(ctx, in, "operator"), nil
}

// RejectIntent removes a pending intent without ever calling an executor.
// Rejecting an id that is not pending (already decided, expired or
// unknown) returns a not-found error, never a silent success.
func (e *Engine) RejectIntent(id, reason string) error {
	e.mu.Lock()
	_, ok := e.pending[id]
	if ok {
		delete(e.pending, id)
	}
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrIntentNotFound, id)
	}

	if err := e.registry.UpdateStatus(id, models.StatusRejected, map[string]any{"reason": reason}); err != nil {
		return err
	}

	e.mu.Lock()
	e.stats.Rejected++
	e.mu.Unlock()

	e.safety.LogAudit("intent_rejected", map[string]any{"intentId": id, "reason": reason}, models.SeverityInfo)

	if e.notifier != nil {
		e.notifier.Publish("intent_rejected", map[string]any{"intentId": id, "reason": reason})
	}
	return nil
}

// SimulateIntent dry-runs a pending intent. The pending record stays in
// the queue and no lifecycle transition happens; results land in the
// simulation history only.
func (e *Engine) SimulateIntent(ctx context.Context, id string) (models.ProcessingResult, error) {
	e.mu.Lock()
	record, ok := e.pending[id]
	e.mu.Unlock()
	if !ok {
		return models.ProcessingResult{}, fmt.Errorf("%w: %s", ErrIntentNotFound, id)
	}
	return e.ExecuteIntent(ctx, record.Intent, "simulation"), nil
}

// ExpirePending sweeps the queue: anything older than the intent timeout
// is auto-rejected with a structured reason, exactly once. Returns the
// number of expired intents.
func (e *Engine) ExpirePending() int {
	cutoff := time.Now().Add(-e.cfg.IntentTimeout)

	e.mu.Lock()
	var expired []*models.PendingRecord
	for id, record := range e.pending {
		if record.EnqueuedAt.Before(cutoff) {
			expired = append(expired, record)
			delete(e.pending, id)
		}
	}
	e.stats.Expired += int64(len(expired))
	e.mu.Unlock()

	for _, record := range expired {
		id := record.Intent.ID
		if err := e.registry.UpdateStatus(id, models.StatusExpired, map[string]any{"reason": "Intent expired"}); err != nil {
			logging.WithIntent(id, string(record.Intent.Type)).Warn("expiry status update failed", "error", err)
		}
		e.safety.LogAudit("intent_expired", map[string]any{
			"intentId":   id,
			"intentType": string(record.Intent.Type),
			"enqueuedAt": record.EnqueuedAt,
		}, models.SeverityInfo)
		if e.notifier != nil {
			e.notifier.Publish("intent_rejected", map[string]any{
				"intentId": id,
				"reason":   "Intent expired",
				"expired":  true,
			})
		}
	}

	return len(expired)
}

// GetPendingIntents returns the queue ordered by enqueue time.
func (e *Engine) GetPendingIntents() []models.PendingRecord {
	e.mu.Lock()
	out := make([]models.PendingRecord, 0, len(e.pending))
	for _, record := range e.pending {
		out = append(out, *record)
	}
	e.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].EnqueuedAt.Before(out[j].EnqueuedAt) })
	return out
}

// GetStatistics returns a copy of the running counters.
func (e *Engine) GetStatistics() Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()
	stats := e.stats
	stats.Pending = len(e.pending)
	return stats
}

// SimulationHistory returns a copy of the simulation-only results.
func (e *Engine) SimulationHistory() []models.ExecutionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.ExecutionRecord, len(e.simHistory))
	copy(out, e.simHistory)
	return out
}

func highImpact(t models.IntentType) bool {
	switch t {
	case models.IntentMemoryWrite, models.IntentTrustAdjustment, models.IntentModerationSuggestion:
		return true
	}
	return false
}

// blocking reports whether violations warrant a pre-emptive block: high
// and critical both block here, while post-hoc audit logging only flags
// critical ones.
func blocking(violations []models.SafetyEntry) bool {
	for _, v := range violations {
		if v.RiskLevel == models.SeverityHigh || v.RiskLevel == models.SeverityCritical {
			return true
		}
	}
	return false
}

func appendCapped(history []models.ExecutionRecord, record models.ExecutionRecord) []models.ExecutionRecord {
	history = append(history, record)
	if len(history) > maxHistoryEntries {
		history = history[len(history)-maxHistoryEntries:]
	}
	return history
}
