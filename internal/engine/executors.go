package engine

import (
	"context"
	"fmt"
	"time"

	"acey/internal/models"
)

// Side-effect write contracts consumed by the executors. The concrete
// stores live in internal/stores; tests use fakes.

// MemoryWriter is the memory store's narrow write contract.
type MemoryWriter interface {
	AddSessionEvent(ctx context.Context, text string) error
	AddSessionMemory(ctx context.Context, key string, items []string) error
	AppendGlobal(ctx context.Context, summary string) error
}

// TrustWriter is the trust store's narrow write contract.
type TrustWriter interface {
	UpdateUserTrustScore(ctx context.Context, userID string, delta float64, reason string) (float64, error)
}

// ModerationWriter is the moderation store's narrow write contract.
type ModerationWriter interface {
	ShadowBanUser(ctx context.Context, userID string, duration time.Duration) error
	RateLimitUser(ctx context.Context, userID string, duration time.Duration) error
	FilterUserContent(ctx context.Context, userID string, duration time.Duration) error
}

// PersonaWriter is the persona store's narrow write contract.
type PersonaWriter interface {
	SetPersona(ctx context.Context, mode, reason string) error
}

// IntentExecutor performs the side effect one intent type proposes. When
// simulate is true the executor must not mutate anything and instead
// reports what it would have done.
type IntentExecutor interface {
	Execute(ctx context.Context, in models.Intent, simulate bool) (map[string]any, error)
}

// ExecutorRegistry maps intent types to executors.
type ExecutorRegistry struct {
	executors map[models.IntentType]IntentExecutor
}

// NewExecutorRegistry wires one executor per intent type.
func NewExecutorRegistry(
	memory MemoryWriter,
	trust TrustWriter,
	moderation ModerationWriter,
	persona PersonaWriter,
	notifier Notifier,
) *ExecutorRegistry {
	return &ExecutorRegistry{
		executors: map[models.IntentType]IntentExecutor{
			models.IntentMemoryWrite:          &memoryWriteExecutor{memory: memory},
			models.IntentTrustAdjustment:      &trustAdjustmentExecutor{trust: trust},
			models.IntentModerationSuggestion: &moderationExecutor{moderation: moderation},
			models.IntentPersonaMode:          &personaModeExecutor{persona: persona},
			models.IntentGameEvent:            &gameEventExecutor{notifier: notifier},
			models.IntentSelfEvaluation:       &selfEvaluationExecutor{memory: memory},
		},
	}
}

// Register replaces the executor for an intent type (used by tests).
func (r *ExecutorRegistry) Register(t models.IntentType, e IntentExecutor) {
	r.executors[t] = e
}

// Get returns the executor for an intent type.
func (r *ExecutorRegistry) Get(t models.IntentType) (IntentExecutor, bool) {
	e, ok := r.executors[t]
	return e, ok
}

type memoryWriteExecutor struct {
	memory MemoryWriter
}

func (e *memoryWriteExecutor) Execute(ctx context.Context, in models.Intent, simulate bool) (map[string]any, error) {
	p, ok := in.Payload.(models.MemoryWritePayload)
	if !ok {
		return nil, fmt.Errorf("memory write executor received %T payload", in.Payload)
	}

	if simulate {
		return map[string]any{"wouldWrite": p.Scope, "summary": p.Summary, "simulated": true}, nil
	}

	var err error
	switch p.Scope {
	case "event":
		err = e.memory.AddSessionEvent(ctx, p.Summary)
	case "stream":
		key := p.Impact
		if key == "" {
			key = "stream"
		}
		err = e.memory.AddSessionMemory(ctx, key, []string{p.Summary})
	case "global":
		err = e.memory.AppendGlobal(ctx, p.Summary)
	default:
		return nil, fmt.Errorf("unknown memory scope %q", p.Scope)
	}
	if err != nil {
		return nil, fmt.Errorf("memory write (%s) failed: %w", p.Scope, err)
	}
	return map[string]any{"scope": p.Scope, "written": true}, nil
}

type trustAdjustmentExecutor struct {
	trust TrustWriter
}

func (e *trustAdjustmentExecutor) Execute(ctx context.Context, in models.Intent, simulate bool) (map[string]any, error) {
	p, ok := in.Payload.(models.TrustAdjustmentPayload)
	if !ok {
		return nil, fmt.Errorf("trust executor received %T payload", in.Payload)
	}

	if simulate {
		return map[string]any{"userId": p.UserID, "wouldApplyDelta": p.Delta, "simulated": true}, nil
	}

	newScore, err := e.trust.UpdateUserTrustScore(ctx, p.UserID, p.Delta, p.Reason)
	if err != nil {
		return nil, fmt.Errorf("trust adjustment for %s failed: %w", p.UserID, err)
	}
	return map[string]any{"userId": p.UserID, "delta": p.Delta, "newScore": newScore}, nil
}

type moderationExecutor struct {
	moderation ModerationWriter
}

// defaultModerationDuration applies when the model proposed an action
// without a duration.
const defaultModerationDuration = 10 * time.Minute

func (e *moderationExecutor) Execute(ctx context.Context, in models.Intent, simulate bool) (map[string]any, error) {
	p, ok := in.Payload.(models.ModerationSuggestionPayload)
	if !ok {
		return nil, fmt.Errorf("moderation executor received %T payload", in.Payload)
	}

	duration := defaultModerationDuration
	if p.Duration != "" {
		parsed, err := time.ParseDuration(p.Duration)
		if err != nil {
			return nil, fmt.Errorf("invalid moderation duration %q: %w", p.Duration, err)
		}
		duration = parsed
	}

	if simulate {
		return map[string]any{"userId": p.UserID, "wouldApply": p.Action, "duration": duration.String(), "simulated": true}, nil
	}

	var err error
	switch p.Action {
	case "shadow_ban":
		err = e.moderation.ShadowBanUser(ctx, p.UserID, duration)
	case "rate_limit":
		err = e.moderation.RateLimitUser(ctx, p.UserID, duration)
	case "filter":
		err = e.moderation.FilterUserContent(ctx, p.UserID, duration)
	default:
		return nil, fmt.Errorf("unknown moderation action %q", p.Action)
	}
	if err != nil {
		return nil, fmt.Errorf("moderation action %s for %s failed: %w", p.Action, p.UserID, err)
	}
	return map[string]any{"userId": p.UserID, "action": p.Action, "duration": duration.String()}, nil
}

type personaModeExecutor struct {
	persona PersonaWriter
}

func (e *personaModeExecutor) Execute(ctx context.Context, in models.Intent, simulate bool) (map[string]any, error) {
	p, ok := in.Payload.(models.PersonaModePayload)
	if !ok {
		return nil, fmt.Errorf("persona executor received %T payload", in.Payload)
	}

	if simulate {
		return map[string]any{"wouldSetMode": p.Mode, "simulated": true}, nil
	}

	if err := e.persona.SetPersona(ctx, p.Mode, p.Reason); err != nil {
		return nil, fmt.Errorf("persona switch to %q failed: %w", p.Mode, err)
	}
	return map[string]any{"mode": p.Mode}, nil
}

type gameEventExecutor struct {
	notifier Notifier
}

func (e *gameEventExecutor) Execute(_ context.Context, in models.Intent, simulate bool) (map[string]any, error) {
	p, ok := in.Payload.(models.GameEventPayload)
	if !ok {
		return nil, fmt.Errorf("game event executor received %T payload", in.Payload)
	}

	if simulate {
		return map[string]any{"wouldAnnounce": p.Event, "simulated": true}, nil
	}

	if e.notifier != nil {
		e.notifier.Publish("game_event", map[string]any{
			"event":   p.Event,
			"details": p.Details,
		})
	}
	return map[string]any{"event": p.Event, "announced": true}, nil
}

type selfEvaluationExecutor struct {
	memory MemoryWriter
}

func (e *selfEvaluationExecutor) Execute(ctx context.Context, in models.Intent, simulate bool) (map[string]any, error) {
	p, ok := in.Payload.(models.SelfEvaluationPayload)
	if !ok {
		return nil, fmt.Errorf("self evaluation executor received %T payload", in.Payload)
	}

	if simulate {
		return map[string]any{"wouldEvaluate": p.Aspect, "simulated": true}, nil
	}

	note := p.Aspect
	if p.Notes != "" {
		note = p.Aspect + ": " + p.Notes
	}
	if err := e.memory.AddSessionMemory(ctx, "self_evaluation", []string{note}); err != nil {
		return nil, fmt.Errorf("self evaluation note failed: %w", err)
	}
	return map[string]any{"aspect": p.Aspect, "recorded": true}, nil
}
