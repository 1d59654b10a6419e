package validation

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"acey/internal/models"
)

// maxRecentErrors bounds the rolling validation error log.
const maxRecentErrors = 100

// Stats are the validator's running counters.
type Stats struct {
	ValidInputs    int64 `json:"validInputs"`
	InvalidInputs  int64 `json:"invalidInputs"`
	ValidOutputs   int64 `json:"validOutputs"`
	InvalidOutputs int64 `json:"invalidOutputs"`
	SpeechOnly     int64 `json:"speechOnly"`
	SkippedIntents int64 `json:"skippedIntents"`
}

// recordedError is one entry in the rolling error log.
type recordedError struct {
	At     time.Time           `json:"at"`
	Errors []models.FieldError `json:"errors"`
}

// Validator is the single gate no model output bypasses. Validation itself
// is pure; the only state here is statistics and the bounded error log.
type Validator struct {
	mu           sync.Mutex
	stats        Stats
	recentErrors []recordedError
}

// NewValidator creates a validator with empty statistics.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateOutput validates a raw model output in two sequential passes:
// structure first, then business rules. Output-level failures and the
// batch-rejecting global-memory rule reject the whole output; any other
// per-intent failure marks just that intent's review skipped and the
// output stays valid. Callers always receive a result object; nothing
// panics past this boundary.
func (v *Validator) ValidateOutput(output models.ModelOutput) (result models.ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			result = v.fail(output, []models.FieldError{{
				Field: "output", Rule: "structure",
				Message: fmt.Sprintf("internal validation failure: %v", r),
			}})
		}
	}()

	reviews, outputErrs := validateStructure(output)
	if len(outputErrs) > 0 {
		return v.fail(output, outputErrs)
	}

	if batchErrs := validateBusinessRules(reviews); len(batchErrs) > 0 {
		return v.fail(output, batchErrs)
	}

	var skipErrs []models.FieldError
	skipped := 0
	for _, review := range reviews {
		if review.Skipped() {
			skipped++
			skipErrs = append(skipErrs, review.Errors...)
		}
	}

	speechOnly := len(reviews) == 0
	v.mu.Lock()
	v.stats.ValidInputs++
	v.stats.ValidOutputs++
	v.stats.SkippedIntents += int64(skipped)
	if speechOnly {
		v.stats.SpeechOnly++
	}
	if len(skipErrs) > 0 {
		v.recordErrors(skipErrs)
	}
	v.mu.Unlock()

	if skipped > 0 {
		slog.Warn("intents skipped by validation", "skipped", skipped, "intents", len(reviews))
	}
	if speechOnly {
		// Permitted: the model chose to only speak. Logged, not an error.
		slog.Debug("speech-only model output accepted", "speech_len", len(output.Speech))
	}

	return models.ValidationResult{
		Valid:      true,
		Speech:     output.Speech,
		Reviews:    reviews,
		Errors:     skipErrs,
		SpeechOnly: speechOnly,
	}
}

// ValidateRaw parses raw JSON bytes and validates the result. A parse
// failure is a structural error like any other.
func (v *Validator) ValidateRaw(raw []byte) models.ValidationResult {
	var output models.ModelOutput
	if err := json.Unmarshal(raw, &output); err != nil {
		return v.fail(output, []models.FieldError{{
			Field: "output", Rule: "structure",
			Message: fmt.Sprintf("model output is not valid JSON: %v", err),
		}})
	}
	return v.ValidateOutput(output)
}

// recordErrors appends to the rolling error log. Caller holds v.mu.
func (v *Validator) recordErrors(errs []models.FieldError) {
	v.recentErrors = append(v.recentErrors, recordedError{At: time.Now(), Errors: errs})
	if len(v.recentErrors) > maxRecentErrors {
		v.recentErrors = v.recentErrors[len(v.recentErrors)-maxRecentErrors:]
	}
}

func (v *Validator) fail(output models.ModelOutput, errs []models.FieldError) models.ValidationResult {
	v.mu.Lock()
	v.stats.InvalidInputs++
	v.stats.InvalidOutputs++
	v.recordErrors(errs)
	v.mu.Unlock()

	return models.ValidationResult{
		Valid:   false,
		Speech:  output.Speech,
		Errors:  errs,
		Message: summarize(errs),
	}
}

// summarize produces the human-readable message accompanying the
// field-level detail.
func summarize(errs []models.FieldError) string {
	if len(errs) == 1 {
		return fmt.Sprintf("validation failed: %s: %s", errs[0].Field, errs[0].Message)
	}
	return fmt.Sprintf("validation failed with %d errors (first: %s: %s)",
		len(errs), errs[0].Field, errs[0].Message)
}

// Statistics returns a copy of the running counters.
func (v *Validator) Statistics() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stats
}

// RecentErrors returns a copy of the rolling error log, newest last.
func (v *Validator) RecentErrors() []models.FieldError {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []models.FieldError
	for _, rec := range v.recentErrors {
		out = append(out, rec.Errors...)
	}
	return out
}
