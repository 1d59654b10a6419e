package safety

import (
	"fmt"
	"regexp"
	"time"

	"acey/internal/models"

	"github.com/google/uuid"
)

const (
	maxTrustDelta         = 0.2
	maxModerationDuration = 24 * time.Hour
	memoryWritesPerMinute = 10
)

// Personal-data shaped substrings checked in global-scope memory writes.
// Heuristics, not a guarantee.
var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s\-().]{7,}\d`)
	ssnPattern   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
)

// CheckSafetyRules re-derives a safety opinion from raw event data,
// independently of whatever the engine's business validation concluded.
// The engine consults this before executing high-impact intents; LogAudit
// runs it unconditionally as a detective control.
func (s *System) CheckSafetyRules(operation string, data map[string]any) []models.SafetyEntry {
	return s.checkSafetyRules(operation, data, true)
}

// PreviewSafetyRules evaluates the same rules without consuming the
// memory-write rate window. Dry runs must not deplete the production
// write budget.
func (s *System) PreviewSafetyRules(operation string, data map[string]any) []models.SafetyEntry {
	return s.checkSafetyRules(operation, data, false)
}

func (s *System) checkSafetyRules(operation string, data map[string]any, consume bool) []models.SafetyEntry {
	var violations []models.SafetyEntry

	if delta, ok := numberField(data, "delta"); ok {
		if delta > maxTrustDelta || delta < -maxTrustDelta {
			violations = append(violations, newSafetyEntry(
				"trust_delta_exceeded",
				models.SeverityHigh,
				fmt.Sprintf("trust delta %v exceeds ±%v", delta, maxTrustDelta),
				[]string{"clamp delta", "require operator approval"},
			))
		}
	}

	if operation == "memory_write" || stringField(data, "intentType") == string(models.IntentMemoryWrite) {
		// The rate window is consumed on the engine's pre-execution check
		// only, so post-hoc audit logging does not double-count a write.
		// Previews peek at the available tokens instead.
		if operation == "memory_write" && !s.memoryRateOK(consume) {
			violations = append(violations, newSafetyEntry(
				"memory_write_rate_exceeded",
				models.SeverityCritical,
				fmt.Sprintf("memory writes exceed %d per minute", memoryWritesPerMinute),
				[]string{"drop write", "back off"},
			))
		}
		if stringField(data, "scope") == "global" {
			if pattern := personalDataPattern(stringField(data, "summary")); pattern != "" {
				violations = append(violations, newSafetyEntry(
					"personal_data_in_global_memory",
					models.SeverityCritical,
					fmt.Sprintf("global memory summary contains %s-shaped substring", pattern),
					[]string{"block write", "redact summary"},
				))
			}
		}
	}

	if durStr := stringField(data, "duration"); durStr != "" {
		if dur, err := time.ParseDuration(durStr); err == nil && dur > maxModerationDuration {
			violations = append(violations, newSafetyEntry(
				"moderation_duration_exceeded",
				models.SeverityHigh,
				fmt.Sprintf("moderation duration %v exceeds %v", dur, maxModerationDuration),
				[]string{"cap duration at 24h", "require operator approval"},
			))
		}
	}

	if len(violations) > 0 {
		s.recordSafetyEntries(violations)
	}
	return violations
}

// memoryRateOK reports whether a memory write fits the per-minute window.
// When consume is false only the token balance is inspected.
func (s *System) memoryRateOK(consume bool) bool {
	if consume {
		return s.memoryWriteWindow.Allow()
	}
	return s.memoryWriteWindow.Tokens() >= 1
}

// CheckCompliance evaluates the compliance ruling for one event. An event
// is compliant when it carries no critical safety violation and its data
// was sanitizable (always true once Sanitize ran).
func (s *System) CheckCompliance(eventType string, violations []models.SafetyEntry) models.ComplianceEntry {
	verdict := models.VerdictCompliant
	var reasons []string
	for _, v := range violations {
		if v.RiskLevel == models.SeverityCritical || v.RiskLevel == models.SeverityHigh {
			verdict = models.VerdictNonCompliant
			reasons = append(reasons, v.SafetyType)
		}
	}
	return models.ComplianceEntry{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		EventType: eventType,
		Verdict:   verdict,
		Reasons:   reasons,
	}
}

// HasCritical reports whether any violation in the slice is critical.
func HasCritical(violations []models.SafetyEntry) bool {
	for _, v := range violations {
		if v.RiskLevel == models.SeverityCritical {
			return true
		}
	}
	return false
}

func newSafetyEntry(safetyType string, risk models.Severity, description string, mitigations []string) models.SafetyEntry {
	return models.SafetyEntry{
		ID:          uuid.New().String(),
		Timestamp:   time.Now(),
		SafetyType:  safetyType,
		RiskLevel:   risk,
		Description: description,
		Mitigations: mitigations,
	}
}

func personalDataPattern(text string) string {
	if text == "" {
		return ""
	}
	if emailPattern.MatchString(text) {
		return "email"
	}
	if ssnPattern.MatchString(text) {
		return "ssn"
	}
	if phonePattern.MatchString(text) {
		return "phone"
	}
	return ""
}

func stringField(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func numberField(data map[string]any, key string) (float64, bool) {
	if data == nil {
		return 0, false
	}
	switch v := data[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}
