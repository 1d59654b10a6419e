package safety

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"acey/internal/models"
)

// capturingNotifier records every published topic and payload.
type capturingNotifier struct {
	mu     sync.Mutex
	topics []string
	last   map[string]map[string]any
}

func newCapturingNotifier() *capturingNotifier {
	return &capturingNotifier{last: make(map[string]map[string]any)}
}

func (n *capturingNotifier) Publish(topic string, payload map[string]any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.topics = append(n.topics, topic)
	n.last[topic] = payload
}

func (n *capturingNotifier) has(topic string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, t := range n.topics {
		if t == topic {
			return true
		}
	}
	return false
}

func newTestSystem() (*System, *capturingNotifier) {
	notifier := newCapturingNotifier()
	return NewSystem(Options{Notifier: notifier}), notifier
}

func hasViolation(violations []models.SafetyEntry, safetyType string) bool {
	for _, v := range violations {
		if v.SafetyType == safetyType {
			return true
		}
	}
	return false
}

// ---- Sanitization ----

func TestSanitize_RedactsSensitiveKeys(t *testing.T) {
	data := map[string]any{
		"userId":       "viewer-1",
		"password":     "hunter2",
		"apiKey":       "sk-123",
		"accessToken":  "tok-456",
		"clientSecret": "shh",
	}

	clean := Sanitize(data)

	if clean["userId"] != "viewer-1" {
		t.Errorf("benign key altered: %v", clean["userId"])
	}
	for _, key := range []string{"password", "apiKey", "accessToken", "clientSecret"} {
		if clean[key] != Redacted {
			t.Errorf("%s = %v, want %s", key, clean[key], Redacted)
		}
	}
	if data["password"] != "hunter2" {
		t.Error("Sanitize mutated the caller's map")
	}
}

func TestSanitize_RecursesIntoNestedStructures(t *testing.T) {
	data := map[string]any{
		"details": map[string]any{"sessionToken": "abc"},
		"items": []any{
			map[string]any{"password": "nested"},
			"plain string",
		},
	}

	clean := Sanitize(data)

	nested := clean["details"].(map[string]any)
	if nested["sessionToken"] != Redacted {
		t.Errorf("nested token not redacted: %v", nested["sessionToken"])
	}
	items := clean["items"].([]any)
	if items[0].(map[string]any)["password"] != Redacted {
		t.Error("password inside slice not redacted")
	}
	if items[1] != "plain string" {
		t.Errorf("plain slice element altered: %v", items[1])
	}

	// Deep copy: mutating the copy must not reach the original.
	nested["extra"] = "added"
	if _, ok := data["details"].(map[string]any)["extra"]; ok {
		t.Error("sanitized copy shares structure with the original")
	}
}

func TestSanitize_NilPassthrough(t *testing.T) {
	if Sanitize(nil) != nil {
		t.Error("Sanitize(nil) should return nil")
	}
}

// ---- Safety rules ----

func TestCheckSafetyRules_TrustDelta(t *testing.T) {
	s, _ := newTestSystem()

	for _, tc := range []struct {
		delta float64
		want  bool
	}{
		{0.15, false},
		{0.2, false},
		{0.25, true},
		{-0.3, true},
	} {
		violations := s.CheckSafetyRules("trust_signal", map[string]any{"delta": tc.delta})
		if got := hasViolation(violations, "trust_delta_exceeded"); got != tc.want {
			t.Errorf("delta %v: flagged = %v, want %v", tc.delta, got, tc.want)
		}
	}
}

func TestCheckSafetyRules_ModerationDuration(t *testing.T) {
	s, _ := newTestSystem()

	violations := s.CheckSafetyRules("moderation_suggestion", map[string]any{"duration": "48h"})
	if !hasViolation(violations, "moderation_duration_exceeded") {
		t.Error("48h moderation not flagged")
	}

	violations = s.CheckSafetyRules("moderation_suggestion", map[string]any{"duration": "12h"})
	if hasViolation(violations, "moderation_duration_exceeded") {
		t.Error("12h moderation flagged")
	}
}

func TestCheckSafetyRules_MemoryWriteRate(t *testing.T) {
	s, _ := newTestSystem()

	data := map[string]any{"scope": "event", "summary": "another hand played"}
	for i := 0; i < memoryWritesPerMinute; i++ {
		if violations := s.CheckSafetyRules("memory_write", data); hasViolation(violations, "memory_write_rate_exceeded") {
			t.Fatalf("write %d inside the window flagged", i+1)
		}
	}

	violations := s.CheckSafetyRules("memory_write", data)
	if !hasViolation(violations, "memory_write_rate_exceeded") {
		t.Fatalf("write %d not flagged", memoryWritesPerMinute+1)
	}
	for _, v := range violations {
		if v.SafetyType == "memory_write_rate_exceeded" && v.RiskLevel != models.SeverityCritical {
			t.Errorf("rate violation risk = %s, want critical", v.RiskLevel)
		}
	}
}

func TestPreviewSafetyRules_LeavesRateWindowIntact(t *testing.T) {
	s, _ := newTestSystem()

	// Previews beyond the per-minute budget never consume it.
	data := map[string]any{"scope": "event", "summary": "another hand played"}
	for i := 0; i < memoryWritesPerMinute+5; i++ {
		if violations := s.PreviewSafetyRules("memory_write", data); hasViolation(violations, "memory_write_rate_exceeded") {
			t.Fatalf("preview %d flagged on an untouched window", i+1)
		}
	}

	// The full production budget is still available afterwards.
	for i := 0; i < memoryWritesPerMinute; i++ {
		if violations := s.CheckSafetyRules("memory_write", data); hasViolation(violations, "memory_write_rate_exceeded") {
			t.Fatalf("write %d flagged after previews only", i+1)
		}
	}
}

func TestCheckSafetyRules_PersonalDataInGlobalMemory(t *testing.T) {
	s, _ := newTestSystem()

	cases := []struct {
		name    string
		summary string
		want    bool
	}{
		{"email", "reach me at someone@example.com for a rematch", true},
		{"ssn", "wrote down 123-45-6789 on a napkin", true},
		{"phone", "call +1 415-555-0199 after the stream", true},
		{"clean", "bluffing on paired boards worked twice tonight", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			violations := s.CheckSafetyRules("memory_write", map[string]any{
				"scope":   "global",
				"summary": tc.summary,
			})
			if got := hasViolation(violations, "personal_data_in_global_memory"); got != tc.want {
				t.Errorf("flagged = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCheckSafetyRules_ScopedToGlobalOnly(t *testing.T) {
	s, _ := newTestSystem()
	violations := s.CheckSafetyRules("memory_write", map[string]any{
		"scope":   "event",
		"summary": "someone@example.com typed their address in chat",
	})
	if hasViolation(violations, "personal_data_in_global_memory") {
		t.Error("event-scope write flagged by the global-memory rule")
	}
}

// ---- Compliance ----

func TestCheckCompliance(t *testing.T) {
	s, _ := newTestSystem()

	clean := s.CheckCompliance("intent_executed", nil)
	if clean.Verdict != models.VerdictCompliant {
		t.Errorf("verdict = %s, want compliant", clean.Verdict)
	}

	dirty := s.CheckCompliance("intent_executed", []models.SafetyEntry{
		newSafetyEntry("trust_delta_exceeded", models.SeverityHigh, "", nil),
	})
	if dirty.Verdict != models.VerdictNonCompliant {
		t.Errorf("verdict = %s, want non_compliant", dirty.Verdict)
	}
	if len(dirty.Reasons) != 1 || dirty.Reasons[0] != "trust_delta_exceeded" {
		t.Errorf("reasons = %v", dirty.Reasons)
	}
}

// ---- Audit logging ----

func TestLogAudit_SanitizesBeforePersisting(t *testing.T) {
	s, _ := newTestSystem()

	entry := s.LogAudit("intent_executed", map[string]any{
		"userId":   "viewer-1",
		"password": "hunter2",
	}, models.SeverityInfo)

	if entry.Data["password"] != Redacted {
		t.Errorf("audit entry kept the raw password: %v", entry.Data["password"])
	}
	stored := s.AuditEntries()
	if len(stored) != 1 || stored[0].Data["password"] != Redacted {
		t.Error("stored audit entry kept the raw password")
	}
}

func TestLogAudit_CriticalViolationBlocksAndAlerts(t *testing.T) {
	s, notifier := newTestSystem()

	entry := s.LogAudit("memory_write", map[string]any{
		"scope":   "global",
		"summary": "viewer lives at someone@example.com",
	}, models.SeverityInfo)

	if !entry.Blocked {
		t.Error("critical violation did not mark the entry blocked")
	}
	if entry.Verdict != models.VerdictNonCompliant {
		t.Errorf("verdict = %s, want non_compliant", entry.Verdict)
	}
	if !notifier.has("safety_alert") {
		t.Error("no safety_alert published")
	}
	if s.Statistics().BlockedOperations != 1 {
		t.Errorf("BlockedOperations = %d, want 1", s.Statistics().BlockedOperations)
	}
}

func TestLogAudit_BenignEventCompliant(t *testing.T) {
	s, notifier := newTestSystem()

	entry := s.LogAudit("intent_executed", map[string]any{"event": "pot_won"}, models.SeverityInfo)

	if entry.Blocked {
		t.Error("benign event marked blocked")
	}
	if notifier.has("safety_alert") {
		t.Error("safety_alert published for a benign event")
	}
	if !notifier.has("audit_event") {
		t.Error("audit_event not published")
	}
}

func TestStatistics_ComplianceRate(t *testing.T) {
	s, _ := newTestSystem()

	for i := 0; i < 3; i++ {
		s.LogAudit("intent_executed", map[string]any{"event": fmt.Sprintf("hand_%d", i)}, models.SeverityInfo)
	}
	s.LogAudit("trust_signal", map[string]any{"delta": 0.5}, models.SeverityInfo)

	stats := s.Statistics()
	if stats.ComplianceViolations != 1 {
		t.Errorf("ComplianceViolations = %d, want 1", stats.ComplianceViolations)
	}
	if stats.ComplianceRate != 0.75 {
		t.Errorf("ComplianceRate = %v, want 0.75", stats.ComplianceRate)
	}
	if stats.HighRiskEvents != 1 {
		t.Errorf("HighRiskEvents = %d, want 1", stats.HighRiskEvents)
	}
}

func TestLogCompliance_CountsTowardRate(t *testing.T) {
	s, _ := newTestSystem()

	s.LogCompliance(models.ComplianceEntry{
		EventType: "manual_review",
		Verdict:   models.VerdictCompliant,
	})
	s.LogCompliance(models.ComplianceEntry{
		EventType: "manual_review",
		Verdict:   models.VerdictNonCompliant,
		Reasons:   []string{"trust_delta_exceeded"},
	})

	stats := s.Statistics()
	if stats.ComplianceViolations != 1 {
		t.Errorf("ComplianceViolations = %d, want 1", stats.ComplianceViolations)
	}
	if stats.ComplianceRate != 0.5 {
		t.Errorf("ComplianceRate = %v, want 0.5", stats.ComplianceRate)
	}
}

func TestResolveSafety(t *testing.T) {
	s, _ := newTestSystem()
	s.LogSafety(models.SafetyEntry{SafetyType: "manual_flag", RiskLevel: models.SeverityMedium})

	entries := s.SafetyEntries()
	if len(entries) != 1 || entries[0].Resolved {
		t.Fatalf("unexpected safety log: %+v", entries)
	}

	if !s.ResolveSafety(entries[0].ID) {
		t.Fatal("ResolveSafety failed for a known id")
	}
	if s.ResolveSafety("missing") {
		t.Error("ResolveSafety succeeded for an unknown id")
	}
	if !s.SafetyEntries()[0].Resolved {
		t.Error("resolved flag not persisted")
	}
	if s.Statistics().UnresolvedSafety != 0 {
		t.Errorf("UnresolvedSafety = %d, want 0", s.Statistics().UnresolvedSafety)
	}
}

func TestCleanup_DropsEntriesPastRetention(t *testing.T) {
	s := NewSystem(Options{Retention: time.Hour})

	s.LogSafety(models.SafetyEntry{
		SafetyType: "stale_flag",
		RiskLevel:  models.SeverityLow,
		Timestamp:  time.Now().Add(-2 * time.Hour),
	})
	s.LogSafety(models.SafetyEntry{
		SafetyType: "fresh_flag",
		RiskLevel:  models.SeverityLow,
	})

	if removed := s.Cleanup(); removed != 1 {
		t.Errorf("Cleanup removed %d entries, want 1", removed)
	}
	entries := s.SafetyEntries()
	if len(entries) != 1 || entries[0].SafetyType != "fresh_flag" {
		t.Errorf("remaining entries: %+v", entries)
	}
}

func TestCleanup_SweepsOutOfOrderTimestamps(t *testing.T) {
	s := NewSystem(Options{Retention: time.Hour})

	// LogSafety takes caller-supplied timestamps, so a stale entry can
	// land behind a fresh one. It must still be swept.
	s.LogSafety(models.SafetyEntry{
		SafetyType: "fresh_flag",
		RiskLevel:  models.SeverityLow,
	})
	s.LogSafety(models.SafetyEntry{
		SafetyType: "stale_flag",
		RiskLevel:  models.SeverityLow,
		Timestamp:  time.Now().Add(-2 * time.Hour),
	})

	if removed := s.Cleanup(); removed != 1 {
		t.Errorf("Cleanup removed %d entries, want 1", removed)
	}
	entries := s.SafetyEntries()
	if len(entries) != 1 || entries[0].SafetyType != "fresh_flag" {
		t.Errorf("remaining entries: %+v", entries)
	}
}
