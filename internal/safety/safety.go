package safety

import (
	"log/slog"
	"sync"
	"time"

	"acey/internal/models"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	maxAuditEntries       = 1000
	maxSafetyEntries      = 500
	maxComplianceEntries  = 500
	maxPerformanceEntries = 500
)

// Notifier is the one-way outbound message port. Implementations fan the
// payload out to operator consoles; test doubles just capture it.
type Notifier interface {
	Publish(topic string, payload map[string]any)
}

// SnapshotFunc supplies the point-in-time system-state snapshot recorded
// with every audit entry. The engine provides it at wiring time.
type SnapshotFunc func() models.SystemSnapshot

// System is the safety audit subsystem. It owns its four logs exclusively
// and re-derives its own safety opinion from raw event data, so a bug in
// the engine's business rules cannot silently bypass it. It can flag an
// operation as blocked but never mutates engine-owned queue state.
type System struct {
	mu sync.Mutex

	auditLog       []models.AuditEntry
	safetyLog      []models.SafetyEntry
	complianceLog  []models.ComplianceEntry
	performanceLog []models.PerformanceEntry

	blockedOps           int64
	highRiskEvents       int64
	complianceViolations int64
	compliantOps         int64
	totalOps             int64

	memoryWriteWindow *rate.Limiter
	retention         time.Duration
	snapshot          SnapshotFunc
	notifier          Notifier
	journal           *Journal // optional durable mirror
}

// Options configures the safety system.
type Options struct {
	Retention time.Duration // entries older than this are swept (default 30 days)
	Snapshot  SnapshotFunc
	Notifier  Notifier
	Journal   *Journal
}

// NewSystem creates a safety audit system.
func NewSystem(opts Options) *System {
	retention := opts.Retention
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	snapshot := opts.Snapshot
	if snapshot == nil {
		snapshot = func() models.SystemSnapshot { return models.SystemSnapshot{CapturedAt: time.Now()} }
	}
	return &System{
		memoryWriteWindow: rate.NewLimiter(rate.Every(time.Minute/memoryWritesPerMinute), memoryWritesPerMinute),
		retention:         retention,
		snapshot:          snapshot,
		notifier:          opts.Notifier,
		journal:           opts.Journal,
	}
}

// SetSnapshot wires the system-state snapshot source. Used at startup
// because the engine is constructed after the safety system.
func (s *System) SetSnapshot(fn SnapshotFunc) {
	if fn != nil {
		s.snapshot = fn
	}
}

// LogAudit records one operation. Safety and compliance checks always run
// as part of logging, never as an optional step. A critical violation
// marks the entry blocked post-hoc and raises a safety_alert; at this call
// site that is a detective control — callers executing high-impact intents
// are expected to consult CheckSafetyRules beforehand.
func (s *System) LogAudit(eventType string, data map[string]any, severity models.Severity) models.AuditEntry {
	sanitized := Sanitize(data)

	violations := s.CheckSafetyRules(eventType, sanitized)
	compliance := s.CheckCompliance(eventType, violations)
	blocked := HasCritical(violations)

	entry := models.AuditEntry{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		EventType: eventType,
		Severity:  severity,
		Data:      sanitized,
		Snapshot:  s.snapshot(),
		Verdict:   compliance.Verdict,
		Blocked:   blocked,
	}

	s.mu.Lock()
	s.auditLog = appendCapped(s.auditLog, entry, maxAuditEntries)
	s.complianceLog = appendCapped(s.complianceLog, compliance, maxComplianceEntries)
	s.totalOps++
	if compliance.Verdict == models.VerdictCompliant {
		s.compliantOps++
	} else {
		s.complianceViolations++
	}
	if blocked {
		s.blockedOps++
	}
	s.mu.Unlock()

	if s.journal != nil {
		if err := s.journal.Append(entry); err != nil {
			slog.Warn("audit journal append failed", "error", err, "entry_id", entry.ID)
		}
	}

	if blocked && s.notifier != nil {
		s.notifier.Publish("safety_alert", map[string]any{
			"eventType": eventType,
			"auditId":   entry.ID,
			"severity":  string(models.SeverityCritical),
			"violations": violationTypes(violations),
		})
	}
	if s.notifier != nil {
		s.notifier.Publish("audit_event", map[string]any{
			"auditId":   entry.ID,
			"eventType": eventType,
			"severity":  string(severity),
			"verdict":   string(compliance.Verdict),
			"blocked":   blocked,
		})
	}

	return entry
}

// recordSafetyEntries appends detected violations to the safety log and
// updates the high-risk counter. Called from CheckSafetyRules.
func (s *System) recordSafetyEntries(violations []models.SafetyEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range violations {
		s.safetyLog = appendCapped(s.safetyLog, v, maxSafetyEntries)
		if v.RiskLevel == models.SeverityHigh || v.RiskLevel == models.SeverityCritical {
			s.highRiskEvents++
		}
	}
}

// LogSafety records an externally detected violation.
func (s *System) LogSafety(entry models.SafetyEntry) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	s.recordSafetyEntries([]models.SafetyEntry{entry})
}

// ResolveSafety flips the resolved flag on one safety entry. The flag is
// mutated only here and by auto-mitigation.
func (s *System) ResolveSafety(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.safetyLog {
		if s.safetyLog[i].ID == id {
			s.safetyLog[i].Resolved = true
			return true
		}
	}
	return false
}

// LogCompliance records a compliance ruling produced outside LogAudit
// and folds it into the compliance-rate counters.
func (s *System) LogCompliance(entry models.ComplianceEntry) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.complianceLog = appendCapped(s.complianceLog, entry, maxComplianceEntries)
	s.totalOps++
	if entry.Verdict == models.VerdictCompliant {
		s.compliantOps++
	} else {
		s.complianceViolations++
	}
}

// LogPerformance records one timed operation.
func (s *System) LogPerformance(operation string, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.performanceLog = appendCapped(s.performanceLog, models.PerformanceEntry{
		Timestamp: time.Now(),
		Operation: operation,
		Duration:  duration,
	}, maxPerformanceEntries)
}

// Cleanup drops entries older than the retention window from all four
// logs. Run periodically by the job scheduler.
func (s *System) Cleanup() int {
	cutoff := time.Now().Add(-s.retention)
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	s.auditLog, removed = trimOlder(s.auditLog, cutoff, func(e models.AuditEntry) time.Time { return e.Timestamp }, removed)
	s.safetyLog, removed = trimOlder(s.safetyLog, cutoff, func(e models.SafetyEntry) time.Time { return e.Timestamp }, removed)
	s.complianceLog, removed = trimOlder(s.complianceLog, cutoff, func(e models.ComplianceEntry) time.Time { return e.Timestamp }, removed)
	s.performanceLog, removed = trimOlder(s.performanceLog, cutoff, func(e models.PerformanceEntry) time.Time { return e.Timestamp }, removed)
	return removed
}

// Statistics returns a read-only snapshot of the counters.
func (s *System) Statistics() models.SafetyStatistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	rate := 1.0
	if s.totalOps > 0 {
		rate = float64(s.compliantOps) / float64(s.totalOps)
	}
	unresolved := 0
	for _, v := range s.safetyLog {
		if !v.Resolved {
			unresolved++
		}
	}
	return models.SafetyStatistics{
		AuditEntries:         len(s.auditLog),
		BlockedOperations:    s.blockedOps,
		HighRiskEvents:       s.highRiskEvents,
		ComplianceViolations: s.complianceViolations,
		ComplianceRate:       rate,
		UnresolvedSafety:     unresolved,
	}
}

// AuditEntries returns a copy of the in-memory audit ring, oldest first.
func (s *System) AuditEntries() []models.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AuditEntry, len(s.auditLog))
	copy(out, s.auditLog)
	return out
}

// SafetyEntries returns a copy of the safety log, oldest first.
func (s *System) SafetyEntries() []models.SafetyEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SafetyEntry, len(s.safetyLog))
	copy(out, s.safetyLog)
	return out
}

func violationTypes(violations []models.SafetyEntry) []string {
	types := make([]string, len(violations))
	for i, v := range violations {
		types[i] = v.SafetyType
	}
	return types
}

func appendCapped[T any](log []T, entry T, max int) []T {
	log = append(log, entry)
	if len(log) > max {
		log = log[len(log)-max:]
	}
	return log
}

// trimOlder filters every entry, not just a sorted prefix: callers may
// supply out-of-order timestamps via LogSafety, and a stale entry behind
// a fresh one must still be swept.
func trimOlder[T any](log []T, cutoff time.Time, ts func(T) time.Time, removed int) ([]T, int) {
	kept := log[:0]
	for _, entry := range log {
		if ts(entry).Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	return kept, removed
}
