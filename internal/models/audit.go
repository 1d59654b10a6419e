package models

import "time"

// Severity grades audit and safety events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ComplianceVerdict is the audit-time ruling on one operation.
type ComplianceVerdict string

const (
	VerdictCompliant    ComplianceVerdict = "compliant"
	VerdictNonCompliant ComplianceVerdict = "non_compliant"
)

// SystemSnapshot is a point-in-time view of the pipeline captured with
// every audit entry.
type SystemSnapshot struct {
	PendingIntents int       `json:"pendingIntents"`
	TotalProcessed int64     `json:"totalProcessed"`
	BlockedOps     int64     `json:"blockedOps"`
	SimulationMode bool      `json:"simulationMode"`
	CapturedAt     time.Time `json:"capturedAt"`
}

// AuditEntry is an immutable record of one operation. Entries live in a
// capped ring buffer and are mirrored to the durable journal.
type AuditEntry struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"eventType"`
	Severity  Severity          `json:"severity"`
	Data      map[string]any    `json:"data"` // sanitized copy, never the caller's map
	Snapshot  SystemSnapshot    `json:"snapshot"`
	Verdict   ComplianceVerdict `json:"verdict"`
	Blocked   bool              `json:"blocked"`
}

// SafetyEntry records one detected safety-rule violation.
type SafetyEntry struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	SafetyType  string    `json:"safetyType"` // e.g. "trust_delta_exceeded"
	RiskLevel   Severity  `json:"riskLevel"`
	Description string    `json:"description"`
	Mitigations []string  `json:"mitigations,omitempty"`
	Resolved    bool      `json:"resolved"`
}

// ComplianceEntry records one compliance check outcome.
type ComplianceEntry struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"eventType"`
	Verdict   ComplianceVerdict `json:"verdict"`
	Reasons   []string          `json:"reasons,omitempty"`
}

// PerformanceEntry records one timed operation for the performance log.
type PerformanceEntry struct {
	Timestamp time.Time     `json:"timestamp"`
	Operation string        `json:"operation"`
	Duration  time.Duration `json:"duration"`
}

// SafetyStatistics is a read-only snapshot of the safety audit system.
type SafetyStatistics struct {
	AuditEntries         int     `json:"auditEntries"`
	BlockedOperations    int64   `json:"blockedOperations"`
	HighRiskEvents       int64   `json:"highRiskEvents"`
	ComplianceViolations int64   `json:"complianceViolations"`
	ComplianceRate       float64 `json:"complianceRate"` // compliant / total
	UnresolvedSafety     int     `json:"unresolvedSafety"`
}
