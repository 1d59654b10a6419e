package jobs

import (
	"context"
	"log"
	"time"

	"acey/internal/safety"
)

// RetentionCleanupJob drops audit, safety, compliance and performance
// entries older than the retention window.
type RetentionCleanupJob struct {
	safety   *safety.System
	interval time.Duration
}

// NewRetentionCleanupJob creates the cleanup job. interval is how often
// the sweep runs, not the retention window itself.
func NewRetentionCleanupJob(safetySystem *safety.System, interval time.Duration) *RetentionCleanupJob {
	if interval <= 0 {
		interval = time.Hour
	}
	return &RetentionCleanupJob{safety: safetySystem, interval: interval}
}

// Run sweeps the safety system's logs once.
func (j *RetentionCleanupJob) Run(_ context.Context) error {
	if removed := j.safety.Cleanup(); removed > 0 {
		log.Printf("🧹 [RETENTION] Removed %d expired log entries", removed)
	}
	return nil
}

// GetNextRunTime returns the next cleanup tick.
func (j *RetentionCleanupJob) GetNextRunTime() time.Time {
	return time.Now().Add(j.interval)
}
