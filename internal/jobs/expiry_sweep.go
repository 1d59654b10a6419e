package jobs

import (
	"context"
	"log"
	"time"

	"acey/internal/engine"
)

// ExpirySweepJob auto-rejects pending intents that outlived the intent
// timeout. It is the sole automatic cancellation path: a hung operator
// can never deadlock the pending queue.
type ExpirySweepJob struct {
	engine   *engine.Engine
	interval time.Duration
}

// NewExpirySweepJob creates an expiry sweep running at the given interval
// (minute granularity in production).
func NewExpirySweepJob(eng *engine.Engine, interval time.Duration) *ExpirySweepJob {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpirySweepJob{engine: eng, interval: interval}
}

// Run sweeps the pending queue once.
func (j *ExpirySweepJob) Run(_ context.Context) error {
	if expired := j.engine.ExpirePending(); expired > 0 {
		log.Printf("⏰ [EXPIRY] Expired %d pending intent(s)", expired)
	}
	return nil
}

// GetNextRunTime returns the next sweep tick.
func (j *ExpirySweepJob) GetNextRunTime() time.Time {
	return time.Now().Add(j.interval)
}
