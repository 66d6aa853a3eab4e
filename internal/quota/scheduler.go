package quota

import (
	"context"
	"time"

	"github.com/avolkov/quotabot/internal/metrics"
)

// nextMidnight returns the first local midnight strictly after t.
func nextMidnight(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day+1, 0, 0, 0, 0, t.Location())
}

// RunDailyReset wipes the ledger at every local midnight until ctx is done.
// It coexists with the per-read rollover in CheckLimit: whichever runs first
// at a day boundary, the record ends up at zero for the new day.
func (s *Service) RunDailyReset(ctx context.Context) {
	for ctx.Err() == nil {
		wait := nextMidnight(s.now()).Sub(s.now())
		if !sleepWithContext(ctx, wait) {
			break
		}
		s.ResetAll()
		metrics.DailyResets.Inc()
		s.log.Info("daily limits reset", "limit", s.Limit())
	}
	s.log.Info("daily reset scheduler stopped")
}

// sleepWithContext reports whether the full duration elapsed before ctx was
// cancelled.
func sleepWithContext(ctx context.Context, dur time.Duration) bool {
	timer := time.NewTimer(dur)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
