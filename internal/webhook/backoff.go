package webhook

import (
	"time"

	"github.com/meetingbot/core/internal/models"
)

// NextAttemptOffset returns the fixed wait before the next attempt, given
// attemptCount, the number of attempts already made (0 before the first
// attempt, which has no wait) — used when scheduling
// next_attempt_at for a delivery row. Deliveries are retried by the claim
// queue picking the row back up once next_attempt_at has passed, possibly
// from a different worker goroutine or process entirely, so the schedule
// is plain array indexing rather than an in-process backoff.BackOff: there
// is no single long-lived retry loop here for a library like
// cenkalti/backoff to drive.
func NextAttemptOffset(attemptCount int) (time.Duration, bool) {
	if attemptCount < 0 || attemptCount >= len(models.RetryOffsets) {
		return 0, false
	}
	return models.RetryOffsets[attemptCount], true
}
