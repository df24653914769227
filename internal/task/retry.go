package task

import "time"

// RetryPolicy computes how long a failed task waits before its next attempt.
// The delay grows by Step for every retry already spent and is capped at MaxDelay.
type RetryPolicy struct {
	BaseDelay time.Duration
	Step      time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy returns the production backoff curve: 10s, 20s, 30s, ... up to 60s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay: 10 * time.Second,
		Step:      10 * time.Second,
		MaxDelay:  60 * time.Second,
	}
}

// Delay returns the wait before the attempt that follows the given number of
// spent retries. It is deterministic and never decreases as retries grows.
func (p RetryPolicy) Delay(retries int) time.Duration {
	if retries < 1 {
		retries = 1
	}
	steps := time.Duration(retries - 1)

	// Avoid overflowing the multiplication on absurd retry counts.
	if p.MaxDelay > 0 && p.Step > 0 && steps > (p.MaxDelay-p.BaseDelay)/p.Step {
		return max(p.MaxDelay, p.BaseDelay)
	}

	d := p.BaseDelay + p.Step*steps
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = max(p.MaxDelay, p.BaseDelay)
	}
	return d
}
