package retry

import (
	"math"
	"time"
)

type Decision int

const (
	Retry Decision = iota
	Exhaust
)

func (d Decision) String() string {
	if d == Exhaust {
		return "exhaust"
	}
	return "retry"
}

// Policy decides, after a failed attempt, whether a job goes back to pending
// or is terminally failed. Pure: no clock, no store.
type Policy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		BaseDelay: 2 * time.Second,
		MaxDelay:  10 * time.Minute,
	}
}

// Decide assumes attempts was already incremented by the claim that preceded
// the failed dispatch. A job that has spent its whole budget is exhausted.
func (p Policy) Decide(attempts, maxAttempts int) Decision {
	if attempts >= maxAttempts {
		return Exhaust
	}
	return Retry
}

// Backoff returns how long the job stays ineligible after its n-th failed
// attempt: base * 2^(n-1), capped at MaxDelay.
func (p Policy) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempts-1)))
	if d > p.MaxDelay || d < 0 {
		return p.MaxDelay
	}
	return d
}
