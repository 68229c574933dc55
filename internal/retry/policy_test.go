package retry_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"postpilot/internal/retry"
)

func TestDecide_BudgetLeft(t *testing.T) {
	p := retry.DefaultPolicy()

	assert.Equal(t, retry.Retry, p.Decide(1, 3))
	assert.Equal(t, retry.Retry, p.Decide(2, 3))
}

func TestDecide_Exhausted(t *testing.T) {
	p := retry.DefaultPolicy()

	assert.Equal(t, retry.Exhaust, p.Decide(3, 3))
	// attempts beyond the budget should never happen, but the decision must
	// still be terminal if it does
	assert.Equal(t, retry.Exhaust, p.Decide(4, 3))
}

func TestDecide_ZeroBudget(t *testing.T) {
	p := retry.DefaultPolicy()

	assert.Equal(t, retry.Exhaust, p.Decide(0, 0))
}

func TestBackoff_Doubles(t *testing.T) {
	p := retry.Policy{BaseDelay: time.Second, MaxDelay: time.Hour}

	assert.Equal(t, 1*time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 4*time.Second, p.Backoff(3))
	assert.Equal(t, 8*time.Second, p.Backoff(4))
}

func TestBackoff_Capped(t *testing.T) {
	p := retry.Policy{BaseDelay: time.Second, MaxDelay: 10 * time.Second}

	assert.Equal(t, 10*time.Second, p.Backoff(5))
	assert.Equal(t, 10*time.Second, p.Backoff(60))
}

func TestBackoff_MinimumOneAttempt(t *testing.T) {
	p := retry.Policy{BaseDelay: time.Second, MaxDelay: time.Hour}

	assert.Equal(t, p.Backoff(1), p.Backoff(0))
}
