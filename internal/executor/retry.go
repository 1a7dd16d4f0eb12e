package executor

import (
	"time"

	"github.com/frostline/rehydrate/pkg/types"
)

const (
	maxBackoff        = time.Hour
	defaultMultiplier = 2.0
)

// DefaultRetryPolicy returns the copy retry configuration used when no
// policy is supplied: three attempts, 30s base backoff doubling per
// attempt, retrying transient and timeout failures only.
func DefaultRetryPolicy() types.RetryPolicy {
	return types.RetryPolicy{
		MaxAttempts:       3,
		BackoffSeconds:    30,
		BackoffMultiplier: 2.0,
		RetryableFailures: []types.FailureCategory{
			types.FailureTransient,
			types.FailureTimeout,
		},
	}
}

// CalculateBackoff returns the wait before the given copy attempt,
// growing geometrically from the policy base and capped at one hour.
func CalculateBackoff(policy types.RetryPolicy, attempt int) time.Duration {
	wait := time.Duration(policy.BackoffSeconds) * time.Second
	if attempt <= 1 {
		return wait
	}

	mult := policy.BackoffMultiplier
	if mult <= 0 {
		mult = defaultMultiplier
	}
	for i := 1; i < attempt; i++ {
		wait = time.Duration(float64(wait) * mult)
		if wait >= maxBackoff {
			return maxBackoff
		}
	}
	return wait
}

// IsRetryable reports whether a copy failure in the given category
// should be scheduled for another attempt. Permanent failures are never
// retried regardless of policy.
func IsRetryable(policy types.RetryPolicy, category types.FailureCategory) bool {
	if category == types.FailurePermanent {
		return false
	}
	if len(policy.RetryableFailures) == 0 {
		return category == types.FailureTransient || category == types.FailureTimeout
	}
	for _, fc := range policy.RetryableFailures {
		if fc == category {
			return true
		}
	}
	return false
}
