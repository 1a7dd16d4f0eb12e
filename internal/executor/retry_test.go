package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/frostline/rehydrate/pkg/types"
)

func TestCalculateBackoff(t *testing.T) {
	policy := types.RetryPolicy{
		BackoffSeconds:    30,
		BackoffMultiplier: 2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 30 * time.Second},
		{2, 60 * time.Second},
		{3, 120 * time.Second},
		{4, 240 * time.Second},
	}

	for _, tc := range tests {
		result := CalculateBackoff(policy, tc.attempt)
		assert.Equal(t, tc.expected, result, "attempt %d", tc.attempt)
	}
}

func TestCalculateBackoff_CapsAtOneHour(t *testing.T) {
	policy := types.RetryPolicy{
		BackoffSeconds:    1800,
		BackoffMultiplier: 4.0,
	}

	result := CalculateBackoff(policy, 3)
	assert.Equal(t, 3600*time.Second, result)
}

func TestCalculateBackoff_DefaultMultiplier(t *testing.T) {
	policy := types.RetryPolicy{
		BackoffSeconds:    10,
		BackoffMultiplier: 0,
	}

	result := CalculateBackoff(policy, 2)
	assert.Equal(t, 20*time.Second, result)
}

func TestIsRetryable(t *testing.T) {
	policy := DefaultRetryPolicy()

	tests := []struct {
		category types.FailureCategory
		expected bool
	}{
		{types.FailureTransient, true},
		{types.FailureTimeout, true},
		{types.FailurePermanent, false},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, IsRetryable(policy, tc.category), "category %s", tc.category)
	}
}

func TestIsRetryable_EmptyListDefaults(t *testing.T) {
	policy := types.RetryPolicy{MaxAttempts: 3, BackoffSeconds: 30}

	assert.True(t, IsRetryable(policy, types.FailureTransient))
	assert.True(t, IsRetryable(policy, types.FailureTimeout))
	assert.False(t, IsRetryable(policy, types.FailurePermanent))
}

func TestIsRetryable_ExplicitList(t *testing.T) {
	policy := types.RetryPolicy{
		MaxAttempts:       3,
		BackoffSeconds:    30,
		RetryableFailures: []types.FailureCategory{types.FailureTimeout},
	}

	assert.True(t, IsRetryable(policy, types.FailureTimeout))
	assert.False(t, IsRetryable(policy, types.FailureTransient))
	assert.False(t, IsRetryable(policy, types.FailurePermanent))
}
