package ledgertest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostline/rehydrate/internal/ledger"
)

// TestLocking exercises the dedup-lock contract the sweeper depends on: a
// held key rejects contenders, keys are independent, and release frees the
// key immediately.
func TestLocking(t *testing.T, led ledger.Ledger) {
	ctx := context.Background()

	ok, err := led.AcquireLock(ctx, "ct-lock:stale:g1/a.h5", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok, "first acquire should win")

	ok, err = led.AcquireLock(ctx, "ct-lock:stale:g1/a.h5", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "held key should reject a second acquire")

	ok, err = led.AcquireLock(ctx, "ct-lock:stale:g2/b.h5", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "locks on different keys are independent")

	require.NoError(t, led.ReleaseLock(ctx, "ct-lock:stale:g1/a.h5"))

	ok, err = led.AcquireLock(ctx, "ct-lock:stale:g1/a.h5", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "released key should be acquirable again")
}

// TestLockContention races two acquirers for one key. Overlapping sweeps
// must end up with exactly one alert emitter.
func TestLockContention(t *testing.T, led ledger.Ledger) {
	ctx := context.Background()

	var wg sync.WaitGroup
	wins := make(chan bool, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := led.AcquireLock(ctx, "ct-lock:contended", time.Minute)
			if err == nil && ok {
				wins <- true
			}
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for range wins {
		won++
	}
	assert.Equal(t, 1, won, "exactly one contender should hold the lock")
}

// TestLockExpiry verifies an expired key can be claimed without an explicit
// release, so a crashed sweep never wedges alerting.
func TestLockExpiry(t *testing.T, led ledger.Ledger) {
	ctx := context.Background()

	ok, err := led.AcquireLock(ctx, "ct-expiring-lock", 2*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = led.AcquireLock(ctx, "ct-expiring-lock", 2*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "unexpired key is still held")

	time.Sleep(3 * time.Second)

	ok, err = led.AcquireLock(ctx, "ct-expiring-lock", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expired key is claimable in place")
}
