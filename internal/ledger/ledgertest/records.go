package ledgertest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostline/rehydrate/internal/ledger"
	"github.com/frostline/rehydrate/pkg/types"
)

func newRecord(granuleID, fileKey, requestID string) types.FileRecoveryRecord {
	now := time.Now().UTC()
	return types.FileRecoveryRecord{
		GranuleID:    granuleID,
		FileKey:      fileKey,
		RequestID:    requestID,
		SourceBucket: "ct-archive",
		SourceKey:    granuleID + "/" + fileKey,
		Status:       types.FilePending,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// TestRecordCreateGet verifies create, get, and not-found behavior.
func TestRecordCreateGet(t *testing.T, led ledger.Ledger) {
	ctx := context.Background()

	rec := newRecord("ct-create-g", "file-a.h5", "ct-create-req")
	require.NoError(t, led.PutRecord(ctx, rec))

	got, err := led.GetRecord(ctx, "ct-create-g", "file-a.h5")
	require.NoError(t, err)
	assert.Equal(t, "ct-create-g", got.GranuleID)
	assert.Equal(t, types.FilePending, got.Status)
	assert.Equal(t, 1, got.Version)

	_, err = led.GetRecord(ctx, "ct-create-g", "nonexistent.h5")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

// TestRecordDuplicateCreate verifies create-only semantics.
func TestRecordDuplicateCreate(t *testing.T, led ledger.Ledger) {
	ctx := context.Background()

	rec := newRecord("ct-dup-g", "file-a.h5", "ct-dup-req")
	require.NoError(t, led.PutRecord(ctx, rec))

	err := led.PutRecord(ctx, rec)
	assert.ErrorIs(t, err, ledger.ErrConflict)

	// Original record untouched.
	got, err := led.GetRecord(ctx, "ct-dup-g", "file-a.h5")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
}

// TestCompareAndSwap verifies CAS with correct and stale versions.
func TestCompareAndSwap(t *testing.T, led ledger.Ledger) {
	ctx := context.Background()

	rec := newRecord("ct-cas-g", "file-a.h5", "ct-cas-req")
	require.NoError(t, led.PutRecord(ctx, rec))

	// Correct version succeeds.
	next := rec
	next.Status = types.FileStaged
	next.Version = 2
	next.UpdatedAt = time.Now().UTC()
	ok, err := led.CompareAndSwapRecord(ctx, 1, next)
	require.NoError(t, err)
	assert.True(t, ok)

	// Stale version fails without clobbering.
	stale := next
	stale.Status = types.FileRestored
	stale.Version = 3
	ok, err = led.CompareAndSwapRecord(ctx, 1, stale)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := led.GetRecord(ctx, "ct-cas-g", "file-a.h5")
	require.NoError(t, err)
	assert.Equal(t, types.FileStaged, got.Status)
	assert.Equal(t, 2, got.Version)

	// A swap against a record that was never created is a miss, not an error.
	ghost := newRecord("ct-cas-ghost", "file-a.h5", "ct-cas-req")
	ok, err = led.CompareAndSwapRecord(ctx, 1, ghost)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestCASRaceCondition verifies exactly 1 goroutine wins a concurrent CAS.
func TestCASRaceCondition(t *testing.T, led ledger.Ledger) {
	ctx := context.Background()

	rec := newRecord("ct-race-g", "file-a.h5", "ct-race-req")
	require.NoError(t, led.PutRecord(ctx, rec))

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := rec
			next.Status = types.FileStaged
			next.Version = 2
			next.UpdatedAt = time.Now().UTC()
			ok, err := led.CompareAndSwapRecord(ctx, 1, next)
			if err == nil && ok {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners.Load(), "exactly 1 goroutine should win the CAS")
}

// TestListByGranule verifies listing records of a granule, ordered by file key.
func TestListByGranule(t *testing.T, led ledger.Ledger) {
	ctx := context.Background()

	for _, key := range []string{"c.h5", "a.h5", "b.h5"} {
		require.NoError(t, led.PutRecord(ctx, newRecord("ct-listg-g", key, "ct-listg-req")))
	}

	records, err := led.ListByGranule(ctx, "ct-listg-g")
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "a.h5", records[0].FileKey)
	assert.Equal(t, "b.h5", records[1].FileKey)
	assert.Equal(t, "c.h5", records[2].FileKey)

	records, err = led.ListByGranule(ctx, "ct-listg-empty")
	require.NoError(t, err)
	assert.Empty(t, records)
}

// TestListByRequest verifies cross-granule listing and that status changes
// show up in the request view.
func TestListByRequest(t *testing.T, led ledger.Ledger) {
	ctx := context.Background()

	recA := newRecord("ct-listr-g1", "a.h5", "ct-listr-req")
	recB := newRecord("ct-listr-g2", "b.h5", "ct-listr-req")
	require.NoError(t, led.PutRecord(ctx, recA))
	require.NoError(t, led.PutRecord(ctx, recB))
	// A record of a different request must not leak in.
	require.NoError(t, led.PutRecord(ctx, newRecord("ct-listr-g3", "c.h5", "ct-listr-other")))

	records, err := led.ListByRequest(ctx, "ct-listr-req")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "ct-listr-g1", records[0].GranuleID)
	assert.Equal(t, "ct-listr-g2", records[1].GranuleID)

	// Status change is visible through the request view.
	next := recA
	next.Status = types.FileStaged
	next.Version = 2
	next.UpdatedAt = time.Now().UTC()
	ok, err := led.CompareAndSwapRecord(ctx, 1, next)
	require.NoError(t, err)
	require.True(t, ok)

	records, err = led.ListByRequest(ctx, "ct-listr-req")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, types.FileStaged, records[0].Status)
}

// TestFindBySourceLocation verifies completion-event correlation, including
// the non-terminal preference when locations collide.
func TestFindBySourceLocation(t *testing.T, led ledger.Ledger) {
	ctx := context.Background()

	rec := newRecord("ct-loc-g1", "shared.h5", "ct-loc-req")
	require.NoError(t, led.PutRecord(ctx, rec))

	got, err := led.FindBySourceLocation(ctx, rec.SourceLocation())
	require.NoError(t, err)
	assert.Equal(t, "ct-loc-g1", got.GranuleID)

	// Second granule referencing the same archive object.
	twin := newRecord("ct-loc-g2", "twin.h5", "ct-loc-req")
	twin.SourceKey = rec.SourceKey
	require.NoError(t, led.PutRecord(ctx, twin))

	// Complete the first; correlation must now prefer the live twin.
	done := rec
	done.Status = types.FileCompleted
	done.Version = 2
	done.UpdatedAt = time.Now().UTC()
	ok, err := led.CompareAndSwapRecord(ctx, 1, done)
	require.NoError(t, err)
	require.True(t, ok)

	got, err = led.FindBySourceLocation(ctx, rec.SourceLocation())
	require.NoError(t, err)
	assert.Equal(t, "ct-loc-g2", got.GranuleID, "non-terminal record should win")

	_, err = led.FindBySourceLocation(ctx, "ct-archive/never/seen.h5")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

// TestListByStatus verifies the status scan follows records as CAS moves them.
func TestListByStatus(t *testing.T, led ledger.Ledger) {
	ctx := context.Background()

	rec := newRecord("ct-status-g", fmt.Sprintf("file-%d.h5", time.Now().UnixNano()), "ct-status-req")
	require.NoError(t, led.PutRecord(ctx, rec))

	pending, err := led.ListByStatus(ctx, types.FilePending)
	require.NoError(t, err)
	require.True(t, containsRecord(pending, rec.GranuleID, rec.FileKey))

	next := rec
	next.Status = types.FileStaged
	next.Version = 2
	next.UpdatedAt = time.Now().UTC()
	ok, err := led.CompareAndSwapRecord(ctx, 1, next)
	require.NoError(t, err)
	require.True(t, ok)

	pending, err = led.ListByStatus(ctx, types.FilePending)
	require.NoError(t, err)
	assert.False(t, containsRecord(pending, rec.GranuleID, rec.FileKey))

	staged, err := led.ListByStatus(ctx, types.FileStaged)
	require.NoError(t, err)
	assert.True(t, containsRecord(staged, rec.GranuleID, rec.FileKey))
}

func containsRecord(records []types.FileRecoveryRecord, granuleID, fileKey string) bool {
	for _, r := range records {
		if r.GranuleID == granuleID && r.FileKey == fileKey {
			return true
		}
	}
	return false
}
