package main

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostline/rehydrate/internal/executor"
	intlambda "github.com/frostline/rehydrate/internal/lambda"
	"github.com/frostline/rehydrate/internal/testutil"
	"github.com/frostline/rehydrate/pkg/types"
)

type nopCopier struct{}

func (nopCopier) Copy(context.Context, string, string, string, string) error { return nil }

func seeded(fileKey string, st types.FileStatus, deadline *time.Time) types.FileRecoveryRecord {
	now := time.Now().UTC()
	return types.FileRecoveryRecord{
		GranuleID:          "g1",
		FileKey:            fileKey,
		RequestID:          "req-1",
		SourceBucket:       "cold-archive",
		SourceKey:          fileKey,
		DestinationBucket:  "recovered",
		DestinationKey:     fileKey,
		Tier:               types.LatencyStandard,
		Status:             st,
		CompletionDeadline: deadline,
		Version:            2,
		StatusChangedAt:    now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func sweepDeps(led *testutil.MockLedger, alerts *[]types.Alert) *intlambda.Deps {
	return &intlambda.Deps{
		Ledger:   led,
		Executor: executor.New(led, nopCopier{}, types.ExecutorConfig{}, nil, nil),
		AlertFn:  func(_ context.Context, a types.Alert) { *alerts = append(*alerts, a) },
		Logger:   slog.Default(),
	}
}

func TestSweep_FlagsStaleAndDrainsBacklog(t *testing.T) {
	led := testutil.NewMockLedger()
	past := time.Now().UTC().Add(-2 * time.Hour)
	led.SeedRecord(seeded("g1/stale.h5", types.FileStaged, &past))
	led.SeedRecord(seeded("g1/ready.h5", types.FileRestored, nil))

	var alerts []types.Alert
	d := sweepDeps(led, &alerts)

	stale, copied := sweep(context.Background(), d)
	assert.Equal(t, 1, stale)
	assert.Equal(t, 1, copied)

	require.Len(t, alerts, 1)
	assert.Equal(t, "stale_retrieval", alerts[0].Category)
	assert.Equal(t, "g1/stale.h5", alerts[0].FileKey)

	// The backlog record is copied synchronously inside the sweep.
	rec, err := led.GetRecord(context.Background(), "g1", "g1/ready.h5")
	require.NoError(t, err)
	assert.Equal(t, types.FileCompleted, rec.Status)

	// The stale record is only flagged; re-driving it is an operator call.
	rec, err = led.GetRecord(context.Background(), "g1", "g1/stale.h5")
	require.NoError(t, err)
	assert.Equal(t, types.FileStaged, rec.Status)
}

func TestSweep_SecondPassWithinDedupWindowIsQuiet(t *testing.T) {
	led := testutil.NewMockLedger()
	past := time.Now().UTC().Add(-time.Hour)
	led.SeedRecord(seeded("g1/stale.h5", types.FileStaged, &past))

	var alerts []types.Alert
	d := sweepDeps(led, &alerts)

	stale, _ := sweep(context.Background(), d)
	assert.Equal(t, 1, stale)

	stale, _ = sweep(context.Background(), d)
	assert.Equal(t, 0, stale)
	assert.Len(t, alerts, 1)
}
