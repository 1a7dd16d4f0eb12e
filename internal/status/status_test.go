package status_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostline/rehydrate/internal/ledger"
	"github.com/frostline/rehydrate/internal/status"
	"github.com/frostline/rehydrate/internal/testutil"
	"github.com/frostline/rehydrate/pkg/types"
)

func record(granuleID, fileKey string, st types.FileStatus) types.FileRecoveryRecord {
	now := time.Now().UTC()
	return types.FileRecoveryRecord{
		GranuleID:         granuleID,
		FileKey:           fileKey,
		RequestID:         "req-1",
		SourceBucket:      "cold-archive",
		SourceKey:         fileKey,
		DestinationBucket: "recovered-default",
		DestinationKey:    fileKey,
		Tier:              types.LatencyStandard,
		Status:            st,
		Version:           2,
		StatusChangedAt:   now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func withDeadline(rec types.FileRecoveryRecord, deadline time.Time) types.FileRecoveryRecord {
	rec.CompletionDeadline = &deadline
	return rec
}

func TestGetFileStatusProjectsRecord(t *testing.T) {
	led := testutil.NewMockLedger()
	rec := record("g1", "g1/scene.h5", types.FileRestored)
	rec.RetryCount = 2
	rec.LastError = "connection reset"
	led.SeedRecord(rec)

	svc := status.New(led)
	view, err := svc.GetFileStatus(context.Background(), "g1", "g1/scene.h5")
	require.NoError(t, err)

	assert.Equal(t, "g1/scene.h5", view.FileKey)
	assert.Equal(t, types.FileRestored, view.Status)
	assert.Equal(t, types.LatencyStandard, view.Tier)
	assert.Equal(t, "recovered-default", view.DestinationBucket)
	assert.Equal(t, 2, view.RetryCount)
	assert.Equal(t, "connection reset", view.LastError)
	assert.False(t, view.Stale)
}

func TestGetFileStatusFlagsStaleStaged(t *testing.T) {
	led := testutil.NewMockLedger()
	overdue := time.Now().UTC().Add(-2 * time.Hour)
	led.SeedRecord(withDeadline(record("g1", "g1/late.h5", types.FileStaged), overdue))

	svc := status.New(led)
	view, err := svc.GetFileStatus(context.Background(), "g1", "g1/late.h5")
	require.NoError(t, err)
	assert.True(t, view.Stale)
}

func TestGetFileStatusStaleOnlyAppliesToStaged(t *testing.T) {
	led := testutil.NewMockLedger()
	overdue := time.Now().UTC().Add(-2 * time.Hour)
	led.SeedRecord(withDeadline(record("g1", "g1/done.h5", types.FileCompleted), overdue))

	svc := status.New(led)
	view, err := svc.GetFileStatus(context.Background(), "g1", "g1/done.h5")
	require.NoError(t, err)
	assert.False(t, view.Stale)
}

func TestGetFileStatusMissing(t *testing.T) {
	svc := status.New(testutil.NewMockLedger())
	_, err := svc.GetFileStatus(context.Background(), "g1", "nope")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestGetGranuleStatusFoldsFiles(t *testing.T) {
	led := testutil.NewMockLedger()
	led.SeedRecord(record("g1", "g1/a.h5", types.FileCompleted))
	led.SeedRecord(record("g1", "g1/b.h5", types.FileStaged))
	led.SeedRecord(record("g2", "g2/other.h5", types.FileCompleted))

	svc := status.New(led)
	view, err := svc.GetGranuleStatus(context.Background(), "g1")
	require.NoError(t, err)

	assert.Equal(t, "g1", view.GranuleID)
	assert.Equal(t, "req-1", view.RequestID)
	assert.Equal(t, types.AggregateInProgress, view.Status)
	require.Len(t, view.Files, 2)
	assert.Equal(t, "g1/a.h5", view.Files[0].FileKey)
	assert.Equal(t, "g1/b.h5", view.Files[1].FileKey)
}

func TestGetGranuleStatusAggregate(t *testing.T) {
	tests := []struct {
		name     string
		statuses []types.FileStatus
		want     types.AggregateStatus
	}{
		{"all completed", []types.FileStatus{types.FileCompleted, types.FileCompleted}, types.AggregateCompleted},
		{"failed and settled", []types.FileStatus{types.FileCompleted, types.FileFailed}, types.AggregateFailed},
		{"failed but still moving", []types.FileStatus{types.FileFailed, types.FileCopying}, types.AggregateInProgress},
		{"single pending", []types.FileStatus{types.FilePending}, types.AggregateInProgress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			led := testutil.NewMockLedger()
			for i, st := range tt.statuses {
				key := "g1/file-" + string(rune('a'+i)) + ".h5"
				led.SeedRecord(record("g1", key, st))
			}

			svc := status.New(led)
			view, err := svc.GetGranuleStatus(context.Background(), "g1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, view.Status)
		})
	}
}

func TestGetGranuleStatusMissing(t *testing.T) {
	svc := status.New(testutil.NewMockLedger())
	_, err := svc.GetGranuleStatus(context.Background(), "ghost")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestGetRequestStatusGroupsGranules(t *testing.T) {
	led := testutil.NewMockLedger()
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, led.PutRequest(context.Background(), types.RecoveryRequest{
		RequestID:   "req-1",
		RequestedBy: "ops",
		CreatedAt:   created,
	}))
	led.SeedRecord(record("g1", "g1/a.h5", types.FileCompleted))
	led.SeedRecord(record("g1", "g1/b.h5", types.FileCompleted))
	led.SeedRecord(record("g2", "g2/c.h5", types.FileFailed))

	svc := status.New(led)
	view, err := svc.GetRequestStatus(context.Background(), "req-1")
	require.NoError(t, err)

	assert.Equal(t, "req-1", view.RequestID)
	assert.Equal(t, "ops", view.RequestedBy)
	assert.Equal(t, created, view.CreatedAt)
	assert.Equal(t, types.AggregateFailed, view.Status)

	require.Len(t, view.Granules, 2)
	assert.Equal(t, "g1", view.Granules[0].GranuleID)
	assert.Equal(t, types.AggregateCompleted, view.Granules[0].Status)
	assert.Len(t, view.Granules[0].Files, 2)
	assert.Equal(t, "g2", view.Granules[1].GranuleID)
	assert.Equal(t, types.AggregateFailed, view.Granules[1].Status)

	assert.Equal(t, map[types.FileStatus]int{
		types.FileCompleted: 2,
		types.FileFailed:    1,
	}, view.Counts)
}

func TestGetRequestStatusWithoutStoredRequest(t *testing.T) {
	led := testutil.NewMockLedger()
	led.SeedRecord(record("g1", "g1/a.h5", types.FileStaged))

	svc := status.New(led)
	view, err := svc.GetRequestStatus(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Empty(t, view.RequestedBy)
	assert.Equal(t, types.AggregateInProgress, view.Status)
	require.Len(t, view.Granules, 1)
}

func TestGetRequestStatusMissing(t *testing.T) {
	svc := status.New(testutil.NewMockLedger())
	_, err := svc.GetRequestStatus(context.Background(), "ghost")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestGetAuditTrail(t *testing.T) {
	led := testutil.NewMockLedger()
	led.SeedRecord(record("g1", "g1/a.h5", types.FileStaged))
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, led.AppendAuditEvent(context.Background(), types.AuditEvent{
		GranuleID: "g1", FileKey: "g1/a.h5", Kind: types.EventRecordCreated, Timestamp: base,
	}))
	require.NoError(t, led.AppendAuditEvent(context.Background(), types.AuditEvent{
		GranuleID: "g1", FileKey: "g1/a.h5", Kind: types.EventRetrievalStaged, Timestamp: base.Add(time.Second),
	}))

	svc := status.New(led)
	events, err := svc.GetAuditTrail(context.Background(), "g1", "g1/a.h5", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, types.EventRecordCreated, events[0].Kind)
	assert.Equal(t, types.EventRetrievalStaged, events[1].Kind)
}

func TestGetAuditTrailMissingRecord(t *testing.T) {
	svc := status.New(testutil.NewMockLedger())
	_, err := svc.GetAuditTrail(context.Background(), "g1", "ghost", 10)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestListStale(t *testing.T) {
	led := testutil.NewMockLedger()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	led.SeedRecord(withDeadline(record("g1", "g1/overdue.h5", types.FileStaged), now.Add(-3*time.Hour)))
	led.SeedRecord(withDeadline(record("g1", "g1/on-time.h5", types.FileStaged), now.Add(3*time.Hour)))
	led.SeedRecord(record("g1", "g1/no-deadline.h5", types.FileStaged))
	led.SeedRecord(withDeadline(record("g2", "g2/done.h5", types.FileCompleted), now.Add(-3*time.Hour)))

	svc := status.New(led)
	stale, err := svc.ListStale(context.Background(), now)
	require.NoError(t, err)

	require.Len(t, stale, 1)
	assert.Equal(t, "g1", stale[0].GranuleID)
	assert.Equal(t, "g1/overdue.h5", stale[0].FileKey)
	assert.Equal(t, 3*time.Hour, stale[0].Overdue)
}

func TestListStaleEmpty(t *testing.T) {
	svc := status.New(testutil.NewMockLedger())
	stale, err := svc.ListStale(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, stale)
}
