package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/frostline/rehydrate/internal/testutil"
	"github.com/frostline/rehydrate/pkg/types"
)

// ---------------------------------------------------------------------------
// Helper builders
// ---------------------------------------------------------------------------

func timePtr(t time.Time) *time.Time { return &t }

func record(granuleID, fileKey string, status types.FileStatus) types.FileRecoveryRecord {
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
		Status:            status,
		Version:           2,
		StatusChangedAt:   now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func stagedWithDeadline(granuleID, fileKey string, deadline time.Time) types.FileRecoveryRecord {
	rec := record(granuleID, fileKey, types.FileStaged)
	rec.CompletionDeadline = &deadline
	return rec
}

func collectAlerts(t *testing.T) (alertFn func(context.Context, types.Alert), getAlerts func() []types.Alert) {
	t.Helper()
	var mu sync.Mutex
	var alerts []types.Alert
	return func(_ context.Context, a types.Alert) {
			mu.Lock()
			alerts = append(alerts, a)
			mu.Unlock()
		}, func() []types.Alert {
			mu.Lock()
			defer mu.Unlock()
			return alerts
		}
}

func collectEnqueues(t *testing.T, accept bool) (enqueue func(types.FileRecoveryRecord) bool, getKeys func() []string) {
	t.Helper()
	var mu sync.Mutex
	var keys []string
	return func(rec types.FileRecoveryRecord) bool {
			mu.Lock()
			keys = append(keys, rec.GranuleID+"/"+rec.FileKey)
			mu.Unlock()
			return accept
		}, func() []string {
			mu.Lock()
			defer mu.Unlock()
			return keys
		}
}

// ---------------------------------------------------------------------------
// Stale retrieval checks
// ---------------------------------------------------------------------------

func TestStaleStaged_FiresAlert(t *testing.T) {
	led := testutil.NewMockLedger()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	led.SeedRecord(stagedWithDeadline("g1", "g1/scene.h5", now.Add(-2*time.Hour)))

	alertFn, getAlerts := collectAlerts(t)
	stale := CheckStaleRetrievals(context.Background(), CheckOptions{
		Ledger:  led,
		AlertFn: alertFn,
		Logger:  slog.Default(),
		Now:     now,
	})

	if len(stale) != 1 {
		t.Fatalf("expected 1 stale record, got %d", len(stale))
	}
	if stale[0].GranuleID != "g1" || stale[0].FileKey != "g1/scene.h5" {
		t.Errorf("unexpected stale record: %+v", stale[0])
	}
	if stale[0].Overdue != 2*time.Hour {
		t.Errorf("expected 2h overdue, got %s", stale[0].Overdue)
	}

	alerts := getAlerts()
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].Level != types.AlertLevelWarning {
		t.Errorf("expected warning level, got %s", alerts[0].Level)
	}
	if alerts[0].Category != "stale_retrieval" {
		t.Errorf("expected category stale_retrieval, got %s", alerts[0].Category)
	}

	var flagged bool
	for _, ev := range led.AuditEvents() {
		if ev.Kind == types.EventStaleFlagged && ev.GranuleID == "g1" {
			flagged = true
		}
	}
	if !flagged {
		t.Error("expected a STALE_FLAGGED audit event")
	}
}

func TestStaleStaged_RecordNotMutated(t *testing.T) {
	led := testutil.NewMockLedger()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	led.SeedRecord(stagedWithDeadline("g1", "g1/scene.h5", now.Add(-2*time.Hour)))

	CheckStaleRetrievals(context.Background(), CheckOptions{Ledger: led, Now: now})

	rec, err := led.GetRecord(context.Background(), "g1", "g1/scene.h5")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec.Status != types.FileStaged {
		t.Errorf("expected record to stay STAGED, got %s", rec.Status)
	}
	if rec.Version != 2 {
		t.Errorf("expected version unchanged at 2, got %d", rec.Version)
	}
}

func TestDeadlineNotPassed_NoAlert(t *testing.T) {
	led := testutil.NewMockLedger()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	led.SeedRecord(stagedWithDeadline("g1", "g1/scene.h5", now.Add(3*time.Hour)))

	alertFn, getAlerts := collectAlerts(t)
	stale := CheckStaleRetrievals(context.Background(), CheckOptions{
		Ledger: led, AlertFn: alertFn, Now: now,
	})

	if len(stale) != 0 {
		t.Fatalf("expected 0 stale, got %d", len(stale))
	}
	if len(getAlerts()) != 0 {
		t.Error("expected no alerts before deadline")
	}
}

func TestNoDeadlineConfigured_NoAlert(t *testing.T) {
	led := testutil.NewMockLedger()
	led.SeedRecord(record("g1", "g1/scene.h5", types.FileStaged))

	alertFn, getAlerts := collectAlerts(t)
	stale := CheckStaleRetrievals(context.Background(), CheckOptions{
		Ledger: led, AlertFn: alertFn, Now: time.Now().UTC(),
	})

	if len(stale) != 0 {
		t.Fatalf("expected 0 stale, got %d", len(stale))
	}
	if len(getAlerts()) != 0 {
		t.Error("expected no alerts without a deadline")
	}
}

func TestTerminalRecord_NotScanned(t *testing.T) {
	led := testutil.NewMockLedger()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	rec := record("g1", "g1/done.h5", types.FileCompleted)
	rec.CompletionDeadline = timePtr(now.Add(-2 * time.Hour))
	led.SeedRecord(rec)

	stale := CheckStaleRetrievals(context.Background(), CheckOptions{Ledger: led, Now: now})
	if len(stale) != 0 {
		t.Fatalf("expected 0 stale for terminal record, got %d", len(stale))
	}
}

func TestDedup_SecondCallNoAlert(t *testing.T) {
	led := testutil.NewMockLedger()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	led.SeedRecord(stagedWithDeadline("g1", "g1/scene.h5", now.Add(-2*time.Hour)))

	alertFn, getAlerts := collectAlerts(t)
	opts := CheckOptions{Ledger: led, AlertFn: alertFn, Now: now, AlertDedup: time.Hour}

	first := CheckStaleRetrievals(context.Background(), opts)
	if len(first) != 1 {
		t.Fatalf("first call: expected 1 stale, got %d", len(first))
	}

	// Second call: lock already held, should produce no alert.
	second := CheckStaleRetrievals(context.Background(), opts)
	if len(second) != 0 {
		t.Fatalf("second call: expected 0 stale (dedup), got %d", len(second))
	}
	if len(getAlerts()) != 1 {
		t.Errorf("expected exactly 1 alert across both calls, got %d", len(getAlerts()))
	}
}

func TestDedupWindowExpired_AlertsAgain(t *testing.T) {
	led := testutil.NewMockLedger()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	led.SeedRecord(stagedWithDeadline("g1", "g1/scene.h5", now.Add(-2*time.Hour)))

	alertFn, getAlerts := collectAlerts(t)
	opts := CheckOptions{Ledger: led, AlertFn: alertFn, Now: now, AlertDedup: 20 * time.Millisecond}

	CheckStaleRetrievals(context.Background(), opts)
	time.Sleep(40 * time.Millisecond)
	CheckStaleRetrievals(context.Background(), opts)

	if len(getAlerts()) != 2 {
		t.Errorf("expected re-alert after dedup window expired, got %d alerts", len(getAlerts()))
	}
}

// ---------------------------------------------------------------------------
// Restored backlog checks
// ---------------------------------------------------------------------------

func TestRestoredBacklog_OffersEligible(t *testing.T) {
	led := testutil.NewMockLedger()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	led.SeedRecord(record("g1", "g1/ready.h5", types.FileRestored))
	past := record("g1", "g1/backoff-done.h5", types.FileRestored)
	past.NextAttemptAt = timePtr(now.Add(-time.Minute))
	led.SeedRecord(past)
	future := record("g1", "g1/backoff-open.h5", types.FileRestored)
	future.NextAttemptAt = timePtr(now.Add(time.Hour))
	led.SeedRecord(future)

	enqueue, getKeys := collectEnqueues(t, true)
	offered := CheckRestoredBacklog(context.Background(), CheckOptions{
		Ledger: led, Enqueue: enqueue, Now: now,
	})

	if offered != 2 {
		t.Fatalf("expected 2 offered, got %d", offered)
	}
	keys := getKeys()
	want := map[string]bool{"g1/g1/ready.h5": true, "g1/g1/backoff-done.h5": true}
	for _, k := range keys {
		if !want[k] {
			t.Errorf("unexpected enqueue %q", k)
		}
	}
	if len(keys) != 2 {
		t.Errorf("expected 2 enqueues, got %d", len(keys))
	}
}

func TestRestoredBacklog_QueueFullStopsEarly(t *testing.T) {
	led := testutil.NewMockLedger()
	led.SeedRecord(record("g1", "g1/a.h5", types.FileRestored))
	led.SeedRecord(record("g1", "g1/b.h5", types.FileRestored))

	enqueue, getKeys := collectEnqueues(t, false)
	offered := CheckRestoredBacklog(context.Background(), CheckOptions{
		Ledger: led, Enqueue: enqueue, Now: time.Now().UTC(),
	})

	if offered != 0 {
		t.Fatalf("expected 0 offered against a full queue, got %d", offered)
	}
	if len(getKeys()) != 1 {
		t.Errorf("expected scan to stop after the first refused enqueue, got %d attempts", len(getKeys()))
	}
}

func TestRestoredBacklog_NilEnqueue(t *testing.T) {
	led := testutil.NewMockLedger()
	led.SeedRecord(record("g1", "g1/a.h5", types.FileRestored))

	offered := CheckRestoredBacklog(context.Background(), CheckOptions{Ledger: led})
	if offered != 0 {
		t.Fatalf("expected 0 offered without an enqueue hook, got %d", offered)
	}
}

// ---------------------------------------------------------------------------
// Polling wrapper
// ---------------------------------------------------------------------------

func TestStartStop(t *testing.T) {
	led := testutil.NewMockLedger()
	led.SeedRecord(stagedWithDeadline("g1", "g1/late.h5", time.Now().UTC().Add(-time.Hour)))
	led.SeedRecord(record("g1", "g1/ready.h5", types.FileRestored))

	alertFn, getAlerts := collectAlerts(t)
	enqueue, getKeys := collectEnqueues(t, true)
	s := New(led, types.SweeperConfig{Interval: "25ms", AlertDedup: "1h"}, alertFn, enqueue, slog.Default())

	s.Start(context.Background())

	// Each pass lists STAGED then RESTORED; wait for two full passes.
	testutil.WaitForScanCount(t, led, 4, 2*time.Second)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(shutdownCtx)

	if len(getAlerts()) != 1 {
		t.Errorf("expected exactly 1 deduped stale alert, got %d", len(getAlerts()))
	}
	if len(getKeys()) < 2 {
		t.Errorf("expected restored record re-offered on every pass, got %d enqueues", len(getKeys()))
	}
}

func TestNew_InvalidDurationsFallBack(t *testing.T) {
	s := New(testutil.NewMockLedger(), types.SweeperConfig{Interval: "soon", AlertDedup: "-5m"}, nil, nil, slog.Default())
	if s.interval != defaultInterval {
		t.Errorf("expected default interval, got %s", s.interval)
	}
	if s.dedup != defaultAlertDedup {
		t.Errorf("expected default dedup window, got %s", s.dedup)
	}
}
