// Package sweeper watches for recoveries that stopped moving. Archive
// retrievals complete hours later through an at-least-once queue; when a
// completion event is lost, the record sits STAGED and nothing else notices.
// The sweeper independently scans for records past their advisory completion
// deadline and re-offers restored files whose copy never ran.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/frostline/rehydrate/internal/ledger"
	"github.com/frostline/rehydrate/internal/metrics"
	"github.com/frostline/rehydrate/pkg/types"
)

const (
	defaultInterval   = 5 * time.Minute
	defaultAlertDedup = 24 * time.Hour
)

// StaleFile records a single stale-retrieval detection.
type StaleFile struct {
	GranuleID string
	FileKey   string
	Deadline  time.Time
	Overdue   time.Duration
}

// CheckOptions configures a single sweep pass.
type CheckOptions struct {
	Ledger     ledger.Ledger
	AlertFn    func(context.Context, types.Alert)
	Enqueue    func(types.FileRecoveryRecord) bool
	Logger     *slog.Logger
	Now        time.Time     // injectable for testing
	AlertDedup time.Duration // defaults to 24h if zero
}

// CheckStaleRetrievals scans STAGED records for those past their advisory
// completion deadline. Flagged records are alerted and audited but never
// mutated: archive retrieval timelines vary, and late is not failed. It is a
// pure function suitable for any execution mode (local polling, Lambda).
func CheckStaleRetrievals(ctx context.Context, opts CheckOptions) []StaleFile {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}
	dedup := opts.AlertDedup
	if dedup <= 0 {
		dedup = defaultAlertDedup
	}

	records, err := opts.Ledger.ListByStatus(ctx, types.FileStaged)
	if err != nil {
		opts.Logger.Error("sweeper: failed to list staged records", "error", err)
		return nil
	}

	var stale []StaleFile

	for _, rec := range records {
		if ctx.Err() != nil {
			return stale
		}
		if rec.CompletionDeadline == nil || !opts.Now.After(*rec.CompletionDeadline) {
			continue
		}
		overdue := opts.Now.Sub(*rec.CompletionDeadline)

		// Dedup lock: one alert per record per flap window. The lock expiring
		// while the record is still staged re-alerts on a later pass.
		lockKey := fmt.Sprintf("sweeper:stale:%s:%s", rec.GranuleID, rec.FileKey)
		acquired, err := opts.Ledger.AcquireLock(ctx, lockKey, dedup)
		if err != nil {
			opts.Logger.Error("sweeper: failed to acquire dedup lock", "key", lockKey, "error", err)
			continue
		}
		if !acquired {
			continue // already alerted this window
		}

		if opts.AlertFn != nil {
			opts.AlertFn(ctx, types.Alert{
				Level:     types.AlertLevelWarning,
				Category:  "stale_retrieval",
				GranuleID: rec.GranuleID,
				FileKey:   rec.FileKey,
				Message: fmt.Sprintf("Retrieval for %s/%s staged past its completion deadline (%s overdue)",
					rec.GranuleID, rec.FileKey, overdue.Truncate(time.Second)),
				Details: map[string]interface{}{
					"requestId": rec.RequestID,
					"tier":      string(rec.Tier),
					"deadline":  rec.CompletionDeadline.Format(time.RFC3339),
					"overdue":   overdue.Truncate(time.Second).String(),
				},
				Timestamp: opts.Now,
			})
		}

		if err := opts.Ledger.AppendAuditEvent(ctx, types.AuditEvent{
			GranuleID: rec.GranuleID,
			FileKey:   rec.FileKey,
			RequestID: rec.RequestID,
			Kind:      types.EventStaleFlagged,
			Detail: fmt.Sprintf("staged past completion deadline %s",
				rec.CompletionDeadline.Format(time.RFC3339)),
			Timestamp: opts.Now,
		}); err != nil {
			opts.Logger.Error("sweeper: failed to append stale event",
				"granule", rec.GranuleID, "file", rec.FileKey, "error", err)
		}

		metrics.StaleRecordsFlagged.Add(1)

		opts.Logger.Warn("sweeper: stale retrieval flagged",
			"granule", rec.GranuleID, "file", rec.FileKey,
			"deadline", rec.CompletionDeadline.Format(time.RFC3339),
			"overdue", overdue.Truncate(time.Second))

		stale = append(stale, StaleFile{
			GranuleID: rec.GranuleID,
			FileKey:   rec.FileKey,
			Deadline:  *rec.CompletionDeadline,
			Overdue:   overdue,
		})
	}

	return stale
}

// CheckRestoredBacklog re-offers RESTORED records to the copy executor once
// their backoff window has passed. The executor queue sheds load when full;
// this scan is what guarantees every restored file eventually reaches a
// worker. Returns the number of records offered.
func CheckRestoredBacklog(ctx context.Context, opts CheckOptions) int {
	if opts.Enqueue == nil {
		return 0
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}

	records, err := opts.Ledger.ListByStatus(ctx, types.FileRestored)
	if err != nil {
		opts.Logger.Error("sweeper: failed to list restored records", "error", err)
		return 0
	}

	offered := 0
	for _, rec := range records {
		if ctx.Err() != nil {
			return offered
		}
		if rec.NextAttemptAt != nil && opts.Now.Before(*rec.NextAttemptAt) {
			continue // backoff window still open
		}
		if !opts.Enqueue(rec) {
			opts.Logger.Debug("sweeper: copy queue full, deferring remainder to next pass")
			return offered
		}
		offered++
	}

	return offered
}

// Sweeper runs both checks on a regular interval.
type Sweeper struct {
	ledger   ledger.Ledger
	alertFn  func(context.Context, types.Alert)
	enqueue  func(types.FileRecoveryRecord) bool
	logger   *slog.Logger
	interval time.Duration
	dedup    time.Duration
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a Sweeper. Interval and alert dedup window come from cfg and
// fall back to 5m and 24h when absent or unparseable.
func New(led ledger.Ledger, cfg types.SweeperConfig, alertFn func(context.Context, types.Alert), enqueue func(types.FileRecoveryRecord) bool, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	interval := defaultInterval
	if cfg.Interval != "" {
		if d, err := time.ParseDuration(cfg.Interval); err == nil && d > 0 {
			interval = d
		} else {
			logger.Warn("sweeper: invalid interval, using default",
				"interval", cfg.Interval, "default", defaultInterval)
		}
	}
	dedup := defaultAlertDedup
	if cfg.AlertDedup != "" {
		if d, err := time.ParseDuration(cfg.AlertDedup); err == nil && d > 0 {
			dedup = d
		} else {
			logger.Warn("sweeper: invalid alert dedup window, using default",
				"alertDedup", cfg.AlertDedup, "default", defaultAlertDedup)
		}
	}
	return &Sweeper{
		ledger:   led,
		alertFn:  alertFn,
		enqueue:  enqueue,
		logger:   logger,
		interval: interval,
		dedup:    dedup,
	}
}

// Start begins the sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("sweeper started", "interval", s.interval, "alert_dedup", s.dedup)
}

// Stop signals the sweeper to stop and waits for the current pass to finish.
func (s *Sweeper) Stop(_ context.Context) {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run once immediately on start.
	s.scan(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scan(ctx)
		}
	}
}

func (s *Sweeper) scan(ctx context.Context) {
	opts := CheckOptions{
		Ledger:     s.ledger,
		AlertFn:    s.alertFn,
		Enqueue:    s.enqueue,
		Logger:     s.logger,
		Now:        time.Now().UTC(),
		AlertDedup: s.dedup,
	}
	CheckStaleRetrievals(ctx, opts)
	CheckRestoredBacklog(ctx, opts)
	metrics.SweepCycles.Add(1)
}
