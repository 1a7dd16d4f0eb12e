// Package executor runs the copy stage: a bounded worker pool that claims
// RESTORED records, copies them to their destination and drives them to a
// terminal status or back into a retry window.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/frostline/rehydrate/internal/copier"
	"github.com/frostline/rehydrate/internal/ledger"
	"github.com/frostline/rehydrate/internal/metrics"
	"github.com/frostline/rehydrate/pkg/types"
)

var (
	tracer = otel.Tracer("rehydrate.executor")

	copySeconds, _ = otel.Meter("rehydrate.executor").Float64Histogram(
		"rehydrate.copy.duration",
		metric.WithDescription("Wall time of one copy attempt"),
		metric.WithUnit("s"))
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 256
)

// CopyClient is the copy capability the executor consumes.
type CopyClient interface {
	Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error
}

// Executor consumes enqueued RESTORED records and copies them. The queue is a
// throughput optimization only; the ledger remains the source of truth and
// the sweeper re-feeds anything the queue loses across restarts.
type Executor struct {
	ledger ledger.Ledger
	copy   CopyClient
	policy types.RetryPolicy
	notify func(types.StatusChangeEvent)
	logger *slog.Logger

	queue   chan workItem
	workers int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type workItem struct {
	granuleID string
	fileKey   string
}

// New creates an Executor. policy zero-values fall back to the default retry
// policy; notify may be nil.
func New(led ledger.Ledger, copyClient CopyClient, cfg types.ExecutorConfig, policy *types.RetryPolicy, notify func(types.StatusChangeEvent)) *Executor {
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	p := DefaultRetryPolicy()
	if policy != nil && policy.MaxAttempts > 0 {
		p = *policy
	}
	return &Executor{
		ledger:  led,
		copy:    copyClient,
		policy:  p,
		notify:  notify,
		logger:  slog.Default(),
		queue:   make(chan workItem, queueSize),
		workers: workers,
	}
}

// Enqueue offers a record to the pool without blocking. A false return means
// the queue is full; the record stays RESTORED in the ledger and the sweeper
// will offer it again.
func (e *Executor) Enqueue(rec types.FileRecoveryRecord) bool {
	select {
	case e.queue <- workItem{granuleID: rec.GranuleID, fileKey: rec.FileKey}:
		return true
	default:
		return false
	}
}

// ProcessOne runs a single copy attempt for a record synchronously, outside
// the worker pool. One-shot execution modes use this instead of Start and
// Enqueue; the retry, audit and notify behavior is identical.
func (e *Executor) ProcessOne(ctx context.Context, granuleID, fileKey string) {
	e.process(ctx, workItem{granuleID: granuleID, fileKey: fileKey})
}

// Start launches the worker pool.
func (e *Executor) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	e.logger.Info("copy executor started", "workers", e.workers, "maxAttempts", e.policy.MaxAttempts)
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case item := <-e.queue:
					e.process(ctx, item)
				}
			}
		}()
	}
}

// Stop gracefully shuts down the pool. In-flight copies finish; queued items
// are dropped and re-fed by the sweeper later.
func (e *Executor) Stop(ctx context.Context) {
	if e.cancel != nil {
		e.cancel()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("copy executor stopped")
	case <-ctx.Done():
		e.logger.Warn("copy executor stop timed out")
	}
}

// process claims one record and runs a single copy attempt.
func (e *Executor) process(ctx context.Context, item workItem) {
	rec, err := e.ledger.GetRecord(ctx, item.granuleID, item.fileKey)
	if err != nil {
		if !errors.Is(err, ledger.ErrNotFound) {
			e.logger.Error("loading record for copy", "granuleID", item.granuleID, "fileKey", item.fileKey, "error", err)
		}
		return
	}
	if rec.Status != types.FileRestored {
		return // another worker already has it, or it moved on
	}
	if rec.NextAttemptAt != nil && time.Now().Before(*rec.NextAttemptAt) {
		return // backoff window still open; the sweeper re-offers later
	}

	attempt := rec.RetryCount + 1
	claimed, err := ledger.Apply(ctx, e.ledger, item.granuleID, item.fileKey, types.FileCopying, func(r *types.FileRecoveryRecord) {
		r.NextAttemptAt = nil
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidTransition) {
			return // lost the claim to a concurrent worker
		}
		e.logger.Error("claiming record for copy", "granuleID", item.granuleID, "fileKey", item.fileKey, "error", err)
		return
	}
	metrics.CopiesStarted.Add(1)
	e.appendAudit(ctx, claimed, types.EventCopyStarted, types.FileRestored, types.FileCopying,
		fmt.Sprintf("attempt %d/%d", attempt, e.policy.MaxAttempts))
	e.fireStatus(claimed, types.FileRestored, fmt.Sprintf("copy attempt %d", attempt))

	ctx, span := tracer.Start(ctx, "executor.CopyAttempt", trace.WithAttributes(
		attribute.String("granule.id", claimed.GranuleID),
		attribute.String("file.key", claimed.FileKey),
		attribute.Int("attempt", attempt),
	))
	defer span.End()

	start := time.Now()
	copyErr := e.copy.Copy(ctx, claimed.SourceBucket, claimed.SourceKey, claimed.DestinationBucket, claimed.DestinationKey)
	copySeconds.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.Bool("success", copyErr == nil)))
	if copyErr == nil {
		e.complete(ctx, claimed)
		return
	}
	span.RecordError(copyErr)
	span.SetStatus(codes.Error, "copy attempt failed")
	e.handleCopyFailure(ctx, claimed, attempt, copyErr)
}

func (e *Executor) complete(ctx context.Context, claimed *types.FileRecoveryRecord) {
	rec, err := ledger.Apply(ctx, e.ledger, claimed.GranuleID, claimed.FileKey, types.FileCompleted, func(r *types.FileRecoveryRecord) {
		r.LastError = ""
	})
	if err != nil {
		e.logger.Error("recording copy completion", "granuleID", claimed.GranuleID, "fileKey", claimed.FileKey, "error", err)
		return
	}
	metrics.CopiesCompleted.Add(1)
	e.appendAudit(ctx, rec, types.EventRecoveryCompleted, types.FileCopying, types.FileCompleted, "file recovered to destination")
	e.fireStatus(rec, types.FileCopying, "recovery completed")
	e.logger.Info("file recovered", "granuleID", rec.GranuleID, "fileKey", rec.FileKey, "destination", rec.DestinationBucket)
}

func (e *Executor) handleCopyFailure(ctx context.Context, claimed *types.FileRecoveryRecord, attempt int, copyErr error) {
	category := copier.Classify(copyErr)
	retryable := IsRetryable(e.policy, category) && attempt < e.policy.MaxAttempts

	if !retryable {
		detail := fmt.Sprintf("exhausted %d attempts: %v", attempt, copyErr)
		if !IsRetryable(e.policy, category) {
			detail = fmt.Sprintf("non-retryable (%s): %v", category, copyErr)
		}
		rec, err := ledger.Apply(ctx, e.ledger, claimed.GranuleID, claimed.FileKey, types.FileFailed, func(r *types.FileRecoveryRecord) {
			r.RetryCount = attempt
			r.LastError = copyErr.Error()
		})
		if err != nil {
			e.logger.Error("recording copy failure", "granuleID", claimed.GranuleID, "fileKey", claimed.FileKey, "error", err)
			return
		}
		metrics.CopiesExhausted.Add(1)
		e.appendAudit(ctx, rec, types.EventCopyExhausted, types.FileCopying, types.FileFailed, detail)
		e.fireStatus(rec, types.FileCopying, detail)
		e.logger.Warn("copy failed terminally", "granuleID", rec.GranuleID, "fileKey", rec.FileKey, "attempt", attempt, "category", category, "error", copyErr)
		return
	}

	backoff := CalculateBackoff(e.policy, attempt)
	nextAttempt := time.Now().UTC().Add(backoff)
	rec, err := ledger.Apply(ctx, e.ledger, claimed.GranuleID, claimed.FileKey, types.FileRestored, func(r *types.FileRecoveryRecord) {
		r.RetryCount = attempt
		r.LastError = copyErr.Error()
		r.NextAttemptAt = &nextAttempt
	})
	if err != nil {
		e.logger.Error("recording copy retry", "granuleID", claimed.GranuleID, "fileKey", claimed.FileKey, "error", err)
		return
	}
	metrics.CopiesRetried.Add(1)
	e.appendAudit(ctx, rec, types.EventCopyRetryScheduled, types.FileCopying, types.FileRestored,
		fmt.Sprintf("retry %d/%d after %s: %v", attempt+1, e.policy.MaxAttempts, backoff, copyErr))
	e.fireStatus(rec, types.FileCopying, fmt.Sprintf("copy retry scheduled in %s", backoff))
	e.logger.Warn("copy attempt failed", "granuleID", rec.GranuleID, "fileKey", rec.FileKey, "attempt", attempt, "category", category, "nextAttempt", nextAttempt, "error", copyErr)
}

func (e *Executor) appendAudit(ctx context.Context, rec *types.FileRecoveryRecord, kind types.EventKind, from, to types.FileStatus, detail string) {
	err := e.ledger.AppendAuditEvent(ctx, types.AuditEvent{
		GranuleID:  rec.GranuleID,
		FileKey:    rec.FileKey,
		RequestID:  rec.RequestID,
		Kind:       kind,
		FromStatus: from,
		ToStatus:   to,
		Detail:     detail,
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		e.logger.Warn("appending audit event", "granuleID", rec.GranuleID, "fileKey", rec.FileKey, "kind", kind, "error", err)
	}
}

func (e *Executor) fireStatus(rec *types.FileRecoveryRecord, from types.FileStatus, detail string) {
	if e.notify == nil {
		return
	}
	e.notify(types.StatusChangeEvent{
		GranuleID: rec.GranuleID,
		FileKey:   rec.FileKey,
		RequestID: rec.RequestID,
		From:      from,
		To:        rec.Status,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	})
}
