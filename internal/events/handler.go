// Package events consumes archive completion notifications and advances
// staged records toward the copy stage. Delivery is at-least-once, hours
// delayed and possibly duplicated; the handler is idempotent and correlates
// events to records purely by source location.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/frostline/rehydrate/internal/ledger"
	"github.com/frostline/rehydrate/internal/metrics"
	"github.com/frostline/rehydrate/pkg/types"
)

var tracer = otel.Tracer("rehydrate.events")

// Handler applies completion events to the ledger. Side effects are confined
// to ledger writes, the copy enqueue and the notify hook; transports stay in
// their own adapters.
type Handler struct {
	ledger  ledger.Ledger
	enqueue func(types.FileRecoveryRecord) bool
	notify  func(types.StatusChangeEvent)
	logger  *slog.Logger
}

// NewHandler creates a Handler. enqueue hands a freshly RESTORED record to
// the copy stage and reports whether it was accepted; the sweeper re-enqueues
// records the queue could not take. enqueue and notify may be nil.
func NewHandler(led ledger.Ledger, enqueue func(types.FileRecoveryRecord) bool, notify func(types.StatusChangeEvent)) *Handler {
	return &Handler{
		ledger:  led,
		enqueue: enqueue,
		notify:  notify,
		logger:  slog.Default(),
	}
}

// Handle correlates one completion event to its record and advances it.
// Unmatched and duplicate events are dropped, not errors; an error return
// means a ledger write failed and the event should be redelivered.
func (h *Handler) Handle(ctx context.Context, ev types.CompletionEvent) error {
	ctx, span := tracer.Start(ctx, "events.Handle", trace.WithAttributes(
		attribute.String("source.location", ev.SourceLocation()),
		attribute.Bool("success", ev.Success),
	))
	defer span.End()

	if err := h.handle(ctx, ev); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion handling failed")
		return err
	}
	return nil
}

func (h *Handler) handle(ctx context.Context, ev types.CompletionEvent) error {
	metrics.CompletionEventsReceived.Add(1)
	location := ev.SourceLocation()

	rec, err := h.ledger.FindBySourceLocation(ctx, location)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			h.logger.Warn("completion event matches no record", "location", location, "success", ev.Success)
			metrics.CompletionEventsUnmatched.Add(1)
			return nil
		}
		return fmt.Errorf("correlating completion event %q: %w", location, err)
	}

	if rec.Status != types.FileStaged {
		// Past staging already (or not yet staged): a duplicate, late or
		// early delivery. At-least-once tolerates all three.
		h.logger.Debug("completion event ignored", "granuleID", rec.GranuleID, "fileKey", rec.FileKey, "status", rec.Status)
		metrics.CompletionEventsDuplicate.Add(1)
		return nil
	}

	if !ev.Success {
		return h.handleFailure(ctx, rec, ev)
	}
	return h.handleSuccess(ctx, rec, ev)
}

func (h *Handler) handleSuccess(ctx context.Context, rec *types.FileRecoveryRecord, ev types.CompletionEvent) error {
	updated, err := ledger.Apply(ctx, h.ledger, rec.GranuleID, rec.FileKey, types.FileRestored, nil)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidTransition) {
			// Lost the race to a concurrent delivery of the same event.
			h.logger.Debug("restore already recorded", "granuleID", rec.GranuleID, "fileKey", rec.FileKey)
			metrics.CompletionEventsDuplicate.Add(1)
			return nil
		}
		return fmt.Errorf("recording restore for %s/%s: %w", rec.GranuleID, rec.FileKey, err)
	}

	h.appendAudit(ctx, updated, types.EventRestoreCompleted, rec.Status, types.FileRestored,
		fmt.Sprintf("object available since %s", ev.AvailableAt.UTC().Format(time.RFC3339)))
	h.fireStatus(updated, rec.Status, "archive restore completed")
	metrics.RestoresCompleted.Add(1)

	if h.enqueue != nil && !h.enqueue(*updated) {
		// Not fatal: the record is durably RESTORED and the sweeper will
		// hand it to a worker on its next pass.
		h.logger.Warn("copy queue full", "granuleID", updated.GranuleID, "fileKey", updated.FileKey)
	}
	return nil
}

func (h *Handler) handleFailure(ctx context.Context, rec *types.FileRecoveryRecord, ev types.CompletionEvent) error {
	reason := ev.FailureReason
	if reason == "" {
		reason = "archive retrieval failed"
	}
	updated, err := ledger.Apply(ctx, h.ledger, rec.GranuleID, rec.FileKey, types.FileFailed, func(r *types.FileRecoveryRecord) {
		r.LastError = reason
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidTransition) {
			h.logger.Debug("failure already recorded", "granuleID", rec.GranuleID, "fileKey", rec.FileKey)
			return nil
		}
		return fmt.Errorf("recording restore failure for %s/%s: %w", rec.GranuleID, rec.FileKey, err)
	}

	h.appendAudit(ctx, updated, types.EventRestoreFailed, rec.Status, types.FileFailed, reason)
	h.fireStatus(updated, rec.Status, reason)
	metrics.RestoresFailed.Add(1)
	return nil
}

func (h *Handler) appendAudit(ctx context.Context, rec *types.FileRecoveryRecord, kind types.EventKind, from, to types.FileStatus, detail string) {
	err := h.ledger.AppendAuditEvent(ctx, types.AuditEvent{
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
		h.logger.Warn("appending audit event", "granuleID", rec.GranuleID, "fileKey", rec.FileKey, "kind", kind, "error", err)
	}
}

func (h *Handler) fireStatus(rec *types.FileRecoveryRecord, from types.FileStatus, detail string) {
	if h.notify == nil {
		return
	}
	h.notify(types.StatusChangeEvent{
		GranuleID: rec.GranuleID,
		FileKey:   rec.FileKey,
		RequestID: rec.RequestID,
		From:      from,
		To:        rec.Status,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	})
}
