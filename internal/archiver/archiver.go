// Package archiver provides a background process that copies terminal recovery
// records and their audit trails from the hot ledger to Postgres for durable
// long-term retention.
package archiver

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/frostline/rehydrate/internal/ledger"
	"github.com/frostline/rehydrate/internal/metrics"
	"github.com/frostline/rehydrate/pkg/types"
)

const (
	defaultInterval = 5 * time.Minute

	// auditFetchLimit bounds a single trail read. A trail holds one entry per
	// transition, so even a heavily re-driven file fits in one fetch.
	auditFetchLimit = 500
)

// terminalStatuses are the only statuses the archiver copies. Records still
// moving stay in the hot ledger untouched.
var terminalStatuses = []types.FileStatus{types.FileCompleted, types.FileFailed}

// Destination defines the write interface for the archival backend.
//
// Trail inserts carry the position of the first event within the file's
// trail; implementations must ignore replays of already-archived positions
// rather than duplicate them.
type Destination interface {
	UpsertRequest(ctx context.Context, req types.RecoveryRequest) error
	UpsertRecord(ctx context.Context, rec types.FileRecoveryRecord) error
	InsertAuditEvents(ctx context.Context, events []types.AuditEvent, startSeq int) error
	GetCursor(ctx context.Context, granuleID, fileKey string) (int, error)
	SetCursor(ctx context.Context, granuleID, fileKey string, position int) error
}

// Archiver periodically copies terminal records, their parent requests, and
// their audit trails from the hot ledger to the archival backend.
type Archiver struct {
	source   ledger.Ledger
	dest     Destination
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a new Archiver.
func New(source ledger.Ledger, dest Destination, interval time.Duration, logger *slog.Logger) *Archiver {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Archiver{
		source:   source,
		dest:     dest,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the archiver background loop.
func (a *Archiver) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	a.wg.Add(1)
	go a.loop(ctx)
	a.logger.Info("archiver started", "interval", a.interval)
}

// Stop signals the archiver to stop and waits for it to finish.
func (a *Archiver) Stop(_ context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	a.logger.Info("archiver stopped")
}

func (a *Archiver) loop(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	// Run once immediately on start
	a.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

func (a *Archiver) tick(ctx context.Context) {
	seenRequests := make(map[string]bool)
	for _, status := range terminalStatuses {
		records, err := a.source.ListByStatus(ctx, status)
		if err != nil {
			a.logger.Error("archiver: list records failed", "status", status, "error", err)
			continue
		}
		for _, rec := range records {
			if ctx.Err() != nil {
				return
			}
			a.archiveRecord(ctx, rec, seenRequests)
		}
	}
}

func (a *Archiver) archiveRecord(ctx context.Context, rec types.FileRecoveryRecord, seenRequests map[string]bool) {
	if rec.RequestID != "" && !seenRequests[rec.RequestID] {
		seenRequests[rec.RequestID] = true
		a.archiveRequest(ctx, rec.RequestID)
	}

	if err := a.dest.UpsertRecord(ctx, rec); err != nil {
		a.logger.Error("archiver: upsert record failed",
			"granuleID", rec.GranuleID, "fileKey", rec.FileKey, "error", err)
		return
	}

	// A record counts as archived when its trail gains ground. Re-upserting an
	// already-drained record on later passes is idempotent noise, not progress.
	if n := a.archiveTrail(ctx, rec.GranuleID, rec.FileKey); n > 0 {
		metrics.RecordsArchived.Add(1)
		a.logger.Debug("archived record",
			"granuleID", rec.GranuleID, "fileKey", rec.FileKey, "events", n)
	}
}

func (a *Archiver) archiveRequest(ctx context.Context, requestID string) {
	req, err := a.source.GetRequest(ctx, requestID)
	if err != nil {
		// A missing request is not an error; records can outlive their request.
		if !errors.Is(err, ledger.ErrNotFound) {
			a.logger.Error("archiver: get request failed", "requestID", requestID, "error", err)
		}
		return
	}
	if err := a.dest.UpsertRequest(ctx, *req); err != nil {
		a.logger.Error("archiver: upsert request failed", "requestID", requestID, "error", err)
	}
}

// archiveTrail copies trail entries past the stored cursor and returns how
// many were inserted.
func (a *Archiver) archiveTrail(ctx context.Context, granuleID, fileKey string) int {
	cursor, err := a.dest.GetCursor(ctx, granuleID, fileKey)
	if err != nil {
		a.logger.Error("archiver: get cursor failed",
			"granuleID", granuleID, "fileKey", fileKey, "error", err)
		return 0
	}

	events, err := a.source.ListAuditEvents(ctx, granuleID, fileKey, auditFetchLimit)
	if err != nil {
		a.logger.Error("archiver: list audit events failed",
			"granuleID", granuleID, "fileKey", fileKey, "error", err)
		return 0
	}
	if len(events) <= cursor {
		return 0
	}

	pending := events[cursor:]
	if err := a.dest.InsertAuditEvents(ctx, pending, cursor); err != nil {
		a.logger.Error("archiver: insert audit events failed",
			"granuleID", granuleID, "fileKey", fileKey, "error", err)
		return 0 // Don't advance cursor on failure
	}

	if err := a.dest.SetCursor(ctx, granuleID, fileKey, len(events)); err != nil {
		a.logger.Error("archiver: set cursor failed",
			"granuleID", granuleID, "fileKey", fileKey, "error", err)
	}
	return len(pending)
}
