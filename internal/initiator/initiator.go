// Package initiator turns accepted recovery requests into archive retrievals.
package initiator

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
	"golang.org/x/sync/errgroup"

	"github.com/frostline/rehydrate/internal/destination"
	"github.com/frostline/rehydrate/internal/ledger"
	"github.com/frostline/rehydrate/internal/lifecycle"
	"github.com/frostline/rehydrate/internal/metrics"
	"github.com/frostline/rehydrate/pkg/types"
)

var tracer = otel.Tracer("rehydrate.initiator")

// maxConcurrentInitiations bounds the per-request fan-out.
const maxConcurrentInitiations = 8

// ArchiveClient is the archive-tier capability the initiator consumes.
// Acceptance means the tier is staging the object; availability arrives later
// as a completion event.
type ArchiveClient interface {
	RequestRestore(ctx context.Context, bucket, key string, tier types.LatencyClass) error
	DefaultTier() types.LatencyClass
}

// Initiator creates ledger records and submits retrieval requests. Initiation
// is idempotent per file: re-running a request never double-creates records
// or disturbs in-flight recoveries.
type Initiator struct {
	ledger    ledger.Ledger
	archive   ArchiveClient
	resolver  *destination.Resolver
	deadlines types.DeadlineConfig
	notify    func(types.StatusChangeEvent)
	logger    *slog.Logger
}

// New creates an Initiator. notify may be nil.
func New(led ledger.Ledger, archive ArchiveClient, resolver *destination.Resolver, deadlines *types.DeadlineConfig, notify func(types.StatusChangeEvent)) *Initiator {
	cfg := types.DeadlineConfig{}
	if deadlines != nil {
		cfg = *deadlines
	}
	return &Initiator{
		ledger:    led,
		archive:   archive,
		resolver:  resolver,
		deadlines: cfg,
		notify:    notify,
		logger:    slog.Default(),
	}
}

// Initiate processes every file of every granule in the request and returns
// per-file outcomes in input order.
func (ini *Initiator) Initiate(ctx context.Context, req types.RecoveryRequest) []types.InitiationResult {
	type job struct {
		granuleID string
		file      types.FileSpec
	}
	var jobs []job
	for _, granule := range req.Granules {
		for _, file := range granule.Files {
			jobs = append(jobs, job{granuleID: granule.GranuleID, file: file})
		}
	}

	results := make([]types.InitiationResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentInitiations)
	for i, j := range jobs {
		g.Go(func() error {
			results[i] = ini.InitiateFile(gctx, req, j.granuleID, j.file)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// InitiateFile drives a single file to STAGED (or a terminal outcome).
// Existing records gate what happens: in-flight recoveries are left alone,
// COMPLETED files need the Force flag, FAILED files need Force or an explicit
// re-drive.
func (ini *Initiator) InitiateFile(ctx context.Context, req types.RecoveryRequest, granuleID string, file types.FileSpec) types.InitiationResult {
	ctx, span := tracer.Start(ctx, "initiator.InitiateFile", trace.WithAttributes(
		attribute.String("granule.id", granuleID),
		attribute.String("file.key", file.Key),
	))
	defer span.End()

	result := ini.initiateFile(ctx, req, granuleID, file)
	span.SetAttributes(attribute.String("outcome", string(result.Outcome)))
	if result.Outcome == types.OutcomeRejected {
		span.SetStatus(codes.Error, result.Reason)
	}
	return result
}

func (ini *Initiator) initiateFile(ctx context.Context, req types.RecoveryRequest, granuleID string, file types.FileSpec) types.InitiationResult {
	result := types.InitiationResult{GranuleID: granuleID, FileKey: file.Key}

	current, err := ini.ledger.GetRecord(ctx, granuleID, file.Key)
	switch {
	case err == nil:
		proceed, res := ini.gateExisting(ctx, req, current)
		if !proceed {
			return res
		}
	case errors.Is(err, ledger.ErrNotFound):
		rec, failure := ini.createRecord(ctx, req, granuleID, file)
		if failure != "" {
			result.Outcome = types.OutcomeRejected
			result.Reason = failure
			return result
		}
		if rec == nil {
			result.Outcome = types.OutcomeExcluded
			result.Reason = "file type excluded by profile"
			return result
		}
	default:
		result.Outcome = types.OutcomeRejected
		result.Reason = fmt.Sprintf("reading ledger: %v", err)
		return result
	}

	return ini.submitRestore(ctx, req, granuleID, file)
}

// gateExisting decides what an existing record allows. It returns true when
// initiation should continue to the restore submission.
func (ini *Initiator) gateExisting(ctx context.Context, req types.RecoveryRequest, current *types.FileRecoveryRecord) (bool, types.InitiationResult) {
	result := types.InitiationResult{GranuleID: current.GranuleID, FileKey: current.FileKey}

	switch {
	case current.Status == types.FilePending:
		// Record exists but staging may never have been submitted
		// (crash after create, or a fresh re-drive reset). Re-submitting
		// is safe; an in-flight restore reports already-in-progress.
		return true, result

	case !lifecycle.IsTerminal(current.Status):
		result.Outcome = types.OutcomeAccepted
		result.Reason = fmt.Sprintf("recovery already in progress (%s)", current.Status)
		return false, result

	case current.Status == types.FileCompleted && !req.Force:
		result.Outcome = types.OutcomeAlreadyRecovered
		return false, result

	case current.Status == types.FileCompleted:
		if err := ini.reset(ctx, current, "forced re-recovery", ledger.ForceReset); err != nil {
			result.Outcome = types.OutcomeRejected
			result.Reason = err.Error()
			return false, result
		}
		return true, result

	case req.Force:
		// FAILED with Force set: revive through the re-drive gate.
		if err := ini.reset(ctx, current, "re-driven by forced resubmission", ledger.Redrive); err != nil {
			result.Outcome = types.OutcomeRejected
			result.Reason = err.Error()
			return false, result
		}
		return true, result

	default:
		result.Outcome = types.OutcomeRejected
		result.Reason = "file previously failed; re-drive it or resubmit with force"
		return false, result
	}
}

type resetFn func(ctx context.Context, l ledger.Ledger, granuleID, fileKey string) (*types.FileRecoveryRecord, error)

func (ini *Initiator) reset(ctx context.Context, current *types.FileRecoveryRecord, detail string, fn resetFn) error {
	from := current.Status
	rec, err := fn(ctx, ini.ledger, current.GranuleID, current.FileKey)
	if err != nil {
		return fmt.Errorf("resetting %s/%s: %w", current.GranuleID, current.FileKey, err)
	}
	ini.appendAudit(ctx, rec, types.EventRedriven, from, types.FilePending, detail)
	ini.fireStatus(rec, from, detail)
	return nil
}

// createRecord resolves the destination and writes the PENDING record.
// A nil record with empty failure means the file is excluded.
func (ini *Initiator) createRecord(ctx context.Context, req types.RecoveryRequest, granuleID string, file types.FileSpec) (*types.FileRecoveryRecord, string) {
	res, err := ini.resolver.Resolve(req.Profile, file.Key, req.DestinationOverride)
	if err != nil {
		return nil, fmt.Sprintf("resolving destination: %v", err)
	}
	if res.Excluded {
		return nil, ""
	}

	tier := res.Tier
	if tier == "" {
		tier = ini.archive.DefaultTier()
	}
	now := time.Now().UTC()
	rec := types.FileRecoveryRecord{
		GranuleID:         granuleID,
		FileKey:           file.Key,
		RequestID:         req.RequestID,
		SourceBucket:      file.Bucket,
		SourceKey:         file.Key,
		DestinationBucket: res.Bucket,
		DestinationKey:    file.Key,
		Tier:              tier,
		Status:            types.FilePending,
		Version:           1,
		StatusChangedAt:   now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := ini.ledger.PutRecord(ctx, rec); err != nil {
		if errors.Is(err, ledger.ErrConflict) {
			// Another intake retry created it first; fall through to the
			// restore submission, which is idempotent.
			return &rec, ""
		}
		return nil, fmt.Sprintf("creating record: %v", err)
	}
	ini.appendAudit(ctx, &rec, types.EventRecordCreated, "", types.FilePending, "recovery record created")
	ini.fireStatus(&rec, "", "recovery record created")
	return &rec, ""
}

// submitRestore asks the archive tier to stage the object and records the
// outcome: PENDING→STAGED on acceptance, PENDING→FAILED on rejection.
func (ini *Initiator) submitRestore(ctx context.Context, req types.RecoveryRequest, granuleID string, file types.FileSpec) types.InitiationResult {
	result := types.InitiationResult{GranuleID: granuleID, FileKey: file.Key}

	current, err := ini.ledger.GetRecord(ctx, granuleID, file.Key)
	if err != nil {
		result.Outcome = types.OutcomeRejected
		result.Reason = fmt.Sprintf("reading ledger: %v", err)
		return result
	}
	tier := current.Tier
	if tier == "" {
		tier = ini.archive.DefaultTier()
	}

	if err := ini.archive.RequestRestore(ctx, current.SourceBucket, current.SourceKey, tier); err != nil {
		reason := err.Error()
		rec, applyErr := ledger.Apply(ctx, ini.ledger, granuleID, file.Key, types.FileFailed, func(r *types.FileRecoveryRecord) {
			r.LastError = reason
		})
		if applyErr != nil {
			ini.logger.Error("recording retrieval rejection", "granuleID", granuleID, "fileKey", file.Key, "error", applyErr)
		} else {
			ini.appendAudit(ctx, rec, types.EventRetrievalRejected, types.FilePending, types.FileFailed, reason)
			ini.fireStatus(rec, types.FilePending, reason)
		}
		metrics.RestoresRejected.Add(1)
		result.Outcome = types.OutcomeRejected
		result.Reason = reason
		return result
	}

	deadline := ini.deadlineFor(tier)
	rec, err := ledger.Apply(ctx, ini.ledger, granuleID, file.Key, types.FileStaged, func(r *types.FileRecoveryRecord) {
		r.Tier = tier
		dl := r.StatusChangedAt.Add(deadline)
		r.CompletionDeadline = &dl
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidTransition) {
			// A competing intake retry staged it already.
			result.Outcome = types.OutcomeAccepted
			result.Reason = "recovery already in progress"
			return result
		}
		result.Outcome = types.OutcomeRejected
		result.Reason = fmt.Sprintf("recording staging: %v", err)
		return result
	}
	ini.appendAudit(ctx, rec, types.EventRetrievalStaged, types.FilePending, types.FileStaged, fmt.Sprintf("staged at %s tier", tier))
	ini.fireStatus(rec, types.FilePending, "retrieval accepted")
	metrics.RestoresStaged.Add(1)

	result.Outcome = types.OutcomeAccepted
	return result
}

// deadlineFor returns the advisory completion window for a tier.
func (ini *Initiator) deadlineFor(tier types.LatencyClass) time.Duration {
	minutes := 0
	switch tier {
	case types.LatencyExpedited:
		minutes = ini.deadlines.ExpeditedMinutes
		if minutes <= 0 {
			minutes = 60
		}
	case types.LatencyBulk:
		minutes = ini.deadlines.BulkMinutes
		if minutes <= 0 {
			minutes = 2880
		}
	default:
		minutes = ini.deadlines.StandardMinutes
		if minutes <= 0 {
			minutes = 720
		}
	}
	return time.Duration(minutes) * time.Minute
}

func (ini *Initiator) appendAudit(ctx context.Context, rec *types.FileRecoveryRecord, kind types.EventKind, from, to types.FileStatus, detail string) {
	err := ini.ledger.AppendAuditEvent(ctx, types.AuditEvent{
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
		ini.logger.Warn("appending audit event", "granuleID", rec.GranuleID, "fileKey", rec.FileKey, "kind", kind, "error", err)
	}
}

func (ini *Initiator) fireStatus(rec *types.FileRecoveryRecord, from types.FileStatus, detail string) {
	if ini.notify == nil {
		return
	}
	ini.notify(types.StatusChangeEvent{
		GranuleID: rec.GranuleID,
		FileKey:   rec.FileKey,
		RequestID: rec.RequestID,
		From:      from,
		To:        rec.Status,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	})
}
