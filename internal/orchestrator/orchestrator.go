// Package orchestrator coordinates recovery submission and operator
// re-drives. It validates, persists the request and delegates the per-file
// work to the initiator; it never waits for completion.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/frostline/rehydrate/internal/destination"
	"github.com/frostline/rehydrate/internal/initiator"
	"github.com/frostline/rehydrate/internal/ledger"
	"github.com/frostline/rehydrate/internal/metrics"
	"github.com/frostline/rehydrate/pkg/types"
)

// Orchestrator is the write-side entry point for recovery requests.
type Orchestrator struct {
	ledger    ledger.Ledger
	initiator *initiator.Initiator
	resolver  *destination.Resolver
	notify    func(types.StatusChangeEvent)
	logger    *slog.Logger
}

// New creates an Orchestrator. notify may be nil.
func New(led ledger.Ledger, ini *initiator.Initiator, resolver *destination.Resolver, notify func(types.StatusChangeEvent)) *Orchestrator {
	return &Orchestrator{
		ledger:    led,
		initiator: ini,
		resolver:  resolver,
		notify:    notify,
		logger:    slog.Default(),
	}
}

// SubmitRecovery validates and accepts a recovery request. The returned
// result reports per-file acceptance only; recovery itself completes through
// the asynchronous pipeline.
func (o *Orchestrator) SubmitRecovery(ctx context.Context, req types.RecoveryRequest) (*types.SubmitResult, error) {
	if err := o.validate(req); err != nil {
		return nil, err
	}

	if req.RequestID == "" {
		req.RequestID = ulid.Make().String()
	}
	req.CreatedAt = time.Now().UTC()

	if err := o.ledger.PutRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("persisting request %s: %w", req.RequestID, err)
	}
	metrics.RequestsSubmitted.Add(1)
	o.logger.Info("recovery request accepted", "requestID", req.RequestID, "granules", len(req.Granules), "force", req.Force)

	results := o.initiator.Initiate(ctx, req)
	metrics.FilesInitiated.Add(int64(len(results)))

	return &types.SubmitResult{RequestID: req.RequestID, Files: results}, nil
}

// Redrive revives a single FAILED file. The record resets to PENDING through
// the version-checked gate and the initiator resubmits the retrieval.
func (o *Orchestrator) Redrive(ctx context.Context, granuleID, fileKey string) (*types.InitiationResult, error) {
	current, err := o.ledger.GetRecord(ctx, granuleID, fileKey)
	if err != nil {
		return nil, fmt.Errorf("loading record %s/%s: %w", granuleID, fileKey, err)
	}

	reset, err := ledger.Redrive(ctx, o.ledger, granuleID, fileKey)
	if err != nil {
		return nil, fmt.Errorf("re-driving %s/%s: %w", granuleID, fileKey, err)
	}
	metrics.Redrives.Add(1)

	if err := o.ledger.AppendAuditEvent(ctx, types.AuditEvent{
		GranuleID:  granuleID,
		FileKey:    fileKey,
		RequestID:  reset.RequestID,
		Kind:       types.EventRedriven,
		FromStatus: current.Status,
		ToStatus:   types.FilePending,
		Detail:     "operator re-drive",
		Timestamp:  time.Now().UTC(),
	}); err != nil {
		o.logger.Warn("appending audit event", "granuleID", granuleID, "fileKey", fileKey, "error", err)
	}
	if o.notify != nil {
		o.notify(types.StatusChangeEvent{
			GranuleID: granuleID,
			FileKey:   fileKey,
			RequestID: reset.RequestID,
			From:      current.Status,
			To:        types.FilePending,
			Detail:    "operator re-drive",
			Timestamp: time.Now().UTC(),
		})
	}
	o.logger.Info("record re-driven", "granuleID", granuleID, "fileKey", fileKey, "requestID", reset.RequestID)

	req := o.requestFor(ctx, reset.RequestID)
	result := o.initiator.InitiateFile(ctx, req, granuleID, types.FileSpec{Key: fileKey, Bucket: reset.SourceBucket})
	return &result, nil
}

// requestFor loads the originating request, falling back to a bare stand-in
// when it is gone. A re-driven record carries its own destination and tier,
// so the stand-in only needs the ID.
func (o *Orchestrator) requestFor(ctx context.Context, requestID string) types.RecoveryRequest {
	req, err := o.ledger.GetRequest(ctx, requestID)
	if err != nil {
		o.logger.Debug("originating request not found", "requestID", requestID, "error", err)
		return types.RecoveryRequest{RequestID: requestID}
	}
	return *req
}

func (o *Orchestrator) validate(req types.RecoveryRequest) error {
	if len(req.Granules) == 0 {
		return &types.ValidationError{Field: "granules", Reason: "at least one granule is required"}
	}

	seen := make(map[string]bool)
	for i, granule := range req.Granules {
		if granule.GranuleID == "" {
			return &types.ValidationError{Field: fmt.Sprintf("granules[%d].granuleId", i), Reason: "granule ID is required"}
		}
		if len(granule.Files) == 0 {
			return &types.ValidationError{Field: fmt.Sprintf("granules[%d].files", i), Reason: "at least one file is required"}
		}
		for j, file := range granule.Files {
			field := fmt.Sprintf("granules[%d].files[%d]", i, j)
			if file.Key == "" {
				return &types.ValidationError{Field: field + ".key", Reason: "file key is required"}
			}
			if file.Bucket == "" {
				return &types.ValidationError{Field: field + ".bucket", Reason: "source bucket is required"}
			}
			id := granule.GranuleID + "/" + file.Key
			if seen[id] {
				return &types.ValidationError{Field: field, Reason: fmt.Sprintf("duplicate file %s", id)}
			}
			seen[id] = true
			if _, err := o.resolver.Resolve(req.Profile, file.Key, req.DestinationOverride); err != nil {
				return &types.ValidationError{Field: field, Reason: err.Error()}
			}
		}
	}
	return nil
}
