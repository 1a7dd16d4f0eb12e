// Package status serves read-model views over the recovery ledger. Every
// query reflects the ledger at call time; aggregate statuses are folded on
// read and never stored.
package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/frostline/rehydrate/internal/ledger"
	"github.com/frostline/rehydrate/internal/lifecycle"
	"github.com/frostline/rehydrate/pkg/types"
)

// Service answers status queries against the ledger.
type Service struct {
	ledger ledger.Ledger
}

// New creates a status Service backed by the given ledger.
func New(led ledger.Ledger) *Service {
	return &Service{ledger: led}
}

// GetFileStatus returns the view of a single file recovery record.
func (s *Service) GetFileStatus(ctx context.Context, granuleID, fileKey string) (*types.FileStatusView, error) {
	rec, err := s.ledger.GetRecord(ctx, granuleID, fileKey)
	if err != nil {
		return nil, fmt.Errorf("loading record %s/%s: %w", granuleID, fileKey, err)
	}
	view := fileView(*rec, time.Now().UTC())
	return &view, nil
}

// GetGranuleStatus folds a granule's file records into one view. The granule
// status is derived from the current file statuses: COMPLETED only when every
// file completed, FAILED when at least one failed and none are still moving,
// IN_PROGRESS otherwise.
func (s *Service) GetGranuleStatus(ctx context.Context, granuleID string) (*types.GranuleStatusView, error) {
	records, err := s.ledger.ListByGranule(ctx, granuleID)
	if err != nil {
		return nil, fmt.Errorf("listing records for granule %s: %w", granuleID, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("granule %s: %w", granuleID, ledger.ErrNotFound)
	}

	now := time.Now().UTC()
	files := make([]types.FileStatusView, len(records))
	for i, rec := range records {
		files[i] = fileView(rec, now)
	}

	return &types.GranuleStatusView{
		GranuleID: granuleID,
		RequestID: records[0].RequestID,
		Status:    lifecycle.AggregateRecords(records),
		Files:     files,
	}, nil
}

// GetRequestStatus folds every granule of a request into one view, with
// per-status file counts. The stored request supplies requester and creation
// time; a request whose records were archived away still resolves as long as
// the request itself is present, and vice versa.
func (s *Service) GetRequestStatus(ctx context.Context, requestID string) (*types.RequestStatusView, error) {
	req, err := s.ledger.GetRequest(ctx, requestID)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		return nil, fmt.Errorf("loading request %s: %w", requestID, err)
	}

	records, err := s.ledger.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("listing records for request %s: %w", requestID, err)
	}
	if req == nil && len(records) == 0 {
		return nil, fmt.Errorf("request %s: %w", requestID, ledger.ErrNotFound)
	}

	view := &types.RequestStatusView{
		RequestID: requestID,
		Status:    lifecycle.AggregateRecords(records),
		Granules:  groupByGranule(records),
		Counts:    countByStatus(records),
	}
	if req != nil {
		view.RequestedBy = req.RequestedBy
		view.CreatedAt = req.CreatedAt
	}
	return view, nil
}

// GetAuditTrail returns the audit events for one file, oldest first. The
// record must exist; a limit of zero or less falls back to the ledger default.
func (s *Service) GetAuditTrail(ctx context.Context, granuleID, fileKey string, limit int) ([]types.AuditEvent, error) {
	if _, err := s.ledger.GetRecord(ctx, granuleID, fileKey); err != nil {
		return nil, fmt.Errorf("loading record %s/%s: %w", granuleID, fileKey, err)
	}
	events, err := s.ledger.ListAuditEvents(ctx, granuleID, fileKey, limit)
	if err != nil {
		return nil, fmt.Errorf("listing audit events for %s/%s: %w", granuleID, fileKey, err)
	}
	return events, nil
}

// ListStale returns STAGED records whose advisory completion deadline passed
// before now. Staleness is a flag for operators; the records themselves stay
// STAGED because archive retrieval timelines vary and late is not failed.
func (s *Service) ListStale(ctx context.Context, now time.Time) ([]types.StaleRecord, error) {
	records, err := s.ledger.ListByStatus(ctx, types.FileStaged)
	if err != nil {
		return nil, fmt.Errorf("listing staged records: %w", err)
	}

	var stale []types.StaleRecord
	for _, rec := range records {
		if rec.CompletionDeadline == nil || !now.After(*rec.CompletionDeadline) {
			continue
		}
		stale = append(stale, types.StaleRecord{
			GranuleID: rec.GranuleID,
			FileKey:   rec.FileKey,
			Deadline:  *rec.CompletionDeadline,
			Overdue:   now.Sub(*rec.CompletionDeadline),
		})
	}
	return stale, nil
}

func fileView(rec types.FileRecoveryRecord, now time.Time) types.FileStatusView {
	view := types.FileStatusView{
		FileKey:            rec.FileKey,
		Status:             rec.Status,
		Tier:               rec.Tier,
		DestinationBucket:  rec.DestinationBucket,
		RetryCount:         rec.RetryCount,
		LastError:          rec.LastError,
		CompletionDeadline: rec.CompletionDeadline,
		StatusChangedAt:    rec.StatusChangedAt,
	}
	if rec.Status == types.FileStaged && rec.CompletionDeadline != nil && now.After(*rec.CompletionDeadline) {
		view.Stale = true
	}
	return view
}

// groupByGranule preserves the ledger's (granule, file key) ordering.
func groupByGranule(records []types.FileRecoveryRecord) []types.GranuleStatusView {
	now := time.Now().UTC()
	var granules []types.GranuleStatusView
	index := make(map[string]int)
	byGranule := make(map[string][]types.FileRecoveryRecord)

	for _, rec := range records {
		if _, ok := index[rec.GranuleID]; !ok {
			index[rec.GranuleID] = len(granules)
			granules = append(granules, types.GranuleStatusView{
				GranuleID: rec.GranuleID,
				RequestID: rec.RequestID,
			})
		}
		byGranule[rec.GranuleID] = append(byGranule[rec.GranuleID], rec)
		granules[index[rec.GranuleID]].Files = append(granules[index[rec.GranuleID]].Files, fileView(rec, now))
	}

	for i := range granules {
		granules[i].Status = lifecycle.AggregateRecords(byGranule[granules[i].GranuleID])
	}
	return granules
}

func countByStatus(records []types.FileRecoveryRecord) map[types.FileStatus]int {
	if len(records) == 0 {
		return nil
	}
	counts := make(map[types.FileStatus]int)
	for _, rec := range records {
		counts[rec.Status]++
	}
	return counts
}
