// Package ledger defines the durable status store contract for recovery state.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/frostline/rehydrate/internal/lifecycle"
	"github.com/frostline/rehydrate/pkg/types"
)

// Sentinel errors shared by every backend.
var (
	// ErrNotFound is returned when the requested record or request does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a concurrent writer won; callers re-read and retry.
	ErrConflict = errors.New("write conflict")
	// ErrInvalidTransition is returned when a requested status is not reachable
	// from the record's current status.
	ErrInvalidTransition = errors.New("invalid transition")
)

// PreferLive picks the record a completion event should correlate to when
// several records share a source location: the first non-terminal one, or the
// last match when all are terminal. Returns nil for an empty slice.
func PreferLive(records []types.FileRecoveryRecord) *types.FileRecoveryRecord {
	if len(records) == 0 {
		return nil
	}
	match := records[len(records)-1]
	for _, rec := range records {
		if !lifecycle.IsTerminal(rec.Status) {
			match = rec
			break
		}
	}
	return &match
}

// Ledger is the storage backend interface. Implementations: DynamoDB
// (primary), Postgres, Redis/Valkey, plus the in-memory mock in testutil.
type Ledger interface {
	// Recovery requests: immutable intent, persisted at acceptance
	PutRequest(ctx context.Context, req types.RecoveryRequest) error
	GetRequest(ctx context.Context, requestID string) (*types.RecoveryRequest, error)

	// File recovery records. PutRecord creates only, failing with ErrConflict
	// if the (granule, file key) pair already has a record.
	// CompareAndSwapRecord applies the new state only when the stored version
	// equals expectedVersion, returning (false, nil) on a miss.
	PutRecord(ctx context.Context, rec types.FileRecoveryRecord) error
	GetRecord(ctx context.Context, granuleID, fileKey string) (*types.FileRecoveryRecord, error)
	CompareAndSwapRecord(ctx context.Context, expectedVersion int, rec types.FileRecoveryRecord) (bool, error)
	ListByGranule(ctx context.Context, granuleID string) ([]types.FileRecoveryRecord, error)
	ListByRequest(ctx context.Context, requestID string) ([]types.FileRecoveryRecord, error)

	// FindBySourceLocation correlates a completion event ("bucket/key") to the
	// record that staged it. Prefers the non-terminal match when several
	// records share a location.
	FindBySourceLocation(ctx context.Context, location string) (*types.FileRecoveryRecord, error)

	// Sweeper scans
	ListByStatus(ctx context.Context, status types.FileStatus) ([]types.FileRecoveryRecord, error)

	// Audit trail: append-only, chronological
	AppendAuditEvent(ctx context.Context, ev types.AuditEvent) error
	ListAuditEvents(ctx context.Context, granuleID, fileKey string, limit int) ([]types.AuditEvent, error)

	// Best-effort dedup locking for sweeper alerts
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error

	// Lifecycle
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Ping(ctx context.Context) error
}
