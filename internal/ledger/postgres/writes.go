package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/frostline/rehydrate/internal/ledger"
	"github.com/frostline/rehydrate/pkg/types"
)

// PutRequest stores a recovery request definition. Requests are immutable;
// the upsert keeps intake retries idempotent.
func (l *PostgresLedger) PutRequest(ctx context.Context, req types.RecoveryRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	_, err = l.pool.Exec(ctx, `
		INSERT INTO recovery_requests (request_id, data)
		VALUES ($1, $2)
		ON CONFLICT (request_id) DO UPDATE SET data = EXCLUDED.data
	`, req.RequestID, string(data))
	return err
}

// PutRecord creates a record. Create-only: an existing (granule, file key)
// pair fails with ErrConflict.
func (l *PostgresLedger) PutRecord(ctx context.Context, rec types.FileRecoveryRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	tag, err := l.pool.Exec(ctx, `
		INSERT INTO recovery_files (granule_id, file_key, request_id, source_location,
			status, version, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (granule_id, file_key) DO NOTHING
	`, rec.GranuleID, rec.FileKey, rec.RequestID, rec.SourceLocation(),
		string(rec.Status), rec.Version, string(data), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %s/%s exists: %w", rec.GranuleID, rec.FileKey, ledger.ErrConflict)
	}
	return nil
}

// CompareAndSwapRecord atomically updates a record if the version matches.
// The source location is fixed at creation and never rewritten.
func (l *PostgresLedger) CompareAndSwapRecord(ctx context.Context, expectedVersion int, rec types.FileRecoveryRecord) (bool, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}

	tag, err := l.pool.Exec(ctx, `
		UPDATE recovery_files SET
			status     = $1,
			version    = $2,
			data       = $3,
			updated_at = $4
		WHERE granule_id = $5 AND file_key = $6 AND version = $7
	`, string(rec.Status), rec.Version, string(data), rec.UpdatedAt,
		rec.GranuleID, rec.FileKey, expectedVersion)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// AppendAuditEvent appends an audit event. The trail is append-only and
// retained indefinitely.
func (l *PostgresLedger) AppendAuditEvent(ctx context.Context, ev types.AuditEvent) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO recovery_audit (granule_id, file_key, request_id, kind,
			from_status, to_status, detail, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, ev.GranuleID, ev.FileKey, ev.RequestID, string(ev.Kind),
		string(ev.FromStatus), string(ev.ToStatus), ev.Detail, ev.Timestamp)
	return err
}

// AcquireLock attempts to acquire a distributed lock with the given key and
// TTL. The upsert steals the row only when the previous holder has expired.
func (l *PostgresLedger) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	tag, err := l.pool.Exec(ctx, `
		INSERT INTO recovery_locks (lock_key, expires_at)
		VALUES ($1, NOW() + $2::interval)
		ON CONFLICT (lock_key) DO UPDATE SET expires_at = EXCLUDED.expires_at
		WHERE recovery_locks.expires_at < NOW()
	`, key, fmt.Sprintf("%f seconds", ttl.Seconds()))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseLock releases a distributed lock.
func (l *PostgresLedger) ReleaseLock(ctx context.Context, key string) error {
	_, err := l.pool.Exec(ctx, `DELETE FROM recovery_locks WHERE lock_key = $1`, key)
	return err
}
