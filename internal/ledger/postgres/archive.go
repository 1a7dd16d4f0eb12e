package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/frostline/rehydrate/pkg/types"
)

// The methods in this file serve the archiver when Postgres is the archival
// backend behind a hot ledger. They are not part of the Ledger interface.

// UpsertRequest archives a recovery request. Requests are immutable, so the
// archival write is the same upsert intake uses.
func (l *PostgresLedger) UpsertRequest(ctx context.Context, req types.RecoveryRequest) error {
	return l.PutRequest(ctx, req)
}

// UpsertRecord archives a file recovery record, replacing any earlier copy.
func (l *PostgresLedger) UpsertRecord(ctx context.Context, rec types.FileRecoveryRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	_, err = l.pool.Exec(ctx, `
		INSERT INTO recovery_files (granule_id, file_key, request_id, source_location,
			status, version, data, created_at, updated_at, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (granule_id, file_key) DO UPDATE SET
			status      = EXCLUDED.status,
			version     = EXCLUDED.version,
			data        = EXCLUDED.data,
			updated_at  = EXCLUDED.updated_at,
			archived_at = NOW()
	`, rec.GranuleID, rec.FileKey, rec.RequestID, rec.SourceLocation(),
		string(rec.Status), rec.Version, string(data), rec.CreatedAt, rec.UpdatedAt)
	return err
}

// InsertAuditEvents batch-inserts copied trail entries. Each entry is keyed by
// its position in the file's trail, so replaying an already-archived batch is
// a no-op rather than a duplicate.
func (l *PostgresLedger) InsertAuditEvents(ctx context.Context, events []types.AuditEvent, startSeq int) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i, ev := range events {
		_, err := tx.Exec(ctx, `
			INSERT INTO recovery_audit (granule_id, file_key, request_id, kind,
				from_status, to_status, detail, timestamp, seq)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (granule_id, file_key, seq) WHERE seq IS NOT NULL DO NOTHING
		`, ev.GranuleID, ev.FileKey, ev.RequestID, string(ev.Kind),
			string(ev.FromStatus), string(ev.ToStatus), ev.Detail, ev.Timestamp, startSeq+i)
		if err != nil {
			return fmt.Errorf("insert audit event: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// GetCursor retrieves the archive trail position for a file. A file never
// archived before starts at zero.
func (l *PostgresLedger) GetCursor(ctx context.Context, granuleID, fileKey string) (int, error) {
	var position int
	err := l.pool.QueryRow(ctx, `
		SELECT position FROM archive_cursors
		WHERE granule_id = $1 AND file_key = $2
	`, granuleID, fileKey).Scan(&position)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return position, nil
}

// SetCursor records the archive trail position for a file.
func (l *PostgresLedger) SetCursor(ctx context.Context, granuleID, fileKey string, position int) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO archive_cursors (granule_id, file_key, position, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (granule_id, file_key) DO UPDATE SET
			position   = EXCLUDED.position,
			updated_at = NOW()
	`, granuleID, fileKey, position)
	return err
}
