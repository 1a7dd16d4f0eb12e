package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/frostline/rehydrate/internal/ledger"
	"github.com/frostline/rehydrate/pkg/types"
)

// GetRequest retrieves a recovery request definition.
func (l *PostgresLedger) GetRequest(ctx context.Context, requestID string) (*types.RecoveryRequest, error) {
	var data []byte
	err := l.pool.QueryRow(ctx, `
		SELECT data FROM recovery_requests WHERE request_id = $1
	`, requestID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("request %s: %w", requestID, ledger.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var req types.RecoveryRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("unmarshal request: %w", err)
	}
	return &req, nil
}

// GetRecord retrieves a file recovery record.
func (l *PostgresLedger) GetRecord(ctx context.Context, granuleID, fileKey string) (*types.FileRecoveryRecord, error) {
	var data []byte
	err := l.pool.QueryRow(ctx, `
		SELECT data FROM recovery_files WHERE granule_id = $1 AND file_key = $2
	`, granuleID, fileKey).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("record %s/%s: %w", granuleID, fileKey, ledger.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var rec types.FileRecoveryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &rec, nil
}

// ListByGranule returns every record of a granule, ordered by file key.
func (l *PostgresLedger) ListByGranule(ctx context.Context, granuleID string) ([]types.FileRecoveryRecord, error) {
	return l.queryRecords(ctx, `
		SELECT data FROM recovery_files
		WHERE granule_id = $1
		ORDER BY file_key
	`, granuleID)
}

// ListByRequest returns every record of a request, ordered by granule then file.
func (l *PostgresLedger) ListByRequest(ctx context.Context, requestID string) ([]types.FileRecoveryRecord, error) {
	return l.queryRecords(ctx, `
		SELECT data FROM recovery_files
		WHERE request_id = $1
		ORDER BY granule_id, file_key
	`, requestID)
}

// FindBySourceLocation correlates a "bucket/key" location to its record,
// preferring the non-terminal match when several records share a location.
func (l *PostgresLedger) FindBySourceLocation(ctx context.Context, location string) (*types.FileRecoveryRecord, error) {
	records, err := l.queryRecords(ctx, `
		SELECT data FROM recovery_files
		WHERE source_location = $1
		ORDER BY updated_at
	`, location)
	if err != nil {
		return nil, err
	}
	match := ledger.PreferLive(records)
	if match == nil {
		return nil, fmt.Errorf("no record for location %q: %w", location, ledger.ErrNotFound)
	}
	return match, nil
}

// ListByStatus returns records in a given status, oldest update first.
func (l *PostgresLedger) ListByStatus(ctx context.Context, status types.FileStatus) ([]types.FileRecoveryRecord, error) {
	return l.queryRecords(ctx, `
		SELECT data FROM recovery_files
		WHERE status = $1
		ORDER BY updated_at
	`, string(status))
}

func (l *PostgresLedger) queryRecords(ctx context.Context, sql string, args ...interface{}) ([]types.FileRecoveryRecord, error) {
	rows, err := l.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []types.FileRecoveryRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var rec types.FileRecoveryRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			l.logger.Warn("skipping corrupt record data", "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListAuditEvents returns recent audit events for a file in chronological order.
func (l *PostgresLedger) ListAuditEvents(ctx context.Context, granuleID, fileKey string, limit int) ([]types.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	// Newest N by insertion order, then reversed for chronological output.
	rows, err := l.pool.Query(ctx, `
		SELECT granule_id, file_key, COALESCE(request_id, ''), kind,
			COALESCE(from_status, ''), COALESCE(to_status, ''),
			COALESCE(detail, ''), timestamp
		FROM recovery_audit
		WHERE granule_id = $1 AND file_key = $2
		ORDER BY id DESC
		LIMIT $3
	`, granuleID, fileKey, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var newestFirst []types.AuditEvent
	for rows.Next() {
		var ev types.AuditEvent
		var kind, from, to string
		if err := rows.Scan(&ev.GranuleID, &ev.FileKey, &ev.RequestID, &kind,
			&from, &to, &ev.Detail, &ev.Timestamp); err != nil {
			return nil, err
		}
		ev.Kind = types.EventKind(kind)
		ev.FromStatus = types.FileStatus(from)
		ev.ToStatus = types.FileStatus(to)
		newestFirst = append(newestFirst, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	events := make([]types.AuditEvent, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		events = append(events, newestFirst[i])
	}
	return events, nil
}
