package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/frostline/rehydrate/internal/ledger"
	"github.com/frostline/rehydrate/pkg/types"
)

// SCAN batch size for cleanup and diagnostics over prefixed keys.
const scanBatchSize = 100

func (l *RedisLedger) requestKey(requestID string) string {
	return l.prefix + "request:" + requestID
}

func (l *RedisLedger) recordKey(granuleID, fileKey string) string {
	return l.prefix + "file:" + recordMember(granuleID, fileKey)
}

// recordMember is the index member naming a record. Members are resolved back
// to records by key lookup, never parsed, so file keys may contain anything.
func recordMember(granuleID, fileKey string) string {
	return granuleID + ":" + fileKey
}

func (l *RedisLedger) granuleIndexKey(granuleID string) string {
	return l.prefix + "granule:" + granuleID
}

func (l *RedisLedger) requestIndexKey(requestID string) string {
	return l.prefix + "request-files:" + requestID
}

func (l *RedisLedger) locationIndexKey(location string) string {
	return l.prefix + "loc:" + location
}

func (l *RedisLedger) statusIndexKey(status types.FileStatus) string {
	return l.prefix + "status:" + string(status)
}

func (l *RedisLedger) lockKey(key string) string {
	return l.prefix + "lock:" + key
}

// PutRequest stores an accepted recovery request.
func (l *RedisLedger) PutRequest(ctx context.Context, req types.RecoveryRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	return l.client.Set(ctx, l.requestKey(req.RequestID), data, 0).Err()
}

// GetRequest retrieves a recovery request.
func (l *RedisLedger) GetRequest(ctx context.Context, requestID string) (*types.RecoveryRequest, error) {
	data, err := l.client.Get(ctx, l.requestKey(requestID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("request %s: %w", requestID, ledger.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var req types.RecoveryRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// PutRecord creates a file recovery record. The record key is the conflict
// gate: a second create for the same (granule, file key) fails with
// ErrConflict and leaves the indexes untouched.
func (l *RedisLedger) PutRecord(ctx context.Context, rec types.FileRecoveryRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}

	ok, err := l.client.SetNX(ctx, l.recordKey(rec.GranuleID, rec.FileKey), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("record %s/%s exists: %w", rec.GranuleID, rec.FileKey, ledger.ErrConflict)
	}

	member := recordMember(rec.GranuleID, rec.FileKey)
	pipe := l.client.Pipeline()
	pipe.SAdd(ctx, l.granuleIndexKey(rec.GranuleID), rec.FileKey)
	pipe.SAdd(ctx, l.requestIndexKey(rec.RequestID), member)
	pipe.SAdd(ctx, l.locationIndexKey(rec.SourceLocation()), member)
	pipe.ZAdd(ctx, l.statusIndexKey(rec.Status), goredis.Z{
		Score:  float64(rec.UpdatedAt.UnixMilli()),
		Member: member,
	})
	_, err = pipe.Exec(ctx)
	return err
}

// GetRecord retrieves a file recovery record.
func (l *RedisLedger) GetRecord(ctx context.Context, granuleID, fileKey string) (*types.FileRecoveryRecord, error) {
	data, err := l.client.Get(ctx, l.recordKey(granuleID, fileKey)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("record %s/%s: %w", granuleID, fileKey, ledger.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var rec types.FileRecoveryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// CompareAndSwapRecord atomically replaces a record if the stored version
// matches expectedVersion. The server-side script also moves the record's
// status-index member in the same step, so the sweeper index never disagrees
// with the stored status.
func (l *RedisLedger) CompareAndSwapRecord(ctx context.Context, expectedVersion int, rec types.FileRecoveryRecord) (bool, error) {
	current, err := l.GetRecord(ctx, rec.GranuleID, rec.FileKey)
	if errors.Is(err, ledger.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("marshaling record: %w", err)
	}

	keys := []string{
		l.recordKey(rec.GranuleID, rec.FileKey),
		l.statusIndexKey(current.Status),
		l.statusIndexKey(rec.Status),
	}
	member := recordMember(rec.GranuleID, rec.FileKey)
	score := float64(rec.UpdatedAt.UnixMilli())

	result, err := l.casScript.Run(ctx, l.client, keys, expectedVersion, string(data), member, score).Int()
	if err != nil {
		return false, err
	}
	return result == 1, nil
}

// ListByGranule returns all file records for a granule, ordered by file key.
func (l *RedisLedger) ListByGranule(ctx context.Context, granuleID string) ([]types.FileRecoveryRecord, error) {
	fileKeys, err := l.client.SMembers(ctx, l.granuleIndexKey(granuleID)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(fileKeys)

	var records []types.FileRecoveryRecord
	for _, fileKey := range fileKeys {
		rec, err := l.GetRecord(ctx, granuleID, fileKey)
		if err != nil {
			l.logger.Warn("skipping unreadable record", "granuleID", granuleID, "fileKey", fileKey, "error", err)
			continue
		}
		records = append(records, *rec)
	}
	return records, nil
}

// ListByRequest returns all file records created for a request, ordered by
// granule then file key.
func (l *RedisLedger) ListByRequest(ctx context.Context, requestID string) ([]types.FileRecoveryRecord, error) {
	members, err := l.client.SMembers(ctx, l.requestIndexKey(requestID)).Result()
	if err != nil {
		return nil, err
	}
	records := l.fetchRecords(ctx, members)
	sortRecords(records)
	return records, nil
}

// FindBySourceLocation correlates a completion event to the record that
// staged the object at "bucket/key". Several records can share a location
// when a granule is re-requested; the live one wins.
func (l *RedisLedger) FindBySourceLocation(ctx context.Context, location string) (*types.FileRecoveryRecord, error) {
	members, err := l.client.SMembers(ctx, l.locationIndexKey(location)).Result()
	if err != nil {
		return nil, err
	}
	records := l.fetchRecords(ctx, members)
	sortRecords(records)

	match := ledger.PreferLive(records)
	if match == nil {
		return nil, fmt.Errorf("no record for location %q: %w", location, ledger.ErrNotFound)
	}
	return match, nil
}

// ListByStatus returns all records currently in the given status, ordered by
// update time. The status index moves atomically with every swap, so members
// here always match the stored status.
func (l *RedisLedger) ListByStatus(ctx context.Context, status types.FileStatus) ([]types.FileRecoveryRecord, error) {
	members, err := l.client.ZRange(ctx, l.statusIndexKey(status), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return l.fetchRecords(ctx, members), nil
}

func (l *RedisLedger) fetchRecords(ctx context.Context, members []string) []types.FileRecoveryRecord {
	var records []types.FileRecoveryRecord
	for _, member := range members {
		data, err := l.client.Get(ctx, l.prefix+"file:"+member).Bytes()
		if err != nil {
			l.logger.Warn("skipping unreadable record", "member", member, "error", err)
			continue
		}
		var rec types.FileRecoveryRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			l.logger.Warn("skipping corrupt record data", "member", member, "error", err)
			continue
		}
		records = append(records, rec)
	}
	return records
}

func sortRecords(records []types.FileRecoveryRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].GranuleID != records[j].GranuleID {
			return records[i].GranuleID < records[j].GranuleID
		}
		return records[i].FileKey < records[j].FileKey
	})
}

// AcquireLock attempts to acquire a distributed lock with the given key and TTL.
func (l *RedisLedger) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.lockKey(key), "1", ttl).Result()
	return ok, err
}

// ReleaseLock releases a distributed lock.
func (l *RedisLedger) ReleaseLock(ctx context.Context, key string) error {
	return l.client.Del(ctx, l.lockKey(key)).Err()
}
