// Package testutil provides shared test utilities for rehydrate.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/frostline/rehydrate/internal/ledger"
	"github.com/frostline/rehydrate/pkg/types"
)

// Compile-time interface satisfaction check.
var _ ledger.Ledger = (*MockLedger)(nil)

// MockLedger is an in-memory Ledger implementation for testing.
type MockLedger struct {
	mu       sync.Mutex
	requests map[string]types.RecoveryRequest
	records  map[string]types.FileRecoveryRecord // key: "granuleID:fileKey"
	audit    []types.AuditEvent
	locks    map[string]time.Time // key -> expiry

	scanCount atomic.Int64 // incremented on each ListByStatus call
}

// NewMockLedger creates a new in-memory mock ledger.
func NewMockLedger() *MockLedger {
	return &MockLedger{
		requests: make(map[string]types.RecoveryRequest),
		records:  make(map[string]types.FileRecoveryRecord),
		locks:    make(map[string]time.Time),
	}
}

func recordKey(granuleID, fileKey string) string {
	return granuleID + ":" + fileKey
}

func (m *MockLedger) PutRequest(_ context.Context, req types.RecoveryRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[req.RequestID] = req
	return nil
}

func (m *MockLedger) GetRequest(_ context.Context, requestID string) (*types.RecoveryRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[requestID]
	if !ok {
		return nil, fmt.Errorf("request %s: %w", requestID, ledger.ErrNotFound)
	}
	return &r, nil
}

func (m *MockLedger) PutRecord(_ context.Context, rec types.FileRecoveryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := recordKey(rec.GranuleID, rec.FileKey)
	if _, exists := m.records[key]; exists {
		return fmt.Errorf("record %s/%s exists: %w", rec.GranuleID, rec.FileKey, ledger.ErrConflict)
	}
	m.records[key] = rec
	return nil
}

func (m *MockLedger) GetRecord(_ context.Context, granuleID, fileKey string) (*types.FileRecoveryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[recordKey(granuleID, fileKey)]
	if !ok {
		return nil, fmt.Errorf("record %s/%s: %w", granuleID, fileKey, ledger.ErrNotFound)
	}
	return &r, nil
}

func (m *MockLedger) CompareAndSwapRecord(_ context.Context, expectedVersion int, rec types.FileRecoveryRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := recordKey(rec.GranuleID, rec.FileKey)
	current, ok := m.records[key]
	if !ok {
		return false, nil
	}
	if current.Version != expectedVersion {
		return false, nil
	}
	m.records[key] = rec
	return true, nil
}

func (m *MockLedger) ListByGranule(_ context.Context, granuleID string) ([]types.FileRecoveryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []types.FileRecoveryRecord
	for _, r := range m.records {
		if r.GranuleID == granuleID {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].FileKey < result[j].FileKey })
	return result, nil
}

func (m *MockLedger) ListByRequest(_ context.Context, requestID string) ([]types.FileRecoveryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []types.FileRecoveryRecord
	for _, r := range m.records {
		if r.RequestID == requestID {
			result = append(result, r)
		}
	}
	sortRecords(result)
	return result, nil
}

func (m *MockLedger) FindBySourceLocation(_ context.Context, location string) (*types.FileRecoveryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matches []types.FileRecoveryRecord
	for _, r := range m.records {
		if r.SourceLocation() == location {
			matches = append(matches, r)
		}
	}
	sortRecords(matches)
	match := ledger.PreferLive(matches)
	if match == nil {
		return nil, fmt.Errorf("no record for location %q: %w", location, ledger.ErrNotFound)
	}
	return match, nil
}

func (m *MockLedger) ListByStatus(_ context.Context, status types.FileStatus) ([]types.FileRecoveryRecord, error) {
	m.scanCount.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []types.FileRecoveryRecord
	for _, r := range m.records {
		if r.Status == status {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.Before(result[j].UpdatedAt) })
	return result, nil
}

func sortRecords(records []types.FileRecoveryRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].GranuleID != records[j].GranuleID {
			return records[i].GranuleID < records[j].GranuleID
		}
		return records[i].FileKey < records[j].FileKey
	})
}

func (m *MockLedger) AppendAuditEvent(_ context.Context, ev types.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, ev)
	return nil
}

func (m *MockLedger) ListAuditEvents(_ context.Context, granuleID, fileKey string, limit int) ([]types.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	var result []types.AuditEvent
	for _, ev := range m.audit {
		if ev.GranuleID == granuleID && ev.FileKey == fileKey {
			result = append(result, ev)
		}
	}
	// Keep the newest entries, chronological.
	if len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

func (m *MockLedger) AcquireLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if expiry, held := m.locks[key]; held && time.Now().Before(expiry) {
		return false, nil
	}
	m.locks[key] = time.Now().Add(ttl)
	return true, nil
}

func (m *MockLedger) ReleaseLock(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
	return nil
}

func (m *MockLedger) Start(_ context.Context) error { return nil }
func (m *MockLedger) Stop(_ context.Context) error  { return nil }
func (m *MockLedger) Ping(_ context.Context) error  { return nil }

// ScanCount returns the number of times ListByStatus has been called.
// Useful for waiting until the sweeper has completed at least N scan cycles.
func (m *MockLedger) ScanCount() int64 {
	return m.scanCount.Load()
}

// SeedRecord writes a record directly, bypassing the create-only gate
// (test helper for placing a record mid-lifecycle).
func (m *MockLedger) SeedRecord(rec types.FileRecoveryRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[recordKey(rec.GranuleID, rec.FileKey)] = rec
}

// AuditEvents returns a copy of all stored audit events (test helper).
func (m *MockLedger) AuditEvents() []types.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.AuditEvent, len(m.audit))
	copy(out, m.audit)
	return out
}
