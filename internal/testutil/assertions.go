package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/frostline/rehydrate/pkg/types"
)

// WaitFor polls check every 10ms until it returns true or timeout is reached.
func WaitFor(t *testing.T, timeout time.Duration, check func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for condition: %s", msg)
}

// WaitForStatus polls until the file record reaches the given status.
func WaitForStatus(t *testing.T, led *MockLedger, granuleID, fileKey string, status types.FileStatus, timeout time.Duration) types.FileRecoveryRecord {
	t.Helper()
	var rec types.FileRecoveryRecord
	WaitFor(t, timeout, func() bool {
		got, err := led.GetRecord(context.Background(), granuleID, fileKey)
		if err != nil {
			return false
		}
		rec = *got
		return rec.Status == status
	}, "record "+granuleID+"/"+fileKey+" at status "+string(status))
	return rec
}

// WaitForAuditKind polls until an audit event of the given kind exists for the file.
func WaitForAuditKind(t *testing.T, led *MockLedger, granuleID, fileKey string, kind types.EventKind, timeout time.Duration) {
	t.Helper()
	WaitFor(t, timeout, func() bool {
		for _, ev := range led.AuditEvents() {
			if ev.GranuleID == granuleID && ev.FileKey == fileKey && ev.Kind == kind {
				return true
			}
		}
		return false
	}, "audit event "+string(kind)+" for "+granuleID+"/"+fileKey)
}

// WaitForScanCount polls until the ledger's ListByStatus has been called at
// least n times, indicating the sweeper has completed that many scan cycles.
func WaitForScanCount(t *testing.T, led *MockLedger, n int64, timeout time.Duration) {
	t.Helper()
	WaitFor(t, timeout, func() bool {
		return led.ScanCount() >= n
	}, "sweeper scan count >= target")
}
