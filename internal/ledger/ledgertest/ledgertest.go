// Package ledgertest provides shared conformance tests for ledger.Ledger
// implementations. Call RunAll from a test function to verify a backend
// satisfies the full behavioral contract.
package ledgertest

import (
	"testing"

	"github.com/frostline/rehydrate/internal/ledger"
)

// RunAll runs the complete ledger conformance suite as subtests.
func RunAll(t *testing.T, led ledger.Ledger) {
	t.Helper()

	t.Run("RequestPutGet", func(t *testing.T) { TestRequestPutGet(t, led) })
	t.Run("RecordCreateGet", func(t *testing.T) { TestRecordCreateGet(t, led) })
	t.Run("RecordDuplicateCreate", func(t *testing.T) { TestRecordDuplicateCreate(t, led) })
	t.Run("CompareAndSwap", func(t *testing.T) { TestCompareAndSwap(t, led) })
	t.Run("CASRaceCondition", func(t *testing.T) { TestCASRaceCondition(t, led) })
	t.Run("ListByGranule", func(t *testing.T) { TestListByGranule(t, led) })
	t.Run("ListByRequest", func(t *testing.T) { TestListByRequest(t, led) })
	t.Run("FindBySourceLocation", func(t *testing.T) { TestFindBySourceLocation(t, led) })
	t.Run("ListByStatus", func(t *testing.T) { TestListByStatus(t, led) })
	t.Run("AuditAppendAndList", func(t *testing.T) { TestAuditAppendAndList(t, led) })
	t.Run("AuditListLimit", func(t *testing.T) { TestAuditListLimit(t, led) })
	t.Run("Locking", func(t *testing.T) { TestLocking(t, led) })
	t.Run("LockContention", func(t *testing.T) { TestLockContention(t, led) })
	t.Run("LockExpiry", func(t *testing.T) { TestLockExpiry(t, led) })
}
