package ledgertest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostline/rehydrate/internal/ledger"
	"github.com/frostline/rehydrate/pkg/types"
)

// TestAuditAppendAndList verifies chronological order and per-file isolation.
func TestAuditAppendAndList(t *testing.T, led ledger.Ledger) {
	ctx := context.Background()

	now := time.Now().UTC()
	kinds := []types.EventKind{
		types.EventRecordCreated,
		types.EventRetrievalStaged,
		types.EventRestoreCompleted,
		types.EventCopyStarted,
		types.EventRecoveryCompleted,
	}
	for i, kind := range kinds {
		ev := types.AuditEvent{
			GranuleID: "ct-audit-g",
			FileKey:   "file-a.h5",
			RequestID: "ct-audit-req",
			Kind:      kind,
			Timestamp: now.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, led.AppendAuditEvent(ctx, ev))
		// Small delay to keep event keys unique.
		time.Sleep(5 * time.Millisecond)
	}

	// An event for a sibling file must not leak into the listing.
	require.NoError(t, led.AppendAuditEvent(ctx, types.AuditEvent{
		GranuleID: "ct-audit-g",
		FileKey:   "file-b.h5",
		Kind:      types.EventRecordCreated,
		Timestamp: now,
	}))

	events, err := led.ListAuditEvents(ctx, "ct-audit-g", "file-a.h5", 10)
	require.NoError(t, err)
	require.Len(t, events, 5)
	assert.Equal(t, types.EventRecordCreated, events[0].Kind)
	assert.Equal(t, types.EventRecoveryCompleted, events[4].Kind)
}

// TestAuditListLimit verifies limit keeps the newest events, still chronological.
func TestAuditListLimit(t *testing.T, led ledger.Ledger) {
	ctx := context.Background()

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		ev := types.AuditEvent{
			GranuleID: "ct-limit-g",
			FileKey:   "file-a.h5",
			Kind:      types.EventCopyRetryScheduled,
			Detail:    fmt.Sprintf("attempt %d", i),
			Timestamp: now.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, led.AppendAuditEvent(ctx, ev))
		time.Sleep(5 * time.Millisecond)
	}

	events, err := led.ListAuditEvents(ctx, "ct-limit-g", "file-a.h5", 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "attempt 3", events[0].Detail)
	assert.Equal(t, "attempt 4", events[1].Detail)
}
