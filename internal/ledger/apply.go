package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/frostline/rehydrate/internal/lifecycle"
	"github.com/frostline/rehydrate/pkg/types"
)

// maxCASAttempts bounds the internal re-read-and-retry loop on version misses.
const maxCASAttempts = 4

// Apply transitions the record for (granuleID, fileKey) to the target status
// through a version-checked write, re-reading and retrying on concurrent-write
// misses. The transition is validated against the forward table; mutate, when
// non-nil, adjusts ancillary fields (retry count, errors, deadlines) on the
// candidate record and must not touch Status or Version. Returns the stored
// record on success. On an invalid transition the current record is returned
// alongside ErrInvalidTransition so callers can distinguish duplicates from
// real correlation errors.
func Apply(ctx context.Context, l Ledger, granuleID, fileKey string, to types.FileStatus, mutate func(*types.FileRecoveryRecord)) (*types.FileRecoveryRecord, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		current, err := l.GetRecord(ctx, granuleID, fileKey)
		if err != nil {
			return nil, err
		}
		if !lifecycle.CanTransition(current.Status, to) {
			return current, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, to)
		}
		next := *current
		now := time.Now().UTC()
		next.Status = to
		next.StatusChangedAt = now
		next.UpdatedAt = now
		if mutate != nil {
			mutate(&next)
		}
		next.Version = current.Version + 1

		ok, err := l.CompareAndSwapRecord(ctx, current.Version, next)
		if err != nil {
			return nil, err
		}
		if ok {
			return &next, nil
		}
	}
	return nil, fmt.Errorf("transitioning %s/%s to %s: %w", granuleID, fileKey, to, ErrConflict)
}

// Redrive resets a FAILED record to PENDING. This is the only operator-driven
// backward move and is gated separately from the forward table so automatic
// paths can never take it. The live retry counter and error fields reset;
// audit history is untouched.
func Redrive(ctx context.Context, l Ledger, granuleID, fileKey string) (*types.FileRecoveryRecord, error) {
	return resetToPending(ctx, l, granuleID, fileKey, lifecycle.CanRedrive, "redrive")
}

// ForceReset resets a COMPLETED record to PENDING for forced re-recovery.
// Only reachable through an explicit Force flag on resubmission.
func ForceReset(ctx context.Context, l Ledger, granuleID, fileKey string) (*types.FileRecoveryRecord, error) {
	return resetToPending(ctx, l, granuleID, fileKey, lifecycle.CanForceReset, "force reset")
}

func resetToPending(ctx context.Context, l Ledger, granuleID, fileKey string, gate func(types.FileStatus) bool, op string) (*types.FileRecoveryRecord, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		current, err := l.GetRecord(ctx, granuleID, fileKey)
		if err != nil {
			return nil, err
		}
		if !gate(current.Status) {
			return current, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, op, current.Status)
		}
		next := *current
		now := time.Now().UTC()
		next.Status = types.FilePending
		next.RetryCount = 0
		next.LastError = ""
		next.NextAttemptAt = nil
		next.CompletionDeadline = nil
		next.StatusChangedAt = now
		next.UpdatedAt = now
		next.Version = current.Version + 1

		ok, err := l.CompareAndSwapRecord(ctx, current.Version, next)
		if err != nil {
			return nil, err
		}
		if ok {
			return &next, nil
		}
	}
	return nil, fmt.Errorf("%s of %s/%s: %w", op, granuleID, fileKey, ErrConflict)
}
