// Package lifecycle implements the file recovery state machine and the
// granule aggregate fold.
package lifecycle

import (
	"fmt"

	"github.com/frostline/rehydrate/pkg/types"
)

// Transition table: from -> allowed tos. Strictly forward; the re-drive path
// (FAILED -> PENDING) is deliberately absent so no automatic caller can take
// it. See CanRedrive.
var validTransitions = map[types.FileStatus][]types.FileStatus{
	types.FilePending:   {types.FileStaged, types.FileFailed},
	types.FileStaged:    {types.FileRestored, types.FileFailed},
	types.FileRestored:  {types.FileCopying},
	types.FileCopying:   {types.FileCompleted, types.FileRestored, types.FileFailed},
	types.FileCompleted: {},
	types.FileFailed:    {},
}

// CanTransition checks if transitioning from one file status to another is valid.
func CanTransition(from, to types.FileStatus) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Transition validates the move, returning an error if it is invalid.
func Transition(from, to types.FileStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// IsTerminal returns true if the status is a terminal (final) state.
func IsTerminal(status types.FileStatus) bool {
	return status == types.FileCompleted || status == types.FileFailed
}

// InFlight returns true for statuses with work still pending or in motion.
func InFlight(status types.FileStatus) bool {
	return !IsTerminal(status)
}

// CanRedrive reports whether an operator re-drive may reset the record.
// Re-drive is the only operator-driven backward move and only ever from FAILED.
func CanRedrive(from types.FileStatus) bool {
	return from == types.FileFailed
}

// CanForceReset reports whether a forced resubmission may reset the record.
// Forced re-recovery only applies to COMPLETED files; everything else is
// either still in flight or belongs to the re-drive path.
func CanForceReset(from types.FileStatus) bool {
	return from == types.FileCompleted
}
