package lifecycle

import "github.com/frostline/rehydrate/pkg/types"

// Aggregate folds file statuses into the derived granule (or request) status:
// COMPLETED iff every file is COMPLETED; FAILED iff at least one file is
// FAILED and none are still in flight; IN_PROGRESS otherwise. An empty set is
// IN_PROGRESS. Pure; the result is never stored.
func Aggregate(statuses []types.FileStatus) types.AggregateStatus {
	if len(statuses) == 0 {
		return types.AggregateInProgress
	}
	allCompleted := true
	anyFailed := false
	anyInFlight := false
	for _, s := range statuses {
		if s != types.FileCompleted {
			allCompleted = false
		}
		if s == types.FileFailed {
			anyFailed = true
		}
		if InFlight(s) {
			anyInFlight = true
		}
	}
	if allCompleted {
		return types.AggregateCompleted
	}
	if anyFailed && !anyInFlight {
		return types.AggregateFailed
	}
	return types.AggregateInProgress
}

// AggregateRecords is Aggregate over full records.
func AggregateRecords(records []types.FileRecoveryRecord) types.AggregateStatus {
	statuses := make([]types.FileStatus, len(records))
	for i, r := range records {
		statuses[i] = r.Status
	}
	return Aggregate(statuses)
}
