package types

import "time"

// InitiationResult is the per-file outcome of submitting or re-driving a
// recovery.
type InitiationResult struct {
	GranuleID string      `json:"granuleId"`
	FileKey   string      `json:"fileKey"`
	Outcome   FileOutcome `json:"outcome"`
	Reason    string      `json:"reason,omitempty"`
}

// SubmitResult is returned by recovery submission. It reports acceptance only;
// completion is observed later through status queries.
type SubmitResult struct {
	RequestID string             `json:"requestId"`
	Files     []InitiationResult `json:"files"`
}

// FileStatusView is the read-model projection of a FileRecoveryRecord.
type FileStatusView struct {
	FileKey            string       `json:"fileKey"`
	Status             FileStatus   `json:"status"`
	Tier               LatencyClass `json:"tier,omitempty"`
	DestinationBucket  string       `json:"destinationBucket,omitempty"`
	RetryCount         int          `json:"retryCount"`
	LastError          string       `json:"lastError,omitempty"`
	CompletionDeadline *time.Time   `json:"completionDeadline,omitempty"`
	Stale              bool         `json:"stale,omitempty"`
	StatusChangedAt    time.Time    `json:"statusChangedAt"`
}

// GranuleStatusView folds a granule's file records into an aggregate view.
type GranuleStatusView struct {
	GranuleID string           `json:"granuleId"`
	RequestID string           `json:"requestId,omitempty"`
	Status    AggregateStatus  `json:"status"`
	Files     []FileStatusView `json:"files"`
}

// RequestStatusView folds every granule of a request into one view.
type RequestStatusView struct {
	RequestID   string              `json:"requestId"`
	RequestedBy string              `json:"requestedBy,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
	Status      AggregateStatus     `json:"status"`
	Granules    []GranuleStatusView `json:"granules"`
	Counts      map[FileStatus]int  `json:"counts,omitempty"`
}

// StaleRecord flags a file staged past its advisory completion deadline.
type StaleRecord struct {
	GranuleID string        `json:"granuleId"`
	FileKey   string        `json:"fileKey"`
	Deadline  time.Time     `json:"deadline"`
	Overdue   time.Duration `json:"overdueSeconds"`
}
