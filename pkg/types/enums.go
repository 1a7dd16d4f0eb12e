package types

// FileStatus represents the recovery lifecycle state of a single file.
type FileStatus string

// FileStatus values represent the recovery lifecycle states of a file.
const (
	FilePending   FileStatus = "PENDING"
	FileStaged    FileStatus = "STAGED"
	FileRestored  FileStatus = "RESTORED"
	FileCopying   FileStatus = "COPYING"
	FileCompleted FileStatus = "COMPLETED"
	FileFailed    FileStatus = "FAILED"
)

// AggregateStatus is the derived status of a granule or request, folded from
// file statuses. Never stored; always recomputed by readers.
type AggregateStatus string

// AggregateStatus values enumerate the derived granule/request states.
const (
	AggregateInProgress AggregateStatus = "IN_PROGRESS"
	AggregateCompleted  AggregateStatus = "COMPLETED"
	AggregateFailed     AggregateStatus = "FAILED"
)

// LatencyClass is the archive-tier retrieval tier. It affects the expected
// completion window, not engine behavior.
type LatencyClass string

// LatencyClass values enumerate the supported retrieval tiers.
const (
	LatencyExpedited LatencyClass = "expedited"
	LatencyStandard  LatencyClass = "standard"
	LatencyBulk      LatencyClass = "bulk"
)

// FileOutcome is the per-file result reported by request submission.
type FileOutcome string

// FileOutcome values enumerate the possible per-file submission results.
const (
	OutcomeAccepted         FileOutcome = "ACCEPTED"
	OutcomeAlreadyRecovered FileOutcome = "ALREADY_RECOVERED"
	OutcomeRejected         FileOutcome = "REJECTED"
	OutcomeExcluded         FileOutcome = "EXCLUDED"
)

// AlertType defines the alert sink type.
type AlertType string

// AlertType values enumerate the supported alert sink backends.
const (
	AlertConsole AlertType = "console"
	AlertWebhook AlertType = "webhook"
	AlertFile    AlertType = "file"
	AlertSNS     AlertType = "sns"
	AlertS3      AlertType = "s3"
)

// AlertLevel is the severity of an operator alert.
type AlertLevel string

const (
	AlertLevelError   AlertLevel = "error"
	AlertLevelWarning AlertLevel = "warning"
	AlertLevelInfo    AlertLevel = "info"
)

// FailureCategory classifies why a copy or retrieval attempt failed.
type FailureCategory string

const (
	FailureTransient FailureCategory = "TRANSIENT"
	FailurePermanent FailureCategory = "PERMANENT"
	FailureTimeout   FailureCategory = "TIMEOUT"
)

// EventKind classifies the type of audit event.
type EventKind string

// EventKind values enumerate the categories of recorded events.
const (
	EventRecordCreated      EventKind = "RECORD_CREATED"
	EventRetrievalStaged    EventKind = "RETRIEVAL_STAGED"
	EventRetrievalRejected  EventKind = "RETRIEVAL_REJECTED"
	EventRestoreCompleted   EventKind = "RESTORE_COMPLETED"
	EventRestoreFailed      EventKind = "RESTORE_FAILED"
	EventCopyStarted        EventKind = "COPY_STARTED"
	EventCopyRetryScheduled EventKind = "COPY_RETRY_SCHEDULED"
	EventCopyExhausted      EventKind = "COPY_EXHAUSTED"
	EventRecoveryCompleted  EventKind = "RECOVERY_COMPLETED"
	EventRedriven           EventKind = "REDRIVEN"
	EventStaleFlagged       EventKind = "STALE_FLAGGED"
)
