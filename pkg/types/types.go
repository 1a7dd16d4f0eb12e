// Package types defines the public domain types for the rehydrate recovery engine.
package types

import "time"

// FileSpec names a single archived object within a granule.
type FileSpec struct {
	Key    string `yaml:"key" json:"key"`
	Bucket string `yaml:"bucket" json:"bucket"`
}

// GranuleSpec groups the files recovered together as one logical unit.
type GranuleSpec struct {
	GranuleID string     `yaml:"granuleId" json:"granuleId"`
	Files     []FileSpec `yaml:"files" json:"files"`
}

// RecoveryRequest is the accepted intent to recover a set of granules.
// Immutable once persisted.
type RecoveryRequest struct {
	RequestID           string        `yaml:"requestId,omitempty" json:"requestId"`
	RequestedBy         string        `yaml:"requestedBy,omitempty" json:"requestedBy,omitempty"`
	Profile             string        `yaml:"profile,omitempty" json:"profile,omitempty"`
	DestinationOverride string        `yaml:"destinationOverride,omitempty" json:"destinationOverride,omitempty"`
	Force               bool          `yaml:"force,omitempty" json:"force,omitempty"`
	Granules            []GranuleSpec `yaml:"granules" json:"granules"`
	CreatedAt           time.Time     `yaml:"-" json:"createdAt"`
}

// FileRecoveryRecord is the durable per-file recovery state. One active record
// exists per (granule, file key); the ledger serializes writes via Version.
type FileRecoveryRecord struct {
	GranuleID          string       `json:"granuleId"`
	FileKey            string       `json:"fileKey"`
	RequestID          string       `json:"requestId"`
	SourceBucket       string       `json:"sourceBucket"`
	SourceKey          string       `json:"sourceKey"`
	DestinationBucket  string       `json:"destinationBucket"`
	DestinationKey     string       `json:"destinationKey"`
	Tier               LatencyClass `json:"tier,omitempty"`
	Status             FileStatus   `json:"status"`
	RetryCount         int          `json:"retryCount"`
	LastError          string       `json:"lastError,omitempty"`
	CompletionDeadline *time.Time   `json:"completionDeadline,omitempty"`
	NextAttemptAt      *time.Time   `json:"nextAttemptAt,omitempty"`
	Version            int          `json:"version"`
	StatusChangedAt    time.Time    `json:"statusChangedAt"`
	CreatedAt          time.Time    `json:"createdAt"`
	UpdatedAt          time.Time    `json:"updatedAt"`
}

// SourceLocation returns the canonical "bucket/key" form used to correlate
// completion events back to the record that staged them.
func (r FileRecoveryRecord) SourceLocation() string {
	return r.SourceBucket + "/" + r.SourceKey
}

// CompletionEvent is an inbound archive-tier notification that a staged
// object is available (or that the retrieval failed). Delivered at-least-once
// with arbitrary delay and duplication.
type CompletionEvent struct {
	Bucket        string    `json:"bucket"`
	Key           string    `json:"key"`
	AvailableAt   time.Time `json:"availableAt"`
	Success       bool      `json:"success"`
	FailureReason string    `json:"failureReason,omitempty"`
}

// SourceLocation returns the "bucket/key" correlation form of the event.
func (e CompletionEvent) SourceLocation() string {
	return e.Bucket + "/" + e.Key
}

// AuditEvent is an append-only trail entry recording a record's transition
// history. Entries are never rewritten; re-drive appends, it does not erase.
type AuditEvent struct {
	GranuleID  string     `json:"granuleId"`
	FileKey    string     `json:"fileKey"`
	RequestID  string     `json:"requestId,omitempty"`
	Kind       EventKind  `json:"kind"`
	FromStatus FileStatus `json:"fromStatus,omitempty"`
	ToStatus   FileStatus `json:"toStatus,omitempty"`
	Detail     string     `json:"detail,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// StatusChangeEvent is the normalized payload published to the status topic
// on every file transition.
type StatusChangeEvent struct {
	GranuleID string     `json:"granuleId"`
	FileKey   string     `json:"fileKey"`
	RequestID string     `json:"requestId,omitempty"`
	From      FileStatus `json:"from,omitempty"`
	To        FileStatus `json:"to"`
	Detail    string     `json:"detail,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Alert represents an operator alert to be dispatched.
type Alert struct {
	AlertID   string                 `json:"alertId,omitempty"`
	Level     AlertLevel             `json:"level"`
	Category  string                 `json:"alertType,omitempty"`
	GranuleID string                 `json:"granuleId,omitempty"`
	FileKey   string                 `json:"fileKey,omitempty"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
