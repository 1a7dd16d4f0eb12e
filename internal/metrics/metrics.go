// Package metrics exposes runtime counters via expvar.
package metrics

import "expvar"

var (
	RequestsSubmitted         = expvar.NewInt("requests_submitted")
	FilesInitiated            = expvar.NewInt("files_initiated")
	RestoresStaged            = expvar.NewInt("restores_staged")
	RestoresRejected          = expvar.NewInt("restores_rejected")
	RestoresCompleted         = expvar.NewInt("restores_completed")
	RestoresFailed            = expvar.NewInt("restores_failed")
	CompletionEventsReceived  = expvar.NewInt("completion_events_received")
	CompletionEventsUnmatched = expvar.NewInt("completion_events_unmatched")
	CompletionEventsDuplicate = expvar.NewInt("completion_events_duplicate")
	CopiesStarted             = expvar.NewInt("copies_started")
	CopiesCompleted           = expvar.NewInt("copies_completed")
	CopiesRetried             = expvar.NewInt("copies_retried")
	CopiesExhausted           = expvar.NewInt("copies_exhausted")
	Redrives                  = expvar.NewInt("redrives")
	StaleRecordsFlagged       = expvar.NewInt("stale_records_flagged")
	SweepCycles               = expvar.NewInt("sweep_cycles")
	AlertsDispatched          = expvar.NewInt("alerts_dispatched")
	AlertsFailed              = expvar.NewInt("alerts_failed")
	StatusEventsPublished     = expvar.NewInt("status_events_published")
	AuditEventsPublished      = expvar.NewInt("audit_events_published")
	RecordsArchived           = expvar.NewInt("records_archived")
)
