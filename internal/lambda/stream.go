package lambda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/frostline/rehydrate/internal/metrics"
	"github.com/frostline/rehydrate/pkg/types"
)

// SNS message size limit
const maxAuditMessageBytes = 256 * 1024

// RouteStreamRecord inspects one ledger-table stream record and publishes the
// matching notification: terminal status changes of truth records go to the
// status topic, audit events to the audit topic. Request list copies and lock
// items are skipped. Publishes are best-effort: errors are logged, not
// returned.
//
// Stream publication replaces the inline notify hook when the ledger runs on
// DynamoDB; workers then run without STATUS_TOPIC_ARN so each transition is
// published once.
func RouteStreamRecord(ctx context.Context, d *Deps, logger *slog.Logger, record events.DynamoDBEventRecord) {
	if record.EventName != "INSERT" && record.EventName != "MODIFY" {
		return
	}

	keys := record.Change.Keys
	pkAttr, hasPK := keys["PK"]
	skAttr, hasSK := keys["SK"]
	if !hasPK || !hasSK {
		logger.Warn("stream record missing PK/SK", "eventID", record.EventID)
		return
	}

	pk := pkAttr.String()
	sk := skAttr.String()

	// Only granule partitions carry publishable items. REQUEST# list copies
	// would duplicate the truth-item publishes; LOCK# items are internal.
	if !strings.HasPrefix(pk, "GRANULE#") {
		return
	}

	switch {
	case strings.HasPrefix(sk, "FILE#"):
		publishStatusChange(ctx, d, logger, record)
	case strings.HasPrefix(sk, "EVENT#"):
		publishAuditEvent(ctx, d, logger, record)
	}
}

// publishStatusChange publishes a status-change event for a truth record that
// reached a terminal status. Intermediate hops stay off the status topic; the
// full trail is on the audit topic.
func publishStatusChange(ctx context.Context, d *Deps, logger *slog.Logger, record events.DynamoDBEventRecord) {
	if d.Notify == nil {
		return
	}

	rec, err := recordFromImage(record.Change.NewImage)
	if err != nil {
		logger.Warn("unparseable record image", "eventID", record.EventID, "error", err)
		return
	}
	if rec.Status != types.FileCompleted && rec.Status != types.FileFailed {
		return
	}

	// A CAS retry bumps the version without moving the status; publish only
	// when the status actually changed.
	from := types.FileStatus("")
	if old, err := recordFromImage(record.Change.OldImage); err == nil {
		if old.Status == rec.Status {
			return
		}
		from = old.Status
	}

	d.Notify.Publish(ctx, types.StatusChangeEvent{
		GranuleID: rec.GranuleID,
		FileKey:   rec.FileKey,
		RequestID: rec.RequestID,
		From:      from,
		To:        rec.Status,
		Detail:    rec.LastError,
		Timestamp: time.Now().UTC(),
	})
}

// publishAuditEvent forwards an audit event to the audit topic with its kind
// as a message attribute, so subscribers can filter. No-op when
// AUDIT_TOPIC_ARN is not configured.
func publishAuditEvent(ctx context.Context, d *Deps, logger *slog.Logger, record events.DynamoDBEventRecord) {
	if d.SNSClient == nil || d.AuditTopicARN == "" {
		return
	}

	ev, err := auditFromImage(record.Change.NewImage)
	if err != nil {
		logger.Warn("unparseable audit event image", "eventID", record.EventID, "error", err)
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Error("failed to marshal audit event",
			"granuleID", ev.GranuleID, "fileKey", ev.FileKey, "error", err)
		return
	}

	// Truncate if over the SNS limit
	msg := string(payload)
	if len(msg) > maxAuditMessageBytes {
		msg = msg[:maxAuditMessageBytes]
	}

	kind := string(ev.Kind)
	_, err = d.SNSClient.Publish(ctx, &awssns.PublishInput{
		TopicArn: &d.AuditTopicARN,
		Message:  &msg,
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"kind": {
				DataType:    strPtr("String"),
				StringValue: &kind,
			},
		},
	})
	if err != nil {
		logger.Error("failed to publish audit event",
			"granuleID", ev.GranuleID, "fileKey", ev.FileKey, "kind", kind, "error", err)
		return
	}

	metrics.AuditEventsPublished.Add(1)
	logger.Debug("published audit event",
		"granuleID", ev.GranuleID, "fileKey", ev.FileKey, "kind", kind)
}

// recordFromImage reconstructs a file recovery record from a stream image's
// data attribute.
func recordFromImage(image map[string]events.DynamoDBAttributeValue) (*types.FileRecoveryRecord, error) {
	data, err := imageData(image)
	if err != nil {
		return nil, err
	}
	var rec types.FileRecoveryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// auditFromImage reconstructs an audit event from a stream image's data
// attribute.
func auditFromImage(image map[string]events.DynamoDBAttributeValue) (*types.AuditEvent, error) {
	data, err := imageData(image)
	if err != nil {
		return nil, err
	}
	var ev types.AuditEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func imageData(image map[string]events.DynamoDBAttributeValue) ([]byte, error) {
	if image == nil {
		return nil, fmt.Errorf("no image")
	}
	attr, ok := image["data"]
	if !ok {
		return nil, fmt.Errorf("image missing data attribute")
	}
	return []byte(attr.String()), nil
}

func strPtr(s string) *string { return &s }
