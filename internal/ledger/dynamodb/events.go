package dynamodb

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/frostline/rehydrate/pkg/types"
)

// AppendAuditEvent writes an audit event to the granule's event partition.
// Audit items carry no ttl attribute; the trail is retained indefinitely.
func (l *DynamoDBLedger) AppendAuditEvent(ctx context.Context, ev types.AuditEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	sk := eventSK(ev.FileKey, ev.Timestamp)
	_, err = l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &l.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":   &ddbtypes.AttributeValueMemberS{Value: granulePK(ev.GranuleID)},
			"SK":   &ddbtypes.AttributeValueMemberS{Value: sk},
			"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
		},
	})
	return err
}

// ListAuditEvents returns recent audit events for a file in chronological order.
func (l *DynamoDBLedger) ListAuditEvents(ctx context.Context, granuleID, fileKey string, limit int) ([]types.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	// Query newest-first, then reverse for chronological order.
	out, err := l.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              &l.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: granulePK(granuleID)},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: eventPrefix(fileKey)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, err
	}

	events := make([]types.AuditEvent, 0, len(out.Items))
	for i := len(out.Items) - 1; i >= 0; i-- {
		data, err := attributeStr(out.Items[i], "data")
		if err != nil {
			l.logger.Warn("skipping corrupt audit event data", "error", err)
			continue
		}
		var ev types.AuditEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			l.logger.Warn("skipping corrupt audit event data", "error", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}
