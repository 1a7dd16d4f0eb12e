package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/frostline/rehydrate/internal/ledger"
	"github.com/frostline/rehydrate/pkg/types"
)

// recordItem builds the truth item for a file recovery record.
func (l *DynamoDBLedger) recordItem(rec types.FileRecoveryRecord, data []byte) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		"PK":      &ddbtypes.AttributeValueMemberS{Value: granulePK(rec.GranuleID)},
		"SK":      &ddbtypes.AttributeValueMemberS{Value: fileSK(rec.FileKey)},
		"GSI1PK":  &ddbtypes.AttributeValueMemberS{Value: locationGSIPK(rec.SourceLocation())},
		"GSI1SK":  &ddbtypes.AttributeValueMemberS{Value: fileListSK(rec.GranuleID, rec.FileKey)},
		"GSI2PK":  &ddbtypes.AttributeValueMemberS{Value: statusGSIPK(rec.Status)},
		"GSI2SK":  &ddbtypes.AttributeValueMemberS{Value: statusGSISK(rec.UpdatedAt)},
		"data":    &ddbtypes.AttributeValueMemberS{Value: string(data)},
		"version": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", rec.Version)},
	}
}

// listCopyItem builds the per-request list copy of a record.
func (l *DynamoDBLedger) listCopyItem(rec types.FileRecoveryRecord, data []byte) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		"PK":   &ddbtypes.AttributeValueMemberS{Value: requestPK(rec.RequestID)},
		"SK":   &ddbtypes.AttributeValueMemberS{Value: fileListSK(rec.GranuleID, rec.FileKey)},
		"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
	}
}

// PutRecord creates a record using dual-write: truth item + request list copy.
// The transaction is conditional on the truth item not existing, so concurrent
// creators serialize; the loser sees ErrConflict and re-reads.
func (l *DynamoDBLedger) PutRecord(ctx context.Context, rec types.FileRecoveryRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	_, err = l.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []ddbtypes.TransactWriteItem{
			{
				Put: &ddbtypes.Put{
					TableName:           &l.tableName,
					Item:                l.recordItem(rec, data),
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				},
			},
			{
				Put: &ddbtypes.Put{
					TableName: &l.tableName,
					Item:      l.listCopyItem(rec, data),
				},
			},
		},
	})
	if err != nil {
		if isTransactionConditionalCancel(err) {
			return fmt.Errorf("record %s/%s exists: %w", rec.GranuleID, rec.FileKey, ledger.ErrConflict)
		}
		return err
	}
	return nil
}

// GetRecord retrieves a record from the truth item (strongly consistent).
func (l *DynamoDBLedger) GetRecord(ctx context.Context, granuleID, fileKey string) (*types.FileRecoveryRecord, error) {
	out, err := l.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &l.tableName,
		ConsistentRead: aws.Bool(true),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: granulePK(granuleID)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: fileSK(fileKey)},
		},
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("record %s/%s: %w", granuleID, fileKey, ledger.ErrNotFound)
	}

	return unmarshalRecord(out.Item)
}

// CompareAndSwapRecord atomically updates a record if the version matches.
func (l *DynamoDBLedger) CompareAndSwapRecord(ctx context.Context, expectedVersion int, rec types.FileRecoveryRecord) (bool, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}

	// Update truth item with condition on version. GSI2 attributes move with
	// the status so sweeper queries stay current; GSI1 (source location) is
	// fixed at creation.
	_, err = l.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &l.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: granulePK(rec.GranuleID)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: fileSK(rec.FileKey)},
		},
		UpdateExpression:    aws.String("SET #data = :data, #version = :newVersion, GSI2PK = :statusPK, GSI2SK = :statusSK"),
		ConditionExpression: aws.String("#version = :expectedVersion"),
		ExpressionAttributeNames: map[string]string{
			"#data":    "data",
			"#version": "version",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":data":            &ddbtypes.AttributeValueMemberS{Value: string(data)},
			":newVersion":      &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", rec.Version)},
			":expectedVersion": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", expectedVersion)},
			":statusPK":        &ddbtypes.AttributeValueMemberS{Value: statusGSIPK(rec.Status)},
			":statusSK":        &ddbtypes.AttributeValueMemberS{Value: statusGSISK(rec.UpdatedAt)},
		},
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return false, nil
		}
		return false, err
	}

	// Best-effort update of the request list copy.
	_, _ = l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &l.tableName,
		Item:      l.listCopyItem(rec, data),
	})

	return true, nil
}

// ListByGranule returns every record of a granule, ordered by file key.
func (l *DynamoDBLedger) ListByGranule(ctx context.Context, granuleID string) ([]types.FileRecoveryRecord, error) {
	return l.queryRecords(ctx, &dynamodb.QueryInput{
		TableName:              &l.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: granulePK(granuleID)},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: prefixFile},
		},
	})
}

// ListByRequest returns every record of a request from the list copies.
func (l *DynamoDBLedger) ListByRequest(ctx context.Context, requestID string) ([]types.FileRecoveryRecord, error) {
	return l.queryRecords(ctx, &dynamodb.QueryInput{
		TableName:              &l.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: requestPK(requestID)},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: prefixFile},
		},
	})
}

// FindBySourceLocation correlates a "bucket/key" location to its record via
// the location index. When several records share a location the non-terminal
// one wins; otherwise the last match is returned.
func (l *DynamoDBLedger) FindBySourceLocation(ctx context.Context, location string) (*types.FileRecoveryRecord, error) {
	records, err := l.queryRecords(ctx, &dynamodb.QueryInput{
		TableName:              &l.tableName,
		IndexName:              aws.String(locationIndex),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk": &ddbtypes.AttributeValueMemberS{Value: locationGSIPK(location)},
		},
	})
	if err != nil {
		return nil, err
	}
	match := ledger.PreferLive(records)
	if match == nil {
		return nil, fmt.Errorf("no record for location %q: %w", location, ledger.ErrNotFound)
	}
	return match, nil
}

// ListByStatus returns records in a given status via the status index,
// oldest update first.
func (l *DynamoDBLedger) ListByStatus(ctx context.Context, status types.FileStatus) ([]types.FileRecoveryRecord, error) {
	return l.queryRecords(ctx, &dynamodb.QueryInput{
		TableName:              &l.tableName,
		IndexName:              aws.String(statusIndex),
		KeyConditionExpression: aws.String("GSI2PK = :pk"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk": &ddbtypes.AttributeValueMemberS{Value: statusGSIPK(status)},
		},
		ScanIndexForward: aws.Bool(true),
	})
}

func (l *DynamoDBLedger) queryRecords(ctx context.Context, input *dynamodb.QueryInput) ([]types.FileRecoveryRecord, error) {
	out, err := l.client.Query(ctx, input)
	if err != nil {
		return nil, err
	}

	var records []types.FileRecoveryRecord
	for _, item := range out.Items {
		rec, err := unmarshalRecord(item)
		if err != nil {
			l.logger.Warn("skipping corrupt record data", "error", err)
			continue
		}
		records = append(records, *rec)
	}
	return records, nil
}

func unmarshalRecord(item map[string]ddbtypes.AttributeValue) (*types.FileRecoveryRecord, error) {
	data, err := attributeStr(item, "data")
	if err != nil {
		return nil, err
	}
	var rec types.FileRecoveryRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// attributeStr extracts a string attribute from a DynamoDB item.
func attributeStr(item map[string]ddbtypes.AttributeValue, key string) (string, error) {
	av, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	var s string
	if err := attributevalue.Unmarshal(av, &s); err != nil {
		return "", fmt.Errorf("unmarshaling %q: %w", key, err)
	}
	return s, nil
}

// attributeInt extracts an integer attribute from a DynamoDB item.
func attributeInt(item map[string]ddbtypes.AttributeValue, key string) (int64, error) {
	av, ok := item[key]
	if !ok {
		return 0, nil
	}
	var n int64
	if err := attributevalue.Unmarshal(av, &n); err != nil {
		return 0, fmt.Errorf("unmarshaling %q: %w", key, err)
	}
	return n, nil
}
