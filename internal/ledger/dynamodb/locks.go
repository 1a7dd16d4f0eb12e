package dynamodb

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// AcquireLock takes the named lock for ttl with a conditional put. The
// sweeper uses these to dedup stale alerts across overlapping sweeps. An
// expired lock row is claimed in place rather than waiting for TTL
// reaping, which can lag by up to 48 hours.
func (l *DynamoDBLedger) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now()

	_, err := l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &l.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":         &ddbtypes.AttributeValueMemberS{Value: lockPK(key)},
			"SK":         &ddbtypes.AttributeValueMemberS{Value: lockSK()},
			"ttl":        &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(ttlEpoch(ttl), 10)},
			"acquiredAt": &ddbtypes.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339)},
		},
		ConditionExpression:      aws.String("attribute_not_exists(PK) OR #ttl < :now"),
		ExpressionAttributeNames: map[string]string{"#ttl": "ttl"},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":now": &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	})
	switch {
	case err == nil:
		return true, nil
	case isConditionalCheckFailed(err):
		return false, nil
	default:
		return false, err
	}
}

// ReleaseLock drops the named lock early. Abandoned locks are reaped by
// the table TTL, so callers only release when shortening the window
// matters.
func (l *DynamoDBLedger) ReleaseLock(ctx context.Context, key string) error {
	_, err := l.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &l.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: lockPK(key)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: lockSK()},
		},
	})
	return err
}
