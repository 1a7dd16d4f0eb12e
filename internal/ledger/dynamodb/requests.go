package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/frostline/rehydrate/internal/ledger"
	"github.com/frostline/rehydrate/pkg/types"
)

// PutRequest stores a recovery request definition.
func (l *DynamoDBLedger) PutRequest(ctx context.Context, req types.RecoveryRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}

	_, err = l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &l.tableName,
		Item: map[string]ddbtypes.AttributeValue{
			"PK":   &ddbtypes.AttributeValueMemberS{Value: requestPK(req.RequestID)},
			"SK":   &ddbtypes.AttributeValueMemberS{Value: requestSK()},
			"data": &ddbtypes.AttributeValueMemberS{Value: string(data)},
		},
	})
	return err
}

// GetRequest retrieves a recovery request definition.
func (l *DynamoDBLedger) GetRequest(ctx context.Context, requestID string) (*types.RecoveryRequest, error) {
	out, err := l.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &l.tableName,
		ConsistentRead: aws.Bool(true),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: requestPK(requestID)},
			"SK": &ddbtypes.AttributeValueMemberS{Value: requestSK()},
		},
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("request %s: %w", requestID, ledger.ErrNotFound)
	}

	data, err := attributeStr(out.Item, "data")
	if err != nil {
		return nil, err
	}
	var req types.RecoveryRequest
	if err := json.Unmarshal([]byte(data), &req); err != nil {
		return nil, err
	}
	return &req, nil
}
