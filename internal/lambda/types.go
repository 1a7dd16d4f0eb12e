// Package lambda provides shared types and initialization for Lambda handlers.
package lambda

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SNSAPI is the subset of the SNS client used for publishing audit events.
type SNSAPI interface {
	Publish(ctx context.Context, input *sns.PublishInput, opts ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// StreamEvent is the input to the status-router Lambda.
type StreamEvent = events.DynamoDBEvent
