// Package notify publishes file status transitions to an SNS topic so
// downstream systems can track recoveries without polling the ledger.
// Publication is best-effort: a failed publish is logged and dropped, it
// never blocks or fails the transition that triggered it.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/frostline/rehydrate/internal/metrics"
	"github.com/frostline/rehydrate/pkg/types"
)

const (
	publishTimeout = 10 * time.Second
	// SNS message size limit
	maxMessageBytes = 256 * 1024
)

// SNSAPI is the subset of the SNS client used by the Publisher.
type SNSAPI interface {
	Publish(ctx context.Context, input *sns.PublishInput, opts ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Publisher sends normalized status-change events to the status topic.
type Publisher struct {
	client   SNSAPI
	topicARN string
	logger   *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithClient sets a custom SNS client (useful for testing).
func WithClient(c SNSAPI) Option {
	return func(p *Publisher) { p.client = c }
}

// New creates a status Publisher.
func New(cfg types.NotifyConfig, opts ...Option) (*Publisher, error) {
	if cfg.TopicARN == "" {
		return nil, fmt.Errorf("status topic ARN is required")
	}
	p := &Publisher{
		topicARN: cfg.TopicARN,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.client == nil {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		var clientOpts []func(*sns.Options)
		if cfg.Endpoint != "" {
			clientOpts = append(clientOpts, func(o *sns.Options) {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			})
		}
		p.client = sns.NewFromConfig(awsCfg, clientOpts...)
	}
	return p, nil
}

// Publish sends one status-change event to the topic. Best-effort: errors
// are logged, not returned.
func (p *Publisher) Publish(ctx context.Context, ev types.StatusChangeEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("failed to marshal status event",
			"granule", ev.GranuleID, "file", ev.FileKey, "error", err)
		return
	}

	// Truncate if over the SNS limit
	msg := string(payload)
	if len(msg) > maxMessageBytes {
		msg = msg[:maxMessageBytes]
	}

	status := string(ev.To)
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(msg),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"status": {
				DataType:    aws.String("String"),
				StringValue: aws.String(status),
			},
		},
	})
	if err != nil {
		p.logger.Error("failed to publish status event",
			"granule", ev.GranuleID, "file", ev.FileKey, "status", status, "error", err)
		return
	}

	metrics.StatusEventsPublished.Add(1)
	p.logger.Debug("published status event",
		"granule", ev.GranuleID, "file", ev.FileKey, "from", ev.From, "to", ev.To)
}

// StatusFunc returns a callback suitable for the notify hooks on the
// initiator, completion handler and executor.
func (p *Publisher) StatusFunc() func(types.StatusChangeEvent) {
	return func(ev types.StatusChangeEvent) {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		p.Publish(ctx, ev)
	}
}
