// Package intake consumes recovery requests from an SQS queue and submits
// them to the orchestrator. The queue is an alternative front door to the
// HTTP API for batch-driven callers.
package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/frostline/rehydrate/pkg/types"
)

// SQSAPI is the subset of the SQS client used by the consumer.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, input *sqs.ReceiveMessageInput, opts ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, input *sqs.DeleteMessageInput, opts ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Submitter accepts recovery requests. Satisfied by the orchestrator.
type Submitter interface {
	SubmitRecovery(ctx context.Context, req types.RecoveryRequest) (*types.SubmitResult, error)
}

// Consumer long-polls the intake queue and submits each message as a
// recovery request. Queue delivery is at-least-once, so every message must
// carry its own requestId; resubmission under the same ID is idempotent,
// while a message without one would mint a fresh request on every
// redelivery. Messages that cannot be submitted are left for the queue's
// redrive policy.
type Consumer struct {
	client SQSAPI
	sub    Submitter
	cfg    types.IntakeConfig
	logger *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithSQSClient sets a custom SQS client (useful for testing).
func WithSQSClient(c SQSAPI) Option {
	return func(con *Consumer) { con.client = c }
}

// NewConsumer creates an intake-queue consumer.
func NewConsumer(cfg types.IntakeConfig, sub Submitter, opts ...Option) (*Consumer, error) {
	if cfg.QueueURL == "" {
		return nil, fmt.Errorf("intake queue URL is required")
	}
	if cfg.WaitSeconds <= 0 || cfg.WaitSeconds > 20 {
		cfg.WaitSeconds = 20
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > 10 {
		cfg.BatchSize = 10
	}

	con := &Consumer{
		sub:    sub,
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(con)
	}
	if con.client == nil {
		var loadOpts []func(*awsconfig.LoadOptions) error
		if cfg.Region != "" {
			loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		var clientOpts []func(*sqs.Options)
		if cfg.Endpoint != "" {
			clientOpts = append(clientOpts, func(o *sqs.Options) {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			})
		}
		con.client = sqs.NewFromConfig(awsCfg, clientOpts...)
	}
	return con, nil
}

// Start begins the long-poll loop.
func (c *Consumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.logger.Info("intake consumer started", "queue", c.cfg.QueueURL)

		for {
			if ctx.Err() != nil {
				c.logger.Info("intake consumer stopping")
				return
			}
			if err := c.poll(ctx); err != nil {
				if ctx.Err() != nil {
					c.logger.Info("intake consumer stopping")
					return
				}
				c.logger.Error("polling intake queue", "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(5 * time.Second):
				}
			}
		}
	}()
}

// Stop gracefully shuts down the consumer.
func (c *Consumer) Stop(ctx context.Context) {
	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("intake consumer stopped")
	case <-ctx.Done():
		c.logger.Warn("intake consumer stop timed out")
	}
}

// poll performs one long-poll receive and submits the batch.
func (c *Consumer) poll(ctx context.Context) error {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.cfg.QueueURL),
		MaxNumberOfMessages: int32(c.cfg.BatchSize),
		WaitTimeSeconds:     int32(c.cfg.WaitSeconds),
	})
	if err != nil {
		return fmt.Errorf("receiving messages: %w", err)
	}

	for _, msg := range out.Messages {
		if ctx.Err() != nil {
			return nil
		}
		if msg.Body == nil {
			continue
		}

		var req types.RecoveryRequest
		if err := json.Unmarshal([]byte(*msg.Body), &req); err != nil {
			c.logger.Warn("unparseable intake message", "error", err)
			continue
		}
		if req.RequestID == "" {
			c.logger.Warn("intake message without requestId", "requestedBy", req.RequestedBy)
			continue
		}

		result, err := c.sub.SubmitRecovery(ctx, req)
		if err != nil {
			c.logger.Error("submitting queued recovery", "requestID", req.RequestID, "error", err)
			continue // leave for redelivery
		}
		c.logger.Info("queued recovery submitted", "requestID", result.RequestID, "files", len(result.Files))

		_, err = c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(c.cfg.QueueURL),
			ReceiptHandle: msg.ReceiptHandle,
		})
		if err != nil {
			c.logger.Warn("deleting intake message", "error", err)
		}
	}
	return nil
}
