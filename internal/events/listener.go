package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/frostline/rehydrate/pkg/types"
)

// SQSAPI is the subset of the SQS client used by the listener.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, input *sqs.ReceiveMessageInput, opts ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, input *sqs.DeleteMessageInput, opts ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Listener long-polls the completion queue and feeds the handler. Messages
// are deleted only after the handler has accepted every event they carry, so
// a crash mid-batch redelivers; the handler's idempotency makes that safe.
// Malformed messages are left for the queue's redrive policy.
type Listener struct {
	client  SQSAPI
	handler *Handler
	cfg     types.ListenerConfig
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ListenerOption configures a Listener.
type ListenerOption func(*Listener)

// WithSQSClient sets a custom SQS client (useful for testing).
func WithSQSClient(c SQSAPI) ListenerOption {
	return func(l *Listener) { l.client = c }
}

// NewListener creates a completion-queue listener.
func NewListener(cfg types.ListenerConfig, handler *Handler, opts ...ListenerOption) (*Listener, error) {
	if cfg.QueueURL == "" {
		return nil, fmt.Errorf("listener queue URL is required")
	}
	if cfg.WaitSeconds <= 0 || cfg.WaitSeconds > 20 {
		cfg.WaitSeconds = 20
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > 10 {
		cfg.BatchSize = 10
	}

	l := &Listener{
		handler: handler,
		cfg:     cfg,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	if l.client == nil {
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
		l.client = sqs.NewFromConfig(awsCfg, clientOpts...)
	}
	return l, nil
}

// Start begins the long-poll loop.
func (l *Listener) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.logger.Info("completion listener started", "queue", l.cfg.QueueURL)

		for {
			if ctx.Err() != nil {
				l.logger.Info("completion listener stopping")
				return
			}
			if err := l.poll(ctx); err != nil {
				if ctx.Err() != nil {
					l.logger.Info("completion listener stopping")
					return
				}
				l.logger.Error("polling completion queue", "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(5 * time.Second):
				}
			}
		}
	}()
}

// Stop gracefully shuts down the listener.
func (l *Listener) Stop(ctx context.Context) {
	if l.cancel != nil {
		l.cancel()
	}

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.logger.Info("completion listener stopped")
	case <-ctx.Done():
		l.logger.Warn("completion listener stop timed out")
	}
}

// poll performs one long-poll receive and dispatches the batch.
func (l *Listener) poll(ctx context.Context) error {
	out, err := l.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(l.cfg.QueueURL),
		MaxNumberOfMessages: int32(l.cfg.BatchSize),
		WaitTimeSeconds:     int32(l.cfg.WaitSeconds),
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

		evs, err := ParseMessage([]byte(*msg.Body))
		if err != nil {
			l.logger.Warn("unparseable completion message", "error", err)
			continue
		}

		handled := true
		for _, ev := range evs {
			if err := l.handler.Handle(ctx, ev); err != nil {
				l.logger.Error("handling completion event", "location", ev.SourceLocation(), "error", err)
				handled = false
				break
			}
		}
		if !handled {
			continue // leave for redelivery
		}

		_, err = l.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(l.cfg.QueueURL),
			ReceiptHandle: msg.ReceiptHandle,
		})
		if err != nil {
			l.logger.Warn("deleting completion message", "error", err)
		}
	}
	return nil
}
