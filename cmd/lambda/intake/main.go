// intake Lambda receives recovery requests from the intake queue and submits
// them to the orchestrator.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	awslambda "github.com/aws/aws-lambda-go/lambda"
	intlambda "github.com/frostline/rehydrate/internal/lambda"
	"github.com/frostline/rehydrate/pkg/types"
)

var (
	deps     *intlambda.Deps
	depsOnce sync.Once
	depsErr  error
)

func getDeps() (*intlambda.Deps, error) {
	depsOnce.Do(func() {
		deps, depsErr = intlambda.Init(context.Background())
	})
	return deps, depsErr
}

// handleBatch submits each queue message as a recovery request. Queue delivery
// is at-least-once, so every message must carry its own requestId;
// resubmission under the same ID is idempotent, while a message without one
// would mint a fresh request on every redelivery. Messages that cannot be
// submitted are reported back so the queue's redrive policy retries and
// eventually dead-letters them.
func handleBatch(ctx context.Context, d *intlambda.Deps, event events.SQSEvent) (events.SQSEventResponse, error) {
	logger := slog.Default()

	var resp events.SQSEventResponse
	for _, msg := range event.Records {
		var req types.RecoveryRequest
		if err := json.Unmarshal([]byte(msg.Body), &req); err != nil {
			logger.Warn("unparseable intake message", "messageID", msg.MessageId, "error", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: msg.MessageId})
			continue
		}
		if req.RequestID == "" {
			logger.Warn("intake message without requestId", "messageID", msg.MessageId, "requestedBy", req.RequestedBy)
			resp.BatchItemFailures = append(resp.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: msg.MessageId})
			continue
		}

		result, err := d.Orchestrator.SubmitRecovery(ctx, req)
		if err != nil {
			logger.Error("submitting queued recovery", "requestID", req.RequestID, "error", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: msg.MessageId})
			continue
		}
		logger.Info("queued recovery submitted", "requestID", result.RequestID, "files", len(result.Files))
	}
	return resp, nil
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	d, err := getDeps()
	if err != nil {
		return events.SQSEventResponse{}, err
	}
	if d.Orchestrator == nil {
		return events.SQSEventResponse{}, fmt.Errorf("DEFAULT_BUCKET environment variable required")
	}
	return handleBatch(ctx, d, event)
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	awslambda.Start(handler)
}
