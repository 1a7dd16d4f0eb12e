// listener Lambda receives archive completion notifications from the
// completion queue and advances staged records.
package main

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	awslambda "github.com/aws/aws-lambda-go/lambda"
	evpkg "github.com/frostline/rehydrate/internal/events"
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

// handleBatch applies the completion events in each queue message to the
// ledger. Copies run synchronously inside the invocation instead of on a
// worker pool. Messages whose ledger writes fail are reported back for
// redelivery; the handler is idempotent, so redelivering a half-processed
// message is safe.
func handleBatch(ctx context.Context, d *intlambda.Deps, event events.SQSEvent) (events.SQSEventResponse, error) {
	logger := slog.Default()

	h := evpkg.NewHandler(d.Ledger, func(rec types.FileRecoveryRecord) bool {
		d.Executor.ProcessOne(ctx, rec.GranuleID, rec.FileKey)
		return true
	}, d.StatusFn)

	var resp events.SQSEventResponse
	for _, msg := range event.Records {
		evs, err := evpkg.ParseMessage([]byte(msg.Body))
		if err != nil {
			logger.Warn("unparseable completion message", "messageID", msg.MessageId, "error", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: msg.MessageId})
			continue
		}

		for _, ev := range evs {
			if err := h.Handle(ctx, ev); err != nil {
				logger.Error("handling completion event", "location", ev.SourceLocation(), "error", err)
				resp.BatchItemFailures = append(resp.BatchItemFailures,
					events.SQSBatchItemFailure{ItemIdentifier: msg.MessageId})
				break
			}
		}
	}
	return resp, nil
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	d, err := getDeps()
	if err != nil {
		return events.SQSEventResponse{}, err
	}
	return handleBatch(ctx, d, event)
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	awslambda.Start(handler)
}
