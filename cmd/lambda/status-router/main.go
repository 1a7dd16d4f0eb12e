// status-router Lambda receives ledger table stream events and publishes
// status change and audit notifications.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	awslambda "github.com/aws/aws-lambda-go/lambda"
	intlambda "github.com/frostline/rehydrate/internal/lambda"
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

// route fans each stream record out to the status and audit topics. A
// router with neither topic configured is a deployment mistake, not a
// skippable batch, so it fails loudly instead of acking the stream.
func route(ctx context.Context, d *intlambda.Deps, event intlambda.StreamEvent) error {
	if d.Notify == nil && (d.SNSClient == nil || d.AuditTopicARN == "") {
		return fmt.Errorf("STATUS_TOPIC_ARN or AUDIT_TOPIC_ARN environment variable required")
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, record := range event.Records {
		intlambda.RouteStreamRecord(ctx, d, logger, record)
	}
	return nil
}

func handler(ctx context.Context, event intlambda.StreamEvent) error {
	d, err := getDeps()
	if err != nil {
		return err
	}
	return route(ctx, d, event)
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	awslambda.Start(handler)
}
