// sweeper Lambda scans for stale retrievals and restored records awaiting a
// copy. Invoked by EventBridge on a regular interval (e.g. every 15 minutes).
package main

import (
	"context"
	"log/slog"
	"os"
	"sync"

	awslambda "github.com/aws/aws-lambda-go/lambda"
	intlambda "github.com/frostline/rehydrate/internal/lambda"
	"github.com/frostline/rehydrate/internal/sweeper"
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

// sweep runs both passes. Restored records found in the backlog are copied
// synchronously inside the invocation rather than handed to a worker pool.
func sweep(ctx context.Context, d *intlambda.Deps) (stale, copied int) {
	opts := sweeper.CheckOptions{
		Ledger:  d.Ledger,
		AlertFn: d.AlertFn,
		Enqueue: func(rec types.FileRecoveryRecord) bool {
			d.Executor.ProcessOne(ctx, rec.GranuleID, rec.FileKey)
			return true
		},
		Logger: d.Logger,
	}

	return len(sweeper.CheckStaleRetrievals(ctx, opts)), sweeper.CheckRestoredBacklog(ctx, opts)
}

func handler(ctx context.Context) error {
	d, err := getDeps()
	if err != nil {
		return err
	}

	stale, copied := sweep(ctx, d)
	d.Logger.Info("sweep complete", "stale", stale, "backlogCopied", copied)
	return nil
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	awslambda.Start(handler)
}
