package lambda

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/frostline/rehydrate/internal/alert"
	"github.com/frostline/rehydrate/internal/archive"
	"github.com/frostline/rehydrate/internal/copier"
	"github.com/frostline/rehydrate/internal/destination"
	"github.com/frostline/rehydrate/internal/executor"
	"github.com/frostline/rehydrate/internal/initiator"
	"github.com/frostline/rehydrate/internal/ledger"
	ddbledger "github.com/frostline/rehydrate/internal/ledger/dynamodb"
	"github.com/frostline/rehydrate/internal/notify"
	"github.com/frostline/rehydrate/internal/orchestrator"
	"github.com/frostline/rehydrate/pkg/types"
)

// Deps holds shared dependencies for Lambda handlers.
type Deps struct {
	Ledger        ledger.Ledger
	Orchestrator  *orchestrator.Orchestrator
	Executor      *executor.Executor
	Notify        *notify.Publisher
	StatusFn      func(types.StatusChangeEvent)
	AlertFn       func(context.Context, types.Alert)
	SNSClient     SNSAPI
	AuditTopicARN string
	Logger        *slog.Logger
}

// Init creates shared dependencies from environment variables.
// Reads: TABLE_NAME, AWS_REGION, DEFAULT_BUCKET, STATUS_TOPIC_ARN,
// AUDIT_TOPIC_ARN, ALERT_TOPIC_ARN, RESTORE_DAYS, DEFAULT_TIER,
// COPY_MAX_ATTEMPTS
func Init(ctx context.Context) (*Deps, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	tableName := os.Getenv("TABLE_NAME")
	region := os.Getenv("AWS_REGION")
	if tableName == "" {
		return nil, fmt.Errorf("TABLE_NAME environment variable required")
	}
	if region == "" {
		return nil, fmt.Errorf("AWS_REGION environment variable required")
	}

	// Create DynamoDB ledger
	led, err := ddbledger.New(&types.DynamoDBConfig{
		TableName: tableName,
		Region:    region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating DynamoDB ledger: %w", err)
	}

	// Create alert function
	var alertFn func(context.Context, types.Alert)
	if topicARN := os.Getenv("ALERT_TOPIC_ARN"); topicARN != "" {
		dispatcher, err := alert.NewDispatcher([]types.AlertConfig{
			{Type: types.AlertSNS, TopicARN: topicARN},
		})
		if err != nil {
			return nil, fmt.Errorf("creating alert dispatcher: %w", err)
		}
		alertFn = dispatcher.AlertFunc()
	} else {
		alertFn = func(_ context.Context, a types.Alert) {
			logger.Info("alert", "level", a.Level, "category", a.Category,
				"granuleID", a.GranuleID, "fileKey", a.FileKey, "message", a.Message)
		}
	}

	// Create status publisher
	var (
		pub      *notify.Publisher
		statusFn func(types.StatusChangeEvent)
	)
	if topicARN := os.Getenv("STATUS_TOPIC_ARN"); topicARN != "" {
		pub, err = notify.New(types.NotifyConfig{TopicARN: topicARN, Region: region})
		if err != nil {
			return nil, fmt.Errorf("creating status publisher: %w", err)
		}
		statusFn = pub.StatusFunc()
	}

	// Create SNS client for the audit topic
	var snsClient SNSAPI
	auditTopicARN := os.Getenv("AUDIT_TOPIC_ARN")
	if auditTopicARN != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		snsClient = sns.NewFromConfig(awsCfg)
	}

	// Create copy executor. Lambda handlers call ProcessOne directly; the
	// worker pool is never started.
	var policy *types.RetryPolicy
	if v := os.Getenv("COPY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p := executor.DefaultRetryPolicy()
			p.MaxAttempts = n
			policy = &p
		}
	}
	cp, err := copier.New(&types.CopyConfig{Region: region})
	if err != nil {
		return nil, fmt.Errorf("creating copy client: %w", err)
	}
	exec := executor.New(led, cp, types.ExecutorConfig{}, policy, statusFn)

	// Create orchestrator when a destination is configured
	var orch *orchestrator.Orchestrator
	if bucket := os.Getenv("DEFAULT_BUCKET"); bucket != "" {
		resolver, err := destination.NewResolver(&types.DestinationConfig{DefaultBucket: bucket})
		if err != nil {
			return nil, fmt.Errorf("compiling destination config: %w", err)
		}

		archCfg := &types.ArchiveConfig{Region: region}
		if v := os.Getenv("RESTORE_DAYS"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				archCfg.RestoreDays = n
			}
		}
		if v := os.Getenv("DEFAULT_TIER"); v != "" {
			archCfg.DefaultTier = types.LatencyClass(v)
		}
		arch, err := archive.New(archCfg)
		if err != nil {
			return nil, fmt.Errorf("creating archive client: %w", err)
		}

		ini := initiator.New(led, arch, resolver, nil, statusFn)
		orch = orchestrator.New(led, ini, resolver, statusFn)
	}

	return &Deps{
		Ledger:        led,
		Orchestrator:  orch,
		Executor:      exec,
		Notify:        pub,
		StatusFn:      statusFn,
		AlertFn:       alertFn,
		SNSClient:     snsClient,
		AuditTopicARN: auditTopicARN,
		Logger:        logger,
	}, nil
}
