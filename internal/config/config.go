// Package config handles loading and validation of rehydrate.yaml project configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/frostline/rehydrate/pkg/types"
)

// Load reads and parses rehydrate.yaml from the given directory.
func Load(dir string) (*types.ProjectConfig, error) {
	path := filepath.Join(dir, "rehydrate.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg types.ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func validate(cfg *types.ProjectConfig) error {
	if cfg.Ledger == "" {
		return fmt.Errorf("ledger is required")
	}
	switch cfg.Ledger {
	case "dynamodb":
		if cfg.DynamoDB == nil {
			return fmt.Errorf("dynamodb config is required when ledger is dynamodb")
		}
		if cfg.DynamoDB.TableName == "" {
			return fmt.Errorf("dynamodb.tableName is required")
		}
	case "postgres":
		if cfg.Postgres == nil {
			return fmt.Errorf("postgres config is required when ledger is postgres")
		}
		if cfg.Postgres.DSN == "" && cfg.Postgres.SecretARN == "" {
			return fmt.Errorf("one of postgres.dsn or postgres.secretArn is required")
		}
		if cfg.Postgres.DSN != "" && cfg.Postgres.SecretARN != "" {
			return fmt.Errorf("postgres.dsn and postgres.secretArn are mutually exclusive")
		}
	case "redis":
		if cfg.Redis == nil {
			return fmt.Errorf("redis config is required when ledger is redis")
		}
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required")
		}
	default:
		return fmt.Errorf("unknown ledger %q (want dynamodb, postgres or redis)", cfg.Ledger)
	}

	if cfg.Destination == nil || cfg.Destination.DefaultBucket == "" {
		return fmt.Errorf("destination.defaultBucket is required")
	}
	for _, profile := range cfg.Destination.Profiles {
		if profile.Name == "" {
			return fmt.Errorf("every destination profile needs a name")
		}
	}

	if cfg.Retry != nil {
		if cfg.Retry.MaxAttempts < 1 {
			return fmt.Errorf("retry.maxAttempts must be at least 1")
		}
		if cfg.Retry.BackoffSeconds < 1 {
			return fmt.Errorf("retry.backoffSeconds must be at least 1")
		}
	}

	if cfg.Sweeper != nil {
		if err := checkDuration("sweeper.interval", cfg.Sweeper.Interval); err != nil {
			return err
		}
		if err := checkDuration("sweeper.alertDedup", cfg.Sweeper.AlertDedup); err != nil {
			return err
		}
	}
	if cfg.Archiver != nil {
		if err := checkDuration("archiver.interval", cfg.Archiver.Interval); err != nil {
			return err
		}
		if cfg.Archiver.Enabled && cfg.Archiver.DSN == "" {
			return fmt.Errorf("archiver.dsn is required when the archiver is enabled")
		}
	}

	if cfg.Listener != nil && cfg.Listener.QueueURL == "" {
		return fmt.Errorf("listener.queueUrl is required")
	}
	if cfg.Intake != nil && cfg.Intake.QueueURL == "" {
		return fmt.Errorf("intake.queueUrl is required")
	}
	if cfg.Notify != nil && cfg.Notify.TopicARN == "" {
		return fmt.Errorf("notify.topicArn is required")
	}
	for i, alert := range cfg.Alerts {
		if alert.Type == "" {
			return fmt.Errorf("alerts[%d].type is required", i)
		}
	}

	return nil
}

func checkDuration(field, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive", field)
	}
	return nil
}
