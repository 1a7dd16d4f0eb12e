// Package commands implements the CLI subcommands for the rehydrate binary.
package commands

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/frostline/rehydrate/internal/ledger"
	ddbledger "github.com/frostline/rehydrate/internal/ledger/dynamodb"
	pgledger "github.com/frostline/rehydrate/internal/ledger/postgres"
	redisledger "github.com/frostline/rehydrate/internal/ledger/redis"
	"github.com/frostline/rehydrate/pkg/types"
)

// newLedger creates the configured ledger backend.
func newLedger(cfg *types.ProjectConfig) (ledger.Ledger, error) {
	switch cfg.Ledger {
	case "dynamodb":
		if cfg.DynamoDB == nil {
			return nil, fmt.Errorf("dynamodb config is required when ledger is dynamodb")
		}
		return ddbledger.New(cfg.DynamoDB)
	case "postgres":
		if cfg.Postgres == nil {
			return nil, fmt.Errorf("postgres config is required when ledger is postgres")
		}
		return pgledger.New(cfg.Postgres), nil
	case "redis":
		if cfg.Redis == nil {
			return nil, fmt.Errorf("redis config is required when ledger is redis")
		}
		return redisledger.New(cfg.Redis), nil
	default:
		return nil, fmt.Errorf("unsupported ledger: %s", cfg.Ledger)
	}
}

// loadRequestFile reads a recovery request from a YAML (or JSON) file.
func loadRequestFile(path string) (types.RecoveryRequest, error) {
	var req types.RecoveryRequest

	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(req.Granules) == 0 {
		return req, fmt.Errorf("%s: no granules defined", path)
	}
	return req, nil
}
