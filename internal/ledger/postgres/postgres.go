package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/frostline/rehydrate/internal/ledger"
	"github.com/frostline/rehydrate/pkg/types"
)

// Compile-time interface satisfaction check.
var _ ledger.Ledger = (*PostgresLedger)(nil)

// PostgresLedger implements the Ledger interface backed by Postgres.
type PostgresLedger struct {
	cfg    *types.PostgresConfig
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a new PostgresLedger. The connection is established in Start.
func New(cfg *types.PostgresConfig) *PostgresLedger {
	return &PostgresLedger{
		cfg:    cfg,
		logger: slog.Default(),
	}
}

// NewFromPool creates a PostgresLedger from an existing pool (useful for testing).
func NewFromPool(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{
		cfg:    &types.PostgresConfig{},
		pool:   pool,
		logger: slog.Default(),
	}
}

// Start resolves the DSN, connects, verifies the connection, and applies the
// schema. When SecretARN is set the DSN comes from AWS Secrets Manager.
func (l *PostgresLedger) Start(ctx context.Context) error {
	dsn := l.cfg.DSN
	if l.cfg.SecretARN != "" {
		resolved, err := resolveDSN(ctx, l.cfg)
		if err != nil {
			return fmt.Errorf("resolving database secret: %w", err)
		}
		dsn = resolved
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("postgres ping: %w", err)
	}
	l.pool = pool

	return l.Migrate(ctx)
}

// Migrate runs the schema DDL to create tables and indexes.
func (l *PostgresLedger) Migrate(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, schemaDDL)
	if err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// Stop closes the connection pool.
func (l *PostgresLedger) Stop(_ context.Context) error {
	if l.pool != nil {
		l.pool.Close()
	}
	return nil
}

// Ping checks database connectivity.
func (l *PostgresLedger) Ping(ctx context.Context) error {
	if l.pool == nil {
		return fmt.Errorf("postgres ledger not started")
	}
	return l.pool.Ping(ctx)
}
