// Package redis implements the Ledger interface using Redis/Valkey.
//
// Records, requests, and audit events are stored as JSON values under
// prefixed keys. Membership indexes (granule, request, source location) are
// sets; the per-status sweeper index is a sorted set scored by update time.
// Only lock keys carry a TTL; recovery state is retained until archived.
package redis

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/frostline/rehydrate/internal/ledger"
	"github.com/frostline/rehydrate/internal/ledger/redis/lua"
	"github.com/frostline/rehydrate/pkg/types"
)

// Compile-time interface satisfaction check.
var _ ledger.Ledger = (*RedisLedger)(nil)

// RedisLedger implements the Ledger interface backed by Redis/Valkey.
type RedisLedger struct {
	client    *goredis.Client
	prefix    string
	logger    *slog.Logger
	casScript *goredis.Script
}

// New creates a new RedisLedger.
func New(cfg *types.RedisConfig) *RedisLedger {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewFromClient(client, cfg.KeyPrefix)
}

// NewFromClient creates a RedisLedger from an existing client (useful for testing).
func NewFromClient(client *goredis.Client, prefix string) *RedisLedger {
	if prefix == "" {
		prefix = "rehydrate:"
	}
	return &RedisLedger{
		client:    client,
		prefix:    prefix,
		logger:    slog.Default(),
		casScript: goredis.NewScript(lua.CompareAndSwap),
	}
}

// Start initializes the ledger connection.
func (l *RedisLedger) Start(ctx context.Context) error {
	return l.Ping(ctx)
}

// Stop closes the ledger connection.
func (l *RedisLedger) Stop(_ context.Context) error {
	return l.client.Close()
}

// Ping checks connectivity to the Redis server.
func (l *RedisLedger) Ping(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Client returns the underlying Redis client (for advanced usage/testing).
func (l *RedisLedger) Client() *goredis.Client {
	return l.client
}
