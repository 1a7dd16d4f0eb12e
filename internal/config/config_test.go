package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostline/rehydrate/pkg/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rehydrate.yaml"), []byte(content), 0o644))
	return dir
}

func TestLoad(t *testing.T) {
	dir := writeConfig(t, `ledger: redis
redis:
  addr: localhost:6379
  keyPrefix: "rehydrate:"
destination:
  defaultBucket: recovered-default
  profiles:
    - name: l0a
      tier: expedited
      excludedTypes: [".xml", ".cmr"]
      rules:
        - pattern: '.*\.h5$'
          bucket: recovered-science
server:
  addr: ":3000"
sweeper:
  enabled: true
  interval: 5m
  alertDedup: 6h
alerts:
  - type: console
`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Ledger)
	require.NotNil(t, cfg.Redis)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "rehydrate:", cfg.Redis.KeyPrefix)
	assert.Equal(t, "recovered-default", cfg.Destination.DefaultBucket)
	require.Len(t, cfg.Destination.Profiles, 1)
	assert.Equal(t, types.LatencyExpedited, cfg.Destination.Profiles[0].Tier)
	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.True(t, cfg.Sweeper.Enabled)
	assert.Len(t, cfg.Alerts, 1)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := writeConfig(t, "invalid: [yaml")
	_, err := Load(dir)
	assert.Error(t, err)
}

func TestValidation_MissingLedger(t *testing.T) {
	dir := writeConfig(t, `destination:
  defaultBucket: recovered-default
`)
	_, err := Load(dir)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ledger is required")
}

func TestValidation_UnknownLedger(t *testing.T) {
	dir := writeConfig(t, `ledger: etcd
destination:
  defaultBucket: recovered-default
`)
	_, err := Load(dir)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown ledger")
}

func TestValidation_MissingRedisConfig(t *testing.T) {
	dir := writeConfig(t, `ledger: redis
destination:
  defaultBucket: recovered-default
`)
	_, err := Load(dir)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "redis config is required")
}

func TestValidation_MissingTableName(t *testing.T) {
	dir := writeConfig(t, `ledger: dynamodb
dynamodb:
  region: us-west-2
destination:
  defaultBucket: recovered-default
`)
	_, err := Load(dir)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "dynamodb.tableName is required")
}

func TestValidation_PostgresDSNAndSecretExclusive(t *testing.T) {
	dir := writeConfig(t, `ledger: postgres
postgres:
  dsn: postgres://localhost/rehydrate
  secretArn: arn:aws:secretsmanager:us-west-2:123:secret:db
destination:
  defaultBucket: recovered-default
`)
	_, err := Load(dir)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestValidation_MissingDefaultBucket(t *testing.T) {
	dir := writeConfig(t, `ledger: redis
redis:
  addr: localhost:6379
`)
	_, err := Load(dir)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "destination.defaultBucket is required")
}

func TestValidation_BadSweeperInterval(t *testing.T) {
	dir := writeConfig(t, `ledger: redis
redis:
  addr: localhost:6379
destination:
  defaultBucket: recovered-default
sweeper:
  enabled: true
  interval: soon
`)
	_, err := Load(dir)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "sweeper.interval")
}

func TestValidation_ArchiverNeedsDSN(t *testing.T) {
	dir := writeConfig(t, `ledger: redis
redis:
  addr: localhost:6379
destination:
  defaultBucket: recovered-default
archiver:
  enabled: true
  interval: 10m
`)
	_, err := Load(dir)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "archiver.dsn is required")
}

func TestValidation_RetryBounds(t *testing.T) {
	dir := writeConfig(t, `ledger: redis
redis:
  addr: localhost:6379
destination:
  defaultBucket: recovered-default
retry:
  maxAttempts: 0
  backoffSeconds: 30
`)
	_, err := Load(dir)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "retry.maxAttempts")
}
