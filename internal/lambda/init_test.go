package lambda

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_MissingTableName(t *testing.T) {
	t.Setenv("TABLE_NAME", "")
	t.Setenv("AWS_REGION", "us-east-1")

	_, err := Init(t.Context())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "TABLE_NAME")
}

func TestInit_MissingRegion(t *testing.T) {
	t.Setenv("TABLE_NAME", "rehydrate-test")
	t.Setenv("AWS_REGION", "")

	_, err := Init(t.Context())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "AWS_REGION")
}

func TestInit_MinimalEnv(t *testing.T) {
	t.Setenv("TABLE_NAME", "rehydrate-test")
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("DEFAULT_BUCKET", "")
	t.Setenv("STATUS_TOPIC_ARN", "")
	t.Setenv("AUDIT_TOPIC_ARN", "")
	t.Setenv("ALERT_TOPIC_ARN", "")

	deps, err := Init(t.Context())
	require.NoError(t, err)

	assert.NotNil(t, deps.Ledger)
	assert.NotNil(t, deps.Executor)
	assert.NotNil(t, deps.AlertFn)
	assert.NotNil(t, deps.Logger)

	// Without a destination bucket or topics there is nothing to
	// orchestrate or publish to.
	assert.Nil(t, deps.Orchestrator)
	assert.Nil(t, deps.Notify)
	assert.Nil(t, deps.SNSClient)
	assert.Empty(t, deps.AuditTopicARN)
}

func TestInit_WithDestination(t *testing.T) {
	t.Setenv("TABLE_NAME", "rehydrate-test")
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("DEFAULT_BUCKET", "recovered")
	t.Setenv("RESTORE_DAYS", "7")
	t.Setenv("DEFAULT_TIER", "bulk")
	t.Setenv("STATUS_TOPIC_ARN", "")
	t.Setenv("AUDIT_TOPIC_ARN", "")
	t.Setenv("ALERT_TOPIC_ARN", "")

	deps, err := Init(t.Context())
	require.NoError(t, err)
	assert.NotNil(t, deps.Orchestrator)
}
