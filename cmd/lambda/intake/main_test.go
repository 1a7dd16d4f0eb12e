package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostline/rehydrate/internal/destination"
	"github.com/frostline/rehydrate/internal/initiator"
	intlambda "github.com/frostline/rehydrate/internal/lambda"
	"github.com/frostline/rehydrate/internal/orchestrator"
	"github.com/frostline/rehydrate/internal/testutil"
	"github.com/frostline/rehydrate/pkg/types"
)

type stubArchive struct{}

func (stubArchive) RequestRestore(context.Context, string, string, types.LatencyClass) error {
	return nil
}

func (stubArchive) DefaultTier() types.LatencyClass { return types.LatencyStandard }

func setupDeps(t *testing.T) (*intlambda.Deps, *testutil.MockLedger) {
	t.Helper()
	led := testutil.NewMockLedger()
	resolver, err := destination.NewResolver(&types.DestinationConfig{DefaultBucket: "recovered"})
	require.NoError(t, err)
	ini := initiator.New(led, stubArchive{}, resolver, nil, nil)
	return &intlambda.Deps{
		Ledger:       led,
		Orchestrator: orchestrator.New(led, ini, resolver, nil),
		Logger:       slog.Default(),
	}, led
}

func sqsMessage(t *testing.T, id string, req types.RecoveryRequest) events.SQSMessage {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	return events.SQSMessage{MessageId: id, Body: string(body)}
}

func intakeRequest(requestID string) types.RecoveryRequest {
	return types.RecoveryRequest{
		RequestID:   requestID,
		RequestedBy: "batch",
		Granules: []types.GranuleSpec{{
			GranuleID: "g1",
			Files:     []types.FileSpec{{Key: "g1/scene.h5", Bucket: "cold-archive"}},
		}},
	}
}

func TestHandleBatch_SubmitsRequest(t *testing.T) {
	d, led := setupDeps(t)

	resp, err := handleBatch(context.Background(), d, events.SQSEvent{
		Records: []events.SQSMessage{sqsMessage(t, "m1", intakeRequest("req-1"))},
	})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)

	stored, err := led.GetRequest(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, "batch", stored.RequestedBy)

	rec, err := led.GetRecord(context.Background(), "g1", "g1/scene.h5")
	require.NoError(t, err)
	assert.Equal(t, types.FileStaged, rec.Status)
}

func TestHandleBatch_MalformedMessage(t *testing.T) {
	d, _ := setupDeps(t)

	resp, err := handleBatch(context.Background(), d, events.SQSEvent{
		Records: []events.SQSMessage{{MessageId: "m1", Body: "{not json"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "m1", resp.BatchItemFailures[0].ItemIdentifier)
}

func TestHandleBatch_MissingRequestID(t *testing.T) {
	d, led := setupDeps(t)

	resp, err := handleBatch(context.Background(), d, events.SQSEvent{
		Records: []events.SQSMessage{sqsMessage(t, "m1", intakeRequest(""))},
	})
	require.NoError(t, err)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "m1", resp.BatchItemFailures[0].ItemIdentifier)

	_, err = led.GetRecord(context.Background(), "g1", "g1/scene.h5")
	assert.Error(t, err)
}

func TestHandleBatch_PartialFailure(t *testing.T) {
	d, led := setupDeps(t)

	resp, err := handleBatch(context.Background(), d, events.SQSEvent{
		Records: []events.SQSMessage{
			sqsMessage(t, "good", intakeRequest("req-1")),
			{MessageId: "bad", Body: "not even close"},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "bad", resp.BatchItemFailures[0].ItemIdentifier)

	_, err = led.GetRequest(context.Background(), "req-1")
	assert.NoError(t, err)
}

func TestHandleBatch_RedeliveryIsIdempotent(t *testing.T) {
	d, _ := setupDeps(t)
	msg := sqsMessage(t, "m1", intakeRequest("req-1"))

	resp, err := handleBatch(context.Background(), d, events.SQSEvent{Records: []events.SQSMessage{msg}})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)

	// Same message delivered again: the submit succeeds without creating a
	// second record for the file.
	resp, err = handleBatch(context.Background(), d, events.SQSEvent{Records: []events.SQSMessage{msg}})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)

	result, err := d.Orchestrator.SubmitRecovery(context.Background(), intakeRequest("req-1"))
	require.NoError(t, err)
	require.Len(t, result.Files, 1)
	assert.Equal(t, types.OutcomeAccepted, result.Files[0].Outcome)
	assert.Contains(t, result.Files[0].Reason, "already in progress")
}
