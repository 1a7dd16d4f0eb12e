package alert

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostline/rehydrate/pkg/types"
)

type mockSNS struct {
	published []*sns.PublishInput
}

func (m *mockSNS) Publish(_ context.Context, input *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.published = append(m.published, input)
	return &sns.PublishOutput{}, nil
}

func TestSNSSink_Send(t *testing.T) {
	mock := &mockSNS{}
	sink, err := NewSNSSink("arn:aws:sns:us-east-1:123456789:alerts", WithSNSClient(mock))
	require.NoError(t, err)

	alert := types.Alert{
		Level:     types.AlertLevelWarning,
		Category:  "stale_retrieval",
		GranuleID: "g1",
		FileKey:   "g1/scene.h5",
		Message:   "retrieval staged past its deadline",
		Timestamp: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}

	err = sink.Send(context.Background(), alert)
	require.NoError(t, err)

	require.Len(t, mock.published, 1)
	pub := mock.published[0]
	assert.Equal(t, "arn:aws:sns:us-east-1:123456789:alerts", *pub.TopicArn)
	assert.Equal(t, "[warning] g1", *pub.Subject)

	var decoded types.Alert
	require.NoError(t, json.Unmarshal([]byte(*pub.Message), &decoded))
	assert.Equal(t, types.AlertLevelWarning, decoded.Level)
	assert.Equal(t, "g1", decoded.GranuleID)
	assert.Equal(t, "retrieval staged past its deadline", decoded.Message)
}

func TestSNSSink_SubjectFallsBackToCategory(t *testing.T) {
	mock := &mockSNS{}
	sink, err := NewSNSSink("arn:aws:sns:us-east-1:123456789:alerts", WithSNSClient(mock))
	require.NoError(t, err)

	err = sink.Send(context.Background(), types.Alert{
		Level:    types.AlertLevelError,
		Category: "ledger_unreachable",
		Message:  "ping failed",
	})
	require.NoError(t, err)
	assert.Equal(t, "[error] ledger_unreachable", *mock.published[0].Subject)
}

func TestSNSSink_Name(t *testing.T) {
	mock := &mockSNS{}
	sink, err := NewSNSSink("arn:aws:sns:us-east-1:123456789:alerts", WithSNSClient(mock))
	require.NoError(t, err)
	assert.Equal(t, "sns", sink.Name())
}

func TestSNSSink_EmptyTopicARN(t *testing.T) {
	_, err := NewSNSSink("")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "topic ARN required")
}

func TestSNSSink_SubjectTruncation(t *testing.T) {
	mock := &mockSNS{}
	sink, err := NewSNSSink("arn:aws:sns:us-east-1:123456789:alerts", WithSNSClient(mock))
	require.NoError(t, err)

	alert := types.Alert{
		Level:     types.AlertLevelWarning,
		GranuleID: strings.Repeat("very-long-granule-identifier-", 5),
		Message:   "test",
		Timestamp: time.Now(),
	}

	err = sink.Send(context.Background(), alert)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(*mock.published[0].Subject), 100)
}
