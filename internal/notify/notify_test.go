package notify

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
	err       error
}

func (m *mockSNS) Publish(_ context.Context, input *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.published = append(m.published, input)
	return &sns.PublishOutput{}, m.err
}

func testConfig() types.NotifyConfig {
	return types.NotifyConfig{TopicARN: "arn:aws:sns:us-east-1:123456789:recovery-status"}
}

func TestPublishSendsNormalizedEvent(t *testing.T) {
	mock := &mockSNS{}
	p, err := New(testConfig(), WithClient(mock))
	require.NoError(t, err)

	p.Publish(context.Background(), types.StatusChangeEvent{
		GranuleID: "g1",
		FileKey:   "g1/scene.h5",
		RequestID: "req-1",
		From:      types.FileStaged,
		To:        types.FileRestored,
		Timestamp: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	})

	require.Len(t, mock.published, 1)
	pub := mock.published[0]
	assert.Equal(t, "arn:aws:sns:us-east-1:123456789:recovery-status", *pub.TopicArn)

	var decoded types.StatusChangeEvent
	require.NoError(t, json.Unmarshal([]byte(*pub.Message), &decoded))
	assert.Equal(t, "g1", decoded.GranuleID)
	assert.Equal(t, types.FileStaged, decoded.From)
	assert.Equal(t, types.FileRestored, decoded.To)

	require.Contains(t, pub.MessageAttributes, "status")
	assert.Equal(t, "RESTORED", *pub.MessageAttributes["status"].StringValue)
}

func TestPublishSetsMissingTimestamp(t *testing.T) {
	mock := &mockSNS{}
	p, err := New(testConfig(), WithClient(mock))
	require.NoError(t, err)

	p.Publish(context.Background(), types.StatusChangeEvent{
		GranuleID: "g1",
		FileKey:   "g1/scene.h5",
		To:        types.FileCompleted,
	})

	require.Len(t, mock.published, 1)
	var decoded types.StatusChangeEvent
	require.NoError(t, json.Unmarshal([]byte(*mock.published[0].Message), &decoded))
	assert.False(t, decoded.Timestamp.IsZero())
}

func TestPublishSwallowsClientErrors(t *testing.T) {
	mock := &mockSNS{err: assert.AnError}
	p, err := New(testConfig(), WithClient(mock))
	require.NoError(t, err)

	// Must not panic or propagate; status publication is best-effort.
	p.Publish(context.Background(), types.StatusChangeEvent{
		GranuleID: "g1", FileKey: "g1/scene.h5", To: types.FileFailed,
	})
	assert.Len(t, mock.published, 1)
}

func TestPublishTruncatesOversizedPayload(t *testing.T) {
	mock := &mockSNS{}
	p, err := New(testConfig(), WithClient(mock))
	require.NoError(t, err)

	p.Publish(context.Background(), types.StatusChangeEvent{
		GranuleID: "g1",
		FileKey:   "g1/scene.h5",
		To:        types.FileFailed,
		Detail:    strings.Repeat("x", 300*1024),
	})

	require.Len(t, mock.published, 1)
	assert.LessOrEqual(t, len(*mock.published[0].Message), maxMessageBytes)
}

func TestStatusFuncPublishes(t *testing.T) {
	mock := &mockSNS{}
	p, err := New(testConfig(), WithClient(mock))
	require.NoError(t, err)

	fn := p.StatusFunc()
	fn(types.StatusChangeEvent{GranuleID: "g1", FileKey: "g1/scene.h5", To: types.FileStaged})

	assert.Len(t, mock.published, 1)
}

func TestNewRequiresTopicARN(t *testing.T) {
	_, err := New(types.NotifyConfig{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "topic ARN")
}
