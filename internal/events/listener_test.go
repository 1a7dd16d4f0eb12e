package events_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/frostline/rehydrate/internal/events"
	"github.com/frostline/rehydrate/internal/testutil"
	"github.com/frostline/rehydrate/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSQS struct {
	mu      sync.Mutex
	batches [][]sqstypes.Message
	deleted []string
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	var batch []sqstypes.Message
	if len(f.batches) > 0 {
		batch = f.batches[0]
		f.batches = f.batches[1:]
	}
	f.mu.Unlock()

	if batch == nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
		return &sqs.ReceiveMessageOutput{}, nil
	}
	return &sqs.ReceiveMessageOutput{Messages: batch}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, input *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(input.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) deletedHandles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func TestListenerDeliversAndDeletes(t *testing.T) {
	led := testutil.NewMockLedger()
	led.SeedRecord(stagedRecord("g1", "g1/scene.h5"))
	h := events.NewHandler(led, nil, nil)

	fake := &fakeSQS{
		batches: [][]sqstypes.Message{{
			{
				Body:          aws.String(s3NotificationBody("ObjectRestore:Completed", "cold-archive", "g1/scene.h5")),
				ReceiptHandle: aws.String("rh-valid"),
			},
			{
				Body:          aws.String("not a completion payload"),
				ReceiptHandle: aws.String("rh-garbage"),
			},
		}},
	}

	l, err := events.NewListener(types.ListenerConfig{QueueURL: "https://sqs.test/completions"}, h, events.WithSQSClient(fake))
	require.NoError(t, err)

	l.Start(context.Background())
	testutil.WaitForStatus(t, led, "g1", "g1/scene.h5", types.FileRestored, 2*time.Second)
	l.Stop(context.Background())

	// The malformed message stays on the queue for its redrive policy.
	assert.Equal(t, []string{"rh-valid"}, fake.deletedHandles())
}

func TestListenerStopsCleanly(t *testing.T) {
	led := testutil.NewMockLedger()
	h := events.NewHandler(led, nil, nil)

	l, err := events.NewListener(types.ListenerConfig{QueueURL: "https://sqs.test/completions"}, h, events.WithSQSClient(&fakeSQS{}))
	require.NoError(t, err)

	l.Start(context.Background())
	time.Sleep(30 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	l.Stop(stopCtx)
}

func TestNewListenerRequiresQueueURL(t *testing.T) {
	_, err := events.NewListener(types.ListenerConfig{}, events.NewHandler(testutil.NewMockLedger(), nil, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue URL")
}
