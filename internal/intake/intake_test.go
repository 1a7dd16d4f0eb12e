package intake_test

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

	"github.com/frostline/rehydrate/internal/intake"
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

type stubSubmitter struct {
	mu       sync.Mutex
	requests []types.RecoveryRequest
	err      error
}

func (s *stubSubmitter) SubmitRecovery(_ context.Context, req types.RecoveryRequest) (*types.SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.requests = append(s.requests, req)
	return &types.SubmitResult{RequestID: req.RequestID}, nil
}

func (s *stubSubmitter) submitted() []types.RecoveryRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.RecoveryRequest(nil), s.requests...)
}

const requestBody = `{"requestId":"req-batch-1","requestedBy":"ops","granules":[{"granuleId":"g1","files":[{"key":"g1/scene.h5","bucket":"cold-archive"}]}]}`

func TestConsumerSubmitsAndDeletes(t *testing.T) {
	sub := &stubSubmitter{}
	fake := &fakeSQS{
		batches: [][]sqstypes.Message{{
			{
				Body:          aws.String(requestBody),
				ReceiptHandle: aws.String("rh-valid"),
			},
			{
				Body:          aws.String("not a recovery request"),
				ReceiptHandle: aws.String("rh-garbage"),
			},
		}},
	}

	c, err := intake.NewConsumer(types.IntakeConfig{QueueURL: "https://sqs.test/intake"}, sub, intake.WithSQSClient(fake))
	require.NoError(t, err)

	c.Start(context.Background())
	testutil.WaitFor(t, 2*time.Second, func() bool {
		return len(sub.submitted()) == 1
	}, "request never submitted")
	c.Stop(context.Background())

	reqs := sub.submitted()
	require.Len(t, reqs, 1)
	assert.Equal(t, "req-batch-1", reqs[0].RequestID)
	assert.Equal(t, "ops", reqs[0].RequestedBy)

	// The malformed message stays on the queue for its redrive policy.
	assert.Equal(t, []string{"rh-valid"}, fake.deletedHandles())
}

func TestConsumerRejectsMissingRequestID(t *testing.T) {
	sub := &stubSubmitter{}
	fake := &fakeSQS{
		batches: [][]sqstypes.Message{{
			{
				Body:          aws.String(`{"requestedBy":"ops","granules":[{"granuleId":"g1","files":[{"key":"a","bucket":"b"}]}]}`),
				ReceiptHandle: aws.String("rh-anon"),
			},
		}},
	}

	c, err := intake.NewConsumer(types.IntakeConfig{QueueURL: "https://sqs.test/intake"}, sub, intake.WithSQSClient(fake))
	require.NoError(t, err)

	c.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	c.Stop(context.Background())

	// Without a requestId every redelivery would mint a new request, so the
	// message is never submitted and never deleted.
	assert.Empty(t, sub.submitted())
	assert.Empty(t, fake.deletedHandles())
}

func TestConsumerLeavesFailedSubmitsForRedelivery(t *testing.T) {
	sub := &stubSubmitter{err: assert.AnError}
	fake := &fakeSQS{
		batches: [][]sqstypes.Message{{
			{
				Body:          aws.String(requestBody),
				ReceiptHandle: aws.String("rh-failing"),
			},
		}},
	}

	c, err := intake.NewConsumer(types.IntakeConfig{QueueURL: "https://sqs.test/intake"}, sub, intake.WithSQSClient(fake))
	require.NoError(t, err)

	c.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	c.Stop(context.Background())

	assert.Empty(t, fake.deletedHandles())
}

func TestConsumerStopsCleanly(t *testing.T) {
	c, err := intake.NewConsumer(types.IntakeConfig{QueueURL: "https://sqs.test/intake"}, &stubSubmitter{}, intake.WithSQSClient(&fakeSQS{}))
	require.NoError(t, err)

	c.Start(context.Background())
	time.Sleep(30 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Stop(stopCtx)
}

func TestNewConsumerRequiresQueueURL(t *testing.T) {
	_, err := intake.NewConsumer(types.IntakeConfig{}, &stubSubmitter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue URL")
}
