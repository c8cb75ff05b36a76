package gate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	mu       sync.Mutex
	batches  [][]types.Message
	fail     error
	deleted  []string
	received int
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received++
	if f.fail != nil {
		return nil, f.fail
	}
	if len(f.batches) == 0 {
		return &sqs.ReceiveMessageOutput{}, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return &sqs.ReceiveMessageOutput{Messages: batch}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type handlerFunc func(ctx context.Context, body string) error

func (f handlerFunc) Handle(ctx context.Context, body string) error { return f(ctx, body) }

func TestPollDeletesHandledMessagesOnly(t *testing.T) {
	client := &fakeSQS{batches: [][]types.Message{{
		{MessageId: aws.String("m1"), ReceiptHandle: aws.String("r1"), Body: aws.String("ok")},
		{MessageId: aws.String("m2"), ReceiptHandle: aws.String("r2"), Body: aws.String("retry")},
		{MessageId: aws.String("m3"), ReceiptHandle: aws.String("r3")},
	}}}
	c := &SQSConsumer{
		sqsClient: client,
		queueURL:  "https://sqs.example.com/queue",
		handler: handlerFunc(func(_ context.Context, body string) error {
			if body == "retry" {
				return errors.New("store unavailable")
			}
			return nil
		}),
	}

	assert.True(t, c.poll(context.Background()))
	assert.Equal(t, []string{"r1", "r3"}, client.deleted)
}

func TestPollReportsReceiveFailure(t *testing.T) {
	c := &SQSConsumer{sqsClient: &fakeSQS{fail: errors.New("throttled")}, queueURL: "q"}
	assert.False(t, c.poll(context.Background()))
}

func TestStartStopsOnCancel(t *testing.T) {
	client := &fakeSQS{fail: errors.New("down")}
	c := &SQSConsumer{sqsClient: client, queueURL: "q", retryDelay: 10 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(stopped)
	}()
	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.received >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}
