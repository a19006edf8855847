package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/metric"
	"github.com/hupe1980/evalmesh/model"
	"github.com/hupe1980/evalmesh/orchestrator"
	"github.com/hupe1980/evalmesh/service"
	"github.com/hupe1980/evalmesh/store"
)

// fakeSQS delivers each queued message once and blocks like a long poll when
// the queue is empty.
type fakeSQS struct {
	mu       sync.Mutex
	pending  []types.Message
	sent     []string
	deleted  []string
	received []int32
	sendErr  error
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	f.received = append(f.received, params.MaxNumberOfMessages)
	if len(f.pending) > 0 {
		msgs := f.pending
		f.pending = nil
		f.mu.Unlock()
		return &sqs.ReceiveMessageOutput{Messages: msgs}, nil
	}
	f.mu.Unlock()

	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeSQS) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, aws.ToString(params.MessageBody))
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, params *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) sentBodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeSQS) deletedHandles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func (f *fakeSQS) receiveBatches() []int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int32(nil), f.received...)
}

// fixedStage gives every job the same score so reports are predictable.
type fixedStage struct{}

func (fixedStage) Name() core.Metric { return core.MetricTokenUsage }

func (fixedStage) Compute(_ context.Context, _ *metric.Input) (*core.MetricResult, error) {
	return &core.MetricResult{
		Metric: core.MetricTokenUsage,
		Score:  core.Float64Ptr(75),
		Status: core.MetricOK,
	}, nil
}

func newTestWorker(client SQSAPI) *Worker {
	jobs := store.NewInMemoryStore()
	runner := model.NewMockRunner("mock", "mock")
	orch := orchestrator.New(jobs, runner, []metric.Stage{fixedStage{}})
	svc := service.New(jobs, orch)
	return New(client, "input-queue", "output-queue", svc)
}

func message(t *testing.T, handle string, req request) types.Message {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	return types.Message{
		Body:          aws.String(string(body)),
		ReceiptHandle: aws.String(handle),
	}
}

func validSpec() core.JobSpec {
	return core.JobSpec{
		Prompt:        "Answer: {{input}}",
		ExampleInputs: []core.ExampleInput{{Content: "input", Kind: core.InputText}},
		Category:      core.CategoryInformation,
		RepeatCount:   1,
	}
}

func runUntil(t *testing.T, w *Worker, cond func() bool) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	assert.Eventually(t, cond, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestWorker_EvaluatesAndPublishes(t *testing.T) {
	client := &fakeSQS{pending: []types.Message{
		message(t, "rh-1", request{RequestID: "req-1", Spec: validSpec()}),
	}}
	w := newTestWorker(client)

	runUntil(t, w, func() bool { return len(client.deletedHandles()) == 1 })

	sent := client.sentBodies()
	require.Len(t, sent, 1)

	var resp response
	require.NoError(t, json.Unmarshal([]byte(sent[0]), &resp))
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, string(core.JobCompleted), resp.Status)
	assert.NotEmpty(t, resp.JobID)
	require.NotNil(t, resp.Report)
	assert.Equal(t, 1, resp.Report.GenerationCount)

	assert.Equal(t, []string{"rh-1"}, client.deletedHandles())
}

func TestWorker_MalformedMessageIsDropped(t *testing.T) {
	client := &fakeSQS{pending: []types.Message{{
		Body:          aws.String("not json at all"),
		ReceiptHandle: aws.String("rh-bad"),
	}}}
	w := newTestWorker(client)

	runUntil(t, w, func() bool { return len(client.deletedHandles()) == 1 })

	assert.Empty(t, client.sentBodies())
	assert.Equal(t, []string{"rh-bad"}, client.deletedHandles())
}

func TestWorker_InvalidSpecPublishesFailure(t *testing.T) {
	spec := validSpec()
	spec.RepeatCount = 0

	client := &fakeSQS{pending: []types.Message{
		message(t, "rh-2", request{RequestID: "req-2", Spec: spec}),
	}}
	w := newTestWorker(client)

	runUntil(t, w, func() bool { return len(client.deletedHandles()) == 1 })

	sent := client.sentBodies()
	require.Len(t, sent, 1)

	var resp response
	require.NoError(t, json.Unmarshal([]byte(sent[0]), &resp))
	assert.Equal(t, string(core.JobFailed), resp.Status)
	assert.Contains(t, resp.Error, "repeat_count")
	assert.Empty(t, resp.JobID)
}

func TestWorker_PublishFailureLeavesMessage(t *testing.T) {
	client := &fakeSQS{
		pending: []types.Message{
			message(t, "rh-3", request{RequestID: "req-3", Spec: validSpec()}),
		},
		sendErr: errors.New("output queue unavailable"),
	}
	w := newTestWorker(client)

	// The evaluation runs, the publish fails and the message must survive for
	// redelivery.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(200 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Empty(t, client.deletedHandles())
	assert.Empty(t, client.sentBodies())
}

func TestWorker_ReceiveBatchStaysWithinQueueLimit(t *testing.T) {
	client := &fakeSQS{pending: []types.Message{
		message(t, "rh-1", request{RequestID: "req-1", Spec: validSpec()}),
	}}

	jobs := store.NewInMemoryStore()
	runner := model.NewMockRunner("mock", "mock")
	orch := orchestrator.New(jobs, runner, []metric.Stage{fixedStage{}})
	svc := service.New(jobs, orch)

	// High concurrency must not leak into the receive batch size; SQS caps
	// it at 10 per request.
	w := New(client, "input-queue", "output-queue", svc, func(o *Options) {
		o.MaxConcurrency = 32
	})

	runUntil(t, w, func() bool { return len(client.deletedHandles()) == 1 })

	batches := client.receiveBatches()
	require.NotEmpty(t, batches)
	for _, n := range batches {
		assert.Equal(t, int32(10), n)
	}
}

func TestWorker_ProcessesMultipleMessages(t *testing.T) {
	client := &fakeSQS{pending: []types.Message{
		message(t, "rh-a", request{RequestID: "a", Spec: validSpec()}),
		message(t, "rh-b", request{RequestID: "b", Spec: validSpec()}),
	}}
	w := newTestWorker(client)

	runUntil(t, w, func() bool { return len(client.deletedHandles()) == 2 })

	assert.Len(t, client.sentBodies(), 2)
	assert.ElementsMatch(t, []string{"rh-a", "rh-b"}, client.deletedHandles())
}
