// Package worker consumes evaluation requests from an SQS queue, runs them
// through the service and publishes the finished reports to an output queue.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/logging"
	"github.com/hupe1980/evalmesh/service"
)

// SQSAPI is the subset of the SQS client the worker needs. Declared here so
// tests can substitute a fake.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Options configure the Worker.
type Options struct {
	// MaxConcurrency bounds evaluations in flight at once.
	MaxConcurrency int
	// WaitTimeSeconds is the long-poll duration per receive.
	WaitTimeSeconds int32
	// VisibilityTimeout should exceed the expected evaluation duration so a
	// message is not redelivered mid-run.
	VisibilityTimeout int32
	Logger            logging.Logger
}

// request is the inbound message body.
type request struct {
	RequestID string       `json:"request_id,omitempty"`
	Spec      core.JobSpec `json:"spec"`
}

// response is the outbound message body.
type response struct {
	RequestID string       `json:"request_id,omitempty"`
	JobID     string       `json:"job_id"`
	Status    string       `json:"status"`
	Report    *core.Report `json:"report,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// Worker polls the input queue and evaluates each message synchronously.
type Worker struct {
	client      SQSAPI
	inputQueue  string
	outputQueue string
	svc         *service.Service
	opts        Options
}

// New constructs a Worker.
func New(client SQSAPI, inputQueue, outputQueue string, svc *service.Service, optFns ...func(o *Options)) *Worker {
	opts := Options{
		MaxConcurrency:    2,
		WaitTimeSeconds:   20,
		VisibilityTimeout: 900,
		Logger:            logging.NewNoOpLogger(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 1
	}
	return &Worker{
		client:      client,
		inputQueue:  inputQueue,
		outputQueue: outputQueue,
		svc:         svc,
		opts:        opts,
	}
}

// Run polls until the context is cancelled. Receive errors are logged and
// polling continues; they are expected during queue hiccups.
func (w *Worker) Run(ctx context.Context) error {
	w.opts.Logger.Info("worker started",
		"input_queue", w.inputQueue,
		"output_queue", w.outputQueue,
		"max_concurrency", w.opts.MaxConcurrency)

	sem := make(chan struct{}, w.opts.MaxConcurrency)
	var wg sync.WaitGroup

	// SQS rejects receive batches above 10 messages.
	receiveBatch := int32(w.opts.MaxConcurrency)
	if receiveBatch > 10 {
		receiveBatch = 10
	}

	for {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			w.opts.Logger.Info("worker stopped")
			return nil
		}

		out, err := w.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(w.inputQueue),
			MaxNumberOfMessages: receiveBatch,
			WaitTimeSeconds:     w.opts.WaitTimeSeconds,
			VisibilityTimeout:   w.opts.VisibilityTimeout,
		})
		if err != nil {
			if ctx.Err() != nil {
				wg.Wait()
				w.opts.Logger.Info("worker stopped")
				return nil
			}
			w.opts.Logger.Warn("receive failed", "error", err)
			continue
		}

		for _, msg := range out.Messages {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				wg.Wait()
				return nil
			}

			wg.Add(1)
			go func(msg types.Message) {
				defer wg.Done()
				defer func() { <-sem }()
				w.handle(ctx, msg)
			}(msg)
		}
	}
}

// handle evaluates one message end to end. The message is deleted only after
// the result was published, so a crash redelivers rather than drops work.
func (w *Worker) handle(ctx context.Context, msg types.Message) {
	var req request
	if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &req); err != nil {
		w.opts.Logger.Error("malformed message, dropping", "error", err)
		w.delete(ctx, msg)
		return
	}

	resp := response{RequestID: req.RequestID}

	job, err := w.svc.Evaluate(ctx, req.Spec)
	if err != nil {
		resp.Status = string(core.JobFailed)
		resp.Error = err.Error()
		w.opts.Logger.Error("evaluation failed", "request_id", req.RequestID, "error", err)
	} else {
		resp.JobID = job.ID
		resp.Status = string(job.Status)
		resp.Report = job.Report
		if job.Error != "" {
			resp.Error = job.Error
		}
	}

	if err := w.send(ctx, resp); err != nil {
		// Leave the message; visibility timeout will redeliver it.
		w.opts.Logger.Error("publish failed, message will be redelivered",
			"request_id", req.RequestID, "error", err)
		return
	}

	w.delete(ctx, msg)
}

func (w *Worker) send(ctx context.Context, resp response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	_, err = w.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(w.outputQueue),
		MessageBody: aws.String(string(data)),
	})
	if err != nil {
		return fmt.Errorf("send to output queue: %w", err)
	}
	return nil
}

func (w *Worker) delete(ctx context.Context, msg types.Message) {
	_, err := w.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(w.inputQueue),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		w.opts.Logger.Warn("delete failed", "error", err)
	}
}
