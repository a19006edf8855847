// Package openai provides a model.Runner implementation using the OpenAI
// Chat Completions API. It adapts the pipeline's normalized Request/Result
// structures into the SDK's message format and classifies SDK failures into
// transient vs permanent so the orchestrator can retry sensibly.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/model"
)

// Options configure the OpenAI runner adapter.
// Fields mirror a subset of Chat Completion parameters intentionally kept
// minimal; extend via functional options without breaking callers.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int64
}

// Runner wraps the OpenAI Chat Completions API behind the generic
// model.Runner interface.
type Runner struct {
	client *openai.Client
	opts   Options
}

// NewRunner creates a new OpenAI runner using the official client.
func NewRunner(optFns ...func(o *Options)) *Runner {
	client := openai.NewClient()
	return NewRunnerFromClient(&client, optFns...)
}

// NewRunnerFromClient creates a new OpenAI runner from an existing client.
func NewRunnerFromClient(client *openai.Client, optFns ...func(o *Options)) *Runner {
	opts := Options{
		Model:       openai.ChatModelGPT4oMini,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Runner{client: client, opts: opts}
}

// Generate implements model.Runner via a non-streaming chat completion.
func (r *Runner) Generate(ctx context.Context, req model.Request) (*model.Result, error) {
	modelID := req.ModelID
	if modelID == "" {
		modelID = r.opts.Model
	}

	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       modelID,
		Temperature: openai.Float(req.Temperature),
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = r.opts.MaxTokens
	}
	params.MaxCompletionTokens = openai.Int(maxTokens)

	resp, err := r.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classify("openai generate", err)
	}
	if len(resp.Choices) == 0 {
		return nil, core.Permanent("openai generate", fmt.Errorf("no choices in response"))
	}

	return &model.Result{
		Text: resp.Choices[0].Message.Content,
		Usage: core.TokenUsage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}, nil
}

// Info implements model.Runner.
func (r *Runner) Info() model.Info {
	return model.Info{Name: r.opts.Model, Provider: "openai"}
}

// classify maps SDK errors onto the pipeline's retry taxonomy. Rate limits,
// timeouts and server errors are transient; auth and malformed requests are
// permanent.
func classify(op string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests,
			apiErr.StatusCode == http.StatusRequestTimeout,
			apiErr.StatusCode >= http.StatusInternalServerError:
			return core.Transient(op, err)
		default:
			return core.Permanent(op, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return core.Transient(op, err)
	}
	// Network level failures without a status are worth retrying.
	return core.Transient(op, err)
}
