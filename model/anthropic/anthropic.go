// Package anthropic provides a model.Runner implementation for the Anthropic
// Claude Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/model"
)

// Options configures the Anthropic runner adapter (temperature, model id,
// max tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Runner wraps the Anthropic Messages API behind the generic model.Runner
// interface.
type Runner struct {
	client *anthropic.Client
	opts   Options
}

// NewRunner creates a new Anthropic runner using the official client.
func NewRunner(optFns ...func(o *Options)) *Runner {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Runner{
		client: &client,
		opts:   opts,
	}
}

// NewRunnerFromClient creates a new Anthropic runner from an existing client.
func NewRunnerFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Runner {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Runner{
		client: client,
		opts:   opts,
	}
}

// Generate implements model.Runner via a non-streaming Messages call.
func (r *Runner) Generate(ctx context.Context, req model.Request) (*model.Result, error) {
	modelID := r.opts.Model
	if req.ModelID != "" {
		modelID = anthropic.Model(req.ModelID)
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = r.opts.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model: modelID,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(req.Temperature),
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := r.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classify("anthropic generate", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.AsText().Text
		}
	}
	if text == "" {
		return nil, core.Permanent("anthropic generate", fmt.Errorf("no text content in response"))
	}

	return &model.Result{
		Text: text,
		Usage: core.TokenUsage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
			TotalTokens:  int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}

// Info implements model.Runner.
func (r *Runner) Info() model.Info {
	return model.Info{Name: string(r.opts.Model), Provider: "anthropic"}
}

// classify maps SDK errors onto the pipeline's retry taxonomy. Rate limits,
// timeouts and server errors are transient; auth and malformed requests are
// permanent.
func classify(op string, err error) error {
	var apiErr *anthropic.Error
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
