// Package openai provides an embedding.Provider backed by the OpenAI
// Embeddings API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"

	"github.com/hupe1980/evalmesh/core"
)

// Options configure the OpenAI embedding adapter.
type Options struct {
	Model string
}

// Provider wraps the OpenAI Embeddings API behind the generic
// embedding.Provider interface.
type Provider struct {
	client *openai.Client
	opts   Options
}

// NewProvider creates a new OpenAI embedding provider using the official
// client.
func NewProvider(optFns ...func(o *Options)) *Provider {
	client := openai.NewClient()
	return NewProviderFromClient(&client, optFns...)
}

// NewProviderFromClient creates a new OpenAI embedding provider from an
// existing client.
func NewProviderFromClient(client *openai.Client, optFns ...func(o *Options)) *Provider {
	opts := Options{
		Model: openai.EmbeddingModelTextEmbedding3Small,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts}
}

// Embed implements embedding.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, core.Permanent("openai embed", fmt.Errorf("text cannot be empty"))
	}

	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: p.opts.Model,
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, classify("openai embed", err)
	}
	if len(resp.Data) == 0 {
		return nil, core.Permanent("openai embed", fmt.Errorf("no embedding in response"))
	}

	return append([]float64(nil), resp.Data[0].Embedding...), nil
}

// classify maps SDK errors onto the pipeline's retry taxonomy.
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
	return core.Transient(op, err)
}
