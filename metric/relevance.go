package metric

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/embedding"
)

// RelevanceOptions configure the relevance stage.
type RelevanceOptions struct {
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// RelevanceStage scores how semantically close each output stays to the
// rendered prompt it answered: cosine similarity between the generation
// embedding and the prompt embedding, averaged per example, scaled to 100.
type RelevanceStage struct {
	provider embedding.Provider
	opts     RelevanceOptions
}

// NewRelevanceStage constructs the stage over the given provider.
func NewRelevanceStage(provider embedding.Provider, optFns ...func(o *RelevanceOptions)) *RelevanceStage {
	opts := RelevanceOptions{
		MaxRetries:     2,
		RetryBaseDelay: 300 * time.Millisecond,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &RelevanceStage{provider: provider, opts: opts}
}

// Name implements Stage.
func (s *RelevanceStage) Name() core.Metric { return core.MetricRelevance }

// Compute implements Stage.
func (s *RelevanceStage) Compute(ctx context.Context, in *Input) (*core.MetricResult, error) {
	grouped := in.byExample()
	if len(grouped) == 0 {
		return nil, fmt.Errorf("no successful generations to score")
	}

	indices := make([]int, 0, len(grouped))
	for idx := range grouped {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	var breakdown []core.ExampleScore
	var scores []float64
	skipped := 0

	for _, idx := range indices {
		if idx >= len(in.RenderedPrompts) {
			skipped++
			continue
		}

		promptVec, err := s.embedWithRetry(ctx, in.RenderedPrompts[idx])
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			skipped++
			breakdown = append(breakdown, core.ExampleScore{
				ExampleIndex: idx,
				Note:         "skipped: prompt embedding failed",
			})
			continue
		}

		var sims []float64
		for _, g := range grouped[idx] {
			genVec, err := s.embedWithRetry(ctx, g.Text)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				continue
			}
			sims = append(sims, clamp01(cosineSimilarity(promptVec, genVec)))
		}
		if len(sims) == 0 {
			skipped++
			breakdown = append(breakdown, core.ExampleScore{
				ExampleIndex: idx,
				Note:         "skipped: no output embeddings",
			})
			continue
		}

		score := mean(sims) * 100
		scores = append(scores, score)
		breakdown = append(breakdown, core.ExampleScore{ExampleIndex: idx, Score: score})
	}

	if len(scores) == 0 {
		return nil, fmt.Errorf("no example could be embedded")
	}

	status := core.MetricOK
	if skipped > 0 {
		status = core.MetricPartial
	}

	return &core.MetricResult{
		Metric:    core.MetricRelevance,
		Score:     core.Float64Ptr(mean(scores)),
		Status:    status,
		Breakdown: breakdown,
	}, nil
}

func (s *RelevanceStage) embedWithRetry(ctx context.Context, text string) ([]float64, error) {
	var lastErr error
	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		vec, err := s.provider.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if !core.IsRetryable(err) || attempt == s.opts.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.opts.RetryBaseDelay << uint(attempt)):
		}
	}
	return nil, lastErr
}
