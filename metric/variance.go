package metric

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/embedding"
)

// VarianceOptions configure the model variance stage.
type VarianceOptions struct {
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// ModelVarianceStage measures how much alternate models diverge from the
// primary model on the same examples. Comparison outputs are generated ahead
// of scoring and arrive via Input.ComparisonOutputs; the stage embeds one
// output per model per example and scores the mean pairwise similarity.
// Single-model jobs get a neutral full score with explanatory evidence.
type ModelVarianceStage struct {
	provider embedding.Provider
	opts     VarianceOptions
}

// NewModelVarianceStage constructs the stage over the given provider.
func NewModelVarianceStage(provider embedding.Provider, optFns ...func(o *VarianceOptions)) *ModelVarianceStage {
	opts := VarianceOptions{
		MaxRetries:     2,
		RetryBaseDelay: 300 * time.Millisecond,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &ModelVarianceStage{provider: provider, opts: opts}
}

// Name implements Stage.
func (s *ModelVarianceStage) Name() core.Metric { return core.MetricModelVariance }

// Compute implements Stage.
func (s *ModelVarianceStage) Compute(ctx context.Context, in *Input) (*core.MetricResult, error) {
	if len(in.ComparisonOutputs) == 0 {
		return &core.MetricResult{
			Metric: core.MetricModelVariance,
			Score:  core.Float64Ptr(100),
			Status: core.MetricOK,
			Evidence: map[string]any{
				"note": "single-model job, no comparison models configured",
			},
		}, nil
	}

	primary := primaryOutputs(in)
	if len(primary) == 0 {
		return nil, fmt.Errorf("no successful generations to compare against")
	}

	models := make([]string, 0, len(in.ComparisonOutputs))
	for m := range in.ComparisonOutputs {
		models = append(models, m)
	}
	sort.Strings(models)

	var scores []float64
	var breakdown []core.ExampleScore
	skipped := 0

	exampleIndices := make([]int, 0, len(primary))
	for idx := range primary {
		exampleIndices = append(exampleIndices, idx)
	}
	sort.Ints(exampleIndices)

	for _, idx := range exampleIndices {
		outputs := []string{primary[idx]}
		for _, m := range models {
			alt := in.ComparisonOutputs[m]
			if idx < len(alt) && strings.TrimSpace(alt[idx]) != "" {
				outputs = append(outputs, alt[idx])
			}
		}
		if len(outputs) < 2 {
			skipped++
			breakdown = append(breakdown, core.ExampleScore{
				ExampleIndex: idx,
				Note:         "skipped: fewer than two model outputs",
			})
			continue
		}

		vectors := make([][]float64, 0, len(outputs))
		for _, out := range outputs {
			vec, err := s.embedWithRetry(ctx, out)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				continue
			}
			vectors = append(vectors, vec)
		}
		if len(vectors) < 2 {
			skipped++
			breakdown = append(breakdown, core.ExampleScore{
				ExampleIndex: idx,
				Note:         "skipped: fewer than two valid embeddings",
			})
			continue
		}

		var sims []float64
		for i := 0; i < len(vectors); i++ {
			for j := i + 1; j < len(vectors); j++ {
				sims = append(sims, clamp01(cosineSimilarity(vectors[i], vectors[j])))
			}
		}
		score := mean(sims) * 100
		scores = append(scores, score)
		breakdown = append(breakdown, core.ExampleScore{ExampleIndex: idx, Score: score})
	}

	if len(scores) == 0 {
		return nil, fmt.Errorf("no example produced enough embeddings to compare")
	}

	status := core.MetricOK
	if skipped > 0 {
		status = core.MetricPartial
	}

	return &core.MetricResult{
		Metric:    core.MetricModelVariance,
		Score:     core.Float64Ptr(mean(scores)),
		Status:    status,
		Breakdown: breakdown,
		Evidence: map[string]any{
			"comparison_models": models,
			"examples_scored":   len(scores),
			"examples_skipped":  skipped,
		},
	}, nil
}

// primaryOutputs picks the first successful repeat per example.
func primaryOutputs(in *Input) map[int]string {
	outputs := make(map[int]string)
	for _, g := range in.Successful() {
		if existing, ok := outputs[g.ExampleIndex]; ok && existing != "" {
			continue
		}
		outputs[g.ExampleIndex] = g.Text
	}
	return outputs
}

func (s *ModelVarianceStage) embedWithRetry(ctx context.Context, text string) ([]float64, error) {
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
