package metric

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/embedding"
)

// ConsistencyOptions configure the consistency stage.
type ConsistencyOptions struct {
	// Alpha weights the worst outlier's distance on top of the mean.
	Alpha float64
	// MinEmbeddings is the floor of valid embeddings per example below which
	// the example is skipped.
	MinEmbeddings int
	// Concurrency bounds in-flight embedding calls.
	Concurrency int
	// MaxRetries is the per-embedding retry budget for retryable failures.
	MaxRetries     int
	RetryBaseDelay time.Duration
}

// ConsistencyStage scores how much repeats of the same example agree: each
// repeat is embedded, distances to the example centroid are measured and
// score = clamp01(1 - (meanDist + alpha*maxDist)) * 100. Examples with too
// few valid embeddings are skipped and the stage reports PARTIAL.
type ConsistencyStage struct {
	provider embedding.Provider
	opts     ConsistencyOptions
}

// NewConsistencyStage constructs the stage over the given provider.
func NewConsistencyStage(provider embedding.Provider, optFns ...func(o *ConsistencyOptions)) *ConsistencyStage {
	opts := ConsistencyOptions{
		Alpha:          0.2,
		MinEmbeddings:  3,
		Concurrency:    8,
		MaxRetries:     2,
		RetryBaseDelay: 300 * time.Millisecond,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &ConsistencyStage{provider: provider, opts: opts}
}

// Name implements Stage.
func (s *ConsistencyStage) Name() core.Metric { return core.MetricConsistency }

// Compute implements Stage.
func (s *ConsistencyStage) Compute(ctx context.Context, in *Input) (*core.MetricResult, error) {
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
		gens := grouped[idx]
		vectors := s.embedAll(ctx, gens)

		if len(vectors) < s.opts.MinEmbeddings {
			skipped++
			breakdown = append(breakdown, core.ExampleScore{
				ExampleIndex: idx,
				Note:         fmt.Sprintf("skipped: %d of %d embeddings available", len(vectors), len(gens)),
			})
			continue
		}

		c := centroid(vectors)
		var distances []float64
		maxDist := 0.0
		for _, v := range vectors {
			d := 1 - cosineSimilarity(v, c)
			distances = append(distances, d)
			if d > maxDist {
				maxDist = d
			}
		}

		score := clamp01(1-(mean(distances)+s.opts.Alpha*maxDist)) * 100
		scores = append(scores, score)
		breakdown = append(breakdown, core.ExampleScore{ExampleIndex: idx, Score: score})
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("no example reached %d valid embeddings", s.opts.MinEmbeddings)
	}

	status := core.MetricOK
	if skipped > 0 {
		status = core.MetricPartial
	}

	return &core.MetricResult{
		Metric:    core.MetricConsistency,
		Score:     core.Float64Ptr(mean(scores)),
		Status:    status,
		Breakdown: breakdown,
		Evidence: map[string]any{
			"examples_scored":  len(scores),
			"examples_skipped": skipped,
		},
	}, nil
}

// embedAll embeds the repeats of one example concurrently. Failed embeddings
// are dropped; the caller decides whether enough survived.
func (s *ConsistencyStage) embedAll(ctx context.Context, gens []core.GenerationResult) [][]float64 {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		sem     = make(chan struct{}, s.opts.Concurrency)
		vectors [][]float64
	)

	for _, g := range gens {
		wg.Add(1)
		go func(text string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			vec, err := s.embedWithRetry(ctx, text)
			if err != nil {
				return
			}
			mu.Lock()
			vectors = append(vectors, vec)
			mu.Unlock()
		}(g.Text)
	}
	wg.Wait()

	return vectors
}

func (s *ConsistencyStage) embedWithRetry(ctx context.Context, text string) ([]float64, error) {
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
