// Package metric implements the six evaluation stages. Every stage consumes
// the same Input snapshot and emits a bounded MetricResult, so the
// orchestrator can drive them generically and in parallel.
package metric

import (
	"context"
	"math"

	"github.com/hupe1980/evalmesh/core"
)

// Input is the read-only snapshot a stage computes over. Stages never mutate
// it; each filters down to the generations it can use.
type Input struct {
	Job *core.Job

	// Generations holds every attempted generation, failures included.
	Generations []core.GenerationResult

	// RenderedPrompts holds the prompt rendered per example input, indexed
	// like Job.ExampleInputs.
	RenderedPrompts []string

	// ComparisonOutputs maps alternate model ids to one output per example,
	// populated only for model-comparison jobs.
	ComparisonOutputs map[string][]string
}

// Successful returns the generations that produced text.
func (in *Input) Successful() []core.GenerationResult {
	return core.SuccessfulGenerations(in.Generations)
}

// byExample groups successful generations by example index.
func (in *Input) byExample() map[int][]core.GenerationResult {
	grouped := make(map[int][]core.GenerationResult)
	for _, g := range in.Successful() {
		grouped[g.ExampleIndex] = append(grouped[g.ExampleIndex], g)
	}
	return grouped
}

// Stage is one metric computation. Compute returns an error only for
// infrastructure failures; domain-level shortfalls are expressed through the
// result's status.
type Stage interface {
	Name() core.Metric
	Compute(ctx context.Context, in *Input) (*core.MetricResult, error)
}

// cosineSimilarity is in [-1, 1]; zero vectors yield 0.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func centroid(vectors [][]float64) []float64 {
	if len(vectors) == 0 {
		return nil
	}
	c := make([]float64, len(vectors[0]))
	for _, v := range vectors {
		for i := range c {
			c[i] += v[i]
		}
	}
	for i := range c {
		c[i] /= float64(len(vectors))
	}
	return c
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
