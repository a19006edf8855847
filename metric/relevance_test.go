package metric

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/embedding"
)

func TestRelevanceStage_OnTopicOutputsScoreHigh(t *testing.T) {
	provider := embedding.NewMockProvider(4)
	provider.AddVector("rendered prompt", []float64{1, 0, 0, 0})
	provider.AddVector("on-topic answer", []float64{1, 0, 0, 0})
	provider.AddVector("off-topic answer", []float64{0, 1, 0, 0})

	stage := NewRelevanceStage(provider)
	result, err := stage.Compute(context.Background(), &Input{
		Job:             testJob(core.CategoryInformation, 1, 2),
		RenderedPrompts: []string{"rendered prompt"},
		Generations: []core.GenerationResult{
			gen(0, 0, "on-topic answer"),
			gen(0, 1, "off-topic answer"),
		},
	})

	require.NoError(t, err)
	assert.Equal(t, core.MetricOK, result.Status)
	// One perfect match and one orthogonal output average to 50.
	assert.InDelta(t, 50.0, *result.Score, 0.0001)
}

func TestRelevanceStage_PerExampleBreakdown(t *testing.T) {
	provider := embedding.NewMockProvider(4)
	provider.AddVector("prompt zero", []float64{1, 0, 0, 0})
	provider.AddVector("prompt one", []float64{0, 1, 0, 0})
	provider.AddVector("answer zero", []float64{1, 0, 0, 0})
	provider.AddVector("answer one", []float64{0, 1, 0, 0})

	stage := NewRelevanceStage(provider)
	result, err := stage.Compute(context.Background(), &Input{
		Job:             testJob(core.CategoryInformation, 2, 1),
		RenderedPrompts: []string{"prompt zero", "prompt one"},
		Generations: []core.GenerationResult{
			gen(0, 0, "answer zero"),
			gen(1, 0, "answer one"),
		},
	})

	require.NoError(t, err)
	require.Len(t, result.Breakdown, 2)
	assert.InDelta(t, 100.0, result.Breakdown[0].Score, 0.0001)
	assert.InDelta(t, 100.0, result.Breakdown[1].Score, 0.0001)
}

func TestRelevanceStage_NoSuccessfulGenerations(t *testing.T) {
	stage := NewRelevanceStage(embedding.NewMockProvider(4))
	_, err := stage.Compute(context.Background(), &Input{
		Job:             testJob(core.CategoryInformation, 1, 1),
		RenderedPrompts: []string{"prompt"},
		Generations:     []core.GenerationResult{{ExampleIndex: 0, Err: "boom"}},
	})
	assert.Error(t, err)
}

func TestRelevanceStage_NegativeSimilarityClampsToZero(t *testing.T) {
	provider := embedding.NewMockProvider(4)
	provider.AddVector("prompt", []float64{1, 0, 0, 0})
	provider.AddVector("opposite", []float64{-1, 0, 0, 0})

	stage := NewRelevanceStage(provider)
	result, err := stage.Compute(context.Background(), &Input{
		Job:             testJob(core.CategoryInformation, 1, 1),
		RenderedPrompts: []string{"prompt"},
		Generations:     []core.GenerationResult{gen(0, 0, "opposite")},
	})

	require.NoError(t, err)
	assert.Equal(t, 0.0, *result.Score)
}
