package metric

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/evalmesh/core"
)

func TestInformationDensityStage(t *testing.T) {
	job := testJob(core.CategoryInformation, 2, 2)

	stage := NewInformationDensityStage()
	result, err := stage.Compute(context.Background(), &Input{
		Job: job,
		Generations: []core.GenerationResult{
			gen(0, 0, "every word here is completely unique"),
			gen(0, 1, "all different tokens again naturally"),
			gen(1, 0, "repeat repeat repeat repeat repeat"),
			gen(1, 1, "same same same same same"),
		},
	})

	require.NoError(t, err)
	assert.Equal(t, core.MetricOK, result.Status)
	require.Len(t, result.Breakdown, 2)

	// Unique text scores near 100, repetitive text far lower.
	assert.Greater(t, result.Breakdown[0].Score, 95.0)
	assert.Less(t, result.Breakdown[1].Score, 40.0)
	assert.Equal(t, 0, result.Breakdown[0].ExampleIndex)
	assert.Equal(t, 1, result.Breakdown[1].ExampleIndex)
}

func TestInformationDensityStage_NoSuccessfulGenerations(t *testing.T) {
	job := testJob(core.CategoryInformation, 1, 1)

	stage := NewInformationDensityStage()
	_, err := stage.Compute(context.Background(), &Input{
		Job:         job,
		Generations: []core.GenerationResult{{ExampleIndex: 0, Err: "timeout"}},
	})
	assert.Error(t, err)
}

func TestDensityOf(t *testing.T) {
	assert.Equal(t, 1.0, densityOf("all unique words here"))
	assert.Equal(t, 0.0, densityOf(""))
	assert.Equal(t, 1.0, densityOf("single"))

	// "a a a": unigram ratio 1/3, bigram ratio 1/2.
	assert.InDelta(t, 0.5*(1.0/3.0)+0.5*0.5, densityOf("a a a"), 0.0001)
}

func TestInformationDensityStage_SamplesAtMostThree(t *testing.T) {
	job := testJob(core.CategoryInformation, 1, 5)

	stage := NewInformationDensityStage()
	result, err := stage.Compute(context.Background(), &Input{
		Job: job,
		Generations: []core.GenerationResult{
			gen(0, 0, "unique tokens one"),
			gen(0, 1, "unique tokens two"),
			gen(0, 2, "unique tokens three"),
			gen(0, 3, "repeat repeat repeat repeat"),
			gen(0, 4, "repeat repeat repeat repeat"),
		},
	})

	require.NoError(t, err)
	// The repetitive fourth and fifth outputs fall outside the sample.
	assert.Greater(t, *result.Score, 95.0)
}
