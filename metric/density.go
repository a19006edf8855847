package metric

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hupe1980/evalmesh/core"
)

// InformationDensityStage measures how much of each output is non-repetitive
// content: the unique unigram and bigram ratios over up to maxSampled outputs
// per example, averaged and scaled to 100. Pure computation.
type InformationDensityStage struct {
	maxSampled int
}

// NewInformationDensityStage constructs the stage.
func NewInformationDensityStage() *InformationDensityStage {
	return &InformationDensityStage{maxSampled: 3}
}

// Name implements Stage.
func (s *InformationDensityStage) Name() core.Metric { return core.MetricInformationDensity }

// Compute implements Stage.
func (s *InformationDensityStage) Compute(_ context.Context, in *Input) (*core.MetricResult, error) {
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
	for _, idx := range indices {
		gens := grouped[idx]
		// Deterministic sampling: repeats arrive ordered by repeat index.
		sort.Slice(gens, func(i, j int) bool { return gens[i].RepeatIndex < gens[j].RepeatIndex })
		if len(gens) > s.maxSampled {
			gens = gens[:s.maxSampled]
		}

		var perOutput []float64
		for _, g := range gens {
			perOutput = append(perOutput, densityOf(g.Text))
		}
		score := mean(perOutput) * 100
		scores = append(scores, score)
		breakdown = append(breakdown, core.ExampleScore{ExampleIndex: idx, Score: score})
	}

	return &core.MetricResult{
		Metric:    core.MetricInformationDensity,
		Score:     core.Float64Ptr(mean(scores)),
		Status:    core.MetricOK,
		Breakdown: breakdown,
	}, nil
}

// densityOf is 0.5*unique-unigram-ratio + 0.5*unique-bigram-ratio.
func densityOf(text string) float64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return 0
	}

	unigrams := make(map[string]struct{}, len(words))
	for _, w := range words {
		unigrams[w] = struct{}{}
	}
	uniRatio := float64(len(unigrams)) / float64(len(words))

	if len(words) < 2 {
		return uniRatio
	}
	bigrams := make(map[string]struct{}, len(words)-1)
	for i := 0; i < len(words)-1; i++ {
		bigrams[words[i]+" "+words[i+1]] = struct{}{}
	}
	biRatio := float64(len(bigrams)) / float64(len(words)-1)

	return 0.5*uniRatio + 0.5*biRatio
}
