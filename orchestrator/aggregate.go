package orchestrator

import (
	"fmt"

	"github.com/hupe1980/evalmesh/config"
	"github.com/hupe1980/evalmesh/core"
)

// buildReport assembles the metric slots in canonical order, computes the
// weighted aggregate and collects the non-fatal stage errors.
func (o *Orchestrator) buildReport(job *core.Job, generations []core.GenerationResult, results map[core.Metric]core.MetricResult) *core.Report {
	report := &core.Report{
		GenerationCount: len(core.SuccessfulGenerations(generations)),
		Status:          core.JobCompleted,
	}

	for _, name := range core.Metrics {
		result, ok := results[name]
		if !ok {
			continue
		}
		report.Metrics = append(report.Metrics, result)
		if result.Status == core.MetricFailed && result.Err != "" {
			report.StageErrors = append(report.StageErrors, fmt.Sprintf("%s: %s", name, result.Err))
		}
	}
	for _, g := range generations {
		if !g.OK() {
			report.StageErrors = append(report.StageErrors,
				fmt.Sprintf("generation example=%d repeat=%d: %s", g.ExampleIndex, g.RepeatIndex, g.Err))
		}
	}

	if score, ok := aggregate(o.opts.Weights, job.Category, results); ok {
		report.AggregateScore = core.Float64Ptr(score)
	}

	return report
}

// aggregate computes the category-weighted mean over the metrics that
// produced a score. Absent metrics (failed or skipped) drop out and the
// remaining weights are renormalized, so five good stages out of six still
// yield a full-range score. Returns false when no weighted metric scored.
func aggregate(weights config.WeightPolicy, category core.PromptCategory, results map[core.Metric]core.MetricResult) (float64, bool) {
	table, ok := weights[category]
	if !ok {
		return 0, false
	}

	var weightedSum, totalWeight float64
	for name, weight := range table {
		result, ok := results[name]
		if !ok || result.Score == nil {
			continue
		}
		weightedSum += *result.Score * weight
		totalWeight += weight
	}
	if totalWeight == 0 {
		return 0, false
	}

	score := weightedSum / totalWeight
	score *= penaltyFactor(category, results)

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, true
}

// penaltyFactor compounds the category penalty rules: a severe hallucination
// result halves factual scores, very low relevance costs 30% everywhere, and
// very low consistency costs 20% where repeats are expected to agree.
func penaltyFactor(category core.PromptCategory, results map[core.Metric]core.MetricResult) float64 {
	factor := 1.0

	if category == core.CategoryInformation {
		if r, ok := results[core.MetricHallucination]; ok && r.Score != nil && *r.Score < 30 {
			factor *= 0.5
		}
	}

	if r, ok := results[core.MetricRelevance]; ok && r.Score != nil && *r.Score < 20 {
		factor *= 0.7
	}

	if category == core.CategoryInformation || category == core.CategoryCreativeImage {
		if r, ok := results[core.MetricConsistency]; ok && r.Score != nil && *r.Score < 30 {
			factor *= 0.8
		}
	}

	return factor
}
