package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/metric"
)

// skipReason returns a non-empty reason when a stage does not apply to the
// job's category.
func skipReason(m core.Metric, category core.PromptCategory) string {
	switch m {
	case core.MetricInformationDensity:
		if category == core.CategoryCreativeImage {
			return "information density does not apply to image prompts"
		}
	case core.MetricConsistency:
		if category == core.CategoryCreativeText {
			return "repeat consistency is not expected from creative text"
		}
	case core.MetricHallucination:
		if category != core.CategoryInformation {
			return "hallucination checking applies to factual prompts only"
		}
	}
	return ""
}

// runStages dispatches every applicable stage concurrently and collects one
// result per registered stage. A stage failure, panic or timeout fills its
// slot with FAILED; siblings are unaffected.
func (o *Orchestrator) runStages(ctx context.Context, job *core.Job, input *metric.Input) map[core.Metric]core.MetricResult {
	results := make(map[core.Metric]core.MetricResult, len(o.stages))

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	// Skipped slots are filled before any stage goroutine starts so the map
	// is never written from two goroutines at once.
	for _, stage := range o.stages {
		name := stage.Name()
		if reason := skipReason(name, job.Category); reason != "" {
			results[name] = core.SkippedMetric(name, reason)
		}
	}

	for _, stage := range o.stages {
		if _, skipped := results[stage.Name()]; skipped {
			continue
		}

		wg.Add(1)
		go func(stage metric.Stage) {
			defer wg.Done()

			start := time.Now()
			result := o.computeStage(ctx, stage, input)

			o.opts.Logger.Info("stage finished",
				"job_id", job.ID,
				"stage", string(stage.Name()),
				"status", string(result.Status),
				"duration", time.Since(start))

			mu.Lock()
			results[stage.Name()] = result
			mu.Unlock()
		}(stage)
	}

	wg.Wait()
	return results
}

// computeStage contains one stage's failure modes, including panics, at its
// boundary.
func (o *Orchestrator) computeStage(ctx context.Context, stage metric.Stage, input *metric.Input) (result core.MetricResult) {
	defer func() {
		if r := recover(); r != nil {
			result = core.FailedMetric(stage.Name(), fmt.Errorf("stage panic: %v", r))
		}
	}()

	res, err := stage.Compute(ctx, input)
	if err != nil {
		return core.FailedMetric(stage.Name(), err)
	}
	if res == nil {
		return core.FailedMetric(stage.Name(), fmt.Errorf("stage returned no result"))
	}
	return *res
}
