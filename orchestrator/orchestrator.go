// Package orchestrator coordinates a full evaluation run: fan out the
// generation calls, gate on the success threshold, dispatch the metric
// stages concurrently and aggregate their scores into the final report. All
// failure containment happens here; a single bad generation, claim or stage
// never aborts its siblings.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/evalmesh/config"
	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/internal/util"
	"github.com/hupe1980/evalmesh/logging"
	"github.com/hupe1980/evalmesh/metric"
	"github.com/hupe1980/evalmesh/model"
)

// Options configure an Orchestrator.
type Options struct {
	// GenerationConcurrency bounds in-flight model calls in phase one.
	GenerationConcurrency int
	// MaxRetries is the per-generation retry budget for retryable failures.
	MaxRetries     int
	RetryBaseDelay time.Duration
	// CallTimeout caps each individual model call.
	CallTimeout time.Duration
	// JobTimeout caps the whole run; expiry routes into the same partial
	// aggregation path as stage failures.
	JobTimeout time.Duration
	// MaxModelCalls is the per-run hard cap across all external model calls.
	MaxModelCalls int
	// ComparisonModels are generated alongside the primary model to feed the
	// variance stage. Empty means a single-model job.
	ComparisonModels []string
	// Weights is the per-category aggregation policy.
	Weights config.WeightPolicy
	Logger  logging.Logger
}

// Orchestrator owns jobs while they run. One orchestrator serves many jobs
// concurrently; per-run state lives on the stack of RunJob.
type Orchestrator struct {
	store  core.JobStore
	runner model.Runner
	stages []metric.Stage
	opts   Options

	mu         sync.Mutex
	activeRuns map[string]context.CancelFunc
}

// New constructs an Orchestrator driving the given stages.
func New(store core.JobStore, runner model.Runner, stages []metric.Stage, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		GenerationConcurrency: 8,
		MaxRetries:            2,
		RetryBaseDelay:        500 * time.Millisecond,
		CallTimeout:           60 * time.Second,
		JobTimeout:            15 * time.Minute,
		MaxModelCalls:         200,
		Weights:               config.DefaultWeights(),
		Logger:                logging.NewNoOpLogger(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.GenerationConcurrency <= 0 {
		opts.GenerationConcurrency = 1
	}
	return &Orchestrator{
		store:      store,
		runner:     runner,
		stages:     stages,
		opts:       opts,
		activeRuns: make(map[string]context.CancelFunc),
	}
}

// ValidateSpec rejects malformed job specifications before any external call.
func ValidateSpec(spec core.JobSpec) error {
	if strings.TrimSpace(spec.Prompt) == "" {
		return &core.ValidationError{Reason: "prompt must not be empty"}
	}
	if len(spec.ExampleInputs) == 0 {
		return &core.ValidationError{Reason: "at least one example input is required"}
	}
	for i, in := range spec.ExampleInputs {
		if strings.TrimSpace(in.Content) == "" {
			return &core.ValidationError{Reason: fmt.Sprintf("example input %d is empty", i)}
		}
	}
	if spec.RepeatCount < 1 || spec.RepeatCount > 10 {
		return &core.ValidationError{Reason: "repeat_count must be between 1 and 10"}
	}
	if !spec.Category.Valid() {
		return &core.ValidationError{Reason: fmt.Sprintf("unknown category %q", spec.Category)}
	}
	return nil
}

// Cancel requests cancellation of a running job. Cancellation is advisory:
// in-flight calls may complete but their results are discarded.
func (o *Orchestrator) Cancel(jobID string) bool {
	o.mu.Lock()
	cancel, ok := o.activeRuns[jobID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// ActiveRuns returns the ids of jobs currently owned by this orchestrator.
func (o *Orchestrator) ActiveRuns() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.activeRuns))
	for id := range o.activeRuns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RunJob executes the job end to end and persists its terminal state. The
// returned error is non-nil only for validation failures and fatal store
// failures; stage-level trouble lands in the report instead.
func (o *Orchestrator) RunJob(ctx context.Context, job *core.Job) error {
	if err := ValidateSpec(job.Spec()); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, o.opts.JobTimeout)
	defer cancel()

	o.mu.Lock()
	o.activeRuns[job.ID] = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.activeRuns, job.ID)
		o.mu.Unlock()
	}()

	logger := o.opts.Logger
	logger.Info("job started",
		"job_id", job.ID,
		"category", string(job.Category),
		"examples", len(job.ExampleInputs),
		"repeat_count", job.RepeatCount)

	if err := o.store.UpdateStatus(ctx, job.ID, core.JobRunning, ""); err != nil {
		return fmt.Errorf("job store unreachable: %w", err)
	}

	rendered := make([]string, len(job.ExampleInputs))
	for i, in := range job.ExampleInputs {
		rendered[i] = util.RenderPrompt(job.Prompt, in.Content)
	}

	limiter := core.NewCallLimiter(o.opts.MaxModelCalls)

	generations, comparison := o.generate(ctx, job, rendered, limiter)

	if reason, ok := o.belowThreshold(job, generations); !ok {
		logger.Warn("job below generation threshold", "job_id", job.ID, "reason", reason)
		if err := o.store.UpdateStatus(ctx, job.ID, core.JobFailed, reason); err != nil {
			return fmt.Errorf("job store unreachable: %w", err)
		}
		return nil
	}

	input := &metric.Input{
		Job:               job,
		Generations:       generations,
		RenderedPrompts:   rendered,
		ComparisonOutputs: comparison,
	}

	results := o.runStages(ctx, job, input)
	report := o.buildReport(job, generations, results)

	// Persisting the terminal state runs on a fresh context so a job timeout
	// cannot strand a finished report.
	saveCtx, saveCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer saveCancel()

	if err := o.store.SaveReport(saveCtx, job.ID, report); err != nil {
		return fmt.Errorf("job store unreachable: %w", err)
	}
	if err := o.store.UpdateStatus(saveCtx, job.ID, core.JobCompleted, ""); err != nil {
		return fmt.Errorf("job store unreachable: %w", err)
	}

	logger.Info("job completed",
		"job_id", job.ID,
		"generations", report.GenerationCount,
		"aggregate_score", deref(report.AggregateScore),
		"stage_errors", len(report.StageErrors),
		"model_calls", limiter.Count())

	return nil
}

// belowThreshold enforces the phase gate between generation and scoring:
// every example input needs at least one successful generation.
func (o *Orchestrator) belowThreshold(job *core.Job, generations []core.GenerationResult) (string, bool) {
	successPerExample := make(map[int]int)
	for _, g := range generations {
		if g.OK() {
			successPerExample[g.ExampleIndex]++
		}
	}
	for i := range job.ExampleInputs {
		if successPerExample[i] == 0 {
			return fmt.Sprintf("example input %d produced no successful generation", i), false
		}
	}
	return "", true
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
