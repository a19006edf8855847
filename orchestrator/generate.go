package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/model"
)

// generationTask is one model call in phase one: either a primary
// (example, repeat) slot or a variance slot for an alternate model.
type generationTask struct {
	exampleIndex int
	repeatIndex  int
	modelID      string
	prompt       string
	variance     bool
}

// generate fans out repeat_count x len(example_inputs) primary calls plus
// one call per example per comparison model, all through one bounded pool.
// The returned slice always holds every attempted primary slot; failed slots
// carry their error.
func (o *Orchestrator) generate(ctx context.Context, job *core.Job, rendered []string, limiter *core.CallLimiter) ([]core.GenerationResult, map[string][]string) {
	var tasks []generationTask
	for i := range job.ExampleInputs {
		for r := 0; r < job.RepeatCount; r++ {
			tasks = append(tasks, generationTask{
				exampleIndex: i,
				repeatIndex:  r,
				modelID:      job.ModelID,
				prompt:       rendered[i],
			})
		}
	}
	for _, altModel := range o.opts.ComparisonModels {
		if altModel == job.ModelID {
			continue
		}
		for i := range job.ExampleInputs {
			tasks = append(tasks, generationTask{
				exampleIndex: i,
				modelID:      altModel,
				prompt:       rendered[i],
				variance:     true,
			})
		}
	}

	o.opts.Logger.Info("generation phase started",
		"job_id", job.ID,
		"primary_calls", job.ExpectedGenerations(),
		"total_calls", len(tasks))

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		sem         = make(chan struct{}, o.opts.GenerationConcurrency)
		generations = make([]core.GenerationResult, 0, job.ExpectedGenerations())
		comparison  = make(map[string][]string)
	)
	for _, altModel := range o.opts.ComparisonModels {
		if altModel != job.ModelID {
			comparison[altModel] = make([]string, len(job.ExampleInputs))
		}
	}

	for _, task := range tasks {
		wg.Add(1)
		go func(task generationTask) {
			defer wg.Done()

			result := core.GenerationResult{
				ExampleIndex: task.exampleIndex,
				RepeatIndex:  task.repeatIndex,
				ModelID:      task.modelID,
			}

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				result.Err = ctx.Err().Error()
				o.record(&mu, &generations, comparison, task, result)
				return
			}

			text, usage, latency, err := o.generateOne(ctx, task, limiter)
			result.Text = text
			result.Usage = usage
			result.Latency = latency
			if err != nil {
				result.Err = err.Error()
			}
			o.record(&mu, &generations, comparison, task, result)
		}(task)
	}
	wg.Wait()

	// Results arrive in completion order; reports must not depend on
	// scheduling, so restore (example, repeat) order.
	sort.Slice(generations, func(i, j int) bool {
		if generations[i].ExampleIndex == generations[j].ExampleIndex {
			return generations[i].RepeatIndex < generations[j].RepeatIndex
		}
		return generations[i].ExampleIndex < generations[j].ExampleIndex
	})

	return generations, comparison
}

func (o *Orchestrator) record(mu *sync.Mutex, generations *[]core.GenerationResult, comparison map[string][]string, task generationTask, result core.GenerationResult) {
	mu.Lock()
	defer mu.Unlock()
	if task.variance {
		if result.OK() {
			comparison[task.modelID][task.exampleIndex] = result.Text
		}
		return
	}
	*generations = append(*generations, result)
}

// generateOne issues one model call with per-call timeout and bounded
// retries on retryable failures.
func (o *Orchestrator) generateOne(ctx context.Context, task generationTask, limiter *core.CallLimiter) (string, core.TokenUsage, time.Duration, error) {
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt <= o.opts.MaxRetries; attempt++ {
		if err := limiter.Increment(); err != nil {
			return "", core.TokenUsage{}, time.Since(start), err
		}

		callCtx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
		result, err := o.runner.Generate(callCtx, model.Request{
			ModelID:     task.modelID,
			Prompt:      task.prompt,
			Temperature: 0.7,
		})
		cancel()

		if err == nil {
			return result.Text, result.Usage, time.Since(start), nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", core.TokenUsage{}, time.Since(start), ctx.Err()
		}
		if !core.IsRetryable(err) || attempt == o.opts.MaxRetries {
			break
		}

		o.opts.Logger.Debug("generation retry",
			"model_id", task.modelID,
			"example_index", task.exampleIndex,
			"attempt", attempt+1,
			"error", err)

		select {
		case <-ctx.Done():
			return "", core.TokenUsage{}, time.Since(start), ctx.Err()
		case <-time.After(o.opts.RetryBaseDelay << uint(attempt)):
		}
	}

	return "", core.TokenUsage{}, time.Since(start), lastErr
}
