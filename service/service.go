// Package service is the façade consumed by the transport layers (HTTP
// handlers, queue workers). It owns job creation and lookup and delegates
// execution to the orchestrator.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/logging"
	"github.com/hupe1980/evalmesh/orchestrator"
)

// Options configure the Service.
type Options struct {
	Logger logging.Logger
}

// Service exposes the evaluation pipeline's produced interface: submit,
// lookup, rerun and model comparison.
type Service struct {
	store core.JobStore
	orch  *orchestrator.Orchestrator
	opts  Options

	wg sync.WaitGroup
}

// New constructs a Service.
func New(store core.JobStore, orch *orchestrator.Orchestrator, optFns ...func(o *Options)) *Service {
	opts := Options{
		Logger: logging.NewNoOpLogger(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Service{store: store, orch: orch, opts: opts}
}

// SubmitJob validates the spec, persists a PENDING job and starts it in the
// background. The job id is returned immediately.
func (s *Service) SubmitJob(ctx context.Context, spec core.JobSpec) (string, error) {
	if err := orchestrator.ValidateSpec(spec); err != nil {
		return "", err
	}

	job := core.NewJob(spec)
	if err := s.store.Create(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		// The run owns its own lifetime; the submitter's context ends with
		// the request.
		if err := s.orch.RunJob(context.Background(), job); err != nil {
			s.opts.Logger.Error("job run failed", "job_id", job.ID, "error", err)
		}
	}()

	return job.ID, nil
}

// Evaluate runs a job synchronously and returns the terminal job snapshot.
// Used by queue workers where the caller owns the wait.
func (s *Service) Evaluate(ctx context.Context, spec core.JobSpec) (*core.Job, error) {
	if err := orchestrator.ValidateSpec(spec); err != nil {
		return nil, err
	}

	job := core.NewJob(spec)
	if err := s.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if err := s.orch.RunJob(ctx, job); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, job.ID)
}

// GetJob returns the stored job snapshot, report included once terminal.
func (s *Service) GetJob(ctx context.Context, jobID string) (*core.Job, error) {
	return s.store.Get(ctx, jobID)
}

// ListJobs returns one page of jobs plus the total count. page is 1-based.
func (s *Service) ListJobs(ctx context.Context, page, size int) ([]*core.Job, int, error) {
	return s.store.List(ctx, page, size)
}

// Rerun re-reads the original job's specification and submits it as a new
// job. The original job's stored result is never mutated.
func (s *Service) Rerun(ctx context.Context, jobID string) (string, error) {
	original, err := s.store.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	return s.SubmitJob(ctx, original.Spec())
}

// Cancel requests cancellation of a running job.
func (s *Service) Cancel(jobID string) bool {
	return s.orch.Cancel(jobID)
}

// ComparisonReport pairs the two per-model runs of a comparison.
type ComparisonReport struct {
	ModelA     string    `json:"model_a"`
	ModelB     string    `json:"model_b"`
	JobA       *core.Job `json:"job_a"`
	JobB       *core.Job `json:"job_b"`
	ScoreDelta *float64  `json:"score_delta,omitempty"`
}

// CompareModels runs the same spec against two models and reports both
// results side by side with the aggregate-score delta (A minus B) when both
// runs scored.
func (s *Service) CompareModels(ctx context.Context, modelA, modelB string, spec core.JobSpec) (*ComparisonReport, error) {
	specA, specB := spec, spec
	specA.ModelID = modelA
	specB.ModelID = modelB

	var (
		wg         sync.WaitGroup
		jobA, jobB *core.Job
		errA, errB error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		jobA, errA = s.Evaluate(ctx, specA)
	}()
	go func() {
		defer wg.Done()
		jobB, errB = s.Evaluate(ctx, specB)
	}()
	wg.Wait()

	if errA != nil {
		return nil, fmt.Errorf("model %s run: %w", modelA, errA)
	}
	if errB != nil {
		return nil, fmt.Errorf("model %s run: %w", modelB, errB)
	}

	report := &ComparisonReport{
		ModelA: modelA,
		ModelB: modelB,
		JobA:   jobA,
		JobB:   jobB,
	}
	if jobA.Report != nil && jobB.Report != nil &&
		jobA.Report.AggregateScore != nil && jobB.Report.AggregateScore != nil {
		report.ScoreDelta = core.Float64Ptr(*jobA.Report.AggregateScore - *jobB.Report.AggregateScore)
	}
	return report, nil
}

// Wait blocks until all background job runs started by SubmitJob finish.
// Intended for graceful shutdown.
func (s *Service) Wait() {
	s.wg.Wait()
}
