// Package evalmesh provides a high-level façade over the evaluation
// pipeline: job store, model runners, metric stages, the claim-verification
// subsystem and the orchestrator that drives them. Most applications
// interact with this package by:
//  1. Creating an EvalMesh via New() (optionally overriding the default
//     in-memory and mock components)
//  2. Submitting jobs asynchronously (Submit) or synchronously (Evaluate)
//  3. Reading results back via Get / List
//
// All defaults are safe for local development and testing; production
// deployments supply real model runners, an embedding provider and the
// tiered verification cache.
package evalmesh

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/hupe1980/evalmesh/cache"
	"github.com/hupe1980/evalmesh/config"
	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/embedding"
	embeddingopenai "github.com/hupe1980/evalmesh/embedding/openai"
	"github.com/hupe1980/evalmesh/extract"
	"github.com/hupe1980/evalmesh/logging"
	"github.com/hupe1980/evalmesh/metric"
	"github.com/hupe1980/evalmesh/model"
	modelanthropic "github.com/hupe1980/evalmesh/model/anthropic"
	modelopenai "github.com/hupe1980/evalmesh/model/openai"
	"github.com/hupe1980/evalmesh/orchestrator"
	"github.com/hupe1980/evalmesh/service"
	"github.com/hupe1980/evalmesh/store"
	"github.com/hupe1980/evalmesh/verify"
)

// Options configures the EvalMesh instance. Any unset component is built
// from Settings: mock implementations in mock mode, the real provider
// adapters otherwise.
type Options struct {
	// Settings drives every default below. Nil means config.Default().
	Settings *config.Settings

	// Store holds jobs (defaults to the in-memory store).
	Store core.JobStore

	// Runner issues generation calls for the evaluated model.
	Runner model.Runner

	// Judge issues extraction, tool-selection and verdict calls.
	Judge model.Runner

	// Embedder serves the similarity-based stages.
	Embedder embedding.Provider

	// Cache overrides the verification cache assembled from Settings.
	Cache core.VerificationCache

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// EvalMesh is the high-level façade aggregating the pipeline components.
type EvalMesh struct {
	opts  Options
	svc   *service.Service
	orch  *orchestrator.Orchestrator
	cache *cache.HybridCache
}

// New creates a new EvalMesh instance with optional overrides.
func New(optFns ...func(o *Options)) (*EvalMesh, error) {
	opts := Options{
		Settings: config.Default(),
		Logger:   logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	s := opts.Settings

	if opts.Store == nil {
		opts.Store = store.NewInMemoryStore()
	}
	if opts.Runner == nil {
		if s.MockMode {
			opts.Runner = model.NewMockRunner(s.DefaultModelID, "mock")
		} else {
			opts.Runner = modelopenai.NewRunner(func(o *modelopenai.Options) {
				o.Model = s.DefaultModelID
			})
		}
	}
	if opts.Judge == nil {
		if s.MockMode {
			opts.Judge = model.NewMockRunner(s.JudgeModelID, "mock")
		} else {
			opts.Judge = modelanthropic.NewRunner()
		}
	}
	if opts.Embedder == nil {
		if s.MockMode {
			opts.Embedder = embedding.NewMockProvider(64)
		} else {
			opts.Embedder = embeddingopenai.NewProvider(func(o *embeddingopenai.Options) {
				o.Model = s.EmbeddingModel
			})
		}
	}

	var hybrid *cache.HybridCache
	if opts.Cache == nil && s.CacheEnabled {
		var err error
		hybrid, err = buildCache(s, opts.Logger)
		if err != nil {
			return nil, err
		}
		opts.Cache = hybrid
	}

	extractor := extract.New(opts.Judge, func(o *extract.Options) {
		o.MinClaimLength = s.MinClaimLength
		o.Logger = opts.Logger
	})

	tools := []verify.Tool{
		verify.NewWikipediaTool(opts.Judge),
		verify.NewConsensusTool([]model.Runner{opts.Judge, opts.Runner}),
		verify.NewLLMTool(opts.Judge),
	}
	selector := verify.NewSelector(opts.Judge, tools, func(o *verify.SelectorOptions) {
		o.Logger = opts.Logger
	})
	verifier := verify.New(opts.Cache, selector, func(o *verify.Options) {
		o.Concurrency = s.VerificationConcurrency
		o.MaxRetries = s.MaxRetries
		o.RetryBaseDelay = s.RetryBaseDelay
		o.TTL = s.VerdictTTL
		o.Logger = opts.Logger
	})

	stages := []metric.Stage{
		metric.NewTokenUsageStage(),
		metric.NewInformationDensityStage(),
		metric.NewConsistencyStage(opts.Embedder, func(o *metric.ConsistencyOptions) {
			o.Alpha = s.ConsistencyAlpha
			o.Concurrency = s.EmbeddingConcurrency
			o.MaxRetries = s.MaxRetries
		}),
		metric.NewRelevanceStage(opts.Embedder, func(o *metric.RelevanceOptions) {
			o.MaxRetries = s.MaxRetries
		}),
		metric.NewHallucinationStage(extractor, verifier),
		metric.NewModelVarianceStage(opts.Embedder, func(o *metric.VarianceOptions) {
			o.MaxRetries = s.MaxRetries
		}),
	}

	orch := orchestrator.New(opts.Store, opts.Runner, stages, func(o *orchestrator.Options) {
		o.GenerationConcurrency = s.GenerationConcurrency
		o.MaxRetries = s.MaxRetries
		o.RetryBaseDelay = s.RetryBaseDelay
		o.CallTimeout = s.CallTimeout
		o.JobTimeout = s.JobTimeout
		o.MaxModelCalls = s.MaxModelCalls
		o.ComparisonModels = s.ComparisonModels
		o.Weights = s.Weights
		o.Logger = opts.Logger
	})

	svc := service.New(opts.Store, orch, func(o *service.Options) {
		o.Logger = opts.Logger
	})

	return &EvalMesh{opts: opts, svc: svc, orch: orch, cache: hybrid}, nil
}

// buildCache assembles the tiered verification cache from settings. The
// DynamoDB tier joins only when a table is configured outside mock mode.
func buildCache(s *config.Settings, logger logging.Logger) (*cache.HybridCache, error) {
	memory := cache.NewMemoryCache(s.MemoryCacheSize)

	var sqliteTier *cache.SQLiteCache
	if s.SQLitePath != "" {
		var err error
		sqliteTier, err = cache.NewSQLiteCache(s.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("build verification cache: %w", err)
		}
	}

	var dynamoTier *cache.DynamoCache
	if s.DynamoTable != "" && !s.MockMode {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(s.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		dynamoTier = cache.NewDynamoCache(dynamodb.NewFromConfig(awsCfg), s.DynamoTable,
			func(o *cache.DynamoOptions) {
				o.BatchSize = s.DynamoBatchSize
				o.FlushInterval = s.DynamoBatchFlush
				o.Logger = logger
			})
	}

	return cache.NewHybridCache(memory, sqliteTier, dynamoTier, func(o *cache.HybridOptions) {
		o.Logger = logger
	}), nil
}

// Submit validates the spec, persists a PENDING job and runs it in the
// background, returning the job id immediately.
func (m *EvalMesh) Submit(ctx context.Context, spec core.JobSpec) (string, error) {
	return m.svc.SubmitJob(ctx, spec)
}

// Evaluate runs a job synchronously and returns the terminal job snapshot.
func (m *EvalMesh) Evaluate(ctx context.Context, spec core.JobSpec) (*core.Job, error) {
	return m.svc.Evaluate(ctx, spec)
}

// Get returns the stored job snapshot, report included once terminal.
func (m *EvalMesh) Get(ctx context.Context, jobID string) (*core.Job, error) {
	return m.svc.GetJob(ctx, jobID)
}

// List returns one page of jobs plus the total count. page is 1-based.
func (m *EvalMesh) List(ctx context.Context, page, size int) ([]*core.Job, int, error) {
	return m.svc.ListJobs(ctx, page, size)
}

// Rerun submits the original specification of an existing job as a new job.
func (m *EvalMesh) Rerun(ctx context.Context, jobID string) (string, error) {
	return m.svc.Rerun(ctx, jobID)
}

// Cancel requests cancellation of a running job.
func (m *EvalMesh) Cancel(jobID string) bool {
	return m.svc.Cancel(jobID)
}

// CompareModels runs the same spec against two models side by side.
func (m *EvalMesh) CompareModels(ctx context.Context, modelA, modelB string, spec core.JobSpec) (*service.ComparisonReport, error) {
	return m.svc.CompareModels(ctx, modelA, modelB, spec)
}

// Service exposes the underlying façade, mainly for queue workers.
func (m *EvalMesh) Service() *service.Service {
	return m.svc
}

// Close waits for background runs and releases cache resources.
func (m *EvalMesh) Close() error {
	m.svc.Wait()
	if m.cache != nil {
		return m.cache.Close()
	}
	return nil
}
