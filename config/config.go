// Package config loads pipeline settings from the environment (optionally
// seeded from a .env file) and the category scoring-weight policy from an
// optional YAML file. Defaults are safe for local development with mock
// adapters.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Settings holds runtime configuration for the evaluation pipeline.
type Settings struct {
	// Model configuration.
	DefaultModelID string
	JudgeModelID   string
	EmbeddingModel string
	// Models compared against the primary model by the variance stage.
	ComparisonModels []string

	// Concurrency bounds.
	GenerationConcurrency   int
	VerificationConcurrency int
	EmbeddingConcurrency    int
	MaxModelCalls           int

	// Retry policy for external calls.
	MaxRetries     int
	RetryBaseDelay time.Duration

	// Timeouts.
	CallTimeout time.Duration
	JobTimeout  time.Duration

	// Verification cache.
	CacheEnabled     bool
	MemoryCacheSize  int
	SQLitePath       string
	DynamoTable      string
	DynamoBatchSize  int
	DynamoBatchFlush time.Duration
	VerdictTTL       time.Duration
	MinClaimLength   int

	// SQS worker.
	InputQueueURL  string
	OutputQueueURL string
	AWSRegion      string

	// Scoring policy.
	Weights WeightPolicy

	// Consistency centroid max-distance penalty.
	ConsistencyAlpha float64

	// Mock mode swaps all external adapters for deterministic fakes.
	MockMode bool
}

// Load reads settings from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Settings, error) {
	// Missing .env is not an error, only malformed ones are.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	s := Default()

	s.DefaultModelID = envString("EVALMESH_DEFAULT_MODEL", s.DefaultModelID)
	s.JudgeModelID = envString("EVALMESH_JUDGE_MODEL", s.JudgeModelID)
	s.EmbeddingModel = envString("EVALMESH_EMBEDDING_MODEL", s.EmbeddingModel)

	s.GenerationConcurrency = envInt("EVALMESH_GENERATION_CONCURRENCY", s.GenerationConcurrency)
	s.VerificationConcurrency = envInt("EVALMESH_VERIFICATION_CONCURRENCY", s.VerificationConcurrency)
	s.EmbeddingConcurrency = envInt("EVALMESH_EMBEDDING_CONCURRENCY", s.EmbeddingConcurrency)
	s.MaxModelCalls = envInt("EVALMESH_MAX_MODEL_CALLS", s.MaxModelCalls)
	s.MaxRetries = envInt("EVALMESH_MAX_RETRIES", s.MaxRetries)

	s.CallTimeout = envDuration("EVALMESH_CALL_TIMEOUT", s.CallTimeout)
	s.JobTimeout = envDuration("EVALMESH_JOB_TIMEOUT", s.JobTimeout)
	s.VerdictTTL = envDuration("EVALMESH_VERDICT_TTL", s.VerdictTTL)

	s.CacheEnabled = envBool("EVALMESH_CACHE_ENABLED", s.CacheEnabled)
	s.MemoryCacheSize = envInt("EVALMESH_MEMORY_CACHE_SIZE", s.MemoryCacheSize)
	s.SQLitePath = envString("EVALMESH_SQLITE_PATH", s.SQLitePath)
	s.DynamoTable = envString("EVALMESH_DYNAMO_TABLE", s.DynamoTable)

	s.InputQueueURL = envString("EVALMESH_INPUT_QUEUE_URL", s.InputQueueURL)
	s.OutputQueueURL = envString("EVALMESH_OUTPUT_QUEUE_URL", s.OutputQueueURL)
	s.AWSRegion = envString("AWS_REGION", s.AWSRegion)

	s.MockMode = envBool("EVALMESH_MOCK_MODE", s.MockMode)

	if path := os.Getenv("EVALMESH_WEIGHTS_FILE"); path != "" {
		w, err := LoadWeights(path)
		if err != nil {
			return nil, err
		}
		s.Weights = w
	}

	return s, nil
}

// Default returns the baseline settings used when no environment overrides
// are present.
func Default() *Settings {
	return &Settings{
		DefaultModelID:          "gpt-4o-mini",
		JudgeModelID:            "claude-3-haiku",
		EmbeddingModel:          "text-embedding-3-small",
		ComparisonModels:        nil,
		GenerationConcurrency:   8,
		VerificationConcurrency: 6,
		EmbeddingConcurrency:    8,
		MaxModelCalls:           200,
		MaxRetries:              2,
		RetryBaseDelay:          500 * time.Millisecond,
		CallTimeout:             60 * time.Second,
		JobTimeout:              15 * time.Minute,
		CacheEnabled:            true,
		MemoryCacheSize:         1000,
		SQLitePath:              "fact_check_cache.db",
		DynamoBatchSize:         25,
		DynamoBatchFlush:        5 * time.Minute,
		VerdictTTL:              30 * 24 * time.Hour,
		MinClaimLength:          10,
		AWSRegion:               "us-east-1",
		Weights:                 DefaultWeights(),
		ConsistencyAlpha:        0.2,
		MockMode:                true,
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
