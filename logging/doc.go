// Package logging provides a minimal logging interface and adapters for the
// evaluation pipeline.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that the orchestrator, metric stages and verification
// subsystem use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - EvalMeshLogger with job/stage contextual helpers
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	orch := orchestrator.New(runner, store, cache, func(o *orchestrator.Options) {
//		o.Logger = logger
//	})
//
// The design intentionally keeps the interface minimal to avoid vendor
// lock-in while supporting structured logging where available.
package logging
