// Package core defines the shared data model of the evaluation pipeline:
// jobs, example inputs, generation results, metric results, claims, verdicts
// and the final report, together with the narrow contracts (JobStore,
// VerificationCache) the orchestrator consumes. Types here carry no behavior
// beyond construction, cloning and small pure helpers so that every other
// package can depend on core without cycles.
package core
