package core

import "context"

// JobStore is the durable record of job status and results. Persistence
// backends are external collaborators; the orchestrator only relies on this
// narrow contract. A store failure is a fatal infrastructure failure and is
// surfaced verbatim.
type JobStore interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, jobID string) (*Job, error)
	List(ctx context.Context, page, size int) ([]*Job, int, error)
	UpdateStatus(ctx context.Context, jobID string, status JobStatus, reason string) error
	SaveReport(ctx context.Context, jobID string, report *Report) error
}

// VerificationCache maps claim fingerprints to previously computed verdicts.
// It is the only resource mutated concurrently across jobs; implementations
// must make reads and writes atomic per fingerprint. Last-writer-wins is
// acceptable since verdicts for the same claim converge.
type VerificationCache interface {
	// Get returns the unexpired verdict for a fingerprint or ErrCacheMiss.
	Get(ctx context.Context, fingerprint string) (*VerificationVerdict, error)
	// Put stores a verdict under its fingerprint.
	Put(ctx context.Context, verdict *VerificationVerdict) error
}
