// Package store provides JobStore implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/evalmesh/core"
)

// InMemoryStore is a volatile JobStore implementation storing jobs in a
// process local map. It is safe for concurrent access and best suited for
// tests or ephemeral demo deployments. Each returned job is cloned to
// prevent external mutation of internal state.
type InMemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*core.Job
}

// NewInMemoryStore constructs an empty in-memory job store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{jobs: make(map[string]*core.Job)}
}

// Create stores a clone of the job. An existing id is overwritten.
func (s *InMemoryStore) Create(_ context.Context, job *core.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job.Clone()
	return nil
}

// Get returns a clone of the stored job or core.ErrJobNotFound.
func (s *InMemoryStore) Get(_ context.Context, jobID string) (*core.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, core.ErrJobNotFound
	}
	return job.Clone(), nil
}

// List returns one page of jobs ordered by creation time, newest first,
// along with the total job count. page is 1-based.
func (s *InMemoryStore) List(_ context.Context, page, size int) ([]*core.Job, int, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*core.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		all = append(all, job)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	start := (page - 1) * size
	if start >= len(all) {
		return nil, len(all), nil
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}

	out := make([]*core.Job, 0, end-start)
	for _, job := range all[start:end] {
		out = append(out, job.Clone())
	}
	return out, len(all), nil
}

// UpdateStatus transitions the job's status and records the reason on
// failure transitions.
func (s *InMemoryStore) UpdateStatus(_ context.Context, jobID string, status core.JobStatus, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return core.ErrJobNotFound
	}
	job.Status = status
	job.Error = reason
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// SaveReport attaches a clone of the report to the stored job.
func (s *InMemoryStore) SaveReport(_ context.Context, jobID string, report *core.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return core.ErrJobNotFound
	}
	job.Report = report.Clone()
	job.UpdatedAt = time.Now().UTC()
	return nil
}
