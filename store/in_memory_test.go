package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/evalmesh/core"
)

var _ core.JobStore = (*InMemoryStore)(nil)

func newTestJob(prompt string) *core.Job {
	return core.NewJob(core.JobSpec{
		Prompt:        prompt,
		ExampleInputs: []core.ExampleInput{{Content: "input", Kind: core.InputText}},
		Category:      core.CategoryInformation,
		RepeatCount:   3,
	})
}

func TestInMemoryStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	job := newTestJob("prompt")
	require.NoError(t, store.Create(ctx, job))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, core.JobPending, got.Status)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrJobNotFound)
}

func TestInMemoryStore_ReturnsClones(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	job := newTestJob("prompt")
	require.NoError(t, store.Create(ctx, job))

	// Mutating the original or a fetched copy must not leak into the store.
	job.Prompt = "mutated after create"
	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "prompt", got.Prompt)

	got.Status = core.JobFailed
	again, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.JobPending, again.Status)
}

func TestInMemoryStore_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	job := newTestJob("prompt")
	require.NoError(t, store.Create(ctx, job))

	require.NoError(t, store.UpdateStatus(ctx, job.ID, core.JobFailed, "generation threshold not met"))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.JobFailed, got.Status)
	assert.Equal(t, "generation threshold not met", got.Error)

	assert.ErrorIs(t, store.UpdateStatus(ctx, "missing", core.JobRunning, ""), core.ErrJobNotFound)
}

func TestInMemoryStore_SaveReport(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	job := newTestJob("prompt")
	require.NoError(t, store.Create(ctx, job))

	report := &core.Report{AggregateScore: core.Float64Ptr(88.5)}
	require.NoError(t, store.SaveReport(ctx, job.ID, report))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Report)
	assert.Equal(t, 88.5, *got.Report.AggregateScore)

	assert.ErrorIs(t, store.SaveReport(ctx, "missing", report), core.ErrJobNotFound)
}

func TestInMemoryStore_ListPagination(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	var jobs []*core.Job
	for i := 0; i < 5; i++ {
		job := newTestJob(fmt.Sprintf("prompt %d", i))
		job.CreatedAt = time.Date(2026, 8, 1, 10, i, 0, 0, time.UTC)
		require.NoError(t, store.Create(ctx, job))
		jobs = append(jobs, job)
	}

	page1, total, err := store.List(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page1, 2)

	// Newest first.
	assert.Equal(t, jobs[4].ID, page1[0].ID)
	assert.Equal(t, jobs[3].ID, page1[1].ID)

	page3, total, err := store.List(ctx, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page3, 1)
	assert.Equal(t, jobs[0].ID, page3[0].ID)

	beyond, total, err := store.List(ctx, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Empty(t, beyond)
}

func TestInMemoryStore_ListDefaults(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	require.NoError(t, store.Create(ctx, newTestJob("prompt")))

	jobs, total, err := store.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, jobs, 1)
}
