package core

import (
	"time"

	"github.com/google/uuid"
)

// PromptCategory classifies what kind of output the evaluated prompt asks
// for. The category decides which metric stages run and how their scores are
// weighted during aggregation.
type PromptCategory string

const (
	// CategoryInformation marks prompts that request factual answers.
	CategoryInformation PromptCategory = "INFORMATION"
	// CategoryCreativeText marks prompts that request free-form writing.
	CategoryCreativeText PromptCategory = "CREATIVE_TEXT"
	// CategoryCreativeImage marks prompts that request image generation.
	CategoryCreativeImage PromptCategory = "CREATIVE_IMAGE"
)

// Valid reports whether the category is one of the known values.
func (c PromptCategory) Valid() bool {
	switch c {
	case CategoryInformation, CategoryCreativeText, CategoryCreativeImage:
		return true
	}
	return false
}

// JobStatus is the lifecycle state of an evaluation job.
// Transitions: PENDING -> RUNNING -> {COMPLETED, FAILED}.
type JobStatus string

const (
	// JobPending means the job was accepted but not started.
	JobPending JobStatus = "PENDING"
	// JobRunning means the orchestrator owns the job.
	JobRunning JobStatus = "RUNNING"
	// JobCompleted means a report was produced (possibly partial).
	JobCompleted JobStatus = "COMPLETED"
	// JobFailed means the job fell below the generation threshold or hit a
	// fatal infrastructure failure.
	JobFailed JobStatus = "FAILED"
)

// InputKind distinguishes text example inputs from image references.
type InputKind string

const (
	// InputText is a plain text example input.
	InputText InputKind = "text"
	// InputImage is a reference to an image example input.
	InputImage InputKind = "image"
)

// ExampleInput is one sample input substituted into the prompt template.
// Immutable once the job is created.
type ExampleInput struct {
	Content string    `json:"content"`
	Kind    InputKind `json:"kind"`
}

// JobSpec is the caller-supplied description of an evaluation run.
type JobSpec struct {
	Prompt        string         `json:"prompt"`
	ExampleInputs []ExampleInput `json:"example_inputs"`
	Category      PromptCategory `json:"category"`
	ModelID       string         `json:"model_id,omitempty"`
	RepeatCount   int            `json:"repeat_count"`
}

// Job is one evaluation request for a prompt across repeated generations.
// The orchestrator owns a Job exclusively while it runs; state transitions
// are persisted through the JobStore.
type Job struct {
	ID            string         `json:"id"`
	Prompt        string         `json:"prompt"`
	ExampleInputs []ExampleInput `json:"example_inputs"`
	Category      PromptCategory `json:"category"`
	ModelID       string         `json:"model_id,omitempty"`
	RepeatCount   int            `json:"repeat_count"`
	Status        JobStatus      `json:"status"`
	Error         string         `json:"error,omitempty"`
	Report        *Report        `json:"report,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// NewJob builds a PENDING job from a spec with a fresh identifier.
func NewJob(spec JobSpec) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:            NewID(),
		Prompt:        spec.Prompt,
		ExampleInputs: append([]ExampleInput(nil), spec.ExampleInputs...),
		Category:      spec.Category,
		ModelID:       spec.ModelID,
		RepeatCount:   spec.RepeatCount,
		Status:        JobPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Spec extracts the original job specification, used by reruns.
func (j *Job) Spec() JobSpec {
	return JobSpec{
		Prompt:        j.Prompt,
		ExampleInputs: append([]ExampleInput(nil), j.ExampleInputs...),
		Category:      j.Category,
		ModelID:       j.ModelID,
		RepeatCount:   j.RepeatCount,
	}
}

// Clone returns a deep copy so stores can hand out snapshots without
// exposing internal state.
func (j *Job) Clone() *Job {
	cp := *j
	cp.ExampleInputs = append([]ExampleInput(nil), j.ExampleInputs...)
	if j.Report != nil {
		cp.Report = j.Report.Clone()
	}
	return &cp
}

// ExpectedGenerations is repeat_count x len(example_inputs), the number of
// generation attempts the orchestrator issues for this job.
func (j *Job) ExpectedGenerations() int {
	return j.RepeatCount * len(j.ExampleInputs)
}

// NewID returns a new unique identifier.
func NewID() string { return uuid.NewString() }
