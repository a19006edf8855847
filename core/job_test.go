package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewJob(t *testing.T) {
	spec := JobSpec{
		Prompt:        "Summarize: {{input}}",
		ExampleInputs: []ExampleInput{{Content: "a", Kind: InputText}, {Content: "b", Kind: InputText}},
		Category:      CategoryInformation,
		RepeatCount:   5,
	}

	job := NewJob(spec)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, JobPending, job.Status)
	assert.Equal(t, 10, job.ExpectedGenerations())
	assert.Equal(t, spec, job.Spec())

	// Ids are unique per job.
	assert.NotEqual(t, job.ID, NewJob(spec).ID)
}

func TestJob_CloneIsolation(t *testing.T) {
	job := NewJob(JobSpec{
		Prompt:        "p",
		ExampleInputs: []ExampleInput{{Content: "a", Kind: InputText}},
		Category:      CategoryCreativeText,
		RepeatCount:   1,
	})
	job.Report = &Report{
		Metrics: []MetricResult{{Metric: MetricTokenUsage, Score: Float64Ptr(80), Status: MetricOK}},
	}

	cp := job.Clone()
	cp.ExampleInputs[0].Content = "mutated"
	*cp.Report.Metrics[0].Score = 1

	assert.Equal(t, "a", job.ExampleInputs[0].Content)
	assert.Equal(t, 80.0, *job.Report.Metrics[0].Score)
}

func TestReport_MetricByName(t *testing.T) {
	report := &Report{
		Metrics: []MetricResult{
			{Metric: MetricTokenUsage, Status: MetricOK},
			{Metric: MetricRelevance, Status: MetricFailed},
		},
	}

	assert.NotNil(t, report.MetricByName(MetricRelevance))
	assert.Equal(t, MetricFailed, report.MetricByName(MetricRelevance).Status)
	assert.Nil(t, report.MetricByName(MetricConsistency))
}

func TestSuccessfulGenerations(t *testing.T) {
	results := []GenerationResult{
		{ExampleIndex: 0, Text: "ok"},
		{ExampleIndex: 1, Err: "timeout"},
		{ExampleIndex: 2, Text: "ok too"},
	}

	ok := SuccessfulGenerations(results)
	assert.Len(t, ok, 2)
	assert.Equal(t, 0, ok[0].ExampleIndex)
	assert.Equal(t, 2, ok[1].ExampleIndex)
}
