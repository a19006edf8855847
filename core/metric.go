package core

// Metric names the six evaluation dimensions.
type Metric string

const (
	// MetricTokenUsage measures fixed prompt cost in tokens.
	MetricTokenUsage Metric = "token_usage"
	// MetricInformationDensity measures n-gram uniqueness of outputs.
	MetricInformationDensity Metric = "information_density"
	// MetricConsistency measures embedding agreement across repeats.
	MetricConsistency Metric = "consistency"
	// MetricRelevance measures semantic fit between output and input.
	MetricRelevance Metric = "relevance"
	// MetricHallucination measures the share of unsupported factual claims.
	MetricHallucination Metric = "hallucination"
	// MetricModelVariance measures output dispersion across models.
	MetricModelVariance Metric = "model_variance"
)

// Metrics lists all stage names in report order.
var Metrics = []Metric{
	MetricTokenUsage,
	MetricInformationDensity,
	MetricConsistency,
	MetricRelevance,
	MetricHallucination,
	MetricModelVariance,
}

// MetricStatus reports how much of a stage's work succeeded.
type MetricStatus string

const (
	// MetricOK means every scorable input was scored.
	MetricOK MetricStatus = "OK"
	// MetricPartial means some inputs scored and some could not.
	MetricPartial MetricStatus = "PARTIAL"
	// MetricFailed means the stage produced no usable score.
	MetricFailed MetricStatus = "FAILED"
	// MetricSkipped means the stage does not apply to the job's category.
	MetricSkipped MetricStatus = "SKIPPED"
)

// ExampleScore is the per-example breakdown entry of a metric.
type ExampleScore struct {
	ExampleIndex int     `json:"example_index"`
	Score        float64 `json:"score"`
	Note         string  `json:"note,omitempty"`
}

// MetricResult is one stage's outcome. Score is nil when the stage failed
// or was skipped; Evidence carries metric-specific supporting data.
type MetricResult struct {
	Metric    Metric         `json:"metric"`
	Score     *float64       `json:"score,omitempty"`
	Status    MetricStatus   `json:"status"`
	Breakdown []ExampleScore `json:"breakdown,omitempty"`
	Evidence  map[string]any `json:"evidence,omitempty"`
	Err       string         `json:"error,omitempty"`
}

// FailedMetric builds the FAILED placeholder slot for a stage.
func FailedMetric(m Metric, err error) MetricResult {
	res := MetricResult{Metric: m, Status: MetricFailed}
	if err != nil {
		res.Err = err.Error()
	}
	return res
}

// SkippedMetric builds the SKIPPED slot for a stage the category excludes.
func SkippedMetric(m Metric, reason string) MetricResult {
	return MetricResult{Metric: m, Status: MetricSkipped, Err: reason}
}

// Clone returns a deep copy of the result.
func (r MetricResult) Clone() MetricResult {
	cp := r
	if r.Score != nil {
		s := *r.Score
		cp.Score = &s
	}
	cp.Breakdown = append([]ExampleScore(nil), r.Breakdown...)
	if r.Evidence != nil {
		cp.Evidence = make(map[string]any, len(r.Evidence))
		for k, v := range r.Evidence {
			cp.Evidence[k] = v
		}
	}
	return cp
}

// Report is the final aggregation of a job run: the ordered metric slots,
// the weighted aggregate score and the non-fatal stage errors collected
// along the way.
type Report struct {
	Metrics         []MetricResult `json:"metrics"`
	AggregateScore  *float64       `json:"aggregate_score,omitempty"`
	GenerationCount int            `json:"generation_count"`
	StageErrors     []string       `json:"stage_errors,omitempty"`
	Status          JobStatus      `json:"status"`
}

// MetricByName returns the slot for a metric, or nil when absent.
func (r *Report) MetricByName(m Metric) *MetricResult {
	for i := range r.Metrics {
		if r.Metrics[i].Metric == m {
			return &r.Metrics[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the report.
func (r *Report) Clone() *Report {
	cp := *r
	cp.Metrics = make([]MetricResult, len(r.Metrics))
	for i := range r.Metrics {
		cp.Metrics[i] = r.Metrics[i].Clone()
	}
	if r.AggregateScore != nil {
		s := *r.AggregateScore
		cp.AggregateScore = &s
	}
	cp.StageErrors = append([]string(nil), r.StageErrors...)
	return &cp
}

// Float64Ptr is a small helper for optional scores.
func Float64Ptr(v float64) *float64 { return &v }
