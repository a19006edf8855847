package core

import "time"

// TokenUsage captures token accounting for one model call.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add accumulates usage from another call.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.TotalTokens += other.TotalTokens
}

// GenerationResult is the outcome of one (example, repeat) model call.
// Produced by the generation phase and never mutated afterwards; metric
// stages only read it.
type GenerationResult struct {
	ExampleIndex int           `json:"example_index"`
	RepeatIndex  int           `json:"repeat_index"`
	ModelID      string        `json:"model_id"`
	Text         string        `json:"text"`
	Usage        TokenUsage    `json:"usage"`
	Latency      time.Duration `json:"latency"`
	Err          string        `json:"error,omitempty"`
}

// OK reports whether the generation succeeded.
func (g *GenerationResult) OK() bool { return g.Err == "" }

// SuccessfulGenerations filters out failed slots, preserving order.
func SuccessfulGenerations(results []GenerationResult) []GenerationResult {
	out := make([]GenerationResult, 0, len(results))
	for _, r := range results {
		if r.OK() {
			out = append(out, r)
		}
	}
	return out
}
