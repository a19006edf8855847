package metric

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hupe1980/evalmesh/core"
)

var placeholderRe = regexp.MustCompile(`\{\{[^}]*\}\}`)

// TokenUsageOptions configure the token usage stage.
type TokenUsageOptions struct {
	// Budget is the fixed-prompt token count at which the score reaches 0.
	Budget int
}

// TokenUsageStage scores the fixed cost of the prompt itself: placeholders
// are stripped and the remaining template is token-counted. Shorter fixed
// prompts score higher. Pure computation, no external calls.
type TokenUsageStage struct {
	opts TokenUsageOptions
}

// NewTokenUsageStage constructs the stage.
func NewTokenUsageStage(optFns ...func(o *TokenUsageOptions)) *TokenUsageStage {
	opts := TokenUsageOptions{
		Budget: 1024,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &TokenUsageStage{opts: opts}
}

// Name implements Stage.
func (s *TokenUsageStage) Name() core.Metric { return core.MetricTokenUsage }

// Compute implements Stage.
func (s *TokenUsageStage) Compute(_ context.Context, in *Input) (*core.MetricResult, error) {
	fixed := strings.TrimSpace(placeholderRe.ReplaceAllString(in.Job.Prompt, ""))
	fixedTokens := estimateTokens(fixed)

	score := clamp01(1-float64(fixedTokens)/float64(s.opts.Budget)) * 100

	var usage core.TokenUsage
	for _, g := range in.Successful() {
		usage.Add(g.Usage)
	}

	return &core.MetricResult{
		Metric: core.MetricTokenUsage,
		Score:  core.Float64Ptr(score),
		Status: core.MetricOK,
		Evidence: map[string]any{
			"fixed_prompt_tokens":      fixedTokens,
			"generation_input_tokens":  usage.InputTokens,
			"generation_output_tokens": usage.OutputTokens,
			"generation_total_tokens":  usage.TotalTokens,
		},
	}, nil
}

// estimateTokens approximates a tokenizer at roughly four characters per
// token, floored at the word count.
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	byChars := utf8.RuneCountInString(text) / 4
	byWords := len(strings.Fields(text))
	if byWords > byChars {
		return byWords
	}
	return byChars
}
