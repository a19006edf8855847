package verify

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/model"
)

const knowledgePrompt = `Assess the claim below using only your own knowledge.
Respond with JSON only: {"verdict": "SUPPORTED"|"REFUTED"|"UNVERIFIABLE", "confidence": 0.0-1.0}
Use UNVERIFIABLE when you are not sure either way.

Claim: %s`

// LLMTool verifies claims against the judge model's intrinsic knowledge. It
// serves as the fallback when no evidence source covers a claim, so its
// confidence ceiling is deliberately lower than evidence-backed tools.
type LLMTool struct {
	judge model.Runner
}

// NewLLMTool constructs the tool with the given judge runner.
func NewLLMTool(judge model.Runner) *LLMTool {
	return &LLMTool{judge: judge}
}

// Name implements Tool.
func (t *LLMTool) Name() string { return "llm_knowledge" }

// Verify implements Tool. An unparseable judge response degrades to a scan
// of the raw text for a verdict keyword rather than failing the claim.
func (t *LLMTool) Verify(ctx context.Context, claim string) (*Outcome, error) {
	resp, err := t.judge.Generate(ctx, model.Request{
		Prompt:      fmt.Sprintf(knowledgePrompt, claim),
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("llm knowledge judge: %w", err)
	}

	if outcome, ok := decodeOutcome(resp.Text); ok {
		return capConfidence(outcome), nil
	}

	upper := strings.ToUpper(resp.Text)
	switch {
	case strings.Contains(upper, string(core.VerdictRefuted)):
		return capConfidence(&Outcome{Verdict: core.VerdictRefuted, Confidence: 0.5}), nil
	case strings.Contains(upper, string(core.VerdictSupported)):
		return capConfidence(&Outcome{Verdict: core.VerdictSupported, Confidence: 0.5}), nil
	default:
		return &Outcome{Verdict: core.VerdictUnverifiable, Confidence: 0}, nil
	}
}

// capConfidence bounds intrinsic-knowledge confidence below evidence-backed
// verdicts.
func capConfidence(o *Outcome) *Outcome {
	const ceiling = 0.8
	if o.Confidence > ceiling {
		o.Confidence = ceiling
	}
	return o
}
