package verify

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/model"
)

// ConsensusTool cross-checks a claim against a panel of judge models and
// keeps the majority verdict. A split panel with no majority leaves the
// claim UNVERIFIABLE.
type ConsensusTool struct {
	runners []model.Runner
}

// NewConsensusTool constructs the tool over the given panel of runners.
func NewConsensusTool(runners []model.Runner) *ConsensusTool {
	return &ConsensusTool{runners: runners}
}

// Name implements Tool.
func (t *ConsensusTool) Name() string { return "llm_consensus" }

// Verify implements Tool. Individual panel members may fail or return
// unparseable verdicts without failing the claim; an error surfaces only
// when no member answers at all.
func (t *ConsensusTool) Verify(ctx context.Context, claim string) (*Outcome, error) {
	if len(t.runners) == 0 {
		return nil, core.Permanent("llm consensus", fmt.Errorf("no runners configured"))
	}

	outcomes := make([]*Outcome, len(t.runners))
	errs := make([]error, len(t.runners))

	var wg sync.WaitGroup
	for i, runner := range t.runners {
		wg.Add(1)
		go func(i int, runner model.Runner) {
			defer wg.Done()

			resp, err := runner.Generate(ctx, model.Request{
				Prompt:      fmt.Sprintf(knowledgePrompt, claim),
				Temperature: 0,
			})
			if err != nil {
				errs[i] = err
				return
			}
			if outcome, ok := decodeOutcome(resp.Text); ok {
				outcomes[i] = outcome
				return
			}
			// An answer that cannot be decoded still counts as a vote, just
			// one that takes no side.
			outcomes[i] = &Outcome{Verdict: core.VerdictUnverifiable, Confidence: 0}
		}(i, runner)
	}
	wg.Wait()

	answered := make([]*Outcome, 0, len(outcomes))
	var lastErr error
	for i, outcome := range outcomes {
		if outcome != nil {
			answered = append(answered, outcome)
			continue
		}
		if errs[i] != nil {
			lastErr = errs[i]
		}
	}
	if len(answered) == 0 {
		return nil, fmt.Errorf("llm consensus: no panel member answered: %w", lastErr)
	}

	return tally(answered), nil
}

// tally picks the majority verdict from the panel votes. The confidence is
// the agreeing members' mean, discounted when the panel was not unanimous.
// A tie between verdicts yields UNVERIFIABLE.
func tally(outcomes []*Outcome) *Outcome {
	counts := make(map[core.Verdict]int, len(outcomes))
	for _, o := range outcomes {
		counts[o.Verdict]++
	}

	var (
		top  core.Verdict
		best int
		tied bool
	)
	for verdict, n := range counts {
		switch {
		case n > best:
			top, best, tied = verdict, n, false
		case n == best:
			tied = true
		}
	}
	if tied {
		return &Outcome{Verdict: core.VerdictUnverifiable, Confidence: 0}
	}

	var sum float64
	var sources []string
	for _, o := range outcomes {
		if o.Verdict != top {
			continue
		}
		sum += o.Confidence
		sources = append(sources, o.Sources...)
	}

	confidence := sum / float64(best)
	if best < len(outcomes) {
		confidence *= 0.8
	}

	return &Outcome{Verdict: top, Confidence: confidence, Sources: sources}
}
