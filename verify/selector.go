package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/logging"
	"github.com/hupe1980/evalmesh/model"
)

const selectPrompt = `You route factual claims to the best verification tool.
Available tools:
%s
For each claim pick the single best tool. Respond with JSON only:
{"selections": [{"index": 0, "tool": "tool_name"}]}

Claims:
%s`

// SelectorOptions configure the tool selector.
type SelectorOptions struct {
	Logger logging.Logger
}

// Selector asks a judge model, in one batch call, which tool should verify
// each claim. On any failure the registry order stands for every claim.
type Selector struct {
	judge model.Runner
	tools []Tool
	opts  SelectorOptions
}

// NewSelector constructs a Selector over the registered tools. Tool order is
// the fallback preference order.
func NewSelector(judge model.Runner, tools []Tool, optFns ...func(o *SelectorOptions)) *Selector {
	opts := SelectorOptions{
		Logger: logging.NewNoOpLogger(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Selector{judge: judge, tools: tools, opts: opts}
}

type toolSelection struct {
	Index int    `json:"index"`
	Tool  string `json:"tool"`
}

type selectionEnvelope struct {
	Selections []toolSelection `json:"selections"`
}

// Select returns, per claim fingerprint, the tool order to try. The chosen
// tool leads; the remaining registry tools follow as fallbacks.
func (s *Selector) Select(ctx context.Context, claims []core.Claim) map[string][]Tool {
	plan := make(map[string][]Tool, len(claims))
	for _, c := range claims {
		plan[c.Fingerprint] = s.tools
	}
	if len(claims) == 0 || len(s.tools) < 2 {
		return plan
	}

	var toolList strings.Builder
	for _, t := range s.tools {
		fmt.Fprintf(&toolList, "- %s\n", t.Name())
	}
	var claimList strings.Builder
	for i, c := range claims {
		fmt.Fprintf(&claimList, "%d. %s\n", i, c.Text)
	}

	resp, err := s.judge.Generate(ctx, model.Request{
		Prompt:      fmt.Sprintf(selectPrompt, toolList.String(), claimList.String()),
		Temperature: 0,
	})
	if err != nil {
		s.opts.Logger.Warn("tool selection failed, using registry order", "error", err)
		return plan
	}

	env, ok := decodeSelections(resp.Text)
	if !ok {
		s.opts.Logger.Warn("tool selection response unparseable, using registry order")
		return plan
	}

	byName := make(map[string]Tool, len(s.tools))
	for _, t := range s.tools {
		byName[t.Name()] = t
	}

	for _, sel := range env.Selections {
		if sel.Index < 0 || sel.Index >= len(claims) {
			continue
		}
		chosen, known := byName[sel.Tool]
		if !known {
			continue
		}
		ordered := make([]Tool, 0, len(s.tools))
		ordered = append(ordered, chosen)
		for _, t := range s.tools {
			if t.Name() != chosen.Name() {
				ordered = append(ordered, t)
			}
		}
		plan[claims[sel.Index].Fingerprint] = ordered
	}

	return plan
}

func decodeSelections(text string) (selectionEnvelope, bool) {
	var env selectionEnvelope
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return env, false
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &env); err != nil {
		return env, false
	}
	return env, env.Selections != nil
}
