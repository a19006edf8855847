// Package extract turns generated output text into discrete factual claims
// suitable for verification. Extraction is delegated to a judge model asked
// for a strict JSON response; when the model answers free-form anyway the
// extractor falls back to line-based parsing so a sloppy judge degrades
// gracefully instead of failing the job.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/logging"
	"github.com/hupe1980/evalmesh/model"
)

const extractPrompt = `Extract every discrete, independently checkable factual claim from the text below.
Rules:
- One claim per entry, self-contained, no pronouns referring outside the claim.
- Skip opinions, hedges and instructions.
- Respond with JSON only: {"claims": ["claim one", "claim two"]}

Text:
%s`

// Options configure the extractor.
type Options struct {
	// MinClaimLength drops fragments shorter than this many characters.
	MinClaimLength int
	Logger         logging.Logger
}

// Extractor asks a judge model for the factual claims contained in a text.
type Extractor struct {
	judge model.Runner
	opts  Options
}

// New constructs an Extractor backed by the given judge runner.
func New(judge model.Runner, optFns ...func(o *Options)) *Extractor {
	opts := Options{
		MinClaimLength: 10,
		Logger:         logging.NewNoOpLogger(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Extractor{judge: judge, opts: opts}
}

// claimsEnvelope is the JSON shape the judge is asked for.
type claimsEnvelope struct {
	Claims []string `json:"claims"`
}

// Extract returns the deduplicated claims found in the output at the given
// example/repeat position. Duplicates (by canonical fingerprint) keep their
// first occurrence so ordering stays stable.
func (e *Extractor) Extract(ctx context.Context, text string, exampleIndex, repeatIndex int) ([]core.Claim, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	resp, err := e.judge.Generate(ctx, model.Request{
		Prompt:      fmt.Sprintf(extractPrompt, text),
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("extract claims: %w", err)
	}

	raw := parseClaims(resp.Text)

	seen := make(map[string]struct{}, len(raw))
	claims := make([]core.Claim, 0, len(raw))
	for _, c := range raw {
		c = strings.TrimSpace(c)
		if len(c) < e.opts.MinClaimLength {
			continue
		}
		claim := core.NewClaim(c, exampleIndex, repeatIndex)
		if _, dup := seen[claim.Fingerprint]; dup {
			continue
		}
		seen[claim.Fingerprint] = struct{}{}
		claims = append(claims, claim)
	}

	e.opts.Logger.Debug("claims extracted",
		"example_index", exampleIndex,
		"repeat_index", repeatIndex,
		"raw", len(raw),
		"kept", len(claims))

	return claims, nil
}

// parseClaims decodes the judge response. It first tries the requested JSON
// envelope (tolerating surrounding prose and markdown fences), then falls
// back to treating each non-empty line as one claim.
func parseClaims(text string) []string {
	if env, ok := decodeEnvelope(text); ok {
		return env.Claims
	}

	var claims []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789. \t")
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		claims = append(claims, line)
	}
	return claims
}

func decodeEnvelope(text string) (claimsEnvelope, bool) {
	var env claimsEnvelope

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return env, false
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &env); err != nil {
		return env, false
	}
	return env, env.Claims != nil
}
