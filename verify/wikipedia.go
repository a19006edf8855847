package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/model"
)

const wikipediaSearchURL = "https://en.wikipedia.org/w/rest.php/v1/search/page"

const evidencePrompt = `Judge the claim strictly against the evidence snippets below.
Respond with JSON only: {"verdict": "SUPPORTED"|"REFUTED"|"UNVERIFIABLE", "confidence": 0.0-1.0}
Use UNVERIFIABLE when the evidence neither confirms nor contradicts the claim.

Claim: %s

Evidence:
%s`

// WikipediaOptions configure the Wikipedia evidence tool.
type WikipediaOptions struct {
	// SearchURL overrides the endpoint, mainly for tests.
	SearchURL  string
	MaxResults int
	HTTPClient *http.Client
}

// WikipediaTool searches Wikipedia for evidence and has the judge model rate
// the claim against the snippets found.
type WikipediaTool struct {
	judge model.Runner
	opts  WikipediaOptions
}

// NewWikipediaTool constructs the tool with the given judge runner.
func NewWikipediaTool(judge model.Runner, optFns ...func(o *WikipediaOptions)) *WikipediaTool {
	opts := WikipediaOptions{
		SearchURL:  wikipediaSearchURL,
		MaxResults: 3,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &WikipediaTool{judge: judge, opts: opts}
}

// Name implements Tool.
func (t *WikipediaTool) Name() string { return "wikipedia" }

type searchResponse struct {
	Pages []struct {
		Key     string `json:"key"`
		Title   string `json:"title"`
		Excerpt string `json:"excerpt"`
	} `json:"pages"`
}

// Verify implements Tool. No search hits means UNVERIFIABLE, not an error.
func (t *WikipediaTool) Verify(ctx context.Context, claim string) (*Outcome, error) {
	pages, err := t.search(ctx, claim)
	if err != nil {
		return nil, err
	}
	if len(pages.Pages) == 0 {
		return &Outcome{Verdict: core.VerdictUnverifiable, Confidence: 0}, nil
	}

	var evidence strings.Builder
	var sources []string
	for i, p := range pages.Pages {
		if i >= t.opts.MaxResults {
			break
		}
		fmt.Fprintf(&evidence, "[%s] %s\n", p.Title, stripTags(p.Excerpt))
		sources = append(sources, "https://en.wikipedia.org/wiki/"+p.Key)
	}

	resp, err := t.judge.Generate(ctx, model.Request{
		Prompt:      fmt.Sprintf(evidencePrompt, claim, evidence.String()),
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("wikipedia judge: %w", err)
	}

	outcome, ok := decodeOutcome(resp.Text)
	if !ok {
		return nil, core.Permanent("wikipedia judge", fmt.Errorf("unparseable verdict response"))
	}
	outcome.Sources = sources
	return outcome, nil
}

func (t *WikipediaTool) search(ctx context.Context, claim string) (*searchResponse, error) {
	u := fmt.Sprintf("%s?q=%s&limit=%d", t.opts.SearchURL, url.QueryEscape(claim), t.opts.MaxResults)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, core.Permanent("wikipedia search", err)
	}

	resp, err := t.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, core.Transient("wikipedia search", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %d", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return nil, core.Transient("wikipedia search", err)
		}
		return nil, core.Permanent("wikipedia search", err)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, core.Transient("wikipedia search", err)
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, core.Permanent("wikipedia search", fmt.Errorf("decode response: %w", err))
	}
	return &result, nil
}

// stripTags removes the highlight markup the search API embeds in excerpts.
func stripTags(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// decodeOutcome parses a {"verdict": ..., "confidence": ...} judge response,
// tolerating surrounding prose.
func decodeOutcome(text string) (*Outcome, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, false
	}

	var raw struct {
		Verdict    string  `json:"verdict"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, false
	}

	verdict := core.Verdict(strings.ToUpper(strings.TrimSpace(raw.Verdict)))
	if !verdict.Valid() {
		return nil, false
	}
	if raw.Confidence < 0 {
		raw.Confidence = 0
	}
	if raw.Confidence > 1 {
		raw.Confidence = 1
	}
	return &Outcome{Verdict: verdict, Confidence: raw.Confidence}, true
}
