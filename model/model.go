package model

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/evalmesh/core"
)

// Request captures one normalized generation call. The prompt is already
// rendered; providers receive it verbatim.
type Request struct {
	ModelID     string  `json:"model_id"`
	Prompt      string  `json:"prompt"`
	System      string  `json:"system,omitempty"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int64   `json:"max_tokens,omitempty"`
}

// Result is a completed generation: the output text plus token accounting.
type Result struct {
	Text  string          `json:"text"`
	Usage core.TokenUsage `json:"usage"`
}

// Info contains metadata about a runner implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Runner is the minimal interface the pipeline needs to drive generation.
// Implementations classify failures via core.Transient / core.Permanent so
// the orchestrator can decide whether to retry.
type Runner interface {
	Generate(ctx context.Context, req Request) (*Result, error)

	// Info returns information about the runner implementation.
	Info() Info
}

// MockRunner is a lightweight in-memory Runner useful for tests & examples.
// Responses are keyed by prompt; unknown prompts get a deterministic echo.
// Safe for concurrent use.
type MockRunner struct {
	info      Info
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	calls     []Request
}

// NewMockRunner constructs a MockRunner.
func NewMockRunner(name, provider string) *MockRunner {
	return &MockRunner{
		info:      Info{Name: name, Provider: provider},
		responses: make(map[string]string),
		errs:      make(map[string]error),
	}
}

// AddResponse registers a deterministic canned completion for a prompt.
func (m *MockRunner) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// FailWith makes every prompt containing the given substring return err.
func (m *MockRunner) FailWith(substr string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[substr] = err
}

// Calls returns a snapshot of the requests seen so far.
func (m *MockRunner) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.calls...)
}

// CallCount returns the number of Generate invocations.
func (m *MockRunner) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Generate implements Runner.
func (m *MockRunner) Generate(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.Transient("mock generate", err)
	}

	m.mu.Lock()
	m.calls = append(m.calls, req)
	var failure error
	for substr, err := range m.errs {
		if strings.Contains(req.Prompt, substr) {
			failure = err
			break
		}
	}
	text, ok := m.responses[req.Prompt]
	m.mu.Unlock()

	if failure != nil {
		return nil, failure
	}
	if !ok {
		text = fmt.Sprintf("Mock response to: %s", req.Prompt)
	}

	promptTokens := approxTokens(req.Prompt)
	outputTokens := approxTokens(text)

	return &Result{
		Text: text,
		Usage: core.TokenUsage{
			InputTokens:  promptTokens,
			OutputTokens: outputTokens,
			TotalTokens:  promptTokens + outputTokens,
		},
	}, nil
}

// Info implements Runner.
func (m *MockRunner) Info() Info { return m.info }

// approxTokens estimates token counts for mocks where no tokenizer runs.
func approxTokens(text string) int {
	n := len(strings.Fields(text))
	if n == 0 && text != "" {
		n = 1
	}
	return n
}
