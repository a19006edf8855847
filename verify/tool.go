// Package verify checks extracted claims against external knowledge. A
// Verifier drives the per-claim lifecycle: cache lookup first, then bounded
// concurrent dispatch to verification tools chosen by a judge model, with
// retries falling through the tool order before a claim is given up as
// unverifiable.
package verify

import (
	"context"
	"sync"

	"github.com/hupe1980/evalmesh/core"
)

// Outcome is a single tool's judgment on one claim.
type Outcome struct {
	Verdict    core.Verdict `json:"verdict"`
	Confidence float64      `json:"confidence"`
	Sources    []string     `json:"sources,omitempty"`
}

// Tool verifies a single claim text against one knowledge source.
// Implementations classify failures via core.Transient / core.Permanent so
// the verifier knows whether a retry is worthwhile.
type Tool interface {
	// Name returns the stable identifier used for tool selection.
	Name() string

	Verify(ctx context.Context, claim string) (*Outcome, error)
}

// MockTool is a scripted Tool for tests. Safe for concurrent use.
type MockTool struct {
	name string

	mu       sync.Mutex
	outcomes map[string]*Outcome
	errs     map[string]error
	fallback *Outcome
	calls    []string
}

// NewMockTool constructs a MockTool. Claims without a scripted outcome get
// an UNVERIFIABLE default.
func NewMockTool(name string) *MockTool {
	return &MockTool{
		name:     name,
		outcomes: make(map[string]*Outcome),
		errs:     make(map[string]error),
		fallback: &Outcome{Verdict: core.VerdictUnverifiable, Confidence: 0},
	}
}

// SetOutcome scripts the outcome for a claim text.
func (m *MockTool) SetOutcome(claim string, outcome *Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[claim] = outcome
}

// SetError scripts a failure for a claim text.
func (m *MockTool) SetError(claim string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[claim] = err
}

// SetFallback replaces the default outcome for unscripted claims.
func (m *MockTool) SetFallback(outcome *Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = outcome
}

// Calls returns the claims seen so far.
func (m *MockTool) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Name implements Tool.
func (m *MockTool) Name() string { return m.name }

// Verify implements Tool.
func (m *MockTool) Verify(ctx context.Context, claim string) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.Transient("mock verify", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, claim)

	if err, ok := m.errs[claim]; ok {
		return nil, err
	}
	if out, ok := m.outcomes[claim]; ok {
		return out, nil
	}
	return m.fallback, nil
}
