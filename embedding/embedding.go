// Package embedding defines the provider-agnostic interface for turning text
// into dense vectors, used by the consistency and variance stages.
package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
)

// Provider produces a single embedding vector for a piece of text.
// Implementations classify failures via core.Transient / core.Permanent.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// MockProvider is a deterministic in-memory Provider for tests. Vectors are
// either registered explicitly or derived from a hash of the text so that
// identical inputs always map to identical unit vectors. Safe for concurrent
// use.
type MockProvider struct {
	mu      sync.Mutex
	vectors map[string][]float64
	dims    int
	calls   int
}

// NewMockProvider constructs a MockProvider emitting vectors of dims length.
func NewMockProvider(dims int) *MockProvider {
	if dims <= 0 {
		dims = 8
	}
	return &MockProvider{
		vectors: make(map[string][]float64),
		dims:    dims,
	}
}

// AddVector registers a canned vector for a text.
func (m *MockProvider) AddVector(text string, vec []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[text] = append([]float64(nil), vec...)
}

// CallCount returns the number of Embed invocations.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Embed implements Provider.
func (m *MockProvider) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calls++
	vec, ok := m.vectors[text]
	m.mu.Unlock()

	if ok {
		return append([]float64(nil), vec...), nil
	}
	return hashVector(text, m.dims), nil
}

// hashVector derives a stable unit vector from the text.
func hashVector(text string, dims int) []float64 {
	vec := make([]float64, dims)
	var norm float64
	for i := range vec {
		h := fnv.New64a()
		h.Write([]byte(text))
		h.Write([]byte{byte(i)})
		v := float64(h.Sum64()%2000)/1000.0 - 1.0
		vec[i] = v
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
