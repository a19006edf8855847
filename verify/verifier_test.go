package verify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/model"
)

// staticRunner is a model.Runner returning the same text for every prompt.
type staticRunner struct {
	mu    sync.Mutex
	text  string
	calls int
}

func (r *staticRunner) Generate(_ context.Context, _ model.Request) (*model.Result, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return &model.Result{Text: r.text}, nil
}

func (r *staticRunner) Info() model.Info { return model.Info{Name: "static", Provider: "mock"} }

func (r *staticRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func newVerifier(cache core.VerificationCache, tools ...Tool) *Verifier {
	selector := NewSelector(&staticRunner{text: "no json"}, tools)
	return New(cache, selector, func(o *Options) {
		o.RetryBaseDelay = time.Millisecond
		o.TTL = time.Hour
	})
}

func TestVerifyBatch_DuplicateFingerprintsCoalesce(t *testing.T) {
	tool := NewMockTool("primary")
	tool.SetFallback(&Outcome{Verdict: core.VerdictSupported, Confidence: 0.9})

	v := newVerifier(nil, tool)

	claims := []core.Claim{
		core.NewClaim("The Earth orbits the Sun.", 0, 0),
		core.NewClaim("the earth orbits the sun", 1, 0),
	}
	require.Equal(t, claims[0].Fingerprint, claims[1].Fingerprint)

	result, err := v.VerifyBatch(context.Background(), claims)
	require.NoError(t, err)

	// One dispatch serves both claims.
	assert.Len(t, tool.Calls(), 1)
	assert.Equal(t, 1, result.Dispatched)
	assert.Equal(t, core.VerdictSupported, result.Verdicts[claims[0].Fingerprint].Verdict)
	assert.Equal(t, StateVerified, result.States[claims[0].Fingerprint])
}

func TestVerifyBatch_CacheHitSkipsDispatch(t *testing.T) {
	tool := NewMockTool("primary")
	cache := newStubCache()

	claim := core.NewClaim("Mount Everest is the tallest mountain.", 0, 0)
	cache.verdicts[claim.Fingerprint] = &core.VerificationVerdict{
		Fingerprint: claim.Fingerprint,
		Verdict:     core.VerdictSupported,
		ComputedAt:  time.Now(),
	}

	v := newVerifier(cache, tool)
	result, err := v.VerifyBatch(context.Background(), []core.Claim{claim})
	require.NoError(t, err)

	assert.Empty(t, tool.Calls())
	assert.Equal(t, 1, result.CacheHits)
	assert.Equal(t, 0, result.Dispatched)
	assert.Equal(t, StateCached, result.States[claim.Fingerprint])
}

func TestVerifyBatch_WritesNewVerdictsToCache(t *testing.T) {
	tool := NewMockTool("primary")
	tool.SetFallback(&Outcome{Verdict: core.VerdictRefuted, Confidence: 0.8})
	cache := newStubCache()

	claim := core.NewClaim("The Moon is made of cheese.", 0, 0)

	v := newVerifier(cache, tool)
	_, err := v.VerifyBatch(context.Background(), []core.Claim{claim})
	require.NoError(t, err)

	stored, ok := cache.verdicts[claim.Fingerprint]
	require.True(t, ok)
	assert.Equal(t, core.VerdictRefuted, stored.Verdict)
	assert.Equal(t, time.Hour, stored.TTL)

	// A second batch is served entirely from the cache.
	result, err := v.VerifyBatch(context.Background(), []core.Claim{claim})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Dispatched)
	assert.Len(t, tool.Calls(), 1)
}

func TestVerifyBatch_PermanentFailureFallsToNextTool(t *testing.T) {
	claim := core.NewClaim("Honey never spoils when sealed.", 0, 0)

	broken := NewMockTool("broken")
	broken.SetError(claim.Text, core.Permanent("verify", errors.New("unsupported claim type")))
	backup := NewMockTool("backup")
	backup.SetOutcome(claim.Text, &Outcome{Verdict: core.VerdictSupported, Confidence: 0.7})

	v := newVerifier(nil, broken, backup)
	result, err := v.VerifyBatch(context.Background(), []core.Claim{claim})
	require.NoError(t, err)

	// Permanent failure skips straight to the backup tool without retries.
	assert.Len(t, broken.Calls(), 1)
	assert.Len(t, backup.Calls(), 1)
	assert.Equal(t, core.VerdictSupported, result.Verdicts[claim.Fingerprint].Verdict)
}

func TestVerifyBatch_RetriesTransientThenSucceeds(t *testing.T) {
	claim := core.NewClaim("Venus is hotter than Mercury.", 0, 0)

	flaky := &flakyTool{failures: 1, outcome: &Outcome{Verdict: core.VerdictSupported, Confidence: 0.9}}

	v := newVerifier(nil, flaky)
	result, err := v.VerifyBatch(context.Background(), []core.Claim{claim})
	require.NoError(t, err)

	assert.Equal(t, 2, flaky.callCount())
	assert.Equal(t, core.VerdictSupported, result.Verdicts[claim.Fingerprint].Verdict)
}

func TestVerifyBatch_ExhaustionResolvesUnverifiable(t *testing.T) {
	claim := core.NewClaim("Some unverifiable assertion here.", 0, 0)

	alwaysDown := NewMockTool("down")
	alwaysDown.SetError(claim.Text, core.Transient("verify", errors.New("timeout")))

	v := newVerifier(nil, alwaysDown)
	result, err := v.VerifyBatch(context.Background(), []core.Claim{claim})
	require.NoError(t, err)

	// Exhaustion is a verdict, not a stage failure.
	assert.Equal(t, core.VerdictUnverifiable, result.Verdicts[claim.Fingerprint].Verdict)
	assert.Equal(t, StateUnverifiable, result.States[claim.Fingerprint])
	assert.Len(t, alwaysDown.Calls(), 3) // initial + 2 retries
}

func TestVerifyBatch_EmptyBatch(t *testing.T) {
	v := newVerifier(nil, NewMockTool("primary"))
	result, err := v.VerifyBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Verdicts)
}

// stubCache is a minimal in-memory VerificationCache for tests.
type stubCache struct {
	mu       sync.Mutex
	verdicts map[string]*core.VerificationVerdict
}

func newStubCache() *stubCache {
	return &stubCache{verdicts: make(map[string]*core.VerificationVerdict)}
}

func (c *stubCache) Get(_ context.Context, fingerprint string) (*core.VerificationVerdict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.verdicts[fingerprint]
	if !ok {
		return nil, core.ErrCacheMiss
	}
	return v.Clone(), nil
}

func (c *stubCache) Put(_ context.Context, verdict *core.VerificationVerdict) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verdicts[verdict.Fingerprint] = verdict.Clone()
	return nil
}

// flakyTool fails transiently a fixed number of times, then succeeds.
type flakyTool struct {
	mu       sync.Mutex
	failures int
	calls    int
	outcome  *Outcome
}

func (f *flakyTool) Name() string { return "flaky" }

func (f *flakyTool) Verify(_ context.Context, _ string) (*Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, core.Transient("verify", errors.New("rate limited"))
	}
	return f.outcome, nil
}

func (f *flakyTool) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
