package verify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/logging"
)

// ClaimState tracks where a claim sits in the verification lifecycle.
type ClaimState string

const (
	// StatePending means the claim has not been looked at yet.
	StatePending ClaimState = "PENDING"
	// StateCached means a fresh verdict was served from the cache.
	StateCached ClaimState = "CACHED"
	// StateDispatched means the claim is in flight against a tool.
	StateDispatched ClaimState = "DISPATCHED"
	// StateVerified means a tool produced a verdict.
	StateVerified ClaimState = "VERIFIED"
	// StateUnverifiable means every tool was exhausted without a verdict.
	StateUnverifiable ClaimState = "UNVERIFIABLE"
)

// Options configure the Verifier.
type Options struct {
	// Concurrency bounds in-flight tool calls per batch.
	Concurrency int
	// MaxRetries is the retry budget per tool for retryable failures.
	MaxRetries int
	// RetryBaseDelay is doubled per retry attempt.
	RetryBaseDelay time.Duration
	// TTL stamps freshly computed verdicts.
	TTL    time.Duration
	Logger logging.Logger
}

// BatchResult is the outcome of verifying one batch of claims, keyed by
// claim fingerprint.
type BatchResult struct {
	Verdicts   map[string]*core.VerificationVerdict
	States     map[string]ClaimState
	CacheHits  int
	Dispatched int
}

// Verifier resolves claim batches to verdicts. Duplicate fingerprints within
// a batch coalesce into a single lookup or dispatch.
type Verifier struct {
	cache    core.VerificationCache
	selector *Selector
	opts     Options
	now      func() time.Time
}

// New constructs a Verifier. cache may be nil to disable caching.
func New(cache core.VerificationCache, selector *Selector, optFns ...func(o *Options)) *Verifier {
	opts := Options{
		Concurrency:    6,
		MaxRetries:     2,
		RetryBaseDelay: 500 * time.Millisecond,
		TTL:            30 * 24 * time.Hour,
		Logger:         logging.NewNoOpLogger(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Verifier{
		cache:    cache,
		selector: selector,
		opts:     opts,
		now:      time.Now,
	}
}

// VerifyBatch resolves every claim in the batch to a verdict. It only fails
// outright on context cancellation; individual claim failures degrade to
// UNVERIFIABLE.
func (v *Verifier) VerifyBatch(ctx context.Context, claims []core.Claim) (*BatchResult, error) {
	result := &BatchResult{
		Verdicts: make(map[string]*core.VerificationVerdict),
		States:   make(map[string]ClaimState),
	}

	unique := make([]core.Claim, 0, len(claims))
	seen := make(map[string]struct{}, len(claims))
	for _, c := range claims {
		if _, dup := seen[c.Fingerprint]; dup {
			continue
		}
		seen[c.Fingerprint] = struct{}{}
		unique = append(unique, c)
		result.States[c.Fingerprint] = StatePending
	}

	// Cache pass first so only true misses reach the tools.
	misses := make([]core.Claim, 0, len(unique))
	for _, c := range unique {
		if v.cache == nil {
			misses = append(misses, c)
			continue
		}
		cached, err := v.cache.Get(ctx, c.Fingerprint)
		switch {
		case err == nil:
			result.Verdicts[c.Fingerprint] = cached
			result.States[c.Fingerprint] = StateCached
			result.CacheHits++
		case errors.Is(err, core.ErrCacheMiss):
			misses = append(misses, c)
		default:
			v.opts.Logger.Warn("cache lookup failed", "fingerprint", c.Fingerprint, "error", err)
			misses = append(misses, c)
		}
	}

	if len(misses) == 0 {
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	plan := v.selector.Select(ctx, misses)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = make(chan struct{}, v.opts.Concurrency)
	)

	for _, claim := range misses {
		result.States[claim.Fingerprint] = StateDispatched
		result.Dispatched++

		wg.Add(1)
		go func(claim core.Claim) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			verdict, state := v.verifyClaim(ctx, claim, plan[claim.Fingerprint])

			mu.Lock()
			result.Verdicts[claim.Fingerprint] = verdict
			result.States[claim.Fingerprint] = state
			mu.Unlock()

			if v.cache != nil && state == StateVerified {
				if err := v.cache.Put(ctx, verdict); err != nil {
					v.opts.Logger.Warn("cache write failed", "fingerprint", claim.Fingerprint, "error", err)
				}
			}
		}(claim)
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Claims still dispatched were skipped by cancellation racing the
	// semaphore; give them an explicit terminal state.
	for fp, state := range result.States {
		if state == StateDispatched || state == StatePending {
			result.Verdicts[fp] = v.unverifiable(fp)
			result.States[fp] = StateUnverifiable
		}
	}

	return result, nil
}

// verifyClaim walks the tool order, spending the per-tool retry budget on
// retryable failures and skipping to the next tool on permanent ones.
func (v *Verifier) verifyClaim(ctx context.Context, claim core.Claim, tools []Tool) (*core.VerificationVerdict, ClaimState) {
	start := v.now()

	for _, tool := range tools {
		for attempt := 0; attempt <= v.opts.MaxRetries; attempt++ {
			outcome, err := tool.Verify(ctx, claim.Text)
			if err == nil {
				verdict := &core.VerificationVerdict{
					Fingerprint: claim.Fingerprint,
					Verdict:     outcome.Verdict,
					Confidence:  outcome.Confidence,
					Sources:     outcome.Sources,
					ComputedAt:  v.now(),
					TTL:         v.opts.TTL,
				}
				v.opts.Logger.Debug("claim verified",
					"tool", tool.Name(),
					"fingerprint", claim.Fingerprint,
					"verdict", string(outcome.Verdict),
					"duration", v.now().Sub(start))
				return verdict, StateVerified
			}

			if !core.IsRetryable(err) {
				v.opts.Logger.Warn("tool failed permanently, trying next",
					"tool", tool.Name(), "fingerprint", claim.Fingerprint, "error", err)
				break
			}
			if attempt == v.opts.MaxRetries {
				v.opts.Logger.Warn("tool retry budget exhausted, trying next",
					"tool", tool.Name(), "fingerprint", claim.Fingerprint, "error", err)
				break
			}

			delay := v.opts.RetryBaseDelay << uint(attempt)
			select {
			case <-ctx.Done():
				return v.unverifiable(claim.Fingerprint), StateUnverifiable
			case <-time.After(delay):
			}
		}

		if ctx.Err() != nil {
			break
		}
	}

	return v.unverifiable(claim.Fingerprint), StateUnverifiable
}

func (v *Verifier) unverifiable(fingerprint string) *core.VerificationVerdict {
	return &core.VerificationVerdict{
		Fingerprint: fingerprint,
		Verdict:     core.VerdictUnverifiable,
		Confidence:  0,
		ComputedAt:  v.now(),
		TTL:         v.opts.TTL,
	}
}
