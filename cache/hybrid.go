package cache

import (
	"context"
	"errors"

	"github.com/hupe1980/evalmesh/core"
	"github.com/hupe1980/evalmesh/logging"
)

// HybridOptions configure the tiered cache.
type HybridOptions struct {
	Logger logging.Logger
}

// HybridCache layers the memory, SQLite and DynamoDB tiers. Reads walk the
// tiers in order and promote hits into the faster tiers above; local writes
// go through synchronously while DynamoDB writes ride the write-behind
// buffer. Any tier except memory may be nil.
type HybridCache struct {
	memory *MemoryCache
	sqlite *SQLiteCache
	dynamo *DynamoCache
	opts   HybridOptions
}

// NewHybridCache composes the given tiers. memory must not be nil.
func NewHybridCache(memory *MemoryCache, sqlite *SQLiteCache, dynamo *DynamoCache, optFns ...func(o *HybridOptions)) *HybridCache {
	opts := HybridOptions{
		Logger: logging.NewNoOpLogger(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &HybridCache{
		memory: memory,
		sqlite: sqlite,
		dynamo: dynamo,
		opts:   opts,
	}
}

// Get implements core.VerificationCache.
func (c *HybridCache) Get(ctx context.Context, fingerprint string) (*core.VerificationVerdict, error) {
	if v, err := c.memory.Get(ctx, fingerprint); err == nil {
		return v, nil
	} else if !errors.Is(err, core.ErrCacheMiss) {
		return nil, err
	}

	if c.sqlite != nil {
		v, err := c.sqlite.Get(ctx, fingerprint)
		switch {
		case err == nil:
			if perr := c.memory.Put(ctx, v); perr != nil {
				c.opts.Logger.Warn("memory cache promote failed", "error", perr)
			}
			return v, nil
		case !errors.Is(err, core.ErrCacheMiss):
			c.opts.Logger.Warn("sqlite cache read failed", "error", err)
		}
	}

	if c.dynamo != nil {
		v, err := c.dynamo.Get(ctx, fingerprint)
		switch {
		case err == nil:
			if perr := c.memory.Put(ctx, v); perr != nil {
				c.opts.Logger.Warn("memory cache promote failed", "error", perr)
			}
			if c.sqlite != nil {
				if perr := c.sqlite.Put(ctx, v); perr != nil {
					c.opts.Logger.Warn("sqlite cache promote failed", "error", perr)
				}
			}
			return v, nil
		case !errors.Is(err, core.ErrCacheMiss):
			// A degraded remote tier must not fail verification.
			c.opts.Logger.Warn("dynamo cache read failed", "error", err)
		}
	}

	return nil, core.ErrCacheMiss
}

// Put implements core.VerificationCache. Memory and SQLite are written
// through; DynamoDB is enqueued for the next batch flush.
func (c *HybridCache) Put(ctx context.Context, verdict *core.VerificationVerdict) error {
	if err := c.memory.Put(ctx, verdict); err != nil {
		return err
	}
	if c.sqlite != nil {
		if err := c.sqlite.Put(ctx, verdict); err != nil {
			c.opts.Logger.Warn("sqlite cache write failed", "error", err)
		}
	}
	if c.dynamo != nil {
		if err := c.dynamo.Put(ctx, verdict); err != nil {
			c.opts.Logger.Warn("dynamo cache enqueue failed", "error", err)
		}
	}
	return nil
}

// Stats returns the memory tier counters; persistent tiers keep their own.
func (c *HybridCache) Stats() Stats {
	return c.memory.Stats()
}

// ForceFlush drains the DynamoDB write-behind buffer when that tier exists.
func (c *HybridCache) ForceFlush(ctx context.Context) error {
	if c.dynamo == nil {
		return nil
	}
	return c.dynamo.ForceFlush(ctx)
}

// Close flushes and releases the persistent tiers.
func (c *HybridCache) Close() error {
	var firstErr error
	if c.dynamo != nil {
		if err := c.dynamo.Close(); err != nil {
			firstErr = err
		}
	}
	if c.sqlite != nil {
		if err := c.sqlite.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
