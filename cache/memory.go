package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/hupe1980/evalmesh/core"
)

// Stats is a point-in-time snapshot of a cache tier's counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Size      int   `json:"size"`
}

// MemoryCache is a fixed-capacity LRU over verification verdicts. Expired
// entries are dropped lazily on read. Safe for concurrent use.
type MemoryCache struct {
	mu        sync.Mutex
	capacity  int
	order     *list.List
	entries   map[string]*list.Element
	hits      int64
	misses    int64
	evictions int64
	now       func() time.Time
}

type memoryEntry struct {
	fingerprint string
	verdict     *core.VerificationVerdict
}

// NewMemoryCache constructs a MemoryCache holding at most capacity verdicts.
func NewMemoryCache(capacity int) *MemoryCache {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
		now:      time.Now,
	}
}

// Get implements core.VerificationCache.
func (c *MemoryCache) Get(_ context.Context, fingerprint string) (*core.VerificationVerdict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[fingerprint]
	if !ok {
		c.misses++
		return nil, core.ErrCacheMiss
	}

	entry := el.Value.(*memoryEntry)
	if entry.verdict.Expired(c.now()) {
		c.order.Remove(el)
		delete(c.entries, fingerprint)
		c.misses++
		return nil, core.ErrCacheMiss
	}

	c.order.MoveToFront(el)
	c.hits++
	return entry.verdict.Clone(), nil
}

// Put implements core.VerificationCache. An existing entry keeps its position
// only logically; the verdict is replaced and moved to the front.
func (c *MemoryCache) Put(_ context.Context, verdict *core.VerificationVerdict) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[verdict.Fingerprint]; ok {
		el.Value.(*memoryEntry).verdict = verdict.Clone()
		c.order.MoveToFront(el)
		return nil
	}

	el := c.order.PushFront(&memoryEntry{
		fingerprint: verdict.Fingerprint,
		verdict:     verdict.Clone(),
	})
	c.entries[verdict.Fingerprint] = el

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*memoryEntry).fingerprint)
		c.evictions++
	}

	return nil
}

// Stats returns a snapshot of the tier counters.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      c.order.Len(),
	}
}
