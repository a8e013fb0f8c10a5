package bus

import (
	"container/list"
	"sync"
	"time"
)

// DedupeCache suppresses redelivered updates within a short window.
// Entries expire after a TTL and the cache holds at most maxEntries,
// evicting oldest-first. This is a best-effort filter against immediate
// redelivery bursts (webhook retries, polling double-taps), not a durable
// log; days-later redelivery is out of its scope.
//
// Safe for concurrent use.
type DedupeCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]*list.Element
	order      *list.List // oldest at front

	now func() time.Time // overridable in tests
}

type dedupeEntry struct {
	key  string
	seen time.Time
}

// NewDedupeCache creates a cache with the given TTL and capacity.
func NewDedupeCache(ttl time.Duration, maxEntries int) *DedupeCache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	return &DedupeCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

// Check reports whether fingerprint was already seen within the window,
// recording it on first sight. An empty fingerprint is never deduplicated.
func (c *DedupeCache) Check(fingerprint string) bool {
	if fingerprint == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.pruneLocked(now)

	if el, ok := c.entries[fingerprint]; ok {
		if now.Sub(el.Value.(*dedupeEntry).seen) < c.ttl {
			return true
		}
		// Expired entry that pruning hasn't caught yet: re-record.
		c.order.Remove(el)
		delete(c.entries, fingerprint)
	}

	for len(c.entries) >= c.maxEntries {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*dedupeEntry).key)
	}

	c.entries[fingerprint] = c.order.PushBack(&dedupeEntry{key: fingerprint, seen: now})
	return false
}

// Forget removes a recorded fingerprint so a later redelivery counts as
// first sight again. Used when an event is dropped after its dedupe record
// but before processing, e.g. a scheduling overload.
func (c *DedupeCache) Forget(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[fingerprint]; ok {
		c.order.Remove(el)
		delete(c.entries, fingerprint)
	}
}

// Reset clears all recorded fingerprints.
func (c *DedupeCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Len returns the number of tracked fingerprints.
func (c *DedupeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *DedupeCache) pruneLocked(now time.Time) {
	for {
		oldest := c.order.Front()
		if oldest == nil {
			return
		}
		e := oldest.Value.(*dedupeEntry)
		if now.Sub(e.seen) < c.ttl {
			return
		}
		c.order.Remove(oldest)
		delete(c.entries, e.key)
	}
}
