package listener

import (
	"container/list"
	"sync"
	"time"
)

// dedupeCache is a bounded LRU set of recently settled transaction hashes
// with per-entry TTL expiry. It is only a fast path for duplicate
// suppression; true idempotence lives in the ledger's unique
// (type, reference) constraint, so losing entries is always safe.
type dedupeCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[string]*list.Element
	order    *list.List
	now      func() time.Time
}

type dedupeEntry struct {
	hash      string
	expiresAt time.Time
}

func newDedupeCache(capacity int, ttl time.Duration) *dedupeCache {
	return &dedupeCache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
		now:      time.Now,
	}
}

// Contains reports whether the hash was recently settled
func (c *dedupeCache) Contains(hash string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[hash]
	if !ok {
		return false
	}
	if c.now().After(elem.Value.(*dedupeEntry).expiresAt) {
		c.removeLocked(elem)
		return false
	}
	c.order.MoveToFront(elem)
	return true
}

// Add records a settled hash, evicting the oldest entry at capacity
func (c *dedupeCache) Add(hash string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[hash]; ok {
		elem.Value.(*dedupeEntry).expiresAt = c.now().Add(c.ttl)
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.removeLocked(oldest)
		}
	}

	elem := c.order.PushFront(&dedupeEntry{
		hash:      hash,
		expiresAt: c.now().Add(c.ttl),
	})
	c.items[hash] = elem
}

// Len returns the number of cached hashes
func (c *dedupeCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *dedupeCache) removeLocked(elem *list.Element) {
	delete(c.items, elem.Value.(*dedupeEntry).hash)
	c.order.Remove(elem)
}
