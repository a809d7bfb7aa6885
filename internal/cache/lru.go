// Package cache provides a small, bounded, least-recently-used cache for
// chat-history entities. One cache instance holds two kinds of entries in a
// single LRU space: full chat records keyed by chat id, and per-user lists of
// chat ids keyed by ListKey(userID). Eviction order is recency of Get/Set
// across both kinds.
//
// The cache is a disposable, reconstructible view over the document store:
// it must never be the sole holder of a write, so eviction is silent and
// callers treat absence as a normal outcome.
//
// The library does no logging (callers decide); it reports hits, misses, and
// evictions through Prometheus counters.
package cache

import (
	"container/list"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// cacheHits counts lookups that found a live entry.
	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_cache_hits_total",
		Help: "Total number of chat cache hits.",
	})

	// cacheMisses counts lookups that found nothing.
	cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_cache_misses_total",
		Help: "Total number of chat cache misses.",
	})

	// cacheEvictions counts entries displaced under capacity pressure.
	cacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_cache_evictions_total",
		Help: "Total number of chat cache LRU evictions.",
	})
)

func init() {
	prometheus.MustRegister(cacheHits, cacheMisses, cacheEvictions)
}

// ListKey derives the cache key under which a user's ordered chat-id list is
// stored. The "_chats" suffix keeps list entries from colliding with chat ids.
func ListKey(userID string) string { return userID + "_chats" }

// entry is a single cached value together with its LRU bookkeeping.
type entry struct {
	key   string
	value any
	elem  *list.Element
}

// LRU is a fixed-capacity least-recently-used cache. Capacity is set once at
// construction and is immutable afterwards. All methods are safe for
// concurrent use; none of them block on I/O.
type LRU struct {
	mu       sync.Mutex
	entries  map[string]*entry
	order    *list.List // front = most recently used
	capacity int
}

// NewLRU constructs an empty cache bounded to capacity entries. A capacity
// below 1 is coerced to 1 so that an insertion can always succeed.
func NewLRU(capacity int) *LRU {
	if capacity < 1 {
		capacity = 1
	}
	return &LRU{
		entries:  make(map[string]*entry, capacity),
		order:    list.New(),
		capacity: capacity,
	}
}

// Get returns the cached value for key and whether it was present. A hit
// refreshes the entry's recency. Absence is a normal outcome, never an error.
func (c *LRU) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		cacheMisses.Inc()
		return nil, false
	}
	c.order.MoveToFront(e.elem)
	cacheHits.Inc()
	return e.value, true
}

// Set stores value under key, unconditionally overwriting any previous value
// and refreshing recency. When the insertion would exceed capacity, the
// least-recently-used entry is evicted first; eviction is silent.
func (c *LRU) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.order.MoveToFront(e.elem)
		return
	}

	for len(c.entries) >= c.capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.remove(oldest.Value.(*entry))
		cacheEvictions.Inc()
	}

	e := &entry{key: key, value: value}
	e.elem = c.order.PushFront(e)
	c.entries[key] = e
}

// Delete removes key from the cache. Deleting an absent key is a no-op.
func (c *LRU) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.remove(e)
	}
}

// Clear empties the cache unconditionally. Used for global invalidation such
// as clearing all chats.
func (c *LRU) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry, c.capacity)
	c.order.Init()
}

// Len returns the current number of cached entries.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// remove unlinks e from both indexes. Caller must hold c.mu.
func (c *LRU) remove(e *entry) {
	c.order.Remove(e.elem)
	delete(c.entries, e.key)
}
