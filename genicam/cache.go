package genicam

import "sync"

// cacheKey identifies one cached register slab by its resolved address
// and length (spec.md §3 "Register cache").
type cacheKey struct {
	address uint64
	length  int
}

// cacheEntry is the last known value of one register plus the
// change_count vector of its invalidators at the time it was
// populated. A lookup hits iff every invalidator's count is unchanged.
type cacheEntry struct {
	data    []byte
	counts  []uint64
	invIDs  []NodeID
}

// RegisterCache implements spec.md §4.4.4: a mapping from (address,
// length) to the last known register value, guarded by an RWMutex per
// spec.md §5 ("the register cache is guarded by an internal read/write
// lock; invalidations take the write lock, reads take the read lock
// briefly"). Grounded on the teacher's sync.Pool/atomic-counter
// concurrency idiom (device/frame_pool.go) applied to a map instead of
// a free-list.
type RegisterCache struct {
	mu      sync.RWMutex
	entries map[cacheKey]cacheEntry
}

// NewRegisterCache returns an empty cache.
func NewRegisterCache() *RegisterCache {
	return &RegisterCache{entries: make(map[cacheKey]cacheEntry)}
}

// Lookup returns the cached value for (address, length) if every
// invalidator listed in the cached entry still has the change_count it
// had when the entry was stored.
func (c *RegisterCache) Lookup(address uint64, length int, changeCount func(NodeID) uint64) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[cacheKey{address, length}]
	if !ok {
		return nil, false
	}
	for i, id := range e.invIDs {
		if changeCount(id) != e.counts[i] {
			return nil, false
		}
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, true
}

// Store records data as the cached value for (address, length), tagged
// with the current change_count of each invalidator.
func (c *RegisterCache) Store(address uint64, length int, data []byte, invalidators []NodeID, changeCount func(NodeID) uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := make([]uint64, len(invalidators))
	for i, id := range invalidators {
		counts[i] = changeCount(id)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.entries[cacheKey{address, length}] = cacheEntry{data: cp, counts: counts, invIDs: invalidators}
}

// Invalidate drops the cached entry for (address, length), used by
// WriteAround semantics and explicit invalidate-all calls
// (spec.md §4.4.4).
func (c *RegisterCache) Invalidate(address uint64, length int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey{address, length})
}

// InvalidateAll clears every cached entry, used after AcquisitionStart
// by convention (spec.md §4.4.4).
func (c *RegisterCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]cacheEntry)
}
