package scheduling

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

type slotCacheKey struct {
	providerID  uuid.UUID
	typeID      uuid.UUID
	date        Date
	granularity time.Duration
}

// SlotCache holds computed per-provider slot lists for a short TTL.
// A nil *SlotCache is valid and caches nothing.
//
// Each provider has a generation bumped on invalidation. A list computed
// under an older generation is never stored.
type SlotCache struct {
	lru *expirable.LRU[slotCacheKey, []Slot]

	mu   sync.Mutex
	gens map[uuid.UUID]uint64 // one per provider, never removed
}

func NewSlotCache(size int, ttl time.Duration) *SlotCache {
	if size <= 0 || ttl <= 0 {
		return nil
	}
	return &SlotCache{
		lru:  expirable.NewLRU[slotCacheKey, []Slot](size, nil, ttl),
		gens: make(map[uuid.UUID]uint64),
	}
}

// generation must be read before the busy intervals behind a put.
func (c *SlotCache) generation(providerID uuid.UUID) uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[providerID]
}

// get drops slots that have started since the entry was stored.
func (c *SlotCache) get(k slotCacheKey, now time.Time) ([]Slot, bool) {
	if c == nil {
		return nil, false
	}
	slots, ok := c.lru.Get(k)
	if !ok {
		return nil, false
	}
	out := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if !s.Start.Before(now) {
			out = append(out, s)
		}
	}
	return out, true
}

// put stores slots unless the provider was invalidated after gen was read.
func (c *SlotCache) put(k slotCacheKey, gen uint64, slots []Slot) bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[k.providerID] != gen {
		return false
	}
	c.lru.Add(k, slots)
	return true
}

// InvalidateProvider drops every cached list for the provider.
func (c *SlotCache) InvalidateProvider(providerID uuid.UUID) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[providerID]++
	for _, k := range c.lru.Keys() {
		if k.providerID == providerID {
			c.lru.Remove(k)
		}
	}
}

func (c *SlotCache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
