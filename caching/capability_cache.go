package caching

import (
	"sync"
	"time"
)

const DefaultCapabilityTTL = 5 * time.Minute

type Entry struct {
	Value     bool
	ExpiresAt time.Time
}

type CacheStats struct {
	Entries int
	Keys    []string
}

type CapabilityCache interface {
	Get(key string) (value bool, ok bool)
	Set(key string, value bool)
	CleanupExpired() int
	Clear()
	Stats() CacheStats
}

type CapabilityCacheImpl struct {
	mu      sync.Mutex
	entries map[string]Entry
	ttl     time.Duration
	now     func() time.Time
}

func NewCapabilityCacheImpl(ttl time.Duration) *CapabilityCacheImpl {
	if ttl <= 0 {
		ttl = DefaultCapabilityTTL
	}

	return &CapabilityCacheImpl{
		entries: make(map[string]Entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get drops an entry that has reached its expiry instead of serving it.
func (c *CapabilityCacheImpl) Get(key string) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return false, false
	}
	if c.expired(entry, c.now()) {
		delete(c.entries, key)
		return false, false
	}

	return entry.Value, true
}

func (c *CapabilityCacheImpl) Set(key string, value bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = Entry{
		Value:     value,
		ExpiresAt: c.now().Add(c.ttl),
	}
}

// CleanupExpired sweeps every expired entry and reports how many were removed.
func (c *CapabilityCacheImpl) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if c.expired(entry, now) {
			delete(c.entries, key)
			removed++
		}
	}

	return removed
}

func (c *CapabilityCacheImpl) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]Entry)
}

func (c *CapabilityCacheImpl) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}

	return CacheStats{
		Entries: len(c.entries),
		Keys:    keys,
	}
}

func (c *CapabilityCacheImpl) expired(entry Entry, at time.Time) bool {
	return !at.Before(entry.ExpiresAt)
}
