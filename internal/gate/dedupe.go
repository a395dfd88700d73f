package gate

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DedupeCache remembers recently seen event ids so re-delivered long-poll
// events are dropped. Bounded by both TTL and a hard entry cap; safe for
// concurrent use.
type DedupeCache struct {
	cache *expirable.LRU[string, struct{}]
}

// NewDedupeCache creates a dedupe cache with the given TTL and max entries.
func NewDedupeCache(ttl time.Duration, max int) *DedupeCache {
	return &DedupeCache{
		cache: expirable.NewLRU[string, struct{}](max, nil, ttl),
	}
}

// Seen reports whether the key was already recorded and, if not, records it.
// The record happens unconditionally on first sight: even a turn that is later
// rate-limited must not be reprocessed when the transport re-delivers it.
func (d *DedupeCache) Seen(key string) bool {
	if _, ok := d.cache.Get(key); ok {
		return true
	}
	d.cache.Add(key, struct{}{})
	return false
}

// Len returns the number of tracked keys.
func (d *DedupeCache) Len() int {
	return d.cache.Len()
}
