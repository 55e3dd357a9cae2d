package crypto

import (
	"sync"
	"time"
)

// ReplayCache remembers request signatures for a TTL so a captured request
// cannot be submitted twice. It is safe for concurrent use.
type ReplayCache struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
}

// NewReplayCache creates a cache that treats a signature as replayed while
// it was seen less than ttl ago.
func NewReplayCache(ttl time.Duration) *ReplayCache {
	return &ReplayCache{seen: make(map[string]time.Time), ttl: ttl}
}

// Seen reports whether sig was recorded within the TTL. An unseen or expired
// signature is recorded at now and false is returned.
func (c *ReplayCache) Seen(sig string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if at, ok := c.seen[sig]; ok && now.Sub(at) < c.ttl {
		return true
	}
	c.seen[sig] = now
	return false
}

// Cleanup drops expired entries.
func (c *ReplayCache) Cleanup(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for sig, at := range c.seen {
		if now.Sub(at) >= c.ttl {
			delete(c.seen, sig)
		}
	}
}

// Len returns the number of remembered signatures.
func (c *ReplayCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
