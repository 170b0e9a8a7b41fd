package cache

import (
	"strings"
	"sync"
	"time"
)

// sweepInterval is how often the background goroutine drops expired entries
const sweepInterval = 5 * time.Minute

type entry struct {
	data    []byte
	expires time.Time
}

func (e entry) expiredAt(now time.Time) bool {
	return now.After(e.expires)
}

// Cache is an in-memory byte cache where every entry lives for the same TTL.
// Expired entries are dropped on read and by a periodic sweep.
type Cache struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]entry

	done     chan struct{}
	stopOnce sync.Once
}

// NewCache starts a cache and its sweeper. Call Stop to end the sweeper.
func NewCache(ttl time.Duration) *Cache {
	c := &Cache{
		ttl:     ttl,
		entries: make(map[string]entry),
		done:    make(chan struct{}),
	}
	go c.sweep(sweepInterval)
	return c
}

func (c *Cache) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.purgeExpired()
		}
	}
}

// Stop ends the background sweep. It is safe to call more than once.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// removeWhere deletes every entry matching drop and returns how many went
func (c *Cache) removeWhere(drop func(key string, e entry) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, e := range c.entries {
		if drop(key, e) {
			delete(c.entries, key)
			n++
		}
	}
	return n
}

func (c *Cache) purgeExpired() int {
	now := time.Now()
	return c.removeWhere(func(_ string, e entry) bool { return e.expiredAt(now) })
}

// DeletePrefix removes every entry whose key starts with prefix
func (c *Cache) DeletePrefix(prefix string) int {
	return c.removeWhere(func(key string, _ entry) bool { return strings.HasPrefix(key, prefix) })
}

// Get returns the cached bytes for key, or false when missing or expired
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if !e.expiredAt(time.Now()) {
		return e.data, true
	}

	c.mu.Lock()
	// a concurrent Set may have refreshed the key since the read above
	if cur, ok := c.entries[key]; ok && cur.expires.Equal(e.expires) {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	return nil, false
}

func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	c.entries[key] = entry{data: data, expires: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Size counts stored entries, including expired ones not yet swept
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats reports entry counts for /metrics
func (c *Cache) Stats() map[string]interface{} {
	now := time.Now()

	c.mu.RLock()
	total := len(c.entries)
	expired := 0
	for _, e := range c.entries {
		if e.expiredAt(now) {
			expired++
		}
	}
	c.mu.RUnlock()

	return map[string]interface{}{
		"total_items":   total,
		"expired_items": expired,
		"active_items":  total - expired,
		"ttl_seconds":   c.ttl.Seconds(),
	}
}
