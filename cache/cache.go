package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// entry holds a cached document with its creation timestamp.
type entry struct {
	text      string
	createdAt time.Time
}

// Cache is a small in-memory document cache used by caching strategies.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration
	done       chan struct{}
	once       sync.Once
}

// New creates a Cache holding at most maxEntries documents. A background
// goroutine evicts entries older than ttl every cleanup interval.
func New(maxEntries int, ttl time.Duration) *Cache {
	if maxEntries < 1 {
		maxEntries = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
		done:       make(chan struct{}),
	}

	go c.cleanupLoop(5 * time.Minute)
	return c
}

// hashKey keeps map keys short regardless of target length.
func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached text for key if it is younger than maxAge.
// If maxAge <= 0 no lookup is performed.
func (c *Cache) Get(key string, maxAge time.Duration) (string, bool) {
	if maxAge <= 0 {
		return "", false
	}

	c.mu.RLock()
	e, ok := c.store[hashKey(key)]
	c.mu.RUnlock()

	if !ok || time.Since(e.createdAt) > maxAge {
		return "", false
	}
	return e.text, true
}

// Set stores text under key. If the cache is full a random entry is evicted.
func (c *Cache) Set(key, text string) {
	h := hashKey(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.store[h]; !exists && len(c.store) >= c.maxEntries {
		// Map iteration order is random in Go.
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[h] = &entry{
		text:      text,
		createdAt: time.Now(),
	}
}

// Len returns the number of cached documents.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// Stop terminates the cleanup goroutine. Safe to call twice.
func (c *Cache) Stop() {
	c.once.Do(func() { close(c.done) })
}

func (c *Cache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.evictOlderThan(time.Now().Add(-c.ttl))
		}
	}
}

func (c *Cache) evictOlderThan(cutoff time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.store {
		if e.createdAt.Before(cutoff) {
			delete(c.store, k)
		}
	}
}
