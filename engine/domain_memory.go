package engine

import (
	"sync"
	"sync/atomic"
	"time"
)

// domainEntry stores the last winning strategy for a host with a TTL.
type domainEntry struct {
	strategy  string
	expiresAt time.Time
}

// DomainMemory remembers which strategy last won for each host.
// Entries expire after the configured TTL and are pruned periodically.
type DomainMemory struct {
	store sync.Map // host (string) -> *domainEntry
	size  atomic.Int64
	ttl   time.Duration
	done  chan struct{}
	once  sync.Once
}

// NewDomainMemory creates a DomainMemory with the given TTL and starts a
// background goroutine that prunes expired entries every interval.
func NewDomainMemory(ttl, interval time.Duration) *DomainMemory {
	if interval <= 0 {
		interval = time.Hour
	}
	dm := &DomainMemory{
		ttl:  ttl,
		done: make(chan struct{}),
	}
	go dm.cleanupLoop(interval)
	return dm
}

// Get returns the remembered strategy for host, or "" if absent or expired.
func (dm *DomainMemory) Get(host string) string {
	val, ok := dm.store.Load(host)
	if !ok {
		return ""
	}
	entry := val.(*domainEntry)
	if time.Now().After(entry.expiresAt) {
		dm.expire(host, entry)
		return ""
	}
	return entry.strategy
}

// Set records the strategy that won for host.
func (dm *DomainMemory) Set(host, strategy string) {
	_, loaded := dm.store.Swap(host, &domainEntry{
		strategy:  strategy,
		expiresAt: time.Now().Add(dm.ttl),
	})
	if !loaded {
		dm.size.Add(1)
	}
}

// Delete forgets host.
func (dm *DomainMemory) Delete(host string) {
	if _, loaded := dm.store.LoadAndDelete(host); loaded {
		dm.size.Add(-1)
	}
}

// expire removes host only while it still maps to entry, so a Set racing
// with expiry is kept.
func (dm *DomainMemory) expire(host string, entry *domainEntry) {
	if dm.store.CompareAndDelete(host, entry) {
		dm.size.Add(-1)
	}
}

// Len returns the number of remembered hosts, including not yet pruned
// expired ones.
func (dm *DomainMemory) Len() int { return int(dm.size.Load()) }

// Stop terminates the background cleanup goroutine. Safe to call twice.
func (dm *DomainMemory) Stop() {
	dm.once.Do(func() { close(dm.done) })
}

func (dm *DomainMemory) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-dm.done:
			return
		case <-ticker.C:
			now := time.Now()
			dm.store.Range(func(key, value any) bool {
				if entry := value.(*domainEntry); now.After(entry.expiresAt) {
					dm.expire(key.(string), entry)
				}
				return true
			})
		}
	}
}
