// Package cache provides a bounded in-memory result cache with LRU
// eviction and TTL expiry, used by analysis strategies to avoid redundant
// provider calls.
package cache

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/quarrylabs/quarry/pkg/config"
	"github.com/quarrylabs/quarry/pkg/metrics"
)

// Entry is one cached value with its bookkeeping.
type Entry struct {
	Key            string
	Value          any
	InsertedAtMs   int64
	LastAccessedMs int64
	AccessCount    int64
	TTL            time.Duration
	ApproxBytes    int64
}

func (e *Entry) expired(now time.Time) bool {
	return now.Sub(time.UnixMilli(e.InsertedAtMs)) > e.TTL
}

// Stats is a snapshot of cache effectiveness counters.
type Stats struct {
	Entries     int     `json:"entries"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Evictions   int64   `json:"evictions"`
	Expirations int64   `json:"expirations"`
	ApproxBytes int64   `json:"approx_bytes"`
	HitRate     float64 `json:"hit_rate"`
}

// Cache is a bounded LRU+TTL store. One mutex protects the list and map;
// no I/O happens under the lock.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front = most recently used

	maxEntries int
	maxBytes   int64
	defaultTTL time.Duration
	interval   time.Duration

	curBytes    int64
	hits        int64
	misses      int64
	evictions   int64
	expirations int64

	metrics *metrics.Metrics

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a cache from configuration.
func New(cfg *config.CacheConfig) *Cache {
	return &Cache{
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
		maxEntries: cfg.MaxEntries,
		maxBytes:   cfg.MaxBytes,
		defaultTTL: cfg.DefaultTTL,
		interval:   cfg.CleanupInterval,
	}
}

// SetMetrics mirrors the hit/miss/eviction counters into Prometheus. A nil
// handle (the default) keeps counting internal only.
func (c *Cache) SetMetrics(m *metrics.Metrics) {
	c.metrics = m
}

// Set inserts or replaces a value. ttl == 0 applies the configured default.
// When at capacity, the least-recently-accessed entries are evicted.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := time.Now()
	size := approxSize(value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		old := el.Value.(*Entry)
		c.curBytes -= old.ApproxBytes
		old.Value = value
		old.InsertedAtMs = now.UnixMilli()
		old.LastAccessedMs = now.UnixMilli()
		old.TTL = ttl
		old.ApproxBytes = size
		c.curBytes += size
		c.lru.MoveToFront(el)
	} else {
		entry := &Entry{
			Key:            key,
			Value:          value,
			InsertedAtMs:   now.UnixMilli(),
			LastAccessedMs: now.UnixMilli(),
			TTL:            ttl,
			ApproxBytes:    size,
		}
		c.entries[key] = c.lru.PushFront(entry)
		c.curBytes += size
	}

	c.evictLocked()
}

// Get returns the cached value, or (nil, false) when absent or expired.
// Expired entries are removed on access.
func (c *Cache) Get(key string) (any, bool) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.missLocked()
		return nil, false
	}
	entry := el.Value.(*Entry)
	if entry.expired(now) {
		c.removeLocked(el)
		c.expirations++
		c.missLocked()
		return nil, false
	}

	entry.LastAccessedMs = now.UnixMilli()
	entry.AccessCount++
	c.lru.MoveToFront(el)
	c.hits++
	if c.metrics != nil {
		c.metrics.CacheHits.Inc()
	}
	return entry.Value, true
}

// Has reports whether the key is present and unexpired, without touching
// recency or hit counters.
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return false
	}
	return !el.Value.(*Entry).expired(time.Now())
}

// Delete removes the key. Returns true when an entry was present.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeLocked(el)
	return true
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.lru.Init()
	c.curBytes = 0
}

// Len returns the number of entries currently stored.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Cleanup sweeps expired entries. Runs on the interval loop and may be
// called directly.
func (c *Cache) Cleanup() int {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.lru.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*Entry).expired(now) {
			c.removeLocked(el)
			c.expirations++
			removed++
		}
		el = prev
	}
	return removed
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Entries:     len(c.entries),
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		ApproxBytes: c.curBytes,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// Start launches the background cleanup loop. Calling Start on a running
// cache is a no-op.
func (c *Cache) Start(ctx context.Context) {
	if c.cancel != nil {
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := c.Cleanup(); removed > 0 {
					slog.Debug("Cache cleanup removed expired entries", "count", removed)
				}
			}
		}
	}()
}

// Stop shuts down the cleanup loop and waits for it to finish.
func (c *Cache) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
	c.cancel = nil
	c.done = nil
}

// evictLocked enforces the entry and byte bounds by evicting from the LRU
// tail. Caller holds c.mu.
func (c *Cache) evictLocked() {
	for (c.maxEntries > 0 && len(c.entries) > c.maxEntries) ||
		(c.maxBytes > 0 && c.curBytes > c.maxBytes) {
		back := c.lru.Back()
		if back == nil {
			return
		}
		c.removeLocked(back)
		c.evictions++
		if c.metrics != nil {
			c.metrics.CacheEvictions.Inc()
		}
	}
}

func (c *Cache) missLocked() {
	c.misses++
	if c.metrics != nil {
		c.metrics.CacheMisses.Inc()
	}
}

// removeLocked unlinks an element from both structures. Caller holds c.mu.
func (c *Cache) removeLocked(el *list.Element) {
	entry := el.Value.(*Entry)
	delete(c.entries, entry.Key)
	c.lru.Remove(el)
	c.curBytes -= entry.ApproxBytes
}
