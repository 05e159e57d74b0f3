package recurrence

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"
	"time"
)

// CacheEntry represents a cached preview result
type CacheEntry struct {
	Result     []Occurrence
	ExpiresAt  time.Time
	AccessedAt time.Time
}

// PreviewCache provides caching for preview expansion results
type PreviewCache struct {
	entries         map[string]*CacheEntry
	mutex           sync.RWMutex
	ttl             time.Duration
	maxEntries      int
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	closeOnce       sync.Once
}

// CacheConfig holds configuration for the preview cache
type CacheConfig struct {
	TTL             time.Duration // How long entries stay valid
	MaxEntries      int           // Maximum number of entries before cleanup
	CleanupInterval time.Duration // How often to run cleanup
}

// DefaultCacheConfig provides sensible defaults for preview caching
var DefaultCacheConfig = CacheConfig{
	TTL:             15 * time.Minute,
	MaxEntries:      1000,
	CleanupInterval: 5 * time.Minute,
}

// NewPreviewCache creates a new preview cache with the given configuration
func NewPreviewCache(config CacheConfig) *PreviewCache {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultCacheConfig.CleanupInterval
	}
	cache := &PreviewCache{
		entries:         make(map[string]*CacheEntry),
		ttl:             config.TTL,
		maxEntries:      config.MaxEntries,
		cleanupInterval: config.CleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	go cache.cleanupLoop()

	return cache
}

// generateCacheKey hashes every input that influences a preview
func (c *PreviewCache) generateCacheKey(start time.Time, rule Rule, count int) string {
	hasher := sha256.New()

	// each field is tagged and terminated by ";"
	fmt.Fprintf(hasher, "start=%s;loc=%s;", start.Format(time.RFC3339Nano), start.Location())
	fmt.Fprintf(hasher, "type=%s;interval=%d;count=%d;", rule.Type, rule.Interval, count)

	if dow, ok := rule.DayOfWeek.Get(); ok {
		fmt.Fprintf(hasher, "dow=%d;", int(dow))
	}
	if dom, ok := rule.DayOfMonth.Get(); ok {
		fmt.Fprintf(hasher, "dom=%d;", dom)
	}
	if end, ok := rule.EndDate.Get(); ok {
		fmt.Fprintf(hasher, "end=%s;", end.Format(time.RFC3339Nano))
	}

	return fmt.Sprintf("%x", hasher.Sum(nil))
}

// Get retrieves a cached result if it exists and hasn't expired
func (c *PreviewCache) Get(start time.Time, rule Rule, count int) ([]Occurrence, bool) {
	key := c.generateCacheKey(start, rule, count)

	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		return nil, false
	}

	now := time.Now()
	if now.After(entry.ExpiresAt) {
		delete(c.entries, key)
		return nil, false
	}

	entry.AccessedAt = now
	return entry.Result, true
}

// Set stores a result in the cache
func (c *PreviewCache) Set(start time.Time, rule Rule, count int, result []Occurrence) {
	key := c.generateCacheKey(start, rule, count)
	now := time.Now()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries[key] = &CacheEntry{
		Result:     result,
		ExpiresAt:  now.Add(c.ttl),
		AccessedAt: now,
	}

	if c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		c.cleanup()
	}
}

// cleanup removes expired entries, then least recently accessed ones while
// over the limit. Caller must hold the write lock.
func (c *PreviewCache) cleanup() {
	now := time.Now()

	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
		}
	}

	if c.maxEntries <= 0 || len(c.entries) <= c.maxEntries {
		return
	}

	type keyAccess struct {
		key        string
		accessedAt time.Time
	}
	keys := make([]keyAccess, 0, len(c.entries))
	for key, entry := range c.entries {
		keys = append(keys, keyAccess{key: key, accessedAt: entry.AccessedAt})
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].accessedAt.Before(keys[j].accessedAt)
	})

	excess := len(c.entries) - c.maxEntries
	for i := 0; i < excess; i++ {
		delete(c.entries, keys[i].key)
	}
}

// cleanupLoop runs periodic cleanup
func (c *PreviewCache) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mutex.Lock()
			c.cleanup()
			c.mutex.Unlock()
		case <-c.stopCleanup:
			return
		}
	}
}

// Close stops the cleanup goroutine and clears the cache
func (c *PreviewCache) Close() {
	c.closeOnce.Do(func() {
		close(c.stopCleanup)
	})
	c.mutex.Lock()
	c.entries = make(map[string]*CacheEntry)
	c.mutex.Unlock()
}

// Stats returns cache statistics
func (c *PreviewCache) Stats() CacheStats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	expired := 0
	now := time.Now()
	for _, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			expired++
		}
	}

	return CacheStats{
		TotalEntries:   len(c.entries),
		ExpiredEntries: expired,
		ActiveEntries:  len(c.entries) - expired,
	}
}

// CacheStats provides information about cache contents
type CacheStats struct {
	TotalEntries   int
	ExpiredEntries int
	ActiveEntries  int
}
