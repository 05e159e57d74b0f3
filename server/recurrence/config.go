package recurrence

import (
	"time"
)

// EngineConfig holds configuration options for the recurrence engine
type EngineConfig struct {
	// Cache configuration
	CacheEnabled bool
	CacheConfig  CacheConfig

	// Preview expansion limits
	Preview PreviewOptions
}

// DefaultEngineConfig provides sensible defaults for production use
var DefaultEngineConfig = EngineConfig{
	CacheEnabled: true,
	CacheConfig:  DefaultCacheConfig,
	Preview:      DefaultPreviewOptions,
}

// LowMemoryConfig keeps fewer cached previews for constrained deployments
var LowMemoryConfig = EngineConfig{
	CacheEnabled: true,
	CacheConfig: CacheConfig{
		TTL:             5 * time.Minute,
		MaxEntries:      100,
		CleanupInterval: 2 * time.Minute,
	},
	Preview: PreviewOptions{
		MaxOccurrences: 24,
		MaxTimeSpan:    365 * 24 * time.Hour,
	},
}

// DisabledCacheConfig turns off caching entirely
var DisabledCacheConfig = EngineConfig{
	CacheEnabled: false,
	CacheConfig:  CacheConfig{}, // Not used
	Preview:      DefaultPreviewOptions,
}

// NewEngineWithConfig creates a new recurrence engine with custom configuration
func NewEngineWithConfig(config EngineConfig) *Engine {
	var cache *PreviewCache
	if config.CacheEnabled {
		cache = NewPreviewCache(config.CacheConfig)
	}

	return &Engine{
		cache:  cache,
		config: config,
	}
}
