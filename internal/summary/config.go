package summary

import "time"

const (
	// DefaultCacheTTL is how long a generated summary may be reused.
	DefaultCacheTTL = 24 * time.Hour

	// DefaultRequestTimeout bounds a single remote summary call.
	DefaultRequestTimeout = 60 * time.Second

	// KeyPrefix marks every cache key this package owns in the shared
	// key-value store.
	KeyPrefix = "ai-summary-"
)

// Config holds the cache manager settings.
type Config struct {
	// CacheTTL is the lifetime of a cache entry.
	CacheTTL time.Duration

	// RequestTimeout bounds each Summarize call. Zero means no extra
	// deadline beyond the caller's.
	RequestTimeout time.Duration
}

// DefaultConfig returns the default cache manager settings.
func DefaultConfig() Config {
	return Config{
		CacheTTL:       DefaultCacheTTL,
		RequestTimeout: DefaultRequestTimeout,
	}
}

// CacheKey returns the store key for kind and id. An empty id is the single
// shared slot for the kind.
func CacheKey(kind Kind, id string) string {
	if id == "" {
		return KeyPrefix + string(kind)
	}

	return KeyPrefix + string(kind) + "-" + id
}
