package summary

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/septapod/agentmapper/internal/kvstore"
)

// entry is the persisted form of a cached summary.
type entry struct {
	Summary   string `json:"summary"`
	Timestamp string `json:"timestamp"`
	DataHash  string `json:"dataHash"`
	ExpiresAt int64  `json:"expiresAt"`
}

// Cache stores generated summaries in the key-value store, keyed by kind and
// id and validated against a fingerprint of the input. Storage faults never
// escape: a failed read is a miss and a failed write is dropped.
type Cache struct {
	store kvstore.Store
	log   *slog.Logger
	now   func() time.Time
}

// NewCache returns a Cache over store. A nil logger means slog.Default().
func NewCache(store kvstore.Store, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}

	return &Cache{
		store: store,
		log:   log.With("component", "summary_cache"),
		now:   time.Now,
	}
}

// Get returns the cached summary for kind/id if it has not expired and was
// generated from data. A stale, mismatched or unreadable entry is deleted.
func (c *Cache) Get(ctx context.Context, kind Kind, id string,
	data any) fn.Option[Cached] {

	key := CacheKey(kind, id)

	raw, err := c.store.Get(ctx, key)
	switch {
	case errors.Is(err, kvstore.ErrNotFound):
		return fn.None[Cached]()

	case err != nil:
		c.log.DebugContext(ctx, "Cache read failed", "key", key,
			"error", err)
		return fn.None[Cached]()
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.log.DebugContext(ctx, "Dropping corrupt cache entry",
			"key", key, "error", err)
		c.remove(ctx, key)

		return fn.None[Cached]()
	}

	if c.now().UnixMilli() >= e.ExpiresAt {
		c.remove(ctx, key)
		return fn.None[Cached]()
	}

	hash, err := Fingerprint(data)
	if err != nil {
		c.log.DebugContext(ctx, "Cannot fingerprint payload",
			"key", key, "error", err)
		return fn.None[Cached]()
	}
	if hash != e.DataHash {
		c.remove(ctx, key)
		return fn.None[Cached]()
	}

	generatedAt, err := ParseTimestamp(e.Timestamp)
	if err != nil {
		c.log.DebugContext(ctx, "Dropping cache entry with bad "+
			"timestamp", "key", key, "error", err)
		c.remove(ctx, key)

		return fn.None[Cached]()
	}

	return fn.Some(Cached{
		SummaryText: e.Summary,
		GeneratedAt: generatedAt,
	})
}

// Set stores text as the summary of data under kind/id, replacing whatever
// was there. The entry expires ttl after now; ttl <= 0 means
// DefaultCacheTTL.
func (c *Cache) Set(ctx context.Context, kind Kind, id string, data any,
	text string, generatedAt time.Time, ttl time.Duration) {

	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	key := CacheKey(kind, id)

	hash, err := Fingerprint(data)
	if err != nil {
		c.log.DebugContext(ctx, "Not caching unserializable payload",
			"key", key, "error", err)
		return
	}

	raw, err := json.Marshal(entry{
		Summary:   text,
		Timestamp: FormatTimestamp(generatedAt),
		DataHash:  hash,
		ExpiresAt: c.now().Add(ttl).UnixMilli(),
	})
	if err != nil {
		c.log.DebugContext(ctx, "Cannot encode cache entry",
			"key", key, "error", err)
		return
	}

	if err := c.store.Set(ctx, key, raw); err != nil {
		c.log.DebugContext(ctx, "Cache write failed", "key", key,
			"error", err)
	}
}

// Invalidate removes the entry for kind/id.
func (c *Cache) Invalidate(ctx context.Context, kind Kind, id string) {
	c.remove(ctx, CacheKey(kind, id))
}

// InvalidateAll removes every entry under KeyPrefix and nothing else.
func (c *Cache) InvalidateAll(ctx context.Context) {
	keys, err := c.store.Keys(ctx, KeyPrefix)
	if err != nil {
		c.log.DebugContext(ctx, "Cannot list cache keys", "error", err)
		return
	}

	for _, key := range keys {
		c.remove(ctx, key)
	}
}

func (c *Cache) remove(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		c.log.DebugContext(ctx, "Cache delete failed", "key", key,
			"error", err)
	}
}
