package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Manager serves summaries from the cache and asks the Summarizer on a
// miss.
type Manager struct {
	cfg        Config
	cache      *Cache
	summarizer Summarizer
	log        *slog.Logger
}

// NewManager creates a Manager. A nil logger means slog.Default().
func NewManager(cfg Config, cache *Cache, summarizer Summarizer,
	log *slog.Logger) *Manager {

	if log == nil {
		log = slog.Default()
	}

	return &Manager{
		cfg:        cfg,
		cache:      cache,
		summarizer: summarizer,
		log:        log.With("component", "summary"),
	}
}

// Cache exposes the underlying cache for invalidation.
func (m *Manager) Cache() *Cache {
	return m.cache
}

// FetchSummary returns the summary of data for kind/id. Unless forceRefresh
// is set a valid cache entry is returned as is. Otherwise the Summarizer is
// called and its answer cached.
//
// The result is None, with a nil error, when no summarisation backend is
// configured. Any other failure is returned.
func (m *Manager) FetchSummary(ctx context.Context, kind Kind, id string,
	data json.RawMessage, forceRefresh bool) (fn.Option[Result], error) {

	if !forceRefresh {
		hit := m.cache.Get(ctx, kind, id, data)
		if hit.IsSome() {
			c := hit.UnwrapOr(Cached{})
			return fn.Some(Result{
				SummaryText: c.SummaryText,
				GeneratedAt: c.GeneratedAt,
				WasCached:   true,
			}), nil
		}
	}

	callCtx := ctx
	if m.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, m.cfg.RequestTimeout)
		defer cancel()
	}

	resp, err := m.summarizer.Summarize(
		callCtx, BuildRequest(kind, id, data),
	)
	switch {
	case errors.Is(err, ErrNotConfigured):
		m.log.DebugContext(ctx, "Summaries not configured",
			"kind", kind, "id", id)
		return fn.None[Result](), nil

	case err != nil:
		return fn.None[Result](), fmt.Errorf("summarize %s %q: %w",
			kind, id, err)
	}

	generatedAt, err := ParseTimestamp(resp.Timestamp)
	if err != nil {
		m.log.WarnContext(ctx, "Summary endpoint sent bad timestamp",
			"timestamp", resp.Timestamp, "error", err)
		generatedAt = m.cache.now()
	}

	m.cache.Set(
		ctx, kind, id, data, resp.Summary, generatedAt, m.cfg.CacheTTL,
	)

	return fn.Some(Result{
		SummaryText: resp.Summary,
		GeneratedAt: generatedAt,
	}), nil
}

// Regenerate drops the cached entry for kind/id and fetches a fresh
// summary.
func (m *Manager) Regenerate(ctx context.Context, kind Kind, id string,
	data json.RawMessage) (fn.Option[Result], error) {

	m.cache.Invalidate(ctx, kind, id)

	return m.FetchSummary(ctx, kind, id, data, true)
}

// Peek returns the cached summary without ever calling the Summarizer.
func (m *Manager) Peek(ctx context.Context, kind Kind, id string,
	data json.RawMessage) fn.Option[Cached] {

	return m.cache.Get(ctx, kind, id, data)
}
