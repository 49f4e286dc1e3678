package summary

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/septapod/agentmapper/internal/kvstore"
)

// countingSummarizer records calls and answers with a fixed response.
type countingSummarizer struct {
	calls atomic.Int32
	last  atomic.Pointer[Request]
	resp  Response
	err   error
}

func (s *countingSummarizer) Summarize(_ context.Context,
	req Request) (Response, error) {

	s.calls.Add(1)
	s.last.Store(&req)

	return s.resp, s.err
}

func newTestManager(s Summarizer) (*Manager, *Cache) {
	cache := NewCache(kvstore.NewMemoryStore(0), nil)
	return NewManager(DefaultConfig(), cache, s, nil), cache
}

// TestFetchSummaryMissThenHit runs the miss, populate, hit scenario.
func TestFetchSummaryMissThenHit(t *testing.T) {
	ctx := context.Background()
	s := &countingSummarizer{resp: Response{
		Summary:   "X",
		Timestamp: "2024-01-01T00:00:00Z",
		Model:     "m",
	}}
	m, cache := newTestManager(s)
	data := json.RawMessage(`{"answers":{"q1":"yes"}}`)

	res, err := m.FetchSummary(ctx, KindExercise, "ex1", data, false)
	require.NoError(t, err)
	require.True(t, res.IsSome())

	got := res.UnwrapOr(Result{})
	require.Equal(t, "X", got.SummaryText)
	require.False(t, got.WasCached)
	require.True(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).
		Equal(got.GeneratedAt))

	hit := cache.Get(ctx, KindExercise, "ex1", data)
	require.True(t, hit.IsSome())
	require.Equal(t, "X", hit.UnwrapOr(Cached{}).SummaryText)

	// The second fetch is served from the cache.
	res, err = m.FetchSummary(ctx, KindExercise, "ex1", data, false)
	require.NoError(t, err)
	require.True(t, res.UnwrapOr(Result{}).WasCached)
	require.EqualValues(t, 1, s.calls.Load())

	req := s.last.Load()
	require.Equal(t, KindExercise, req.Type)
	require.Equal(t, "ex1", req.ExerciseID)
	require.Nil(t, req.SessionNumber)
}

// TestFetchSummaryForceRefresh checks that a forced fetch bypasses a valid
// hit and overwrites it.
func TestFetchSummaryForceRefresh(t *testing.T) {
	ctx := context.Background()
	s := &countingSummarizer{resp: Response{
		Summary:   "fresh",
		Timestamp: "2024-06-01T10:00:00.000Z",
	}}
	m, cache := newTestManager(s)
	data := json.RawMessage(`{}`)

	cache.Set(ctx, KindWorkshop, "", data, "old", time.Now(), 0)

	res, err := m.FetchSummary(ctx, KindWorkshop, "", data, true)
	require.NoError(t, err)
	require.Equal(t, "fresh", res.UnwrapOr(Result{}).SummaryText)
	require.False(t, res.UnwrapOr(Result{}).WasCached)
	require.EqualValues(t, 1, s.calls.Load())

	require.Equal(t, "fresh",
		cache.Get(ctx, KindWorkshop, "", data).UnwrapOr(Cached{}).
			SummaryText)
}

// TestFetchSummaryNotConfigured checks that a missing backend yields an
// absent result and no error, and caches nothing.
func TestFetchSummaryNotConfigured(t *testing.T) {
	ctx := context.Background()
	s := &countingSummarizer{err: ErrNotConfigured}
	m, cache := newTestManager(s)
	data := json.RawMessage(`{"a":1}`)

	for _, force := range []bool{false, true} {
		res, err := m.FetchSummary(ctx, KindSession, "1", data, force)
		require.NoError(t, err)
		require.True(t, res.IsNone())
	}

	require.True(t, cache.Get(ctx, KindSession, "1", data).IsNone())

	// Wrapped sentinels count too.
	s.err = errors.Join(errors.New("no key"), ErrNotConfigured)
	res, err := m.FetchSummary(ctx, KindSession, "1", data, false)
	require.NoError(t, err)
	require.True(t, res.IsNone())
}

// TestFetchSummaryRemoteFailure checks that other failures surface.
func TestFetchSummaryRemoteFailure(t *testing.T) {
	ctx := context.Background()
	s := &countingSummarizer{err: &RemoteError{
		Status:  500,
		Message: "model overloaded",
	}}
	m, cache := newTestManager(s)
	data := json.RawMessage(`{}`)

	res, err := m.FetchSummary(ctx, KindExercise, "e", data, false)
	require.True(t, res.IsNone())

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	require.Equal(t, "model overloaded", remote.Message)

	require.True(t, cache.Get(ctx, KindExercise, "e", data).IsNone())
}

// TestFetchSummarySessionRequest checks the request shaping for sessions.
func TestFetchSummarySessionRequest(t *testing.T) {
	ctx := context.Background()
	s := &countingSummarizer{resp: Response{
		Summary:   "S",
		Timestamp: "2024-01-01T00:00:00Z",
	}}
	m, _ := newTestManager(s)

	_, err := m.FetchSummary(
		ctx, KindSession, "second", json.RawMessage(`{}`), false,
	)
	require.NoError(t, err)

	req := s.last.Load()
	require.NotNil(t, req.SessionNumber)
	require.False(t, req.SessionNumber.Valid)
	require.Empty(t, req.ExerciseID)
}

// TestFetchSummaryBadTimestamp checks that an unparsable server timestamp
// falls back to the local clock instead of failing the fetch.
func TestFetchSummaryBadTimestamp(t *testing.T) {
	ctx := context.Background()
	s := &countingSummarizer{resp: Response{
		Summary:   "T",
		Timestamp: "sometime",
	}}
	m, cache := newTestManager(s)

	fixed := time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return fixed }

	res, err := m.FetchSummary(
		ctx, KindWorkshop, "", json.RawMessage(`{}`), false,
	)
	require.NoError(t, err)
	require.True(t, fixed.Equal(res.UnwrapOr(Result{}).GeneratedAt))
}

// TestFetchSummaryTimeout checks that the request timeout bounds the call.
func TestFetchSummaryTimeout(t *testing.T) {
	ctx := context.Background()
	slow := SummarizerFunc(func(ctx context.Context,
		_ Request) (Response, error) {

		<-ctx.Done()
		return Response{}, ctx.Err()
	})

	cfg := DefaultConfig()
	cfg.RequestTimeout = 10 * time.Millisecond
	m := NewManager(cfg, NewCache(kvstore.NewMemoryStore(0), nil), slow, nil)

	_, err := m.FetchSummary(
		ctx, KindWorkshop, "", json.RawMessage(`{}`), false,
	)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestRegenerate checks that regenerate always calls out again.
func TestRegenerate(t *testing.T) {
	ctx := context.Background()
	s := &countingSummarizer{resp: Response{
		Summary:   "R",
		Timestamp: "2024-01-01T00:00:00Z",
	}}
	m, _ := newTestManager(s)
	data := json.RawMessage(`{"x":true}`)

	_, err := m.FetchSummary(ctx, KindExercise, "e", data, false)
	require.NoError(t, err)
	require.True(t, m.Peek(ctx, KindExercise, "e", data).IsSome())

	res, err := m.Regenerate(ctx, KindExercise, "e", data)
	require.NoError(t, err)
	require.False(t, res.UnwrapOr(Result{}).WasCached)
	require.EqualValues(t, 2, s.calls.Load())
}
