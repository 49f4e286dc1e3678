package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/septapod/agentmapper/internal/cloud"
	"github.com/septapod/agentmapper/internal/cloudsync"
	"github.com/septapod/agentmapper/internal/kvstore"
	"github.com/septapod/agentmapper/internal/summary"
	"github.com/septapod/agentmapper/internal/workshop"
)

// memBackend is a minimal in-memory cloud.Backend.
type memBackend struct {
	mu   sync.Mutex
	orgs map[string]cloud.Snapshot
}

func (m *memBackend) CreateOrganization(_ context.Context,
	name string) (string, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	id := "org-" + name
	m.orgs[id] = cloud.Snapshot{OrgName: name}

	return id, nil
}

func (m *memBackend) PushSnapshot(_ context.Context, orgID string,
	snap cloud.Snapshot) error {

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orgs[orgID]; !ok {
		return cloud.ErrOrgNotFound
	}
	m.orgs[orgID] = snap.Clone()

	return nil
}

func (m *memBackend) PullSnapshot(_ context.Context,
	orgID string) (cloud.Snapshot, error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	snap, ok := m.orgs[orgID]
	if !ok {
		return cloud.Snapshot{}, cloud.ErrOrgNotFound
	}

	return snap.Clone(), nil
}

type testServer struct {
	srv   *Server
	http  *httptest.Server
	store *workshop.Store
	calls *atomic.Int32
}

// newTestServer wires a server. A nil backend means cloud sync is not
// configured; a nil summarizer means summaries are not configured.
func newTestServer(t *testing.T, backend cloud.Backend,
	summarizer summary.Summarizer) *testServer {

	t.Helper()

	ctx := context.Background()
	cfg := workshop.Config{}
	if backend != nil {
		cfg.Backend = backend
	}
	store := workshop.NewStore(ctx, cfg)

	calls := &atomic.Int32{}
	var counted summary.Summarizer
	if summarizer != nil {
		counted = summary.SummarizerFunc(func(ctx context.Context,
			req summary.Request) (summary.Response, error) {

			calls.Add(1)
			return summarizer.Summarize(ctx, req)
		})
	} else {
		counted = summary.SummarizerFunc(func(context.Context,
			summary.Request) (summary.Response, error) {

			return summary.Response{}, summary.ErrNotConfigured
		})
	}

	manager := summary.NewManager(
		summary.DefaultConfig(),
		summary.NewCache(kvstore.NewMemoryStore(0), nil),
		counted, nil,
	)

	coord := cloudsync.New(cloudsync.Config{
		Store:    store,
		Debounce: time.Hour,
	})
	coord.Start(ctx)

	s := NewServer(Config{
		Summarizer: summarizer,
		Insights:   manager,
		Store:      store,
		Sync:       coord,
	})
	hs := httptest.NewServer(s.Handler())

	t.Cleanup(func() {
		hs.Close()
		require.NoError(t, s.Shutdown(context.Background()))
		coord.Stop()
	})

	return &testServer{srv: s, http: hs, store: store, calls: calls}
}

func (ts *testServer) do(t *testing.T, method, path, body string) (int,
	[]byte) {

	t.Helper()

	req, err := http.NewRequest(
		method, ts.http.URL+path, strings.NewReader(body),
	)
	require.NoError(t, err)

	resp, err := ts.http.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, raw
}

func fixedSummarizer(text string) summary.Summarizer {
	return summary.SummarizerFunc(func(context.Context,
		summary.Request) (summary.Response, error) {

		return summary.Response{
			Summary:   text,
			Timestamp: "2024-01-01T00:00:00.000Z",
			Model:     "test",
		}, nil
	})
}

func TestInsightRoute(t *testing.T) {
	ts := newTestServer(t, nil, fixedSummarizer("Team agrees on **speed**."))

	body := `{"type":"exercise","id":"principles","data":{"p":["fast"]}}`
	code, raw := ts.do(t, http.MethodPost, "/api/v1/insights", body)
	require.Equal(t, http.StatusOK, code)

	var got InsightResponse
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, "Team agrees on **speed**.", got.Summary)
	require.Contains(t, got.HTML, "<strong>speed</strong>")
	require.Equal(t, "2024-01-01T00:00:00.000Z", got.GeneratedAt)
	require.False(t, got.WasCached)
	require.False(t, got.IsFallback)

	code, raw = ts.do(t, http.MethodPost, "/api/v1/insights", body)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(raw, &got))
	require.True(t, got.WasCached)
	require.EqualValues(t, 1, ts.calls.Load())

	// Clearing the cache forces a new call.
	code, _ = ts.do(t, http.MethodDelete, "/api/v1/insights/cache", "")
	require.Equal(t, http.StatusNoContent, code)
	_, raw = ts.do(t, http.MethodPost, "/api/v1/insights", body)
	require.NoError(t, json.Unmarshal(raw, &got))
	require.False(t, got.WasCached)
	require.EqualValues(t, 2, ts.calls.Load())

	// So does invalidating the single entry.
	code, _ = ts.do(t, http.MethodDelete,
		"/api/v1/insights/cache/exercise/principles", "")
	require.Equal(t, http.StatusNoContent, code)
	_, _ = ts.do(t, http.MethodPost, "/api/v1/insights", body)
	require.EqualValues(t, 3, ts.calls.Load())

	code, _ = ts.do(t, http.MethodDelete,
		"/api/v1/insights/cache/poem", "")
	require.Equal(t, http.StatusBadRequest, code)
}

func TestInsightRouteErrors(t *testing.T) {
	t.Run("not configured serves fallback", func(t *testing.T) {
		ts := newTestServer(t, nil, nil)

		code, raw := ts.do(t, http.MethodPost, "/api/v1/insights",
			`{"type":"workshop","data":{},"fallback":"Static tips"}`)
		require.Equal(t, http.StatusOK, code)

		var got InsightResponse
		require.NoError(t, json.Unmarshal(raw, &got))
		require.True(t, got.IsFallback)
		require.Equal(t, "Static tips", got.Summary)
		require.Contains(t, got.HTML, "Static tips")
	})

	t.Run("failure is a bad gateway", func(t *testing.T) {
		failing := summary.SummarizerFunc(func(context.Context,
			summary.Request) (summary.Response, error) {

			return summary.Response{}, errors.New("model overloaded")
		})
		ts := newTestServer(t, nil, failing)

		code, raw := ts.do(t, http.MethodPost, "/api/v1/insights",
			`{"type":"workshop","data":{}}`)
		require.Equal(t, http.StatusBadGateway, code)
		require.Contains(t, string(raw), "model overloaded")
		require.Contains(t, string(raw), DefaultFallback)
	})

	t.Run("bad requests", func(t *testing.T) {
		ts := newTestServer(t, nil, fixedSummarizer("x"))

		code, _ := ts.do(t, http.MethodPost, "/api/v1/insights",
			`{"type":"poem","data":{}}`)
		require.Equal(t, http.StatusBadRequest, code)

		code, _ = ts.do(t, http.MethodPost, "/api/v1/insights", `{`)
		require.Equal(t, http.StatusBadRequest, code)
	})
}

func TestStoreBackedInsights(t *testing.T) {
	var (
		mu   sync.Mutex
		reqs []summary.Request
	)
	rec := summary.SummarizerFunc(func(_ context.Context,
		req summary.Request) (summary.Response, error) {

		mu.Lock()
		reqs = append(reqs, req)
		mu.Unlock()

		return summary.Response{
			Summary:   "ok",
			Timestamp: "2024-01-01T00:00:00Z",
		}, nil
	})
	ts := newTestServer(t, nil, rec)

	code, _ := ts.do(t, http.MethodGet,
		"/api/v1/insights/exercise/roadmap", "")
	require.Equal(t, http.StatusNotFound, code)

	require.NoError(t, ts.store.PutRecord(
		context.Background(), "roadmap", json.RawMessage(`{"now":["a"]}`),
	))

	code, _ = ts.do(t, http.MethodGet,
		"/api/v1/insights/exercise/roadmap", "")
	require.Equal(t, http.StatusOK, code)

	code, _ = ts.do(t, http.MethodGet, "/api/v1/insights/session/3", "")
	require.Equal(t, http.StatusOK, code)

	code, _ = ts.do(t, http.MethodGet, "/api/v1/insights/session/9", "")
	require.Equal(t, http.StatusNotFound, code)

	code, _ = ts.do(t, http.MethodGet, "/api/v1/insights/session/x", "")
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = ts.do(t, http.MethodGet, "/api/v1/insights/workshop", "")
	require.Equal(t, http.StatusOK, code)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reqs, 3)

	require.Equal(t, summary.KindExercise, reqs[0].Type)
	require.Equal(t, "roadmap", reqs[0].ExerciseID)
	require.JSONEq(t, `{"now":["a"]}`, string(reqs[0].Data))

	require.Equal(t, summary.KindSession, reqs[1].Type)
	require.Equal(t, summary.SessionNumber{Value: 3, Valid: true},
		*reqs[1].SessionNumber)
	require.Contains(t, string(reqs[1].Data), `"roadmap"`)

	require.Equal(t, summary.KindWorkshop, reqs[2].Type)
}

func TestRecordRoutes(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	code, _ := ts.do(t, http.MethodPut, "/api/v1/records/icebreakers",
		`{ "q1" : "hi" }`)
	require.Equal(t, http.StatusNoContent, code)

	code, raw := ts.do(t, http.MethodGet, "/api/v1/records/icebreakers", "")
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"q1":"hi"}`, string(raw))

	code, _ = ts.do(t, http.MethodPut, "/api/v1/records/bad", `{nope`)
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = ts.do(t, http.MethodPut, "/api/v1/org", `{"name":"Acme"}`)
	require.Equal(t, http.StatusNoContent, code)

	code, raw = ts.do(t, http.MethodGet, "/api/v1/records", "")
	require.Equal(t, http.StatusOK, code)

	var list RecordsResponse
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Equal(t, "Acme", list.OrgName)
	require.EqualValues(t, 1, list.Revision)
	require.Len(t, list.Records, 1)

	code, _ = ts.do(t, http.MethodDelete, "/api/v1/records/icebreakers", "")
	require.Equal(t, http.StatusNoContent, code)
	code, _ = ts.do(t, http.MethodDelete, "/api/v1/records/icebreakers", "")
	require.Equal(t, http.StatusNotFound, code)
	code, _ = ts.do(t, http.MethodGet, "/api/v1/records/icebreakers", "")
	require.Equal(t, http.StatusNotFound, code)
}

func TestSyncRoutes(t *testing.T) {
	backend := &memBackend{orgs: map[string]cloud.Snapshot{
		"org-remote": {
			OrgName: "Remote",
			Records: map[string]json.RawMessage{
				"mvp-spec": json.RawMessage(`{"must":["login"]}`),
			},
		},
	}}
	ts := newTestServer(t, backend, nil)

	code, raw := ts.do(t, http.MethodPost, "/api/v1/sync/now", "")
	require.Equal(t, http.StatusConflict, code)
	require.Contains(t, string(raw), "not connected")

	code, _ = ts.do(t, http.MethodPost, "/api/v1/sync/load",
		`{"org_id":"org-missing"}`)
	require.Equal(t, http.StatusNotFound, code)

	code, _ = ts.do(t, http.MethodPost, "/api/v1/sync/load", `{}`)
	require.Equal(t, http.StatusBadRequest, code)

	code, raw = ts.do(t, http.MethodPost, "/api/v1/sync/load",
		`{"org_id":"org-remote"}`)
	require.Equal(t, http.StatusOK, code)

	var st SyncStatus
	require.NoError(t, json.Unmarshal(raw, &st))
	require.True(t, st.Configured)
	require.Equal(t, "Remote", st.OrgName)
	require.Equal(t, 1, st.Records)
	require.Equal(t, "org-remote", st.Sync.CloudOrgID)
	require.False(t, st.Sync.Dirty)

	// An edit schedules an auto push; a manual sync replaces it.
	code, _ = ts.do(t, http.MethodPut, "/api/v1/records/roadmap", `{}`)
	require.Equal(t, http.StatusNoContent, code)

	code, raw = ts.do(t, http.MethodGet, "/api/v1/sync", "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(raw, &st))
	require.True(t, st.Sync.Dirty)
	require.True(t, st.Pending)

	code, raw = ts.do(t, http.MethodPost, "/api/v1/sync/now", "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(raw, &st))
	require.False(t, st.Sync.Dirty)
	require.False(t, st.Pending)
	require.Equal(t, workshop.StatusIdle, st.Sync.Status)

	remote, err := backend.PullSnapshot(context.Background(), "org-remote")
	require.NoError(t, err)
	require.Len(t, remote.Records, 2)

	code, raw = ts.do(t, http.MethodPost, "/api/v1/sync/connect",
		`{"org_name":"Fresh"}`)
	require.Equal(t, http.StatusCreated, code)
	require.JSONEq(t, `{"id":"org-Fresh"}`, string(raw))

	code, raw = ts.do(t, http.MethodPost, "/api/v1/sync/disconnect", "")
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(raw, &st))
	require.Empty(t, st.Sync.CloudOrgID)
	require.False(t, st.Pending)
}

func TestSyncRoutesNotConfigured(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	code, raw := ts.do(t, http.MethodPost, "/api/v1/sync/connect",
		`{"org_name":"x"}`)
	require.Equal(t, http.StatusServiceUnavailable, code)

	var apiErr APIError
	require.NoError(t, json.Unmarshal(raw, &apiErr))
	require.True(t, apiErr.Fallback)

	code, _ = ts.do(t, http.MethodPost, "/api/v1/sync/load",
		`{"org_id":"x"}`)
	require.Equal(t, http.StatusServiceUnavailable, code)
}

func TestSummaryEndpointMounted(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	code, raw := ts.do(t, http.MethodPost, "/api/summary",
		`{"type":"workshop","data":{}}`)
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.JSONEq(t,
		`{"error":"AI summaries are not configured","fallback":true}`,
		string(raw))

	code, _ = ts.do(t, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, code)
}

func TestCloudHostMounted(t *testing.T) {
	ctx := context.Background()
	store := workshop.NewStore(ctx, workshop.Config{})
	coord := cloudsync.New(cloudsync.Config{Store: store})
	defer coord.Stop()

	host := cloud.NewHandler(&memBackend{
		orgs: make(map[string]cloud.Snapshot),
	}, "secret", nil)

	s := NewServer(Config{
		Insights: summary.NewManager(summary.DefaultConfig(),
			summary.NewCache(kvstore.NewMemoryStore(0), nil), nil, nil),
		Store:     store,
		Sync:      coord,
		CloudHost: host,
	})
	defer s.Shutdown(ctx)

	hs := httptest.NewServer(s.Handler())
	defer hs.Close()

	client := cloud.NewClient(hs.URL, "secret", hs.Client())
	id, err := client.CreateOrganization(ctx, "Hosted")
	require.NoError(t, err)
	require.Equal(t, "org-Hosted", id)

	bad := cloud.NewClient(hs.URL, "wrong", hs.Client())
	_, err = bad.CreateOrganization(ctx, "x")
	require.ErrorIs(t, err, cloud.ErrUnauthorized)
}

// wsFrame is a received websocket message with its payload left raw.
type wsFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readWS(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg wsFrame
	require.NoError(t, conn.ReadJSON(&msg))

	return msg
}

func TestWebSocketSyncState(t *testing.T) {
	ts := newTestServer(t, nil, nil)

	url := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Equal(t, WSMsgTypeConnected, readWS(t, conn).Type)

	initial := readWS(t, conn)
	require.Equal(t, WSMsgTypeSyncState, initial.Type)

	require.Eventually(t, func() bool {
		return ts.srv.hub.ClientCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, ts.store.PutRecord(
		context.Background(), "principles", json.RawMessage(`{"a":1}`),
	))

	update := readWS(t, conn)
	require.Equal(t, WSMsgTypeSyncState, update.Type)

	var st SyncStatus
	require.NoError(t, json.Unmarshal(update.Payload, &st))
	require.Equal(t, 1, st.Records)
	require.True(t, st.Sync.Dirty)

	require.NoError(t, conn.WriteMessage(
		websocket.TextMessage, []byte(`{"type":"ping"}`),
	))
	require.Equal(t, WSMsgTypePong, readWS(t, conn).Type)

	require.NoError(t, conn.WriteMessage(
		websocket.TextMessage, []byte(`{"type":"shout"}`),
	))
	require.Equal(t, WSMsgTypeError, readWS(t, conn).Type)

	require.NoError(t, conn.WriteMessage(
		websocket.TextMessage, bytes.Repeat([]byte("x"), 10),
	))
	require.Equal(t, WSMsgTypeError, readWS(t, conn).Type)
}
