package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/septapod/agentmapper/internal/cloud"
	"github.com/septapod/agentmapper/internal/config"
	"github.com/septapod/agentmapper/internal/insight"
	"github.com/septapod/agentmapper/internal/summary"
)

func testConfig(t *testing.T, set map[string]any) *config.Config {
	t.Helper()

	v := config.New()
	v.Set("data_dir", t.TempDir())
	for k, val := range set {
		v.Set(k, val)
	}

	cfg, err := config.Load(v, "")
	require.NoError(t, err)

	return cfg
}

func TestNewSummarizer(t *testing.T) {
	t.Run("endpoint", func(t *testing.T) {
		cfg := testConfig(t, map[string]any{
			"summary.endpoint": "http://127.0.0.1:1/api/summary",
		})
		require.IsType(t, &summary.HTTPClient{},
			newSummarizer(cfg, nil))
	})

	t.Run("no key", func(t *testing.T) {
		cfg := testConfig(t, map[string]any{"summary.api_key": ""})

		s := newSummarizer(cfg, nil)
		svc, ok := s.(*insight.Service)
		require.True(t, ok)
		require.False(t, svc.Configured())

		_, err := s.Summarize(context.Background(), summary.BuildRequest(
			summary.KindWorkshop, "", json.RawMessage(`{}`),
		))
		require.ErrorIs(t, err, summary.ErrNotConfigured)
	})

	t.Run("key", func(t *testing.T) {
		cfg := testConfig(t, map[string]any{"summary.api_key": "sk"})

		svc, ok := newSummarizer(cfg, nil).(*insight.Service)
		require.True(t, ok)
		require.True(t, svc.Configured())
	})
}

// TestDaemonHostsCloud wires a daemon that hosts its own cloud copy and
// checks that the store syncs through it.
func TestDaemonHostsCloud(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, map[string]any{
		"summary.api_key":   "",
		"cloud.serve":       true,
		"cloud.serve_token": "secret",
	})

	d, err := newDaemon(ctx, cfg, io.Discard)
	require.NoError(t, err)
	defer d.close()

	require.NoError(t, d.start(ctx))
	require.NotNil(t, d.cloudHost)
	require.Nil(t, d.prober)
	require.True(t, d.store.Configured())
	require.True(t, d.sync.Configured())

	orgID, err := d.sync.ConnectToCloud(ctx, "Acme")
	require.NoError(t, err)
	require.Equal(t, orgID, d.store.SyncState().CloudOrgID)

	err = d.store.PutRecord(ctx, "1-1", json.RawMessage(`{"q":"a"}`))
	require.NoError(t, err)
	require.NoError(t, d.sync.SyncNow(ctx))
	require.False(t, d.store.SyncState().Dirty)

	// The hosted API answers with the pushed snapshot.
	req := httptest.NewRequest(http.MethodGet,
		cloud.APIPrefix+"/orgs/"+orgID+"/snapshot", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	d.cloudHost.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "1-1")
}

func TestDaemonRejectsBadCloudURL(t *testing.T) {
	cfg := testConfig(t, map[string]any{
		"cloud.url":   "://nope",
		"cloud.token": "t",
	})

	_, err := newDaemon(context.Background(), cfg, io.Discard)
	require.ErrorContains(t, err, "cloud.url")
}
