package cloud

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/septapod/agentmapper/internal/db"
)

func newSQLBackend(t *testing.T) *SQLBackend {
	t.Helper()

	base, err := db.Open(filepath.Join(t.TempDir(), "cloud.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, base.Close())
	})

	return NewSQLBackend(base, nil)
}

// backendSuite runs the Backend contract against b.
func backendSuite(t *testing.T, b Backend) {
	ctx := context.Background()

	id, err := b.CreateOrganization(ctx, "Acme")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// Nothing pushed yet.
	snap, err := b.PullSnapshot(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Acme", snap.OrgName)
	require.Empty(t, snap.Records)
	require.NotNil(t, snap.Records)

	pushed := Snapshot{
		OrgName: "Acme",
		Records: map[string]json.RawMessage{
			"icebreakers": json.RawMessage(`{"answers":["hi"]}`),
			"roadmap":     json.RawMessage(`[1,2]`),
		},
		Revision: 7,
		PushedAt: time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC),
	}
	require.NoError(t, b.PushSnapshot(ctx, id, pushed))

	snap, err = b.PullSnapshot(ctx, id)
	require.NoError(t, err)
	require.Equal(t, pushed.Revision, snap.Revision)
	require.True(t, pushed.PushedAt.Equal(snap.PushedAt))
	require.Len(t, snap.Records, 2)
	require.JSONEq(t, `{"answers":["hi"]}`,
		string(snap.Records["icebreakers"]))

	// A second push replaces the whole set.
	pushed.Records = map[string]json.RawMessage{
		"roadmap": json.RawMessage(`[3]`),
	}
	pushed.Revision = 8
	require.NoError(t, b.PushSnapshot(ctx, id, pushed))

	snap, err = b.PullSnapshot(ctx, id)
	require.NoError(t, err)
	require.Len(t, snap.Records, 1)
	require.EqualValues(t, 8, snap.Revision)

	_, err = b.PullSnapshot(ctx, "missing")
	require.ErrorIs(t, err, ErrOrgNotFound)

	err = b.PushSnapshot(ctx, "missing", pushed)
	require.ErrorIs(t, err, ErrOrgNotFound)
}

func TestSQLBackend(t *testing.T) {
	backendSuite(t, newSQLBackend(t))
}

func TestClientAgainstHandler(t *testing.T) {
	srv := httptest.NewServer(NewHandler(newSQLBackend(t), "s3cret", nil))
	defer srv.Close()

	backendSuite(t, NewClient(srv.URL+"/", "s3cret", srv.Client()))
}

func TestClientUnauthorized(t *testing.T) {
	srv := httptest.NewServer(NewHandler(newSQLBackend(t), "s3cret", nil))
	defer srv.Close()

	ctx := context.Background()
	for _, token := range []string{"", "wrong"} {
		c := NewClient(srv.URL, token, srv.Client())
		_, err := c.CreateOrganization(ctx, "Acme")
		require.ErrorIs(t, err, ErrUnauthorized)
	}
}

func TestHandlerRejectsBadInput(t *testing.T) {
	h := NewHandler(newSQLBackend(t), "tok", nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"empty name", http.MethodPost, "/orgs", `{"name":"  "}`,
			http.StatusBadRequest},
		{"bad json", http.MethodPost, "/orgs", `{`,
			http.StatusBadRequest},
		{"bad snapshot", http.MethodPut, "/orgs/x/snapshot", `[]`,
			http.StatusBadRequest},
		{"unknown route", http.MethodGet, "/orgs", ``,
			http.StatusMethodNotAllowed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(
				tc.method, APIPrefix+tc.path,
				strings.NewReader(tc.body),
			)
			req.Header.Set("Authorization", "Bearer tok")
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)
			require.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			writeError(w, http.StatusBadGateway, "upstream down")
		},
	))
	defer srv.Close()

	c := NewClient(srv.URL, "t", srv.Client())
	err := c.PushSnapshot(context.Background(), "org", Snapshot{})

	var se *StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusBadGateway, se.Status)
	require.Equal(t, "upstream down", se.Message)
}
