package insight

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/septapod/agentmapper/internal/summary"
)

func TestHandler(t *testing.T) {
	ok := summary.SummarizerFunc(func(_ context.Context,
		req summary.Request) (summary.Response, error) {

		return summary.Response{
			Summary:   "about " + string(req.Type),
			Timestamp: "2024-01-01T00:00:00.000Z",
			Model:     "m",
		}, nil
	})
	failing := func(err error) summary.Summarizer {
		return summary.SummarizerFunc(func(context.Context,
			summary.Request) (summary.Response, error) {

			return summary.Response{}, err
		})
	}

	tests := []struct {
		name       string
		summarizer summary.Summarizer
		method     string
		body       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "success",
			summarizer: ok,
			method:     http.MethodPost,
			body:       `{"type":"workshop","data":{}}`,
			wantStatus: http.StatusOK,
			wantBody: `{"summary":"about workshop",` +
				`"timestamp":"2024-01-01T00:00:00.000Z","model":"m"}`,
		},
		{
			name:       "malformed body",
			summarizer: ok,
			method:     http.MethodPost,
			body:       `{"type":`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"Invalid request body"}`,
		},
		{
			name:       "unknown type",
			summarizer: ok,
			method:     http.MethodPost,
			body:       `{"type":"poem","data":{}}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"Invalid summary type"}`,
		},
		{
			name:       "not configured",
			summarizer: NewService(DefaultConfig(), nil, nil),
			method:     http.MethodPost,
			body:       `{"type":"session","sessionNumber":1,"data":{}}`,
			wantStatus: http.StatusServiceUnavailable,
			wantBody: `{"error":"AI summaries are not configured",` +
				`"fallback":true}`,
		},
		{
			name:       "model failure",
			summarizer: failing(errors.New("boom")),
			method:     http.MethodPost,
			body:       `{"type":"exercise","exerciseId":"a","data":{}}`,
			wantStatus: http.StatusInternalServerError,
			wantBody: `{"error":"Failed to generate summary",` +
				`"fallback":true}`,
		},
		{
			name:       "wrong method",
			summarizer: ok,
			method:     http.MethodGet,
			wantStatus: http.StatusMethodNotAllowed,
			wantBody:   `{"error":"Method not allowed"}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(tc.summarizer, nil)

			req := httptest.NewRequest(
				tc.method, "/api/summary", strings.NewReader(tc.body),
			)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tc.wantStatus, rec.Code)
			require.Equal(t, "application/json",
				rec.Header().Get("Content-Type"))
			require.JSONEq(t, tc.wantBody, rec.Body.String())
		})
	}
}

// TestHandlerClientRoundTrip pairs the handler with summary.HTTPClient.
func TestHandlerClientRoundTrip(t *testing.T) {
	srv := httptest.NewServer(NewHandler(
		NewService(DefaultConfig(), nil, nil), nil,
	))
	defer srv.Close()

	c := summary.NewHTTPClient(srv.URL, srv.Client())
	_, err := c.Summarize(context.Background(), summary.BuildRequest(
		summary.KindWorkshop, "", json.RawMessage(`{}`),
	))
	require.ErrorIs(t, err, summary.ErrNotConfigured)

	srv2 := httptest.NewServer(NewHandler(
		NewService(DefaultConfig(), &fakeModel{text: "hi"}, nil), nil,
	))
	defer srv2.Close()

	c = summary.NewHTTPClient(srv2.URL, srv2.Client())
	resp, err := c.Summarize(context.Background(), summary.BuildRequest(
		summary.KindExercise, "icebreaker", json.RawMessage(`{}`),
	))
	require.NoError(t, err)
	require.Equal(t, "hi", resp.Summary)
	require.Equal(t, "fake-1", resp.Model)
}
