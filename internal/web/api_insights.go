package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/septapod/agentmapper/internal/summary"
	"github.com/septapod/agentmapper/internal/workshop"
)

// DefaultFallback is shown when no insight can be generated and the
// client supplied no fallback of its own.
const DefaultFallback = "Insights are not available right now. " +
	"Review the answers above together."

// InsightRequest is the body of POST /api/v1/insights.
type InsightRequest struct {
	Type         summary.Kind    `json:"type"`
	ID           string          `json:"id,omitempty"`
	Data         json.RawMessage `json:"data"`
	ForceRefresh bool            `json:"force_refresh,omitempty"`

	// Fallback is returned, flagged, when summaries are not configured.
	Fallback string `json:"fallback,omitempty"`
}

// InsightResponse answers every insight route.
type InsightResponse struct {
	Summary     string `json:"summary"`
	HTML        string `json:"html"`
	GeneratedAt string `json:"generated_at,omitempty"`
	WasCached   bool   `json:"was_cached"`
	IsFallback  bool   `json:"is_fallback"`
}

func (s *Server) registerInsightRoutes() {
	s.mux.HandleFunc("POST /api/v1/insights", s.handleInsight)
	s.mux.HandleFunc(
		"GET /api/v1/insights/exercise/{id}", s.handleExerciseInsight,
	)
	s.mux.HandleFunc(
		"GET /api/v1/insights/session/{n}", s.handleSessionInsight,
	)
	s.mux.HandleFunc(
		"GET /api/v1/insights/workshop", s.handleWorkshopInsight,
	)
	s.mux.HandleFunc("DELETE /api/v1/insights/cache", s.handleClearCache)
	s.mux.HandleFunc(
		"DELETE /api/v1/insights/cache/{type}", s.handleInvalidate,
	)
	s.mux.HandleFunc(
		"DELETE /api/v1/insights/cache/{type}/{id}", s.handleInvalidate,
	)
}

// handleInsight handles POST /api/v1/insights for arbitrary payloads.
func (s *Server) handleInsight(w http.ResponseWriter, r *http.Request) {
	var req InsightRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if !req.Type.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid summary type")
		return
	}

	fallback := req.Fallback
	if fallback == "" {
		fallback = DefaultFallback
	}

	s.serveInsight(
		w, r, req.Type, req.ID, req.Data, req.ForceRefresh, fallback,
	)
}

// handleExerciseInsight handles GET /api/v1/insights/exercise/{id}.
func (s *Server) handleExerciseInsight(w http.ResponseWriter,
	r *http.Request) {

	id := r.PathValue("id")
	rec, ok := s.store.Record(id)
	if !ok {
		writeError(w, http.StatusNotFound, "No answers recorded for "+id)
		return
	}

	s.serveInsight(
		w, r, summary.KindExercise, id, rec, forceRefresh(r),
		DefaultFallback,
	)
}

// handleSessionInsight handles GET /api/v1/insights/session/{n}.
func (s *Server) handleSessionInsight(w http.ResponseWriter,
	r *http.Request) {

	raw := r.PathValue("n")
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session number")
		return
	}

	data, err := s.store.SessionPayload(n)
	switch {
	case errors.Is(err, workshop.ErrUnknownSession):
		writeError(w, http.StatusNotFound, err.Error())
		return

	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.serveInsight(
		w, r, summary.KindSession, raw, data, forceRefresh(r),
		DefaultFallback,
	)
}

// handleWorkshopInsight handles GET /api/v1/insights/workshop.
func (s *Server) handleWorkshopInsight(w http.ResponseWriter,
	r *http.Request) {

	data, err := s.store.WorkshopPayload()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.serveInsight(
		w, r, summary.KindWorkshop, "", data, forceRefresh(r),
		DefaultFallback,
	)
}

// serveInsight fetches one insight and writes it. Without a summary
// backend the fallback text is served instead; other failures are a 502
// that still carries the fallback.
func (s *Server) serveInsight(w http.ResponseWriter, r *http.Request,
	kind summary.Kind, id string, data json.RawMessage, force bool,
	fallback string) {

	res, err := s.insights.FetchSummary(r.Context(), kind, id, data, force)
	if err != nil {
		s.log.WarnContext(r.Context(), "Insight fetch failed",
			"kind", kind, "id", id, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":    err.Error(),
			"fallback": fallback,
		})
		return
	}

	resp := InsightResponse{
		Summary:    fallback,
		IsFallback: true,
	}
	res.WhenSome(func(got summary.Result) {
		resp = InsightResponse{
			Summary:     got.SummaryText,
			GeneratedAt: summary.FormatTimestamp(got.GeneratedAt),
			WasCached:   got.WasCached,
		}
	})
	resp.HTML = renderMarkdown(resp.Summary)

	writeJSON(w, http.StatusOK, resp)
}

// handleClearCache handles DELETE /api/v1/insights/cache.
func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	s.insights.Cache().InvalidateAll(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// handleInvalidate handles DELETE /api/v1/insights/cache/{type}[/{id}].
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	kind := summary.Kind(r.PathValue("type"))
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid summary type")
		return
	}

	s.insights.Cache().Invalidate(r.Context(), kind, r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// forceRefresh reads the ?force=true query flag.
func forceRefresh(r *http.Request) bool {
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	return force
}
