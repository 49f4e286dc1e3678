package insight

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/septapod/agentmapper/internal/summary"
)

// maxRequestBody bounds the summary request body.
const maxRequestBody = 1 << 20

// Handler serves POST /api/summary.
type Handler struct {
	summarizer summary.Summarizer
	log        *slog.Logger
}

// NewHandler wraps summarizer in the /api/summary contract.
func NewHandler(summarizer summary.Summarizer, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}

	return &Handler{
		summarizer: summarizer,
		log:        log.With("component", "summary_api"),
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, summary.ErrorBody{
			Error: "Method not allowed",
		})
		return
	}

	var req summary.Request
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, summary.ErrorBody{
			Error: "Invalid request body",
		})
		return
	}

	if !req.Type.Valid() {
		writeJSON(w, http.StatusBadRequest, summary.ErrorBody{
			Error: "Invalid summary type",
		})
		return
	}

	resp, err := h.summarizer.Summarize(r.Context(), req)
	switch {
	case errors.Is(err, summary.ErrNotConfigured):
		writeJSON(w, http.StatusServiceUnavailable, summary.ErrorBody{
			Error:    "AI summaries are not configured",
			Fallback: true,
		})
		return

	case errors.Is(err, ErrUnknownKind):
		writeJSON(w, http.StatusBadRequest, summary.ErrorBody{
			Error: "Invalid summary type",
		})
		return

	case err != nil:
		h.log.WarnContext(r.Context(), "Summary generation failed",
			"type", req.Type, "error", err)
		writeJSON(w, http.StatusInternalServerError, summary.ErrorBody{
			Error:    "Failed to generate summary",
			Fallback: true,
		})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
