package cloud

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// maxSnapshotBody bounds an uploaded snapshot.
const maxSnapshotBody = 16 << 20

// Handler serves a Backend over the cloud HTTP contract. Every request must
// carry the configured bearer token.
type Handler struct {
	backend Backend
	token   string
	log     *slog.Logger
	mux     *http.ServeMux
}

// NewHandler returns a handler for backend guarded by token. A nil logger
// means slog.Default().
func NewHandler(backend Backend, token string, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}

	h := &Handler{
		backend: backend,
		token:   token,
		log:     log.With("component", "cloud_api"),
		mux:     http.NewServeMux(),
	}

	h.mux.HandleFunc("POST "+APIPrefix+"/orgs", h.handleCreateOrg)
	h.mux.HandleFunc(
		"PUT "+APIPrefix+"/orgs/{id}/snapshot", h.handlePush,
	)
	h.mux.HandleFunc(
		"GET "+APIPrefix+"/orgs/{id}/snapshot", h.handlePull,
	)

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	h.mux.ServeHTTP(w, r)
}

func (h *Handler) authorized(r *http.Request) bool {
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || h.token == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1
}

func (h *Handler) handleCreateOrg(w http.ResponseWriter, r *http.Request) {
	var req createOrgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	id, err := h.backend.CreateOrganization(r.Context(), name)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createOrgResponse{ID: id})
}

func (h *Handler) handlePush(w http.ResponseWriter, r *http.Request) {
	var snap Snapshot
	body := http.MaxBytesReader(w, r.Body, maxSnapshotBody)
	if err := json.NewDecoder(body).Decode(&snap); err != nil {
		writeError(w, http.StatusBadRequest, "invalid snapshot")
		return
	}

	err := h.backend.PushSnapshot(r.Context(), r.PathValue("id"), snap)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePull(w http.ResponseWriter, r *http.Request) {
	snap, err := h.backend.PullSnapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrOrgNotFound) {
		writeError(w, http.StatusNotFound, "organization not found")
		return
	}

	h.log.ErrorContext(r.Context(), "Cloud request failed",
		"method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
