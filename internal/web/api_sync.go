package web

import (
	"errors"
	"net/http"

	"github.com/septapod/agentmapper/internal/cloud"
	"github.com/septapod/agentmapper/internal/cloudsync"
	"github.com/septapod/agentmapper/internal/workshop"
)

// SyncStatus answers GET /api/v1/sync and is the websocket sync_state
// payload.
type SyncStatus struct {
	Configured bool               `json:"configured"`
	OrgName    string             `json:"org_name,omitempty"`
	Revision   uint64             `json:"revision"`
	Records    int                `json:"records"`
	Pending    bool               `json:"pending"`
	Sync       workshop.SyncState `json:"sync"`
}

// ConnectRequest is the body of POST /api/v1/sync/connect.
type ConnectRequest struct {
	OrgName string `json:"org_name"`
}

// LoadRequest is the body of POST /api/v1/sync/load.
type LoadRequest struct {
	OrgID string `json:"org_id"`
}

func (s *Server) registerSyncRoutes() {
	s.mux.HandleFunc("GET /api/v1/sync", s.handleSyncStatus)
	s.mux.HandleFunc("POST /api/v1/sync/now", s.handleSyncNow)
	s.mux.HandleFunc("POST /api/v1/sync/connect", s.handleConnect)
	s.mux.HandleFunc("POST /api/v1/sync/load", s.handleLoad)
	s.mux.HandleFunc("POST /api/v1/sync/disconnect", s.handleDisconnect)
}

func (s *Server) syncStatus(st workshop.State, pending bool) SyncStatus {
	return SyncStatus{
		Configured: s.sync.Configured(),
		OrgName:    st.OrgName,
		Revision:   st.Revision,
		Records:    len(st.Records),
		Pending:    pending,
		Sync:       st.Sync,
	}
}

func (s *Server) currentSyncStatus(r *http.Request) SyncStatus {
	return s.syncStatus(s.store.State(), s.sync.Pending(r.Context()))
}

// handleSyncStatus handles GET /api/v1/sync.
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.currentSyncStatus(r))
}

// handleSyncNow handles POST /api/v1/sync/now.
func (s *Server) handleSyncNow(w http.ResponseWriter, r *http.Request) {
	if err := s.sync.SyncNow(r.Context()); err != nil {
		s.writeSyncError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, s.currentSyncStatus(r))
}

// handleConnect handles POST /api/v1/sync/connect.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if !decodeBody(w, r, &req) {
		return
	}

	id, err := s.sync.ConnectToCloud(r.Context(), req.OrgName)
	if err != nil {
		s.writeSyncError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// handleLoad handles POST /api/v1/sync/load.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req LoadRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OrgID == "" {
		writeError(w, http.StatusBadRequest, "org_id is required")
		return
	}

	if err := s.sync.LoadFromCloud(r.Context(), req.OrgID); err != nil {
		s.writeSyncError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, s.currentSyncStatus(r))
}

// handleDisconnect handles POST /api/v1/sync/disconnect.
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.sync.DisconnectFromCloud(r.Context())
	writeJSON(w, http.StatusOK, s.currentSyncStatus(r))
}

// writeSyncError maps coordinator errors onto statuses.
func (s *Server) writeSyncError(w http.ResponseWriter, r *http.Request,
	err error) {

	switch {
	case errors.Is(err, cloudsync.ErrNotConnected):
		writeError(w, http.StatusConflict, err.Error())

	case errors.Is(err, cloudsync.ErrNotConfigured):
		writeJSON(w, http.StatusServiceUnavailable, APIError{
			Error:    err.Error(),
			Fallback: true,
		})

	case errors.Is(err, cloud.ErrOrgNotFound):
		writeError(w, http.StatusNotFound, err.Error())

	default:
		s.log.WarnContext(r.Context(), "Sync operation failed",
			"path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
	}
}
