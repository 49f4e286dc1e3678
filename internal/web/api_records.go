package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/septapod/agentmapper/internal/workshop"
)

// RecordsResponse answers GET /api/v1/records.
type RecordsResponse struct {
	OrgName  string                     `json:"org_name,omitempty"`
	Revision uint64                     `json:"revision"`
	Records  map[string]json.RawMessage `json:"records"`
}

func (s *Server) registerRecordRoutes() {
	s.mux.HandleFunc("GET /api/v1/records", s.handleListRecords)
	s.mux.HandleFunc("GET /api/v1/records/{id}", s.handleGetRecord)
	s.mux.HandleFunc("PUT /api/v1/records/{id}", s.handlePutRecord)
	s.mux.HandleFunc("DELETE /api/v1/records/{id}", s.handleDeleteRecord)
	s.mux.HandleFunc("PUT /api/v1/org", s.handleSetOrg)
}

// handleListRecords handles GET /api/v1/records.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	st := s.store.State()

	writeJSON(w, http.StatusOK, RecordsResponse{
		OrgName:  st.OrgName,
		Revision: st.Revision,
		Records:  st.Records,
	})
}

// handleGetRecord handles GET /api/v1/records/{id}.
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, ok := s.store.Record(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Record not found")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handlePutRecord handles PUT /api/v1/records/{id}. The body is the answer
// document itself.
func (s *Server) handlePutRecord(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge,
			"Record too large")
		return
	}

	err = s.store.PutRecord(r.Context(), r.PathValue("id"), body)
	switch {
	case errors.Is(err, workshop.ErrInvalidRecord),
		errors.Is(err, workshop.ErrEmptyID):

		writeError(w, http.StatusBadRequest, err.Error())
		return

	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteRecord handles DELETE /api/v1/records/{id}.
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if !s.store.DeleteRecord(r.Context(), r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "Record not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleSetOrg handles PUT /api/v1/org {"name": ...}.
func (s *Server) handleSetOrg(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	s.store.SetOrgName(r.Context(), req.Name)
	w.WriteHeader(http.StatusNoContent)
}
