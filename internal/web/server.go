// Package web serves the workshop daemon's HTTP API: the summary endpoint,
// cached insights, answer records, cloud sync controls and a websocket
// stream of sync state.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/septapod/agentmapper/internal/build"
	"github.com/septapod/agentmapper/internal/cloud"
	"github.com/septapod/agentmapper/internal/cloudsync"
	"github.com/septapod/agentmapper/internal/insight"
	"github.com/septapod/agentmapper/internal/summary"
	"github.com/septapod/agentmapper/internal/workshop"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// Config wires a Server.
type Config struct {
	Addr string

	// Summarizer answers POST /api/summary.
	Summarizer summary.Summarizer

	// Insights serves cached summaries to the API.
	Insights *summary.Manager

	Store *workshop.Store
	Sync  *cloudsync.Coordinator

	// CloudHost, when set, is mounted under the cloud API prefix so this
	// daemon hosts the cloud copy for others.
	CloudHost http.Handler

	Log *slog.Logger
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr: ":8080",
	}
}

// Server is the daemon's HTTP server.
type Server struct {
	insights *summary.Manager
	store    *workshop.Store
	sync     *cloudsync.Coordinator
	hub      *Hub
	log      *slog.Logger

	mux  *http.ServeMux
	srv  *http.Server
	addr string

	unsub func()
}

// NewServer creates the server and starts its websocket hub.
func NewServer(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "web")

	s := &Server{
		insights: cfg.Insights,
		store:    cfg.Store,
		sync:     cfg.Sync,
		log:      log,
		mux:      http.NewServeMux(),
		addr:     cfg.Addr,
	}

	summarizer := cfg.Summarizer
	if summarizer == nil {
		summarizer = summary.SummarizerFunc(func(context.Context,
			summary.Request) (summary.Response, error) {

			return summary.Response{}, summary.ErrNotConfigured
		})
	}
	s.mux.Handle("/api/summary", insight.NewHandler(summarizer, log))
	s.registerAPIV1Routes()

	if cfg.CloudHost != nil {
		s.mux.Handle(cloud.APIPrefix+"/", cfg.CloudHost)
	}

	s.hub = NewHub(log)
	go s.hub.Run()

	// Every store change is pushed to websocket clients.
	s.unsub = s.store.Subscribe(func(ch workshop.Change) {
		s.hub.BroadcastToAll(&WSMessage{
			Type:    WSMsgTypeSyncState,
			Payload: s.syncStatus(ch.State, false),
		})
	})
	s.mux.HandleFunc("/ws", s.handleWebSocket)

	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         s.addr,
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info("Starting web server", "addr", s.addr)

	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}

// Shutdown stops the hub and then the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.unsub()
	s.hub.Stop()

	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}

	return nil
}

func (s *Server) registerAPIV1Routes() {
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	s.registerInsightRoutes()
	s.registerRecordRoutes()
	s.registerSyncRoutes()
}

// handleHealth handles GET /api/v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": build.Version(),
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// APIError is the body of every failed API call.
type APIError struct {
	Error string `json:"error"`

	// Fallback tells the client to show static content instead.
	Fallback bool `json:"fallback,omitempty"`
}

// writeJSON writes data as a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, APIError{Error: message})
}

// decodeBody reads a JSON body of at most maxBodyBytes into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}

	return true
}
