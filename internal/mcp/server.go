// Package mcp exposes workshop insights and cloud sync as MCP tools, so an
// assistant can read summaries and record answers during a session.
package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/septapod/agentmapper/internal/build"
	"github.com/septapod/agentmapper/internal/cloudsync"
	"github.com/septapod/agentmapper/internal/summary"
	"github.com/septapod/agentmapper/internal/workshop"
)

// Server wraps the MCP server with the workshop services.
type Server struct {
	server   *mcp.Server
	insights *summary.Manager
	store    *workshop.Store
	sync     *cloudsync.Coordinator
	log      *slog.Logger
}

// Config holds the services the tools call into.
type Config struct {
	Insights *summary.Manager
	Store    *workshop.Store
	Sync     *cloudsync.Coordinator
	Log      *slog.Logger
}

// NewServer creates an MCP server with every tool registered.
func NewServer(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "workshopd",
			Version: build.Version(),
		}, nil),
		insights: cfg.Insights,
		store:    cfg.Store,
		sync:     cfg.Sync,
		log:      log.With("component", "mcp"),
	}

	s.registerTools()

	return s
}

// Run serves the tools on transport until ctx ends or the peer hangs up.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.server.Run(ctx, transport)
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "get_insight",
		Description: "Get the AI insight for an exercise, a session or " +
			"the whole workshop, from cache when still valid",
	}, s.handleGetInsight)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_sync_status",
		Description: "Show the cloud sync state of the workshop",
	}, s.handleGetSyncStatus)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "sync_now",
		Description: "Push the workshop to the cloud immediately",
	}, s.handleSyncNow)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "put_record",
		Description: "Record the answers for an exercise",
	}, s.handlePutRecord)
}
