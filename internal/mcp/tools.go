package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/septapod/agentmapper/internal/summary"
	"github.com/septapod/agentmapper/internal/workshop"
)

// GetInsightArgs are the arguments for the get_insight tool.
type GetInsightArgs struct {
	Type string `json:"type" jsonschema:"What to summarize: exercise, session or workshop"`

	ID string `json:"id,omitempty" jsonschema:"Exercise id or session number; empty for the workshop"`

	ForceRefresh bool `json:"force_refresh,omitempty" jsonschema:"Ignore a cached insight and generate a new one"`
}

// GetInsightResult is the result of the get_insight tool.
type GetInsightResult struct {
	// Available is false when insights are not configured.
	Available   bool   `json:"available"`
	Summary     string `json:"summary,omitempty"`
	GeneratedAt string `json:"generated_at,omitempty"`
	WasCached   bool   `json:"was_cached"`
}

func (s *Server) handleGetInsight(ctx context.Context,
	req *mcp.CallToolRequest,
	args GetInsightArgs) (*mcp.CallToolResult, GetInsightResult, error) {

	kind := summary.Kind(args.Type)
	data, err := s.insightPayload(kind, args.ID)
	if err != nil {
		return nil, GetInsightResult{}, err
	}

	res, err := s.insights.FetchSummary(
		ctx, kind, args.ID, data, args.ForceRefresh,
	)
	if err != nil {
		return nil, GetInsightResult{}, err
	}

	var out GetInsightResult
	res.WhenSome(func(r summary.Result) {
		out = GetInsightResult{
			Available:   true,
			Summary:     r.SummaryText,
			GeneratedAt: summary.FormatTimestamp(r.GeneratedAt),
			WasCached:   r.WasCached,
		}
	})

	return nil, out, nil
}

// insightPayload assembles the summary input for kind/id from the store.
func (s *Server) insightPayload(kind summary.Kind,
	id string) (json.RawMessage, error) {

	switch kind {
	case summary.KindExercise:
		rec, ok := s.store.Record(id)
		if !ok {
			return nil, fmt.Errorf("no answers recorded for %q", id)
		}
		return rec, nil

	case summary.KindSession:
		n, err := strconv.Atoi(id)
		if err != nil {
			return nil, fmt.Errorf("invalid session number %q", id)
		}
		return s.store.SessionPayload(n)

	case summary.KindWorkshop:
		return s.store.WorkshopPayload()

	default:
		return nil, fmt.Errorf("unknown insight type %q", kind)
	}
}

// SyncStatusResult is the result of the sync tools.
type SyncStatusResult struct {
	Configured   bool   `json:"configured"`
	OrgName      string `json:"org_name,omitempty"`
	CloudOrgID   string `json:"cloud_org_id,omitempty"`
	Records      int    `json:"records"`
	Revision     uint64 `json:"revision"`
	Dirty        bool   `json:"dirty"`
	Pending      bool   `json:"pending"`
	Status       string `json:"status"`
	LastSyncedAt string `json:"last_synced_at,omitempty"`
	LastError    string `json:"last_error,omitempty"`
}

func (s *Server) syncStatus(ctx context.Context) SyncStatusResult {
	st := s.store.State()

	out := SyncStatusResult{
		Configured: s.sync.Configured(),
		OrgName:    st.OrgName,
		CloudOrgID: st.Sync.CloudOrgID,
		Records:    len(st.Records),
		Revision:   st.Revision,
		Dirty:      st.Sync.Dirty,
		Pending:    s.sync.Pending(ctx),
		Status:     string(st.Sync.Status),
		LastError:  st.Sync.LastError,
	}
	st.Sync.LastSyncedAt.WhenSome(func(t time.Time) {
		out.LastSyncedAt = t.UTC().Format(time.RFC3339)
	})

	return out
}

// NoArgs is the argument type of tools that take none.
type NoArgs struct{}

func (s *Server) handleGetSyncStatus(ctx context.Context,
	req *mcp.CallToolRequest,
	_ NoArgs) (*mcp.CallToolResult, SyncStatusResult, error) {

	return nil, s.syncStatus(ctx), nil
}

func (s *Server) handleSyncNow(ctx context.Context, req *mcp.CallToolRequest,
	_ NoArgs) (*mcp.CallToolResult, SyncStatusResult, error) {

	if err := s.sync.SyncNow(ctx); err != nil {
		return nil, SyncStatusResult{}, err
	}

	return nil, s.syncStatus(ctx), nil
}

// PutRecordArgs are the arguments for the put_record tool.
type PutRecordArgs struct {
	ID string `json:"id" jsonschema:"Exercise id, e.g. icebreakers or roadmap"`

	Answers map[string]any `json:"answers" jsonschema:"The exercise answers as a JSON object"`
}

// PutRecordResult is the result of the put_record tool.
type PutRecordResult struct {
	Revision uint64 `json:"revision"`
	Dirty    bool   `json:"dirty"`
}

func (s *Server) handlePutRecord(ctx context.Context,
	req *mcp.CallToolRequest,
	args PutRecordArgs) (*mcp.CallToolResult, PutRecordResult, error) {

	if _, ok := workshop.LookupExercise(args.ID); !ok {
		s.log.DebugContext(ctx, "Recording answers outside the catalog",
			"id", args.ID)
	}

	doc, err := json.Marshal(args.Answers)
	if err != nil {
		return nil, PutRecordResult{}, fmt.Errorf("encode answers: %w",
			err)
	}

	if err := s.store.PutRecord(ctx, args.ID, doc); err != nil {
		return nil, PutRecordResult{}, err
	}

	st := s.store.State()

	return nil, PutRecordResult{
		Revision: st.Revision,
		Dirty:    st.Sync.Dirty,
	}, nil
}
