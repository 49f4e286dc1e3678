// Package cloud is the remote copy of a workshop: the backend contract the
// sync coordinator pushes to, an HTTP client for it, and a SQLite host that
// one daemon can serve for others.
package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"time"
)

var (
	// ErrOrgNotFound is returned for an organization id the backend does
	// not know.
	ErrOrgNotFound = errors.New("cloud: organization not found")

	// ErrUnauthorized is returned when the backend rejects the token.
	ErrUnauthorized = errors.New("cloud: unauthorized")
)

// Snapshot is the full record set of one organization at a revision.
type Snapshot struct {
	OrgName  string                     `json:"org_name"`
	Records  map[string]json.RawMessage `json:"records"`
	Revision uint64                     `json:"revision"`
	PushedAt time.Time                  `json:"pushed_at"`
}

// Clone returns a copy that shares no maps with s.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Records = maps.Clone(s.Records)
	if out.Records == nil {
		out.Records = make(map[string]json.RawMessage)
	}

	return out
}

// Backend is the remote store a workshop syncs to.
type Backend interface {
	// CreateOrganization registers a new organization and returns its
	// id.
	CreateOrganization(ctx context.Context, name string) (string, error)

	// PushSnapshot replaces the organization's remote copy.
	PushSnapshot(ctx context.Context, orgID string, snap Snapshot) error

	// PullSnapshot returns the organization's remote copy. An
	// organization that never pushed yields an empty record set.
	PullSnapshot(ctx context.Context, orgID string) (Snapshot, error)
}

// createOrgRequest is the body of POST /orgs.
type createOrgRequest struct {
	Name string `json:"name"`
}

// createOrgResponse answers POST /orgs.
type createOrgResponse struct {
	ID string `json:"id"`
}

// errorResponse is every failure body.
type errorResponse struct {
	Error string `json:"error"`
}
