package workshop

import (
	"encoding/json"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Status is the sync status shown to participants.
type Status string

const (
	// StatusIdle means no sync is running.
	StatusIdle Status = "idle"

	// StatusSyncing means a push is in flight.
	StatusSyncing Status = "syncing"

	// StatusError means the last push failed; see SyncState.LastError.
	StatusError Status = "error"

	// StatusOffline means the runtime reports no connectivity.
	StatusOffline Status = "offline"
)

// SyncState is the cloud sync bookkeeping kept alongside the records.
type SyncState struct {
	// CloudOrgID is the remote organization, empty when not connected.
	CloudOrgID string

	// Dirty is set when local records differ from the last pushed
	// snapshot.
	Dirty bool

	Status Status

	// LastSyncedAt is the time of the last successful push.
	LastSyncedAt fn.Option[time.Time]

	// LastError describes the last failed push, empty after a success.
	LastError string
}

// Connected reports whether a cloud organization is attached.
func (s SyncState) Connected() bool {
	return s.CloudOrgID != ""
}

// syncStateJSON is the wire form of SyncState.
type syncStateJSON struct {
	CloudOrgID   string     `json:"cloud_org_id,omitempty"`
	Dirty        bool       `json:"dirty"`
	Status       Status     `json:"status"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (s SyncState) MarshalJSON() ([]byte, error) {
	w := syncStateJSON{
		CloudOrgID: s.CloudOrgID,
		Dirty:      s.Dirty,
		Status:     s.Status,
		LastError:  s.LastError,
	}
	s.LastSyncedAt.WhenSome(func(t time.Time) {
		w.LastSyncedAt = &t
	})

	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *SyncState) UnmarshalJSON(b []byte) error {
	var w syncStateJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	*s = SyncState{
		CloudOrgID: w.CloudOrgID,
		Dirty:      w.Dirty,
		Status:     w.Status,
		LastError:  w.LastError,
	}
	if w.LastSyncedAt != nil {
		s.LastSyncedAt = fn.Some(*w.LastSyncedAt)
	}

	return nil
}

// State is everything the workshop store holds.
type State struct {
	OrgName string `json:"org_name,omitempty"`

	// Records maps an exercise id to its answer document.
	Records map[string]json.RawMessage `json:"records"`

	// Revision counts record mutations. It lets a finished push tell
	// whether edits landed while it was in flight.
	Revision uint64 `json:"revision"`

	Sync SyncState `json:"sync"`
}

// clone returns a copy sharing no mutable data with st.
func (st State) clone() State {
	out := st
	out.Records = make(map[string]json.RawMessage, len(st.Records))
	for id, doc := range st.Records {
		out.Records[id] = append(json.RawMessage(nil), doc...)
	}

	return out
}
