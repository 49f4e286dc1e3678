// Package workshop holds the shared, observable workshop state: the
// exercise answer records and the cloud sync bookkeeping. It is the single
// writer of SyncState; everything else goes through its mutators.
package workshop

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/septapod/agentmapper/internal/cloud"
	"github.com/septapod/agentmapper/internal/kvstore"
)

// StateKey is the kv store key the state is persisted under.
const StateKey = "workshop-state"

var (
	// ErrNotConnected is returned by a sync attempt without a cloud
	// organization. No network call is made.
	ErrNotConnected = errors.New("not connected to cloud")

	// ErrNotConfigured is returned by cloud operations when no backend is
	// configured.
	ErrNotConfigured = errors.New("cloud sync not configured")

	// ErrInvalidRecord is returned for a record that is not valid JSON.
	ErrInvalidRecord = errors.New("record is not valid JSON")

	// ErrEmptyID is returned for a record without an id.
	ErrEmptyID = errors.New("record id is empty")
)

// Fields says which parts of the state a mutation touched.
type Fields uint8

const (
	// FieldRecords is set when a record was added, changed or removed.
	FieldRecords Fields = 1 << iota

	// FieldConnection is set when the cloud organization id changed.
	FieldConnection

	// FieldDirty is set when the dirty flag flipped.
	FieldDirty

	// FieldStatus is set when the status, last error or last sync time
	// changed.
	FieldStatus

	// FieldOrg is set when the organization name changed.
	FieldOrg
)

// Has reports whether any of other is set in f.
func (f Fields) Has(other Fields) bool {
	return f&other != 0
}

// Change is delivered to subscribers after every effective mutation.
type Change struct {
	// State is a snapshot taken right after the mutation.
	State State

	Fields Fields
}

type subscriber struct {
	id uint64
	fn func(Change)
}

// Store is the observable workshop store.
type Store struct {
	kv      kvstore.Store
	backend cloud.Backend
	log     *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	state  State
	subs   []subscriber
	nextID uint64

	// notifyMu keeps notifications in mutation order. Subscribers must
	// not mutate the store from their callback.
	notifyMu sync.Mutex
}

// Config wires a Store.
type Config struct {
	// KV persists the state. Nil keeps it in memory only.
	KV kvstore.Store

	// Backend is the cloud copy. Nil means cloud sync is not
	// configured.
	Backend cloud.Backend

	Log *slog.Logger
}

// NewStore creates a store and restores the state persisted in cfg.KV, if
// any. An unreadable persisted state is logged and replaced.
func NewStore(ctx context.Context, cfg Config) *Store {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	s := &Store{
		kv:      cfg.KV,
		backend: cfg.Backend,
		log:     log.With("component", "workshop_store"),
		now:     time.Now,
		state: State{
			Records: make(map[string]json.RawMessage),
			Sync:    SyncState{Status: StatusIdle},
		},
	}
	s.restore(ctx)

	return s
}

func (s *Store) restore(ctx context.Context) {
	if s.kv == nil {
		return
	}

	raw, err := s.kv.Get(ctx, StateKey)
	switch {
	case errors.Is(err, kvstore.ErrNotFound):
		return

	case err != nil:
		s.log.WarnContext(ctx, "Cannot read workshop state",
			"error", err)
		return
	}

	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		s.log.WarnContext(ctx, "Discarding corrupt workshop state",
			"error", err)
		return
	}

	if st.Records == nil {
		st.Records = make(map[string]json.RawMessage)
	}

	// Runtime status is not carried over a restart.
	st.Sync.Status = StatusIdle

	s.state = st

	s.log.InfoContext(ctx, "Restored workshop state",
		"records", len(st.Records), "revision", st.Revision,
		"connected", st.Sync.Connected(), "dirty", st.Sync.Dirty)
}

// Configured reports whether a cloud backend is available.
func (s *Store) Configured() bool {
	return s.backend != nil
}

// State returns a snapshot of the whole state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.clone()
}

// SyncState returns the current sync bookkeeping.
func (s *Store) SyncState() SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.Sync
}

// Record returns the answer document stored under id.
func (s *Store) Record(id string) (json.RawMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.state.Records[id]
	if !ok {
		return nil, false
	}

	return append(json.RawMessage(nil), doc...), true
}

// Subscribe registers cb for every future change and returns a function
// that removes it. Callbacks run synchronously, in subscription order,
// after the store lock has been released.
func (s *Store) Subscribe(cb func(Change)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: cb})

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()

			s.subs = slices.DeleteFunc(s.subs, func(sub subscriber) bool {
				return sub.id == id
			})
		})
	}
}

// update applies mutate under the lock, persists the result and notifies
// subscribers. mutate reports which fields it changed; zero means nothing
// happened and nobody is told.
func (s *Store) update(ctx context.Context, mutate func(st *State) Fields) Fields {
	s.mu.Lock()
	changed := mutate(&s.state)
	if changed == 0 {
		s.mu.Unlock()
		return 0
	}

	snap := s.state.clone()
	s.persistLocked(ctx, snap)
	subs := slices.Clone(s.subs)

	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	change := Change{State: snap, Fields: changed}
	for _, sub := range subs {
		sub.fn(change)
	}

	return changed
}

// persistLocked writes st to the kv store. Failures are logged only: the
// in-memory state stays authoritative.
func (s *Store) persistLocked(ctx context.Context, st State) {
	if s.kv == nil {
		return
	}

	raw, err := json.Marshal(st)
	if err != nil {
		s.log.ErrorContext(ctx, "Cannot encode workshop state",
			"error", err)
		return
	}

	if err := s.kv.Set(ctx, StateKey, raw); err != nil {
		s.log.WarnContext(ctx, "Cannot persist workshop state",
			"error", err)
	}
}

// markDirty sets the dirty flag and reports the bit if it flipped.
func markDirty(st *State) Fields {
	if st.Sync.Dirty {
		return 0
	}
	st.Sync.Dirty = true

	return FieldDirty
}

// SetOrgName renames the workshop's organization.
func (s *Store) SetOrgName(ctx context.Context, name string) {
	s.update(ctx, func(st *State) Fields {
		if st.OrgName == name {
			return 0
		}
		st.OrgName = name

		return FieldOrg
	})
}

// PutRecord stores doc as the answers for id and marks the state dirty.
// Writing an identical document is a no-op.
func (s *Store) PutRecord(ctx context.Context, id string,
	doc json.RawMessage) error {

	if id == "" {
		return ErrEmptyID
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, doc); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	doc = compact.Bytes()

	s.update(ctx, func(st *State) Fields {
		if old, ok := st.Records[id]; ok && bytes.Equal(old, doc) {
			return 0
		}
		st.Records[id] = doc
		st.Revision++

		return FieldRecords | markDirty(st)
	})

	return nil
}

// DeleteRecord removes the answers for id. It reports whether there were
// any.
func (s *Store) DeleteRecord(ctx context.Context, id string) bool {
	changed := s.update(ctx, func(st *State) Fields {
		if _, ok := st.Records[id]; !ok {
			return 0
		}
		delete(st.Records, id)
		st.Revision++

		return FieldRecords | markDirty(st)
	})

	return changed != 0
}

// ResetRecords drops every record, starting the workshop over.
func (s *Store) ResetRecords(ctx context.Context) {
	s.update(ctx, func(st *State) Fields {
		if len(st.Records) == 0 {
			return 0
		}
		st.Records = make(map[string]json.RawMessage)
		st.Revision++

		return FieldRecords | markDirty(st)
	})
}

// SetSyncStatus forces the sync status.
func (s *Store) SetSyncStatus(ctx context.Context, status Status) {
	s.update(ctx, func(st *State) Fields {
		if st.Sync.Status == status {
			return 0
		}
		st.Sync.Status = status

		return FieldStatus
	})
}

// TransitionSyncStatus moves the status from one value to another and
// reports whether it did. Any other current status is left alone.
func (s *Store) TransitionSyncStatus(ctx context.Context, from,
	to Status) bool {

	changed := s.update(ctx, func(st *State) Fields {
		if st.Sync.Status != from || from == to {
			return 0
		}
		st.Sync.Status = to

		return FieldStatus
	})

	return changed != 0
}

// ClearCloudConnection detaches the cloud organization. Remote data is
// left alone.
func (s *Store) ClearCloudConnection(ctx context.Context) {
	s.update(ctx, func(st *State) Fields {
		if st.Sync.CloudOrgID == "" {
			return 0
		}
		st.Sync.CloudOrgID = ""

		return FieldConnection
	})
}

// setStatusUnlessOffline is the status step of a sync. An offline status
// is owned by the connectivity watcher and survives the sync.
func setStatusUnlessOffline(st *State, status Status) Fields {
	if st.Sync.Status == StatusOffline || st.Sync.Status == status {
		return 0
	}
	st.Sync.Status = status

	return FieldStatus
}

// SyncToCloud pushes the current records to the connected organization.
// The status goes to syncing and then to idle or error. The dirty flag is
// cleared only if no record changed while the push was in flight.
func (s *Store) SyncToCloud(ctx context.Context) error {
	if s.backend == nil {
		return ErrNotConfigured
	}

	var (
		orgID string
		snap  cloud.Snapshot
	)
	s.mu.Lock()
	orgID = s.state.Sync.CloudOrgID
	if orgID != "" {
		snap = cloud.Snapshot{
			OrgName:  s.state.OrgName,
			Records:  s.state.clone().Records,
			Revision: s.state.Revision,
			PushedAt: s.now().UTC(),
		}
	}
	s.mu.Unlock()

	if orgID == "" {
		return ErrNotConnected
	}

	s.update(ctx, func(st *State) Fields {
		return setStatusUnlessOffline(st, StatusSyncing)
	})

	err := s.backend.PushSnapshot(ctx, orgID, snap)
	if err != nil {
		s.update(ctx, func(st *State) Fields {
			st.Sync.LastError = err.Error()
			setStatusUnlessOffline(st, StatusError)

			return FieldStatus
		})

		return fmt.Errorf("sync to cloud: %w", err)
	}

	s.update(ctx, func(st *State) Fields {
		st.Sync.LastError = ""
		st.Sync.LastSyncedAt = fn.Some(snap.PushedAt)
		setStatusUnlessOffline(st, StatusIdle)

		changed := FieldStatus
		if st.Sync.Dirty && st.Revision == snap.Revision &&
			st.Sync.CloudOrgID == orgID {

			st.Sync.Dirty = false
			changed |= FieldDirty
		}

		return changed
	})

	s.log.InfoContext(ctx, "Synced to cloud", "org_id", orgID,
		"revision", snap.Revision, "records", len(snap.Records))

	return nil
}

// CreateCloudOrganization registers a new organization named name (the
// current org name when empty), connects to it and marks the state dirty
// so the first push gets scheduled.
func (s *Store) CreateCloudOrganization(ctx context.Context,
	name string) (string, error) {

	if s.backend == nil {
		return "", ErrNotConfigured
	}

	if name == "" {
		name = s.State().OrgName
	}

	id, err := s.backend.CreateOrganization(ctx, name)
	if err != nil {
		return "", fmt.Errorf("create cloud organization: %w", err)
	}

	s.update(ctx, func(st *State) Fields {
		changed := FieldConnection | markDirty(st)
		st.Sync.CloudOrgID = id
		if name != "" && st.OrgName != name {
			st.OrgName = name
			changed |= FieldOrg
		}

		return changed
	})

	s.log.InfoContext(ctx, "Connected to new cloud organization",
		"org_id", id, "name", name)

	return id, nil
}

// LoadFromCloud replaces the local records with the remote snapshot of
// orgID and connects to it. The result matches the remote copy, so it is
// not dirty.
func (s *Store) LoadFromCloud(ctx context.Context, orgID string) error {
	if s.backend == nil {
		return ErrNotConfigured
	}

	snap, err := s.backend.PullSnapshot(ctx, orgID)
	if err != nil {
		return fmt.Errorf("load from cloud: %w", err)
	}

	s.update(ctx, func(st *State) Fields {
		changed := FieldRecords | FieldConnection | FieldStatus
		if st.Sync.Dirty {
			changed |= FieldDirty
		}
		if st.OrgName != snap.OrgName {
			changed |= FieldOrg
		}

		st.OrgName = snap.OrgName
		st.Records = snap.Clone().Records
		st.Revision++
		st.Sync.CloudOrgID = orgID
		st.Sync.Dirty = false
		st.Sync.LastError = ""
		setStatusUnlessOffline(st, StatusIdle)

		return changed
	})

	s.log.InfoContext(ctx, "Loaded workshop from cloud", "org_id", orgID,
		"records", len(snap.Records))

	return nil
}
