package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/septapod/agentmapper/internal/db"
)

// SQLBackend keeps organizations and their latest snapshot in SQLite.
type SQLBackend struct {
	base *db.BaseDB
	exec *db.TransactionExecutor[*db.Queries]
	log  *slog.Logger
	now  func() time.Time
}

// NewSQLBackend wraps an opened, migrated database. A nil logger means
// slog.Default().
func NewSQLBackend(base *db.BaseDB, log *slog.Logger) *SQLBackend {
	if log == nil {
		log = slog.Default()
	}

	return &SQLBackend{
		base: base,
		exec: base.Executor(),
		log:  log.With("component", "cloud_host"),
		now:  time.Now,
	}
}

// CreateOrganization implements Backend.
func (b *SQLBackend) CreateOrganization(ctx context.Context,
	name string) (string, error) {

	id := uuid.NewString()
	err := b.base.InsertOrganization(ctx, db.Organization{
		ID:        id,
		Name:      name,
		CreatedAt: b.now().UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("insert organization: %w",
			db.MapSQLError(err))
	}

	b.log.InfoContext(ctx, "Created organization", "org_id", id,
		"name", name)

	return id, nil
}

// PushSnapshot implements Backend. The stored snapshot is replaced as a
// whole.
func (b *SQLBackend) PushSnapshot(ctx context.Context, orgID string,
	snap Snapshot) error {

	if snap.Records == nil {
		snap.Records = make(map[string]json.RawMessage)
	}
	if snap.PushedAt.IsZero() {
		snap.PushedAt = b.now()
	}

	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	err = b.exec.ExecTx(ctx, db.WriteTxOption(), func(q *db.Queries) error {
		if _, err := q.GetOrganization(ctx, orgID); err != nil {
			return err
		}

		return q.UpsertSnapshot(ctx, db.SnapshotRow{
			OrgID:    orgID,
			Revision: int64(snap.Revision),
			Body:     body,
			PushedAt: snap.PushedAt.UnixMilli(),
		})
	})
	if err != nil {
		return mapNotFound(err)
	}

	b.log.DebugContext(ctx, "Stored snapshot", "org_id", orgID,
		"revision", snap.Revision, "records", len(snap.Records))

	return nil
}

// PullSnapshot implements Backend.
func (b *SQLBackend) PullSnapshot(ctx context.Context,
	orgID string) (Snapshot, error) {

	var (
		org db.Organization
		row db.SnapshotRow
		has bool
	)
	err := b.exec.ExecTx(ctx, db.ReadTxOption(), func(q *db.Queries) error {
		var err error
		org, err = q.GetOrganization(ctx, orgID)
		if err != nil {
			return err
		}

		row, err = q.GetSnapshot(ctx, orgID)
		switch {
		case errors.Is(db.MapSQLError(err), db.ErrNotFound):
			return nil
		case err != nil:
			return err
		}
		has = true

		return nil
	})
	if err != nil {
		return Snapshot{}, mapNotFound(err)
	}

	if !has {
		return Snapshot{
			OrgName: org.Name,
			Records: make(map[string]json.RawMessage),
		}, nil
	}

	var snap Snapshot
	if err := json.Unmarshal(row.Body, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}

	return snap.Clone(), nil
}

func mapNotFound(err error) error {
	err = db.MapSQLError(err)
	if errors.Is(err, db.ErrNotFound) {
		return ErrOrgNotFound
	}

	return err
}

var _ Backend = (*SQLBackend)(nil)
