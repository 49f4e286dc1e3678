package db

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Querier lists every query the schema supports.
type Querier interface {
	GetKV(ctx context.Context, key string) (KVEntry, error)
	UpsertKV(ctx context.Context, arg UpsertKVParams) error
	DeleteKV(ctx context.Context, key string) (int64, error)
	ListKVKeys(ctx context.Context, prefix string) ([]string, error)
	KVTotalSize(ctx context.Context) (int64, error)
	KVSizeOf(ctx context.Context, key string) (int64, error)

	InsertOrganization(ctx context.Context, arg Organization) error
	GetOrganization(ctx context.Context, id string) (Organization, error)
	UpsertSnapshot(ctx context.Context, arg SnapshotRow) error
	GetSnapshot(ctx context.Context, orgID string) (SnapshotRow, error)
}

// KVEntry is a row of kv_entries.
type KVEntry struct {
	Key       string
	Value     []byte
	UpdatedAt int64
}

// UpsertKVParams are the arguments to UpsertKV.
type UpsertKVParams struct {
	Key       string
	Value     []byte
	UpdatedAt int64
}

// Organization is a row of organizations.
type Organization struct {
	ID        string
	Name      string
	CreatedAt int64
}

// SnapshotRow is a row of snapshots.
type SnapshotRow struct {
	OrgID    string
	Revision int64
	Body     []byte
	PushedAt int64
}

// Queries runs the schema's statements against a DBTX.
type Queries struct {
	db DBTX
}

// New returns Queries bound to db.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns Queries bound to tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const getKV = `SELECT key, value, updated_at FROM kv_entries WHERE key = ?`

// GetKV returns sql.ErrNoRows when the key is absent.
func (q *Queries) GetKV(ctx context.Context, key string) (KVEntry, error) {
	var e KVEntry
	err := q.db.QueryRowContext(ctx, getKV, key).Scan(
		&e.Key, &e.Value, &e.UpdatedAt,
	)

	return e, err
}

const upsertKV = `
INSERT INTO kv_entries (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT (key) DO UPDATE SET
    value = excluded.value,
    updated_at = excluded.updated_at`

func (q *Queries) UpsertKV(ctx context.Context, arg UpsertKVParams) error {
	_, err := q.db.ExecContext(
		ctx, upsertKV, arg.Key, arg.Value, arg.UpdatedAt,
	)

	return err
}

const deleteKV = `DELETE FROM kv_entries WHERE key = ?`

// DeleteKV returns the number of rows removed.
func (q *Queries) DeleteKV(ctx context.Context, key string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteKV, key)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

const listKVKeys = `
SELECT key FROM kv_entries
WHERE substr(key, 1, length(?1)) = ?1
ORDER BY key`

// ListKVKeys returns the keys starting with prefix, sorted. An empty prefix
// lists everything.
func (q *Queries) ListKVKeys(ctx context.Context,
	prefix string) ([]string, error) {

	rows, err := q.db.QueryContext(ctx, listKVKeys, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}

	return keys, rows.Err()
}

const kvTotalSize = `
SELECT COALESCE(SUM(length(key) + length(value)), 0) FROM kv_entries`

// KVTotalSize is the number of bytes held by all keys and values.
func (q *Queries) KVTotalSize(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, kvTotalSize).Scan(&n)

	return n, err
}

const kvSizeOf = `
SELECT COALESCE(SUM(length(key) + length(value)), 0) FROM kv_entries
WHERE key = ?`

// KVSizeOf is the number of bytes held by a single entry, zero if absent.
func (q *Queries) KVSizeOf(ctx context.Context, key string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, kvSizeOf, key).Scan(&n)

	return n, err
}

const insertOrganization = `
INSERT INTO organizations (id, name, created_at) VALUES (?, ?, ?)`

func (q *Queries) InsertOrganization(ctx context.Context,
	arg Organization) error {

	_, err := q.db.ExecContext(
		ctx, insertOrganization, arg.ID, arg.Name, arg.CreatedAt,
	)

	return err
}

const getOrganization = `
SELECT id, name, created_at FROM organizations WHERE id = ?`

// GetOrganization returns sql.ErrNoRows for an unknown id.
func (q *Queries) GetOrganization(ctx context.Context,
	id string) (Organization, error) {

	var o Organization
	err := q.db.QueryRowContext(ctx, getOrganization, id).Scan(
		&o.ID, &o.Name, &o.CreatedAt,
	)

	return o, err
}

const upsertSnapshot = `
INSERT INTO snapshots (org_id, revision, body, pushed_at) VALUES (?, ?, ?, ?)
ON CONFLICT (org_id) DO UPDATE SET
    revision = excluded.revision,
    body = excluded.body,
    pushed_at = excluded.pushed_at`

func (q *Queries) UpsertSnapshot(ctx context.Context, arg SnapshotRow) error {
	_, err := q.db.ExecContext(
		ctx, upsertSnapshot, arg.OrgID, arg.Revision, arg.Body,
		arg.PushedAt,
	)

	return err
}

const getSnapshot = `
SELECT org_id, revision, body, pushed_at FROM snapshots WHERE org_id = ?`

// GetSnapshot returns sql.ErrNoRows if nothing was pushed yet.
func (q *Queries) GetSnapshot(ctx context.Context,
	orgID string) (SnapshotRow, error) {

	var s SnapshotRow
	err := q.db.QueryRowContext(ctx, getSnapshot, orgID).Scan(
		&s.OrgID, &s.Revision, &s.Body, &s.PushedAt,
	)

	return s, err
}

var _ Querier = (*Queries)(nil)
