package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/septapod/agentmapper/internal/db"
)

// SQLStore is a Store persisted in the kv_entries table.
type SQLStore struct {
	base  *db.BaseDB
	exec  *db.TransactionExecutor[*db.Queries]
	quota int64
	now   func() time.Time
}

// NewSQLStore wraps an opened, migrated database. A quota of zero or less
// means unlimited.
func NewSQLStore(base *db.BaseDB, quota int64) *SQLStore {
	return &SQLStore{
		base:  base,
		exec:  base.Executor(),
		quota: quota,
		now:   time.Now,
	}
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	e, err := s.base.GetKV(ctx, key)
	if err != nil {
		err = db.MapSQLError(err)
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("get %q: %w", key, err)
	}

	return e.Value, nil
}

// Set implements Store. The quota check and the write share a transaction.
func (s *SQLStore) Set(ctx context.Context, key string, value []byte) error {
	// A nil slice would bind as NULL.
	if value == nil {
		value = []byte{}
	}

	err := s.exec.ExecTx(ctx, db.WriteTxOption(), func(q *db.Queries) error {
		if s.quota > 0 {
			total, err := q.KVTotalSize(ctx)
			if err != nil {
				return err
			}
			old, err := q.KVSizeOf(ctx, key)
			if err != nil {
				return err
			}
			if total-old+entrySize(key, value) > s.quota {
				return ErrQuotaExceeded
			}
		}

		return q.UpsertKV(ctx, db.UpsertKVParams{
			Key:       key,
			Value:     value,
			UpdatedAt: s.now().UnixMilli(),
		})
	})

	switch {
	case err == nil:
		return nil

	case errors.Is(err, ErrQuotaExceeded) || db.IsStorageFull(err):
		return fmt.Errorf("set %q: %w", key, ErrQuotaExceeded)

	default:
		return fmt.Errorf("set %q: %w", key, err)
	}
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if _, err := s.base.DeleteKV(ctx, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, db.MapSQLError(err))
	}

	return nil
}

// Keys implements Store.
func (s *SQLStore) Keys(ctx context.Context, prefix string) ([]string,
	error) {

	keys, err := s.base.ListKVKeys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", db.MapSQLError(err))
	}

	return keys, nil
}

var _ Store = (*SQLStore)(nil)
