package kvstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/septapod/agentmapper/internal/db"
	"github.com/stretchr/testify/require"
)

// stores returns one of each implementation, all sharing quota.
func stores(t *testing.T, quota int64) map[string]Store {
	t.Helper()

	base, err := db.Open(filepath.Join(t.TempDir(), "kv.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { base.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(quota),
		"sql":    NewSQLStore(base, quota),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, s := range stores(t, 0) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.Get(ctx, "a")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Set(ctx, "a", []byte("1")))
			require.NoError(t, s.Set(ctx, "a", []byte("2")))
			require.NoError(t, s.Set(ctx, "pre-x", []byte("x")))
			require.NoError(t, s.Set(ctx, "pre-y", []byte("y")))

			v, err := s.Get(ctx, "a")
			require.NoError(t, err)
			require.Equal(t, "2", string(v))

			keys, err := s.Keys(ctx, "pre-")
			require.NoError(t, err)
			require.Equal(t, []string{"pre-x", "pre-y"}, keys)

			keys, err = s.Keys(ctx, "")
			require.NoError(t, err)
			require.Len(t, keys, 3)

			require.NoError(t, s.Delete(ctx, "a"))
			require.NoError(t, s.Delete(ctx, "a"))

			_, err = s.Get(ctx, "a")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreQuota(t *testing.T) {
	// Ten bytes: "k" + 9 value bytes fits exactly.
	for name, s := range stores(t, 10) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, s.Set(ctx, "k", []byte("123456789")))

			// Growing past the quota fails and keeps the old value.
			err := s.Set(ctx, "k", []byte("1234567890"))
			require.ErrorIs(t, err, ErrQuotaExceeded)

			v, err := s.Get(ctx, "k")
			require.NoError(t, err)
			require.Equal(t, "123456789", string(v))

			// A second key does not fit either.
			require.ErrorIs(t, s.Set(ctx, "j", nil), ErrQuotaExceeded)

			// Shrinking in place is fine and frees room.
			require.NoError(t, s.Set(ctx, "k", []byte("1")))
			require.NoError(t, s.Set(ctx, "j", []byte("12345")))
		})
	}
}

func TestMemoryStoreCopies(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()

	buf := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", buf))
	buf[0] = 'z'

	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "abc", string(v))
	require.EqualValues(t, 4, s.Used())
}
