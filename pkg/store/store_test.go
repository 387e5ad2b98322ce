package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dotsetgreg/repcue/pkg/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state", "repcue.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStores_Contract(t *testing.T) {
	impls := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"sqlite": func(t *testing.T) Store { return newSQLite(t) },
	}
	for name, build := range impls {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := build(t)
			key := Key{SessionID: "class-7", UserID: "u1"}

			_, err := s.Load(ctx, key)
			require.ErrorIs(t, err, ErrNotFound)

			at := time.UnixMilli(1_700_000_000_000)
			require.NoError(t, s.Save(ctx, Snapshot{Key: key, Phase: "INITIAL_COLLECTED", State: []byte(`{"v":1}`), UpdatedAt: at}))
			require.NoError(t, s.Save(ctx, Snapshot{Key: key, Phase: "FOLLOWUP_SENT", State: []byte(`{"v":2}`), UpdatedAt: at.Add(time.Second)}))
			require.NoError(t, s.Save(ctx, Snapshot{Key: Key{SessionID: "class-7", UserID: "u2"}, Phase: "NOT_STARTED", State: []byte(`{}`)}))
			require.NoError(t, s.Save(ctx, Snapshot{Key: Key{SessionID: "class-8", UserID: "u1"}, Phase: "NOT_STARTED", State: []byte(`{}`)}))

			got, err := s.Load(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, "FOLLOWUP_SENT", got.Phase)
			assert.JSONEq(t, `{"v":2}`, string(got.State))
			assert.Equal(t, at.Add(time.Second).UnixMilli(), got.UpdatedAt.UnixMilli())

			list, err := s.ListSession(ctx, "class-7")
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "u1", list[0].UserID)
			assert.Equal(t, "u2", list[1].UserID)

			n, err := s.DeleteSession(ctx, "class-7")
			require.NoError(t, err)
			assert.Equal(t, 2, n)
			_, err = s.Load(ctx, key)
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.Load(ctx, Key{SessionID: "class-8", UserID: "u1"})
			assert.NoError(t, err)

			assert.Error(t, s.Save(ctx, Snapshot{Key: Key{SessionID: " "}}))
		})
	}
}

func TestMemoryStore_FailureIsUnavailable(t *testing.T) {
	s := NewMemoryStore()
	s.FailWith = errors.New("disk full")
	err := s.Save(context.Background(), Snapshot{Key: Key{SessionID: "s", UserID: "u"}})
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "disk full")
}

func TestMemoryStore_LoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	key := Key{SessionID: "s", UserID: "u"}
	require.NoError(t, s.Save(ctx, Snapshot{Key: key, State: []byte("abc")}))
	got, err := s.Load(ctx, key)
	require.NoError(t, err)
	got.State[0] = 'z'
	again, _ := s.Load(ctx, key)
	assert.Equal(t, "abc", string(again.State))
}

func TestSQLiteStore_CatalogSource(t *testing.T) {
	ctx := context.Background()
	s := newSQLite(t)

	entries, err := s.ListCatalog(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	defaults := catalog.DefaultEntries()
	require.NoError(t, s.ReplaceCatalog(ctx, defaults))
	n, err := s.CatalogSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(defaults), n)

	entries, err = s.ListCatalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, defaults, entries)

	// The store plugs straight into the catalog index.
	ix := catalog.NewIndex(s, time.Minute)
	snap, err := ix.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap, len(defaults))

	dup := []catalog.Entry{{ID: "a", Name: "A"}, {ID: "a", Name: "B"}}
	assert.Error(t, s.ReplaceCatalog(ctx, dup))
	n, _ = s.CatalogSize(ctx)
	assert.Equal(t, len(defaults), n)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "repcue.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	key := Key{SessionID: "s", UserID: "u"}
	require.NoError(t, s.Save(ctx, Snapshot{Key: key, Phase: "PREFERENCES_ACTIVE", State: []byte(`{}`)}))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "PREFERENCES_ACTIVE", got.Phase)
	require.NoError(t, s.Ping(ctx))
}
