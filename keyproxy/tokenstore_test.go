package keyproxy_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/grasp-labs/ds-keyproxy-go-sdk/internal/fakes"
	"github.com/grasp-labs/ds-keyproxy-go-sdk/keyproxy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
)

func exerciseStore(t *testing.T, store keyproxy.TokenStore) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := store.Load(ctx, keyproxy.TokenKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Save(ctx, keyproxy.TokenKey, "first"))
	require.NoError(t, store.Save(ctx, keyproxy.TokenKey, "second"))
	v, ok, err := store.Load(ctx, keyproxy.TokenKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "second", v)

	require.NoError(t, store.Delete(ctx, keyproxy.TokenKey))
	require.NoError(t, store.Delete(ctx, keyproxy.TokenKey))
	_, ok, err = store.Load(ctx, keyproxy.TokenKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryTokenStore(t *testing.T) {
	exerciseStore(t, keyproxy.NewMemoryTokenStore())
}

func TestFileTokenStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.yaml")
	store := keyproxy.NewFileTokenStore(path)
	exerciseStore(t, store)

	require.NoError(t, store.Save(context.Background(), keyproxy.TokenKey, "tok"))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reopened := keyproxy.NewFileTokenStore(path)
	v, ok, err := reopened.Load(context.Background(), keyproxy.TokenKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", v)
}

func TestFileTokenStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte("token: [unterminated"), 0o600))

	_, _, err := keyproxy.NewFileTokenStore(path).Load(context.Background(), keyproxy.TokenKey)
	assert.Error(t, err)
}

func TestGormTokenStore_WithSQLite(t *testing.T) {
	t.Parallel()

	dsn := fakes.MemoryDSN(t)
	table := "session_values"

	// seed through a separate handle; the store must see the same DB
	db := fakes.NewDB(t, dsn, table)
	require.NoError(t, db.Table(table).Create(&keyproxy.StoredValue{Key: "other", Value: "kept"}).Error)

	store, err := keyproxy.NewGormTokenStore(sqlite.Open(dsn), table)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	exerciseStore(t, store)

	v, ok, err := store.Load(context.Background(), "other")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "kept", v)
}

func TestGormTokenStore_RejectsBadTable(t *testing.T) {
	_, err := keyproxy.NewGormTokenStore(sqlite.Open(fakes.MemoryDSN(t)), "sessions; drop table x")
	assert.ErrorContains(t, err, "invalid table name")
}
