package config

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/bookshop/internal/infrastructure/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_Memory(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	b, err := cfg.Open(context.Background())
	require.NoError(t, err)
	defer b.Close()

	assert.IsType(t, &store.MemoryStore{}, b.Documents)
	assert.IsType(t, &store.EventStore{}, b.Events)
	assert.Nil(t, b.Producer)
}

func TestOpen_SQLite(t *testing.T) {
	clearEnv(t)
	t.Setenv("CATALOG_BACKEND", BackendSQLite)
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "data", "shop.db"))
	cfg, err := Load()
	require.NoError(t, err)

	b, err := cfg.Open(context.Background())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, b.Documents.Insert(ctx, "books", "b-1", []byte(`{"id":"b-1","isbn":"0199535566"}`)))
	_, err = b.Documents.Get(ctx, "books", "b-1")
	assert.NoError(t, err)
	assert.NoError(t, b.Close())
}
