package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	store, err := NewFileStore(dir, "saarthiCache")
	require.NoError(t, err)
	ctx := context.Background()

	data, err := store.Read(ctx)
	require.NoError(t, err)
	require.Nil(t, data)

	require.NoError(t, store.Write(ctx, []byte(`[]`)))
	require.NoError(t, store.Write(ctx, []byte(`[{"text":"hi"}]`)))

	data, err = store.Read(ctx)
	require.NoError(t, err)
	require.JSONEq(t, `[{"text":"hi"}]`, string(data))
	require.Equal(t, filepath.Join(dir, "saarthiCache.json"), store.Path())

	_, err = os.Stat(store.Path() + ".tmp")
	require.True(t, os.IsNotExist(err))
}

func TestFileStoreRejectsBadSlot(t *testing.T) {
	for _, slot := range []string{"", "../escape", "a/b", ".."} {
		_, err := NewFileStore(t.TempDir(), slot)
		require.Error(t, err, slot)
	}
}

func TestCacheOverFileStoreSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewStore(ctx, "", dir, "saarthiCache")
	require.NoError(t, err)
	c := New(store, 5, 100, nil, nil)
	c.Insert(ctx, NewExchange("turn left at the signal", "Take the next left", "navigation", "en"))

	store2, err := NewStore(ctx, "", dir, "saarthiCache")
	require.NoError(t, err)
	got := New(store2, 5, 100, nil, nil).LoadAll(ctx)
	require.Len(t, got, 1)
	require.Equal(t, "navigation", got[0].Intent)
	require.False(t, got[0].CreatedAt.IsZero())
}

func TestNewStoreWithoutDirIsInMemory(t *testing.T) {
	store, err := NewStore(context.Background(), "", "", "saarthiCache")
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, store)
}
