package blobstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Store(ctx, "tables/t/1.part", []byte("hello")))

	data, err := store.Load(ctx, "tables/t/1.part")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	exists, err := store.Exists(ctx, "tables/t/1.part")
	require.NoError(t, err)
	assert.True(t, exists)

	names, err := store.List(ctx, "tables/t")
	require.NoError(t, err)
	assert.Contains(t, names, "tables/t/1.part")

	require.NoError(t, store.Delete(ctx, "tables/t/1.part"))
	_, err = store.Load(ctx, "tables/t/1.part")
	assert.Error(t, err)
}

func TestFSStoreLoadRange(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Store(ctx, "x", []byte("0123456789")))

	data, err := store.LoadRange(ctx, "x", 2, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("2345"), data)
}

func TestBoltStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewBoltStore(filepath.Join(t.TempDir(), "blobs.db"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Store(ctx, "a/b", []byte("payload")))
	data, err := store.Load(ctx, "a/b")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	names, err := store.List(ctx, "a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/b"}, names)
}

func TestChecksummedRejectsCorruption(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	cs := NewChecksummed(fs)

	require.NoError(t, cs.Store(ctx, "col", []byte("abcdef")))

	raw, err := fs.Load(ctx, "col")
	require.NoError(t, err)
	corrupted := append([]byte(nil), raw...)
	corrupted[len(corrupted)-1] ^= 0xff
	require.NoError(t, fs.Store(ctx, "col", corrupted))

	_, err = cs.Load(ctx, "col")
	assert.Error(t, err)
}

func TestChecksummedRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	cs := NewChecksummed(fs)

	require.NoError(t, cs.Store(ctx, "col", []byte("the quick brown fox")))
	data, err := cs.Load(ctx, "col")
	require.NoError(t, err)
	assert.Equal(t, []byte("the quick brown fox"), data)
}
