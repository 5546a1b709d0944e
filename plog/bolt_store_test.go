package plog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	dir := t.TempDir()
	store, err := OpenBoltStore(filepath.Join(dir, "plog.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBoltStore_AppendAndRead(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids, err := store.Create(ctx, 1)
	require.NoError(t, err)
	id := ids[0]

	off1, err := store.Append(ctx, id, []byte("hello "))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), off1)

	off2, err := store.Append(ctx, id, []byte("world"))
	require.NoError(t, err)
	assert.Equal(t, uint32(6), off2)

	info, err := store.GetInfo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint32(11), info.Size)
	assert.False(t, info.Sealed)

	data, err := store.Read(ctx, id, Region{Offset: 0, Size: 11})
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	data, err = store.Read(ctx, id, Region{Offset: 3, Size: 5})
	require.NoError(t, err)
	assert.Equal(t, "lo wo", string(data))
}

func TestBoltStore_SealRejectsAppend(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids, err := store.Create(ctx, 1)
	require.NoError(t, err)
	id := ids[0]

	require.NoError(t, store.Seal(ctx, id))

	_, err = store.Append(ctx, id, []byte("late"))
	assert.ErrorIs(t, err, ErrSealed)
}

func TestBoltStore_DropRemovesLog(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids, err := store.Create(ctx, 1)
	require.NoError(t, err)
	id := ids[0]

	require.NoError(t, store.Drop(ctx, id))

	_, err = store.GetInfo(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBoltStore_UnknownIdErrors(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetInfo(context.Background(), PlogId("nope"))
	assert.ErrorIs(t, err, ErrNotFound)
}
