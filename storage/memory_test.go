package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage(nil, nil)

	_, found, err := s.Load(ctx, "doc-a")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Save(ctx, "doc-a", []byte("hello")))
	data, found, err := s.Load(ctx, "doc-a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("hello"), data)

	require.NoError(t, s.Delete(ctx, "doc-a"))
	_, found, err = s.Load(ctx, "doc-a")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStorageIsolatesDocuments(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage(nil, nil)
	require.NoError(t, s.Save(ctx, "doc-a", []byte("a")))
	require.NoError(t, s.Save(ctx, "doc-b", []byte("b")))

	a, _, _ := s.Load(ctx, "doc-a")
	b, _, _ := s.Load(ctx, "doc-b")
	assert.Equal(t, []byte("a"), a)
	assert.Equal(t, []byte("b"), b)
}

func TestMemoryWALOrdersByVersion(t *testing.T) {
	ctx := context.Background()
	w := NewMemoryWAL()
	require.NoError(t, w.Append(ctx, "doc-a", WALEntry{Version: 1, Tx: []byte("tx1")}))
	require.NoError(t, w.Append(ctx, "doc-a", WALEntry{Version: 2, Tx: []byte("tx2")}))
	require.NoError(t, w.Append(ctx, "doc-a", WALEntry{Version: 3, Tx: []byte("tx3")}))

	entries, err := w.Entries(ctx, "doc-a", 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, int64(2), entries[0].Version)
	assert.Equal(t, int64(3), entries[1].Version)
}
