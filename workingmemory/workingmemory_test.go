package workingmemory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-ai/mnemo"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	wm := &mnemo.WorkingMemory{
		SessionID: "s1",
		Namespace: "ns",
		Messages: []mnemo.MemoryMessage{
			{ID: "m1", Role: "user", Content: "hi"},
		},
		Context: "summary",
		Data:    map[string]any{"key": "value"},
	}
	stored, err := store.Put(ctx, wm)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)

	got, err := store.Get(ctx, "ns", "s1")
	require.NoError(t, err)
	assert.Equal(t, wm.Messages, got.Messages)
	assert.Equal(t, "summary", got.Context)
	assert.Equal(t, map[string]any{"key": "value"}, got.Data)
}

func TestMemoryStoreNotFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "ns", "missing")
	require.Error(t, err)
	assert.Equal(t, mnemo.KindNotFound, mnemo.ErrorKind(err))
}

func TestMemoryStoreOptimisticConflict(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first, err := store.Put(ctx, &mnemo.WorkingMemory{SessionID: "s1"})
	require.NoError(t, err)

	// Writer 1 succeeds with the version it read.
	second, err := store.Put(ctx, &mnemo.WorkingMemory{SessionID: "s1", Version: first.Version})
	require.NoError(t, err)
	assert.Equal(t, first.Version+1, second.Version)

	// Writer 2 with the stale version conflicts.
	_, err = store.Put(ctx, &mnemo.WorkingMemory{SessionID: "s1", Version: first.Version})
	require.Error(t, err)
	assert.Equal(t, mnemo.KindConflict, mnemo.ErrorKind(err))

	// Zero version skips the check.
	_, err = store.Put(ctx, &mnemo.WorkingMemory{SessionID: "s1"})
	require.NoError(t, err)
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	_, err := store.Put(ctx, &mnemo.WorkingMemory{SessionID: "s1", TTLSeconds: 60})
	require.NoError(t, err)

	_, err = store.Get(ctx, "", "s1")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = store.Get(ctx, "", "s1")
	require.Error(t, err)
	assert.Equal(t, mnemo.KindNotFound, mnemo.ErrorKind(err))
}

func TestMemoryStoreList(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for _, s := range []struct{ ns, id string }{
		{"ns1", "b"}, {"ns1", "a"}, {"ns2", "c"},
	} {
		_, err := store.Put(ctx, &mnemo.WorkingMemory{SessionID: s.id, Namespace: s.ns})
		require.NoError(t, err)
	}

	ids, total, err := store.List(ctx, "ns1", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{"a", "b"}, ids)

	ids, total, err = store.List(ctx, "", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, ids, 3)

	ids, total, err = store.List(ctx, "ns1", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{"b"}, ids)

	ids, _, err = store.List(ctx, "ns1", 10, 5)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Put(ctx, &mnemo.WorkingMemory{SessionID: "s1"})
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, "", "s1"))

	_, err = store.Get(ctx, "", "s1")
	assert.Equal(t, mnemo.KindNotFound, mnemo.ErrorKind(err))

	// Deleting a missing session is not an error.
	require.NoError(t, store.Delete(ctx, "", "missing"))
}

func TestEmptyWorkingMemoryRoundTrips(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	stored, err := store.Put(ctx, &mnemo.WorkingMemory{SessionID: "s1"})
	require.NoError(t, err)
	got, err := store.Get(ctx, "", "s1")
	require.NoError(t, err)
	assert.Empty(t, got.Messages)
	assert.Empty(t, got.Context)
	assert.Equal(t, stored.Version, got.Version)
}

func TestDedupePendingLastWins(t *testing.T) {
	memories := []mnemo.MemoryRecord{
		{ID: "a", Text: "old"},
		{ID: "b", Text: "keep"},
		{ID: "a", Text: "new"},
		{Text: "no id"},
	}
	out := dedupePending(memories)
	require.Len(t, out, 3)
	assert.Equal(t, "keep", out[0].Text)
	assert.Equal(t, "new", out[1].Text)
	assert.Equal(t, "no id", out[2].Text)
}
