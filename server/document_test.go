package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docengine/operation"
	"docengine/primitive"
	"docengine/pubsub"
	"docengine/storage"
	"docengine/transaction"
)

func testSchema() *primitive.StructPrimitive {
	return primitive.Struct(
		primitive.F("title", primitive.String().Default("")),
		primitive.F("count", primitive.Number().Default(0)),
	)
}

func setOp(field string, v any, kind operation.Kind) operation.Operation {
	return operation.New(kind, operation.NewPath(field), v)
}

func TestSubmitRejectsEmptyTransaction(t *testing.T) {
	sd := New("doc-1", testSchema())
	tx := transaction.New("tx-1", nil, 1)
	_, err := sd.Submit(context.Background(), tx)
	assert.Error(t, err)
	assert.Equal(t, int64(0), sd.Version())
}

func TestSubmitRejectsDuplicateTransaction(t *testing.T) {
	sd := New("doc-1", testSchema())
	tx := transaction.New("tx-1", []operation.Operation{setOp("title", "hi", operation.KindStringSet)}, 1)

	_, err := sd.Submit(context.Background(), tx)
	require.NoError(t, err)

	_, err = sd.Submit(context.Background(), tx)
	assert.Error(t, err)
	assert.Equal(t, int64(1), sd.Version())
}

func TestSubmitRollsBackOnValidationFailure(t *testing.T) {
	sd := New("doc-1", testSchema())
	before, _ := sd.Snapshot()

	tx := transaction.New("tx-1", []operation.Operation{
		setOp("nope", "x", operation.KindStringSet),
	}, 1)
	_, err := sd.Submit(context.Background(), tx)
	assert.Error(t, err)

	after, version := sd.Snapshot()
	assert.Equal(t, before, after)
	assert.Equal(t, int64(0), version)
}

func TestSubmitIncrementsVersionAndBroadcasts(t *testing.T) {
	sd := New("doc-1", testSchema())
	_, ch, cancel := sd.Subscribe()
	defer cancel()

	tx := transaction.New("tx-1", []operation.Operation{setOp("title", "hi", operation.KindStringSet)}, 1)
	result, err := sd.Submit(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Version)

	select {
	case msg := <-ch:
		assert.Equal(t, "transaction", msg.Type)
		assert.Equal(t, int64(1), msg.Version)
		assert.Equal(t, "tx-1", msg.Transaction.ID)
	default:
		t.Fatal("expected a broadcast message")
	}
}

func TestSubmitAppendsWALEntry(t *testing.T) {
	wal := storage.NewMemoryWAL()
	sd := New("doc-1", testSchema(), WithWAL(wal))

	tx := transaction.New("tx-1", []operation.Operation{setOp("title", "hi", operation.KindStringSet)}, 1)
	_, err := sd.Submit(context.Background(), tx)
	require.NoError(t, err)

	entries, err := wal.Entries(context.Background(), "doc-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].Version)
}

func TestLoadReplaysWALAfterSnapshot(t *testing.T) {
	cold := storage.NewMemoryStorage(nil, nil)
	wal := storage.NewMemoryWAL()
	ctx := context.Background()

	sd := New("doc-1", testSchema(), WithStorage(cold), WithWAL(wal))
	tx1 := transaction.New("tx-1", []operation.Operation{setOp("title", "a", operation.KindStringSet)}, 1)
	_, err := sd.Submit(ctx, tx1)
	require.NoError(t, err)
	require.NoError(t, sd.Save(ctx)) // snapshot pinned at version 1

	tx2 := transaction.New("tx-2", []operation.Operation{setOp("count", 5.0, operation.KindNumberSet)}, 2)
	_, err = sd.Submit(ctx, tx2) // only reaches the WAL, snapshot stays at version 1
	require.NoError(t, err)

	reloaded := New("doc-1", testSchema(), WithStorage(cold), WithWAL(wal))
	require.NoError(t, reloaded.Load(ctx))

	state, version := reloaded.Snapshot()
	assert.Equal(t, int64(2), version)
	m := state.(map[string]primitive.State)
	assert.Equal(t, "a", m["title"])
	assert.Equal(t, 5.0, m["count"])
}

func TestLoadWithNoSnapshotStaysAtInitialState(t *testing.T) {
	cold := storage.NewMemoryStorage(nil, nil)
	ctx := context.Background()

	sd := New("doc-1", testSchema(), WithStorage(cold))
	require.NoError(t, sd.Load(ctx))

	state, version := sd.Snapshot()
	assert.Equal(t, int64(0), version)
	m := state.(map[string]primitive.State)
	assert.Equal(t, "", m["title"])
}

func TestMirrorRemoteAppliesRelayedTransactions(t *testing.T) {
	relay := pubsub.NewMemory()
	ctx := context.Background()

	owner := New("doc-1", testSchema(), WithBroadcaster(relay))
	mirror := New("doc-1", testSchema())
	require.NoError(t, mirror.MirrorRemote(ctx, "mirror-1"))

	_, mirrorCh, cancel := mirror.Subscribe()
	defer cancel()

	tx := transaction.New("tx-1", []operation.Operation{setOp("title", "hi", operation.KindStringSet)}, 1)
	_, err := owner.Submit(ctx, tx)
	require.NoError(t, err)

	select {
	case msg := <-mirrorCh:
		assert.Equal(t, int64(1), msg.Version)
	default:
		t.Fatal("expected the mirror to receive and rebroadcast the relayed transaction")
	}
	state, version := mirror.Snapshot()
	assert.Equal(t, int64(1), version)
	m := state.(map[string]primitive.State)
	assert.Equal(t, "hi", m["title"])
}

func TestSubscribeCancelClosesChannel(t *testing.T) {
	sd := New("doc-1", testSchema())
	_, ch, cancel := sd.Subscribe()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
}
