package transaction

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docengine/operation"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ops := []operation.Operation{
		operation.New(operation.KindStringSet, operation.NewPath("title"), "Hello"),
		operation.New(operation.KindNumberSet, operation.NewPath("count"), float64(3)),
	}
	tx := New("tx-1", ops, 1000)

	data, err := json.Marshal(tx)
	require.NoError(t, err)

	var decoded Transaction
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.True(t, Equal(tx, &decoded))
}

func TestDedupeCollapsesConsecutiveSamePath(t *testing.T) {
	path := operation.NewPath("title")
	ops := []operation.Operation{
		operation.New(operation.KindStringSet, path, "a"),
		operation.New(operation.KindStringSet, path, "b"),
		operation.New(operation.KindStringSet, path, "c"),
	}
	out := Dedupe(ops, operation.DefaultRegistry)
	require.Len(t, out, 1)
	assert.Equal(t, "c", out[0].Payload)
}

func TestDedupeKeepsNonConsecutiveAndDifferentPaths(t *testing.T) {
	a := operation.NewPath("a")
	b := operation.NewPath("b")
	ops := []operation.Operation{
		operation.New(operation.KindStringSet, a, "1"),
		operation.New(operation.KindStringSet, b, "x"),
		operation.New(operation.KindStringSet, a, "2"),
	}
	out := Dedupe(ops, operation.DefaultRegistry)
	require.Len(t, out, 3)
}

func TestDedupeSkipsNonDeduplicableKinds(t *testing.T) {
	path := operation.NewPath("arr")
	ops := []operation.Operation{
		operation.New(operation.KindArrayInsert, path, "a"),
		operation.New(operation.KindArrayInsert, path, "b"),
	}
	out := Dedupe(ops, operation.DefaultRegistry)
	require.Len(t, out, 2)
}

func TestEmptyTransactionDetected(t *testing.T) {
	tx := New("tx-empty", nil, 0)
	assert.True(t, tx.Empty())

	tx2 := New("tx-1", []operation.Operation{operation.New(operation.KindStringSet, operation.NewPath("a"), "x")}, 0)
	assert.False(t, tx2.Empty())
}
