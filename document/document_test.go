package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docengine/operation"
	"docengine/primitive"
)

func testSchema() *primitive.StructPrimitive {
	return primitive.Struct(
		primitive.F("title", primitive.String().Default("")),
		primitive.F("count", primitive.Number().Default(0)),
	)
}

func TestDocumentProxyMutationBuffersPending(t *testing.T) {
	doc := New(testSchema(), operation.DefaultRegistry)
	root := doc.Root().(primitive.StructProxy)

	require.NoError(t, root.Field("title").(primitive.StringProxy).Set("hello"))
	assert.Equal(t, 1, doc.Pending())

	state := doc.State().(map[string]primitive.State)
	assert.Equal(t, "hello", state["title"])

	tx := doc.Flush()
	require.NotNil(t, tx)
	assert.Len(t, tx.Ops, 1)
	assert.Equal(t, 0, doc.Pending())
}

func TestDocumentMutationRollsBackOnError(t *testing.T) {
	doc := New(testSchema(), operation.DefaultRegistry)
	before := doc.State()

	err := doc.Push(operation.New(operation.KindStringSet, operation.NewPath("nope"), "x"))
	assert.Error(t, err)
	assert.Equal(t, before, doc.State())
	assert.Equal(t, 0, doc.Pending())
}

func TestDocumentTransactionAppliesImmediatelyAndFlushesAsOneBatch(t *testing.T) {
	doc := New(testSchema(), operation.DefaultRegistry)

	err := doc.Transaction(func(rootAny any) error {
		root := rootAny.(primitive.StructProxy)
		require.NoError(t, root.Field("title").(primitive.StringProxy).Set("a"))
		// the second write observes the first write's effect already applied
		assert.Equal(t, "a", root.Field("title").(primitive.StringProxy).Get())
		return root.Field("count").(primitive.NumberProxy).Set(3)
	})
	require.NoError(t, err)

	state := doc.State().(map[string]primitive.State)
	assert.Equal(t, "a", state["title"])
	assert.Equal(t, 3.0, state["count"])
	assert.Equal(t, 2, doc.Pending())
}

func TestDocumentTransactionRollsBackOnError(t *testing.T) {
	doc := New(testSchema(), operation.DefaultRegistry)
	before := doc.State()

	err := doc.Transaction(func(rootAny any) error {
		root := rootAny.(primitive.StructProxy)
		require.NoError(t, root.Field("title").(primitive.StringProxy).Set("a"))
		return assertionError{}
	})
	assert.Error(t, err)
	assert.Equal(t, before, doc.State())
	assert.Equal(t, 0, doc.Pending())
}

func TestDocumentNestedTransactionRejected(t *testing.T) {
	doc := New(testSchema(), operation.DefaultRegistry)

	err := doc.Transaction(func(rootAny any) error {
		return doc.Transaction(func(any) error { return nil })
	})
	assert.ErrorIs(t, err, ErrNestedTransaction)
}

func TestDocumentApplyBypassesPending(t *testing.T) {
	doc := New(testSchema(), operation.DefaultRegistry)

	err := doc.Apply([]operation.Operation{
		operation.New(operation.KindStringSet, operation.NewPath("title"), "from-server"),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, doc.Pending())
	state := doc.State().(map[string]primitive.State)
	assert.Equal(t, "from-server", state["title"])
}

func TestDocumentFlushDeduplicatesConsecutiveSamePath(t *testing.T) {
	doc := New(testSchema(), operation.DefaultRegistry)
	root := doc.Root().(primitive.StructProxy)

	require.NoError(t, root.Field("title").(primitive.StringProxy).Set("a"))
	require.NoError(t, root.Field("title").(primitive.StringProxy).Set("b"))

	tx := doc.Flush()
	require.NotNil(t, tx)
	require.Len(t, tx.Ops, 1)
	assert.Equal(t, "b", tx.Ops[0].Payload)
}

func TestDocumentFlushEmptyReturnsNil(t *testing.T) {
	doc := New(testSchema(), operation.DefaultRegistry)
	assert.Nil(t, doc.Flush())
}

// assertionError is a tiny sentinel error for transaction rollback tests.
type assertionError struct{}

func (assertionError) Error() string { return "boom" }
