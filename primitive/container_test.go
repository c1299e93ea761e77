package primitive

import (
	"testing"

	"docengine/operation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema() *StructPrimitive {
	return Struct(
		F("title", String().Default("")),
		F("count", Number().Default(0)),
	)
}

func TestStructApplyOperationSetAndNested(t *testing.T) {
	schema := testSchema()
	state := schema.InitialState()
	assert.Equal(t, map[string]State{"title": "", "count": 0.0}, state)

	state, err := schema.ApplyOperation(state, operation.New(operation.KindStringSet, operation.NewPath("title"), "hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", state.(map[string]State)["title"])

	_, err = schema.ApplyOperation(state, operation.New(operation.KindStringSet, operation.NewPath("nope"), "x"))
	assert.Error(t, err)
}

func TestStructWholesaleSetFillsDefaults(t *testing.T) {
	schema := testSchema()
	state, err := schema.ApplyOperation(nil, operation.New(operation.KindStructSet, operation.NewPath(), map[string]any{"title": "hi"}))
	require.NoError(t, err)
	m := state.(map[string]State)
	assert.Equal(t, "hi", m["title"])
	assert.Equal(t, 0.0, m["count"])
}

func TestStructWholesaleSetRejectsOmittedRequiredField(t *testing.T) {
	schema := Struct(
		F("title", String().Required()),
		F("count", Number().Default(0)),
	)
	_, err := schema.ApplyOperation(nil, operation.New(operation.KindStructSet, operation.NewPath(), map[string]any{"count": 1.0}))
	assert.Error(t, err)
}

func TestApplyDefaultsRecursesIntoNestedStructs(t *testing.T) {
	schema := Struct(
		F("meta", Struct(F("author", String().Default("anon")))),
		F("title", String().Required()),
	)
	result := ApplyDefaults(schema, map[string]any{"title": "hello"})
	m := result.(map[string]State)
	assert.Equal(t, "hello", m["title"])
	assert.Equal(t, "anon", m["meta"].(map[string]State)["author"])
}

func TestStructProxy(t *testing.T) {
	env := newFakeEnv()
	schema := testSchema()
	proxy := schema.CreateProxy(env, operation.NewPath()).(StructProxy)
	title := proxy.Field("title").(StringProxy)
	require.NoError(t, title.Set("hi"))
	require.Len(t, env.pushed, 1)
	assert.Equal(t, operation.NewPath("title"), env.pushed[0].Path)

	assert.Panics(t, func() { proxy.Field("nope") })
}

func TestArrayInsertRemoveMove(t *testing.T) {
	arr := Array(String())
	state := arr.InitialState()

	state, err := arr.ApplyOperation(state, operation.New(operation.KindArrayInsert, operation.NewPath(), map[string]any{"id": "a", "pos": "m", "value": "A"}))
	require.NoError(t, err)
	state, err = arr.ApplyOperation(state, operation.New(operation.KindArrayInsert, operation.NewPath(), map[string]any{"id": "b", "pos": "z", "value": "B"}))
	require.NoError(t, err)

	entries := state.([]ArrayEntry)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].ID)
	assert.Equal(t, "b", entries[1].ID)

	state, err = arr.ApplyOperation(state, operation.New(operation.KindArrayMove, operation.NewPath(), map[string]any{"id": "a", "pos": "zz"}))
	require.NoError(t, err)
	entries = state.([]ArrayEntry)
	assert.Equal(t, "b", entries[0].ID)
	assert.Equal(t, "a", entries[1].ID)

	state, err = arr.ApplyOperation(state, operation.New(operation.KindArrayRemove, operation.NewPath(), map[string]any{"id": "b"}))
	require.NoError(t, err)
	entries = state.([]ArrayEntry)
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].ID)

	_, err = arr.ApplyOperation(state, operation.New(operation.KindArrayRemove, operation.NewPath(), map[string]any{"id": "missing"}))
	assert.Error(t, err)
}

func TestArrayNestedOperation(t *testing.T) {
	arr := Array(String())
	state, err := arr.ApplyOperation(arr.InitialState(), operation.New(operation.KindArrayInsert, operation.NewPath(), map[string]any{"id": "a", "pos": "m", "value": "A"}))
	require.NoError(t, err)

	state, err = arr.ApplyOperation(state, operation.New(operation.KindStringSet, operation.NewPath("a"), "A2"))
	require.NoError(t, err)
	entries := state.([]ArrayEntry)
	assert.Equal(t, "A2", entries[0].Value)
}

func TestArrayTransformRemoveCrossedByNestedOp(t *testing.T) {
	arr := Array(String())
	serverOp := operation.New(operation.KindArrayRemove, operation.NewPath(), map[string]any{"id": "a"})
	clientOp := operation.New(operation.KindStringSet, operation.NewPath("a"), "new")

	result := arr.TransformOperation(clientOp, serverOp)
	assert.Equal(t, Noop, result.Outcome)
}

func TestArrayTransformDifferentIDsNoConflict(t *testing.T) {
	arr := Array(String())
	serverOp := operation.New(operation.KindArrayRemove, operation.NewPath(), map[string]any{"id": "b"})
	clientOp := operation.New(operation.KindStringSet, operation.NewPath("a"), "new")

	result := arr.TransformOperation(clientOp, serverOp)
	require.Equal(t, Transformed, result.Outcome)
	assert.Equal(t, clientOp, result.Op)
}

func TestArrayProxyAppendPushesInsert(t *testing.T) {
	env := newFakeEnv()
	arr := Array(String())
	proxy := arr.CreateProxy(env, operation.NewPath()).(ArrayProxy)

	_, err := proxy.Append("first")
	require.NoError(t, err)
	require.Len(t, env.pushed, 1)
	assert.Equal(t, operation.KindArrayInsert, env.pushed[0].Kind)
}

func circleSquareUnion() *UnionPrimitive {
	circle := Struct(F("type", Literal("circle")), F("radius", Number().Default(1)))
	square := Struct(F("type", Literal("square")), F("side", Number().Default(1)))
	return Union(UV("circle", circle), UV("square", square))
}

func TestUnionSetAndNestedOp(t *testing.T) {
	u := circleSquareUnion()
	state, err := u.ApplyOperation(nil, operation.New(operation.KindUnionSet, operation.NewPath(), map[string]any{"type": "circle", "radius": 5.0}))
	require.NoError(t, err)
	m := state.(map[string]State)
	assert.Equal(t, "circle", m["type"])
	assert.Equal(t, 5.0, m["radius"])

	state, err = u.ApplyOperation(state, operation.New(operation.KindNumberSet, operation.NewPath("radius"), 9.0))
	require.NoError(t, err)
	assert.Equal(t, 9.0, state.(map[string]State)["radius"])

	_, err = u.ApplyOperation(nil, operation.New(operation.KindUnionSet, operation.NewPath(), map[string]any{"type": "triangle"}))
	assert.Error(t, err)
}

func TestUnionProxy(t *testing.T) {
	env := newFakeEnv()
	u := circleSquareUnion()
	proxy := u.CreateProxy(env, operation.NewPath()).(UnionProxy)
	require.NoError(t, proxy.Set(map[string]any{"type": "square", "side": 2.0}))
	require.Len(t, env.pushed, 1)
	assert.Equal(t, operation.KindUnionSet, env.pushed[0].Kind)
}

func docTreeSchema() *TreePrimitive {
	folderData := Struct(F("name", String().Default("")))
	fileData := Struct(F("name", String().Default("")))
	return Tree("folder",
		TreeNodeType{Name: "folder", Data: folderData, AllowedChildren: []string{"folder", "file"}},
		TreeNodeType{Name: "file", Data: fileData, AllowedChildren: nil},
	)
}

func TestTreeInitialStateSynthesizesRoot(t *testing.T) {
	tree := docTreeSchema()
	nodes := tree.InitialState().([]TreeNodeState)
	require.Len(t, nodes, 1)
	assert.Equal(t, "folder", nodes[0].Type)
	assert.Nil(t, nodes[0].ParentID)
}

func TestTreeInsertRemoveMoveInvariants(t *testing.T) {
	tree := docTreeSchema()
	state := tree.InitialState()
	rootID := state.([]TreeNodeState)[0].ID

	state, err := tree.ApplyOperation(state, operation.New(operation.KindTreeInsert, operation.NewPath(), map[string]any{
		"id": "f1", "type": "file", "parentId": rootID, "pos": "m", "data": map[string]any{"name": "readme"},
	}))
	require.NoError(t, err)

	_, err = tree.ApplyOperation(state, operation.New(operation.KindTreeInsert, operation.NewPath(), map[string]any{
		"id": "bad", "type": "folder", "parentId": "f1", "pos": "m", "data": map[string]any{"name": "x"},
	}))
	assert.Error(t, err, "file cannot parent a folder")

	_, err = tree.ApplyOperation(state, operation.New(operation.KindTreeMove, operation.NewPath(), map[string]any{
		"id": rootID, "newParentId": "f1", "pos": "m",
	}))
	assert.Error(t, err, "cannot reparent the root")

	state, err = tree.ApplyOperation(state, operation.New(operation.KindTreeRemove, operation.NewPath(), map[string]any{"id": rootID}))
	require.NoError(t, err)
	nodes := state.([]TreeNodeState)
	assert.Len(t, nodes, 0, "removing the root cascades to all descendants")
}

func TestTreeMoveCycleRejected(t *testing.T) {
	tree := docTreeSchema()
	state := tree.InitialState()
	rootID := state.([]TreeNodeState)[0].ID

	state, err := tree.ApplyOperation(state, operation.New(operation.KindTreeInsert, operation.NewPath(), map[string]any{
		"id": "child", "type": "folder", "parentId": rootID, "pos": "m", "data": map[string]any{"name": "c"},
	}))
	require.NoError(t, err)

	_, err = tree.ApplyOperation(state, operation.New(operation.KindTreeMove, operation.NewPath(), map[string]any{
		"id": rootID, "newParentId": "child", "pos": "m",
	}))
	assert.Error(t, err)
}

func TestTreeTransformRemoveCrossesReference(t *testing.T) {
	tree := docTreeSchema()
	serverOp := operation.New(operation.KindTreeRemove, operation.NewPath(), map[string]any{"id": "child"})
	clientOp := operation.New(operation.KindTreeInsert, operation.NewPath(), map[string]any{"id": "grandchild", "type": "file", "parentId": "child", "pos": "m"})

	result := tree.TransformOperation(clientOp, serverOp)
	assert.Equal(t, Noop, result.Outcome)
}

func TestLazyPrimitiveResolvesOnce(t *testing.T) {
	calls := 0
	lazy := Lazy(func() Primitive {
		calls++
		return Boolean().Default(true)
	})
	assert.Equal(t, true, lazy.InitialState())
	assert.Equal(t, true, lazy.InitialState())
	assert.Equal(t, 1, calls)
}
