package primitive

import (
	"docengine/docerrors"
	"docengine/operation"
)

// wholesaleSetKind returns the operation kind a primitive accepts when a
// parent container replaces it in one shot (struct.set's payload fields,
// which union.set's variant fields go through, array entry values, tree
// node data, and Hydrate). Lazy is unwrapped to its resolved body first.
func wholesaleSetKind(p Primitive) (operation.Kind, bool) {
	switch v := p.(type) {
	case *StringPrimitive:
		return operation.KindStringSet, true
	case *NumberPrimitive:
		return operation.KindNumberSet, true
	case *BooleanPrimitive:
		return operation.KindBooleanSet, true
	case *LiteralPrimitive:
		return operation.KindLiteralSet, true
	case *EitherPrimitive:
		return operation.KindEitherSet, true
	case *StructPrimitive:
		return operation.KindStructSet, true
	case *ArrayPrimitive:
		return operation.KindArraySet, true
	case *UnionPrimitive:
		return operation.KindUnionSet, true
	case *TreePrimitive:
		return operation.KindTreeSet, true
	case *LazyPrimitive:
		return wholesaleSetKind(v.resolve())
	default:
		return "", false
	}
}

// ContainerOverlap applies the path-relationship half of the OT rules
// shared by every container primitive (Struct, Array, Union, Tree):
// disjoint paths pass the client op through unchanged, identical paths
// are last-write-wins, and either op sitting at or above this container's
// root also lets the client op proceed optimistically. It returns
// handled=false when both operations reach strictly deeper than this
// container under the same first token, meaning the caller must shift
// one token off each path and delegate to the matching child.
func ContainerOverlap(clientOp, serverOp operation.Operation) (result TransformResult, handled bool) {
	if !operation.Overlap(clientOp.Path, serverOp.Path) {
		return TransformedResult(clientOp), true
	}
	if operation.Equal(clientOp.Path, serverOp.Path) {
		return TransformedResult(clientOp), true
	}
	if clientOp.Path.Empty() || serverOp.Path.Empty() {
		return TransformedResult(clientOp), true
	}
	return TransformResult{}, false
}

// Hydrate reconstructs a fully-typed State for schema from a generic
// value shaped the way encoding/json decodes into an `any` (map[string]any
// for objects, []any for arrays, plain scalars, nil). Persisted snapshots
// and WAL transaction payloads round-trip through exactly that generic
// shape, losing the concrete map[string]State/[]ArrayEntry/[]TreeNodeState
// types State otherwise carries; Hydrate replays the schema's own
// wholesale-set validation to rebuild them.
func Hydrate(schema Primitive, raw any) (State, error) {
	if raw == nil {
		return schema.InitialState(), nil
	}
	kind, ok := wholesaleSetKind(schema)
	if !ok {
		return nil, docerrors.ErrSchemaValidation{Message: "schema has no wholesale-set form to hydrate from"}
	}
	return schema.ApplyOperation(nil, operation.New(kind, operation.NewPath(), raw))
}

// cloneStateMap returns a shallow copy of a struct/union state map.
func cloneStateMap(m map[string]State) map[string]State {
	out := make(map[string]State, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
