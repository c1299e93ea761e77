// Package primitive implements the document schema algebra: String,
// Number, Boolean, Literal, Either, Struct, Array, Union, Lazy and Tree.
// Each primitive is a node in a descriptor tree and exposes the same
// four capabilities — build a mutation proxy, apply an operation to a
// state value, produce initial state, and transform a client operation
// against a concurrent server operation.
//
// Each node kind lives in its own file. Tree and Array ordering use
// fractional indexing rather than a tombstone-and-clock scheme, since
// full CRDT merge semantics are out of scope here.
package primitive

import (
	"docengine/operation"
)

// State is the runtime shape of a document value: a scalar, a
// map[string]State for a struct, an []ArrayEntry for an array, or a
// []TreeNodeState for a tree. nil means "no value".
type State = any

// Env is the mutation surface a Proxy writes through: every mutating
// proxy call resolves to a Push of an Operation, and every reading proxy
// call resolves to a GetState. Document implements Env for client-side
// proxies.
type Env interface {
	Push(op operation.Operation) error
	GetState(path operation.Path) State
}

// Primitive is a node in the schema descriptor tree.
type Primitive interface {
	// CreateProxy returns the user-facing mutation/read API for this
	// primitive, rooted at path. The concrete type depends on the
	// primitive (StringProxy, StructProxy, ArrayProxy, ...); callers
	// that know the schema shape type-assert to it.
	CreateProxy(env Env, path operation.Path) any

	// ApplyOperation applies op to state and returns the new state.
	// op.Path is interpreted relative to this primitive: empty means
	// the operation targets this primitive directly, otherwise the
	// first token selects a child and the rest is delegated.
	ApplyOperation(state State, op operation.Operation) (State, error)

	// InitialState returns this primitive's default state, or nil if
	// it declares none.
	InitialState() State

	// TransformOperation reconciles clientOp against an already-applied
	// serverOp, both with paths relative to this primitive.
	TransformOperation(clientOp, serverOp operation.Operation) TransformResult
}

// shiftPath returns the remaining path after removing tokens already
// consumed to reach this primitive, i.e. interprets op.Path as the
// "remaining" path at the call site. Primitives consume one token per
// level exactly as op.Path.Shift() returns.
func shiftPath(op operation.Operation) (string, operation.Operation, bool) {
	if op.Path.Empty() {
		return "", op, false
	}
	token, rest := op.Path.Shift()
	childOp := op
	childOp.Path = rest
	return token, childOp, true
}

// withPath returns a copy of op with a different path, used to restore a
// prefix after delegating to a child primitive.
func withPath(op operation.Operation, path operation.Path) operation.Operation {
	op.Path = path
	return op
}
