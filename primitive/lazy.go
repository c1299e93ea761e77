package primitive

import (
	"sync"

	"docengine/operation"
)

// LazyPrimitive is a recursive schema reference: its body is produced by
// a thunk the first time it is needed and memoized after that, which is
// what lets a schema describe itself (a tree node whose children are
// more tree nodes) without infinite eager construction.
type LazyPrimitive struct {
	once  sync.Once
	thunk func() Primitive
	body  Primitive
}

// Lazy wraps thunk so its result is resolved and memoized on first use.
func Lazy(thunk func() Primitive) *LazyPrimitive {
	return &LazyPrimitive{thunk: thunk}
}

func (p *LazyPrimitive) resolve() Primitive {
	p.once.Do(func() {
		p.body = p.thunk()
	})
	return p.body
}

// CreateProxy implements Primitive by delegating to the resolved body.
func (p *LazyPrimitive) CreateProxy(env Env, path operation.Path) any {
	return p.resolve().CreateProxy(env, path)
}

// ApplyOperation implements Primitive by delegating to the resolved body.
func (p *LazyPrimitive) ApplyOperation(state State, op operation.Operation) (State, error) {
	return p.resolve().ApplyOperation(state, op)
}

// InitialState implements Primitive by delegating to the resolved body.
func (p *LazyPrimitive) InitialState() State {
	return p.resolve().InitialState()
}

// TransformOperation implements Primitive by delegating to the resolved body.
func (p *LazyPrimitive) TransformOperation(clientOp, serverOp operation.Operation) TransformResult {
	return p.resolve().TransformOperation(clientOp, serverOp)
}
