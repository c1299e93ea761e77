package primitive

import (
	"docengine/docerrors"
	"docengine/operation"
)

// LiteralPrimitive is the schema descriptor for a leaf whose value is
// always a single declared constant.
type LiteralPrimitive struct {
	value    any
	required bool
}

// Literal creates a schema descriptor pinned to v.
func Literal(v any) *LiteralPrimitive {
	return &LiteralPrimitive{value: v}
}

// Required marks the field as mandatory; literals have no separate
// default concept since the literal value always satisfies reads.
func (p *LiteralPrimitive) Required() *LiteralPrimitive {
	p.required = true
	return p
}

// IsRequired reports whether the field must be present.
func (p *LiteralPrimitive) IsRequired() bool { return p.required }

// Value returns the declared literal value.
func (p *LiteralPrimitive) Value() any { return p.value }

// LiteralProxy is the read-only API for a literal leaf. Set is exposed
// for symmetry with other scalars but only accepts the declared value.
type LiteralProxy struct {
	env  Env
	path operation.Path
	lit  *LiteralPrimitive
}

// Get returns the literal's declared value.
func (p LiteralProxy) Get() any { return p.lit.value }

// Set records a literal.set; the payload must equal the declared value.
func (p LiteralProxy) Set(v any) error {
	return p.env.Push(operation.NewDeduplicable(operation.KindLiteralSet, p.path, v))
}

// CreateProxy implements Primitive.
func (p *LiteralPrimitive) CreateProxy(env Env, path operation.Path) any {
	return LiteralProxy{env: env, path: path, lit: p}
}

// ApplyOperation implements Primitive.
func (p *LiteralPrimitive) ApplyOperation(state State, op operation.Operation) (State, error) {
	if !op.Path.Empty() {
		return nil, docerrors.ErrSchemaValidation{Message: "literal primitive cannot delegate to a nested path"}
	}
	if op.Kind != operation.KindLiteralSet {
		return nil, docerrors.ErrSchemaValidation{Message: "unsupported operation kind for literal: " + string(op.Kind)}
	}
	if op.Payload != p.value {
		return nil, docerrors.ErrSchemaValidation{Message: "literal.set payload does not match the declared literal"}
	}
	return p.value, nil
}

// InitialState implements Primitive. A literal always has an implicit
// default: its own value.
func (p *LiteralPrimitive) InitialState() State {
	return p.value
}

// TransformOperation implements Primitive.
func (p *LiteralPrimitive) TransformOperation(clientOp, serverOp operation.Operation) TransformResult {
	return TransformedResult(clientOp)
}

func (p *LiteralPrimitive) isScalar() {}

func (p *LiteralPrimitive) matches(v any) bool {
	return v == p.value
}

func (p *LiteralPrimitive) validateValue(v any) error {
	if v != p.value {
		return docerrors.ErrSchemaValidation{Message: "value does not match the declared literal"}
	}
	return nil
}
