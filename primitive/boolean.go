package primitive

import (
	"docengine/docerrors"
	"docengine/operation"
)

// BooleanPrimitive is the schema descriptor for a bool-valued leaf.
type BooleanPrimitive struct {
	defaultValue *bool
	required     bool
}

// Boolean creates a new boolean schema descriptor with no default.
func Boolean() *BooleanPrimitive {
	return &BooleanPrimitive{}
}

// Default sets the value used when no state is present.
func (p *BooleanPrimitive) Default(v bool) *BooleanPrimitive {
	p.defaultValue = &v
	return p
}

// Required marks the field as mandatory when no default is set.
func (p *BooleanPrimitive) Required() *BooleanPrimitive {
	p.required = true
	return p
}

// IsRequired reports whether the field must be present.
func (p *BooleanPrimitive) IsRequired() bool { return p.required && p.defaultValue == nil }

// BooleanProxy is the mutation/read API for a boolean leaf.
type BooleanProxy struct {
	env  Env
	path operation.Path
}

// Get returns the current value, or false if unset.
func (p BooleanProxy) Get() bool {
	v, _ := p.env.GetState(p.path).(bool)
	return v
}

// Set replaces the value.
func (p BooleanProxy) Set(v bool) error {
	return p.env.Push(operation.NewDeduplicable(operation.KindBooleanSet, p.path, v))
}

// CreateProxy implements Primitive.
func (p *BooleanPrimitive) CreateProxy(env Env, path operation.Path) any {
	return BooleanProxy{env: env, path: path}
}

// ApplyOperation implements Primitive.
func (p *BooleanPrimitive) ApplyOperation(state State, op operation.Operation) (State, error) {
	if !op.Path.Empty() {
		return nil, docerrors.ErrSchemaValidation{Message: "boolean primitive cannot delegate to a nested path"}
	}
	if op.Kind != operation.KindBooleanSet {
		return nil, docerrors.ErrSchemaValidation{Message: "unsupported operation kind for boolean: " + string(op.Kind)}
	}
	v, ok := op.Payload.(bool)
	if !ok {
		return nil, docerrors.ErrSchemaValidation{Message: "boolean.set payload must be a bool"}
	}
	return v, nil
}

// InitialState implements Primitive.
func (p *BooleanPrimitive) InitialState() State {
	if p.defaultValue == nil {
		return nil
	}
	return *p.defaultValue
}

// TransformOperation implements Primitive.
func (p *BooleanPrimitive) TransformOperation(clientOp, serverOp operation.Operation) TransformResult {
	return TransformedResult(clientOp)
}

func (p *BooleanPrimitive) isScalar() {}

func (p *BooleanPrimitive) matches(v any) bool {
	_, ok := v.(bool)
	return ok
}

func (p *BooleanPrimitive) validateValue(v any) error {
	if _, ok := v.(bool); !ok {
		return docerrors.ErrSchemaValidation{Message: "value must be a bool"}
	}
	return nil
}
