package primitive

import (
	"docengine/docerrors"
	"docengine/operation"
)

// NumberPrimitive is the schema descriptor for a float64-valued leaf.
type NumberPrimitive struct {
	defaultValue *float64
	required     bool
	refinements  []func(float64) error
}

// Number creates a new number schema descriptor with no default.
func Number() *NumberPrimitive {
	return &NumberPrimitive{}
}

// Default sets the value used when no state is present.
func (p *NumberPrimitive) Default(v float64) *NumberPrimitive {
	p.defaultValue = &v
	return p
}

// Required marks the field as mandatory when no default is set.
func (p *NumberPrimitive) Required() *NumberPrimitive {
	p.required = true
	return p
}

// Refine adds a validator run against every new value on number.set.
func (p *NumberPrimitive) Refine(fn func(float64) error) *NumberPrimitive {
	p.refinements = append(p.refinements, fn)
	return p
}

// Min is a convenience refinement rejecting values below min.
func (p *NumberPrimitive) Min(min float64) *NumberPrimitive {
	return p.Refine(func(v float64) error {
		if v < min {
			return docerrors.ErrRefinementFailure{Message: "value below minimum"}
		}
		return nil
	})
}

// Max is a convenience refinement rejecting values above max.
func (p *NumberPrimitive) Max(max float64) *NumberPrimitive {
	return p.Refine(func(v float64) error {
		if v > max {
			return docerrors.ErrRefinementFailure{Message: "value above maximum"}
		}
		return nil
	})
}

// IsRequired reports whether the field must be present.
func (p *NumberPrimitive) IsRequired() bool { return p.required && p.defaultValue == nil }

// NumberProxy is the mutation/read API for a number leaf.
type NumberProxy struct {
	env  Env
	path operation.Path
}

// Get returns the current value, or 0 if unset.
func (p NumberProxy) Get() float64 {
	v, _ := p.env.GetState(p.path).(float64)
	return v
}

// Set replaces the value.
func (p NumberProxy) Set(v float64) error {
	return p.env.Push(operation.NewDeduplicable(operation.KindNumberSet, p.path, v))
}

// CreateProxy implements Primitive.
func (p *NumberPrimitive) CreateProxy(env Env, path operation.Path) any {
	return NumberProxy{env: env, path: path}
}

// ApplyOperation implements Primitive.
func (p *NumberPrimitive) ApplyOperation(state State, op operation.Operation) (State, error) {
	if !op.Path.Empty() {
		return nil, docerrors.ErrSchemaValidation{Message: "number primitive cannot delegate to a nested path"}
	}
	if op.Kind != operation.KindNumberSet {
		return nil, docerrors.ErrSchemaValidation{Message: "unsupported operation kind for number: " + string(op.Kind)}
	}
	v, ok := asFloat64(op.Payload)
	if !ok {
		return nil, docerrors.ErrSchemaValidation{Message: "number.set payload must be a number"}
	}
	for _, refine := range p.refinements {
		if err := refine(v); err != nil {
			return nil, docerrors.ErrRefinementFailure{Path: op.Path.String(), Message: err.Error()}
		}
	}
	return v, nil
}

// asFloat64 accepts both float64 (native construction) and the numeric
// types JSON decoding into interface{} can produce.
func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// InitialState implements Primitive.
func (p *NumberPrimitive) InitialState() State {
	if p.defaultValue == nil {
		return nil
	}
	return *p.defaultValue
}

// TransformOperation implements Primitive.
func (p *NumberPrimitive) TransformOperation(clientOp, serverOp operation.Operation) TransformResult {
	return TransformedResult(clientOp)
}

func (p *NumberPrimitive) isScalar() {}

func (p *NumberPrimitive) matches(v any) bool {
	_, ok := asFloat64(v)
	return ok
}

func (p *NumberPrimitive) validateValue(v any) error {
	n, ok := asFloat64(v)
	if !ok {
		return docerrors.ErrSchemaValidation{Message: "value must be a number"}
	}
	for _, refine := range p.refinements {
		if err := refine(n); err != nil {
			return docerrors.ErrRefinementFailure{Message: err.Error()}
		}
	}
	return nil
}
