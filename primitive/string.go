package primitive

import (
	"docengine/docerrors"
	"docengine/operation"
)

// StringPrimitive is the schema descriptor for a string-valued leaf.
type StringPrimitive struct {
	defaultValue *string
	required     bool
	refinements  []func(string) error
}

// String creates a new string schema descriptor with no default.
func String() *StringPrimitive {
	return &StringPrimitive{}
}

// Default sets the value used when no state is present.
func (p *StringPrimitive) Default(v string) *StringPrimitive {
	p.defaultValue = &v
	return p
}

// Required marks the field as mandatory when no default is set; struct
// defaulting and struct.set validation consult this flag.
func (p *StringPrimitive) Required() *StringPrimitive {
	p.required = true
	return p
}

// Refine adds a validator run against every new value on string.set.
func (p *StringPrimitive) Refine(fn func(string) error) *StringPrimitive {
	p.refinements = append(p.refinements, fn)
	return p
}

// IsRequired reports whether the field must be present.
func (p *StringPrimitive) IsRequired() bool { return p.required && p.defaultValue == nil }

func (p *StringPrimitive) isScalar() {}

func (p *StringPrimitive) matches(v any) bool {
	_, ok := v.(string)
	return ok
}

func (p *StringPrimitive) validateValue(v any) error {
	s, ok := v.(string)
	if !ok {
		return docerrors.ErrSchemaValidation{Message: "value must be a string"}
	}
	for _, refine := range p.refinements {
		if err := refine(s); err != nil {
			return docerrors.ErrRefinementFailure{Message: err.Error()}
		}
	}
	return nil
}

// StringProxy is the mutation/read API for a string leaf.
type StringProxy struct {
	env  Env
	path operation.Path
}

// Get returns the current string value, or "" if unset.
func (p StringProxy) Get() string {
	v, _ := p.env.GetState(p.path).(string)
	return v
}

// Set replaces the value.
func (p StringProxy) Set(v string) error {
	return p.env.Push(operation.NewDeduplicable(operation.KindStringSet, p.path, v))
}

// CreateProxy implements Primitive.
func (p *StringPrimitive) CreateProxy(env Env, path operation.Path) any {
	return StringProxy{env: env, path: path}
}

// ApplyOperation implements Primitive.
func (p *StringPrimitive) ApplyOperation(state State, op operation.Operation) (State, error) {
	if !op.Path.Empty() {
		return nil, docerrors.ErrSchemaValidation{Message: "string primitive cannot delegate to a nested path"}
	}
	if op.Kind != operation.KindStringSet {
		return nil, docerrors.ErrSchemaValidation{Message: "unsupported operation kind for string: " + string(op.Kind)}
	}
	v, ok := op.Payload.(string)
	if !ok {
		return nil, docerrors.ErrSchemaValidation{Message: "string.set payload must be a string"}
	}
	for _, refine := range p.refinements {
		if err := refine(v); err != nil {
			return nil, docerrors.ErrRefinementFailure{Path: op.Path.String(), Message: err.Error()}
		}
	}
	return v, nil
}

// InitialState implements Primitive.
func (p *StringPrimitive) InitialState() State {
	if p.defaultValue == nil {
		return nil
	}
	return *p.defaultValue
}

// TransformOperation implements Primitive. A string leaf has no finer
// path to overlap on than itself, so the uniform same-path rule applies:
// last-write-wins, the client operation proceeds unchanged.
func (p *StringPrimitive) TransformOperation(clientOp, serverOp operation.Operation) TransformResult {
	return TransformedResult(clientOp)
}
