package primitive

import (
	"github.com/pkg/errors"

	"docengine/docerrors"
	"docengine/operation"
)

// requiredChecker is implemented by scalar primitives (String, Number,
// Boolean, Literal, Either) whose Required() was called without a
// Default(): struct.set must reject an omitted field for such a
// primitive instead of silently filling in its initial state.
type requiredChecker interface {
	IsRequired() bool
}

// StructField names one member of a Struct schema. A slice rather than a
// map preserves declaration order, which defaulting and wholesale-set
// depend on being deterministic.
type StructField struct {
	Name   string
	Schema Primitive
}

// F is a convenience constructor for a StructField.
func F(name string, schema Primitive) StructField {
	return StructField{Name: name, Schema: schema}
}

// StructPrimitive is the schema descriptor for a fixed-shape mapping from
// declared field name to the field's own state.
type StructPrimitive struct {
	order  []string
	fields map[string]Primitive
}

// Struct creates a schema descriptor over the given fields, in order.
func Struct(fields ...StructField) *StructPrimitive {
	p := &StructPrimitive{fields: make(map[string]Primitive, len(fields))}
	for _, f := range fields {
		p.order = append(p.order, f.Name)
		p.fields[f.Name] = f.Schema
	}
	return p
}

// Field returns the schema declared for name, or nil if undeclared.
func (p *StructPrimitive) Field(name string) Primitive {
	return p.fields[name]
}

// Fields returns field names in declaration order.
func (p *StructPrimitive) Fields() []string {
	return append([]string(nil), p.order...)
}

// StructProxy is the mutation/read API for a struct node.
type StructProxy struct {
	env    Env
	path   operation.Path
	schema *StructPrimitive
}

// Field returns the child proxy for name. Panics on an undeclared field,
// since field names are a compile-time schema decision, not user input.
func (p StructProxy) Field(name string) any {
	child, ok := p.schema.fields[name]
	if !ok {
		panic(docerrors.ErrUnknownField{Field: name})
	}
	return child.CreateProxy(p.env, p.path.Append(name))
}

// Get returns the struct's current state as a plain map.
func (p StructProxy) Get() map[string]State {
	m, _ := p.env.GetState(p.path).(map[string]State)
	return m
}

// Set replaces the whole struct in one operation. Only declared fields
// may appear in v; omitted fields fall back to their own initial state,
// except fields marked Required() without a Default(), which are rejected.
func (p StructProxy) Set(v map[string]any) error {
	return p.env.Push(operation.NewDeduplicable(operation.KindStructSet, p.path, v))
}

// CreateProxy implements Primitive.
func (p *StructPrimitive) CreateProxy(env Env, path operation.Path) any {
	return StructProxy{env: env, path: path, schema: p}
}

// ApplyOperation implements Primitive.
func (p *StructPrimitive) ApplyOperation(state State, op operation.Operation) (State, error) {
	current, _ := state.(map[string]State)

	if op.Path.Empty() {
		if op.Kind != operation.KindStructSet {
			return nil, docerrors.ErrSchemaValidation{Message: "unsupported operation kind for struct: " + string(op.Kind)}
		}
		payload, ok := op.Payload.(map[string]any)
		if !ok {
			return nil, docerrors.ErrSchemaValidation{Message: "struct.set payload must be an object"}
		}
		for name := range payload {
			if _, known := p.fields[name]; !known {
				return nil, docerrors.ErrUnknownField{Field: name}
			}
		}
		next := make(map[string]State, len(p.order))
		for _, name := range p.order {
			child := p.fields[name]
			v, present := payload[name]
			if !present {
				if rc, ok := child.(requiredChecker); ok && rc.IsRequired() {
					return nil, docerrors.ErrSchemaValidation{Message: "field " + name + " is required"}
				}
				next[name] = child.InitialState()
				continue
			}
			kind, ok := wholesaleSetKind(child)
			if !ok {
				return nil, docerrors.ErrSchemaValidation{Message: "field " + name + " has no wholesale-set form"}
			}
			childState, err := child.ApplyOperation(nil, operation.New(kind, operation.NewPath(), v))
			if err != nil {
				return nil, errors.Wrapf(err, "field %s", name)
			}
			next[name] = childState
		}
		return next, nil
	}

	token, childOp, _ := shiftPath(op)
	child, ok := p.fields[token]
	if !ok {
		return nil, docerrors.ErrUnknownField{Field: token}
	}
	var childState State
	if current != nil {
		childState = current[token]
	}
	newChildState, err := child.ApplyOperation(childState, childOp)
	if err != nil {
		return nil, err
	}
	next := cloneStateMap(current)
	next[token] = newChildState
	return next, nil
}

// InitialState implements Primitive: every field defaults independently.
func (p *StructPrimitive) InitialState() State {
	out := make(map[string]State, len(p.order))
	for _, name := range p.order {
		out[name] = p.fields[name].InitialState()
	}
	return out
}

// TransformOperation implements Primitive.
func (p *StructPrimitive) TransformOperation(clientOp, serverOp operation.Operation) TransformResult {
	if result, handled := ContainerOverlap(clientOp, serverOp); handled {
		return result
	}
	cHead, cRest := clientOp.Path.Shift()
	_, sRest := serverOp.Path.Shift()
	child, ok := p.fields[cHead]
	if !ok {
		return ConflictResult("unknown field: " + cHead)
	}
	result := child.TransformOperation(withPath(clientOp, cRest), withPath(serverOp, sRest))
	return withResultPath(result, cHead, operation.NewPath())
}

// ApplyDefaults layers partial over primitive's own defaults, recursing
// into struct-valued fields so that nested structs are defaulted the
// same way. Non-struct primitives pass partial through unchanged (or
// fall back to their own initial state when partial is nil).
func ApplyDefaults(p Primitive, partial State) State {
	sp, ok := p.(*StructPrimitive)
	if !ok {
		if partial != nil {
			return partial
		}
		return p.InitialState()
	}

	result := make(map[string]State, len(sp.order))
	if init, ok := sp.InitialState().(map[string]State); ok {
		for k, v := range init {
			result[k] = v
		}
	}
	if pm, ok := partial.(map[string]any); ok {
		for k, v := range pm {
			result[k] = v
		}
	} else if pm, ok := partial.(map[string]State); ok {
		for k, v := range pm {
			result[k] = v
		}
	}

	for _, name := range sp.order {
		child := sp.fields[name]
		if _, isStruct := child.(*StructPrimitive); isStruct {
			result[name] = ApplyDefaults(child, result[name])
			continue
		}
		if _, present := result[name]; !present {
			result[name] = child.InitialState()
		}
	}
	return result
}
