package primitive

import (
	"docengine/docerrors"
	"docengine/operation"
)

// UnionVariant names one tagged branch of a Union schema. schema is
// itself a Struct, typically one whose fields include the discriminator
// as a Literal so the tag round-trips through the state.
type UnionVariant struct {
	Tag    string
	Schema *StructPrimitive
}

// UV is a convenience constructor for a UnionVariant.
func UV(tag string, schema *StructPrimitive) UnionVariant {
	return UnionVariant{Tag: tag, Schema: schema}
}

// UnionPrimitive is the schema descriptor for a tagged union: its state
// is always a struct state, whose discriminator field identifies exactly
// one declared variant.
type UnionPrimitive struct {
	discriminator string
	order         []string
	variants      map[string]*StructPrimitive
	defaultTag    *string
}

// Union creates a schema descriptor over the given variants, discriminated
// by a field named "type" unless overridden with Discriminator.
func Union(variants ...UnionVariant) *UnionPrimitive {
	p := &UnionPrimitive{discriminator: "type", variants: make(map[string]*StructPrimitive, len(variants))}
	for _, v := range variants {
		p.order = append(p.order, v.Tag)
		p.variants[v.Tag] = v.Schema
	}
	return p
}

// Discriminator overrides the field name used to select a variant.
func (p *UnionPrimitive) Discriminator(field string) *UnionPrimitive {
	p.discriminator = field
	return p
}

// Default declares which variant an unset union starts as.
func (p *UnionPrimitive) Default(tag string) *UnionPrimitive {
	p.defaultTag = &tag
	return p
}

// UnionProxy is the mutation/read API for a union node.
type UnionProxy struct {
	env    Env
	path   operation.Path
	schema *UnionPrimitive
}

// Get returns the union's current state, shaped like the active variant.
func (p UnionProxy) Get() map[string]State {
	m, _ := p.env.GetState(p.path).(map[string]State)
	return m
}

// Variant returns the current discriminator value, or "" if unset.
func (p UnionProxy) Variant() string {
	v, _ := p.Get()[p.schema.discriminator].(string)
	return v
}

// Set replaces the union with a new tagged payload.
func (p UnionProxy) Set(payload map[string]any) error {
	return p.env.Push(operation.NewDeduplicable(operation.KindUnionSet, p.path, payload))
}

// Field returns the active variant's child proxy for name. Panics if no
// variant is active yet, or the active variant has no such field.
func (p UnionProxy) Field(name string) any {
	tag := p.Variant()
	variant, ok := p.schema.variants[tag]
	if !ok {
		panic(docerrors.ErrSchemaValidation{Message: "union has no active variant"})
	}
	structProxy := variant.CreateProxy(p.env, p.path).(StructProxy)
	return structProxy.Field(name)
}

// CreateProxy implements Primitive.
func (p *UnionPrimitive) CreateProxy(env Env, path operation.Path) any {
	return UnionProxy{env: env, path: path, schema: p}
}

// ApplyOperation implements Primitive. The union's own state is always
// exactly the active variant's struct state, so a nested op is forwarded
// unshifted to that variant's Struct.ApplyOperation.
func (p *UnionPrimitive) ApplyOperation(state State, op operation.Operation) (State, error) {
	if op.Path.Empty() {
		if op.Kind != operation.KindUnionSet {
			return nil, docerrors.ErrSchemaValidation{Message: "unsupported operation kind for union: " + string(op.Kind)}
		}
		payload, ok := op.Payload.(map[string]any)
		if !ok {
			return nil, docerrors.ErrSchemaValidation{Message: "union.set payload must be an object"}
		}
		tag, ok := payload[p.discriminator].(string)
		if !ok {
			return nil, docerrors.ErrSchemaValidation{Message: "union.set payload missing discriminator field " + p.discriminator}
		}
		variant, ok := p.variants[tag]
		if !ok {
			return nil, docerrors.ErrUnknownVariant{Message: "no union variant tagged " + tag}
		}
		return variant.ApplyOperation(nil, operation.New(operation.KindStructSet, operation.NewPath(), payload))
	}

	current, _ := state.(map[string]State)
	tag, _ := current[p.discriminator].(string)
	variant, ok := p.variants[tag]
	if !ok {
		return nil, docerrors.ErrSchemaValidation{Message: "current state has no resolvable union variant"}
	}
	return variant.ApplyOperation(state, op)
}

// InitialState implements Primitive. A union with no declared default
// variant starts unset.
func (p *UnionPrimitive) InitialState() State {
	if p.defaultTag == nil {
		return nil
	}
	variant, ok := p.variants[*p.defaultTag]
	if !ok {
		return nil
	}
	return variant.InitialState()
}

// TransformOperation implements Primitive. Because Union's own
// ApplyOperation forwards nested ops unshifted to the active variant,
// and TransformOperation carries no state to read the active tag from,
// nested-vs-nested overlap is resolved by field name alone: if exactly
// one declared variant owns that field, delegate to its schema; if the
// field name is ambiguous across variants (or the union itself was just
// replaced), fall back to last-write-wins.
func (p *UnionPrimitive) TransformOperation(clientOp, serverOp operation.Operation) TransformResult {
	if result, handled := ContainerOverlap(clientOp, serverOp); handled {
		return result
	}
	cHead, cRest := clientOp.Path.Shift()
	sHead, sRest := serverOp.Path.Shift()
	if cHead != sHead {
		return TransformedResult(clientOp)
	}
	var resolved Primitive
	ambiguous := false
	for _, tag := range p.order {
		field := p.variants[tag].Field(cHead)
		if field == nil {
			continue
		}
		if resolved != nil && resolved != field {
			ambiguous = true
			break
		}
		resolved = field
	}
	if resolved == nil || ambiguous {
		return TransformedResult(clientOp)
	}
	result := resolved.TransformOperation(withPath(clientOp, cRest), withPath(serverOp, sRest))
	return withResultPath(result, cHead, operation.NewPath())
}
