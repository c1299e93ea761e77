package primitive

import (
	"reflect"

	"docengine/docerrors"
	"docengine/operation"
)

// ScalarPrimitive is the subset of Primitive that Either may hold as a
// variant: the four leaves with no path of their own to delegate into.
type ScalarPrimitive interface {
	Primitive
	isScalar()
	matches(v any) bool
	validateValue(v any) error
}

// EitherPrimitive is the schema descriptor for a scalar union: the
// payload must satisfy exactly one declared variant. When a literal
// variant and a typed scalar variant both accept a value, the literal
// wins, so declaring Literal(0) alongside Number() is legal and
// resolves deterministically rather than erroring at either.set time.
type EitherPrimitive struct {
	variants []ScalarPrimitive
	required bool
}

// Either creates a schema descriptor accepting any of the given scalar
// variants. Construction fails if two variants can never be told apart:
// two literals with the same value, or two non-literal variants of the
// same concrete kind (e.g. two Number() variants).
func Either(variants ...ScalarPrimitive) (*EitherPrimitive, error) {
	if len(variants) < 2 {
		return nil, docerrors.ErrSchemaValidation{Message: "either requires at least two variants"}
	}
	seenLiterals := map[any]bool{}
	seenKinds := map[reflect.Type]bool{}
	for _, v := range variants {
		if lit, ok := v.(*LiteralPrimitive); ok {
			if seenLiterals[lit.value] {
				return nil, docerrors.ErrSchemaValidation{Message: "either declares the same literal value twice"}
			}
			seenLiterals[lit.value] = true
			continue
		}
		t := reflect.TypeOf(v)
		if seenKinds[t] {
			return nil, docerrors.ErrSchemaValidation{Message: "either declares two variants of the same scalar kind"}
		}
		seenKinds[t] = true
	}
	return &EitherPrimitive{variants: variants}, nil
}

// MustEither is Either but panics on a schema construction error. Schemas
// are built once at process startup, where a panic surfaces a
// programmer mistake immediately rather than deferring it to the first
// operation that exercises the broken schema.
func MustEither(variants ...ScalarPrimitive) *EitherPrimitive {
	p, err := Either(variants...)
	if err != nil {
		panic(err)
	}
	return p
}

// Required marks the field as mandatory.
func (p *EitherPrimitive) Required() *EitherPrimitive {
	p.required = true
	return p
}

// IsRequired reports whether the field must be present.
func (p *EitherPrimitive) IsRequired() bool { return p.required }

// EitherProxy is the read/write API for a scalar union leaf.
type EitherProxy struct {
	env  Env
	path operation.Path
}

// Get returns the current value, whatever its matched variant's shape.
func (p EitherProxy) Get() any {
	return p.env.GetState(p.path)
}

// Set records an either.set; the payload is matched against the
// declared variants at apply time.
func (p EitherProxy) Set(v any) error {
	return p.env.Push(operation.NewDeduplicable(operation.KindEitherSet, p.path, v))
}

// CreateProxy implements Primitive.
func (p *EitherPrimitive) CreateProxy(env Env, path operation.Path) any {
	return EitherProxy{env: env, path: path}
}

// resolveVariant picks the variant that governs payload, giving literal
// variants priority over typed scalar variants when both would match.
func (p *EitherPrimitive) resolveVariant(payload any) (ScalarPrimitive, error) {
	for _, v := range p.variants {
		if lit, ok := v.(*LiteralPrimitive); ok && lit.matches(payload) {
			return v, nil
		}
	}
	var match ScalarPrimitive
	for _, v := range p.variants {
		if _, isLit := v.(*LiteralPrimitive); isLit {
			continue
		}
		if v.matches(payload) {
			if match != nil {
				return nil, docerrors.ErrSchemaValidation{Message: "either payload matches more than one variant"}
			}
			match = v
		}
	}
	if match == nil {
		return nil, docerrors.ErrUnknownVariant{Message: "either payload matches no declared variant"}
	}
	return match, nil
}

// ApplyOperation implements Primitive.
func (p *EitherPrimitive) ApplyOperation(state State, op operation.Operation) (State, error) {
	if !op.Path.Empty() {
		return nil, docerrors.ErrSchemaValidation{Message: "either primitive cannot delegate to a nested path"}
	}
	if op.Kind != operation.KindEitherSet {
		return nil, docerrors.ErrSchemaValidation{Message: "unsupported operation kind for either: " + string(op.Kind)}
	}
	variant, err := p.resolveVariant(op.Payload)
	if err != nil {
		return nil, err
	}
	if err := variant.validateValue(op.Payload); err != nil {
		return nil, err
	}
	return op.Payload, nil
}

// InitialState implements Primitive. An either with no set value starts
// unset; it has no well-defined "default variant" unless the caller
// picks one by issuing an either.set during defaulting.
func (p *EitherPrimitive) InitialState() State {
	return nil
}

// TransformOperation implements Primitive.
func (p *EitherPrimitive) TransformOperation(clientOp, serverOp operation.Operation) TransformResult {
	return TransformedResult(clientOp)
}
