package operation

// Kind identifies the mutation a primitive performs, namespaced by
// primitive so collisions across primitives are impossible by
// construction: "array.insert", "tree.move", "struct.set", and so on.
type Kind string

const (
	KindStringSet  Kind = "string.set"
	KindNumberSet  Kind = "number.set"
	KindBooleanSet Kind = "boolean.set"
	KindLiteralSet Kind = "literal.set"
	KindEitherSet  Kind = "either.set"

	KindStructSet Kind = "struct.set"

	KindArraySet    Kind = "array.set"
	KindArrayInsert Kind = "array.insert"
	KindArrayRemove Kind = "array.remove"
	KindArrayMove   Kind = "array.move"

	KindUnionSet Kind = "union.set"

	KindTreeSet    Kind = "tree.set"
	KindTreeInsert Kind = "tree.insert"
	KindTreeRemove Kind = "tree.remove"
	KindTreeMove   Kind = "tree.move"
)

// Operation is an immutable, path-addressed, minimal mutation on document
// state. Its payload shape is defined and validated by the primitive that
// owns its Kind (primitive.Primitive.ApplyOperation).
type Operation struct {
	Kind         Kind
	Path         Path
	Payload      any
	Deduplicable bool
}

// New builds a non-deduplicable Operation.
func New(kind Kind, path Path, payload any) Operation {
	return Operation{Kind: kind, Path: path, Payload: payload}
}

// NewDeduplicable builds an Operation marked as safe to collapse with a
// later operation at the same path during flush-time deduplication.
func NewDeduplicable(kind Kind, path Path, payload any) Operation {
	return Operation{Kind: kind, Path: path, Payload: payload, Deduplicable: true}
}
