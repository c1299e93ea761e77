package operation

// Definition binds an operation Kind to whether instances of it are safe
// to deduplicate (collapse a run of consecutive same-path operations to
// the last one) when a transaction is flushed. The payload shape and the
// actual apply function live with the primitive that owns the kind
// (primitive.Primitive.ApplyOperation); Definition only carries the
// cross-cutting metadata the transaction layer needs without importing
// the primitive package.
type Definition struct {
	Kind         Kind
	Deduplicable bool
}

// Registry is a lookup table from Kind to Definition, built once per
// schema and shared by Document and Transaction.
type Registry struct {
	defs map[Kind]Definition
}

// NewRegistry builds a Registry from the given definitions.
func NewRegistry(defs ...Definition) *Registry {
	r := &Registry{defs: make(map[Kind]Definition, len(defs))}
	for _, d := range defs {
		r.defs[d.Kind] = d
	}
	return r
}

// Lookup returns the Definition for kind and whether it was registered.
func (r *Registry) Lookup(kind Kind) (Definition, bool) {
	if r == nil {
		return Definition{}, false
	}
	d, ok := r.defs[kind]
	return d, ok
}

// IsDeduplicable reports whether kind is registered as deduplicable.
// transaction.Dedupe treats an operation as deduplicable when either its
// own Deduplicable flag is set or its kind is registered here, and
// Transaction.UnmarshalJSON sets the flag on decoded operations from
// DefaultRegistry, since the wire format does not carry it.
func (r *Registry) IsDeduplicable(kind Kind) bool {
	d, ok := r.Lookup(kind)
	return ok && d.Deduplicable
}

// DefaultRegistry describes which of the built-in primitive kinds are
// deduplicable: every "set" operation (scalar sets and the wholesale
// struct/array/union/tree replacements) and array/tree position updates
// collapse cleanly because only the last
// write to a given path before a flush has any observable effect.
var DefaultRegistry = NewRegistry(
	Definition{Kind: KindStringSet, Deduplicable: true},
	Definition{Kind: KindNumberSet, Deduplicable: true},
	Definition{Kind: KindBooleanSet, Deduplicable: true},
	Definition{Kind: KindLiteralSet, Deduplicable: true},
	Definition{Kind: KindEitherSet, Deduplicable: true},
	Definition{Kind: KindStructSet, Deduplicable: true},
	Definition{Kind: KindArraySet, Deduplicable: true},
	Definition{Kind: KindArrayMove, Deduplicable: true},
	Definition{Kind: KindUnionSet, Deduplicable: true},
	Definition{Kind: KindTreeSet, Deduplicable: true},
	Definition{Kind: KindTreeMove, Deduplicable: true},
)
