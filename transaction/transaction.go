// Package transaction implements the immutable, atomic bundle of
// operations that clients flush and servers apply: Transaction. Encoding
// uses a segments/kind/payload envelope that round-trips a sequence of
// typed operations through json.RawMessage.
package transaction

import (
	"encoding/json"

	"github.com/pkg/errors"

	"docengine/operation"
)

// Transaction is an ordered, atomic bundle of operations with a stable id
// and a millisecond timestamp. Ops are applied in array order; the whole
// bundle is the unit of persistence and broadcast.
type Transaction struct {
	ID        string
	Ops       []operation.Operation
	Timestamp int64
}

// New builds a Transaction from the given ops. It does not deduplicate;
// call Dedupe first if the caller wants that.
func New(id string, ops []operation.Operation, timestampMillis int64) *Transaction {
	return &Transaction{ID: id, Ops: append([]operation.Operation(nil), ops...), Timestamp: timestampMillis}
}

// Empty reports whether the transaction carries no operations.
func (t *Transaction) Empty() bool {
	return t == nil || len(t.Ops) == 0
}

// Dedupe collapses consecutive operations on the same path whose kind is
// registered as deduplicable in reg (or that carry their own Deduplicable
// flag) down to the last one. Non-consecutive operations on the same path
// are left alone, since an intervening operation elsewhere may depend on
// the earlier one's effect having happened in order.
func Dedupe(ops []operation.Operation, reg *operation.Registry) []operation.Operation {
	if len(ops) == 0 {
		return ops
	}
	out := make([]operation.Operation, 0, len(ops))
	for _, op := range ops {
		dedupe := op.Deduplicable || (reg != nil && reg.IsDeduplicable(op.Kind))
		if dedupe && len(out) > 0 {
			last := out[len(out)-1]
			lastDedupe := last.Deduplicable || (reg != nil && reg.IsDeduplicable(last.Kind))
			if lastDedupe && operation.Equal(last.Path, op.Path) {
				out[len(out)-1] = op
				continue
			}
		}
		out = append(out, op)
	}
	return out
}

// wirePath is the on-the-wire shape of an operation's path.
type wirePath struct {
	Segments []string `json:"segments"`
}

// wireOperation is the on-the-wire shape of an encoded operation.
type wireOperation struct {
	Kind    string          `json:"kind"`
	Path    wirePath        `json:"path"`
	Payload json.RawMessage `json:"payload"`
}

// wireTransaction mirrors submit.transaction's on-the-wire shape.
type wireTransaction struct {
	ID        string          `json:"id"`
	Ops       []wireOperation `json:"ops"`
	Timestamp int64           `json:"timestamp"`
}

// MarshalJSON implements json.Marshaler using the segments/kind/payload
// wire envelope.
func (t *Transaction) MarshalJSON() ([]byte, error) {
	wire := wireTransaction{ID: t.ID, Timestamp: t.Timestamp, Ops: make([]wireOperation, len(t.Ops))}
	for i, op := range t.Ops {
		payload, err := json.Marshal(op.Payload)
		if err != nil {
			return nil, errors.Wrapf(err, "marshal payload for op %d", i)
		}
		wire.Ops[i] = wireOperation{
			Kind:    string(op.Kind),
			Path:    wirePath{Segments: op.Path.ToTokens()},
			Payload: payload,
		}
	}
	return json.Marshal(wire)
}

// UnmarshalJSON implements json.Unmarshaler using the segments/kind/payload
// wire envelope. Decoded operations have Deduplicable set from
// DefaultRegistry, since the wire format does not carry the flag
// explicitly.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var wire wireTransaction
	if err := json.Unmarshal(data, &wire); err != nil {
		return errors.Wrap(err, "decode transaction envelope")
	}
	ops := make([]operation.Operation, len(wire.Ops))
	for i, w := range wire.Ops {
		var payload any
		if len(w.Payload) > 0 {
			if err := json.Unmarshal(w.Payload, &payload); err != nil {
				return errors.Wrapf(err, "decode payload for op %d", i)
			}
		}
		kind := operation.Kind(w.Kind)
		ops[i] = operation.Operation{
			Kind:         kind,
			Path:         operation.FromTokens(w.Path.Segments),
			Payload:      payload,
			Deduplicable: operation.DefaultRegistry.IsDeduplicable(kind),
		}
	}
	t.ID = wire.ID
	t.Timestamp = wire.Timestamp
	t.Ops = ops
	return nil
}

// Equal reports whether two transactions are structurally identical: same
// id, timestamp, and ops in the same order. Used by the encode/decode
// round-trip property.
func Equal(a, b *Transaction) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ID != b.ID || a.Timestamp != b.Timestamp || len(a.Ops) != len(b.Ops) {
		return false
	}
	for i := range a.Ops {
		if a.Ops[i].Kind != b.Ops[i].Kind {
			return false
		}
		if !operation.Equal(a.Ops[i].Path, b.Ops[i].Path) {
			return false
		}
		aj, errA := json.Marshal(a.Ops[i].Payload)
		bj, errB := json.Marshal(b.Ops[i].Payload)
		if errA != nil || errB != nil || string(aj) != string(bj) {
			return false
		}
	}
	return true
}
