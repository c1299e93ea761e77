// Package document implements the client-side mutable view of a schema:
// Document holds the live state, a buffer of not-yet-flushed operations,
// and an optional transaction scope that batches several proxy writes
// into one atomic group.
package document

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"docengine/operation"
	"docengine/primitive"
	"docengine/transaction"
)

// ErrNestedTransaction is returned by Transaction when a transaction is
// already in progress.
var ErrNestedTransaction = errors.New("nested transactions are not allowed")

// Document is the client-side mutable root for one schema instance. It
// implements primitive.Env so every proxy built from its Root() reads and
// writes through it.
type Document struct {
	mu       sync.Mutex
	schema   primitive.Primitive
	registry *operation.Registry
	state    primitive.State
	pending  []operation.Operation

	inTx        bool
	txOps       []operation.Operation
	txBaseState primitive.State
}

// New creates a Document for schema, seeded with the schema's initial
// state. reg may be nil, in which case flush-time deduplication only
// honors each operation's own Deduplicable flag.
func New(schema primitive.Primitive, reg *operation.Registry) *Document {
	return &Document{
		schema:   schema,
		registry: reg,
		state:    schema.InitialState(),
	}
}

// Root returns the mutation/read proxy for the document's schema.
func (d *Document) Root() any {
	return d.schema.CreateProxy(d, operation.NewPath())
}

// State returns the current document state. Callers must not mutate the
// returned value.
func (d *Document) State() primitive.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// GetState implements primitive.Env.
func (d *Document) GetState(path operation.Path) primitive.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return lookup(d.state, path)
}

// Push implements primitive.Env. Outside a transaction it applies op to
// state immediately and buffers it in pending; on apply failure, state is
// rolled back to the pre-op snapshot and the error is returned. Inside a
// transaction, op is applied immediately (so subsequent reads in the same
// transaction observe it) and recorded in the transaction's op list
// instead of pending.
func (d *Document) Push(op operation.Operation) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	before := d.state
	next, err := d.schema.ApplyOperation(d.state, op)
	if err != nil {
		d.state = before
		return err
	}
	d.state = next

	if d.inTx {
		d.txOps = append(d.txOps, op)
		return nil
	}
	d.pending = append(d.pending, op)
	return nil
}

// Transaction runs fn against the document's root proxy as a single
// atomic batch: fn's proxy writes are applied immediately so later reads
// within fn observe earlier writes, but the whole batch is only appended
// to pending (as one ordered run of operations) if fn returns a nil
// error. Nested transactions are rejected. On error, state is rolled back
// to what it was before the transaction started and the error (fn's own,
// or ErrNestedTransaction) is returned.
func (d *Document) Transaction(fn func(root any) error) error {
	d.mu.Lock()
	if d.inTx {
		d.mu.Unlock()
		return ErrNestedTransaction
	}
	d.inTx = true
	d.txBaseState = d.state
	d.txOps = nil
	d.mu.Unlock()

	root := d.Root()
	err := fn(root)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.state = d.txBaseState
		d.txOps = nil
		d.inTx = false
		return err
	}
	d.pending = append(d.pending, d.txOps...)
	d.txOps = nil
	d.inTx = false
	return nil
}

// Apply applies externally-received operations (from the server) directly
// to state, bypassing pending. The first failing operation aborts the
// batch; state reflects only the operations applied before the failure.
func (d *Document) Apply(ops []operation.Operation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, op := range ops {
		next, err := d.schema.ApplyOperation(d.state, op)
		if err != nil {
			return errors.Wrapf(err, "apply op %d", i)
		}
		d.state = next
	}
	return nil
}

// Flush builds a Transaction from the buffered pending operations,
// deduplicating consecutive same-path operations per the registry, and
// clears the buffer. Returns nil if there is nothing pending.
func (d *Document) Flush() *transaction.Transaction {
	d.mu.Lock()
	ops := d.pending
	d.pending = nil
	d.mu.Unlock()

	if len(ops) == 0 {
		return nil
	}
	deduped := transaction.Dedupe(ops, d.registry)
	return transaction.New(uuid.NewString(), deduped, nowMillis())
}

// Pending reports the number of buffered, not-yet-flushed operations.
func (d *Document) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// lookup walks path through state the same way every proxy's Get does:
// map[string]State keyed by field name for struct state, []ArrayEntry or
// []TreeNodeState looked up by id for array/tree state.
func lookup(state primitive.State, path operation.Path) primitive.State {
	token, ok := path.Head()
	if !ok {
		return state
	}
	_, rest := path.Shift()
	switch v := state.(type) {
	case map[string]primitive.State:
		return lookup(v[token], rest)
	case []primitive.ArrayEntry:
		for _, entry := range v {
			if entry.ID == token {
				return lookup(entry.Value, rest)
			}
		}
		return nil
	case []primitive.TreeNodeState:
		for _, node := range v {
			if node.ID == token {
				return lookup(node.Data, rest)
			}
		}
		return nil
	default:
		return nil
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
