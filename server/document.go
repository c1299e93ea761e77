// Package server implements the authoritative, per-document server side:
// ServerDocument applies submitted transactions under an exclusive lock,
// persists them, and broadcasts the result to subscribers; DocumentManager
// holds the concurrent-safe table of ServerDocuments, creating and
// evicting them on demand. There is no merge step: each ServerDocument
// has exactly one writer, so transactions apply in the order they're
// submitted rather than under any conflict-resolution scheme.
package server

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"

	"docengine/docerrors"
	"docengine/operation"
	"docengine/primitive"
	"docengine/pubsub"
	"docengine/storage"
	"docengine/transaction"
)

var log = logging.Logger("docengine/server")

// ServerMessage is what a subscriber receives from ServerDocument.Subscribe.
// Presence events are delivered on a separate channel (see presence
// package); this stream only ever carries applied transactions.
type ServerMessage struct {
	Type        string
	Transaction *transaction.Transaction
	Version     int64
}

// Result is what Submit returns on success.
type Result struct {
	Version int64
}

// snapshotPayload is the JSON shape persisted to cold storage: state plus
// the version it was captured at, so a reload knows where WAL replay
// should resume.
type snapshotPayload struct {
	State   primitive.State `json:"state"`
	Version int64           `json:"version"`
}

const defaultSeenCapacity = 4096

// ServerDocument is the authoritative state of one document: schema-typed
// state, a monotonic version counter, a bounded recently-seen transaction
// id set for idempotence, and a fan-out subscriber table.
type ServerDocument struct {
	id     string
	schema primitive.Primitive

	stateMu sync.RWMutex
	state   primitive.State
	version int64
	seen    map[string]struct{}
	seenQ   []string

	subMu       sync.Mutex
	subscribers map[string]chan ServerMessage

	cold    storage.Storage
	wal     storage.WAL
	metrics Metrics
	relay   pubsub.Broadcaster
}

// Option configures a ServerDocument at construction.
type Option func(*ServerDocument)

// WithStorage wires a cold-storage backend for snapshot load/save.
func WithStorage(s storage.Storage) Option {
	return func(sd *ServerDocument) { sd.cold = s }
}

// WithWAL wires a write-ahead log consulted before broadcasting and
// replayed on load.
func WithWAL(w storage.WAL) Option {
	return func(sd *ServerDocument) { sd.wal = w }
}

// WithMetrics wires a Metrics sink. Nil keeps the NopMetrics default.
func WithMetrics(m Metrics) Option {
	return func(sd *ServerDocument) {
		if m != nil {
			sd.metrics = m
		}
	}
}

// WithBroadcaster wires a cross-process relay: every transaction this
// document accepts is also published on a topic named after its id, so
// other processes holding a read-only mirror of the same document (one
// that never calls Submit on it) can still learn about new versions via
// MirrorRemote.
func WithBroadcaster(b pubsub.Broadcaster) Option {
	return func(sd *ServerDocument) { sd.relay = b }
}

// New creates a ServerDocument seeded with schema's initial state. Callers
// that want persistence should follow New with Load.
func New(id string, schema primitive.Primitive, opts ...Option) *ServerDocument {
	sd := &ServerDocument{
		id:          id,
		schema:      schema,
		state:       schema.InitialState(),
		seen:        make(map[string]struct{}),
		subscribers: make(map[string]chan ServerMessage),
		metrics:     NopMetrics{},
	}
	for _, opt := range opts {
		opt(sd)
	}
	return sd
}

// ID returns the document's id.
func (sd *ServerDocument) ID() string { return sd.id }

// Version returns the current applied-transaction count.
func (sd *ServerDocument) Version() int64 {
	sd.stateMu.RLock()
	defer sd.stateMu.RUnlock()
	return sd.version
}

// Load restores state from cold storage (if any), then replays WAL
// entries with versions contiguous from the snapshot's version. A gap in
// the replayed sequence stops replay at the latest contiguous prefix and
// reports it via Metrics.WALGapDetected; it is not a load error. If cold
// storage has nothing for this id, state stays at the schema's initial
// value.
func (sd *ServerDocument) Load(ctx context.Context) error {
	if sd.cold == nil {
		return nil
	}
	raw, found, err := sd.cold.Load(ctx, sd.id)
	if err != nil {
		return errors.Wrap(err, "load snapshot")
	}
	if !found {
		return nil
	}
	var snap snapshotPayload
	if err := json.Unmarshal(raw, &snap); err != nil {
		return errors.Wrap(err, "decode snapshot")
	}
	hydrated, err := primitive.Hydrate(sd.schema, snap.State)
	if err != nil {
		return errors.Wrap(err, "hydrate snapshot state")
	}

	sd.stateMu.Lock()
	sd.state = hydrated
	sd.version = snap.Version
	sd.stateMu.Unlock()

	if sd.wal == nil {
		return nil
	}
	entries, err := sd.wal.Entries(ctx, sd.id, snap.Version)
	if err != nil {
		return errors.Wrap(err, "load wal entries")
	}

	sd.stateMu.Lock()
	defer sd.stateMu.Unlock()
	expected := sd.version + 1
	for _, entry := range entries {
		if entry.Version != expected {
			sd.metrics.WALGapDetected(sd.id, expected, entry.Version)
			break
		}
		var tx transaction.Transaction
		if err := json.Unmarshal(entry.Tx, &tx); err != nil {
			sd.metrics.WALGapDetected(sd.id, expected, entry.Version)
			break
		}
		next, err := applyAll(sd.schema, sd.state, tx.Ops)
		if err != nil {
			sd.metrics.WALGapDetected(sd.id, expected, entry.Version)
			break
		}
		sd.state = next
		sd.version = entry.Version
		sd.rememberLocked(tx.ID)
		expected++
	}
	return nil
}

// Save snapshots the current state to cold storage. Intended to be called
// periodically or just before eviction.
func (sd *ServerDocument) Save(ctx context.Context) error {
	if sd.cold == nil {
		return nil
	}
	sd.stateMu.RLock()
	snap := snapshotPayload{State: sd.state, Version: sd.version}
	sd.stateMu.RUnlock()

	raw, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	if err := sd.cold.Save(ctx, sd.id, raw); err != nil {
		return errors.Wrap(err, "save snapshot")
	}
	return nil
}

func applyAll(schema primitive.Primitive, state primitive.State, ops []operation.Operation) (primitive.State, error) {
	for _, op := range ops {
		next, err := schema.ApplyOperation(state, op)
		if err != nil {
			return nil, err
		}
		state = next
	}
	return state, nil
}

// Submit applies tx under the document's exclusive lock, in order: empty
// and duplicate transactions are rejected without mutating state; the
// first operation that fails validation rolls the whole transaction back;
// a WAL write failure also rolls back. On success version increments,
// tx.ID is recorded in the seen-set, and the transaction is broadcast to
// every subscriber before Submit returns.
func (sd *ServerDocument) Submit(ctx context.Context, tx *transaction.Transaction) (Result, error) {
	if tx.Empty() {
		sd.metrics.SubmitRejected(sd.id, "empty")
		return Result{}, docerrors.ErrEmptyTransaction{}
	}

	sd.stateMu.Lock()
	defer sd.stateMu.Unlock()

	if _, seen := sd.seen[tx.ID]; seen {
		sd.metrics.SubmitRejected(sd.id, "duplicate")
		return Result{}, docerrors.ErrDuplicateTransaction{ID: tx.ID}
	}

	base := sd.state
	next, err := applyAll(sd.schema, base, tx.Ops)
	if err != nil {
		sd.metrics.SubmitRejected(sd.id, "validation")
		return Result{}, err
	}

	if sd.wal != nil {
		raw, encErr := json.Marshal(tx)
		if encErr != nil {
			sd.metrics.SubmitRejected(sd.id, "storage")
			return Result{}, errors.Wrap(encErr, "encode transaction for wal")
		}
		entry := storage.WALEntry{Version: sd.version + 1, Tx: raw, Timestamp: tx.Timestamp}
		if walErr := sd.wal.Append(ctx, sd.id, entry); walErr != nil {
			sd.metrics.SubmitRejected(sd.id, "storage")
			return Result{}, errors.Wrap(walErr, "append wal entry")
		}
	}

	sd.state = next
	sd.version++
	sd.rememberLocked(tx.ID)
	version := sd.version

	msg := ServerMessage{Type: "transaction", Transaction: tx, Version: version}
	sd.broadcast(msg)
	sd.relayPublish(ctx, msg)
	sd.metrics.SubmitAccepted(sd.id)
	return Result{Version: version}, nil
}

// relayPublish fans msg out to the cross-process broadcaster, if one is
// wired. Publish failures are logged, not returned: a relay outage must
// not roll back an already-accepted, already-persisted transaction.
func (sd *ServerDocument) relayPublish(ctx context.Context, msg ServerMessage) {
	if sd.relay == nil {
		return
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		log.Warnw("failed to encode message for relay", "document", sd.id, "error", err)
		return
	}
	if err := sd.relay.Publish(ctx, sd.id, raw); err != nil {
		log.Warnw("failed to publish to relay", "document", sd.id, "error", err)
	}
}

// MirrorRemote subscribes this document to its own relay topic and applies
// every remotely-published transaction as if broadcast locally. Intended
// for a process that holds a read-only copy of a document it never calls
// Submit on (the owning process is elsewhere); calling it on the owning
// process would needlessly double-apply its own Submit broadcasts, since
// those are already relayed, so callers should only attach it to mirrors.
func (sd *ServerDocument) MirrorRemote(ctx context.Context, subscriberID string) error {
	if sd.relay == nil {
		return errors.New("no broadcaster wired")
	}
	return sd.relay.Subscribe(ctx, sd.id, subscriberID, func(_ context.Context, raw pubsub.Message) error {
		var msg ServerMessage
		if err := json.Unmarshal(raw.Data, &msg); err != nil {
			return errors.Wrap(err, "decode relayed message")
		}
		sd.stateMu.Lock()
		if msg.Version <= sd.version {
			sd.stateMu.Unlock()
			return nil
		}
		next, err := applyAll(sd.schema, sd.state, msg.Transaction.Ops)
		if err != nil {
			sd.stateMu.Unlock()
			return errors.Wrap(err, "apply relayed transaction")
		}
		sd.state = next
		sd.version = msg.Version
		sd.rememberLocked(msg.Transaction.ID)
		sd.stateMu.Unlock()

		sd.broadcast(msg)
		return nil
	})
}

func (sd *ServerDocument) rememberLocked(id string) {
	if _, ok := sd.seen[id]; ok {
		return
	}
	sd.seen[id] = struct{}{}
	sd.seenQ = append(sd.seenQ, id)
	if len(sd.seenQ) > defaultSeenCapacity {
		oldest := sd.seenQ[0]
		sd.seenQ = sd.seenQ[1:]
		delete(sd.seen, oldest)
	}
}

// Snapshot returns the current state and version under a shared lock.
func (sd *ServerDocument) Snapshot() (primitive.State, int64) {
	sd.stateMu.RLock()
	defer sd.stateMu.RUnlock()
	return sd.state, sd.version
}

// Subscribe registers a new subscriber and returns its id, the channel
// future broadcasts are delivered on, and a cancel func that unregisters
// it. The stream carries no backfill; callers that need the current state
// should call Snapshot separately before or just after subscribing.
func (sd *ServerDocument) Subscribe() (string, <-chan ServerMessage, func()) {
	ch := make(chan ServerMessage, 64)
	id := uuid.NewString()

	sd.subMu.Lock()
	sd.subscribers[id] = ch
	sd.subMu.Unlock()

	cancel := func() {
		sd.subMu.Lock()
		if existing, ok := sd.subscribers[id]; ok {
			delete(sd.subscribers, id)
			close(existing)
		}
		sd.subMu.Unlock()
	}
	return id, ch, cancel
}

// SubscriberCount reports how many live subscribers this document has,
// so a caller like DocumentManager's eviction path can avoid dropping a
// document that is still being watched.
func (sd *ServerDocument) SubscriberCount() int {
	sd.subMu.Lock()
	defer sd.subMu.Unlock()
	return len(sd.subscribers)
}

// broadcast fans msg out to every subscriber. A subscriber whose buffer is
// full is dropped rather than allowed to block the others or Submit
// itself; this matches the bounded-outbound-buffer failure policy.
func (sd *ServerDocument) broadcast(msg ServerMessage) {
	sd.subMu.Lock()
	defer sd.subMu.Unlock()
	for id, ch := range sd.subscribers {
		select {
		case ch <- msg:
		default:
			log.Warnw("dropping slow subscriber", "document", sd.id, "subscriber", id)
			delete(sd.subscribers, id)
			close(ch)
		}
	}
}
