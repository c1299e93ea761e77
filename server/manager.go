package server

import (
	"context"
	"math"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"docengine/primitive"
	"docengine/pubsub"
	"docengine/storage"
)

// ManagerOption configures a DocumentManager at construction.
type ManagerOption func(*DocumentManager)

// WithManagerStorage wires a cold-storage backend every created
// ServerDocument loads from and saves to.
func WithManagerStorage(s storage.Storage) ManagerOption {
	return func(m *DocumentManager) { m.storage = s }
}

// WithManagerWAL wires a write-ahead log every created ServerDocument uses.
func WithManagerWAL(w storage.WAL) ManagerOption {
	return func(m *DocumentManager) { m.wal = w }
}

// WithManagerMetrics wires a Metrics sink shared by every ServerDocument
// and by the manager's own resident-count gauge.
func WithManagerMetrics(metrics Metrics) ManagerOption {
	return func(m *DocumentManager) {
		if metrics != nil {
			m.metrics = metrics
		}
	}
}

// WithManagerBroadcaster wires a cross-process relay every created
// ServerDocument publishes its accepted transactions to.
func WithManagerBroadcaster(b pubsub.Broadcaster) ManagerOption {
	return func(m *DocumentManager) { m.relay = b }
}

// WithCapacity bounds how many ServerDocuments stay resident in memory at
// once; the least recently used idle one is saved and evicted when a new
// one would exceed it, skipping any document that still has subscribers.
// Zero or negative keeps the default of 256.
func WithCapacity(n int) ManagerOption {
	return func(m *DocumentManager) {
		if n > 0 {
			m.capacity = n
		}
	}
}

const defaultManagerCapacity = 256

// DocumentManager holds the concurrent-safe table mapping document id to
// ServerDocument, creating (and restoring from storage) on first access
// and evicting the least recently used idle document once resident count
// would exceed capacity. A document with active subscribers is never
// evicted to make room: forcing it out would orphan its subscribers'
// broadcast channel and leave a second, disconnected ServerDocument
// created on their next access. If every resident document is currently
// subscribed, occupancy is allowed to exceed capacity rather than fork
// state out from under a watcher.
type DocumentManager struct {
	schema   primitive.Primitive
	storage  storage.Storage
	wal      storage.WAL
	metrics  Metrics
	relay    pubsub.Broadcaster
	capacity int

	mu      sync.Mutex
	cache   *lru.Cache[string, *ServerDocument]
	locks   map[string]*sync.Mutex
	locksMu sync.Mutex
}

// NewManager creates a DocumentManager whose documents all share schema.
func NewManager(schema primitive.Primitive, opts ...ManagerOption) *DocumentManager {
	m := &DocumentManager{
		schema:   schema,
		metrics:  NopMetrics{},
		capacity: defaultManagerCapacity,
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}

	// The underlying cache's own size is kept effectively unbounded; the
	// configured capacity is enforced separately by evictIdleLocked, which
	// can skip a subscribed document and let occupancy run over. Letting
	// the library pick eviction victims on Add would have no way to
	// consult subscriber state.
	cache, err := lru.NewWithEvict[string, *ServerDocument](math.MaxInt32, m.onEvict)
	if err != nil {
		// Only returns an error for a non-positive size, which the fixed
		// math.MaxInt32 above never is.
		panic(err)
	}
	m.cache = cache
	return m
}

// onEvict saves a document as it leaves the resident set. It never
// chooses which document to evict: evictIdleLocked does, skipping any
// document with active subscribers, and an explicit Evict(id) removes
// the named document whether or not it has subscribers.
func (m *DocumentManager) onEvict(id string, doc *ServerDocument) {
	if err := doc.Save(context.Background()); err != nil {
		log.Warnw("failed to save document on eviction", "document", id, "error", err)
	}
	m.metrics.DocumentsResident(m.cache.Len())
}

// evictIdleLocked removes least-recently-used, unsubscribed documents
// until the resident set is back under capacity. Callers must hold m.mu.
func (m *DocumentManager) evictIdleLocked() {
	for m.cache.Len() >= m.capacity {
		victim, ok := m.oldestIdleLocked()
		if !ok {
			return
		}
		m.cache.Remove(victim)
	}
}

// oldestIdleLocked returns the least recently used resident document id
// that currently has no subscribers, if any. Callers must hold m.mu.
func (m *DocumentManager) oldestIdleLocked() (string, bool) {
	for _, id := range m.cache.Keys() {
		doc, ok := m.cache.Peek(id)
		if ok && doc.SubscriberCount() == 0 {
			return id, true
		}
	}
	return "", false
}

// documentLock returns the per-id creation lock used to make Get's
// check-create-store sequence atomic without serializing unrelated
// documents behind one global lock.
func (m *DocumentManager) documentLock(id string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

// Get returns the resident ServerDocument for id, creating and loading it
// from storage on first access. Concurrent calls for the same id that
// race only the first through does the load; the rest observe the cached
// result.
func (m *DocumentManager) Get(ctx context.Context, id string) (*ServerDocument, error) {
	m.mu.Lock()
	if doc, ok := m.cache.Get(id); ok {
		m.mu.Unlock()
		return doc, nil
	}
	m.mu.Unlock()

	lock := m.documentLock(id)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	if doc, ok := m.cache.Get(id); ok {
		m.mu.Unlock()
		return doc, nil
	}
	m.mu.Unlock()

	doc := New(id, m.schema, WithStorage(m.storage), WithWAL(m.wal), WithMetrics(m.metrics), WithBroadcaster(m.relay))
	if err := doc.Load(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.evictIdleLocked()
	m.cache.Add(id, doc)
	resident := m.cache.Len()
	m.mu.Unlock()
	m.metrics.DocumentsResident(resident)

	return doc, nil
}

// Evict removes id from the resident set. onEvict saves it on the way
// out, so callers don't need to Save first. It is a no-op if id is not
// currently resident.
func (m *DocumentManager) Evict(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Remove(id)
}

// Resident reports how many ServerDocuments are currently in memory.
func (m *DocumentManager) Resident() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache.Len()
}

// SaveAllResident snapshots every currently resident document to cold
// storage, without evicting any of them. Intended to be driven by a
// periodic autosave loop rather than called per-request.
func (m *DocumentManager) SaveAllResident(ctx context.Context) {
	m.mu.Lock()
	keys := m.cache.Keys()
	docs := make([]*ServerDocument, 0, len(keys))
	for _, id := range keys {
		if doc, ok := m.cache.Peek(id); ok {
			docs = append(docs, doc)
		}
	}
	m.mu.Unlock()

	for _, doc := range docs {
		if err := doc.Save(ctx); err != nil {
			log.Warnw("autosave failed", "document", doc.ID(), "error", err)
		}
	}
}
