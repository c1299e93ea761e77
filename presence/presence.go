// Package presence implements the ephemeral, per-document presence
// channel: who is connected to a document and whatever transient state
// (cursor position, selection, color) they publish about themselves.
// Presence is explicitly out of band from document transactions — no
// version, no persistence, no ordering guarantee relative to submitted
// transactions. Each document gets a small upsert/delete keyed map of
// whoever currently has presence published.
package presence

import "sync"

// Entry is one connection's published presence state.
type Entry struct {
	Data   any
	UserID string
}

// EventType identifies what kind of change a presence Event reports.
type EventType string

const (
	EventUpdate EventType = "presence_update"
	EventRemove EventType = "presence_remove"
)

// Event is what a Manager subscriber receives.
type Event struct {
	Type         EventType
	ConnectionID string
	Data         any
	UserID       string
}

type subscriber struct {
	connectionID string
	ch           chan Event
}

// Manager holds presence for every document being watched, broadcasting
// updates to per-document subscribers with no-echo filtering (a
// subscriber never receives an event carrying its own connection id).
type Manager struct {
	mu          sync.RWMutex
	presences   map[string]map[string]Entry
	subscribers map[string][]*subscriber
}

// NewManager creates an empty presence table.
func NewManager() *Manager {
	return &Manager{
		presences:   make(map[string]map[string]Entry),
		subscribers: make(map[string][]*subscriber),
	}
}

// Set upserts connID's presence entry for docID and broadcasts
// presence_update to every other subscriber of that document.
func (m *Manager) Set(docID, connID string, entry Entry) {
	m.mu.Lock()
	doc, ok := m.presences[docID]
	if !ok {
		doc = make(map[string]Entry)
		m.presences[docID] = doc
	}
	doc[connID] = entry
	m.mu.Unlock()

	m.broadcast(docID, Event{Type: EventUpdate, ConnectionID: connID, Data: entry.Data, UserID: entry.UserID})
}

// Remove deletes connID's presence entry for docID, if present, and
// broadcasts presence_remove only when an entry actually existed.
func (m *Manager) Remove(docID, connID string) {
	m.mu.Lock()
	doc, ok := m.presences[docID]
	if !ok {
		m.mu.Unlock()
		return
	}
	if _, present := doc[connID]; !present {
		m.mu.Unlock()
		return
	}
	delete(doc, connID)
	if len(doc) == 0 {
		delete(m.presences, docID)
	}
	m.mu.Unlock()

	m.broadcast(docID, Event{Type: EventRemove, ConnectionID: connID})
}

// Snapshot returns a copy of the current presence map for docID, which
// may be empty.
func (m *Manager) Snapshot(docID string) map[string]Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Entry, len(m.presences[docID]))
	for id, entry := range m.presences[docID] {
		out[id] = entry
	}
	return out
}

// Subscribe registers for presence_update/presence_remove events on
// docID. selfConnID is filtered out of the delivered stream (a
// connection never sees its own presence changes echoed back). The
// returned cancel func unregisters the subscriber and closes its channel.
func (m *Manager) Subscribe(docID, selfConnID string) (<-chan Event, func()) {
	sub := &subscriber{connectionID: selfConnID, ch: make(chan Event, 32)}

	m.mu.Lock()
	m.subscribers[docID] = append(m.subscribers[docID], sub)
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		subs := m.subscribers[docID]
		for i, s := range subs {
			if s == sub {
				m.subscribers[docID] = append(subs[:i], subs[i+1:]...)
				close(sub.ch)
				break
			}
		}
		if len(m.subscribers[docID]) == 0 {
			delete(m.subscribers, docID)
		}
	}
	return sub.ch, cancel
}

// broadcast delivers ev to every subscriber of docID except one whose
// connection id equals the event's own (no-echo) or whose buffer is full
// (dropped rather than allowed to block other subscribers).
func (m *Manager) broadcast(docID string, ev Event) {
	m.mu.RLock()
	subs := append([]*subscriber(nil), m.subscribers[docID]...)
	m.mu.RUnlock()

	for _, sub := range subs {
		if sub.connectionID == ev.ConnectionID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}
