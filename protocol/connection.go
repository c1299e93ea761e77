// Package protocol implements the per-connection state machine described
// by the wire protocol: a connection starts Unauthenticated, accepts an
// auth frame to become Authenticated, and from then on routes submit,
// snapshot and presence frames to a DocumentManager and a presence
// Manager. Framing (how bytes become frames) is an external transport,
// represented here only by the narrow Transport interface; protocol/ws
// supplies a concrete websocket one. The connection's receive loop and
// frame type-switch dispatch follow the same shape as other event-driven
// websocket clients in this codebase's lineage, generalized to this
// protocol's auth/submit/presence frame set.
package protocol

import (
	"context"
	"encoding/json"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"

	"docengine/auth"
	"docengine/docerrors"
	"docengine/presence"
	"docengine/server"
	"docengine/transaction"
)

var log = logging.Logger("docengine/protocol")

// State is a connection's position in the auth state machine.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticated    State = "authenticated"
)

// Transport is the minimal send/close surface a Connection drives. A
// concrete transport (protocol/ws) owns framing and the read loop; it
// calls Connection.Handle for each inbound frame and uses Send to push
// outbound ones.
type Transport interface {
	Send(frame ServerFrame) error
	Close() error
}

// Connection is one client's session against a single document: its auth
// state, its live subscriptions to document transactions and presence,
// and the document id it is scoped to (one connection binds to exactly
// one document for its lifetime).
type Connection struct {
	id            string
	documentID    string
	transport     Transport
	authenticator auth.Authenticator
	documents     *server.DocumentManager
	presenceMgr   *presence.Manager

	mu         sync.Mutex
	state      State
	userID     string
	permission auth.Permission
	doc        *server.ServerDocument

	cancelDocSub      func()
	cancelPresenceSub func()
}

// New creates a Connection scoped to documentID, starting Unauthenticated.
func New(id, documentID string, transport Transport, authenticator auth.Authenticator, documents *server.DocumentManager, presenceMgr *presence.Manager) *Connection {
	return &Connection{
		id:            id,
		documentID:    documentID,
		transport:     transport,
		authenticator: authenticator,
		documents:     documents,
		presenceMgr:   presenceMgr,
		state:         StateUnauthenticated,
	}
}

// Handle decodes and dispatches one inbound frame. Decode failures are
// protocol errors (connection-level, not per-transaction) and are
// returned to the caller, which is expected to close the connection.
func (c *Connection) Handle(ctx context.Context, raw []byte) error {
	var frame ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return docerrors.ErrProtocol{Message: "malformed frame: " + err.Error()}
	}

	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	if state == StateUnauthenticated && frame.Type != ClientAuth && frame.Type != ClientPing {
		return c.transport.Send(ServerFrame{Type: ServerError, Reason: "not authenticated"})
	}

	switch frame.Type {
	case ClientAuth:
		return c.handleAuth(ctx, frame)
	case ClientPing:
		return c.transport.Send(ServerFrame{Type: ServerPong})
	case ClientSubmit:
		return c.handleSubmit(ctx, frame)
	case ClientRequestSnapshot:
		return c.handleRequestSnapshot(ctx)
	case ClientPresenceSet:
		return c.handlePresenceSet(frame)
	case ClientPresenceClear:
		c.presenceMgr.Remove(c.documentID, c.id)
		return nil
	default:
		return docerrors.ErrProtocol{Message: "unknown message type: " + string(frame.Type)}
	}
}

func (c *Connection) handleAuth(ctx context.Context, frame ClientFrame) error {
	result, err := c.authenticator.Authenticate(ctx, frame.Token, c.documentID)
	if err != nil {
		return c.transport.Send(ServerFrame{Type: ServerAuthResult, Success: false, Error: err.Error()})
	}

	c.mu.Lock()
	c.state = StateAuthenticated
	c.userID = result.UserID
	c.permission = result.Permission
	c.mu.Unlock()

	if err := c.transport.Send(ServerFrame{
		Type:       ServerAuthResult,
		Success:    true,
		UserID:     result.UserID,
		Permission: string(result.Permission),
	}); err != nil {
		return err
	}

	c.startSubscriptions(ctx)
	return nil
}

// document returns the ServerDocument this connection is scoped to,
// resolving it from the manager once and caching it for the rest of the
// connection's life. Every later call reuses that same instance instead
// of asking the manager again: if the manager evicted and then recreated
// a ServerDocument for this id between frames, a fresh Get would return
// a second, disconnected instance with no subscribers and forked state,
// stranding this connection's existing subscription on the original one.
func (c *Connection) document(ctx context.Context) (*server.ServerDocument, error) {
	c.mu.Lock()
	if c.doc != nil {
		doc := c.doc
		c.mu.Unlock()
		return doc, nil
	}
	c.mu.Unlock()

	doc, err := c.documents.Get(ctx, c.documentID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.doc == nil {
		c.doc = doc
	}
	doc = c.doc
	c.mu.Unlock()
	return doc, nil
}

// startSubscriptions attaches the connection to its document's broadcast
// stream and to the presence channel, pumping both into the transport
// until the connection is closed.
func (c *Connection) startSubscriptions(ctx context.Context) {
	doc, err := c.document(ctx)
	if err != nil {
		log.Warnw("failed to load document for subscription", "document", c.documentID, "error", err)
		return
	}

	_, txCh, cancelDoc := doc.Subscribe()
	presenceCh, cancelPresence := c.presenceMgr.Subscribe(c.documentID, c.id)

	c.mu.Lock()
	c.cancelDocSub = cancelDoc
	c.cancelPresenceSub = cancelPresence
	c.mu.Unlock()

	if err := c.transport.Send(ServerFrame{
		Type:      ServerPresenceSnapshot,
		SelfID:    c.id,
		Presences: presenceSnapshotFrame(c.presenceMgr.Snapshot(c.documentID)),
	}); err != nil {
		log.Warnw("failed to send presence snapshot", "document", c.documentID, "error", err)
	}

	go c.pumpTransactions(txCh)
	go c.pumpPresence(presenceCh)
}

func presenceSnapshotFrame(entries map[string]presence.Entry) map[string]any {
	out := make(map[string]any, len(entries))
	for id, entry := range entries {
		out[id] = map[string]any{"data": entry.Data, "userId": entry.UserID}
	}
	return out
}

func (c *Connection) pumpTransactions(ch <-chan server.ServerMessage) {
	for msg := range ch {
		raw, err := json.Marshal(msg.Transaction)
		if err != nil {
			log.Warnw("failed to encode broadcast transaction", "document", c.documentID, "error", err)
			continue
		}
		if err := c.transport.Send(ServerFrame{Type: ServerTransaction, Transaction: raw, Version: msg.Version}); err != nil {
			return
		}
	}
}

func (c *Connection) pumpPresence(ch <-chan presence.Event) {
	for ev := range ch {
		frame := ServerFrame{ID: ev.ConnectionID}
		switch ev.Type {
		case presence.EventUpdate:
			frame.Type = ServerPresenceUpdate
			frame.State = ev.Data
		case presence.EventRemove:
			frame.Type = ServerPresenceRemove
		}
		if err := c.transport.Send(frame); err != nil {
			return
		}
	}
}

func (c *Connection) handleSubmit(ctx context.Context, frame ClientFrame) error {
	c.mu.Lock()
	permission := c.permission
	c.mu.Unlock()
	if permission != auth.PermissionWrite {
		return c.transport.Send(ServerFrame{Type: ServerError, Reason: "permission denied"})
	}

	var tx transaction.Transaction
	if err := json.Unmarshal(frame.Transaction, &tx); err != nil {
		return docerrors.ErrProtocol{Message: "malformed transaction: " + err.Error()}
	}

	doc, err := c.document(ctx)
	if err != nil {
		return errors.Wrap(err, "load document for submit")
	}

	if _, err := doc.Submit(ctx, &tx); err != nil {
		return c.transport.Send(ServerFrame{Type: ServerError, TransactionID: tx.ID, Reason: err.Error()})
	}
	return nil
}

func (c *Connection) handleRequestSnapshot(ctx context.Context) error {
	doc, err := c.document(ctx)
	if err != nil {
		return errors.Wrap(err, "load document for snapshot")
	}
	state, version := doc.Snapshot()
	return c.transport.Send(ServerFrame{Type: ServerSnapshot, State: state, Version: version})
}

func (c *Connection) handlePresenceSet(frame ClientFrame) error {
	var data any
	if len(frame.Data) > 0 {
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return docerrors.ErrProtocol{Message: "malformed presence data: " + err.Error()}
		}
	}
	c.mu.Lock()
	userID := c.userID
	c.mu.Unlock()
	c.presenceMgr.Set(c.documentID, c.id, presence.Entry{Data: data, UserID: userID})
	return nil
}

// Close runs connection finalizers: subscriptions are torn down and
// presence is cleared, matching the TransportError failure policy
// (finalizers run on disconnect regardless of cause).
func (c *Connection) Close() {
	c.mu.Lock()
	cancelDoc := c.cancelDocSub
	cancelPresence := c.cancelPresenceSub
	c.mu.Unlock()

	if cancelDoc != nil {
		cancelDoc()
	}
	if cancelPresence != nil {
		cancelPresence()
	}
	c.presenceMgr.Remove(c.documentID, c.id)
	_ = c.transport.Close()
}
