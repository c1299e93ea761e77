// Package ws is the thin websocket transport boundary the protocol
// package's Connection sits behind. Framing and connection lifecycle are
// deliberately minimal here — the real protocol logic lives in
// docengine/protocol; this package only turns websocket frames into
// Connection.Handle calls and ServerFrames into websocket writes. An
// Upgrader hands off to a blocking ReadMessage loop, with a mutex-guarded
// writer since gorilla/websocket forbids concurrent writes on one
// connection.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"docengine/protocol"
)

// Upgrader is the package-level websocket.Upgrader; callers may mutate
// its CheckOrigin/buffer sizes before calling Serve.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Conn adapts a *websocket.Conn to protocol.Transport.
type Conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

// NewConn wraps an already-upgraded websocket connection.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// Send implements protocol.Transport.
func (c *Conn) Send(frame protocol.ServerFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Close implements protocol.Transport.
func (c *Conn) Close() error {
	return c.ws.Close()
}

// Serve upgrades r into a websocket connection scoped to documentID, then
// blocks reading frames and handing them to conn.Handle until the socket
// closes or the read loop errors out, at which point it runs conn.Close.
func Serve(ctx context.Context, w http.ResponseWriter, r *http.Request, documentID string, newConnection func(transport protocol.Transport) *protocol.Connection) error {
	wsConn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	transport := NewConn(wsConn)
	conn := newConnection(transport)
	defer conn.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, raw, err := wsConn.ReadMessage()
		if err != nil {
			return err
		}
		if err := conn.Handle(ctx, raw); err != nil {
			// A single malformed frame or protocol error ends the
			// connection; partial/garbage input is not retried.
			return err
		}
	}
}
