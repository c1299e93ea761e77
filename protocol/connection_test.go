package protocol

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docengine/auth"
	"docengine/operation"
	"docengine/presence"
	"docengine/primitive"
	"docengine/server"
	"docengine/transaction"
)

func testSchema() *primitive.StructPrimitive {
	return primitive.Struct(
		primitive.F("title", primitive.String().Default("")),
	)
}

type fakeTransport struct {
	frames chan ServerFrame
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{frames: make(chan ServerFrame, 32)}
}

func (f *fakeTransport) Send(frame ServerFrame) error {
	f.frames <- frame
	return nil
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) recv(t *testing.T) ServerFrame {
	t.Helper()
	select {
	case frame := <-f.frames:
		return frame
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a frame")
		return ServerFrame{}
	}
}

func newHarness() (*Connection, *fakeTransport, *server.DocumentManager) {
	documents := server.NewManager(testSchema())
	presenceMgr := presence.NewManager()
	authenticator := auth.NewStaticTable(auth.StaticEntry{Token: "writer", UserID: "u1", Permission: auth.PermissionWrite})
	transport := newFakeTransport()
	conn := New("conn-1", "doc-1", transport, authenticator, documents, presenceMgr)
	return conn, transport, documents
}

func send(t *testing.T, conn *Connection, frame ClientFrame) {
	t.Helper()
	raw, err := json.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, conn.Handle(context.Background(), raw))
}

func TestSubmitBeforeAuthIsRejected(t *testing.T) {
	conn, transport, _ := newHarness()
	send(t, conn, ClientFrame{Type: ClientSubmit})
	frame := transport.recv(t)
	assert.Equal(t, ServerError, frame.Type)
}

func TestPingWorksBeforeAuth(t *testing.T) {
	conn, transport, _ := newHarness()
	send(t, conn, ClientFrame{Type: ClientPing})
	frame := transport.recv(t)
	assert.Equal(t, ServerPong, frame.Type)
}

func TestAuthSuccessTransitionsState(t *testing.T) {
	conn, transport, _ := newHarness()
	send(t, conn, ClientFrame{Type: ClientAuth, Token: "writer"})

	authResult := transport.recv(t)
	assert.Equal(t, ServerAuthResult, authResult.Type)
	assert.True(t, authResult.Success)
	assert.Equal(t, "u1", authResult.UserID)

	snapshot := transport.recv(t)
	assert.Equal(t, ServerPresenceSnapshot, snapshot.Type)
}

func TestAuthFailureStaysUnauthenticated(t *testing.T) {
	conn, transport, _ := newHarness()
	send(t, conn, ClientFrame{Type: ClientAuth, Token: "nope"})
	frame := transport.recv(t)
	assert.False(t, frame.Success)

	send(t, conn, ClientFrame{Type: ClientSubmit})
	frame = transport.recv(t)
	assert.Equal(t, ServerError, frame.Type)
}

func TestSubmitAfterAuthBroadcastsBackToSender(t *testing.T) {
	conn, transport, _ := newHarness()
	send(t, conn, ClientFrame{Type: ClientAuth, Token: "writer"})
	transport.recv(t) // auth_result
	transport.recv(t) // presence_snapshot

	tx := transaction.New("tx-1", []operation.Operation{
		operation.New(operation.KindStringSet, operation.NewPath("title"), "hi"),
	}, 1)
	txJSON, err := json.Marshal(tx)
	require.NoError(t, err)

	send(t, conn, ClientFrame{Type: ClientSubmit, Transaction: txJSON})

	frame := transport.recv(t)
	assert.Equal(t, ServerTransaction, frame.Type)
	assert.Equal(t, int64(1), frame.Version)
}

func TestRequestSnapshotReturnsCurrentState(t *testing.T) {
	conn, transport, documents := newHarness()
	send(t, conn, ClientFrame{Type: ClientAuth, Token: "writer"})
	transport.recv(t)
	transport.recv(t)

	doc, err := documents.Get(context.Background(), "doc-1")
	require.NoError(t, err)
	_, err = doc.Submit(context.Background(), transaction.New("tx-1", []operation.Operation{
		operation.New(operation.KindStringSet, operation.NewPath("title"), "hello"),
	}, 1))
	require.NoError(t, err)
	transport.recv(t) // the broadcast from this submit also lands on our own subscription

	send(t, conn, ClientFrame{Type: ClientRequestSnapshot})
	frame := transport.recv(t)
	require.Equal(t, ServerSnapshot, frame.Type)
	assert.Equal(t, int64(1), frame.Version)
}

func TestPresenceSetBroadcastsToOtherConnections(t *testing.T) {
	documents := server.NewManager(testSchema())
	presenceMgr := presence.NewManager()
	authenticator := auth.NewStaticTable(auth.StaticEntry{Token: "writer", UserID: "u1", Permission: auth.PermissionWrite})

	transportA := newFakeTransport()
	connA := New("conn-a", "doc-1", transportA, authenticator, documents, presenceMgr)
	transportB := newFakeTransport()
	connB := New("conn-b", "doc-1", transportB, authenticator, documents, presenceMgr)

	send(t, connA, ClientFrame{Type: ClientAuth, Token: "writer"})
	transportA.recv(t)
	transportA.recv(t)
	send(t, connB, ClientFrame{Type: ClientAuth, Token: "writer"})
	transportB.recv(t)
	transportB.recv(t)

	data, err := json.Marshal(map[string]any{"cursor": 5})
	require.NoError(t, err)
	send(t, connA, ClientFrame{Type: ClientPresenceSet, Data: data})

	frame := transportB.recv(t)
	assert.Equal(t, ServerPresenceUpdate, frame.Type)
	assert.Equal(t, "conn-a", frame.ID)
}
