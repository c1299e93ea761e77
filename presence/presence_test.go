package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvOrTimeout(t *testing.T, ch <-chan Event) (Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-ch:
		return ev, ok
	case <-time.After(time.Second):
		return Event{}, false
	}
}

func TestSetBroadcastsUpdateExceptToSelf(t *testing.T) {
	m := NewManager()
	chA, cancelA := m.Subscribe("doc-1", "conn-a")
	defer cancelA()
	chB, cancelB := m.Subscribe("doc-1", "conn-b")
	defer cancelB()

	m.Set("doc-1", "conn-a", Entry{Data: map[string]any{"cursor": 3}, UserID: "u1"})

	evB, ok := recvOrTimeout(t, chB)
	require.True(t, ok)
	assert.Equal(t, EventUpdate, evB.Type)
	assert.Equal(t, "conn-a", evB.ConnectionID)

	select {
	case <-chA:
		t.Fatal("self should not receive its own presence update")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRemoveOnlyBroadcastsWhenEntryExisted(t *testing.T) {
	m := NewManager()
	ch, cancel := m.Subscribe("doc-1", "conn-b")
	defer cancel()

	m.Remove("doc-1", "conn-a") // never set, should not broadcast

	select {
	case <-ch:
		t.Fatal("remove of an absent entry must not broadcast")
	case <-time.After(50 * time.Millisecond):
	}

	m.Set("doc-1", "conn-a", Entry{Data: "x"})
	_, ok := recvOrTimeout(t, ch)
	require.True(t, ok)

	m.Remove("doc-1", "conn-a")
	ev, ok := recvOrTimeout(t, ch)
	require.True(t, ok)
	assert.Equal(t, EventRemove, ev.Type)
	assert.Equal(t, "conn-a", ev.ConnectionID)
}

func TestSnapshotReturnsCurrentMap(t *testing.T) {
	m := NewManager()
	assert.Empty(t, m.Snapshot("doc-1"))

	m.Set("doc-1", "conn-a", Entry{Data: "x", UserID: "u1"})
	snap := m.Snapshot("doc-1")
	require.Len(t, snap, 1)
	assert.Equal(t, "x", snap["conn-a"].Data)
}

func TestCancelClosesChannel(t *testing.T) {
	m := NewManager()
	ch, cancel := m.Subscribe("doc-1", "conn-a")
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
}
