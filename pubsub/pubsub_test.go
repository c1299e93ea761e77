package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPublishDeliversToAllSubscribers(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	gotA := make(chan Message, 1)
	gotB := make(chan Message, 1)
	require.NoError(t, m.Subscribe(ctx, "doc-1", "a", func(_ context.Context, msg Message) error {
		gotA <- msg
		return nil
	}))
	require.NoError(t, m.Subscribe(ctx, "doc-1", "b", func(_ context.Context, msg Message) error {
		gotB <- msg
		return nil
	}))

	require.NoError(t, m.Publish(ctx, "doc-1", []byte("hello")))

	select {
	case msg := <-gotA:
		assert.Equal(t, "hello", string(msg.Data))
	case <-time.After(time.Second):
		t.Fatal("subscriber a never received the message")
	}
	select {
	case msg := <-gotB:
		assert.Equal(t, "hello", string(msg.Data))
	case <-time.After(time.Second):
		t.Fatal("subscriber b never received the message")
	}
}

func TestMemoryPublishIsScopedToTopic(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	got := make(chan Message, 1)
	require.NoError(t, m.Subscribe(ctx, "doc-1", "a", func(_ context.Context, msg Message) error {
		got <- msg
		return nil
	}))

	require.NoError(t, m.Publish(ctx, "doc-2", []byte("other")))

	select {
	case <-got:
		t.Fatal("subscriber on doc-1 should not receive a doc-2 publish")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryUnsubscribeStopsDelivery(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	got := make(chan Message, 1)
	require.NoError(t, m.Subscribe(ctx, "doc-1", "a", func(_ context.Context, msg Message) error {
		got <- msg
		return nil
	}))
	require.NoError(t, m.Unsubscribe(ctx, "doc-1", "a"))
	require.NoError(t, m.Publish(ctx, "doc-1", []byte("hello")))

	select {
	case <-got:
		t.Fatal("unsubscribed subscriber should not receive further messages")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryPublishAfterCloseErrors(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Close())
	err := m.Publish(context.Background(), "doc-1", []byte("hello"))
	assert.Error(t, err)
}
