package pubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
)

// Redis is a Broadcaster backed by Redis pub/sub, for multi-process
// deployments where more than one server process may hold a subscriber
// interested in the same document's broadcasts. Each topic gets its own
// *redis.PubSub and relay goroutine, shared by every local subscriber on
// that topic and torn down when the last one unsubscribes.
type Redis struct {
	client *redis.Client

	mu   sync.Mutex
	subs map[string]*redisSubscription
}

type redisSubscription struct {
	cancel context.CancelFunc
	ids    map[string]SubscriberFunc
}

// NewRedis wraps an existing *redis.Client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, subs: make(map[string]*redisSubscription)}
}

// Publish implements Broadcaster.
func (r *Redis) Publish(ctx context.Context, topic string, data []byte) error {
	return r.client.Publish(ctx, topic, data).Err()
}

// Subscribe implements Broadcaster. The first subscriber on a topic opens
// the underlying *redis.PubSub and starts a relay goroutine; later
// subscribers on the same topic share it.
func (r *Redis) Subscribe(ctx context.Context, topic, subscriberID string, fn SubscriberFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[topic]
	if ok {
		sub.ids[subscriberID] = fn
		return nil
	}

	subCtx, cancel := context.WithCancel(context.Background())
	sub = &redisSubscription{cancel: cancel, ids: map[string]SubscriberFunc{subscriberID: fn}}
	r.subs[topic] = sub

	rdb := r.client.Subscribe(subCtx, topic)
	ch := rdb.Channel()

	go func() {
		defer rdb.Close()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, more := <-ch:
				if !more {
					return
				}
				r.mu.Lock()
				handlers := make([]SubscriberFunc, 0, len(sub.ids))
				for _, h := range sub.ids {
					handlers = append(handlers, h)
				}
				r.mu.Unlock()
				for _, h := range handlers {
					_ = h(subCtx, Message{Topic: topic, Data: []byte(msg.Payload)})
				}
			}
		}
	}()

	return nil
}

// Unsubscribe implements Broadcaster. The underlying *redis.PubSub closes
// once the last subscriber on a topic is removed.
func (r *Redis) Unsubscribe(ctx context.Context, topic, subscriberID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[topic]
	if !ok {
		return nil
	}
	delete(sub.ids, subscriberID)
	if len(sub.ids) == 0 {
		sub.cancel()
		delete(r.subs, topic)
	}
	return nil
}

// Close implements Broadcaster, tearing down every open topic subscription.
func (r *Redis) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for topic, sub := range r.subs {
		sub.cancel()
		delete(r.subs, topic)
	}
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("pubsub: close redis client: %w", err)
	}
	return nil
}
