package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisAdapter fans out room events through Redis pub/sub, so every process
// in a fleet subscribed to the same room receives every publish -- grounded
// on goadesign's registry/service.go use of redis/go-redis/v9 for
// cross-process state.
type RedisAdapter struct {
	client *redis.Client
	prefix string
}

// NewRedisAdapter wraps an already-configured *redis.Client. prefix
// namespaces the pub/sub channels (e.g. by environment) so multiple jsandy
// deployments can share a Redis instance without cross-talk.
func NewRedisAdapter(client *redis.Client, prefix string) *RedisAdapter {
	return &RedisAdapter{client: client, prefix: prefix}
}

func (a *RedisAdapter) channel(room string) string {
	if a.prefix == "" {
		return "jsandy:" + room
	}
	return a.prefix + ":jsandy:" + room
}

type redisEnvelope struct {
	Event  string `json:"event"`
	Data   []byte `json:"data"`
	Tagged bool   `json:"tagged"`
}

// Publish serializes msg and publishes it on the room's Redis channel.
func (a *RedisAdapter) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(redisEnvelope{Event: msg.Event, Data: msg.Data, Tagged: msg.Tagged})
	if err != nil {
		return fmt.Errorf("pubsub: marshal redis envelope: %w", err)
	}
	return a.client.Publish(ctx, a.channel(msg.Room), payload).Err()
}

// Subscribe opens a Redis pub/sub subscription for room and translates
// incoming messages back into Message values.
func (a *RedisAdapter) Subscribe(ctx context.Context, room string) (*Subscription, error) {
	rsub := a.client.Subscribe(ctx, a.channel(room))
	if _, err := rsub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("pubsub: redis subscribe: %w", err)
	}

	out := make(chan Message, 64)
	redisCh := rsub.Channel()

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case rm, ok := <-redisCh:
				if !ok {
					return
				}
				var env redisEnvelope
				if err := json.Unmarshal([]byte(rm.Payload), &env); err != nil {
					continue
				}
				select {
				case out <- Message{Room: room, Event: env.Event, Data: env.Data, Tagged: env.Tagged}:
				default:
				}
			}
		}
	}()

	return &Subscription{Messages: out, Close: func() { _ = rsub.Close() }}, nil
}
