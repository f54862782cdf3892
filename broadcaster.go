package jsandy

import (
	"context"

	"github.com/jsandy/jsandy/pubsub"
)

// Broadcaster emits events into rooms without going through any particular
// socket: spec.md's io.to(room).emit(event, data), used for server-initiated
// pushes (background jobs, webhooks) that aren't replies to a live
// connection.
type Broadcaster struct {
	adapter pubsub.Adapter
}

// NewBroadcaster wraps an Adapter for ad hoc room broadcasts.
func NewBroadcaster(adapter pubsub.Adapter) *Broadcaster {
	return &Broadcaster{adapter: adapter}
}

// RoomBroadcaster scopes a Broadcaster to one room.
type RoomBroadcaster struct {
	adapter pubsub.Adapter
	room    string
}

// To scopes emission to room, mirroring io.to(room) from spec.md's wire
// vocabulary.
func (b *Broadcaster) To(room string) *RoomBroadcaster {
	return &RoomBroadcaster{adapter: b.adapter, room: room}
}

// Emit encodes payload and publishes it as event to every subscriber of the
// broadcaster's room. A free function because Go methods cannot add their
// own type parameters beyond the receiver's.
func Emit[T any](rb *RoomBroadcaster, ctx context.Context, event string, payload T) error {
	body, tagged, err := EncodeBody(payload)
	if err != nil {
		return err
	}
	return rb.adapter.Publish(ctx, pubsub.Message{Room: rb.room, Event: event, Data: []byte(body), Tagged: tagged})
}
