package pubsub

import (
	"context"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestMemoryAdapter_PublishDeliversToSubscribersOfSameRoom(t *testing.T) {
	adapter := NewMemoryAdapter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := adapter.Subscribe(ctx, "lobby")
	assert.NilError(t, err)
	defer sub.Close()

	assert.NilError(t, adapter.Publish(ctx, Message{Room: "lobby", Event: "chat", Data: []byte("hi"), Tagged: false}))

	select {
	case msg := <-sub.Messages:
		assert.Equal(t, msg.Event, "chat")
		assert.Equal(t, string(msg.Data), "hi")
		assert.Equal(t, msg.Tagged, false)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestMemoryAdapter_DoesNotLeakAcrossRooms(t *testing.T) {
	adapter := NewMemoryAdapter()
	ctx := context.Background()

	lobby, err := adapter.Subscribe(ctx, "lobby")
	assert.NilError(t, err)
	defer lobby.Close()

	assert.NilError(t, adapter.Publish(ctx, Message{Room: "other", Event: "chat", Data: []byte("hi")}))

	select {
	case msg := <-lobby.Messages:
		t.Fatalf("unexpected message delivered to wrong room: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryAdapter_CloseStopsDelivery(t *testing.T) {
	adapter := NewMemoryAdapter()
	ctx := context.Background()

	sub, err := adapter.Subscribe(ctx, "lobby")
	assert.NilError(t, err)
	sub.Close()

	_, ok := <-sub.Messages
	assert.Check(t, !ok)
}
