package jsandy

import (
	"context"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/jsandy/jsandy/pubsub"
)

func TestBroadcaster_EmitPublishesToRoom(t *testing.T) {
	adapter := pubsub.NewMemoryAdapter()
	broadcaster := NewBroadcaster(adapter)

	sub, err := adapter.Subscribe(context.Background(), "lobby")
	assert.NilError(t, err)
	defer sub.Close()

	err = Emit(broadcaster.To("lobby"), context.Background(), "message", map[string]any{"text": "hi"})
	assert.NilError(t, err)

	select {
	case msg := <-sub.Messages:
		assert.Equal(t, msg.Event, "message")
		decoded, derr := DecodeBody(string(msg.Data), msg.Tagged)
		assert.NilError(t, derr)
		fields, ok := decoded.(map[string]any)
		assert.Check(t, ok)
		assert.Equal(t, fields["text"], "hi")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}
