package client_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/jsandy/jsandy"
	"github.com/jsandy/jsandy/client"
	"github.com/jsandy/jsandy/pubsub"
)

type echoMessage struct {
	Text string `json:"text"`
}

func TestClientSocket_RoundTripsThroughServerSocket(t *testing.T) {
	adapter := pubsub.NewMemoryAdapter()

	procedure := jsandy.NewProcedure().
		Incoming(jsandy.Input[echoMessage]()).
		Outgoing(jsandy.Input[echoMessage]())

	route := jsandy.Ws(procedure, func(c *jsandy.Context, socket *jsandy.ServerSocket[echoMessage, echoMessage]) error {
		socket.OnMessage("message", func(ctx context.Context, msg echoMessage) error {
			return socket.Send("echo", echoMessage{Text: "got:" + msg.Text})
		})
		<-socket.Context().Done()
		return nil
	})

	router := jsandy.NewRouter(jsandy.RouterConfig{
		Log:     jsandy.NewDefaultLogger(jsandy.ErrorLevel),
		Adapter: adapter,
	})
	router.On("/echo", route)

	server := httptest.NewServer(router)
	defer server.Close()

	c := client.New(server.URL)
	socket, err := client.WS[echoMessage, echoMessage](c, "/echo")
	assert.NilError(t, err)
	defer socket.Close()

	received := make(chan echoMessage, 1)
	socket.OnMessage("echo", func(ctx context.Context, msg echoMessage) error {
		received <- msg
		return nil
	})

	assert.NilError(t, socket.Send("message", echoMessage{Text: "hi"}))

	select {
	case msg := <-received:
		assert.Equal(t, msg.Text, "got:hi")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echo")
	}
}
