package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jsandy/jsandy"
)

const (
	reconnectDelay       = 1500 * time.Millisecond
	maxReconnectAttempts = 3
)

const (
	pingEvent = "ping"
	pongEvent = "pong"
)

var nullData = json.RawMessage("null")

// wireFrame mirrors jsandy's internal wire frame shape: a two-element JSON
// sequence `[event_name, data]`, not a JSON object. data carries the
// always-enveloped per-field codec encoding jsandy.EncodeField/DecodeField
// produce, since a WS frame has no header channel to carry a tagged-vs-plain
// flag out of band.
type wireFrame struct {
	Event string
	Data  json.RawMessage
}

func (f wireFrame) MarshalJSON() ([]byte, error) {
	eventJSON, err := json.Marshal(f.Event)
	if err != nil {
		return nil, err
	}
	data := f.Data
	if len(data) == 0 {
		data = nullData
	}
	out := make([]byte, 0, len(eventJSON)+len(data)+3)
	out = append(out, '[')
	out = append(out, eventJSON...)
	out = append(out, ',')
	out = append(out, data...)
	out = append(out, ']')
	return out, nil
}

func (f *wireFrame) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("jsandy/client: WS frame must be a two-element sequence, got %d elements", len(raw))
	}
	var event string
	if err := json.Unmarshal(raw[0], &event); err != nil {
		return fmt.Errorf("jsandy/client: WS frame event name must be a string: %w", err)
	}
	f.Event = event
	f.Data = raw[1]
	return nil
}

// ClientSocket is a WebSocket connection to a jsandy ServerSocket route,
// typed by the messages it sends (Outgoing) and receives (Incoming). On an
// unexpected disconnect it retries the dial up to maxReconnectAttempts
// times, waiting reconnectDelay between attempts, preserving every handler
// registered with OnMessage across the reconnect.
type ClientSocket[Incoming, Outgoing any] struct {
	url    string
	header http.Header

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  bool

	handlersMu sync.Mutex
	handlers   map[string]map[int]func(ctx context.Context, payload Incoming) error
	order      map[string][]int
	nextID     int
}

// WS dials path as a WebSocket, translating the client's http(s) base URL
// into ws(s).
func WS[Incoming, Outgoing any](c *Client, path string) (*ClientSocket[Incoming, Outgoing], error) {
	socket := &ClientSocket[Incoming, Outgoing]{
		url:      toWebSocketURL(c.URL(path)),
		header:   c.headers.Clone(),
		handlers: make(map[string]map[int]func(ctx context.Context, payload Incoming) error),
		order:    make(map[string][]int),
	}

	if err := socket.dial(); err != nil {
		return nil, err
	}

	go socket.readLoop()
	return socket, nil
}

func toWebSocketURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	default:
		return httpURL
	}
}

func (s *ClientSocket[Incoming, Outgoing]) dial() error {
	conn, _, err := websocket.DefaultDialer.Dial(s.url, s.header)
	if err != nil {
		return fmt.Errorf("jsandy/client: dial %s: %w", s.url, err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return nil
}

// OnMessage registers a handler for incoming server messages carrying the
// given event name, returning an unsubscribe function. Handlers survive a
// reconnect. Registering against the reserved "ping"/"pong" event names is
// rejected by the read loop before it ever reaches a handler.
func (s *ClientSocket[Incoming, Outgoing]) OnMessage(event string, handler func(ctx context.Context, payload Incoming) error) func() {
	s.handlersMu.Lock()
	id := s.nextID
	s.nextID++
	if s.handlers[event] == nil {
		s.handlers[event] = make(map[int]func(ctx context.Context, payload Incoming) error)
	}
	s.handlers[event][id] = handler
	s.order[event] = append(s.order[event], id)
	s.handlersMu.Unlock()

	return func() {
		s.handlersMu.Lock()
		delete(s.handlers[event], id)
		s.handlersMu.Unlock()
	}
}

// Send encodes payload and writes it to the connection as event.
func (s *ClientSocket[Incoming, Outgoing]) Send(event string, payload Outgoing) error {
	if event == pingEvent || event == pongEvent {
		return fmt.Errorf("jsandy/client: %q is a reserved event name", event)
	}

	text, err := jsandy.EncodeField(payload)
	if err != nil {
		return err
	}

	b, err := json.Marshal(wireFrame{Event: event, Data: json.RawMessage(text)})
	if err != nil {
		return err
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("jsandy/client: socket is not connected")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (s *ClientSocket[Incoming, Outgoing]) readLoop() {
	for {
		s.mu.Lock()
		conn := s.conn
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !s.reconnect() {
				return
			}
			continue
		}

		var frame wireFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}

		// The server's message pump answers our "ping" keepalives with
		// "pong" directly; a "ping" forwarded from a joined room's
		// heartbeat is answered the same way, bypassing user handlers.
		if frame.Event == pingEvent {
			_ = s.writeRaw(wireFrame{Event: pongEvent, Data: nullData})
			continue
		}
		if frame.Event == pongEvent {
			continue
		}

		decoded, err := jsandy.DecodeField(string(frame.Data))
		if err != nil {
			continue
		}
		fields, ok := decoded.(map[string]any)
		if !ok {
			fields = map[string]any{}
		}
		payload, err := jsandy.Bind[Incoming](fields)
		if err != nil {
			continue
		}

		s.dispatch(frame.Event, payload)
	}
}

func (s *ClientSocket[Incoming, Outgoing]) writeRaw(frame wireFrame) error {
	b, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("jsandy/client: socket is not connected")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, b)
}

func (s *ClientSocket[Incoming, Outgoing]) dispatch(event string, payload Incoming) {
	s.handlersMu.Lock()
	byID := s.handlers[event]
	ordered := make([]func(ctx context.Context, payload Incoming) error, 0, len(byID))
	for _, id := range s.order[event] {
		if h, ok := byID[id]; ok {
			ordered = append(ordered, h)
		}
	}
	s.handlersMu.Unlock()

	for _, h := range ordered {
		_ = h(context.Background(), payload)
	}
}

// reconnect retries the dial up to maxReconnectAttempts times, waiting
// reconnectDelay between each. Returns false (and leaves the socket closed)
// once all attempts are exhausted.
func (s *ClientSocket[Incoming, Outgoing]) reconnect() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		time.Sleep(reconnectDelay)
		if err := s.dial(); err == nil {
			return true
		}
	}

	_ = s.Close()
	return false
}

// Close terminates the connection and stops any further reconnect attempts.
func (s *ClientSocket[Incoming, Outgoing]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}
