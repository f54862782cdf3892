package jsandy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jsandy/jsandy/pkg/cache"
	"github.com/jsandy/jsandy/pubsub"
)

// Overridable by tests; production code should leave these at their
// spec.md §4.5 defaults (30s sender period, 45s staleness threshold).
var (
	heartbeatInterval        = 30 * time.Second
	heartbeatMonitorInterval = 5 * time.Second
	heartbeatTimeout         = 45 * time.Second
)

// heartbeats tracks the last [ping, null] seen per (socket, room) pair. It's
// an *pkg/cache.InMemoryCache reused verbatim from ags, its TTL long enough
// that a room missing a few monitor ticks doesn't get silently evicted out
// from under itself. The heartbeat is room-scoped, not connection-scoped:
// each joined room gets its own sender and monitor, so a stalled
// subscription on one room trips a resubscribe for that room alone.
var heartbeats = cache.NewInMemoryCache(5*time.Minute, time.Minute)

func heartbeatKey(socketID, room string) string {
	return socketID + "\x00" + room
}

type jsandyCtxKey string

const adapterCtxKey jsandyCtxKey = "jsandy.pubsub.adapter"

// WithAdapter attaches the pub/sub adapter that WS routes mounted under ctx
// should use. RouterConfig.Adapter installs this on every request's context;
// call it directly only when composing contexts by hand (tests, custom
// transports).
func WithAdapter(ctx context.Context, adapter pubsub.Adapter) context.Context {
	return context.WithValue(ctx, adapterCtxKey, adapter)
}

func adapterFromContext(ctx context.Context) (pubsub.Adapter, bool) {
	a, ok := ctx.Value(adapterCtxKey).(pubsub.Adapter)
	return a, ok
}

// pingEvent and pongEvent are the two reserved WS event names per spec.md
// §6; their payload is always the literal JSON null, never codec-encoded.
const (
	pingEvent = "ping"
	pongEvent = "pong"
)

var nullData = json.RawMessage("null")

// wireFrame is the wire shape of one WS message: a two-element JSON sequence
// `[event_name, data]` per spec.md §6, not a JSON object. data carries the
// always-enveloped per-field codec encoding (the same policy EncodeField
// uses for query parameters and POST bodies) since a WS frame has no header
// channel to signal tagged-vs-plain out of band; ping/pong frames carry
// literal null instead of running the codec at all.
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
		return fmt.Errorf("jsandy: WS frame must be a two-element sequence, got %d elements", len(raw))
	}
	var event string
	if err := json.Unmarshal(raw[0], &event); err != nil {
		return fmt.Errorf("jsandy: WS frame event name must be a string: %w", err)
	}
	f.Event = event
	f.Data = raw[1]
	return nil
}

// ServerSocket is one accepted WebSocket connection, typed by the shape of
// messages it receives (Incoming) and sends (Outgoing). It owns room
// membership, a per-room heartbeat, and reconnect-safe delivery through a
// pubsub.Adapter.
type ServerSocket[Incoming, Outgoing any] struct {
	id      string
	conn    *websocket.Conn
	adapter pubsub.Adapter

	incomingSchema *Schema
	outgoingSchema *Schema
	onMessage      *EventEmitter[Incoming]
	log            Logger

	writeMu sync.Mutex

	mu         sync.Mutex
	rooms      map[string]*pubsub.Subscription
	roomCancel map[string]context.CancelFunc
	closed     bool

	ctx    context.Context
	cancel context.CancelFunc
}

func upgradeServerSocket[Incoming, Outgoing any](c *Context, incoming, outgoing *Schema) (*ServerSocket[Incoming, Outgoing], error) {
	adapter, ok := adapterFromContext(c.Context)
	if !ok {
		return nil, NewError(KindMissingAdapter, "no pub/sub adapter configured for this router")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		HandshakeTimeout:  10 * time.Second,
		EnableCompression: true,
		CheckOrigin:       func(r *http.Request) bool { return true },
	}

	conn, err := upgrader.Upgrade(c.Response, c.Request, nil)
	if err != nil {
		return nil, NewError(KindHttpError, "websocket upgrade failed").WithCause(err)
	}

	ctx, cancel := context.WithCancel(c.Context)
	socket := &ServerSocket[Incoming, Outgoing]{
		id:             uuid.NewString(),
		conn:           conn,
		adapter:        adapter,
		incomingSchema: incoming,
		outgoingSchema: outgoing,
		onMessage:      NewEventEmitter[Incoming](incoming),
		log:            c.Log,
		rooms:          make(map[string]*pubsub.Subscription),
		roomCancel:     make(map[string]context.CancelFunc),
		ctx:            ctx,
		cancel:         cancel,
	}

	go socket.readLoop()

	return socket, nil
}

// ID returns the socket's unique identifier, stable for its lifetime.
func (s *ServerSocket[Incoming, Outgoing]) ID() string {
	return s.id
}

// Context returns the socket's own context, canceled once the connection
// closes (by either side). A room heartbeat timeout resubscribes the room
// and does not cancel it. A Ws handler that needs
// to block for the connection's lifetime should select on
// socket.Context().Done(), not the Context it was handed -- that one
// belongs to the HTTP request that performed the upgrade and won't be
// canceled until the handler itself returns.
func (s *ServerSocket[Incoming, Outgoing]) Context() context.Context {
	return s.ctx
}

// OnMessage registers a handler for incoming client messages carrying the
// given event name, returning an unsubscribe function. Registering against
// the reserved "ping"/"pong" event names is rejected by the message pump
// before it ever reaches a handler.
func (s *ServerSocket[Incoming, Outgoing]) OnMessage(event string, handler func(ctx context.Context, payload Incoming) error) func() {
	return s.onMessage.On(event, handler)
}

// Send delivers an event directly to this connection, bypassing any room.
func (s *ServerSocket[Incoming, Outgoing]) Send(event string, payload Outgoing) error {
	if event == pingEvent || event == pongEvent {
		return NewError(KindBadEncoding, fmt.Sprintf("%q is a reserved event name", event))
	}
	frame, err := s.encodeFrame(event, payload)
	if err != nil {
		return err
	}
	return s.writeRaw(frame)
}

// Publish fans an event out to every subscriber of room via the adapter,
// including this socket if it has joined that room itself.
func (s *ServerSocket[Incoming, Outgoing]) Publish(room, event string, payload Outgoing) error {
	if event == pingEvent || event == pongEvent {
		return NewError(KindBadEncoding, fmt.Sprintf("%q is a reserved event name", event))
	}

	if s.outgoingSchema != nil {
		hints := map[string]tag{}
		doc, err := encodeAny(payload, "", hints)
		if err != nil {
			return err
		}
		if err := s.outgoingSchema.Validate(doc); err != nil {
			return err
		}
	}

	body, tagged, err := EncodeBody(payload)
	if err != nil {
		return err
	}

	return s.adapter.Publish(s.ctx, pubsub.Message{Room: room, Event: event, Data: []byte(body), Tagged: tagged})
}

// Join subscribes the socket to room through the adapter, starts forwarding
// that room's published events to the client, and starts a room-scoped
// heartbeat: a sender that publishes `[ping, null]` into the room every 30s,
// and a monitor that resubscribes the room if no `[ping, null]` has been
// observed from the subscription itself in 45s. Joining a room the socket is
// already in is a no-op, and joining a second room adds it alongside the
// first rather than replacing it.
func (s *ServerSocket[Incoming, Outgoing]) Join(room string) error {
	s.mu.Lock()
	if _, ok := s.rooms[room]; ok {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	sub, err := s.adapter.Subscribe(s.ctx, room)
	if err != nil {
		return NewError(KindSubscriptionError, "failed to subscribe to room").WithCause(err)
	}

	roomCtx, cancel := context.WithCancel(s.ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		sub.Close()
		return nil
	}
	s.rooms[room] = sub
	s.roomCancel[room] = cancel
	s.mu.Unlock()

	heartbeats.Set(s.ctx, heartbeatKey(s.id, room), time.Now())

	go s.forward(room, sub)
	go s.heartbeatSender(roomCtx, room)
	go s.heartbeatMonitor(roomCtx, room)
	return nil
}

// Leave unsubscribes the socket from room and stops its heartbeat. Leaving a
// room not joined is a no-op.
func (s *ServerSocket[Incoming, Outgoing]) Leave(room string) {
	s.mu.Lock()
	sub, ok := s.rooms[room]
	delete(s.rooms, room)
	cancel, hasCancel := s.roomCancel[room]
	delete(s.roomCancel, room)
	s.mu.Unlock()

	if ok {
		sub.Close()
	}
	if hasCancel {
		cancel()
	}
	heartbeats.Delete(context.Background(), heartbeatKey(s.id, room))
}

func (s *ServerSocket[Incoming, Outgoing]) forward(room string, sub *pubsub.Subscription) {
	for msg := range sub.Messages {
		if msg.Event == pingEvent {
			heartbeats.Set(s.ctx, heartbeatKey(s.id, room), time.Now())
		}

		frame, err := s.wireFrameFor(msg)
		if err != nil {
			s.log.Error("failed to re-encode forwarded frame for WS wire", "error", err)
			continue
		}
		b, err := json.Marshal(frame)
		if err != nil {
			s.log.Error("failed to marshal forwarded frame", "error", err)
			continue
		}
		if err := s.writeRaw(b); err != nil {
			return
		}
	}
}

// wireFrameFor converts an adapter-delivered pubsub.Message (encoded under
// the whole-body header-bit policy) into the self-describing, always-
// enveloped wireFrame the browser-facing WS wire expects. ping/pong carry
// literal null and skip the codec entirely.
func (s *ServerSocket[Incoming, Outgoing]) wireFrameFor(msg pubsub.Message) (wireFrame, error) {
	if msg.Event == pingEvent || msg.Event == pongEvent {
		return wireFrame{Event: msg.Event, Data: nullData}, nil
	}

	decoded, err := DecodeBody(string(msg.Data), msg.Tagged)
	if err != nil {
		return wireFrame{}, err
	}
	text, err := EncodeField(decoded)
	if err != nil {
		return wireFrame{}, err
	}
	return wireFrame{Event: msg.Event, Data: json.RawMessage(text)}, nil
}

func (s *ServerSocket[Incoming, Outgoing]) heartbeatSender(ctx context.Context, room string) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.adapter.Publish(s.ctx, pubsub.Message{Room: room, Event: pingEvent, Data: nullData})
			if err != nil {
				s.log.Warn("failed to publish room heartbeat", "room", room, "error", err)
			}
		}
	}
}

func (s *ServerSocket[Incoming, Outgoing]) heartbeatMonitor(ctx context.Context, room string) {
	ticker := time.NewTicker(heartbeatMonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v, ok := heartbeats.Get(s.ctx, heartbeatKey(s.id, room))
			if !ok {
				continue
			}
			last, ok := v.(time.Time)
			if !ok || time.Since(last) <= heartbeatTimeout {
				continue
			}
			s.log.Warn("room heartbeat timeout, resubscribing", "socket", s.id, "room", room)
			s.resubscribeRoom(room)
			return
		}
	}
}

func (s *ServerSocket[Incoming, Outgoing]) resubscribeRoom(room string) {
	s.Leave(room)
	if err := s.Join(room); err != nil {
		s.log.Error("room resubscribe failed", "room", room, "error", err)
	}
}

func (s *ServerSocket[Incoming, Outgoing]) encodeFrame(event string, payload Outgoing) ([]byte, error) {
	if s.outgoingSchema != nil {
		hints := map[string]tag{}
		doc, err := encodeAny(payload, "", hints)
		if err != nil {
			return nil, err
		}
		if err := s.outgoingSchema.Validate(doc); err != nil {
			return nil, err
		}
	}

	text, err := EncodeField(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireFrame{Event: event, Data: json.RawMessage(text)})
}

func (s *ServerSocket[Incoming, Outgoing]) writeRaw(b []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

func (s *ServerSocket[Incoming, Outgoing]) readLoop() {
	defer s.Close()
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame wireFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.log.Warn("dropping malformed WS frame", "error", err)
			continue
		}

		// A client-initiated keepalive is answered directly, bypassing both
		// the codec and any user-registered handler.
		if frame.Event == pingEvent {
			if err := s.writeRaw(mustMarshalFrame(wireFrame{Event: pongEvent, Data: nullData})); err != nil {
				return
			}
			continue
		}
		if frame.Event == pongEvent {
			continue
		}

		decoded, err := DecodeField(string(frame.Data))
		if err != nil {
			s.log.Warn("dropping unparseable WS frame", "error", err)
			continue
		}

		fields, ok := decoded.(map[string]any)
		if !ok {
			fields = map[string]any{}
		}
		payload, err := Bind[Incoming](fields)
		if err != nil {
			s.log.Warn("dropping WS frame that failed to bind", "error", err)
			continue
		}

		if err := s.onMessage.HandleEvent(s.ctx, frame.Event, payload); err != nil {
			s.log.Error("incoming message handler failed", "event", frame.Event, "error", err)
		}
	}
}

func mustMarshalFrame(f wireFrame) []byte {
	b, err := json.Marshal(f)
	if err != nil {
		// f is always a reserved-event frame with a literal null payload, so
		// marshaling cannot fail.
		panic(err)
	}
	return b
}

// Close leaves every room, stops every room's heartbeat, and closes the
// underlying connection. Safe to call more than once.
func (s *ServerSocket[Incoming, Outgoing]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	rooms := s.rooms
	cancels := s.roomCancel
	s.rooms = nil
	s.roomCancel = nil
	s.mu.Unlock()

	for room, sub := range rooms {
		sub.Close()
		heartbeats.Delete(context.Background(), heartbeatKey(s.id, room))
	}
	for _, cancel := range cancels {
		cancel()
	}
	s.cancel()
	return s.conn.Close()
}
