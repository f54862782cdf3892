package pubsub

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// sseFrame is the payload section of one streamed line: everything a
// StreamBroker knows about a published Message besides its room, which is
// already carried by the line's own framing.
type sseFrame struct {
	Event  string `json:"event"`
	Data   []byte `json:"data"`
	Tagged bool   `json:"tagged"`
}

// StreamBroker is the process that owns room fan-out and exposes it over
// HTTP as jsandy's "default streamed-over-HTTP" transport: POST
// /publish/<room> to publish, GET /subscribe/<room> (Accept:
// text/event-stream) for a live line-framed feed. A single bearer secret,
// stored only as a bcrypt hash, gates both endpoints. Served over HTTP/2
// cleartext (h2c) so dozens of long-lived subscriptions per client don't
// exhaust the HTTP/1.1 six-connection-per-origin limit.
type StreamBroker struct {
	local      *MemoryAdapter
	secretHash []byte
}

// NewStreamBroker hashes secret with bcrypt and returns a ready broker.
// secret is never retained in plaintext.
func NewStreamBroker(secret string) (*StreamBroker, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("pubsub: hash stream secret: %w", err)
	}
	return &StreamBroker{local: NewMemoryAdapter(), secretHash: hash}, nil
}

func (b *StreamBroker) authorize(r *http.Request) error {
	authz := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(authz, "Bearer ")
	if !ok || token == "" {
		return errors.New("missing bearer token")
	}
	if err := bcrypt.CompareHashAndPassword(b.secretHash, []byte(token)); err != nil {
		return errors.New("invalid bearer token")
	}
	return nil
}

func (b *StreamBroker) handlePublish(w http.ResponseWriter, r *http.Request) {
	if err := b.authorize(r); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	room, err := url.PathUnescape(strings.TrimPrefix(r.URL.Path, "/publish/"))
	if err != nil || room == "" {
		http.Error(w, "room is required", http.StatusBadRequest)
		return
	}

	var frame sseFrame
	if err := json.NewDecoder(r.Body).Decode(&frame); err != nil {
		http.Error(w, "malformed publish body", http.StatusBadRequest)
		return
	}

	if err := b.local.Publish(r.Context(), Message{Room: room, Event: frame.Event, Data: frame.Data, Tagged: frame.Tagged}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *StreamBroker) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if err := b.authorize(r); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	room, err := url.PathUnescape(strings.TrimPrefix(r.URL.Path, "/subscribe/"))
	if err != nil || room == "" {
		http.Error(w, "room is required", http.StatusBadRequest)
		return
	}

	sub, err := b.local.Subscribe(r.Context(), room)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer sub.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, open := <-sub.Messages:
			if !open {
				return
			}
			payload, err := json.Marshal(sseFrame{Event: msg.Event, Data: msg.Data, Tagged: msg.Tagged})
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "%s\n\n", formatDataLine(room, string(payload)))
			flusher.Flush()
		}
	}
}

// Handler returns the HTTP surface remote processes use to join rooms:
// POST /publish/<room> and GET /subscribe/<room>.
func (b *StreamBroker) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/publish/", b.handlePublish)
	mux.HandleFunc("/subscribe/", b.handleSubscribe)
	return mux
}

// Serve starts an HTTP/2-cleartext (h2c) server for the broker's HTTP
// surface, so subscribers behind plaintext proxies still get a long-lived
// multiplexed stream instead of falling back to HTTP/1.1.
func (b *StreamBroker) Serve(addr string) error {
	h2s := &http2.Server{}
	srv := &http.Server{
		Addr:    addr,
		Handler: h2c.NewHandler(b.Handler(), h2s),
	}
	return srv.ListenAndServe()
}

// StreamAdapter is jsandy's zero-infrastructure default Adapter: it speaks
// the streamed-over-HTTP wire contract against a StreamBroker over plain
// net/http, so any process holding the broker's base URL and secret can
// publish or subscribe without sharing process memory or standing up Redis.
type StreamAdapter struct {
	baseURL string
	secret  string
	client  *http.Client
}

// NewStreamAdapter returns an Adapter that talks to the StreamBroker at
// baseURL (e.g. "http://127.0.0.1:8081") using secret as the bearer token.
func NewStreamAdapter(baseURL, secret string) *StreamAdapter {
	return &StreamAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		client:  &http.Client{},
	}
}

// Publish POSTs msg to the broker's /publish/<room> endpoint per spec.md
// §6's default adapter wire.
func (a *StreamAdapter) Publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(sseFrame{Event: msg.Event, Data: msg.Data, Tagged: msg.Tagged})
	if err != nil {
		return fmt.Errorf("pubsub: marshal publish frame: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/publish/"+url.PathEscape(msg.Room), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("pubsub: build publish request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.secret)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("pubsub: publish request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("pubsub: publish rejected with status %d", resp.StatusCode)
	}
	return nil
}

// Subscribe opens a GET /subscribe/<room> request with Accept:
// text/event-stream and streams the response body, tolerating arbitrary
// chunk boundaries: a line split across two reads is reassembled by
// sseScanner before being parsed. Malformed lines (wrong prefix, missing
// separator, unparseable JSON payload) are skipped, never delivered.
func (a *StreamAdapter) Subscribe(ctx context.Context, room string) (*Subscription, error) {
	subCtx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(subCtx, http.MethodGet, a.baseURL+"/subscribe/"+url.PathEscape(room), nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("pubsub: build subscribe request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+a.secret)

	resp, err := a.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("pubsub: subscribe request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("pubsub: subscribe rejected with status %d", resp.StatusCode)
	}

	out := make(chan Message, 64)
	var closeOnce sync.Once
	closeFn := func() {
		closeOnce.Do(func() {
			cancel()
			resp.Body.Close()
		})
	}

	go a.readStream(resp.Body, room, out, closeFn)

	return &Subscription{Messages: out, Close: closeFn}, nil
}

// readStream pumps raw bytes off body through an sseScanner, parsing and
// delivering every complete line it yields until body's Read loop ends
// (connection closed, or Close/cancel tore it down).
func (a *StreamAdapter) readStream(body io.ReadCloser, room string, out chan<- Message, closeFn func()) {
	defer close(out)
	defer closeFn()

	var scanner sseScanner
	reader := bufio.NewReaderSize(body, 4096)
	buf := make([]byte, 4096)

	for {
		n, err := reader.Read(buf)
		if n > 0 {
			for _, line := range scanner.Feed(buf[:n]) {
				if line == "" {
					continue
				}
				lineRoom, payload, ok := parseDataLine(line)
				if !ok || lineRoom != room {
					continue
				}
				var frame sseFrame
				if jerr := json.Unmarshal([]byte(payload), &frame); jerr != nil {
					continue
				}
				select {
				case out <- Message{Room: room, Event: frame.Event, Data: frame.Data, Tagged: frame.Tagged}:
				default:
				}
			}
		}
		if err != nil {
			return
		}
	}
}
