package pubsub

import (
	"context"
	"sync"
)

// MemoryAdapter is the no-dependency Adapter: an in-process fan-out
// keyed by room, grounded on ags's sync.Map-backed wsConnections bookkeeping.
// It only sees subscribers within the current process, so it's correct for
// a single-instance deployment and wrong for a fleet -- use RedisAdapter or
// StreamAdapter once a room must span processes.
type MemoryAdapter struct {
	mu   sync.RWMutex
	subs map[string]map[chan Message]struct{}
}

// NewMemoryAdapter returns a ready-to-use MemoryAdapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{subs: make(map[string]map[chan Message]struct{})}
}

// Publish delivers msg to every live subscriber of msg.Room, dropping it for
// any subscriber whose channel is momentarily full rather than blocking the
// publisher.
func (a *MemoryAdapter) Publish(ctx context.Context, msg Message) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for ch := range a.subs[msg.Room] {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe opens a buffered feed for room.
func (a *MemoryAdapter) Subscribe(ctx context.Context, room string) (*Subscription, error) {
	ch := make(chan Message, 64)

	a.mu.Lock()
	if a.subs[room] == nil {
		a.subs[room] = make(map[chan Message]struct{})
	}
	a.subs[room][ch] = struct{}{}
	a.mu.Unlock()

	var once sync.Once
	closeFn := func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.subs[room], ch)
			if len(a.subs[room]) == 0 {
				delete(a.subs, room)
			}
			a.mu.Unlock()
			close(ch)
		})
	}

	go func() {
		<-ctx.Done()
		closeFn()
	}()

	return &Subscription{Messages: ch, Close: closeFn}, nil
}
