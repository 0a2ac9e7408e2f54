package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vovakirdan/roomchat/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func expectNoEvent(t *testing.T, ch <-chan *Event, wait time.Duration) {
	t.Helper()

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event: %v %+v", ev.Kind, ev)
	case <-time.After(wait):
	}
}

// drainEvents returns every event currently queued.
func drainEvents(ch <-chan *Event) []*Event {
	var out []*Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// countingStore wraps a MemoryStore, counting queries and optionally failing.
type countingStore struct {
	*store.MemoryStore

	queries    atomic.Int32
	failInsert atomic.Bool
	failQuery  atomic.Bool

	// failNextQuery fails a single QueryRecent call
	failNextQuery atomic.Bool

	mu       sync.Mutex
	inserted []int64
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: store.NewMemoryStore()}
}

var errStoreDown = errors.New("store down")

func (s *countingStore) Insert(ctx context.Context, msg *store.Message) error {
	if s.failInsert.Load() {
		return errStoreDown
	}
	s.mu.Lock()
	s.inserted = append(s.inserted, msg.Seq)
	s.mu.Unlock()
	return s.MemoryStore.Insert(ctx, msg)
}

func (s *countingStore) QueryRecent(ctx context.Context, room string, limit int) ([]*store.Message, error) {
	s.queries.Add(1)
	if s.failQuery.Load() || s.failNextQuery.CompareAndSwap(true, false) {
		return nil, errStoreDown
	}
	return s.MemoryStore.QueryRecent(ctx, room, limit)
}

func (s *countingStore) insertedSeqs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.inserted...)
}

func startHub(t *testing.T, st store.MessageStore, opts Options) *Hub {
	t.Helper()

	hub := NewHub(st, opts, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

func joinNamed(t *testing.T, hub *Hub, room, id, name string) *Client {
	t.Helper()

	c := NewClient(id, 0)
	if _, err := hub.Join(context.Background(), room, c); err != nil {
		t.Fatalf("join %s: %v", id, err)
	}
	if name != "" {
		if err := hub.SetUsername(id, room, name); err != nil {
			t.Fatalf("set username %s: %v", name, err)
		}
	}
	return c
}
