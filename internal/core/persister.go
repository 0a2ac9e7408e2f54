package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomchat/internal/store"
)

const (
	persistBackoff      = 100 * time.Millisecond
	persistDrainTimeout = 5 * time.Second
)

var (
	errPersistQueueFull = errors.New("persist queue full")
	errPersisterStopped = errors.New("persister stopped")
)

// PersistFailureFunc receives messages whose durable write was given up on.
type PersistFailureFunc func(msg ChatMessage, err error)

// persister writes messages to the store off the room critical section.
// A single worker keeps writes in enqueue order, which is seq order per room.
type persister struct {
	store     store.MessageStore
	queue     chan ChatMessage
	retries   int
	timeout   time.Duration
	onFailure PersistFailureFunc
	log       *zerolog.Logger

	mu      sync.Mutex
	stopped bool
	pending map[string]*outstanding
}

// outstanding tracks writes of one room that have not finished yet. max also
// covers writes dropped while earlier ones were in flight.
type outstanding struct {
	count int
	max   int64
}

func newPersister(st store.MessageStore, opts Options, logger *zerolog.Logger) *persister {
	return &persister{
		store:     st,
		queue:     make(chan ChatMessage, opts.PersistQueueSize),
		retries:   opts.PersistRetries,
		timeout:   opts.PersistTimeout,
		onFailure: opts.OnPersistFailure,
		log:       logger,
		pending:   make(map[string]*outstanding),
	}
}

// enqueue schedules msg for writing without blocking. It reports false when
// the write was dropped; the failure sink has been told already.
func (p *persister) enqueue(msg ChatMessage) bool {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		p.fail(msg, errPersisterStopped)
		return false
	}

	o := p.pending[msg.Room]
	if o == nil {
		o = &outstanding{}
		p.pending[msg.Room] = o
	}
	o.count++
	o.max = max(o.max, msg.Seq)

	// The send happens under mu so run cannot stop between the check and the send.
	select {
	case p.queue <- msg:
		p.mu.Unlock()
		return true
	default:
		p.mu.Unlock()
		p.done(msg)
		p.fail(msg, errPersistQueueFull)
		return false
	}
}

// highWater returns the newest seq of room handed to the persister whose
// room still has writes in flight, or 0 when the room is idle.
func (p *persister) highWater(room string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if o := p.pending[room]; o != nil {
		return o.max
	}
	return 0
}

func (p *persister) done(msg ChatMessage) {
	p.mu.Lock()
	if o := p.pending[msg.Room]; o != nil {
		o.count--
		if o.count <= 0 {
			delete(p.pending, msg.Room)
		}
	}
	p.mu.Unlock()
}

// run writes queued messages until ctx is done, then drains what is left.
func (p *persister) run(ctx context.Context) {
	for {
		select {
		case msg := <-p.queue:
			p.write(ctx, msg)
		case <-ctx.Done():
			p.mu.Lock()
			p.stopped = true
			p.mu.Unlock()
			p.drain()
			return
		}
	}
}

func (p *persister) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), persistDrainTimeout)
	defer cancel()

	for {
		select {
		case msg := <-p.queue:
			p.write(ctx, msg)
		default:
			return
		}
	}
}

func (p *persister) write(ctx context.Context, msg ChatMessage) {
	defer p.done(msg)

	var err error
	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * persistBackoff):
			case <-ctx.Done():
				p.fail(msg, errors.Join(err, ctx.Err()))
				return
			}
		}

		wctx, cancel := context.WithTimeout(ctx, p.timeout)
		err = p.store.Insert(wctx, toStoreMessage(msg))
		cancel()
		if err == nil {
			return
		}
		p.log.Debug().Err(err).Str("room", msg.Room).Int64("seq", msg.Seq).Int("attempt", attempt+1).Msg("persist attempt failed")
	}
	p.fail(msg, err)
}

func (p *persister) fail(msg ChatMessage, err error) {
	perr := persistenceError(err)
	p.log.Warn().Err(perr.Err).Str("room", msg.Room).Int64("seq", msg.Seq).Msg("message not persisted")
	if p.onFailure != nil {
		p.onFailure(msg, perr)
	}
}
