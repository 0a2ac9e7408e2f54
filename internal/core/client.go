package core

import (
	"sync"
	"sync/atomic"
)

// AnonymousName is shown for a client that has not chosen a username yet.
const AnonymousName = "anonymous"

// DefaultQueueSize is the delivery queue length used when none is configured.
const DefaultQueueSize = 256

// Client is a chat participant as seen by the core layer.
// Events is its delivery queue; the hub only ever enqueues without blocking.
type Client struct {
	ID     string
	Events chan *Event

	mu         sync.RWMutex
	name       string
	identified bool

	dropped atomic.Uint64
}

// NewClient constructs a client with a buffered delivery queue.
func NewClient(id string, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Client{
		ID:     id,
		Events: make(chan *Event, queueSize),
		name:   AnonymousName,
	}
}

// Name returns the current display name.
func (c *Client) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// Identified reports whether a username has been set.
func (c *Client) Identified() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identified
}

func (c *Client) setName(name string) {
	c.mu.Lock()
	c.name = name
	c.identified = true
	c.mu.Unlock()
}

// Deliver enqueues ev without blocking. A full queue drops the event.
func (c *Client) Deliver(ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}
