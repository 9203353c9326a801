package cooperate

import (
	"context"
	"errors"
	"sync"
)

// ErrChannelClosed is returned by Send and Recv after Close.
var ErrChannelClosed = errors.New("cooperate: channel closed")

// Channel is a bounded FIFO of events with a single consumer. Send blocks while the
// channel is full.
type Channel struct {
	events chan Event
	closed chan struct{}
	once   sync.Once
}

// NewChannel creates a channel holding up to capacity events.
func NewChannel(capacity int) *Channel {
	if capacity < 1 {
		capacity = 1
	}
	return &Channel{
		events: make(chan Event, capacity),
		closed: make(chan struct{}),
	}
}

// Send enqueues ev.
func (c *Channel) Send(ctx context.Context, ev Event) error {
	select {
	case <-c.closed:
		return ErrChannelClosed
	default:
	}
	select {
	case c.events <- ev:
		return nil
	case <-c.closed:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv blocks for the next event.
func (c *Channel) Recv(ctx context.Context) (Event, error) {
	select {
	case ev := <-c.events:
		return ev, nil
	case <-c.closed:
		return nil, ErrChannelClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len is the number of queued events.
func (c *Channel) Len() int {
	return len(c.events)
}

// Close wakes every blocked sender and receiver. Queued events are abandoned.
func (c *Channel) Close() {
	c.once.Do(func() { close(c.closed) })
}
