package dsoftbus

import (
	"context"
	"fmt"
	"sync"
)

// MemBus connects in-process endpoints. Packets are encoded on send and decoded on
// delivery so the wire codec is exercised exactly as over a real link.
type MemBus struct {
	mu        sync.Mutex
	endpoints map[string]*MemEndpoint
}

// NewMemBus creates an empty bus.
func NewMemBus() *MemBus {
	return &MemBus{endpoints: make(map[string]*MemEndpoint)}
}

type delivery struct {
	from    string
	payload []byte
	closed  bool
}

// MemEndpoint is one device attached to a MemBus.
type MemEndpoint struct {
	bus *MemBus
	id  string

	mu       sync.Mutex
	handler  Handler
	sessions map[string]bool
	closed   bool

	inbox chan delivery
	done  chan struct{}
}

// Attach adds an endpoint with the given network id.
func (b *MemBus) Attach(networkID string) (*MemEndpoint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.endpoints[networkID]; ok {
		return nil, fmt.Errorf("dsoftbus: endpoint %q already attached", networkID)
	}
	e := &MemEndpoint{
		bus:      b,
		id:       networkID,
		sessions: make(map[string]bool),
		inbox:    make(chan delivery, 128),
		done:     make(chan struct{}),
	}
	b.endpoints[networkID] = e
	go e.deliverLoop()
	return e, nil
}

func (b *MemBus) lookup(networkID string) *MemEndpoint {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.endpoints[networkID]
}

func (b *MemBus) detach(networkID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.endpoints, networkID)
}

func (e *MemEndpoint) LocalNetworkID() string { return e.id }

func (e *MemEndpoint) SetHandler(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = h
}

func (e *MemEndpoint) OpenSession(ctx context.Context, networkID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.sessions[networkID] {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	peer := e.bus.lookup(networkID)
	if peer == nil || peer == e {
		return fmt.Errorf("%w: %s", ErrPeerUnreachable, networkID)
	}
	if !peer.accept(e.id) {
		return fmt.Errorf("%w: %s", ErrPeerUnreachable, networkID)
	}

	e.mu.Lock()
	e.sessions[networkID] = true
	e.mu.Unlock()
	return nil
}

func (e *MemEndpoint) accept(from string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.sessions[from] = true
	return true
}

// HasSession reports whether a session with networkID is open.
func (e *MemEndpoint) HasSession(networkID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions[networkID]
}

func (e *MemEndpoint) CloseSession(networkID string) {
	e.mu.Lock()
	open := e.sessions[networkID]
	delete(e.sessions, networkID)
	e.mu.Unlock()
	if !open {
		return
	}
	if peer := e.bus.lookup(networkID); peer != nil {
		peer.remoteClosed(e.id)
	}
}

func (e *MemEndpoint) remoteClosed(from string) {
	e.mu.Lock()
	open := e.sessions[from]
	delete(e.sessions, from)
	e.mu.Unlock()
	if open {
		e.enqueue(delivery{from: from, closed: true})
	}
}

func (e *MemEndpoint) Send(networkID string, pkt Packet) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	open := e.sessions[networkID]
	e.mu.Unlock()
	if !open {
		return fmt.Errorf("%w: %s", ErrNoSession, networkID)
	}

	peer := e.bus.lookup(networkID)
	if peer == nil {
		return fmt.Errorf("%w: %s", ErrPeerUnreachable, networkID)
	}
	pkt.From = e.id
	if !peer.enqueue(delivery{from: e.id, payload: pkt.Marshal()}) {
		return fmt.Errorf("%w: %s", ErrPeerUnreachable, networkID)
	}
	return nil
}

func (e *MemEndpoint) enqueue(d delivery) bool {
	select {
	case e.inbox <- d:
		return true
	case <-e.done:
		return false
	}
}

func (e *MemEndpoint) deliverLoop() {
	for {
		select {
		case <-e.done:
			return
		case d := <-e.inbox:
			e.mu.Lock()
			h := e.handler
			e.mu.Unlock()
			if h == nil {
				continue
			}
			if d.closed {
				h.OnSessionClosed(d.from)
				continue
			}
			pkt, err := Unmarshal(d.payload)
			if err != nil {
				continue
			}
			h.OnPacket(d.from, pkt)
		}
	}
}

// Close detaches the endpoint and closes its sessions.
func (e *MemEndpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	peers := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		peers = append(peers, id)
	}
	e.mu.Unlock()

	for _, id := range peers {
		e.CloseSession(id)
	}

	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.bus.detach(e.id)
	close(e.done)
	return nil
}
