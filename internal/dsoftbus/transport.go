package dsoftbus

import (
	"context"
	"errors"
)

var (
	// ErrNoSession is returned when sending to a peer without an open session.
	ErrNoSession = errors.New("dsoftbus: no session")
	// ErrPeerUnreachable is returned when a session cannot be opened.
	ErrPeerUnreachable = errors.New("dsoftbus: peer unreachable")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("dsoftbus: transport closed")
)

// Handler receives inbound traffic. Calls for one transport are made from a single
// goroutine in arrival order.
type Handler interface {
	OnPacket(from string, pkt Packet)
	OnSessionClosed(networkID string)
}

// Transport is a device-to-device link.
type Transport interface {
	// LocalNetworkID is the address peers use to reach this device.
	LocalNetworkID() string
	// OpenSession establishes a session with networkID. Opening an open session is a no-op.
	OpenSession(ctx context.Context, networkID string) error
	// CloseSession tears the session down and notifies the peer.
	CloseSession(networkID string)
	// Send delivers pkt over an open session.
	Send(networkID string, pkt Packet) error
	// SetHandler installs the receiver of inbound traffic.
	SetHandler(h Handler)
	// Close releases the transport. Open sessions are closed.
	Close() error
}
