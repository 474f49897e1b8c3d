// Package transport defines the abstract network transport used for file
// transfers and provides a TCP implementation with Noise-encrypted framing.
//
// The core treats the transport purely as an abstract capability: any
// implementation satisfying the Transport, Conn and Stream interfaces is
// interchangeable. Peers are identified by an opaque string (here the hex
// form of the peer's static Noise public key) plus a reachable address.
package transport

import (
	"context"
	"errors"
)

var (
	// ErrConnectionFailed indicates a dial or handshake failure.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrUnknownProtocol indicates a stream for a protocol with no
	// registered handler.
	ErrUnknownProtocol = errors.New("unknown protocol")

	// ErrTransportClosed indicates an operation on a closed transport.
	ErrTransportClosed = errors.New("transport closed")
)

// EventType classifies connection lifecycle events.
type EventType uint8

const (
	// EventEstablished fires when a connection handshake completes.
	EventEstablished EventType = iota
	// EventClosed fires when a connection is torn down.
	EventClosed
	// EventOutboundFailure fires when an outbound dial or handshake fails.
	EventOutboundFailure
)

// String returns a human-readable event name.
func (t EventType) String() string {
	switch t {
	case EventEstablished:
		return "Established"
	case EventClosed:
		return "Closed"
	case EventOutboundFailure:
		return "OutboundFailure"
	default:
		return "Unknown"
	}
}

// Event is a connection lifecycle notification.
type Event struct {
	Type EventType
	Peer string
	Addr string
	Err  error
}

// Stream is a bidirectional message stream bound to one protocol.
type Stream interface {
	// Send writes one message to the peer.
	Send(data []byte) error
	// Receive reads the next message from the peer.
	Receive() ([]byte, error)
	// Close tears the stream down.
	Close() error
}

// Conn is an established, authenticated connection to a peer.
type Conn interface {
	// OpenStream opens a stream for the given protocol ID.
	OpenStream(protocolID string) (Stream, error)
	// Peer returns the peer's opaque identifier.
	Peer() string
	// RemoteAddr returns the peer's network address.
	RemoteAddr() string
	// Close tears the connection down.
	Close() error
}

// StreamHandler processes one inbound stream. It runs on its own goroutine
// and owns the stream until it returns.
type StreamHandler func(peer string, stream Stream)

// Transport is the abstract peer transport.
type Transport interface {
	// Dial establishes an authenticated connection to a peer. An empty
	// peer ID accepts whichever identity the handshake reveals; a non-empty
	// one is verified against it.
	Dial(ctx context.Context, peer, addr string) (Conn, error)
	// Listen starts accepting inbound connections on addr.
	Listen(addr string) error
	// RegisterHandler routes inbound streams for a protocol ID.
	RegisterHandler(protocolID string, h StreamHandler)
	// Events returns the connection lifecycle event channel.
	Events() <-chan Event
	// LocalAddr returns the bound listen address, empty before Listen.
	LocalAddr() string
	// LocalPeer returns this transport's own opaque peer identifier.
	LocalPeer() string
	// Close shuts the transport down.
	Close() error
}
