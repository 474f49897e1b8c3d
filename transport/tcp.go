package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/flynn/noise"
	"github.com/sirupsen/logrus"
)

// eventBuffer sizes the lifecycle event channel. Events beyond the buffer
// are dropped rather than blocking connection handling.
const eventBuffer = 32

// TCPTransport is the production Transport. Every connection carries a Noise
// XX handshake, so peers are mutually authenticated by their static keys.
type TCPTransport struct {
	static noise.DHKey

	mu           sync.Mutex
	listener     net.Listener
	handlers     map[string]StreamHandler
	conns        map[net.Conn]struct{}
	closed       bool
	eventsClosed bool

	events chan Event
	wg     sync.WaitGroup
}

// NewTCPTransport creates a transport identified by the given static keypair.
func NewTCPTransport(static noise.DHKey) *TCPTransport {
	return &TCPTransport{
		static:   static,
		handlers: make(map[string]StreamHandler),
		conns:    make(map[net.Conn]struct{}),
		events:   make(chan Event, eventBuffer),
	}
}

// LocalPeer returns the hex form of this transport's static public key.
func (t *TCPTransport) LocalPeer() string {
	return PeerID(t.static.Public)
}

// LocalAddr returns the bound listen address, empty before Listen.
func (t *TCPTransport) LocalAddr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return ""
	}
	return t.listener.Addr().String()
}

// Events returns the connection lifecycle event channel.
func (t *TCPTransport) Events() <-chan Event {
	return t.events
}

// RegisterHandler routes inbound streams for a protocol ID.
func (t *TCPTransport) RegisterHandler(protocolID string, h StreamHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[protocolID] = h
}

// Dial connects to addr and completes the Noise handshake. A non-empty peer
// is verified against the identity the handshake reveals.
func (t *TCPTransport) Dial(ctx context.Context, peer, addr string) (Conn, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrTransportClosed
	}
	t.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Dial",
		"addr":     addr,
	}).Debug("Dialing peer")

	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		t.emit(Event{Type: EventOutboundFailure, Peer: peer, Addr: addr, Err: err})
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	sc, err := handshakeInitiator(raw, t.static, peer)
	if err != nil {
		raw.Close()
		t.emit(Event{Type: EventOutboundFailure, Peer: peer, Addr: addr, Err: err})
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	t.trackConn(raw)

	logrus.WithFields(logrus.Fields{
		"function": "Dial",
		"peer":     sc.peer[:8],
		"addr":     addr,
	}).Info("Connection established")
	t.emit(Event{Type: EventEstablished, Peer: sc.peer, Addr: addr})

	return &tcpConn{transport: t, sc: sc, addr: addr}, nil
}

// Listen binds addr and starts the accept loop.
func (t *TCPTransport) Listen(addr string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	if t.listener != nil {
		return fmt.Errorf("already listening on %s", t.listener.Addr())
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	t.listener = ln

	logrus.WithFields(logrus.Fields{
		"function": "Listen",
		"addr":     ln.Addr().String(),
	}).Info("Transport listening")

	t.wg.Add(1)
	go t.acceptLoop(ln)
	return nil
}

// acceptLoop accepts inbound connections and hands each to its own goroutine.
func (t *TCPTransport) acceptLoop(ln net.Listener) {
	defer t.wg.Done()
	for {
		raw, err := ln.Accept()
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if !closed {
				logrus.WithFields(logrus.Fields{
					"function": "acceptLoop",
					"error":    err.Error(),
				}).Warn("Accept failed")
			}
			return
		}
		t.wg.Add(1)
		go t.handleInbound(raw)
	}
}

// handleInbound completes the responder handshake, reads the protocol
// identifier and dispatches the stream to its registered handler.
func (t *TCPTransport) handleInbound(raw net.Conn) {
	defer t.wg.Done()
	t.trackConn(raw)
	defer t.untrackConn(raw)

	sc, err := handshakeResponder(raw, t.static)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handleInbound",
			"remote":   raw.RemoteAddr().String(),
			"error":    err.Error(),
		}).Warn("Inbound handshake failed")
		raw.Close()
		return
	}

	addr := raw.RemoteAddr().String()
	t.emit(Event{Type: EventEstablished, Peer: sc.peer, Addr: addr})

	// The first message on a fresh connection names the protocol.
	protoBytes, err := sc.readMessage()
	if err != nil {
		sc.close()
		t.emit(Event{Type: EventClosed, Peer: sc.peer, Addr: addr, Err: err})
		return
	}
	protocolID := string(protoBytes)

	t.mu.Lock()
	handler, ok := t.handlers[protocolID]
	t.mu.Unlock()
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "handleInbound",
			"peer":     sc.peer[:8],
			"protocol": protocolID,
		}).Warn("No handler for protocol")
		sc.close()
		t.emit(Event{Type: EventClosed, Peer: sc.peer, Addr: addr, Err: ErrUnknownProtocol})
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "handleInbound",
		"peer":     sc.peer[:8],
		"protocol": protocolID,
	}).Debug("Dispatching inbound stream")

	stream := &tcpStream{sc: sc}
	handler(sc.peer, stream)
	stream.Close()
	t.emit(Event{Type: EventClosed, Peer: sc.peer, Addr: addr})
}

// emit delivers an event without blocking. Events are dropped under
// backpressure or once the transport has shut down.
func (t *TCPTransport) emit(ev Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.eventsClosed {
		return
	}
	select {
	case t.events <- ev:
	default:
	}
}

// trackConn records a live connection for teardown on Close.
func (t *TCPTransport) trackConn(c net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[c] = struct{}{}
}

// untrackConn drops a connection from teardown tracking.
func (t *TCPTransport) untrackConn(c net.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, c)
}

// Close shuts the listener down, tears open connections down, and waits for
// in-flight handlers.
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	ln := t.listener
	conns := make([]net.Conn, 0, len(t.conns))
	for c := range t.conns {
		conns = append(conns, c)
	}
	t.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	for _, c := range conns {
		c.Close()
	}
	t.wg.Wait()

	t.mu.Lock()
	t.eventsClosed = true
	close(t.events)
	t.mu.Unlock()
	return nil
}

// tcpConn is an established outbound connection. One stream is carried per
// connection; OpenStream announces the protocol to the remote side.
type tcpConn struct {
	transport *TCPTransport
	sc        *secureConn
	addr      string

	mu     sync.Mutex
	opened bool
	closed bool
}

// Peer returns the remote peer identifier.
func (c *tcpConn) Peer() string { return c.sc.peer }

// RemoteAddr returns the remote network address.
func (c *tcpConn) RemoteAddr() string { return c.addr }

// OpenStream announces protocolID to the remote side and returns the stream.
func (c *tcpConn) OpenStream(protocolID string) (Stream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("%w: connection closed", ErrConnectionFailed)
	}
	if c.opened {
		return nil, fmt.Errorf("stream already open on connection to %s", c.sc.peer[:8])
	}
	if err := c.sc.writeMessage([]byte(protocolID)); err != nil {
		return nil, fmt.Errorf("announce protocol %s: %w", protocolID, err)
	}
	c.opened = true
	return &tcpStream{sc: c.sc}, nil
}

// Close tears the connection down.
func (c *tcpConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.sc.close()
	c.transport.untrackConn(c.sc.conn)
	c.transport.emit(Event{Type: EventClosed, Peer: c.sc.peer, Addr: c.addr})
	return err
}

// tcpStream carries protocol messages over an established secure connection.
type tcpStream struct {
	sc *secureConn

	mu     sync.Mutex
	closed bool
}

// Send writes one message to the peer.
func (s *tcpStream) Send(data []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("stream closed")
	}
	s.mu.Unlock()
	return s.sc.writeMessage(data)
}

// Receive reads the next message from the peer.
func (s *tcpStream) Receive() ([]byte, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("stream closed")
	}
	s.mu.Unlock()
	return s.sc.readMessage()
}

// Close tears the stream and its connection down.
func (s *tcpStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.sc.close()
}
