package transport

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/flynn/noise"

	"github.com/Gokul-labb/p2p-proto/limits"
)

const (
	// maxFrameSize bounds a single wire frame. Noise messages are capped at
	// 65535 bytes, so every frame fits the transport cap with room to spare.
	maxFrameSize = 65535

	// noiseOverhead is the AEAD tag appended to each encrypted segment.
	noiseOverhead = 16

	// maxSegmentPlaintext is the largest plaintext carried by one encrypted
	// segment. Messages larger than this are split across segments.
	maxSegmentPlaintext = maxFrameSize - noiseOverhead

	// maxMessageSize bounds a reassembled plaintext message. A response can
	// carry an entire converted file inline, and conversion may grow the
	// payload beyond the source size, so the bound leaves headroom above the
	// largest accepted file.
	maxMessageSize = 2*limits.MaxFileSize + maxFrameSize
)

var (
	// ErrHandshakeFailed indicates a Noise handshake failure.
	ErrHandshakeFailed = errors.New("noise handshake failed")

	// ErrPeerMismatch indicates the handshake revealed a static key other
	// than the one the caller asked for.
	ErrPeerMismatch = errors.New("peer identity mismatch")

	// ErrMessageTooLarge indicates a message exceeding the reassembly bound.
	ErrMessageTooLarge = errors.New("message too large")
)

// cipherSuite is the Noise cipher suite used for all connections.
var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// GenerateKeypair creates a fresh static Noise keypair.
func GenerateKeypair() (noise.DHKey, error) {
	return cipherSuite.GenerateKeypair(nil)
}

// PeerID derives the opaque peer identifier from a static public key.
func PeerID(publicKey []byte) string {
	return hex.EncodeToString(publicKey)
}

// writeFrame writes one length-prefixed frame to w.
func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > maxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit %d", len(payload), maxFrameSize)
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readFrame reads one length-prefixed frame from r.
func readFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(hdr[:])
	if size > maxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit %d", size, maxFrameSize)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// secureConn wraps a net.Conn with a completed Noise session. Plaintext
// messages of arbitrary size are split into encrypted segments on the wire
// and reassembled on receive.
type secureConn struct {
	conn net.Conn
	peer string

	sendMu sync.Mutex
	sendCS *noise.CipherState

	recvMu  sync.Mutex
	recvCS  *noise.CipherState
	pending []byte
}

// handshakeInitiator performs the initiator side of a Noise XX handshake over
// conn. A non-empty expectedPeer is verified against the responder's static
// key.
func handshakeInitiator(conn net.Conn, static noise.DHKey, expectedPeer string) (*secureConn, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       noise.HandshakeXX,
		Initiator:     true,
		StaticKeypair: static,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	// -> e
	msg, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	if err := writeFrame(conn, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	// <- e, ee, s, es
	frame, err := readFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	if _, _, _, err := hs.ReadMessage(nil, frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	// -> s, se
	msg, cs1, cs2, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	if err := writeFrame(conn, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	peer := PeerID(hs.PeerStatic())
	if expectedPeer != "" && peer != expectedPeer {
		return nil, fmt.Errorf("%w: got %s", ErrPeerMismatch, peer)
	}

	return &secureConn{conn: conn, peer: peer, sendCS: cs1, recvCS: cs2}, nil
}

// handshakeResponder performs the responder side of a Noise XX handshake.
func handshakeResponder(conn net.Conn, static noise.DHKey) (*secureConn, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       noise.HandshakeXX,
		Initiator:     false,
		StaticKeypair: static,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	// -> e
	frame, err := readFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	if _, _, _, err := hs.ReadMessage(nil, frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	// <- e, ee, s, es
	msg, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	if err := writeFrame(conn, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	// -> s, se
	frame, err = readFrame(conn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	_, cs1, cs2, err := hs.ReadMessage(nil, frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	// The responder sends on cs2 and receives on cs1, mirroring the
	// initiator's assignment.
	return &secureConn{conn: conn, peer: PeerID(hs.PeerStatic()), sendCS: cs2, recvCS: cs1}, nil
}

// writeMessage encrypts and sends one plaintext message. The message is
// prefixed with its total length and split into segments that each fit one
// Noise message.
func (c *secureConn) writeMessage(plaintext []byte) error {
	if len(plaintext) > maxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(plaintext))
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(plaintext)))
	framed := append(hdr[:], plaintext...)

	for off := 0; off < len(framed); off += maxSegmentPlaintext {
		end := off + maxSegmentPlaintext
		if end > len(framed) {
			end = len(framed)
		}
		ct, err := c.sendCS.Encrypt(nil, nil, framed[off:end])
		if err != nil {
			return fmt.Errorf("encrypt segment: %w", err)
		}
		if err := writeFrame(c.conn, ct); err != nil {
			return err
		}
	}
	return nil
}

// readMessage receives and decrypts one plaintext message, reading as many
// segments as its length prefix demands.
func (c *secureConn) readMessage() ([]byte, error) {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()

	fill := func(need int) error {
		for len(c.pending) < need {
			frame, err := readFrame(c.conn)
			if err != nil {
				return err
			}
			pt, err := c.recvCS.Decrypt(nil, nil, frame)
			if err != nil {
				return fmt.Errorf("decrypt segment: %w", err)
			}
			c.pending = append(c.pending, pt...)
		}
		return nil
	}

	if err := fill(4); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(c.pending[:4])
	if size > maxMessageSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, size)
	}
	if err := fill(4 + int(size)); err != nil {
		return nil, err
	}

	msg := make([]byte, size)
	copy(msg, c.pending[4:4+size])
	c.pending = c.pending[4+int(size):]
	return msg, nil
}

// close tears down the underlying connection.
func (c *secureConn) close() error {
	return c.conn.Close()
}
