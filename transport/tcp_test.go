package transport

import (
	"bytes"
	"context"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newPair starts a listening transport and returns it with a dialer-side
// transport. Both are torn down when the test ends.
func newPair(t *testing.T) (server, client *TCPTransport) {
	t.Helper()

	serverKey, err := GenerateKeypair()
	require.NoError(t, err)
	clientKey, err := GenerateKeypair()
	require.NoError(t, err)

	server = NewTCPTransport(serverKey)
	client = NewTCPTransport(clientKey)
	require.NoError(t, server.Listen("127.0.0.1:0"))

	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return server, client
}

func TestEchoRoundTrip(t *testing.T) {
	server, client := newPair(t)

	server.RegisterHandler("/echo/1.0.0", func(peer string, stream Stream) {
		msg, err := stream.Receive()
		if err != nil {
			return
		}
		stream.Send(msg)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := client.Dial(ctx, server.LocalPeer(), server.LocalAddr())
	require.NoError(t, err)
	defer conn.Close()
	require.Equal(t, server.LocalPeer(), conn.Peer())

	stream, err := conn.OpenStream("/echo/1.0.0")
	require.NoError(t, err)

	want := []byte("hello over noise")
	require.NoError(t, stream.Send(want))

	got, err := stream.Receive()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestLargeMessageSegmentation(t *testing.T) {
	server, client := newPair(t)

	server.RegisterHandler("/echo/1.0.0", func(peer string, stream Stream) {
		msg, err := stream.Receive()
		if err != nil {
			return
		}
		stream.Send(msg)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := client.Dial(ctx, "", server.LocalAddr())
	require.NoError(t, err)
	defer conn.Close()

	stream, err := conn.OpenStream("/echo/1.0.0")
	require.NoError(t, err)

	// A full-size chunk spans many encrypted segments.
	want := make([]byte, 1024*1024)
	_, err = rand.Read(want)
	require.NoError(t, err)

	require.NoError(t, stream.Send(want))
	got, err := stream.Receive()
	require.NoError(t, err)
	require.True(t, bytes.Equal(want, got))
}

func TestMessageLargerThanChunk(t *testing.T) {
	server, client := newPair(t)

	server.RegisterHandler("/echo/1.0.0", func(peer string, stream Stream) {
		msg, err := stream.Receive()
		if err != nil {
			return
		}
		stream.Send(msg)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := client.Dial(ctx, "", server.LocalAddr())
	require.NoError(t, err)
	defer conn.Close()

	stream, err := conn.OpenStream("/echo/1.0.0")
	require.NoError(t, err)

	// A response carrying a converted file inline can exceed the chunk
	// size by a wide margin.
	want := make([]byte, 3*1024*1024)
	_, err = rand.Read(want)
	require.NoError(t, err)

	require.NoError(t, stream.Send(want))
	got, err := stream.Receive()
	require.NoError(t, err)
	require.True(t, bytes.Equal(want, got))
}

func TestDialPeerMismatch(t *testing.T) {
	server, client := newPair(t)

	wrongKey, err := GenerateKeypair()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = client.Dial(ctx, PeerID(wrongKey.Public), server.LocalAddr())
	require.Error(t, err)
	require.ErrorIs(t, err, ErrConnectionFailed)
}

func TestDialUnreachable(t *testing.T) {
	_, client := newPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := client.Dial(ctx, "", "127.0.0.1:1")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrConnectionFailed)
}

func TestOutboundFailureEvent(t *testing.T) {
	_, client := newPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	client.Dial(ctx, "", "127.0.0.1:1")

	select {
	case ev := <-client.Events():
		require.Equal(t, EventOutboundFailure, ev.Type)
		require.Error(t, ev.Err)
	case <-time.After(time.Second):
		t.Fatal("no outbound failure event")
	}
}

func TestSingleStreamPerConnection(t *testing.T) {
	server, client := newPair(t)
	server.RegisterHandler("/echo/1.0.0", func(peer string, stream Stream) {
		stream.Receive()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := client.Dial(ctx, "", server.LocalAddr())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.OpenStream("/echo/1.0.0")
	require.NoError(t, err)
	_, err = conn.OpenStream("/echo/1.0.0")
	require.Error(t, err)
}

func TestDialAfterClose(t *testing.T) {
	_, client := newPair(t)
	require.NoError(t, client.Close())

	_, err := client.Dial(context.Background(), "", "127.0.0.1:1")
	require.ErrorIs(t, err, ErrTransportClosed)
}
