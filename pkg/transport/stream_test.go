package transport_test

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/sessionkit/pkg/transport"
	"github.com/mash-protocol/sessionkit/pkg/transport/transporttest"
)

type result struct {
	n   int
	err error
}

func readOnce(t *testing.T, tr transport.Transport, p []byte) result {
	t.Helper()
	ch := make(chan result, 1)
	tr.ReadSome(p, func(n int, err error) { ch <- result{n, err} })
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("read did not complete")
		return result{}
	}
}

func writeAll(t *testing.T, tr transport.Transport, p []byte) {
	t.Helper()
	for len(p) > 0 {
		ch := make(chan result, 1)
		tr.WriteSome(p, func(n int, err error) { ch <- result{n, err} })
		r := <-ch
		require.NoError(t, r.err)
		p = p[r.n:]
	}
}

// tcpPair returns a dialed stream and the accepted server-side stream.
func tcpPair(t *testing.T) (client, server *transport.Stream) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()

	client = transport.NewDialStream("tcp")
	done := make(chan error, 1)
	client.Connect(context.Background(), ln.Addr().String(), func(err error) { done <- err })
	require.NoError(t, <-done)

	conn := <-accepted
	require.NotNil(t, conn)
	server = transport.NewStream(conn)

	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func TestStreamReadWrite(t *testing.T) {
	client, server := tcpPair(t)

	assert.True(t, client.IsOpen())
	assert.NotNil(t, client.LocalAddr())
	assert.Equal(t, client.LocalAddr().String(), server.RemoteAddr().String())

	writeAll(t, client, []byte("hello"))

	buf := make([]byte, 16)
	r := readOnce(t, server, buf)
	require.NoError(t, r.err)
	assert.Equal(t, "hello", string(buf[:r.n]))
}

func TestStreamShutdownWriteSendsEOF(t *testing.T) {
	client, server := tcpPair(t)

	require.NoError(t, client.Shutdown(transport.ShutdownWrite))

	r := readOnce(t, server, make([]byte, 4))
	assert.ErrorIs(t, r.err, io.EOF)
}

func TestStreamCancelAbortsPendingRead(t *testing.T) {
	_, server := tcpPair(t)

	ch := make(chan result, 1)
	server.ReadSome(make([]byte, 4), func(n int, err error) { ch <- result{n, err} })

	time.Sleep(20 * time.Millisecond)
	server.Cancel()

	select {
	case r := <-ch:
		assert.ErrorIs(t, r.err, transport.ErrCanceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not abort the read")
	}
	assert.True(t, server.IsOpen(), "cancel must not close the stream")

	require.NoError(t, server.Close())
	assert.False(t, server.IsOpen())
	assert.NoError(t, server.Close())
}

func TestStreamNotOpen(t *testing.T) {
	s := transport.NewDialStream("")
	assert.False(t, s.IsOpen())
	assert.Nil(t, s.RemoteAddr())
	assert.ErrorIs(t, s.Shutdown(transport.ShutdownBoth), transport.ErrNotOpen)

	r := readOnce(t, s, make([]byte, 1))
	assert.ErrorIs(t, r.err, transport.ErrNotOpen)
}

func TestStreamKeepAliveAndLinger(t *testing.T) {
	client, _ := tcpPair(t)
	assert.NoError(t, client.SetKeepAlive(transport.DefaultKeepAliveConfig()))
	assert.NoError(t, client.SetKeepAlive(transport.KeepAliveConfig{}))
	assert.NoError(t, client.SetLinger(0))
}

func TestTLSStreamHandshakeAndShutdown(t *testing.T) {
	rawClient, rawServer := tcpPair(t)
	serverCfg, clientCfg := transporttest.TLSPair(t)

	client := transport.NewTLSStream(rawClient)
	server := transport.NewTLSStream(rawServer)

	_, attached := server.ConnectionState()
	assert.False(t, attached)

	require.NoError(t, server.Attach(serverCfg, transport.RoleServer))
	require.NoError(t, client.Attach(clientCfg, transport.RoleClient))
	assert.Error(t, client.Attach(clientCfg, transport.RoleClient))

	errs := make(chan error, 2)
	server.Handshake(context.Background(), func(err error) { errs <- err })
	client.Handshake(context.Background(), func(err error) { errs <- err })
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	state, ok := server.ConnectionState()
	require.True(t, ok)
	assert.NoError(t, transport.CheckVersion(state, tls.VersionTLS13))

	writeAll(t, client, []byte("secret"))
	buf := make([]byte, 16)
	r := readOnce(t, server, buf)
	require.NoError(t, r.err)
	assert.Equal(t, "secret", string(buf[:r.n]))

	// Both sides shut down; each sees the other's close_notify.
	server.ShutdownTLS(func(err error) { errs <- err })
	client.ShutdownTLS(func(err error) { errs <- err })
	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("tls shutdown did not complete")
		}
	}
}

func TestTLSStreamHandshakeFailure(t *testing.T) {
	rawClient, rawServer := tcpPair(t)
	serverCfg, clientCfg := transporttest.TLSPair(t)
	clientCfg.ServerName = "wrong.example"

	client := transport.NewTLSStream(rawClient)
	server := transport.NewTLSStream(rawServer)
	require.NoError(t, server.Attach(serverCfg, transport.RoleServer))
	require.NoError(t, client.Attach(clientCfg, transport.RoleClient))

	errs := make(chan error, 2)
	server.Handshake(context.Background(), func(err error) { errs <- err })
	client.Handshake(context.Background(), func(err error) { errs <- err })

	var failed int
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			failed++
		}
	}
	assert.Greater(t, failed, 0)
}

func TestTLSStreamAttachBeforeConnect(t *testing.T) {
	serverCfg, clientCfg := transporttest.TLSPair(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	serverErr := make(chan error, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			serverErr <- err
			return
		}
		defer c.Close()
		serverErr <- tls.Server(c, serverCfg).Handshake()
	}()

	client := transport.NewTLSStream(transport.NewDialStream("tcp"))
	defer client.Close()
	require.NoError(t, client.Attach(clientCfg, transport.RoleClient))

	_, attached := client.ConnectionState()
	assert.False(t, attached, "no TLS layer before the connection exists")

	done := make(chan error, 1)
	client.Connect(context.Background(), ln.Addr().String(), func(err error) { done <- err })
	require.NoError(t, <-done)

	client.Handshake(context.Background(), func(err error) { done <- err })
	require.NoError(t, <-done)
	require.NoError(t, <-serverErr)

	state, ok := client.ConnectionState()
	require.True(t, ok)
	assert.True(t, state.HandshakeComplete)
}

func TestTLSStreamNotAttached(t *testing.T) {
	_, raw := tcpPair(t)
	s := transport.NewTLSStream(raw)

	errs := make(chan error, 1)
	s.ShutdownTLS(func(err error) { errs <- err })
	assert.ErrorIs(t, <-errs, transport.ErrNotAttached)
}

func TestAsLooksThroughWrappers(t *testing.T) {
	fake := transporttest.NewFake(nil)
	limited := transport.NewRateLimited(fake, 1000, 1000, 10)

	h, ok := transport.As[transport.Handshaker](limited)
	require.True(t, ok)
	assert.Same(t, fake, h)

	_, ok = transport.As[transport.Wrapper](fake)
	assert.False(t, ok)
}

func TestRateLimitedClampsWrites(t *testing.T) {
	fake := transporttest.NewFake(nil)
	limited := transport.NewRateLimited(fake, 0, 1e6, 4)

	ch := make(chan result, 1)
	limited.WriteSome([]byte("abcdefgh"), func(n int, err error) { ch <- result{n, err} })
	r := <-ch
	require.NoError(t, r.err)
	assert.Equal(t, 4, r.n)
	assert.Equal(t, "abcd", string(fake.Written()))
}

func TestRateLimitedCancel(t *testing.T) {
	fake := transporttest.NewFake(nil)
	// One byte per second with a burst of one: the second write must wait.
	limited := transport.NewRateLimited(fake, 1, 1, 1)

	ch := make(chan result, 2)
	limited.WriteSome([]byte("a"), func(n int, err error) { ch <- result{n, err} })
	require.NoError(t, (<-ch).err)

	limited.WriteSome([]byte("b"), func(n int, err error) { ch <- result{n, err} })
	limited.Cancel()

	select {
	case r := <-ch:
		assert.ErrorIs(t, r.err, transport.ErrCanceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not abort the limiter wait")
	}
	assert.True(t, fake.Journal.Has("cancel"))
}

func TestRateLimitedRead(t *testing.T) {
	fake := transporttest.NewFake(nil)
	limited := transport.NewRateLimited(fake, 1e6, 0, 3)
	fake.Deliver([]byte("hello"))

	r := readOnce(t, limited, make([]byte, 16))
	require.NoError(t, r.err)
	assert.Equal(t, 3, r.n)
}

func TestRateLimitConfigWrap(t *testing.T) {
	fake := transporttest.NewFake(nil)

	assert.Same(t, fake, transport.RateLimitConfig{}.Wrap(fake))

	wrapped := transport.RateLimitConfig{WriteBytesPerSec: 100}.Wrap(fake)
	_, ok := wrapped.(*transport.RateLimited)
	assert.True(t, ok)
}

func TestWebSocketStream(t *testing.T) {
	accepted := make(chan *transport.Stream, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := transport.AcceptWebSocket(w, r, nil)
		if err != nil {
			return
		}
		accepted <- s
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, err := transport.DialWebSocket(context.Background(), url)
	require.NoError(t, err)
	defer client.Close()

	var server *transport.Stream
	select {
	case server = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("websocket not accepted")
	}
	defer server.Close()

	writeAll(t, client, []byte("over ws"))
	buf := make([]byte, 32)
	r := readOnce(t, server, buf)
	require.NoError(t, r.err)
	assert.Equal(t, "over ws", string(buf[:r.n]))

	// WebSocket streams have no half-close.
	assert.NoError(t, server.Shutdown(transport.ShutdownBoth))
	assert.NoError(t, server.SetKeepAlive(transport.DefaultKeepAliveConfig()))
}
