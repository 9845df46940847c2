package session

import (
	"crypto/tls"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/sessionkit/pkg/ioctx"
	"github.com/mash-protocol/sessionkit/pkg/transport"
	"github.com/mash-protocol/sessionkit/pkg/transport/transporttest"
)

func TestSecureSessionConnectOrdering(t *testing.T) {
	h := newHarness(t)
	s, _ := h.secure(Config{})
	assert.True(t, s.IsSecure())

	require.NoError(t, s.Start(nil))
	waitConnected(t, s)
	waitEntry(t, h.journal, "read")

	assert.True(t, h.journal.Before("attach", "on_accept"))
	assert.True(t, h.journal.Before("on_accept", "handshake"))
	assert.True(t, h.journal.Before("handshake", "on_handshake"))
	assert.True(t, h.journal.Before("on_handshake", "on_connect"))
	assert.True(t, h.journal.Before("on_connect", "join"))

	hs := h.rec.of(EventHandshake)
	require.Len(t, hs, 1)
	assert.NoError(t, hs[0].Err)
}

func TestSecureSessionDisconnectOrdering(t *testing.T) {
	h := newHarness(t)
	s, _ := h.secure(Config{})

	require.NoError(t, s.Start(nil))
	waitEntry(t, h.journal, "read")

	s.Stop()
	waitDone(t, s)

	assert.True(t, h.journal.Before("tls_shutdown", "tls_shutdown_done"))
	assert.True(t, h.journal.Before("tls_shutdown_done", "shutdown"))
	assert.True(t, h.journal.Before("shutdown", "close"))
	assert.True(t, h.journal.Before("close", "on_disconnect"))
	assert.Equal(t, 1, h.journal.Count("tls_shutdown"))
}

func TestSecureSessionShutdownTimeout(t *testing.T) {
	h := newHarness(t)
	s, fake := h.secure(Config{ShutdownTimeout: 50 * time.Millisecond})
	fake.HangShutdown = true

	require.NoError(t, s.Start(nil))
	waitEntry(t, h.journal, "read")

	start := time.Now()
	s.Stop()
	waitDone(t, s)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, h.journal.Before("tls_shutdown", "cancel"))
	assert.True(t, h.journal.Before("cancel", "close"))
	assert.Len(t, h.rec.of(EventDisconnect), 1)
	assert.Equal(t, 1, h.journal.Count("close"))
}

func TestSecureSessionShutdownTimeoutAfterContextStop(t *testing.T) {
	h := newHarness(t)
	s, fake := h.secure(Config{ShutdownTimeout: 50 * time.Millisecond})
	fake.HangShutdown = true

	require.NoError(t, s.Start(nil))
	waitEntry(t, h.journal, "read")

	h.ctx.Stop()
	h.ctx.Wait()

	s.Stop()
	waitDone(t, s)

	assert.True(t, h.journal.Before("tls_shutdown", "close"))
	assert.Equal(t, 1, h.journal.Count("close"))
}

func TestSecureSessionStartDuringShutdown(t *testing.T) {
	h := newHarness(t)
	s, fake := h.secure(Config{ShutdownTimeout: 100 * time.Millisecond})
	fake.HangShutdown = true

	require.NoError(t, s.Start(nil))
	waitEntry(t, h.journal, "read")

	s.Stop()
	waitEntry(t, h.journal, "tls_shutdown")

	assert.ErrorIs(t, s.Start(nil), ErrClosed)

	waitDone(t, s)
	assert.Equal(t, 1, h.journal.Count("on_accept"))
	assert.Equal(t, 1, h.journal.Count("handshake"))
	assert.ErrorIs(t, s.LastError(), ErrOperationAborted)
}

func TestSecureSessionReceivesDataBeforeCloseNotify(t *testing.T) {
	serverCfg, clientCfg := transporttest.TLSPair(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()
	raw, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	var srvConn net.Conn
	select {
	case srvConn = <-accepted:
	case <-time.After(waitTimeout):
		t.Fatal("accept timed out")
	}

	ctx := ioctx.New("tls")
	ctx.Start()
	t.Cleanup(ctx.Stop)

	got := make(chan []byte, 4)
	l := NewListener()
	l.Bind(EventRecv, func(n Notification) {
		got <- append([]byte(nil), n.Data...)
	})
	server := NewSecure(Params{
		Context:   ctx,
		Transport: transport.NewTLSStream(transport.NewStream(srvConn)),
		Notifier:  l,
		Role:      transport.RoleServer,
		Config:    Config{ShutdownTimeout: 500 * time.Millisecond},
	}, serverCfg)
	require.NoError(t, server.Start(nil))

	peer := tls.Client(raw, clientCfg)
	require.NoError(t, peer.Handshake())
	_, err = peer.Write([]byte("goodbye"))
	require.NoError(t, err)
	require.NoError(t, peer.Close())

	waitDone(t, server)

	var received []byte
	for len(got) > 0 {
		received = append(received, <-got...)
	}
	assert.Equal(t, "goodbye", string(received))
	assert.ErrorIs(t, server.LastError(), io.EOF)
}

func TestSecureSessionHandshakeFailure(t *testing.T) {
	h := newHarness(t)
	s, fake := h.secure(Config{})
	fake.HandshakeErr = errors.New("bad certificate")

	require.NoError(t, s.Start(nil))
	waitDone(t, s)

	assert.ErrorIs(t, s.LastError(), ErrHandshakeFailed)
	assert.Equal(t, KindHandshakeFailed, Kind(s.LastError()))

	hs := h.rec.of(EventHandshake)
	require.Len(t, hs, 1)
	assert.ErrorIs(t, hs[0].Err, ErrHandshakeFailed)

	assert.Empty(t, h.rec.of(EventConnect))
	assert.Empty(t, h.rec.of(EventDisconnect))
	assert.False(t, h.journal.Has("tls_shutdown"), "no TLS shutdown without a completed handshake")
	assert.True(t, h.journal.Has("close"))
	assert.Equal(t, 0, h.reg.Len())
}

func TestSecureSessionHandshakeTimeout(t *testing.T) {
	h := newHarness(t)
	s, fake := h.secure(Config{ConnectTimeout: 50 * time.Millisecond})
	fake.HandshakeBlock = true

	require.NoError(t, s.Start(nil))
	waitDone(t, s)

	assert.ErrorIs(t, s.LastError(), ErrConnectTimeout)
	assert.Equal(t, KindTimeout, Kind(s.LastError()))
	assert.Empty(t, h.rec.of(EventHandshake), "handshake result after the timeout is dropped")
	assert.Empty(t, h.rec.of(EventConnect))
}

func TestSecureSessionStopDuringHandshake(t *testing.T) {
	h := newHarness(t)
	s, fake := h.secure(Config{})
	fake.HandshakeBlock = true

	require.NoError(t, s.Start(nil))
	waitEntry(t, h.journal, "handshake")

	s.Stop()
	waitDone(t, s)

	assert.ErrorIs(t, s.LastError(), ErrOperationAborted)
	assert.Empty(t, h.rec.of(EventConnect))
}

// bareTransport hides the fake's optional capabilities.
type bareTransport struct {
	transport.Transport
}

func TestSecureSessionWithoutHandshaker(t *testing.T) {
	h := newHarness(t)
	fake := transporttest.NewFake(h.journal)
	s := NewSecure(h.params(bareTransport{fake}, Config{}), &tls.Config{})

	require.NoError(t, s.Start(nil))
	waitDone(t, s)

	assert.ErrorIs(t, s.LastError(), ErrHandshakeFailed)
	assert.ErrorIs(t, s.LastError(), errNoHandshaker)
	assert.Empty(t, h.rec.of(EventAccept), "init failure precedes accept")
	assert.False(t, h.journal.Has("attach"))
}

func TestSecureSessionRestartAfterHandshakeFailure(t *testing.T) {
	h := newHarness(t)
	s, fake := h.secure(Config{})
	fake.HandshakeErr = errors.New("bad certificate")

	require.NoError(t, s.Start(nil))
	waitDone(t, s)
	assert.ErrorIs(t, s.Start(nil), ErrClosed)
}

func TestSecureSessionOverTLS(t *testing.T) {
	serverCfg, clientCfg := transporttest.TLSPair(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()
	raw, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	var srvConn net.Conn
	select {
	case srvConn = <-accepted:
	case <-time.After(waitTimeout):
		t.Fatal("accept timed out")
	}

	ctx := ioctx.New("tls")
	ctx.Start()
	t.Cleanup(ctx.Stop)

	echo := NewListener()
	echo.Bind(EventRecv, func(n Notification) {
		_ = n.Session.Send(n.Data)
	})
	server := NewSecure(Params{
		Context:   ctx,
		Transport: transport.NewTLSStream(transport.NewStream(srvConn)),
		Notifier:  echo,
		Role:      transport.RoleServer,
	}, serverCfg)

	got := make(chan []byte, 1)
	cl := NewListener()
	cl.Bind(EventConnect, func(n Notification) {
		_ = n.Session.Send([]byte("ping"))
	})
	cl.Bind(EventRecv, func(n Notification) {
		got <- append([]byte(nil), n.Data...)
	})
	client := NewSecure(Params{
		Context:   ctx,
		Transport: transport.NewTLSStream(transport.NewStream(raw)),
		Notifier:  cl,
		Role:      transport.RoleClient,
	}, clientCfg)

	require.NoError(t, server.Start(nil))
	require.NoError(t, client.Start(nil))

	select {
	case b := <-got:
		assert.Equal(t, "ping", string(b))
	case <-time.After(waitTimeout):
		t.Fatalf("no echo, client error %v, server error %v", client.LastError(), server.LastError())
	}

	client.Stop()
	waitDone(t, client)
	waitDone(t, server)
	assert.ErrorIs(t, client.LastError(), ErrOperationAborted)
	assert.Error(t, server.LastError())
}
