package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"sync"
)

// TLSStream is a Stream with a TLS layer attached on top of the raw
// connection. Until Attach is called it behaves like the raw Stream.
type TLSStream struct {
	*Stream

	mu   sync.RWMutex
	cfg  *tls.Config
	role Role
	tls  *tls.Conn
}

// NewTLSStream wraps raw. The TLS layer is attached later with Attach.
func NewTLSStream(raw *Stream) *TLSStream {
	return &TLSStream{Stream: raw}
}

// Attach binds a TLS layer of the given role. On a stream that is not yet
// connected the layer is created once Connect succeeded.
func (t *TLSStream) Attach(cfg *tls.Config, role Role) error {
	if cfg == nil {
		return errors.New("tls config is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cfg != nil {
		return errors.New("tls already attached")
	}
	t.cfg = cfg
	t.role = role
	return nil
}

// tlsConn returns the TLS layer, creating it on first use.
func (t *TLSStream) tlsConn() *tls.Conn {
	t.mu.RLock()
	tc, cfg := t.tls, t.cfg
	t.mu.RUnlock()
	if tc != nil || cfg == nil {
		return tc
	}

	conn := t.Stream.Conn()
	if conn == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tls == nil {
		if t.role == RoleClient {
			t.tls = tls.Client(conn, t.cfg)
		} else {
			t.tls = tls.Server(conn, t.cfg)
		}
	}
	return t.tls
}

// Handshake runs the TLS handshake.
func (t *TLSStream) Handshake(ctx context.Context, done func(error)) {
	tc := t.tlsConn()
	go func() {
		if tc == nil {
			done(ErrNotAttached)
			return
		}
		done(t.mapErr(tc.HandshakeContext(ctx)))
	}()
}

// ShutdownTLS sends close_notify and reads until the peer closes its side.
// Application data still in flight is discarded.
func (t *TLSStream) ShutdownTLS(done func(error)) {
	tc := t.tlsConn()
	go func() {
		if tc == nil {
			done(ErrNotAttached)
			return
		}
		if err := tc.CloseWrite(); err != nil {
			done(t.mapErr(err))
			return
		}

		var buf [512]byte
		for {
			_, err := tc.Read(buf[:])
			if errors.Is(err, io.EOF) {
				done(nil)
				return
			}
			if err != nil {
				done(t.mapErr(err))
				return
			}
		}
	}()
}

// ConnectionState returns the TLS state once attached.
func (t *TLSStream) ConnectionState() (tls.ConnectionState, bool) {
	tc := t.tlsConn()
	if tc == nil {
		return tls.ConnectionState{}, false
	}
	return tc.ConnectionState(), true
}

// ReadSome reads decrypted data once attached.
func (t *TLSStream) ReadSome(p []byte, done func(int, error)) {
	tc := t.tlsConn()
	if tc == nil {
		t.Stream.ReadSome(p, done)
		return
	}
	go func() {
		n, err := tc.Read(p)
		done(n, t.mapErr(err))
	}()
}

// WriteSome encrypts and writes p once attached.
func (t *TLSStream) WriteSome(p []byte, done func(int, error)) {
	tc := t.tlsConn()
	if tc == nil {
		t.Stream.WriteSome(p, done)
		return
	}
	go func() {
		n, err := tc.Write(p)
		done(n, t.mapErr(err))
	}()
}
