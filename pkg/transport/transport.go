package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
)

// Transport errors.
var (
	// ErrNotOpen is reported by operations on a transport with no connection.
	ErrNotOpen = errors.New("transport not open")

	// ErrCanceled is reported by operations aborted through Cancel.
	ErrCanceled = errors.New("operation canceled")

	// ErrNotAttached is reported by TLS operations before Attach.
	ErrNotAttached = errors.New("tls not attached")
)

// Direction selects which half of a stream Shutdown closes.
type Direction int

const (
	// ShutdownRead stops further reads.
	ShutdownRead Direction = iota

	// ShutdownWrite sends EOF to the peer.
	ShutdownWrite

	// ShutdownBoth closes both halves.
	ShutdownBoth
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case ShutdownRead:
		return "READ"
	case ShutdownWrite:
		return "WRITE"
	case ShutdownBoth:
		return "BOTH"
	default:
		return "UNKNOWN"
	}
}

// Role selects the handshake role of a secure transport.
type Role int

const (
	// RoleServer performs the server side of a handshake.
	RoleServer Role = iota

	// RoleClient performs the client side of a handshake.
	RoleClient
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleServer:
		return "SERVER"
	case RoleClient:
		return "CLIENT"
	default:
		return "UNKNOWN"
	}
}

// Transport is an asynchronous byte stream.
//
// Completion callbacks are invoked exactly once and never from inside the
// initiating call.
type Transport interface {
	// IsOpen reports whether the transport has a live connection.
	IsOpen() bool

	// Connect establishes the connection to addr.
	Connect(ctx context.Context, addr string, done func(err error))

	// ReadSome reads up to len(p) bytes into p.
	ReadSome(p []byte, done func(n int, err error))

	// WriteSome writes some prefix of p.
	WriteSome(p []byte, done func(n int, err error))

	// Shutdown closes one or both halves of the stream.
	Shutdown(how Direction) error

	// Cancel aborts all pending operations.
	Cancel()

	// Close releases the connection. It is safe to call more than once.
	Close() error

	// LocalAddr returns the local address, or nil when not open.
	LocalAddr() net.Addr

	// RemoteAddr returns the remote address, or nil when not open.
	RemoteAddr() net.Addr
}

// Handshaker is implemented by transports with a security layer.
type Handshaker interface {
	// Attach binds the security layer to the raw connection.
	Attach(cfg *tls.Config, role Role) error

	// Handshake runs the security handshake.
	Handshake(ctx context.Context, done func(err error))

	// ShutdownTLS sends close_notify and waits for the peer's reply.
	ShutdownTLS(done func(err error))

	// ConnectionState returns the negotiated state once attached.
	ConnectionState() (tls.ConnectionState, bool)
}

// KeepAliver is implemented by transports that support TCP keep-alive.
type KeepAliver interface {
	SetKeepAlive(cfg KeepAliveConfig) error
}

// Lingerer is implemented by transports that support SO_LINGER.
type Lingerer interface {
	SetLinger(sec int) error
}

// Wrapper is implemented by decorators to expose the transport they wrap.
type Wrapper interface {
	Unwrap() Transport
}

// As finds the first transport in the decorator chain of t that implements T.
func As[T any](t Transport) (T, bool) {
	for t != nil {
		if v, ok := t.(T); ok {
			return v, true
		}
		w, ok := t.(Wrapper)
		if !ok {
			break
		}
		t = w.Unwrap()
	}
	var zero T
	return zero, false
}

// Compile-time interface satisfaction checks.
var (
	_ Transport  = (*Stream)(nil)
	_ KeepAliver = (*Stream)(nil)
	_ Lingerer   = (*Stream)(nil)
	_ Transport  = (*TLSStream)(nil)
	_ Handshaker = (*TLSStream)(nil)
	_ Transport  = (*RateLimited)(nil)
	_ Wrapper    = (*RateLimited)(nil)
)
