package session

import (
	"errors"
	"fmt"
)

// Session errors. Every error that ends a session is one of these, or a
// TransportError, possibly wrapped.
var (
	// ErrAlreadyStarted is returned by Start on a session that is not stopped.
	ErrAlreadyStarted = errors.New("session already started")

	// ErrOperationAborted ends a session stopped explicitly, or one that was
	// stopped while it was still starting.
	ErrOperationAborted = errors.New("operation aborted")

	// ErrAddressInUse ends a session whose key was already registered.
	ErrAddressInUse = errors.New("session key already in use")

	// ErrHandshakeFailed wraps the TLS error of a failed handshake.
	ErrHandshakeFailed = errors.New("handshake failed")

	// ErrTimeout is the parent of all timeout errors.
	ErrTimeout = errors.New("timeout")

	// ErrSilenceTimeout ends a session that saw no traffic for the silence timeout.
	ErrSilenceTimeout = fmt.Errorf("silence %w", ErrTimeout)

	// ErrConnectTimeout ends a session that did not finish connecting in time.
	ErrConnectTimeout = fmt.Errorf("connect %w", ErrTimeout)

	// ErrNotStarted is reported by sends on a session that is not started.
	ErrNotStarted = errors.New("session not started")

	// ErrClosed is returned by Start on a session whose run has ended or is
	// ending.
	ErrClosed = errors.New("session closed")

	// ErrBufferFull ends a session whose receive buffer reached its maximum
	// size without the data being consumed.
	ErrBufferFull = errors.New("receive buffer full")
)

// TransportError wraps an I/O failure of the underlying transport.
type TransportError struct {
	// Op is the failed operation: connect, read or write.
	Op string

	// Err is the transport's error.
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ErrorKind classifies session errors.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindAlreadyStarted
	KindOperationAborted
	KindAddressInUse
	KindTransport
	KindHandshakeFailed
	KindTimeout
	KindNotStarted
	KindClosed
	KindUnknown
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "NONE"
	case KindAlreadyStarted:
		return "ALREADY_STARTED"
	case KindOperationAborted:
		return "OPERATION_ABORTED"
	case KindAddressInUse:
		return "ADDRESS_IN_USE"
	case KindTransport:
		return "TRANSPORT"
	case KindHandshakeFailed:
		return "HANDSHAKE_FAILED"
	case KindTimeout:
		return "TIMEOUT"
	case KindNotStarted:
		return "NOT_STARTED"
	case KindClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Kind classifies err.
func Kind(err error) ErrorKind {
	var te *TransportError
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrAlreadyStarted):
		return KindAlreadyStarted
	case errors.Is(err, ErrOperationAborted):
		return KindOperationAborted
	case errors.Is(err, ErrAddressInUse):
		return KindAddressInUse
	case errors.Is(err, ErrHandshakeFailed):
		return KindHandshakeFailed
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.As(err, &te), errors.Is(err, ErrBufferFull):
		return KindTransport
	case errors.Is(err, ErrNotStarted):
		return KindNotStarted
	case errors.Is(err, ErrClosed):
		return KindClosed
	default:
		return KindUnknown
	}
}
