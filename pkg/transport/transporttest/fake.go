// Package transporttest provides an in-memory Transport for tests, plus
// certificate and ordering helpers.
package transporttest

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/mash-protocol/sessionkit/pkg/transport"
)

var nextPort atomic.Int32

// Fake is a scriptable in-memory transport. Every call is recorded in the
// journal under a fixed name: "connect", "read", "write", "shutdown",
// "cancel", "close", "attach", "handshake", "tls_shutdown",
// "tls_shutdown_done", "keepalive" and "linger".
//
// Exported fields configure behavior and must be set before the fake is
// handed to a session.
type Fake struct {
	Journal *Journal

	// ConnectErr is reported by Connect.
	ConnectErr error

	// ConnectBlock makes Connect wait until its context ends or the fake is canceled.
	ConnectBlock bool

	// HandshakeErr is reported by Handshake.
	HandshakeErr error

	// HandshakeBlock makes Handshake wait until its context ends or the fake is canceled.
	HandshakeBlock bool

	// HangShutdown makes ShutdownTLS wait until the fake is canceled.
	HangShutdown bool

	// WriteErr is reported by WriteSome.
	WriteErr error

	// MaxWrite caps the bytes accepted by a single WriteSome.
	MaxWrite int

	// EOFWithData makes the read that drains the last buffered bytes after
	// Hangup report io.EOF along with them.
	EOFWithData bool

	mu       sync.Mutex
	open     bool
	inbuf    []byte
	eof      bool
	wake     chan struct{}
	written  bytes.Buffer
	attached bool

	abort     chan struct{}
	abortOnce sync.Once

	local  net.Addr
	remote net.Addr
}

// NewFake returns an open fake, as if accepted from a listener.
// A nil journal gets a fresh one.
func NewFake(j *Journal) *Fake {
	f := newFake(j)
	f.open = true
	return f
}

// NewUnconnectedFake returns a fake that opens on Connect.
func NewUnconnectedFake(j *Journal) *Fake {
	return newFake(j)
}

func newFake(j *Journal) *Fake {
	if j == nil {
		j = NewJournal()
	}
	port := int(nextPort.Add(1)) + 40000
	return &Fake{
		Journal: j,
		wake:    make(chan struct{}),
		abort:   make(chan struct{}),
		local:   &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9000},
		remote:  &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port},
	}
}

// Deliver makes p available to pending and future reads.
func (f *Fake) Deliver(p []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbuf = append(f.inbuf, p...)
	f.signal()
}

// Hangup makes reads report io.EOF once buffered data is consumed.
func (f *Fake) Hangup() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eof = true
	f.signal()
}

func (f *Fake) signal() {
	close(f.wake)
	f.wake = make(chan struct{})
}

// Written returns a copy of everything written so far.
func (f *Fake) Written() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return bytes.Clone(f.written.Bytes())
}

// Aborted returns a channel closed by Cancel or Close.
func (f *Fake) Aborted() <-chan struct{} {
	return f.abort
}

func (f *Fake) doAbort() {
	f.abortOnce.Do(func() { close(f.abort) })
}

// IsOpen reports whether the fake is open.
func (f *Fake) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// Connect opens the fake.
func (f *Fake) Connect(ctx context.Context, _ string, done func(error)) {
	f.Journal.Record("connect")
	go func() {
		if f.ConnectBlock {
			select {
			case <-ctx.Done():
				done(ctx.Err())
			case <-f.abort:
				done(transport.ErrCanceled)
			}
			return
		}
		if f.ConnectErr != nil {
			done(f.ConnectErr)
			return
		}
		f.mu.Lock()
		f.open = true
		f.mu.Unlock()
		done(nil)
	}()
}

// ReadSome waits for delivered data, EOF, or cancellation.
func (f *Fake) ReadSome(p []byte, done func(int, error)) {
	f.Journal.Record("read")
	go func() {
		for {
			f.mu.Lock()
			if len(f.inbuf) > 0 {
				n := copy(p, f.inbuf)
				f.inbuf = f.inbuf[n:]
				var err error
				if f.EOFWithData && f.eof && len(f.inbuf) == 0 {
					err = io.EOF
				}
				f.mu.Unlock()
				done(n, err)
				return
			}
			if f.eof {
				f.mu.Unlock()
				done(0, io.EOF)
				return
			}
			wake := f.wake
			f.mu.Unlock()

			select {
			case <-wake:
			case <-f.abort:
				done(0, transport.ErrCanceled)
				return
			}
		}
	}()
}

// WriteSome appends p to the written buffer.
func (f *Fake) WriteSome(p []byte, done func(int, error)) {
	f.Journal.Record("write")
	go func() {
		select {
		case <-f.abort:
			done(0, transport.ErrCanceled)
			return
		default:
		}
		if f.WriteErr != nil {
			done(0, f.WriteErr)
			return
		}
		if f.MaxWrite > 0 && len(p) > f.MaxWrite {
			p = p[:f.MaxWrite]
		}
		f.mu.Lock()
		f.written.Write(p)
		f.mu.Unlock()
		done(len(p), nil)
	}()
}

// Shutdown records the call.
func (f *Fake) Shutdown(transport.Direction) error {
	f.Journal.Record("shutdown")
	return nil
}

// Cancel aborts pending operations.
func (f *Fake) Cancel() {
	f.Journal.Record("cancel")
	f.doAbort()
}

// Close closes the fake.
func (f *Fake) Close() error {
	f.Journal.Record("close")
	f.mu.Lock()
	f.open = false
	f.mu.Unlock()
	f.doAbort()
	return nil
}

// LocalAddr returns a fixed loopback address.
func (f *Fake) LocalAddr() net.Addr { return f.local }

// RemoteAddr returns a unique loopback address per fake.
func (f *Fake) RemoteAddr() net.Addr { return f.remote }

// Attach records the call.
func (f *Fake) Attach(*tls.Config, transport.Role) error {
	f.Journal.Record("attach")
	f.mu.Lock()
	f.attached = true
	f.mu.Unlock()
	return nil
}

// Handshake reports HandshakeErr, or blocks when HandshakeBlock is set.
func (f *Fake) Handshake(ctx context.Context, done func(error)) {
	f.Journal.Record("handshake")
	go func() {
		if f.HandshakeBlock {
			select {
			case <-ctx.Done():
				done(ctx.Err())
			case <-f.abort:
				done(transport.ErrCanceled)
			}
			return
		}
		done(f.HandshakeErr)
	}()
}

// ShutdownTLS completes immediately, or after cancellation when
// HangShutdown is set.
func (f *Fake) ShutdownTLS(done func(error)) {
	f.Journal.Record("tls_shutdown")
	go func() {
		if f.HangShutdown {
			<-f.abort
			f.Journal.Record("tls_shutdown_done")
			done(transport.ErrCanceled)
			return
		}
		f.Journal.Record("tls_shutdown_done")
		done(nil)
	}()
}

// ConnectionState reports whether Attach was called.
func (f *Fake) ConnectionState() (tls.ConnectionState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return tls.ConnectionState{Version: tls.VersionTLS13}, f.attached
}

// SetKeepAlive records the call.
func (f *Fake) SetKeepAlive(transport.KeepAliveConfig) error {
	f.Journal.Record("keepalive")
	return nil
}

// SetLinger records the call.
func (f *Fake) SetLinger(int) error {
	f.Journal.Record("linger")
	return nil
}

var (
	_ transport.Transport  = (*Fake)(nil)
	_ transport.Handshaker = (*Fake)(nil)
	_ transport.KeepAliver = (*Fake)(nil)
	_ transport.Lingerer   = (*Fake)(nil)
)
