package transport

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Stream is a Transport over a net.Conn.
//
// Each pending operation runs on its own goroutine. Cancel is implemented
// with an expired deadline, which unblocks every pending Read and Write.
type Stream struct {
	network string
	dialer  net.Dialer

	mu   sync.RWMutex
	conn net.Conn

	canceled  atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewStream wraps an established connection, typically one returned by
// a listener.
func NewStream(conn net.Conn) *Stream {
	return &Stream{network: "tcp", conn: conn}
}

// NewDialStream creates an unconnected stream. Connect dials network.
func NewDialStream(network string) *Stream {
	if network == "" {
		network = "tcp"
	}
	return &Stream{network: network}
}

// Conn returns the underlying connection, or nil before Connect completes.
func (s *Stream) Conn() net.Conn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

// IsOpen reports whether the stream has a connection that was not closed.
func (s *Stream) IsOpen() bool {
	return s.Conn() != nil && !s.closed.Load()
}

// Connect dials addr.
func (s *Stream) Connect(ctx context.Context, addr string, done func(error)) {
	go func() {
		if s.Conn() != nil {
			done(errors.New("stream already connected"))
			return
		}

		conn, err := s.dialer.DialContext(ctx, s.network, addr)
		if err != nil {
			done(err)
			return
		}

		s.mu.Lock()
		if s.closed.Load() {
			s.mu.Unlock()
			conn.Close()
			done(net.ErrClosed)
			return
		}
		s.conn = conn
		s.mu.Unlock()
		done(nil)
	}()
}

// ReadSome reads into p.
func (s *Stream) ReadSome(p []byte, done func(int, error)) {
	conn := s.Conn()
	go func() {
		if conn == nil {
			done(0, ErrNotOpen)
			return
		}
		n, err := conn.Read(p)
		done(n, s.mapErr(err))
	}()
}

// WriteSome writes p.
func (s *Stream) WriteSome(p []byte, done func(int, error)) {
	conn := s.Conn()
	go func() {
		if conn == nil {
			done(0, ErrNotOpen)
			return
		}
		n, err := conn.Write(p)
		done(n, s.mapErr(err))
	}()
}

// Shutdown closes one or both halves. Connections without half-close
// support ignore the call.
func (s *Stream) Shutdown(how Direction) error {
	conn := s.Conn()
	if conn == nil {
		return ErrNotOpen
	}
	return shutdownConn(conn, how)
}

func shutdownConn(conn net.Conn, how Direction) error {
	hc, ok := conn.(interface {
		CloseRead() error
		CloseWrite() error
	})
	if !ok {
		return nil
	}

	var errRead, errWrite error
	if how == ShutdownRead || how == ShutdownBoth {
		errRead = hc.CloseRead()
	}
	if how == ShutdownWrite || how == ShutdownBoth {
		errWrite = hc.CloseWrite()
	}
	return errors.Join(errRead, errWrite)
}

// Cancel aborts pending reads and writes.
func (s *Stream) Cancel() {
	s.canceled.Store(true)
	if conn := s.Conn(); conn != nil {
		conn.SetDeadline(time.Unix(1, 0))
	}
}

// Close closes the connection.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		conn := s.conn
		s.mu.Unlock()

		if conn != nil {
			err = conn.Close()
		}
	})
	return err
}

// LocalAddr returns the local address.
func (s *Stream) LocalAddr() net.Addr {
	if conn := s.Conn(); conn != nil {
		return conn.LocalAddr()
	}
	return nil
}

// RemoteAddr returns the remote address.
func (s *Stream) RemoteAddr() net.Addr {
	if conn := s.Conn(); conn != nil {
		return conn.RemoteAddr()
	}
	return nil
}

// SetKeepAlive configures TCP keep-alive. Non-TCP connections ignore it.
func (s *Stream) SetKeepAlive(cfg KeepAliveConfig) error {
	tc, ok := s.Conn().(*net.TCPConn)
	if !ok {
		return nil
	}
	return applyKeepAlive(tc, cfg)
}

// SetLinger sets SO_LINGER. Non-TCP connections ignore it.
func (s *Stream) SetLinger(sec int) error {
	tc, ok := s.Conn().(*net.TCPConn)
	if !ok {
		return nil
	}
	return tc.SetLinger(sec)
}

// mapErr reports deadline errors caused by Cancel as ErrCanceled.
func (s *Stream) mapErr(err error) error {
	if err == nil {
		return nil
	}
	if s.canceled.Load() && (errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, net.ErrClosed)) {
		return errors.Join(ErrCanceled, err)
	}
	return err
}
