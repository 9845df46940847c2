package session

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/google/uuid"

	"github.com/mash-protocol/sessionkit/pkg/chain"
	"github.com/mash-protocol/sessionkit/pkg/ioctx"
	"github.com/mash-protocol/sessionkit/pkg/log"
	"github.com/mash-protocol/sessionkit/pkg/transport"
)

// lastKey hands out session keys. Keys are never reused within a process.
var lastKey atomic.Uint64

// Registry is the set of live sessions a session joins once connected.
type Registry interface {
	// TryInsert stores s under key unless the key is taken and reports the
	// outcome to onResult.
	TryInsert(key uint64, s *Session, onResult func(inserted bool))

	// Remove deletes the entry for key if it holds s.
	Remove(key uint64, s *Session) bool
}

// Params holds the collaborators of a session.
type Params struct {
	// Context is the owning execution context. Required.
	Context *ioctx.Context

	// Transport is the session's byte stream. Required.
	Transport transport.Transport

	// Registry is joined once connected. Nil skips the join.
	Registry Registry

	// Notifier receives notifications. Nil discards them.
	Notifier Notifier

	// Role is the side of the connection this session plays.
	Role transport.Role

	// Address is dialed on start when the transport is not yet open.
	Address string

	// Config configures timeouts, buffers and logging.
	Config Config
}

// Session is one connection's lifecycle.
type Session struct {
	key      uint64
	traceID  string
	ctx      *ioctx.Context
	tr       transport.Transport
	reg      Registry
	notifier Notifier
	role     transport.Role
	address  string
	cfg      Config
	logger   *slog.Logger
	plog     log.Logger
	stage    stage

	lifeCtx    context.Context
	lifeCancel context.CancelFunc

	state       atomic.Int32
	ran         atomic.Bool
	terminating atomic.Bool
	finished    atomic.Bool
	done        chan struct{}

	// Owned by ctx.
	ecs          *ECS
	buf          Buffer
	silenceTimer *ioctx.Timer
	connectTimer *ioctx.Timer
	connected    bool
	stopWaiters  []chain.Chain
	sendq        *queue.Queue
	sending      bool

	mu          sync.RWMutex
	lastErr     error
	connectTime atomic.Int64
	lastAlive   atomic.Int64

	fallbackMu sync.Mutex
}

// New creates a plain session.
func New(p Params) *Session {
	return newSession(p, plainStage{})
}

// NewSecure creates a session with a TLS stage. The transport must expose
// transport.Handshaker, directly or through a wrapper. tlsConfig is shared
// and must not be modified while sessions use it.
func NewSecure(p Params, tlsConfig *tls.Config) *Session {
	return newSession(p, &secureStage{config: tlsConfig})
}

func newSession(p Params, st stage) *Session {
	if p.Context == nil {
		panic("session: nil Context")
	}
	if p.Transport == nil {
		panic("session: nil Transport")
	}

	cfg := p.Config.withDefaults()
	s := &Session{
		key:      lastKey.Add(1),
		traceID:  uuid.NewString(),
		ctx:      p.Context,
		tr:       p.Transport,
		reg:      p.Registry,
		notifier: p.Notifier,
		role:     p.Role,
		address:  p.Address,
		cfg:      cfg,
		plog:     cfg.ProtocolLogger,
		stage:    st,
		done:     make(chan struct{}),
		sendq:    queue.New(),
	}
	s.logger = cfg.Logger.With("session_id", s.traceID, "key", s.key)
	s.lifeCtx, s.lifeCancel = context.WithCancel(context.Background())
	s.buf = newBuffer(cfg.InitBufferSize, cfg.MaxBufferSize)
	return s
}

// Key returns the session's registry key.
func (s *Session) Key() uint64 {
	return s.key
}

// TraceID returns the session's trace ID used in protocol logs.
func (s *Session) TraceID() string {
	return s.traceID
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// IsStarted reports whether the session is STARTED.
func (s *Session) IsStarted() bool {
	return s.State() == StateStarted
}

// IsStopped reports whether the session is STOPPED.
func (s *Session) IsStopped() bool {
	return s.State() == StateStopped
}

// IsSecure reports whether the session has a TLS stage.
func (s *Session) IsSecure() bool {
	_, ok := s.stage.(*secureStage)
	return ok
}

// Role returns the side of the connection this session plays.
func (s *Session) Role() transport.Role {
	return s.role
}

// Context returns the owning execution context.
func (s *Session) Context() *ioctx.Context {
	return s.ctx
}

// Transport returns the session's transport.
func (s *Session) Transport() transport.Transport {
	return s.tr
}

// ECS returns the context passed to Start, or nil before Start.
// Only safe on the owning context.
func (s *Session) ECS() *ECS {
	return s.ecs
}

// Buffer returns the receive buffer. Only safe on the owning context.
func (s *Session) Buffer() *Buffer {
	return &s.buf
}

// LocalAddr returns the transport's local address.
func (s *Session) LocalAddr() net.Addr {
	return s.tr.LocalAddr()
}

// RemoteAddr returns the transport's remote address.
func (s *Session) RemoteAddr() net.Addr {
	return s.tr.RemoteAddr()
}

// LastError returns the error recorded by the last handshake or disconnect.
func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *Session) setLastError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
}

// ConnectTime returns when the session last started.
func (s *Session) ConnectTime() time.Time {
	return time.Unix(0, s.connectTime.Load())
}

// LastAlive returns the time of the last send or receive.
func (s *Session) LastAlive() time.Time {
	return time.Unix(0, s.lastAlive.Load())
}

// UpdateAliveTime marks the session as active now.
func (s *Session) UpdateAliveTime() {
	s.lastAlive.Store(time.Now().UnixNano())
}

// Done returns a channel closed once the session fully stopped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Logger returns the session's operational logger.
func (s *Session) Logger() *slog.Logger {
	return s.logger
}

// post runs fn on the owning context. When the context no longer accepts
// work, fn runs after the context goroutine exited, serialized with other
// late tasks of this session.
func (s *Session) post(fn func()) {
	if s.ctx.Post(fn) {
		return
	}
	go func() {
		<-s.ctx.Done()
		s.fallbackMu.Lock()
		defer s.fallbackMu.Unlock()
		fn()
	}()
}

// afterFunc schedules fn through post, so timers still fire once the
// owning context has stopped.
func (s *Session) afterFunc(d time.Duration, fn func()) *ioctx.Timer {
	return ioctx.AfterFunc(d, s.post, fn)
}

func (s *Session) casState(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

func (s *Session) isAbort(err error) bool {
	return errors.Is(err, ErrOperationAborted)
}
