package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"github.com/mash-protocol/sessionkit/pkg/chain"
	"github.com/mash-protocol/sessionkit/pkg/ioctx"
	"github.com/mash-protocol/sessionkit/pkg/log"
	"github.com/mash-protocol/sessionkit/pkg/registry"
	"github.com/mash-protocol/sessionkit/pkg/session"
	"github.com/mash-protocol/sessionkit/pkg/transport"
)

// Server errors.
var (
	ErrAlreadyRunning = errors.New("server already running")
	ErrNotRunning     = errors.New("server not running")
)

const maxAcceptBackoff = time.Second

// Server accepts connections and runs a session per connection.
type Server struct {
	cfg    Config
	id     string
	logger *slog.Logger
	plog   log.Logger

	reg      *registry.Registry[*session.Session]
	listener *session.Listener

	mu       sync.Mutex
	running  bool
	starting bool
	ln       net.Listener
	pool     *ioctx.Pool
	live     map[*session.Session]struct{}
	newECS   func(*session.Session) *session.ECS
	onInit   []func()
	onStart  []func(error)
	onStop   []func()

	wg sync.WaitGroup
}

// New creates a server. It does not listen until Start.
func New(cfg Config) *Server {
	cfg = cfg.withDefaults()
	id := uuid.NewString()
	return &Server{
		cfg:      cfg,
		id:       id,
		logger:   cfg.Logger.With("server_id", id),
		plog:     cfg.ProtocolLogger,
		reg:      registry.New[*session.Session](),
		listener: session.NewListener(),
		live:     make(map[*session.Session]struct{}),
	}
}

// Start listens on the configured address and begins accepting.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running || s.starting {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.starting = true
	hooks := s.onInit
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()
	}()

	for _, fn := range hooks {
		fn()
	}
	s.traceState("STOPPED", "STARTING")

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, s.cfg.Network, s.cfg.Address)
	if err != nil {
		err = fmt.Errorf("failed to listen: %w", err)
		s.traceState("STARTING", "STOPPED")
		s.fireStart(err)
		return err
	}

	pool := ioctx.NewPool(s.cfg.Workers)
	for i := 0; i < pool.Size(); i++ {
		pool.At(i).SetLogger(s.logger)
	}
	pool.Start()

	s.mu.Lock()
	s.running = true
	s.ln = ln
	s.pool = pool
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ln)

	s.logger.Info("server started", "addr", ln.Addr().String(), "workers", pool.Size(), "tls", s.cfg.TLS != nil)
	s.traceState("STARTING", "STARTED")
	s.fireStart(nil)
	return nil
}

// Stop closes the listener, stops every session and waits until all of
// them finished. Stop on a stopped server is a no-op.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	ln := s.ln
	s.mu.Unlock()

	s.traceState("STARTED", "STOPPING")

	err := ln.Close()
	s.wg.Wait()

	s.mu.Lock()
	sessions := make([]*session.Session, 0, len(s.live))
	for sess := range s.live {
		sessions = append(sessions, sess)
	}
	pool := s.pool
	s.mu.Unlock()

	// Every session releases its branch once it fully stopped.
	done := make(chan struct{})
	join := chain.New(func() { close(done) })
	for _, sess := range sessions {
		sess.StopChain(join.Clone())
	}
	join.Release()
	<-done

	pool.Stop()

	s.mu.Lock()
	s.ln = nil
	s.pool = nil
	hooks := s.onStop
	s.mu.Unlock()

	s.logger.Info("server stopped", "sessions", len(sessions))
	s.traceState("STOPPING", "STOPPED")
	for _, fn := range hooks {
		fn()
	}

	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// IsRunning reports whether the server accepts connections.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SetSessionConfig replaces the configuration used for sessions accepted
// from now on. Running sessions keep theirs.
func (s *Server) SetSessionConfig(cfg session.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.Logger == nil {
		cfg.Logger = s.cfg.Session.Logger
	}
	if cfg.ProtocolLogger == nil {
		cfg.ProtocolLogger = s.cfg.Session.ProtocolLogger
	}
	s.cfg.Session = cfg
}

// ID returns the server's unique ID.
func (s *Server) ID() string {
	return s.id
}

// Addr returns the listen address, or nil when not running.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Count returns the number of registered sessions.
func (s *Server) Count() int {
	return s.reg.Len()
}

// Find returns the registered session with the given key.
func (s *Server) Find(key uint64) (*session.Session, bool) {
	return s.reg.Get(key)
}

// ForEach calls fn for every registered session until fn returns false.
func (s *Server) ForEach(fn func(*session.Session) bool) {
	s.reg.Range(func(_ uint64, sess *session.Session) bool {
		return fn(sess)
	})
}

// Observe adds a registry observer, e.g. to mirror sessions elsewhere.
func (s *Server) Observe(o registry.Observer[*session.Session]) {
	s.reg.Observe(o)
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			backoff = min(max(2*backoff, 5*time.Millisecond), maxAcceptBackoff)
			s.logger.Warn("accept failed", "error", err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		if _, err := s.Adopt(transport.NewStream(conn)); err != nil {
			s.logger.Debug("connection rejected", "remote", conn.RemoteAddr().String(), "error", err)
		}
	}
}

// Adopt runs a server-side session on an already connected stream. The
// accept loop and the WebSocket handler use it; it is exported for
// listeners the server does not own.
func (s *Server) Adopt(raw *transport.Stream) (*session.Session, error) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		_ = raw.Close()
		return nil, ErrNotRunning
	}

	var tr transport.Transport = raw
	if s.cfg.TLS != nil {
		tr = transport.NewTLSStream(raw)
	}
	tr = s.cfg.RateLimit.Wrap(tr)

	p := session.Params{
		Context:   s.pool.Next(),
		Transport: tr,
		Registry:  s.reg,
		Notifier:  s.listener,
		Role:      transport.RoleServer,
		Config:    s.cfg.Session,
	}
	var sess *session.Session
	if s.cfg.TLS != nil {
		sess = session.NewSecure(p, s.cfg.TLS)
	} else {
		sess = session.New(p)
	}
	s.live[sess] = struct{}{}
	newECS := s.newECS
	s.mu.Unlock()

	go func() {
		<-sess.Done()
		s.mu.Lock()
		delete(s.live, sess)
		s.mu.Unlock()
	}()

	var ecs *session.ECS
	if newECS != nil {
		ecs = newECS(sess)
	}
	if err := sess.Start(ecs); err != nil {
		return nil, err
	}
	return sess, nil
}

// WebSocketHandler returns an HTTP handler that upgrades requests and runs
// a session on each WebSocket connection.
func (s *Server) WebSocketHandler(opts *websocket.AcceptOptions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := transport.AcceptWebSocket(w, r, opts)
		if err != nil {
			s.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}
		if _, err := s.Adopt(raw); err != nil {
			s.logger.Debug("websocket connection rejected", "remote", r.RemoteAddr, "error", err)
		}
	})
}

func (s *Server) fireStart(err error) {
	s.mu.Lock()
	hooks := s.onStart
	s.mu.Unlock()
	for _, fn := range hooks {
		fn(err)
	}
}

func (s *Server) traceState(from, to string) {
	s.plog.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: s.id,
		Layer:     log.LayerSession,
		Category:  log.CategoryState,
		LocalRole: log.RoleServer,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityServer,
			OldState: from,
			NewState: to,
		},
	})
}
