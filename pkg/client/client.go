package client

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mash-protocol/sessionkit/pkg/ioctx"
	"github.com/mash-protocol/sessionkit/pkg/log"
	"github.com/mash-protocol/sessionkit/pkg/session"
	"github.com/mash-protocol/sessionkit/pkg/transport"
)

// Client errors.
var (
	ErrClientClosed     = errors.New("client closed")
	ErrAlreadyConnected = errors.New("already connected")
	ErrNotConnected     = errors.New("not connected")
)

// reconnectAttemptTimeout bounds a single background reconnect.
const reconnectAttemptTimeout = 30 * time.Second

// State is the client's connection state.
type State uint8

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected State = iota

	// StateConnecting indicates Start is in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateReconnecting indicates automatic reconnection is in progress.
	StateReconnecting

	// StateClosed indicates the client has been closed.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ReconnectConfig controls automatic reconnection.
type ReconnectConfig struct {
	Enable  bool          `yaml:"enable"`
	Backoff BackoffConfig `yaml:"backoff"`
}

// Config configures a Client.
type Config struct {
	// Network is the dial network. Defaults to "tcp".
	Network string `yaml:"network"`

	// Session configures every session the client runs.
	Session session.Config `yaml:"session"`

	// RateLimit throttles the connection when enabled.
	RateLimit transport.RateLimitConfig `yaml:"rate_limit"`

	// Reconnect enables re-dialing lost connections.
	Reconnect ReconnectConfig `yaml:"reconnect"`

	// TLS enables the TLS stage.
	TLS *tls.Config `yaml:"-"`

	// Context runs the sessions. Nil gives the client its own context,
	// stopped by Close.
	Context *ioctx.Context `yaml:"-"`

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger `yaml:"-"`

	// ProtocolLogger receives session events. Nil disables them.
	ProtocolLogger log.Logger `yaml:"-"`
}

// Client dials a server and keeps one session to it.
type Client struct {
	cfg      Config
	ioc      *ioctx.Context
	ownCtx   bool
	logger   *slog.Logger
	listener *session.Listener
	backoff  *Backoff

	mu             sync.RWMutex
	state          State
	addr           string
	sess           *session.Session
	newECS         func(*session.Session) *session.ECS
	onStateChange  func(oldState, newState State)
	onReconnecting func(attempt int, delay time.Duration)

	ctx         context.Context
	cancel      context.CancelFunc
	reconnectCh chan struct{}
	wg          sync.WaitGroup
}

// New creates a client. Close releases its resources.
func New(cfg Config) *Client {
	if cfg.Network == "" {
		cfg.Network = "tcp"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Session.Logger == nil {
		cfg.Session.Logger = cfg.Logger
	}
	if cfg.Session.ProtocolLogger == nil {
		cfg.Session.ProtocolLogger = cfg.ProtocolLogger
	}

	c := &Client{
		cfg:         cfg,
		ioc:         cfg.Context,
		logger:      cfg.Logger,
		listener:    session.NewListener(),
		backoff:     NewBackoff(cfg.Reconnect.Backoff),
		reconnectCh: make(chan struct{}, 1),
	}
	if c.ioc == nil {
		c.ioc = ioctx.New("client")
		c.ioc.SetLogger(c.logger)
		c.ioc.Start()
		c.ownCtx = true
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	if cfg.Reconnect.Enable {
		c.wg.Add(1)
		go c.reconnectLoop()
	}
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Session returns the current session, or nil.
func (c *Client) Session() *session.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sess
}

// Start connects to addr and returns once the session reached STARTED or
// failed. Canceling ctx aborts the attempt.
func (c *Client) Start(ctx context.Context, addr string) error {
	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return ErrClientClosed
	case StateConnecting, StateConnected, StateReconnecting:
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.addr = addr
	old := c.state
	c.state = StateConnecting
	cb := c.onStateChange
	c.mu.Unlock()

	if cb != nil {
		cb(old, StateConnecting)
	}

	sess, err := c.connect(ctx, addr)
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}

	if !c.transition(StateConnecting, StateConnected, sess) {
		sess.Stop()
		return session.ErrOperationAborted
	}
	c.backoff.Reset()
	return nil
}

// Stop disconnects and disables reconnection until the next Start. It
// waits for the session to finish and must not be called from a handler.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.state != StateClosed {
		c.state = StateDisconnected
	}
	sess := c.sess
	c.sess = nil
	c.mu.Unlock()

	if sess != nil {
		sess.Stop()
		<-sess.Done()
	}
}

// Close stops the client for good.
func (c *Client) Close() {
	c.Stop()
	c.setState(StateClosed)
	c.cancel()
	c.wg.Wait()
	if c.ownCtx {
		c.ioc.Stop()
	}
}

// Send queues data on the current session.
func (c *Client) Send(data []byte) error {
	sess := c.Session()
	if sess == nil {
		return ErrNotConnected
	}
	return sess.Send(data)
}

// BindHandshake adds a handler for TLS handshake results.
func (c *Client) BindHandshake(fn func(*session.Session, error)) {
	c.listener.Bind(session.EventHandshake, func(n session.Notification) { fn(n.Session, n.Err) })
}

// BindConnect adds a handler for connected sessions, including reconnects.
func (c *Client) BindConnect(fn func(*session.Session)) {
	c.listener.Bind(session.EventConnect, func(n session.Notification) { fn(n.Session) })
}

// BindRecv adds a handler for received bytes. data is only valid during
// the call.
func (c *Client) BindRecv(fn func(sess *session.Session, data []byte)) {
	c.listener.Bind(session.EventRecv, func(n session.Notification) { fn(n.Session, n.Data) })
}

// BindDisconnect adds a handler for connected sessions that stopped.
func (c *Client) BindDisconnect(fn func(*session.Session, error)) {
	c.listener.Bind(session.EventDisconnect, func(n session.Notification) { fn(n.Session, n.Err) })
}

// SetECS sets the factory for the connection context of each session.
func (c *Client) SetECS(fn func(*session.Session) *session.ECS) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.newECS = fn
}

// OnStateChange sets a callback for state changes.
func (c *Client) OnStateChange(fn func(oldState, newState State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStateChange = fn
}

// OnReconnecting sets a callback for reconnection attempts.
func (c *Client) OnReconnecting(fn func(attempt int, delay time.Duration)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnecting = fn
}

// connect runs one session to addr until it connected or failed.
func (c *Client) connect(ctx context.Context, addr string) (*session.Session, error) {
	raw := transport.NewDialStream(c.cfg.Network)
	var tr transport.Transport = raw
	if c.cfg.TLS != nil {
		tr = transport.NewTLSStream(raw)
	}
	tr = c.cfg.RateLimit.Wrap(tr)

	result := make(chan error, 1)
	var once sync.Once
	report := func(err error) {
		once.Do(func() { result <- err })
	}

	p := session.Params{
		Context:   c.ioc,
		Transport: tr,
		Role:      transport.RoleClient,
		Address:   addr,
		Config:    c.cfg.Session,
		Notifier: session.NotifierFunc(func(n session.Notification) {
			c.listener.Notify(n)
			switch n.Event {
			case session.EventConnect:
				report(nil)
			case session.EventDisconnect:
				c.connectionLost(n.Session)
			}
		}),
	}
	var sess *session.Session
	if c.cfg.TLS != nil {
		sess = session.NewSecure(p, c.cfg.TLS)
	} else {
		sess = session.New(p)
	}
	go func() {
		<-sess.Done()
		report(sess.LastError())
	}()

	c.mu.RLock()
	newECS := c.newECS
	c.mu.RUnlock()
	var ecs *session.ECS
	if newECS != nil {
		ecs = newECS(sess)
	}
	if err := sess.Start(ecs); err != nil {
		return nil, err
	}

	select {
	case err := <-result:
		if err != nil {
			return nil, err
		}
		return sess, nil
	case <-ctx.Done():
		sess.Stop()
		return nil, ctx.Err()
	}
}

// connectionLost runs on the session's context when a connected session
// stopped.
func (c *Client) connectionLost(sess *session.Session) {
	c.mu.Lock()
	if c.sess != sess || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.sess = nil
	next := StateDisconnected
	if c.cfg.Reconnect.Enable {
		next = StateReconnecting
	}
	c.state = next
	cb := c.onStateChange
	c.mu.Unlock()

	c.logger.Info("connection lost", "error", sess.LastError(), "reconnect", c.cfg.Reconnect.Enable)
	if cb != nil {
		cb(StateConnected, next)
	}
	if next == StateReconnecting {
		select {
		case c.reconnectCh <- struct{}{}:
		default:
		}
	}
}

func (c *Client) reconnectLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.reconnectCh:
			c.attemptReconnect()
		}
	}
}

// attemptReconnect re-dials with backoff until connected or stopped.
func (c *Client) attemptReconnect() {
	for {
		if c.State() != StateReconnecting {
			return
		}
		if c.backoff.Exhausted() {
			c.giveUp()
			return
		}

		delay := c.backoff.Next()
		c.mu.RLock()
		cb := c.onReconnecting
		addr := c.addr
		c.mu.RUnlock()
		if cb != nil {
			cb(c.backoff.Attempts(), delay)
		}
		c.logger.Debug("reconnecting", "attempt", c.backoff.Attempts(), "delay", delay)

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(delay):
		}
		if c.State() != StateReconnecting {
			return
		}

		ctx, cancel := context.WithTimeout(c.ctx, reconnectAttemptTimeout)
		sess, err := c.connect(ctx, addr)
		cancel()
		if err != nil {
			c.logger.Debug("reconnect failed", "error", err)
			continue
		}

		if !c.transition(StateReconnecting, StateConnected, sess) {
			sess.Stop()
			return
		}
		c.backoff.Reset()
		c.logger.Info("reconnected", "addr", addr)
		return
	}
}

// transition moves from one state to another and installs sess, unless
// the state changed meanwhile.
func (c *Client) transition(from, to State, sess *session.Session) bool {
	c.mu.Lock()
	if c.state != from {
		c.mu.Unlock()
		return false
	}
	c.state = to
	c.sess = sess
	cb := c.onStateChange
	c.mu.Unlock()

	if cb != nil {
		cb(from, to)
	}

	// The session may have stopped before it was installed.
	if !sess.IsStarted() {
		c.connectionLost(sess)
	}
	return true
}

// giveUp ends reconnecting after the configured number of attempts.
func (c *Client) giveUp() {
	c.mu.Lock()
	if c.state != StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	cb := c.onStateChange
	addr := c.addr
	c.mu.Unlock()

	c.logger.Warn("giving up reconnecting", "addr", addr, "attempts", c.backoff.Attempts())
	if cb != nil {
		cb(StateReconnecting, StateDisconnected)
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	old := c.state
	c.state = s
	cb := c.onStateChange
	c.mu.Unlock()

	if cb != nil && old != s {
		cb(old, s)
	}
}
