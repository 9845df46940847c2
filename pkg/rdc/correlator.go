package rdc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mash-protocol/sessionkit/pkg/session"
)

// DefaultCallTimeout bounds a Call whose context has no earlier deadline.
const DefaultCallTimeout = 30 * time.Second

// Correlator errors.
var (
	// ErrNotConnected is returned by Call before the session connected.
	ErrNotConnected = errors.New("rdc: session not connected")

	// ErrStopped fails calls pending when the session stopped.
	ErrStopped = errors.New("rdc: session stopped")

	// ErrCallTimeout is returned when no reply arrived in time.
	ErrCallTimeout = errors.New("rdc: call timed out")

	// ErrRemote wraps the error text returned by the remote handler.
	ErrRemote = errors.New("rdc: remote error")

	// ErrNoHandler is reported to callers of a peer without a handler.
	ErrNoHandler = errors.New("no handler")
)

// Handler serves an incoming request. ctx is canceled when the session stops.
type Handler func(ctx context.Context, s *session.Session, payload []byte) ([]byte, error)

// Option configures a Correlator.
type Option func(*Correlator)

// WithTimeout sets the default call timeout. Zero or negative disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Correlator) { c.timeout = d }
}

// WithMaxMessageSize sets the largest accepted envelope.
func WithMaxMessageSize(n uint32) Option {
	return func(c *Correlator) { c.maxSize = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Correlator) { c.logger = l }
}

type result struct {
	payload []byte
	err     error
}

// Correlator matches requests with replies on one session. It implements
// session.Forwarder and must not be shared between sessions.
type Correlator struct {
	handler Handler
	timeout time.Duration
	maxSize uint32
	logger  *slog.Logger
	log     *slog.Logger

	nextID atomic.Uint64

	mu      sync.Mutex
	sess    *session.Session
	ready   bool
	stopErr error
	pending map[uint64]chan result
	ctx     context.Context
	cancel  context.CancelFunc

	// Owned by the session's context.
	dec *decoder
}

// New creates a correlator. handler serves incoming requests and may be nil
// for a side that only calls.
func New(handler Handler, opts ...Option) *Correlator {
	c := &Correlator{
		handler: handler,
		timeout: DefaultCallTimeout,
		maxSize: DefaultMaxMessageSize,
		logger:  slog.Default(),
		pending: make(map[uint64]chan result),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.logger
	return c
}

// Init binds the correlator to s.
func (c *Correlator) Init(s *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sess = s
	c.ready = false
	c.stopErr = nil
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.dec = newDecoder(c.maxSize)
	c.log = c.logger.With("session_id", s.TraceID())
}

// Start enables calls.
func (c *Correlator) Start(*session.Session) {
	c.mu.Lock()
	c.ready = true
	c.mu.Unlock()
}

// HandleRecv feeds received bytes into the frame decoder and dispatches every
// complete envelope.
func (c *Correlator) HandleRecv(s *session.Session, data []byte) {
	c.dec.write(data)
	for {
		frame, err := c.dec.next()
		if err != nil {
			c.log.Warn("invalid frame, stopping session", "error", err)
			s.Stop()
			return
		}
		if frame == nil {
			return
		}

		env, err := decodeEnvelope(frame)
		if err != nil {
			c.log.Warn("invalid envelope, stopping session", "error", err)
			s.Stop()
			return
		}
		if env.Reply {
			c.deliver(env)
		} else {
			c.serve(s, env)
		}
	}
}

// Stop fails every pending call.
func (c *Correlator) Stop(_ *session.Session, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ready = false
	if err == nil {
		c.stopErr = ErrStopped
	} else {
		c.stopErr = fmt.Errorf("%w: %w", ErrStopped, err)
	}
	for id, ch := range c.pending {
		ch <- result{err: c.stopErr}
		delete(c.pending, id)
	}
	if c.cancel != nil {
		c.cancel()
	}
}

// Pending returns the number of calls waiting for a reply.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Call sends payload as a request and waits for the reply.
func (c *Correlator) Call(ctx context.Context, payload []byte) ([]byte, error) {
	c.mu.Lock()
	if !c.ready {
		err := c.stopErr
		c.mu.Unlock()
		if err == nil {
			err = ErrNotConnected
		}
		return nil, err
	}
	id := c.nextID.Add(1)
	ch := make(chan result, 1)
	c.pending[id] = ch
	s := c.sess
	timeout := c.timeout
	c.mu.Unlock()

	defer c.forget(id)

	frame, err := encodeEnvelope(&Envelope{ID: id, Payload: payload})
	if err != nil {
		return nil, err
	}
	if size := len(frame) - LengthPrefixSize; uint32(size) > c.maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, c.maxSize)
	}

	s.AsyncSend(frame, func(_ int, err error) {
		if err != nil {
			c.fail(id, err)
		}
	})

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-expired:
		return nil, ErrCallTimeout
	case res := <-ch:
		return res.payload, res.err
	}
}

func (c *Correlator) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Correlator) fail(id uint64, err error) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()

	if ok {
		ch <- result{err: err}
	}
}

func (c *Correlator) deliver(env *Envelope) {
	c.mu.Lock()
	ch, ok := c.pending[env.ID]
	delete(c.pending, env.ID)
	c.mu.Unlock()

	if !ok {
		c.log.Debug("unexpected reply", "id", env.ID)
		return
	}

	res := result{payload: env.Payload}
	if env.Error != "" {
		res = result{err: fmt.Errorf("%w: %s", ErrRemote, env.Error)}
	}
	ch <- res
}

// serve runs the handler on its own goroutine and sends the reply.
func (c *Correlator) serve(s *session.Session, env *Envelope) {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()

	go func() {
		reply := &Envelope{ID: env.ID, Reply: true}
		if c.handler == nil {
			reply.Error = ErrNoHandler.Error()
		} else if out, err := c.handler(ctx, s, env.Payload); err != nil {
			reply.Error = err.Error()
		} else {
			reply.Payload = out
		}

		frame, err := encodeEnvelope(reply)
		if err != nil {
			c.log.Warn("failed to encode reply", "id", env.ID, "error", err)
			return
		}
		s.AsyncSend(frame, nil)
	}()
}

var _ session.Forwarder = (*Correlator)(nil)
