package session

// Initializer is implemented by connection contexts that want to run code
// when a session initializes, before any notification fires.
type Initializer interface {
	Init(s *Session)
}

// Forwarder consumes the session's receive stream, typically to correlate
// requests with responses. All methods run on the session's owning context.
type Forwarder interface {
	// Init runs when the session starts, before connecting.
	Init(s *Session)

	// Start runs when the session connected.
	Start(s *Session)

	// HandleRecv runs for every chunk of received bytes, after the recv
	// notification. data is only valid for the duration of the call.
	HandleRecv(s *Session, data []byte)

	// Stop runs once when the session stopped.
	Stop(s *Session, err error)
}

// ECS is the per-connection context handed to Start. It carries an opaque
// user value plus the optional capabilities the session uses.
type ECS struct {
	value      any
	init       func(*Session)
	forwarder  Forwarder
	hookBuffer bool
}

// Plain wraps a value without an init hook.
func Plain[C any](value C) *ECS {
	return &ECS{value: value}
}

// WithInit wraps a value whose Init method runs when the session initializes.
func WithInit[C Initializer](value C) *ECS {
	return &ECS{value: value, init: value.Init}
}

// WithForwarder attaches a receive forwarder and returns e.
func (e *ECS) WithForwarder(f Forwarder) *ECS {
	e.forwarder = f
	return e
}

// WithHookBuffer puts the receive buffer in hook mode and returns e. In hook
// mode the session never discards received bytes on its own; the recv
// handler consumes what it used through Session.Buffer.
func (e *ECS) WithHookBuffer() *ECS {
	e.hookBuffer = true
	return e
}

// Value returns the wrapped value.
func (e *ECS) Value() any {
	return e.value
}

// Forwarder returns the attached forwarder, or nil.
func (e *ECS) Forwarder() Forwarder {
	return e.forwarder
}

// HookBuffer reports whether the receive buffer is in hook mode.
func (e *ECS) HookBuffer() bool {
	return e.hookBuffer
}

// Value returns the session's ECS value as C.
func Value[C any](s *Session) (C, bool) {
	var zero C
	if s.ecs == nil {
		return zero, false
	}
	v, ok := s.ecs.value.(C)
	return v, ok
}
