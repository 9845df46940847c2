package session

import "sync"

// Event identifies a notification delivered to the session's Notifier.
type Event int

const (
	// EventAccept fires on the accepting side after init, before connect.
	EventAccept Event = iota

	// EventHandshake fires on secure sessions once the handshake finished,
	// successfully or not.
	EventHandshake

	// EventConnect fires when the session reached STARTED.
	EventConnect

	// EventRecv fires for every chunk of received bytes.
	EventRecv

	// EventDisconnect fires once when a connected session stopped.
	EventDisconnect
)

// String returns the event name.
func (e Event) String() string {
	switch e {
	case EventAccept:
		return "ACCEPT"
	case EventHandshake:
		return "HANDSHAKE"
	case EventConnect:
		return "CONNECT"
	case EventRecv:
		return "RECV"
	case EventDisconnect:
		return "DISCONNECT"
	default:
		return "UNKNOWN"
	}
}

// Notification is delivered to a Notifier on the session's owning context.
type Notification struct {
	Event   Event
	Session *Session

	// Data holds the received bytes for EventRecv. It is only valid for the
	// duration of the callback.
	Data []byte

	// Err is the handshake result for EventHandshake and the terminal error
	// for EventDisconnect.
	Err error
}

// Notifier receives session notifications. Notify runs on the session's
// owning context and may call Stop on the session.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notification) {
	f(n)
}

// Listener dispatches notifications to handlers bound per event.
type Listener struct {
	mu       sync.RWMutex
	handlers map[Event][]func(Notification)
}

// NewListener creates a listener with no handlers.
func NewListener() *Listener {
	return &Listener{handlers: make(map[Event][]func(Notification))}
}

// Bind adds a handler for ev. Handlers run in bind order.
func (l *Listener) Bind(ev Event, fn func(Notification)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[ev] = append(l.handlers[ev], fn)
}

// Notify calls the handlers bound to n.Event.
func (l *Listener) Notify(n Notification) {
	l.mu.RLock()
	hs := l.handlers[n.Event]
	l.mu.RUnlock()

	for _, h := range hs {
		h(n)
	}
}

// Compile-time interface satisfaction checks.
var (
	_ Notifier = (*Listener)(nil)
	_ Notifier = NotifierFunc(nil)
)
