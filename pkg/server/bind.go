package server

import "github.com/mash-protocol/sessionkit/pkg/session"

// Handlers run on the session's execution context and must not block.
// Bind before Start; binding while sessions run is safe but only affects
// later notifications.

// BindAccept adds a handler for accepted sessions, before connecting.
func (s *Server) BindAccept(fn func(*session.Session)) {
	s.listener.Bind(session.EventAccept, func(n session.Notification) { fn(n.Session) })
}

// BindHandshake adds a handler for TLS handshake results.
func (s *Server) BindHandshake(fn func(*session.Session, error)) {
	s.listener.Bind(session.EventHandshake, func(n session.Notification) { fn(n.Session, n.Err) })
}

// BindConnect adds a handler for sessions that reached STARTED.
func (s *Server) BindConnect(fn func(*session.Session)) {
	s.listener.Bind(session.EventConnect, func(n session.Notification) { fn(n.Session) })
}

// BindRecv adds a handler for received bytes. data is only valid during
// the call.
func (s *Server) BindRecv(fn func(sess *session.Session, data []byte)) {
	s.listener.Bind(session.EventRecv, func(n session.Notification) { fn(n.Session, n.Data) })
}

// BindDisconnect adds a handler for connected sessions that stopped.
func (s *Server) BindDisconnect(fn func(*session.Session, error)) {
	s.listener.Bind(session.EventDisconnect, func(n session.Notification) { fn(n.Session, n.Err) })
}

// BindInit adds a handler run at the beginning of Start.
func (s *Server) BindInit(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onInit = append(s.onInit, fn)
}

// BindStart adds a handler run once Start finished, with its error.
func (s *Server) BindStart(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStart = append(s.onStart, fn)
}

// BindStop adds a handler run once Stop finished.
func (s *Server) BindStop(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStop = append(s.onStop, fn)
}

// SetECS sets the factory for the connection context passed to each
// session's Start. Without one sessions start with a plain empty context.
func (s *Server) SetECS(fn func(*session.Session) *session.ECS) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newECS = fn
}
