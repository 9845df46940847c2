// Package session implements the per-connection lifecycle engine.
//
// A Session owns one transport and drives it through a fixed state machine:
//
//	STOPPED -> STARTING -> STARTED -> STOPPING -> STOPPED
//
// All state mutations run on the session's owning ioctx.Context. Methods
// that may be called from other goroutines (Stop, Send, AsyncSend) only post
// work to that context and never block.
//
// # Start
//
// Start runs the init hook of the ECS, fires the accept notification,
// re-checks that the session is still starting and the transport is still
// open, arms the connect timer and hands off to the connect step. Once
// connected the session fires the connect notification, joins the registry
// and posts its first read.
//
// # Stop
//
// Every terminal condition (read or write failure, silence or connect
// timeout, registry rejection, explicit Stop) enters one disconnect path that
// runs at most once per session. It shuts the transport down, cancels
// pending operations, closes the transport, fires the disconnect
// notification and removes the session from the registry. Done is closed
// when the path has finished.
//
// # Secure sessions
//
// NewSecure returns a session with a TLS stage that hooks three points of
// the same state machine: it attaches TLS after init, runs the handshake
// after the transport connected, and performs the TLS shutdown before the
// plain disconnect steps. The shutdown is bounded by Config.ShutdownTimeout.
package session
