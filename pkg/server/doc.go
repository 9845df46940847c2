// Package server accepts connections and runs a session for each of them.
//
// Accepted connections are spread across a pool of execution contexts.
// Sessions that reach STARTED join the server's registry, which backs
// Count, Find and ForEach. Stop closes the listener, stops every session
// and returns once all of them finished.
//
// With Config.TLS set every session runs the TLS stage; the handshake
// happens inside the session lifecycle and is covered by the connect
// timeout.
package server
