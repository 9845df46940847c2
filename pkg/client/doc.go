// Package client runs the dialing side of a session.
//
// Start dials the address inside the session lifecycle, so the connect and
// TLS handshake are both bounded by the session's connect timeout, and
// returns once the session reached STARTED or failed.
//
// With reconnection enabled a lost connection is re-dialed in the
// background with exponential backoff and jitter:
//
//	1s -> 2s -> 4s -> 8s -> 16s -> 32s -> 60s (max)
//
// The backoff resets after every successful connect.
package client
