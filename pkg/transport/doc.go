// Package transport provides the byte-stream transports sessions run on.
//
// A Transport exposes asynchronous primitives: every blocking operation
// takes a completion callback that is invoked exactly once, on a goroutine
// other than the caller's. The session layer posts those completions back
// onto its own execution context.
//
// # Layers
//
//	┌────────────────────────────────┐
//	│        Session / ECS           │
//	├────────────────────────────────┤
//	│   RateLimited (optional)       │
//	├────────────────────────────────┤
//	│   TLS 1.3 (TLSStream)          │
//	├────────────────────────────────┤
//	│   TCP / WebSocket (Stream)     │
//	└────────────────────────────────┘
//
// Optional capabilities are expressed as separate interfaces (Handshaker,
// KeepAliver, Lingerer) and discovered with As, which looks through
// decorators that implement Wrapper.
//
// # Cancellation
//
// Cancel aborts every pending operation on the transport. Aborted
// completions report an error matching ErrCanceled. Cancel does not close
// the transport; Close releases the underlying connection.
package transport
