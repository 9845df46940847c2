// Package rdc implements remote data calls: request/response correlation on
// top of a session's byte stream.
//
// A Correlator is installed as the session's receive forwarder:
//
//	c := rdc.New(handler)
//	s.Start(session.Plain(state).WithForwarder(c))
//
// Messages are CBOR envelopes carried in length-prefixed frames:
//
//	+----------------+------------------+
//	| Length (4B BE) | CBOR envelope    |
//	+----------------+------------------+
//
// Call sends a request and blocks until the matching reply arrives, the call
// times out, or the session stops. Incoming requests are passed to the
// Handler and its result is sent back as the reply.
package rdc
