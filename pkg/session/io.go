package session

import (
	"bytes"

	"github.com/mash-protocol/sessionkit/pkg/chain"
	"github.com/mash-protocol/sessionkit/pkg/log"
)

func (s *Session) postRecv() {
	if s.State() != StateStarted {
		return
	}

	p := s.buf.prepare()
	if p == nil {
		s.doDisconnect(ErrBufferFull, chain.Empty())
		return
	}

	s.tr.ReadSome(p, func(n int, err error) {
		s.post(func() { s.handleRecv(n, err) })
	})
}

func (s *Session) handleRecv(n int, err error) {
	if s.State() != StateStarted {
		return
	}

	// A read may return data together with an error, as TLS does when
	// close_notify follows the last record. The data is delivered first.
	if n > 0 {
		s.buf.commit(n)
		s.UpdateAliveTime()
		s.traceData(log.DirectionIn, s.buf.Bytes()[s.buf.Len()-n:])

		s.fireRecv(s.buf.Bytes())

		// The recv handler may have stopped the session.
		if s.State() != StateStarted {
			return
		}
		if !s.ecs.hookBuffer {
			s.buf.Reset()
		}
	}

	if err != nil {
		s.doDisconnect(&TransportError{Op: "read", Err: err}, chain.Empty())
		return
	}
	s.postRecv()
}

type sendRequest struct {
	data []byte
	sent int
	done func(n int, err error)
}

func (r *sendRequest) complete(err error) {
	if r.done != nil {
		r.done(r.sent, err)
	}
}

// Send queues data for writing. Writes happen in call order. The data is
// copied, so the caller may reuse it.
func (s *Session) Send(data []byte) error {
	if s.State() != StateStarted {
		return ErrNotStarted
	}
	s.AsyncSend(data, nil)
	return nil
}

// AsyncSend queues data for writing and calls done, on the owning context,
// once it was fully written or failed. done may be nil.
func (s *Session) AsyncSend(data []byte, done func(n int, err error)) {
	req := &sendRequest{data: bytes.Clone(data), done: done}
	s.post(func() { s.enqueueSend(req) })
}

func (s *Session) enqueueSend(req *sendRequest) {
	if s.State() != StateStarted {
		req.complete(ErrNotStarted)
		return
	}
	if len(req.data) == 0 {
		req.complete(nil)
		return
	}

	s.sendq.Add(req)
	if !s.sending {
		s.writeNext()
	}
}

func (s *Session) writeNext() {
	if s.sendq.Length() == 0 {
		s.sending = false
		return
	}
	s.sending = true

	req := s.sendq.Peek().(*sendRequest)
	s.tr.WriteSome(req.data[req.sent:], func(n int, err error) {
		s.post(func() { s.handleWrite(req, n, err) })
	})
}

func (s *Session) handleWrite(req *sendRequest, n int, err error) {
	// Requests still queued after stop are completed by drainSends.
	if s.State() != StateStarted {
		return
	}

	req.sent += n
	if err != nil {
		s.sendq.Remove()
		s.sending = false
		werr := &TransportError{Op: "write", Err: err}
		req.complete(werr)
		s.doDisconnect(werr, chain.Empty())
		return
	}
	if req.sent < len(req.data) {
		s.writeNext()
		return
	}

	s.sendq.Remove()
	s.UpdateAliveTime()
	s.traceData(log.DirectionOut, req.data)
	req.complete(nil)
	s.writeNext()
}

// drainSends fails every queued send with the terminal error.
func (s *Session) drainSends(err error) {
	if err == nil {
		err = ErrOperationAborted
	}
	for s.sendq.Length() > 0 {
		req := s.sendq.Remove().(*sendRequest)
		req.complete(err)
	}
	s.sending = false
}
