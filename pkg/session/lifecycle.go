package session

import (
	"time"

	"github.com/mash-protocol/sessionkit/pkg/chain"
	"github.com/mash-protocol/sessionkit/pkg/transport"
)

// Start begins the session's lifecycle with the given connection context.
// A nil ecs is treated as Plain(struct{}{}).
//
// A session runs once. Start returns ErrAlreadyStarted while the session is
// starting or running, and ErrClosed once its disconnect path has begun,
// including from within a disconnect handler. A duplicate Start is rejected
// without entering the disconnect path: the running session keeps going
// rather than being torn down with an "already started" error.
// All other failures are reported through the disconnect path.
func (s *Session) Start(ecs *ECS) error {
	if !s.ran.CompareAndSwap(false, true) {
		if s.terminating.Load() || s.finished.Load() {
			return ErrClosed
		}
		s.logger.Warn("duplicate start rejected", "state", s.State())
		s.traceError(layerOf(s), ErrAlreadyStarted, "start")
		return ErrAlreadyStarted
	}
	if !s.casState(StateStopped, StateStarting) {
		s.logger.Warn("duplicate start rejected", "state", s.State())
		s.traceError(layerOf(s), ErrAlreadyStarted, "start")
		return ErrAlreadyStarted
	}
	s.traceState(StateStopped, StateStarting, "start")

	if ecs == nil {
		ecs = Plain(struct{}{})
	}
	s.post(func() { s.begin(ecs) })
	return nil
}

// Stop requests disconnection with ErrOperationAborted. It never blocks and
// may be called from any goroutine, in any state.
func (s *Session) Stop() {
	s.StopChain(chain.Empty())
}

// StopChain is Stop with a completion chain, released once the session fully
// stopped. If the session is not running the chain is released right away.
func (s *Session) StopChain(c chain.Chain) {
	s.post(func() { s.doDisconnect(ErrOperationAborted, c) })
}

func (s *Session) begin(ecs *ECS) {
	s.ecs = ecs

	if err := s.doInit(); err != nil {
		s.doDisconnect(err, chain.Empty())
		return
	}

	if s.role == transport.RoleServer {
		s.fireAccept()
	}

	// The accept handler may have stopped the session or closed the transport.
	if s.State() != StateStarting || (!s.tr.IsOpen() && s.address == "") {
		s.doDisconnect(ErrOperationAborted, chain.Empty())
		return
	}

	s.baseStart()

	if f := s.ecs.forwarder; f != nil {
		f.Init(s)
	}

	c := chain.New(func() {
		s.logger.Debug("session running", "remote", addrString(s.RemoteAddr()))
	})
	if s.address != "" && !s.tr.IsOpen() {
		s.connect(c)
		return
	}
	s.applySocketOptions()
	s.stage.handleConnect(s, c)
}

func (s *Session) doInit() error {
	now := time.Now().UnixNano()
	s.connectTime.Store(now)
	s.lastAlive.Store(now)
	s.setLastError(nil)
	s.buf.Reset()

	if s.ecs.init != nil {
		s.ecs.init(s)
	}
	return s.stage.init(s)
}

// baseStart arms the connect timer.
func (s *Session) baseStart() {
	if s.cfg.ConnectTimeout > 0 {
		s.connectTimer = s.afterFunc(s.cfg.ConnectTimeout, s.handleConnectTimer)
	}
}

// connect dials the configured address for client sessions.
func (s *Session) connect(c chain.Chain) {
	s.tr.Connect(s.lifeCtx, s.address, func(err error) {
		s.post(func() {
			if s.State() != StateStarting {
				c.Release()
				return
			}
			if err != nil {
				s.doDisconnect(&TransportError{Op: "connect", Err: err}, c)
				return
			}
			s.applySocketOptions()
			s.stage.handleConnect(s, c)
		})
	})
}

func (s *Session) applySocketOptions() {
	if s.cfg.KeepAlive != nil {
		if ka, ok := transport.As[transport.KeepAliver](s.tr); ok {
			if err := ka.SetKeepAlive(*s.cfg.KeepAlive); err != nil {
				s.logger.Warn("failed to set keep-alive", "error", err)
			}
		}
	}
	if s.cfg.Linger.Enable {
		if l, ok := transport.As[transport.Lingerer](s.tr); ok {
			if err := l.SetLinger(s.cfg.Linger.Seconds); err != nil {
				s.logger.Warn("failed to set linger", "error", err)
			}
		}
	}
}

// doneConnect finishes the connect step, successfully or not.
func (s *Session) doneConnect(err error, c chain.Chain) {
	if err != nil {
		s.doDisconnect(err, c)
		return
	}

	if !s.casState(StateStarting, StateStarted) {
		s.doDisconnect(ErrOperationAborted, c)
		return
	}
	s.traceState(StateStarting, StateStarted, "connected")

	s.connectTimer.Stop()
	s.connectTimer = nil

	s.fireConnect()

	// The connect handler may have stopped the session.
	if s.State() != StateStarted {
		s.doDisconnect(ErrOperationAborted, c)
		return
	}
	s.joinSession(c)
}

func (s *Session) joinSession(c chain.Chain) {
	s.post(func() {
		if s.State() != StateStarted {
			s.doDisconnect(ErrOperationAborted, c)
			return
		}
		if s.reg == nil {
			s.startRecv(c)
			return
		}
		s.reg.TryInsert(s.key, s, func(inserted bool) {
			if !inserted {
				s.doDisconnect(ErrAddressInUse, c)
				return
			}
			s.traceJoin(true)
			s.startRecv(c)
		})
	})
}

func (s *Session) startRecv(c chain.Chain) {
	s.post(func() {
		defer c.Release()

		if s.State() != StateStarted {
			return
		}
		if !s.ecs.hookBuffer {
			s.buf.Reset()
		}
		s.armSilenceTimer(s.cfg.SilenceTimeout)
		s.postRecv()
	})
}

// doDisconnect enters the terminal path once. Later calls wait for the
// first to finish before releasing their chain.
func (s *Session) doDisconnect(err error, c chain.Chain) {
	for {
		st := s.State()
		if st == StateStarting || st == StateStarted {
			if !s.casState(st, StateStopping) {
				continue
			}
			s.traceState(st, StateStopping, reason(err))
			s.postDisconnect(err, c)
			return
		}
		break
	}

	if s.terminating.Load() && !s.finished.Load() {
		s.stopWaiters = append(s.stopWaiters, c)
		return
	}
	c.Release()
}

func (s *Session) postDisconnect(err error, c chain.Chain) {
	s.setLastError(err)
	s.terminating.Store(true)
	s.stopTimers()

	s.casState(StateStopping, StateStopped)
	s.traceState(StateStopping, StateStopped, reason(err))

	if !s.isAbort(err) {
		s.logger.Debug("session disconnecting", "error", err, "kind", Kind(err))
		s.traceError(layerOf(s), err, "disconnect")
	}

	s.stage.handleDisconnect(s, err, c)
}

// handleDisconnect closes the transport. Shutdown precedes cancel precedes
// close.
func (s *Session) handleDisconnect(err error, c chain.Chain) {
	if !(s.cfg.Linger.Enable && s.cfg.Linger.Seconds == 0) {
		if serr := s.tr.Shutdown(transport.ShutdownBoth); serr != nil {
			s.logger.Debug("transport shutdown failed", "error", serr)
		}
	}
	s.tr.Cancel()
	if cerr := s.tr.Close(); cerr != nil {
		s.logger.Debug("transport close failed", "error", cerr)
	}
	s.lifeCancel()

	s.doStop(err, c)
}

func (s *Session) doStop(err error, c chain.Chain) {
	s.post(func() { s.postStop(err, c) })
}

func (s *Session) postStop(err error, c chain.Chain) {
	s.baseStop(err)

	if s.connected {
		s.connected = false
		s.fireDisconnect(err)
	}

	if s.reg != nil && s.reg.Remove(s.key, s) {
		s.traceJoin(false)
	}

	s.finished.Store(true)
	close(s.done)

	waiters := s.stopWaiters
	s.stopWaiters = nil
	for i := range waiters {
		waiters[i].Release()
	}
	c.Release()
}

// baseStop releases what the session holds besides the transport.
func (s *Session) baseStop(err error) {
	s.stopTimers()
	s.drainSends(err)

	if s.ecs != nil && s.ecs.forwarder != nil {
		s.ecs.forwarder.Stop(s, err)
	}
}
