package session

import (
	"time"

	"github.com/mash-protocol/sessionkit/pkg/chain"
)

func (s *Session) armSilenceTimer(d time.Duration) {
	if s.cfg.SilenceTimeout <= 0 {
		return
	}
	s.silenceTimer.Stop()
	s.silenceTimer = s.afterFunc(d, s.handleSilenceTimer)
}

// handleSilenceTimer disconnects an idle session, or re-arms the timer for
// the remaining time when there was traffic since it was armed.
func (s *Session) handleSilenceTimer() {
	if s.State() != StateStarted {
		return
	}

	idle := time.Since(s.LastAlive())
	if idle >= s.cfg.SilenceTimeout {
		s.logger.Debug("silence timeout", "idle", idle)
		s.doDisconnect(ErrSilenceTimeout, chain.Empty())
		return
	}
	s.armSilenceTimer(s.cfg.SilenceTimeout - idle)
}

func (s *Session) handleConnectTimer() {
	if s.State() != StateStarting {
		return
	}
	s.logger.Debug("connect timeout", "timeout", s.cfg.ConnectTimeout)
	s.doDisconnect(ErrConnectTimeout, chain.Empty())
}

func (s *Session) stopTimers() {
	s.silenceTimer.Stop()
	s.silenceTimer = nil
	s.connectTimer.Stop()
	s.connectTimer = nil
}
