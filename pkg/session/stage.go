package session

import (
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/mash-protocol/sessionkit/pkg/chain"
	"github.com/mash-protocol/sessionkit/pkg/transport"
)

// stage is the part of the lifecycle that differs between plain and secure
// sessions. Every method runs on the owning context.
type stage interface {
	// init runs after the ECS init hook.
	init(s *Session) error

	// handleConnect runs once the transport is connected and must end in
	// doneConnect or doDisconnect.
	handleConnect(s *Session, c chain.Chain)

	// handleDisconnect runs after the session reached STOPPED and must end
	// in Session.handleDisconnect.
	handleDisconnect(s *Session, err error, c chain.Chain)
}

type plainStage struct{}

func (plainStage) init(*Session) error { return nil }

func (plainStage) handleConnect(s *Session, c chain.Chain) {
	s.doneConnect(nil, c)
}

func (plainStage) handleDisconnect(s *Session, err error, c chain.Chain) {
	s.handleDisconnect(err, c)
}

// errNoHandshaker is reported when a secure session runs on a transport
// without a TLS layer.
var errNoHandshaker = errors.New("transport does not support TLS")

type secureStage struct {
	config *tls.Config

	// Owned by the session's context.
	handshaken bool
}

func (st *secureStage) init(s *Session) error {
	h, ok := transport.As[transport.Handshaker](s.tr)
	if !ok {
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, errNoHandshaker)
	}
	if err := h.Attach(st.config, s.role); err != nil {
		return fmt.Errorf("%w: attach: %w", ErrHandshakeFailed, err)
	}
	st.handshaken = false
	return nil
}

func (st *secureStage) handleConnect(s *Session, c chain.Chain) {
	s.post(func() {
		h, _ := transport.As[transport.Handshaker](s.tr)
		h.Handshake(s.lifeCtx, func(err error) {
			s.post(func() { st.handleHandshake(s, err, c) })
		})
	})
}

func (st *secureStage) handleHandshake(s *Session, err error, c chain.Chain) {
	// A timeout or stop already took the session down.
	if s.State() != StateStarting {
		c.Release()
		return
	}

	if err != nil {
		err = fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	} else {
		st.handshaken = true
	}
	s.setLastError(err)
	s.fireHandshake(err)

	s.doneConnect(err, c)
}

// handleDisconnect runs the TLS shutdown first and continues with the plain
// disconnect once it completed or ShutdownTimeout expired.
func (st *secureStage) handleDisconnect(s *Session, err error, c chain.Chain) {
	if !st.handshaken {
		s.handleDisconnect(err, c)
		return
	}
	st.handshaken = false

	outer := c.Move()
	tail := chain.New(func() { s.handleDisconnect(err, outer) })

	timer := s.afterFunc(s.cfg.ShutdownTimeout, func() {
		s.logger.Warn("tls shutdown timed out", "timeout", s.cfg.ShutdownTimeout)
		s.tr.Cancel()
		tail.Release()
	})

	h, _ := transport.As[transport.Handshaker](s.tr)
	h.ShutdownTLS(func(serr error) {
		s.post(func() {
			timer.Stop()
			if serr != nil {
				s.logger.Debug("tls shutdown failed", "error", serr)
			}
			s.traceTLSShutdown(serr)
			tail.Release()
		})
	})
}
