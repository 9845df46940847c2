package session

import (
	"errors"
	"net"
	"time"

	"github.com/mash-protocol/sessionkit/pkg/log"
	"github.com/mash-protocol/sessionkit/pkg/transport"
)

func (s *Session) notify(n Notification) {
	s.traceNotify(n.Event, n.Err)
	if s.notifier != nil {
		s.notifier.Notify(n)
	}
}

func (s *Session) fireAccept() {
	s.notify(Notification{Event: EventAccept, Session: s})
}

func (s *Session) fireHandshake(err error) {
	s.notify(Notification{Event: EventHandshake, Session: s, Err: err})
}

func (s *Session) fireConnect() {
	s.connected = true
	if f := s.ecs.forwarder; f != nil {
		f.Start(s)
	}
	s.notify(Notification{Event: EventConnect, Session: s})
}

func (s *Session) fireRecv(data []byte) {
	s.notify(Notification{Event: EventRecv, Session: s, Data: data})
	if f := s.ecs.forwarder; f != nil && s.State() == StateStarted {
		f.HandleRecv(s, data)
	}
}

func (s *Session) fireDisconnect(err error) {
	s.notify(Notification{Event: EventDisconnect, Session: s, Err: err})
}

// event fills the fields every protocol event of this session shares.
func (s *Session) event(layer log.Layer, cat log.Category) log.Event {
	role := log.RoleServer
	if s.role == transport.RoleClient {
		role = log.RoleClient
	}
	return log.Event{
		Timestamp:  time.Now(),
		SessionID:  s.traceID,
		Key:        s.key,
		Layer:      layer,
		Category:   cat,
		LocalRole:  role,
		RemoteAddr: addrString(s.RemoteAddr()),
	}
}

func (s *Session) traceState(from, to State, why string) {
	ev := s.event(log.LayerSession, log.CategoryState)
	ev.StateChange = &log.StateChangeEvent{
		Entity:   log.StateEntitySession,
		OldState: from.String(),
		NewState: to.String(),
		Reason:   why,
	}
	s.plog.Log(ev)
}

func (s *Session) traceJoin(joined bool) {
	ev := s.event(log.LayerRegistry, log.CategoryState)
	ev.StateChange = &log.StateChangeEvent{Entity: log.StateEntityRegistry, NewState: "JOINED"}
	if !joined {
		ev.StateChange.OldState = "JOINED"
		ev.StateChange.NewState = "LEFT"
	}
	s.plog.Log(ev)
}

func (s *Session) traceNotify(e Event, err error) {
	ev := s.event(log.LayerSession, log.CategoryNotify)
	ev.Notify = &log.NotifyEvent{Kind: e.String()}
	if err != nil {
		ev.Notify.Error = err.Error()
	}
	s.plog.Log(ev)
}

func (s *Session) traceData(dir log.Direction, p []byte) {
	ev := s.event(log.LayerTransport, log.CategoryData)
	ev.Direction = dir
	ev.Data = log.NewDataEvent(p)
	s.plog.Log(ev)
}

func (s *Session) traceError(layer log.Layer, err error, op string) {
	ev := s.event(layer, log.CategoryError)
	ev.Error = &log.ErrorEventData{
		Layer:   layer,
		Message: err.Error(),
		Kind:    Kind(err).String(),
		Context: op,
	}
	s.plog.Log(ev)
}

func (s *Session) traceTLSShutdown(err error) {
	ev := s.event(log.LayerSecure, log.CategoryState)
	ev.StateChange = &log.StateChangeEvent{
		Entity:   log.StateEntitySession,
		OldState: "TLS_OPEN",
		NewState: "TLS_CLOSED",
	}
	if err != nil {
		ev.StateChange.Reason = err.Error()
	}
	s.plog.Log(ev)
}

// layerOf returns the layer errors of s are reported at.
func layerOf(s *Session) log.Layer {
	if s.IsSecure() {
		return log.LayerSecure
	}
	return log.LayerSession
}

func reason(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrOperationAborted) {
		return "stop"
	}
	return err.Error()
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
