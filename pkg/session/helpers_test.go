package session

import (
	"bytes"
	"crypto/tls"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/sessionkit/pkg/ioctx"
	"github.com/mash-protocol/sessionkit/pkg/log"
	"github.com/mash-protocol/sessionkit/pkg/registry"
	"github.com/mash-protocol/sessionkit/pkg/transport"
	"github.com/mash-protocol/sessionkit/pkg/transport/transporttest"
)

const waitTimeout = 3 * time.Second

// recorder is a Notifier that journals every notification as "on_<event>".
type recorder struct {
	journal *transporttest.Journal

	mu    sync.Mutex
	notes []Notification

	onAccept     func(Notification)
	onConnect    func(Notification)
	onRecv       func(Notification)
	onDisconnect func(Notification)
}

func (r *recorder) Notify(n Notification) {
	r.journal.Record("on_" + strings.ToLower(n.Event.String()))

	saved := n
	saved.Data = bytes.Clone(n.Data)
	r.mu.Lock()
	r.notes = append(r.notes, saved)
	r.mu.Unlock()

	switch n.Event {
	case EventAccept:
		if r.onAccept != nil {
			r.onAccept(n)
		}
	case EventConnect:
		if r.onConnect != nil {
			r.onConnect(n)
		}
	case EventRecv:
		if r.onRecv != nil {
			r.onRecv(n)
		}
	case EventDisconnect:
		if r.onDisconnect != nil {
			r.onDisconnect(n)
		}
	}
}

func (r *recorder) of(ev Event) []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Notification
	for _, n := range r.notes {
		if n.Event == ev {
			out = append(out, n)
		}
	}
	return out
}

// journalRegistry journals successful joins as "join".
type journalRegistry struct {
	*registry.Registry[*Session]
	journal *transporttest.Journal
}

func (r *journalRegistry) TryInsert(key uint64, s *Session, onResult func(bool)) {
	r.Registry.TryInsert(key, s, func(ok bool) {
		if ok {
			r.journal.Record("join")
		}
		onResult(ok)
	})
}

// eventLog captures protocol events.
type eventLog struct {
	mu     sync.Mutex
	events []log.Event
}

func (l *eventLog) Log(ev log.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

// transitions returns the session state changes as "FROM>TO".
func (l *eventLog) transitions(s *Session) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []string
	for _, ev := range l.events {
		if ev.Key == s.Key() && ev.StateChange != nil && ev.StateChange.Entity == log.StateEntitySession && ev.Layer == log.LayerSession {
			out = append(out, ev.StateChange.OldState+">"+ev.StateChange.NewState)
		}
	}
	return out
}

type harness struct {
	t       *testing.T
	ctx     *ioctx.Context
	journal *transporttest.Journal
	reg     *journalRegistry
	rec     *recorder
	events  *eventLog
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	ctx := ioctx.New("test")
	ctx.Start()
	t.Cleanup(ctx.Stop)

	j := transporttest.NewJournal()
	return &harness{
		t:       t,
		ctx:     ctx,
		journal: j,
		reg:     &journalRegistry{Registry: registry.New[*Session](), journal: j},
		rec:     &recorder{journal: j},
		events:  &eventLog{},
	}
}

func (h *harness) params(tr transport.Transport, cfg Config) Params {
	cfg.ProtocolLogger = h.events
	return Params{
		Context:   h.ctx,
		Transport: tr,
		Registry:  h.reg,
		Notifier:  h.rec,
		Role:      transport.RoleServer,
		Config:    cfg,
	}
}

func (h *harness) plain(cfg Config) (*Session, *transporttest.Fake) {
	fake := transporttest.NewFake(h.journal)
	return New(h.params(fake, cfg)), fake
}

func (h *harness) secure(cfg Config) (*Session, *transporttest.Fake) {
	fake := transporttest.NewFake(h.journal)
	return NewSecure(h.params(fake, cfg), &tls.Config{}), fake
}

func waitConnected(t *testing.T, s *Session) {
	t.Helper()
	require.Eventually(t, s.IsStarted, waitTimeout, time.Millisecond, "session did not start")
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(waitTimeout):
		t.Fatalf("session did not stop, state %s", s.State())
	}
}

// waitEntry waits until entry appears in the journal.
func waitEntry(t *testing.T, j *transporttest.Journal, entry string) {
	t.Helper()
	require.Eventually(t, func() bool { return j.Has(entry) }, waitTimeout, time.Millisecond, "missing journal entry %q", entry)
}
