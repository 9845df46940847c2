package presence

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/mash-protocol/sessionkit/pkg/registry"
	"github.com/mash-protocol/sessionkit/pkg/session"
)

// DefaultTTL is the lifetime of a record that is no longer refreshed.
const DefaultTTL = 60 * time.Second

// stopTimeout bounds the final cleanup in Stop.
const stopTimeout = 5 * time.Second

// Record describes one live session.
type Record struct {
	ID          string
	Server      string
	Key         uint64
	Remote      string
	Local       string
	Secure      bool
	ConnectedAt time.Time
}

func recordOf(server string, key uint64, s *session.Session) Record {
	r := Record{
		ID:          s.TraceID(),
		Server:      server,
		Key:         key,
		Secure:      s.IsSecure(),
		ConnectedAt: s.ConnectTime(),
	}
	if a := s.RemoteAddr(); a != nil {
		r.Remote = a.String()
	}
	if a := s.LocalAddr(); a != nil {
		r.Local = a.String()
	}
	return r
}

func (r Record) fields() map[string]string {
	return map[string]string{
		"server":       r.Server,
		"key":          strconv.FormatUint(r.Key, 10),
		"remote":       r.Remote,
		"local":        r.Local,
		"secure":       strconv.FormatBool(r.Secure),
		"connected_at": r.ConnectedAt.UTC().Format(time.RFC3339Nano),
	}
}

func parseRecord(id string, f map[string]string) Record {
	r := Record{
		ID:     id,
		Server: f["server"],
		Remote: f["remote"],
		Local:  f["local"],
	}
	r.Key, _ = strconv.ParseUint(f["key"], 10, 64)
	r.Secure, _ = strconv.ParseBool(f["secure"])
	r.ConnectedAt, _ = time.Parse(time.RFC3339Nano, f["connected_at"])
	return r
}

type op struct {
	record Record
	remove bool
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithTTL sets the record lifetime. Records are refreshed at half of it.
func WithTTL(ttl time.Duration) Option {
	return func(m *Mirror) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithLogger sets the logger for backend failures.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mirror) {
		if l != nil {
			m.logger = l
		}
	}
}

// Mirror writes registry changes to a Backend. Observer callbacks only
// queue work; a background loop applies it.
type Mirror struct {
	backend Backend
	server  string
	ttl     time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	pending []op
	live    map[string]struct{}
	cancel  context.CancelFunc
	done    chan struct{}

	wake chan struct{}
}

// New creates a Mirror for the sessions of server.
func New(backend Backend, server string, opts ...Option) *Mirror {
	m := &Mirror{
		backend: backend,
		server:  server,
		ttl:     DefaultTTL,
		logger:  slog.Default(),
		live:    make(map[string]struct{}),
		wake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "presence", "server", server)
	return m
}

// OnInsert implements registry.Observer.
func (m *Mirror) OnInsert(key uint64, s *session.Session) {
	m.enqueue(op{record: recordOf(m.server, key, s)})
}

// OnRemove implements registry.Observer.
func (m *Mirror) OnRemove(key uint64, s *session.Session) {
	m.enqueue(op{record: Record{ID: s.TraceID(), Server: m.server, Key: key}, remove: true})
}

func (m *Mirror) enqueue(o op) {
	m.mu.Lock()
	m.pending = append(m.pending, o)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Start runs the write loop until ctx is done or Stop is called.
func (m *Mirror) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go m.run(ctx, done)
}

// Stop ends the loop, applies queued changes and deletes every record
// this Mirror wrote.
func (m *Mirror) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	ctx, cancelStop := context.WithTimeout(context.Background(), stopTimeout)
	defer cancelStop()

	m.flush(ctx)

	m.mu.Lock()
	ids := make([]string, 0, len(m.live))
	for id := range m.live {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.backend.Delete(ctx, m.server, id); err != nil {
			m.logger.Warn("presence delete failed", "trace_id", id, "error", err)
			continue
		}
		m.mu.Lock()
		delete(m.live, id)
		m.mu.Unlock()
	}
}

// Live returns the number of records currently written.
func (m *Mirror) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Sessions reads the records of this Mirror's server back from the
// backend. Expired records are skipped.
func (m *Mirror) Sessions(ctx context.Context) ([]Record, error) {
	return Sessions(ctx, m.backend, m.server)
}

// Sessions reads the records of server from b.
func Sessions(ctx context.Context, b Backend, server string) ([]Record, error) {
	ids, err := b.Members(ctx, server)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(ids))
	for _, id := range ids {
		fields, err := b.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, parseRecord(id, fields))
	}
	return records, nil
}

func (m *Mirror) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.ttl / 2)
	defer ticker.Stop()

	m.flush(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.wake:
			m.flush(ctx)
		case <-ticker.C:
			m.refresh(ctx)
		}
	}
}

func (m *Mirror) flush(ctx context.Context) {
	m.mu.Lock()
	ops := m.pending
	m.pending = nil
	m.mu.Unlock()

	for i, o := range ops {
		if ctx.Err() != nil {
			m.requeue(ops[i:])
			return
		}
		if o.remove {
			if err := m.backend.Delete(ctx, m.server, o.record.ID); err != nil {
				m.logger.Warn("presence delete failed", "trace_id", o.record.ID, "error", err)
			}
			m.mu.Lock()
			delete(m.live, o.record.ID)
			m.mu.Unlock()
			continue
		}
		if err := m.backend.Put(ctx, m.server, o.record.ID, o.record.fields(), m.ttl); err != nil {
			m.logger.Warn("presence write failed", "trace_id", o.record.ID, "error", err)
			continue
		}
		m.mu.Lock()
		m.live[o.record.ID] = struct{}{}
		m.mu.Unlock()
	}
}

// requeue puts unapplied ops back in front of anything queued since.
func (m *Mirror) requeue(ops []op) {
	m.mu.Lock()
	m.pending = append(append([]op(nil), ops...), m.pending...)
	m.mu.Unlock()
}

func (m *Mirror) refresh(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.live))
	for id := range m.live {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.backend.Touch(ctx, m.server, id, m.ttl); err != nil {
			m.logger.Warn("presence refresh failed", "trace_id", id, "error", err)
		}
	}
}

var _ registry.Observer[*session.Session] = (*Mirror)(nil)
