package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mash-protocol/sessionkit/pkg/client"
	"github.com/mash-protocol/sessionkit/pkg/config"
	"github.com/mash-protocol/sessionkit/pkg/discovery"
	"github.com/mash-protocol/sessionkit/pkg/log"
	"github.com/mash-protocol/sessionkit/pkg/presence"
	"github.com/mash-protocol/sessionkit/pkg/rdc"
	"github.com/mash-protocol/sessionkit/pkg/server"
	"github.com/mash-protocol/sessionkit/pkg/session"
)

// Mode selects what the daemon does with received bytes.
type Mode string

const (
	// ModeEcho writes every received chunk back to its sender.
	ModeEcho Mode = "echo"

	// ModeRelay forwards server-side bytes to the upstream connection and
	// broadcasts upstream bytes to every server-side session.
	ModeRelay Mode = "relay"

	// ModeRDC answers framed remote data calls with the request payload.
	ModeRDC Mode = "rdc"
)

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case ModeEcho, ModeRelay, ModeRDC:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q (must be echo, relay, or rdc)", s)
	}
}

// Stats counts daemon traffic.
type Stats struct {
	Accepted     atomic.Int64
	Disconnected atomic.Int64
	BytesIn      atomic.Int64
	BytesOut     atomic.Int64
	Calls        atomic.Int64
}

// Daemon wires the server, the optional upstream client and the optional
// WebSocket, discovery and presence components together.
type Daemon struct {
	cfg    config.Config
	mode   Mode
	logger *slog.Logger
	plog   log.Logger

	srv      *server.Server
	upstream *client.Client
	http     *http.Server
	wsLn     net.Listener
	adv      *discovery.Advertiser
	mirror   *presence.Mirror
	redis    *presence.RedisBackend

	stats Stats

	mu      sync.Mutex
	running bool
}

// NewDaemon builds a daemon from cfg. Nothing listens until Start.
func NewDaemon(cfg config.Config, mode Mode, logger *slog.Logger, plog log.Logger) (*Daemon, error) {
	if mode == ModeRelay && cfg.Client.Address == "" {
		return nil, errors.New("relay mode requires client.address")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if plog == nil {
		plog = log.NoopLogger{}
	}

	serverTLS, err := cfg.ServerTLS()
	if err != nil {
		return nil, fmt.Errorf("server tls: %w", err)
	}

	scfg := cfg.Server
	scfg.TLS = serverTLS
	scfg.Logger = logger
	scfg.ProtocolLogger = plog

	d := &Daemon{
		cfg:    cfg,
		mode:   mode,
		logger: logger,
		plog:   plog,
		srv:    server.New(scfg),
	}
	d.bindServer()

	if cfg.Client.Address != "" {
		clientTLS, err := cfg.ClientTLS()
		if err != nil {
			return nil, fmt.Errorf("client tls: %w", err)
		}
		ccfg := cfg.Client.Config
		ccfg.TLS = clientTLS
		ccfg.Logger = logger
		ccfg.ProtocolLogger = plog
		d.upstream = client.New(ccfg)
		d.bindUpstream()
	}

	if cfg.Discovery.Enable {
		d.adv = discovery.NewAdvertiser(discovery.DefaultConfig())
	}
	return d, nil
}

func (d *Daemon) bindServer() {
	d.srv.BindAccept(func(*session.Session) { d.stats.Accepted.Add(1) })
	d.srv.BindConnect(func(s *session.Session) {
		d.logger.Info("session connected", "key", s.Key(), "remote", s.RemoteAddr(), "trace_id", s.TraceID())
	})
	d.srv.BindDisconnect(func(s *session.Session, err error) {
		d.stats.Disconnected.Add(1)
		d.logger.Info("session disconnected", "key", s.Key(), "kind", session.Kind(err), "error", err)
	})
	d.srv.BindHandshake(func(s *session.Session, err error) {
		if err != nil {
			d.logger.Warn("handshake failed", "remote", s.RemoteAddr(), "error", err)
		}
	})

	switch d.mode {
	case ModeEcho:
		d.srv.BindRecv(func(s *session.Session, data []byte) {
			d.stats.BytesIn.Add(int64(len(data)))
			s.AsyncSend(data, d.countOut)
		})
	case ModeRelay:
		d.srv.BindRecv(func(_ *session.Session, data []byte) {
			d.stats.BytesIn.Add(int64(len(data)))
			if err := d.upstream.Send(data); err != nil {
				d.logger.Debug("relay upstream dropped", "bytes", len(data), "error", err)
			}
		})
	case ModeRDC:
		d.srv.SetECS(func(*session.Session) *session.ECS {
			return session.Plain(struct{}{}).WithForwarder(rdc.New(d.answer, rdc.WithLogger(d.logger)))
		})
	}
}

func (d *Daemon) bindUpstream() {
	d.upstream.BindConnect(func(s *session.Session) {
		d.logger.Info("upstream connected", "remote", s.RemoteAddr())
	})
	d.upstream.BindDisconnect(func(_ *session.Session, err error) {
		d.logger.Warn("upstream disconnected", "error", err)
	})
	d.upstream.OnReconnecting(func(attempt int, delay time.Duration) {
		d.logger.Info("upstream reconnecting", "attempt", attempt, "delay", delay)
	})
	if d.mode == ModeRelay {
		d.upstream.BindRecv(func(_ *session.Session, data []byte) {
			d.Broadcast(data)
		})
	}
}

func (d *Daemon) answer(_ context.Context, _ *session.Session, payload []byte) ([]byte, error) {
	d.stats.Calls.Add(1)
	d.stats.BytesIn.Add(int64(len(payload)))
	d.stats.BytesOut.Add(int64(len(payload)))
	return payload, nil
}

func (d *Daemon) countOut(n int, err error) {
	if err == nil {
		d.stats.BytesOut.Add(int64(n))
	}
}

// Start brings every configured component up. On failure the components
// already started are stopped again.
func (d *Daemon) Start(ctx context.Context) (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return server.ErrAlreadyRunning
	}

	defer func() {
		if err != nil {
			d.stopLocked()
		}
	}()

	if d.cfg.Presence.Enable {
		d.redis, err = presence.NewRedis(ctx, presence.RedisConfig{
			Addr:      d.cfg.Presence.RedisAddr,
			KeyPrefix: d.cfg.Presence.KeyPrefix,
		})
		if err != nil {
			return fmt.Errorf("presence: %w", err)
		}
		d.mirror = presence.New(d.redis, d.srv.ID(),
			presence.WithTTL(d.cfg.Presence.TTL), presence.WithLogger(d.logger))
		d.srv.Observe(d.mirror)
		d.mirror.Start(context.WithoutCancel(ctx))
	}

	if err = d.srv.Start(ctx); err != nil {
		return err
	}

	if d.upstream != nil {
		if err = d.upstream.Start(ctx, d.cfg.Client.Address); err != nil {
			return fmt.Errorf("upstream: %w", err)
		}
	}

	if d.cfg.WebSocket.Address != "" {
		if err = d.startWebSocket(ctx); err != nil {
			return err
		}
	}

	if d.adv != nil {
		if err = d.advertise(ctx); err != nil {
			return err
		}
	}

	d.running = true
	return nil
}

func (d *Daemon) startWebSocket(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", d.cfg.WebSocket.Address)
	if err != nil {
		return fmt.Errorf("websocket listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle(d.cfg.WebSocket.Path, d.srv.WebSocketHandler(nil))
	d.wsLn = ln
	d.http = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := d.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("websocket server failed", "error", err)
		}
	}()
	d.logger.Info("websocket listening", "addr", ln.Addr().String(), "path", d.cfg.WebSocket.Path)
	return nil
}

func (d *Daemon) advertise(ctx context.Context) error {
	_, portStr, err := net.SplitHostPort(d.srv.Addr().String())
	if err != nil {
		return err
	}
	port, _ := strconv.Atoi(portStr)

	txt := map[string]string{discovery.TXTKeyID: d.srv.ID()}
	for k, v := range d.cfg.Discovery.TXT {
		txt[k] = v
	}
	if d.cfg.TLS.Cert != "" {
		txt[discovery.TXTKeyTLS] = ""
	}

	return d.adv.Advertise(ctx, discovery.ServiceInfo{
		Instance: d.cfg.Discovery.Instance,
		Service:  d.cfg.Discovery.Service,
		Domain:   d.cfg.Discovery.Domain,
		Port:     port,
		TXT:      txt,
	})
}

// Stop shuts every component down. Sessions are stopped before the
// presence mirror so that their removals reach the backend.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return nil
	}
	return d.stopLocked()
}

func (d *Daemon) stopLocked() error {
	d.running = false

	if d.adv != nil {
		d.adv.StopAll()
	}
	if d.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = d.http.Shutdown(ctx)
		cancel()
		d.http = nil
	}
	if d.upstream != nil {
		d.upstream.Stop()
	}

	err := d.srv.Stop()

	if d.mirror != nil {
		d.mirror.Stop()
		d.mirror = nil
	}
	if d.redis != nil {
		_ = d.redis.Close()
		d.redis = nil
	}
	return err
}

// Close releases resources that outlive Stop.
func (d *Daemon) Close() {
	if d.upstream != nil {
		d.upstream.Close()
	}
}

// Reload applies a reloaded configuration. Only the session settings are
// hot-reloadable; they affect sessions accepted afterwards.
func (d *Daemon) Reload(cfg config.Config) {
	d.srv.SetSessionConfig(cfg.Server.Session)
	d.logger.Info("configuration reloaded",
		"silence_timeout", cfg.Server.Session.SilenceTimeout,
		"connect_timeout", cfg.Server.Session.ConnectTimeout)
}

// Broadcast sends data to every server-side session.
func (d *Daemon) Broadcast(data []byte) int {
	n := 0
	d.srv.ForEach(func(s *session.Session) bool {
		if s.Send(data) == nil {
			n++
			d.stats.BytesOut.Add(int64(len(data)))
		}
		return true
	})
	return n
}

// Server returns the session server.
func (d *Daemon) Server() *server.Server { return d.srv }

// Upstream returns the upstream client, or nil.
func (d *Daemon) Upstream() *client.Client { return d.upstream }

// Stats returns the traffic counters.
func (d *Daemon) Stats() *Stats { return &d.stats }

// WebSocketAddr returns the WebSocket listen address, or nil.
func (d *Daemon) WebSocketAddr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.wsLn == nil {
		return nil
	}
	return d.wsLn.Addr()
}

// Mode returns the daemon mode.
func (d *Daemon) Mode() Mode { return d.mode }

// Summary returns a one-line description of the traffic counters.
func (d *Daemon) Summary() string {
	return fmt.Sprintf("accepted=%d disconnected=%d in=%dB out=%dB calls=%d",
		d.stats.Accepted.Load(), d.stats.Disconnected.Load(),
		d.stats.BytesIn.Load(), d.stats.BytesOut.Load(), d.stats.Calls.Load())
}
