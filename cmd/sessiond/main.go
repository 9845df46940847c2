// Command sessiond runs a session server.
//
// The daemon accepts TCP (optionally TLS) and WebSocket connections and
// handles received bytes in one of three modes:
//   - echo: every chunk is written back to its sender
//   - relay: bytes are forwarded to an upstream server and upstream bytes
//     are broadcast to every connected session
//   - rdc: length-prefixed CBOR calls are answered with their payload
//
// Usage:
//
//	sessiond [flags]
//
// Flags:
//
//	-config string        Configuration file path (reloaded on change)
//	-listen string        Listen address (overrides server.address)
//	-ws string            WebSocket listen address
//	-upstream string      Upstream address to dial (relay mode)
//	-mode string          Mode: echo, relay, rdc (default "echo")
//	-tls-cert string      Server certificate PEM file
//	-tls-key string       Server key PEM file
//	-tls-ca string        CA PEM file for peer verification
//	-protocol-log string  Write CBOR session events to this file
//	-log-level string     Log level: debug, info, warn, error
//	-advertise string     Announce the server over mDNS under this instance name
//	-redis string         Mirror live sessions to this Redis server
//	-interactive          Enable interactive command mode
//
// Examples:
//
//	# Plain echo server
//	sessiond -listen :9000
//
//	# TLS relay towards another server, logging session events
//	sessiond -listen :9443 -tls-cert srv.pem -tls-key srv.key \
//	    -mode relay -upstream backend:9000 -protocol-log sessiond.log
//
// Interactive Commands:
//
//	sessions           - List connected sessions
//	kick <key>         - Stop a session
//	send <key> <text>  - Send text to a session
//	broadcast <text>   - Send text to every session
//	stats              - Show server statistics
//	quit               - Exit
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mash-protocol/sessionkit/cmd/sessiond/interactive"
	"github.com/mash-protocol/sessionkit/pkg/config"
	plog "github.com/mash-protocol/sessionkit/pkg/log"
)

// Flags holds the command-line settings. Empty values leave the
// configuration file untouched.
type Flags struct {
	ConfigFile  string
	Listen      string
	WebSocket   string
	Upstream    string
	Mode        string
	TLSCert     string
	TLSKey      string
	TLSCA       string
	ProtocolLog string
	LogLevel    string
	Advertise   string
	Redis       string
	Interactive bool
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path (reloaded on change)")
	flag.StringVar(&flags.Listen, "listen", "", "Listen address (overrides server.address)")
	flag.StringVar(&flags.WebSocket, "ws", "", "WebSocket listen address")
	flag.StringVar(&flags.Upstream, "upstream", "", "Upstream address to dial (relay mode)")
	flag.StringVar(&flags.Mode, "mode", "echo", "Mode: echo, relay, rdc")
	flag.StringVar(&flags.TLSCert, "tls-cert", "", "Server certificate PEM file")
	flag.StringVar(&flags.TLSKey, "tls-key", "", "Server key PEM file")
	flag.StringVar(&flags.TLSCA, "tls-ca", "", "CA PEM file for peer verification")
	flag.StringVar(&flags.ProtocolLog, "protocol-log", "", "Write CBOR session events to this file")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&flags.Advertise, "advertise", "", "Announce the server over mDNS under this instance name")
	flag.StringVar(&flags.Redis, "redis", "", "Mirror live sessions to this Redis server")
	flag.BoolVar(&flags.Interactive, "interactive", false, "Enable interactive command mode")
}

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sessiond: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		return err
	}
	flags.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	mode, err := ParseMode(flags.Mode)
	if err != nil {
		return err
	}

	out := &switchWriter{w: os.Stderr}
	logger := cfg.Log.Logger(out)
	slog.SetDefault(logger)

	protocol, closeProtocol, err := protocolLogger(cfg.Log, logger)
	if err != nil {
		return err
	}
	defer closeProtocol()

	d, err := NewDaemon(cfg, mode, logger, protocol)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		return err
	}
	logger.Info("sessiond started",
		"id", d.Server().ID(),
		"addr", d.Server().Addr().String(),
		"mode", mode,
		"tls", cfg.TLS.Enabled())

	if flags.ConfigFile != "" {
		err := config.Watch(ctx, flags.ConfigFile, func(c config.Config, err error) {
			if err != nil {
				logger.Warn("config reload failed", "error", err)
				return
			}
			d.Reload(c)
		})
		if err != nil {
			logger.Warn("config watch disabled", "error", err)
		}
	}

	if flags.Interactive {
		ic, err := interactive.New(d)
		if err != nil {
			return err
		}
		// Route log output through readline to keep the prompt intact.
		out.Set(ic.Stdout())
		go ic.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig.String())
	case <-ctx.Done():
	}

	logger.Info("shutting down", "stats", d.Summary())
	cancel()
	return d.Stop()
}

// Apply copies the non-empty flags into cfg.
func (f Flags) Apply(cfg *config.Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Server.Address, f.Listen)
	set(&cfg.WebSocket.Address, f.WebSocket)
	set(&cfg.Client.Address, f.Upstream)
	set(&cfg.TLS.Cert, f.TLSCert)
	set(&cfg.TLS.Key, f.TLSKey)
	set(&cfg.TLS.CA, f.TLSCA)
	set(&cfg.Log.ProtocolFile, f.ProtocolLog)
	set(&cfg.Log.Level, f.LogLevel)
	if f.Advertise != "" {
		cfg.Discovery.Enable = true
		cfg.Discovery.Instance = f.Advertise
	}
	if f.Redis != "" {
		cfg.Presence.Enable = true
		cfg.Presence.RedisAddr = f.Redis
	}
}

// protocolLogger builds the session event sink: a CBOR file when configured,
// plus the operational logger at debug level.
func protocolLogger(cfg config.LogConfig, logger *slog.Logger) (plog.Logger, func(), error) {
	var loggers []plog.Logger
	closeFn := func() {}

	if cfg.ProtocolFile != "" {
		fl, err := plog.NewFileLogger(cfg.ProtocolFile, plog.WithMaxSize(cfg.ProtocolMaxSize))
		if err != nil {
			return nil, nil, fmt.Errorf("protocol log: %w", err)
		}
		loggers = append(loggers, fl)
		closeFn = func() { _ = fl.Close() }
	}
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		loggers = append(loggers, plog.NewSlogAdapter(logger))
	}

	return plog.NewMultiLogger(loggers...), closeFn, nil
}

// switchWriter lets log output move to the interactive console after the
// logger was built.
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *switchWriter) Set(w io.Writer) {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}
