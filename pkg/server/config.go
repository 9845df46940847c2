package server

import (
	"crypto/tls"
	"log/slog"

	"github.com/mash-protocol/sessionkit/pkg/log"
	"github.com/mash-protocol/sessionkit/pkg/session"
	"github.com/mash-protocol/sessionkit/pkg/transport"
)

// DefaultAddress is the listen address used when none is configured.
const DefaultAddress = ":8443"

// Config configures a Server.
type Config struct {
	// Address to listen on (e.g., ":8443" or "127.0.0.1:8443").
	Address string `yaml:"address"`

	// Network is the listen network. Defaults to "tcp".
	Network string `yaml:"network"`

	// Workers is the number of execution contexts. Zero uses one per CPU.
	Workers int `yaml:"workers"`

	// Session configures every accepted session.
	Session session.Config `yaml:"session"`

	// RateLimit throttles every accepted session when enabled.
	RateLimit transport.RateLimitConfig `yaml:"rate_limit"`

	// TLS enables the TLS stage for every accepted session.
	TLS *tls.Config `yaml:"-"`

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger `yaml:"-"`

	// ProtocolLogger receives server and session events. Nil disables them.
	ProtocolLogger log.Logger `yaml:"-"`
}

func (c Config) withDefaults() Config {
	if c.Address == "" {
		c.Address = DefaultAddress
	}
	if c.Network == "" {
		c.Network = "tcp"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.ProtocolLogger == nil {
		c.ProtocolLogger = log.NoopLogger{}
	}
	if c.Session.Logger == nil {
		c.Session.Logger = c.Logger
	}
	if c.Session.ProtocolLogger == nil {
		c.Session.ProtocolLogger = c.ProtocolLogger
	}
	return c
}
