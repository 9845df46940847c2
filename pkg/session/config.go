package session

import (
	"log/slog"
	"time"

	"github.com/mash-protocol/sessionkit/pkg/log"
	"github.com/mash-protocol/sessionkit/pkg/transport"
)

// Session defaults.
const (
	// DefaultSilenceTimeout disconnects sessions idle for an hour.
	DefaultSilenceTimeout = time.Hour

	// DefaultConnectTimeout bounds connect plus handshake.
	DefaultConnectTimeout = 5 * time.Second

	// DefaultShutdownTimeout bounds the TLS shutdown of secure sessions.
	DefaultShutdownTimeout = 5 * time.Second

	// DefaultInitBufferSize is the initial receive buffer size.
	DefaultInitBufferSize = 1024

	// DefaultMaxBufferSize is the largest the receive buffer grows (64 KB).
	DefaultMaxBufferSize = 65536
)

// LingerConfig controls SO_LINGER.
type LingerConfig struct {
	Enable  bool `yaml:"enable"`
	Seconds int  `yaml:"seconds"`
}

// Config configures a session.
type Config struct {
	// SilenceTimeout disconnects the session after this long without
	// traffic. Zero uses the default; negative disables the timer.
	SilenceTimeout time.Duration `yaml:"silence_timeout"`

	// ConnectTimeout bounds the time from start to STARTED. Zero uses the
	// default; negative disables the timer.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// ShutdownTimeout bounds the TLS shutdown. Zero uses the default.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// InitBufferSize is the initial receive buffer size.
	InitBufferSize int `yaml:"init_buffer_size"`

	// MaxBufferSize is the maximum receive buffer size.
	MaxBufferSize int `yaml:"max_buffer_size"`

	// KeepAlive configures TCP keep-alive when set.
	KeepAlive *transport.KeepAliveConfig `yaml:"keepalive"`

	// Linger configures SO_LINGER. With Enable set and zero Seconds the
	// shutdown step is skipped and the close is abortive.
	Linger LingerConfig `yaml:"linger"`

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger `yaml:"-"`

	// ProtocolLogger receives lifecycle events. Nil disables them.
	ProtocolLogger log.Logger `yaml:"-"`
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		SilenceTimeout:  DefaultSilenceTimeout,
		ConnectTimeout:  DefaultConnectTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		InitBufferSize:  DefaultInitBufferSize,
		MaxBufferSize:   DefaultMaxBufferSize,
	}
}

func (c Config) withDefaults() Config {
	if c.SilenceTimeout == 0 {
		c.SilenceTimeout = DefaultSilenceTimeout
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.InitBufferSize <= 0 {
		c.InitBufferSize = DefaultInitBufferSize
	}
	if c.MaxBufferSize <= 0 {
		c.MaxBufferSize = DefaultMaxBufferSize
	}
	if c.MaxBufferSize < c.InitBufferSize {
		c.MaxBufferSize = c.InitBufferSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.ProtocolLogger == nil {
		c.ProtocolLogger = log.NoopLogger{}
	}
	return c
}
