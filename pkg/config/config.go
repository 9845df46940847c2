// Package config loads daemon configuration from YAML files and
// SESSIONKIT_* environment variables, and watches the file for changes.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"

	"github.com/mash-protocol/sessionkit/pkg/client"
	"github.com/mash-protocol/sessionkit/pkg/server"
	"github.com/mash-protocol/sessionkit/pkg/session"
	"github.com/mash-protocol/sessionkit/pkg/transport"
)

// Config is the complete daemon configuration.
type Config struct {
	Server    server.Config   `yaml:"server"`
	Client    ClientConfig    `yaml:"client"`
	TLS       TLSFiles        `yaml:"tls"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Log       LogConfig       `yaml:"log"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Presence  PresenceConfig  `yaml:"presence"`
}

// ClientConfig configures outgoing connections.
type ClientConfig struct {
	client.Config `yaml:",inline"`

	// Address to dial; empty disables the client.
	Address string `yaml:"address"`
}

// TLSFiles names PEM files. TLS is enabled when Cert is set.
type TLSFiles struct {
	Cert       string `yaml:"cert"`
	Key        string `yaml:"key"`
	CA         string `yaml:"ca"`
	ServerName string `yaml:"server_name"`
}

// Enabled reports whether TLS is configured.
func (f TLSFiles) Enabled() bool {
	return f.Cert != "" || f.CA != ""
}

// WebSocketConfig serves sessions over WebSocket when Address is set.
type WebSocketConfig struct {
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

// LogConfig configures operational and protocol logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`

	// ProtocolFile receives CBOR session events when set.
	ProtocolFile string `yaml:"protocol_file"`

	// ProtocolMaxSize rotates the protocol file at this many bytes; zero
	// never rotates.
	ProtocolMaxSize int64 `yaml:"protocol_max_size"`
}

// DiscoveryConfig controls mDNS advertisement.
type DiscoveryConfig struct {
	Enable   bool              `yaml:"enable"`
	Instance string            `yaml:"instance"`
	Service  string            `yaml:"service"`
	Domain   string            `yaml:"domain"`
	TXT      map[string]string `yaml:"txt"`
}

// PresenceConfig controls mirroring live sessions to Redis.
type PresenceConfig struct {
	Enable    bool          `yaml:"enable"`
	RedisAddr string        `yaml:"redis_addr"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// env holds the SESSIONKIT_* overrides. Unset variables leave the file
// values alone.
type env struct {
	Address          string        `env:"SESSIONKIT_ADDRESS"`
	Workers          int           `env:"SESSIONKIT_WORKERS"`
	SilenceTimeout   time.Duration `env:"SESSIONKIT_SILENCE_TIMEOUT"`
	ConnectTimeout   time.Duration `env:"SESSIONKIT_CONNECT_TIMEOUT"`
	ShutdownTimeout  time.Duration `env:"SESSIONKIT_SHUTDOWN_TIMEOUT"`
	ClientAddress    string        `env:"SESSIONKIT_CLIENT_ADDRESS"`
	TLSCert          string        `env:"SESSIONKIT_TLS_CERT"`
	TLSKey           string        `env:"SESSIONKIT_TLS_KEY"`
	TLSCA            string        `env:"SESSIONKIT_TLS_CA"`
	WebSocketAddress string        `env:"SESSIONKIT_WS_ADDRESS"`
	LogLevel         string        `env:"SESSIONKIT_LOG_LEVEL"`
	ProtocolLog      string        `env:"SESSIONKIT_PROTOCOL_LOG"`
	RedisAddr        string        `env:"SESSIONKIT_REDIS_ADDR"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: server.Config{
			Address: server.DefaultAddress,
			Network: "tcp",
			Session: session.DefaultConfig(),
		},
		Client: ClientConfig{
			Config: client.Config{Session: session.DefaultConfig()},
		},
		WebSocket: WebSocketConfig{Path: "/ws"},
		Log:       LogConfig{Level: "info", Format: "text"},
		Discovery: DiscoveryConfig{
			Service: "_sessionkit._tcp",
			Domain:  "local.",
		},
		Presence: PresenceConfig{
			RedisAddr: "localhost:6379",
			KeyPrefix: "sessionkit:",
		},
	}
}

// Parse decodes YAML on top of the defaults.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Load reads the file at path, applies the environment and validates the
// result. An empty path loads the defaults plus the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if cfg, err = Parse(data); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overlays SESSIONKIT_* variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var e env
	if err := envdecode.Decode(&e); err != nil {
		if errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
			return nil
		}
		return fmt.Errorf("failed to decode environment: %w", err)
	}

	setString(&cfg.Server.Address, e.Address)
	if e.Workers > 0 {
		cfg.Server.Workers = e.Workers
	}
	for _, sc := range []*session.Config{&cfg.Server.Session, &cfg.Client.Session} {
		setDuration(&sc.SilenceTimeout, e.SilenceTimeout)
		setDuration(&sc.ConnectTimeout, e.ConnectTimeout)
		setDuration(&sc.ShutdownTimeout, e.ShutdownTimeout)
	}
	setString(&cfg.Client.Address, e.ClientAddress)
	setString(&cfg.TLS.Cert, e.TLSCert)
	setString(&cfg.TLS.Key, e.TLSKey)
	setString(&cfg.TLS.CA, e.TLSCA)
	setString(&cfg.WebSocket.Address, e.WebSocketAddress)
	setString(&cfg.Log.Level, e.LogLevel)
	setString(&cfg.Log.ProtocolFile, e.ProtocolLog)
	setString(&cfg.Presence.RedisAddr, e.RedisAddr)
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	var errs []error
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if f := strings.ToLower(c.Log.Format); f != "" && f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	if c.Log.ProtocolMaxSize < 0 {
		errs = append(errs, errors.New("log.protocol_max_size must not be negative"))
	}
	if (c.TLS.Cert == "") != (c.TLS.Key == "") {
		errs = append(errs, errors.New("tls: cert and key must be set together"))
	}
	if c.Server.Workers < 0 {
		errs = append(errs, errors.New("server.workers must not be negative"))
	}
	if c.Presence.Enable && c.Presence.RedisAddr == "" {
		errs = append(errs, errors.New("presence.redis_addr is required"))
	}
	if c.Discovery.Enable && c.Discovery.Instance == "" {
		errs = append(errs, errors.New("discovery.instance is required"))
	}
	return errors.Join(errs...)
}

// ServerTLS builds the server TLS configuration, or nil when TLS is off.
func (c Config) ServerTLS() (*tls.Config, error) {
	if c.TLS.Cert == "" {
		return nil, nil
	}
	return transport.LoadTLSConfig(transport.RoleServer, c.TLS.Cert, c.TLS.Key, c.TLS.CA, c.TLS.ServerName)
}

// ClientTLS builds the client TLS configuration, or nil when TLS is off.
func (c Config) ClientTLS() (*tls.Config, error) {
	if !c.TLS.Enabled() {
		return nil, nil
	}
	return transport.LoadTLSConfig(transport.RoleClient, c.TLS.Cert, c.TLS.Key, c.TLS.CA, c.TLS.ServerName)
}

// Logger builds an slog logger writing to w.
func (c LogConfig) Logger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(c.Level)
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
