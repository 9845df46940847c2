package client

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Reconnect delay defaults.
const (
	InitialBackoff    = 1 * time.Second
	MaxBackoff        = 60 * time.Second
	BackoffMultiplier = 2.0

	// JitterFactor bounds the random extra delay as a fraction of the base.
	JitterFactor = 0.25
)

// BackoffConfig shapes the delays between reconnect attempts. Zero fields
// take the defaults; a negative Jitter disables jitter.
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial"`
	Max        time.Duration `yaml:"max"`
	Multiplier float64       `yaml:"multiplier"`
	Jitter     float64       `yaml:"jitter"`

	// MaxAttempts stops reconnecting after this many failed attempts.
	// Zero retries forever.
	MaxAttempts int `yaml:"max_attempts"`
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	if c.Initial <= 0 {
		c.Initial = InitialBackoff
	}
	if c.Max <= 0 {
		c.Max = MaxBackoff
	}
	if c.Multiplier <= 1 {
		c.Multiplier = BackoffMultiplier
	}
	switch {
	case c.Jitter == 0:
		c.Jitter = JitterFactor
	case c.Jitter < 0:
		c.Jitter = 0
	}
	return c
}

// Backoff hands out exponentially growing delays. It is safe for
// concurrent use.
type Backoff struct {
	cfg BackoffConfig

	mu       sync.Mutex
	base     time.Duration
	attempts int
}

// NewBackoff returns a Backoff starting at cfg.Initial.
func NewBackoff(cfg BackoffConfig) *Backoff {
	cfg = cfg.withDefaults()
	return &Backoff{cfg: cfg, base: cfg.Initial}
}

// Next counts an attempt and returns the delay to wait before it.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.base
	if b.cfg.Jitter > 0 {
		delay += time.Duration(rand.Float64() * b.cfg.Jitter * float64(delay))
	}
	b.attempts++
	b.base = min(time.Duration(float64(b.base)*b.cfg.Multiplier), b.cfg.Max)
	return delay
}

// Exhausted reports whether MaxAttempts attempts were handed out.
func (b *Backoff) Exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cfg.MaxAttempts > 0 && b.attempts >= b.cfg.MaxAttempts
}

// Reset starts over from the initial delay, typically after a connect.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.base = b.cfg.Initial
	b.attempts = 0
}

// Attempts returns the number of delays handed out since the last Reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Current returns the base delay of the next attempt, without jitter.
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.base
}
