package transport

import "time"

// Keep-alive defaults.
const (
	// DefaultKeepAliveIdle is the idle time before the first probe.
	DefaultKeepAliveIdle = 60 * time.Second

	// DefaultKeepAliveInterval is the time between probes.
	DefaultKeepAliveInterval = 15 * time.Second

	// DefaultKeepAliveCount is the number of unanswered probes before the
	// kernel drops the connection.
	DefaultKeepAliveCount = 3
)

// KeepAliveConfig configures TCP keep-alive probes.
type KeepAliveConfig struct {
	// Enable turns keep-alive on or off.
	Enable bool `yaml:"enable"`

	// Idle is the idle time before the first probe.
	Idle time.Duration `yaml:"idle"`

	// Interval is the time between probes.
	Interval time.Duration `yaml:"interval"`

	// Count is the number of unanswered probes before the connection is dropped.
	Count int `yaml:"count"`
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		Enable:   true,
		Idle:     DefaultKeepAliveIdle,
		Interval: DefaultKeepAliveInterval,
		Count:    DefaultKeepAliveCount,
	}
}

// DetectionDelay returns the worst-case time to detect a dead peer.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return c.Idle + c.Interval*time.Duration(c.Count)
}

func (c KeepAliveConfig) withDefaults() KeepAliveConfig {
	if c.Idle <= 0 {
		c.Idle = DefaultKeepAliveIdle
	}
	if c.Interval <= 0 {
		c.Interval = DefaultKeepAliveInterval
	}
	if c.Count <= 0 {
		c.Count = DefaultKeepAliveCount
	}
	return c
}
