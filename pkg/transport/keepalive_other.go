//go:build !linux

package transport

import "net"

func applyKeepAlive(tc *net.TCPConn, cfg KeepAliveConfig) error {
	if !cfg.Enable {
		return tc.SetKeepAlive(false)
	}
	cfg = cfg.withDefaults()
	return tc.SetKeepAliveConfig(net.KeepAliveConfig{
		Enable:   true,
		Idle:     cfg.Idle,
		Interval: cfg.Interval,
		Count:    cfg.Count,
	})
}
