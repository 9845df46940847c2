//go:build linux

package transport

import (
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// applyKeepAlive sets the keep-alive socket options directly so that the
// probe count is honored on every kernel version.
func applyKeepAlive(tc *net.TCPConn, cfg KeepAliveConfig) error {
	raw, err := tc.SyscallConn()
	if err != nil {
		return err
	}

	cfg = cfg.withDefaults()

	var sockErr error
	err = raw.Control(func(fd uintptr) {
		if !cfg.Enable {
			sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 0)
			return
		}
		if sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); sockErr != nil {
			return
		}
		if sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, seconds(cfg.Idle)); sockErr != nil {
			return
		}
		if sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, seconds(cfg.Interval)); sockErr != nil {
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPCNT, cfg.Count)
	})
	if err != nil {
		return err
	}
	return sockErr
}

// seconds rounds d down to whole seconds, never below one.
func seconds(d time.Duration) int {
	return max(1, int(d/time.Second))
}
