package interactive

import (
	"bytes"
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mash-protocol/sessionkit/pkg/server"
	"github.com/mash-protocol/sessionkit/pkg/session"
)

type fakeDaemon struct {
	srv       *server.Server
	broadcast []string
}

func (f *fakeDaemon) Server() *server.Server { return f.srv }

func (f *fakeDaemon) Broadcast(data []byte) int {
	f.broadcast = append(f.broadcast, string(data))
	return f.srv.Count()
}

func (f *fakeDaemon) Summary() string { return "in=0 out=0" }

func newConsole(t *testing.T) (*Console, *fakeDaemon, *bytes.Buffer) {
	t.Helper()

	srv := server.New(server.Config{Address: "127.0.0.1:0", Workers: 1})
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Stop() })

	d := &fakeDaemon{srv: srv}
	var out bytes.Buffer
	return &Console{d: d, out: &out}, d, &out
}

func TestConsoleHelpAndUnknown(t *testing.T) {
	c, _, out := newConsole(t)

	assert.False(t, c.Exec(""))
	assert.False(t, c.Exec("help"))
	assert.Contains(t, out.String(), "broadcast <text>")

	out.Reset()
	assert.False(t, c.Exec("frobnicate"))
	assert.Contains(t, out.String(), "Unknown command: frobnicate")

	assert.True(t, c.Exec("quit"))
	assert.True(t, c.Exec("EXIT"))
}

func TestConsoleSessionsEmpty(t *testing.T) {
	c, _, out := newConsole(t)
	c.Exec("sessions")
	assert.Contains(t, out.String(), "No sessions.")
}

func TestConsoleSessionCommands(t *testing.T) {
	c, d, out := newConsole(t)

	conn, err := net.Dial("tcp", d.srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return d.srv.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	var key uint64
	d.srv.ForEach(func(s *session.Session) bool {
		key = s.Key()
		return false
	})

	c.Exec("sessions")
	assert.Contains(t, out.String(), conn.LocalAddr().String())

	out.Reset()
	c.Exec("send " + itoa(key) + " hello there")
	assert.Contains(t, out.String(), "Sent.")

	buf := make([]byte, 32)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello there\n", string(buf[:n]))

	out.Reset()
	c.Exec("broadcast hi all")
	assert.Equal(t, []string{"hi all\n"}, d.broadcast)
	assert.Contains(t, out.String(), "Sent to 1 session(s).")

	out.Reset()
	c.Exec("stats")
	assert.Contains(t, out.String(), d.srv.ID())
	assert.Contains(t, out.String(), "Sessions: 1")

	out.Reset()
	c.Exec("kick " + itoa(key))
	assert.Contains(t, out.String(), "stopping")
	require.Eventually(t, func() bool { return d.srv.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestConsoleBadArguments(t *testing.T) {
	c, _, out := newConsole(t)

	tests := []struct {
		line string
		want string
	}{
		{"kick", "Usage: kick <key>"},
		{"kick abc", "Invalid session key: abc"},
		{"kick 999", "Session 999 not found"},
		{"send 1", "Usage: send <key> <text>"},
		{"broadcast", "Usage: broadcast <text>"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			out.Reset()
			c.Exec(tt.line)
			assert.Contains(t, out.String(), tt.want)
		})
	}
}

func itoa(k uint64) string {
	return strconv.FormatUint(k, 10)
}
