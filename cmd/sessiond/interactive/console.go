// Package interactive provides the interactive command-line interface
// for sessiond.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/mash-protocol/sessionkit/pkg/server"
	"github.com/mash-protocol/sessionkit/pkg/session"
)

// Daemon is the part of the running daemon the console drives.
type Daemon interface {
	// Server returns the session server.
	Server() *server.Server

	// Broadcast sends data to every session and returns how many accepted it.
	Broadcast(data []byte) int

	// Summary returns a one-line description of traffic counters.
	Summary() string
}

// Console handles interactive mode for sessiond.
type Console struct {
	d  Daemon
	rl *readline.Instance
	// out is where command output goes; the readline stdout by default.
	out io.Writer
}

// New creates a console reading from the terminal.
func New(d Daemon) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "sessiond> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{d: d, rl: rl, out: rl.Stdout()}, nil
}

// Stdout returns a writer that coordinates with the readline input.
// Use this for log output to avoid interfering with the prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if c.Exec(line) {
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
	}
}

// Exec runs one command line and reports whether the console should quit.
func (c *Console) Exec(line string) (quit bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()
	case "sessions", "ls":
		c.cmdSessions()
	case "kick":
		c.cmdKick(args)
	case "send":
		c.cmdSend(args)
	case "broadcast", "bc":
		c.cmdBroadcast(args)
	case "stats":
		c.cmdStats()
	case "quit", "exit", "q":
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
sessiond Commands:
  sessions               - List connected sessions
  kick <key>             - Stop a session
  send <key> <text>      - Send text to a session
  broadcast <text>       - Send text to every session
  stats                  - Show server statistics
  quit                   - Exit`)
}

func (c *Console) cmdSessions() {
	srv := c.d.Server()
	if srv.Count() == 0 {
		fmt.Fprintln(c.out, "No sessions.")
		return
	}

	fmt.Fprintf(c.out, "%-6s %-22s %-8s %-10s %s\n", "KEY", "REMOTE", "TLS", "STATE", "UPTIME")
	srv.ForEach(func(s *session.Session) bool {
		remote := "-"
		if a := s.RemoteAddr(); a != nil {
			remote = a.String()
		}
		uptime := "-"
		if t := s.ConnectTime(); !t.IsZero() {
			uptime = time.Since(t).Truncate(time.Second).String()
		}
		fmt.Fprintf(c.out, "%-6d %-22s %-8t %-10s %s\n", s.Key(), remote, s.IsSecure(), s.State(), uptime)
		return true
	})
}

func (c *Console) lookup(arg string) (*session.Session, bool) {
	key, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		fmt.Fprintf(c.out, "Invalid session key: %s\n", arg)
		return nil, false
	}
	s, ok := c.d.Server().Find(key)
	if !ok {
		fmt.Fprintf(c.out, "Session %d not found\n", key)
		return nil, false
	}
	return s, true
}

func (c *Console) cmdKick(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: kick <key>")
		return
	}
	s, ok := c.lookup(args[0])
	if !ok {
		return
	}
	s.Stop()
	fmt.Fprintf(c.out, "Session %d stopping\n", s.Key())
}

func (c *Console) cmdSend(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.out, "Usage: send <key> <text>")
		return
	}
	s, ok := c.lookup(args[0])
	if !ok {
		return
	}
	if err := s.Send([]byte(strings.Join(args[1:], " ") + "\n")); err != nil {
		fmt.Fprintf(c.out, "Send failed: %v\n", err)
		return
	}
	fmt.Fprintln(c.out, "Sent.")
}

func (c *Console) cmdBroadcast(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(c.out, "Usage: broadcast <text>")
		return
	}
	n := c.d.Broadcast([]byte(strings.Join(args, " ") + "\n"))
	fmt.Fprintf(c.out, "Sent to %d session(s).\n", n)
}

func (c *Console) cmdStats() {
	srv := c.d.Server()
	fmt.Fprintf(c.out, "Server:   %s\n", srv.ID())
	if a := srv.Addr(); a != nil {
		fmt.Fprintf(c.out, "Address:  %s\n", a)
	}
	fmt.Fprintf(c.out, "Sessions: %d\n", srv.Count())
	fmt.Fprintf(c.out, "Traffic:  %s\n", c.d.Summary())
}
