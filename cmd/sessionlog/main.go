// Command sessionlog views and analyzes session event log files.
//
// Log files are written by sessiond when started with -protocol-log, or by
// any program that installs a log.FileLogger as its protocol logger.
//
// Usage:
//
//	sessionlog <command> [flags] <file.slog>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSONL or CSV format
//	filter   Filter log file and write to new file
//	stats    Show statistics about the log file
//
// Examples:
//
//	# View all events
//	sessionlog view sessiond.slog
//
//	# View only secure-layer events
//	sessionlog view -layer secure sessiond.slog
//
//	# Follow one session
//	sessionlog view -session 1f0e3c2a sessiond.slog
//
//	# Keep only errors
//	sessionlog filter -category error -o errors.slog sessiond.slog
//
//	# Show statistics
//	sessionlog stats sessiond.slog
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mash-protocol/sessionkit/cmd/sessionlog/commands"
)

// subcommand is one sessionlog verb. setup registers its flags and returns
// the function that runs it against the log file path.
type subcommand struct {
	name    string
	summary string
	setup   func(fs *flag.FlagSet, stdout io.Writer) func(path string) error
}

var subcommands = []subcommand{
	{"view", "View log file in human-readable format", setupView},
	{"export", "Export log file to JSONL or CSV format", setupExport},
	{"filter", "Filter log file and write to new file", setupFilter},
	{"stats", "Show statistics about the log file", setupStats},
}

var errUsage = errors.New("usage")

func main() {
	err := run(os.Args[1:], os.Stdout, os.Stderr)
	switch {
	case err == nil:
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		printUsage(stderr)
		return errUsage
	}

	name := args[0]
	switch name {
	case "-h", "-help", "--help", "help":
		printUsage(stdout)
		return nil
	}

	for _, sc := range subcommands {
		if sc.name != name {
			continue
		}
		fs := flag.NewFlagSet(sc.name, flag.ContinueOnError)
		fs.SetOutput(stderr)
		exec := sc.setup(fs, stdout)
		fs.Usage = func() {
			fmt.Fprintf(stderr, "sessionlog %s - %s\n\nUsage:\n  sessionlog %s [flags] <file.slog>\n\nFlags:\n",
				sc.name, sc.summary, sc.name)
			fs.PrintDefaults()
		}
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			fmt.Fprintln(stderr, "Error: exactly one log file path required")
			fs.Usage()
			return errUsage
		}
		return exec(fs.Arg(0))
	}

	fmt.Fprintf(stderr, "Unknown command: %s\n", name)
	printUsage(stderr)
	return errUsage
}

func printUsage(w io.Writer) {
	var b strings.Builder
	b.WriteString("sessionlog - Session Event Log Analyzer\n\n")
	b.WriteString("Usage:\n  sessionlog <command> [flags] <file.slog>\n\nCommands:\n")
	for _, sc := range subcommands {
		fmt.Fprintf(&b, "  %-8s %s\n", sc.name, sc.summary)
	}
	b.WriteString("\nUse \"sessionlog <command> -help\" for more information about a command.\n")
	fmt.Fprint(w, b.String())
}

func setupView(fs *flag.FlagSet, stdout io.Writer) func(string) error {
	var opts commands.FilterOptions
	bindFilterFlags(fs, &opts)
	data := fs.Bool("data", false, "Show data payloads as hex")
	rotated := fs.Bool("rotated", false, "Include the rotated backup (<file>.1)")

	return func(path string) error {
		filter, err := opts.Build()
		if err != nil {
			return err
		}
		return commands.RunView(path, filter, commands.ViewOptions{ShowData: *data, Rotated: *rotated}, stdout)
	}
}

func setupExport(fs *flag.FlagSet, _ io.Writer) func(string) error {
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")

	return func(path string) error {
		return commands.RunExport(path, *format, *output)
	}
}

func setupFilter(fs *flag.FlagSet, stdout io.Writer) func(string) error {
	var opts commands.FilterOptions
	bindFilterFlags(fs, &opts)
	output := fs.String("o", "", "Output file (required)")

	return func(path string) error {
		if *output == "" {
			return errors.New("output file (-o) required")
		}
		count, err := commands.RunFilter(path, *output, opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Filtered %d events to %s\n", count, *output)
		return nil
	}
}

func setupStats(_ *flag.FlagSet, stdout io.Writer) func(string) error {
	return func(path string) error {
		return commands.RunStats(path, stdout)
	}
}

func bindFilterFlags(fs *flag.FlagSet, opts *commands.FilterOptions) {
	fs.StringVar(&opts.Session, "session", "", "Filter by session trace ID (prefix match)")
	fs.Uint64Var(&opts.Key, "key", 0, "Filter by session key")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, secure, session, registry)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (data, notify, state, error)")
	fs.StringVar(&opts.Role, "role", "", "Filter by role (server, client)")
}
