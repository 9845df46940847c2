// Package log captures a machine-readable trace of session activity.
//
// Operational logging (slog) records what the process is doing. This
// package records what each session did: bytes moved, notifications fired,
// lifecycle transitions and errors, each as an Event carrying the
// session's trace ID and registry key.
//
// Sessions, servers and clients accept a Logger. Pick a sink:
//
//	file, err := log.NewFileLogger("/var/log/sessiond/trace.slog", log.WithMaxSize(64<<20))
//	...
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    file,
//	    log.Filtered(log.NewSlogAdapter(slog.Default()), log.Filter{Category: &errCategory}),
//	)
//
// Files are a plain concatenation of CBOR items, one per event. Reader
// streams them back with an optional Filter, across a rotated backup when
// opened with NewRotatedReader. The sessionlog command builds on Reader.
package log
