package log

// Logger receives session events. Sessions call Log from their I/O context,
// so implementations must be safe for concurrent use and must not block.
type Logger interface {
	Log(event Event)
}

// NoopLogger drops every event.
type NoopLogger struct{}

// Log does nothing.
func (NoopLogger) Log(Event) {}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(Event)

// Log calls f(event).
func (f LoggerFunc) Log(event Event) { f(event) }

// Filtered returns a Logger that forwards only the events matching f.
func Filtered(next Logger, f Filter) Logger {
	return &filtered{next: next, filter: f}
}

type filtered struct {
	next   Logger
	filter Filter
}

func (l *filtered) Log(event Event) {
	if l.filter.Match(event) {
		l.next.Log(event)
	}
}

var (
	_ Logger = NoopLogger{}
	_ Logger = LoggerFunc(nil)
	_ Logger = (*filtered)(nil)
)
