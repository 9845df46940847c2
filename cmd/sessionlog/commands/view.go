package commands

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/mash-protocol/sessionkit/pkg/log"
)

// ViewOptions controls the view output.
type ViewOptions struct {
	// ShowData prints data payloads as hex.
	ShowData bool

	// Rotated also reads the rotated backup (path + ".1") first.
	Rotated bool
}

// RunView prints the events of path matching filter.
func RunView(path string, filter log.Filter, opts ViewOptions, w io.Writer) error {
	open := log.NewFilteredReader
	if opts.Rotated {
		open = log.NewRotatedReader
	}
	reader, err := open(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	return eachEvent(reader, func(event log.Event) error {
		formatEvent(w, event, opts)
		return nil
	})
}

// timeLayout is the microsecond UTC format used for event timestamps.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event, opts ViewOptions) {
	// Header line: timestamp [session:id #key] DIRECTION LAYER Type
	ts := event.Timestamp.UTC().Format(timeLayout)
	fmt.Fprintf(w, "%s [%s %s", ts, event.LocalRole, shortenID(event.SessionID))
	if event.Key != 0 {
		fmt.Fprintf(w, " #%d", event.Key)
	}
	fmt.Fprintf(w, "] %-3s %s %s\n", event.Direction, event.Layer, eventType(event))

	if event.RemoteAddr != "" {
		fmt.Fprintf(w, "  Remote: %s\n", event.RemoteAddr)
	}

	switch {
	case event.Data != nil:
		formatDataDetails(w, event.Data, opts.ShowData)
	case event.Notify != nil:
		if event.Notify.Error != "" {
			fmt.Fprintf(w, "  Error: %s\n", event.Notify.Error)
		}
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// eventType returns the label shown in the header line.
func eventType(event log.Event) string {
	switch {
	case event.Data != nil:
		return "Data"
	case event.Notify != nil:
		return event.Notify.Kind
	case event.StateChange != nil:
		return "State"
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// shortenID returns the first 8 characters of a trace ID.
func shortenID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatDataDetails(w io.Writer, data *log.DataEvent, showData bool) {
	fmt.Fprintf(w, "  Size: %d bytes\n", data.Size)
	if !showData || len(data.Data) == 0 {
		return
	}
	fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(data.Data))
	if data.Truncated {
		fmt.Fprint(w, " (truncated)")
	}
	fmt.Fprintln(w)
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity)
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer)
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Kind != "" {
		fmt.Fprintf(w, "  Kind: %s\n", err.Kind)
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}
