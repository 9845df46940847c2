package commands

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/mash-protocol/sessionkit/pkg/log"
)

// sink writes exported events in one output format.
type sink interface {
	write(event log.Event) error
	flush() error
}

var exportFormats = map[string]func(io.Writer) (sink, error){
	"jsonl": newJSONLSink,
	"csv":   newCSVSink,
}

// ExportFormats returns the supported format names.
func ExportFormats() []string {
	names := make([]string, 0, len(exportFormats))
	for name := range exportFormats {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// RunExport writes every event of the log file at path to output, or to
// stdout when output is empty.
func RunExport(path, format, output string) error {
	newSink, ok := exportFormats[format]
	if !ok {
		return fmt.Errorf("unknown format: %s (supported: %v)", format, ExportFormats())
	}

	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	s, err := newSink(w)
	if err != nil {
		return err
	}
	if err := eachEvent(reader, s.write); err != nil {
		return err
	}
	return s.flush()
}

// eachEvent calls fn for every event until the reader is exhausted.
func eachEvent(reader *log.Reader, fn func(log.Event) error) error {
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}

type jsonlSink struct{ enc *json.Encoder }

func newJSONLSink(w io.Writer) (sink, error) {
	return jsonlSink{enc: json.NewEncoder(w)}, nil
}

func (s jsonlSink) write(event log.Event) error {
	if err := s.enc.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return nil
}

func (jsonlSink) flush() error { return nil }

var csvHeader = []string{"timestamp", "session_id", "key", "role", "direction", "layer", "category", "type", "size", "detail"}

type csvSink struct{ w *csv.Writer }

func newCSVSink(w io.Writer) (sink, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return csvSink{w: cw}, nil
}

func (s csvSink) write(event log.Event) error {
	if err := s.w.Write(csvRecord(event)); err != nil {
		return fmt.Errorf("failed to write row: %w", err)
	}
	return nil
}

func (s csvSink) flush() error {
	s.w.Flush()
	return s.w.Error()
}

func csvRecord(event log.Event) []string {
	var size, detail string
	switch {
	case event.Data != nil:
		size = strconv.Itoa(event.Data.Size)
	case event.Notify != nil:
		detail = event.Notify.Error
	case event.StateChange != nil:
		detail = event.StateChange.OldState + "->" + event.StateChange.NewState
	case event.Error != nil:
		detail = event.Error.Message
	}
	return []string{
		event.Timestamp.UTC().Format(timeLayout),
		event.SessionID,
		strconv.FormatUint(event.Key, 10),
		event.LocalRole.String(),
		event.Direction.String(),
		event.Layer.String(),
		event.Category.String(),
		eventType(event),
		size,
		detail,
	}
}
