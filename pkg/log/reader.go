package log

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// ErrTruncated is returned when a log ends in the middle of an event, as
// happens when reading a file that is still being written.
var ErrTruncated = errors.New("log: truncated event")

// Reader streams events from one or more CBOR log files.
type Reader struct {
	files   []*os.File
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader reads every event of the file at path.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader reads the events of the file at path matching filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	return openFiles(filter, path)
}

// NewRotatedReader reads the rotated backup written by a FileLogger
// (path + ".1") when present, followed by path itself.
func NewRotatedReader(path string, filter Filter) (*Reader, error) {
	backup := path + ".1"
	if _, err := os.Stat(backup); err != nil {
		return openFiles(filter, path)
	}
	return openFiles(filter, backup, path)
}

func openFiles(filter Filter, paths ...string) (*Reader, error) {
	files := make([]*os.File, 0, len(paths))
	readers := make([]io.Reader, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			for _, open := range files {
				open.Close()
			}
			return nil, err
		}
		files = append(files, f)
		readers = append(readers, f)
	}
	r := NewStreamReader(io.MultiReader(readers...), filter)
	r.files = files
	return r, nil
}

// NewStreamReader reads events from src, such as standard input.
func NewStreamReader(src io.Reader, filter Filter) *Reader {
	return &Reader{
		decoder: NewDecoder(src),
		filter:  filter,
	}
}

// Next returns the next matching event, or io.EOF at the end of input.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		err := r.decoder.Decode(&event)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return Event{}, io.EOF
		case errors.Is(err, io.ErrUnexpectedEOF):
			return Event{}, ErrTruncated
		default:
			return Event{}, fmt.Errorf("log: decode event: %w", err)
		}
		if r.filter.Match(event) {
			return event, nil
		}
	}
}

// All returns an iterator over the remaining matching events. Iteration
// stops after the first error, which is yielded with a zero Event; io.EOF
// is not yielded.
func (r *Reader) All() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			event, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(event, err) || err != nil {
				return
			}
		}
	}
}

// Close closes the files the reader opened.
func (r *Reader) Close() error {
	var errs []error
	for _, f := range r.files {
		errs = append(errs, f.Close())
	}
	r.files = nil
	return errors.Join(errs...)
}
