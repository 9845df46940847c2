package rdc

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Framing constants.
const (
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4

	// DefaultMaxMessageSize is the default maximum message size (64 KB).
	DefaultMaxMessageSize = 65536
)

// Framing errors.
var (
	// ErrFrameTooLarge indicates a frame exceeds the maximum size.
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrFrameEmpty indicates a zero-length frame.
	ErrFrameEmpty = errors.New("frame is empty")
)

// appendFrame appends a length-prefixed frame holding payload to dst.
func appendFrame(dst, payload []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...)
}

// decoder reassembles frames from arbitrarily split input.
type decoder struct {
	buf []byte
	max uint32
}

func newDecoder(maxSize uint32) *decoder {
	if maxSize == 0 {
		maxSize = DefaultMaxMessageSize
	}
	return &decoder{max: maxSize}
}

// write appends received bytes.
func (d *decoder) write(p []byte) {
	d.buf = append(d.buf, p...)
}

// next returns the next complete frame payload, or nil if more input is
// needed. The returned slice stays valid until the next write.
func (d *decoder) next() ([]byte, error) {
	if len(d.buf) < LengthPrefixSize {
		return nil, nil
	}

	length := binary.BigEndian.Uint32(d.buf)
	if length == 0 {
		return nil, ErrFrameEmpty
	}
	if length > d.max {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, d.max)
	}

	end := LengthPrefixSize + int(length)
	if len(d.buf) < end {
		return nil, nil
	}
	frame := d.buf[LengthPrefixSize:end]
	d.buf = d.buf[end:]
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return frame, nil
}

// pending returns the number of buffered bytes not yet returned as frames.
func (d *decoder) pending() int {
	return len(d.buf)
}
