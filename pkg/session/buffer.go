package session

// Buffer is the session's receive buffer. It is owned by the session's
// context and must only be used from there, normally inside a recv handler.
type Buffer struct {
	data []byte
	r, w int
	max  int
}

func newBuffer(size, max int) Buffer {
	return Buffer{data: make([]byte, size), max: max}
}

// Bytes returns the unconsumed bytes.
func (b *Buffer) Bytes() []byte {
	return b.data[b.r:b.w]
}

// Len returns the number of unconsumed bytes.
func (b *Buffer) Len() int {
	return b.w - b.r
}

// Cap returns the current buffer capacity.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Consume discards the first n unconsumed bytes.
func (b *Buffer) Consume(n int) {
	b.r = min(b.r+n, b.w)
	if b.r == b.w {
		b.r, b.w = 0, 0
	}
}

// Reset discards all unconsumed bytes.
func (b *Buffer) Reset() {
	b.r, b.w = 0, 0
}

// prepare returns writable space, compacting or growing as needed.
// It returns nil when the buffer is full at its maximum size.
func (b *Buffer) prepare() []byte {
	if b.w < len(b.data) {
		return b.data[b.w:]
	}
	if b.r > 0 {
		n := copy(b.data, b.data[b.r:b.w])
		b.r, b.w = 0, n
		return b.data[b.w:]
	}
	if len(b.data) >= b.max {
		return nil
	}
	grown := make([]byte, min(max(len(b.data)*2, 1), b.max))
	copy(grown, b.data[:b.w])
	b.data = grown
	return b.data[b.w:]
}

func (b *Buffer) commit(n int) {
	b.w += n
}
