package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(b *Buffer, s string) {
	p := b.prepare()
	n := copy(p, s)
	b.commit(n)
}

func TestBufferConsume(t *testing.T) {
	b := newBuffer(8, 8)
	fill(&b, "abcdef")
	assert.Equal(t, "abcdef", string(b.Bytes()))

	b.Consume(2)
	assert.Equal(t, "cdef", string(b.Bytes()))
	assert.Equal(t, 4, b.Len())

	b.Consume(100)
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Bytes())
}

func TestBufferCompacts(t *testing.T) {
	b := newBuffer(4, 4)
	fill(&b, "abcd")
	b.Consume(3)

	p := b.prepare()
	require.Len(t, p, 3)
	assert.Equal(t, "d", string(b.Bytes()))
	assert.Equal(t, 4, b.Cap())
}

func TestBufferGrowsToMax(t *testing.T) {
	b := newBuffer(2, 5)
	fill(&b, "ab")

	p := b.prepare()
	assert.Len(t, p, 2)
	assert.Equal(t, 4, b.Cap())
	b.commit(copy(p, "cd"))

	p = b.prepare()
	assert.Len(t, p, 1)
	assert.Equal(t, 5, b.Cap())
	b.commit(copy(p, "e"))

	assert.Nil(t, b.prepare(), "full buffer at max size")
	assert.Equal(t, "abcde", string(b.Bytes()))
}

func TestBufferReset(t *testing.T) {
	b := newBuffer(4, 4)
	fill(&b, "abcd")
	b.Reset()
	assert.Equal(t, 0, b.Len())
	assert.Len(t, b.prepare(), 4)
}
