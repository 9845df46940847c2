package chain

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChainRunsOnRelease(t *testing.T) {
	var n int
	c := New(func() { n++ })
	assert.True(t, c.Valid())

	c.Release()
	assert.Equal(t, 1, n)
	assert.False(t, c.Valid())

	c.Release()
	assert.Equal(t, 1, n)
}

func TestChainCloneWaitsForAll(t *testing.T) {
	var n int
	c := New(func() { n++ })
	d := c.Clone()

	c.Release()
	assert.Equal(t, 0, n)

	d.Release()
	assert.Equal(t, 1, n)
}

func TestEmptyChain(t *testing.T) {
	c := Empty()
	assert.False(t, c.Valid())
	c.Release()

	d := c.Clone()
	assert.False(t, d.Valid())

	parts := c.Fork(3)
	assert.Len(t, parts, 3)
	for _, p := range parts {
		assert.False(t, p.Valid())
	}
}

func TestChainMove(t *testing.T) {
	var n int
	c := New(func() { n++ })
	m := c.Move()
	assert.False(t, c.Valid())
	assert.True(t, m.Valid())

	c.Release()
	assert.Equal(t, 0, n)
	m.Release()
	assert.Equal(t, 1, n)
}

func TestForkJoinConcurrent(t *testing.T) {
	var n atomic.Int32
	c := New(func() { n.Add(1) })
	parts := c.Fork(50)
	assert.False(t, c.Valid())

	var wg sync.WaitGroup
	for i := range parts {
		wg.Add(1)
		go func(p Chain) {
			defer wg.Done()
			p.Release()
		}(parts[i])
	}
	wg.Wait()

	assert.Equal(t, int32(1), n.Load())
}

func TestForkZero(t *testing.T) {
	var n int
	c := New(func() { n++ })
	parts := c.Fork(0)
	assert.Empty(t, parts)
	assert.Equal(t, 1, n)
}

func TestDeferOrdersSteps(t *testing.T) {
	var order []string
	outer := New(func() { order = append(order, "outer") })

	var held Chain
	Defer(&outer, func(inner Chain) {
		order = append(order, "step")
		held = inner
	})
	assert.False(t, outer.Valid())
	assert.Equal(t, []string{"step"}, order)

	held.Release()
	assert.Equal(t, []string{"step", "outer"}, order)
}

func TestDeferNested(t *testing.T) {
	var order []string
	outer := New(func() { order = append(order, "done") })

	Defer(&outer, func(a Chain) {
		Defer(&a, func(b Chain) {
			order = append(order, "inner")
			b.Release()
		})
		order = append(order, "middle")
	})

	assert.Equal(t, []string{"inner", "done", "middle"}, order)
}
