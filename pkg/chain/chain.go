// Package chain implements deferred completion chains.
//
// A Chain is a counted handle on a single-shot continuation. The
// continuation runs exactly once, when the last live handle is released.
// Multi-step teardown uses chains to guarantee that the final step happens
// after every intermediate step finished, no matter which goroutine
// finishes last.
//
//	c := chain.New(func() { log.Println("all done") })
//	parts := c.Fork(2)   // c is now empty, the continuation waits on both parts
//	go work(parts[0])    // each worker calls Release when finished
//	go work(parts[1])
//
// Defer nests a step in front of an existing chain: the outer continuation
// runs only after the step released the inner chain it was handed.
package chain

import "sync/atomic"

type guard struct {
	refs  atomic.Int64
	fired atomic.Bool
	fn    func()
}

func (g *guard) release() {
	if g.refs.Add(-1) != 0 {
		return
	}
	if g.fired.CompareAndSwap(false, true) && g.fn != nil {
		g.fn()
	}
}

// Chain is a handle on a pending continuation. The zero value is an empty
// chain: releasing it does nothing.
type Chain struct {
	g *guard
}

// New creates a chain holding one reference to fn.
func New(fn func()) Chain {
	g := &guard{fn: fn}
	g.refs.Store(1)
	return Chain{g: g}
}

// Empty returns a chain with no continuation.
func Empty() Chain {
	return Chain{}
}

// Valid reports whether the chain still holds a reference.
func (c Chain) Valid() bool {
	return c.g != nil
}

// Clone returns a new reference to the same continuation.
// The continuation will not run until both handles are released.
func (c Chain) Clone() Chain {
	if c.g == nil {
		return Chain{}
	}
	c.g.refs.Add(1)
	return Chain{g: c.g}
}

// Release drops this reference. When the last reference is dropped the
// continuation runs on the calling goroutine. Releasing a chain more than
// once through the same pointer is a no-op.
func (c *Chain) Release() {
	g := c.g
	if g == nil {
		return
	}
	c.g = nil
	g.release()
}

// Move transfers the reference to a new handle, leaving c empty.
func (c *Chain) Move() Chain {
	m := Chain{g: c.g}
	c.g = nil
	return m
}

// Fork splits the reference into n references to the same continuation and
// leaves c empty. Fork on an empty chain returns n empty chains.
func (c *Chain) Fork(n int) []Chain {
	out := make([]Chain, n)
	g := c.g
	if g == nil || n <= 0 {
		if n <= 0 {
			c.Release()
		}
		return out
	}
	g.refs.Add(int64(n))
	for i := range out {
		out[i] = Chain{g: g}
	}
	c.Release()
	return out
}

// Defer runs step with a fresh inner chain. The reference held by outer is
// only released when step releases the inner chain it receives. outer is
// left empty.
func Defer(outer *Chain, step func(inner Chain)) {
	parent := outer.Move()
	step(New(func() { parent.Release() }))
}
