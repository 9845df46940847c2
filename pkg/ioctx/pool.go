package ioctx

import (
	"fmt"
	"runtime"
	"sync/atomic"
)

// Pool is a fixed set of contexts handed out round-robin.
type Pool struct {
	contexts []*Context
	next     atomic.Uint64
}

// NewPool creates size contexts. A size of zero or less uses runtime.NumCPU().
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	p := &Pool{contexts: make([]*Context, size)}
	for i := range p.contexts {
		p.contexts[i] = New(fmt.Sprintf("io-%d", i))
	}
	return p
}

// Size returns the number of contexts in the pool.
func (p *Pool) Size() int {
	return len(p.contexts)
}

// At returns the i-th context.
func (p *Pool) At(i int) *Context {
	return p.contexts[i%len(p.contexts)]
}

// Next returns the next context in round-robin order.
func (p *Pool) Next() *Context {
	n := p.next.Add(1) - 1
	return p.contexts[n%uint64(len(p.contexts))]
}

// Start starts every context.
func (p *Pool) Start() {
	for _, c := range p.contexts {
		c.Start()
	}
}

// Stop stops every context and waits for their goroutines to exit.
func (p *Pool) Stop() {
	for _, c := range p.contexts {
		c.Stop()
	}
	for _, c := range p.contexts {
		c.Wait()
	}
}
