package ioctx

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
)

// ErrStopped is returned when work is submitted to a stopped context.
var ErrStopped = errors.New("io context stopped")

// Context is a single-goroutine task executor.
type Context struct {
	name string
	log  *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	tasks   *queue.Queue
	started bool
	stopped bool

	executed atomic.Uint64
	done     chan struct{}
}

// New creates a context. It does not run tasks until Start is called.
func New(name string) *Context {
	c := &Context{
		name:  name,
		log:   slog.Default().With("ioctx", name),
		tasks: queue.New(),
		done:  make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Name returns the context name given to New.
func (c *Context) Name() string {
	return c.name
}

// SetLogger replaces the logger used to report task panics.
func (c *Context) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.log = logger.With("ioctx", c.name)
	}
}

// Start launches the context goroutine. Calling Start more than once has no effect.
func (c *Context) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started || c.stopped {
		return
	}
	c.started = true
	go c.run()
}

// Post queues fn for execution on the context goroutine and returns
// immediately. It reports false if the context has been stopped, in which
// case fn will never run.
func (c *Context) Post(fn func()) bool {
	if fn == nil {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return false
	}
	c.tasks.Add(fn)
	c.cond.Signal()
	return true
}

// Stop stops accepting new tasks. Tasks already queued still run before the
// goroutine exits. Stop does not wait; use Wait or Done for that.
func (c *Context) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}
	c.stopped = true
	if !c.started {
		// Nothing will ever drain the queue.
		close(c.done)
		return
	}
	c.cond.Broadcast()
}

// Wait blocks until the context goroutine has exited.
func (c *Context) Wait() {
	<-c.done
}

// Done returns a channel closed once the context goroutine has exited.
func (c *Context) Done() <-chan struct{} {
	return c.done
}

// Stopped reports whether Stop has been called.
func (c *Context) Stopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// Pending returns the number of queued tasks.
func (c *Context) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tasks.Length()
}

// Executed returns the number of tasks run so far.
func (c *Context) Executed() uint64 {
	return c.executed.Load()
}

func (c *Context) run() {
	defer close(c.done)

	for {
		c.mu.Lock()
		for c.tasks.Length() == 0 && !c.stopped {
			c.cond.Wait()
		}
		if c.tasks.Length() == 0 {
			c.mu.Unlock()
			return
		}
		fn := c.tasks.Remove().(func())
		c.mu.Unlock()

		c.execute(fn)
	}
}

// execute runs one task. A panicking task is logged and does not take the
// context goroutine down with it.
func (c *Context) execute(fn func()) {
	defer func() {
		c.executed.Add(1)
		if r := recover(); r != nil {
			c.log.Error("task panicked", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}
