package ioctx

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextRunsTasksInOrder(t *testing.T) {
	c := New("test")
	c.Start()
	defer c.Stop()

	var mu sync.Mutex
	var got []int
	done := make(chan struct{})

	for i := 0; i < 100; i++ {
		i := i
		require.True(t, c.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			if i == 99 {
				close(done)
			}
		}))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks did not run")
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestContextPostAfterStop(t *testing.T) {
	c := New("test")
	c.Start()
	c.Stop()
	c.Wait()

	assert.False(t, c.Post(func() {}))
	assert.True(t, c.Stopped())
}

func TestContextStopDrainsQueuedTasks(t *testing.T) {
	c := New("test")

	ran := 0
	for i := 0; i < 10; i++ {
		c.Post(func() { ran++ })
	}
	assert.Equal(t, 10, c.Pending())

	c.Start()
	c.Stop()
	c.Wait()

	assert.Equal(t, 10, ran)
	assert.Equal(t, uint64(10), c.Executed())
}

func TestContextStopWithoutStart(t *testing.T) {
	c := New("test")
	c.Stop()

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed for a never-started context")
	}
}

func TestContextSurvivesPanic(t *testing.T) {
	c := New("test")
	c.Start()
	defer c.Stop()

	c.Post(func() { panic("boom") })

	done := make(chan struct{})
	c.Post(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("context stopped running after a panic")
	}
}

func TestTimerFires(t *testing.T) {
	c := New("test")
	c.Start()
	defer c.Stop()

	fired := make(chan struct{})
	c.AfterFunc(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestTimerStop(t *testing.T) {
	c := New("test")
	c.Start()
	defer c.Stop()

	fired := make(chan struct{}, 1)
	tm := c.AfterFunc(20*time.Millisecond, func() { fired <- struct{}{} })
	assert.True(t, tm.Stop())

	select {
	case <-fired:
		t.Fatal("stopped timer fired")
	case <-time.After(60 * time.Millisecond):
	}

	var nilTimer *Timer
	assert.False(t, nilTimer.Stop())
}

func TestAfterFuncUsesPost(t *testing.T) {
	posted := make(chan func(), 1)
	AfterFunc(10*time.Millisecond, func(task func()) { posted <- task }, func() {})

	select {
	case task := <-posted:
		task()
	case <-time.After(time.Second):
		t.Fatal("timer task was not posted")
	}
}

func TestContextTimerAfterStop(t *testing.T) {
	c := New("test")
	c.Start()

	fired := make(chan struct{}, 1)
	c.AfterFunc(10*time.Millisecond, func() { fired <- struct{}{} })
	c.Stop()
	c.Wait()

	select {
	case <-fired:
		t.Fatal("timer ran on a stopped context")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPoolRoundRobin(t *testing.T) {
	p := NewPool(3)
	assert.Equal(t, 3, p.Size())

	a, b, c, d := p.Next(), p.Next(), p.Next(), p.Next()
	assert.NotSame(t, a, b)
	assert.NotSame(t, b, c)
	assert.Same(t, a, d)
	assert.Same(t, p.At(1), b)

	p.Start()
	p.Stop()
	for i := 0; i < p.Size(); i++ {
		assert.True(t, p.At(i).Stopped())
	}
}

func TestPoolDefaultSize(t *testing.T) {
	p := NewPool(0)
	assert.Greater(t, p.Size(), 0)
}
