package registry

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct{ name string }

func TestTryInsert(t *testing.T) {
	r := New[*item]()
	a, b := &item{"a"}, &item{"b"}

	var got []bool
	r.TryInsert(1, a, func(ok bool) { got = append(got, ok) })
	r.TryInsert(1, b, func(ok bool) { got = append(got, ok) })

	assert.Equal(t, []bool{true, false}, got)

	v, ok := r.Get(1)
	require.True(t, ok)
	assert.Same(t, a, v)
	assert.Equal(t, 1, r.Len())
}

func TestTryInsertNilCallback(t *testing.T) {
	r := New[*item]()
	r.TryInsert(7, &item{}, nil)
	assert.Equal(t, 1, r.Len())
}

func TestTryInsertRace(t *testing.T) {
	r := New[*item]()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.TryInsert(42, &item{}, func(ok bool) {
				if ok {
					wins.Add(1)
				}
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, 1, r.Len())
}

func TestRemoveIsValueChecked(t *testing.T) {
	r := New[*item]()
	a, b := &item{"a"}, &item{"b"}

	r.TryInsert(1, a, nil)

	assert.False(t, r.Remove(1, b), "must not remove another value under the same key")
	assert.True(t, r.Contains(1, a))

	assert.True(t, r.Remove(1, a))
	assert.False(t, r.Remove(1, a))
	assert.Equal(t, 0, r.Len())
}

func TestObservers(t *testing.T) {
	r := New[*item]()
	a := &item{"a"}

	var inserted, removed []uint64
	r.Observe(ObserverFuncs[*item]{
		Insert: func(k uint64, _ *item) { inserted = append(inserted, k) },
		Remove: func(k uint64, _ *item) { removed = append(removed, k) },
	})
	r.Observe(ObserverFuncs[*item]{})

	r.TryInsert(3, a, nil)
	r.TryInsert(3, &item{}, nil)
	r.Remove(3, &item{})
	r.Remove(3, a)

	assert.Equal(t, []uint64{3}, inserted)
	assert.Equal(t, []uint64{3}, removed)
}

func TestRangeAndKeys(t *testing.T) {
	r := New[*item]()
	for k := uint64(1); k <= 5; k++ {
		r.TryInsert(k, &item{}, nil)
	}

	assert.ElementsMatch(t, []uint64{1, 2, 3, 4, 5}, r.Keys())

	seen := 0
	r.Range(func(uint64, *item) bool {
		seen++
		return seen < 2
	})
	assert.Equal(t, 2, seen)

	r.Range(func(k uint64, v *item) bool {
		r.Remove(k, v)
		return true
	})
	assert.Equal(t, 0, r.Len())
}
