package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffSequence(t *testing.T) {
	b := NewBackoff(BackoffConfig{Jitter: -1})

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		60 * time.Second,
		60 * time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, b.Next(), "attempt %d", i+1)
	}
	assert.Equal(t, len(want), b.Attempts())

	b.Reset()
	assert.Equal(t, 0, b.Attempts())
	assert.Equal(t, InitialBackoff, b.Current())
}

func TestBackoffJitter(t *testing.T) {
	b := NewBackoff(BackoffConfig{Initial: 100 * time.Millisecond})
	for i := 0; i < 20; i++ {
		b.Reset()
		d := b.Next()
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
	}
}

func TestBackoffCustom(t *testing.T) {
	b := NewBackoff(BackoffConfig{Initial: 10 * time.Millisecond, Max: 25 * time.Millisecond, Multiplier: 3, Jitter: -1})
	assert.Equal(t, 10*time.Millisecond, b.Next())
	assert.Equal(t, 25*time.Millisecond, b.Next())
	assert.Equal(t, 25*time.Millisecond, b.Next())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "RECONNECTING", StateReconnecting.String())
	assert.Equal(t, "UNKNOWN", State(42).String())
}

func TestBackoffMaxAttempts(t *testing.T) {
	b := NewBackoff(BackoffConfig{MaxAttempts: 2, Jitter: -1})
	assert.False(t, b.Exhausted())
	b.Next()
	assert.False(t, b.Exhausted())
	b.Next()
	assert.True(t, b.Exhausted())

	b.Reset()
	assert.False(t, b.Exhausted())

	unlimited := NewBackoff(BackoffConfig{})
	for i := 0; i < 100; i++ {
		unlimited.Next()
	}
	assert.False(t, unlimited.Exhausted())
}
