package transport

import (
	"context"
	"errors"

	"golang.org/x/time/rate"
)

// RateLimited throttles the bytes moved through a transport.
// A nil limiter leaves that direction unthrottled.
type RateLimited struct {
	Transport

	read  *rate.Limiter
	write *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRateLimited wraps t with per-direction byte limits. A zero limit
// disables throttling in that direction. burst caps the size of a single
// read or write.
func NewRateLimited(t Transport, readBytesPerSec, writeBytesPerSec float64, burst int) *RateLimited {
	if burst <= 0 {
		burst = 4096
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &RateLimited{Transport: t, ctx: ctx, cancel: cancel}
	if readBytesPerSec > 0 {
		r.read = rate.NewLimiter(rate.Limit(readBytesPerSec), burst)
	}
	if writeBytesPerSec > 0 {
		r.write = rate.NewLimiter(rate.Limit(writeBytesPerSec), burst)
	}
	return r
}

// Unwrap returns the wrapped transport.
func (r *RateLimited) Unwrap() Transport {
	return r.Transport
}

// ReadSome reads at most one burst and waits for the tokens before
// reporting completion.
func (r *RateLimited) ReadSome(p []byte, done func(int, error)) {
	if r.read == nil {
		r.Transport.ReadSome(p, done)
		return
	}
	if len(p) > r.read.Burst() {
		p = p[:r.read.Burst()]
	}
	r.Transport.ReadSome(p, func(n int, err error) {
		if n > 0 {
			if werr := r.read.WaitN(r.ctx, n); werr != nil {
				done(n, errors.Join(ErrCanceled, werr))
				return
			}
		}
		done(n, err)
	})
}

// WriteSome waits for tokens, then writes at most one burst.
func (r *RateLimited) WriteSome(p []byte, done func(int, error)) {
	if r.write == nil {
		r.Transport.WriteSome(p, done)
		return
	}
	if len(p) > r.write.Burst() {
		p = p[:r.write.Burst()]
	}
	go func() {
		if err := r.write.WaitN(r.ctx, len(p)); err != nil {
			done(0, errors.Join(ErrCanceled, err))
			return
		}
		r.Transport.WriteSome(p, done)
	}()
}

// Cancel aborts pending waits and the wrapped transport's operations.
func (r *RateLimited) Cancel() {
	r.cancel()
	r.Transport.Cancel()
}

// Close closes the wrapped transport.
func (r *RateLimited) Close() error {
	r.cancel()
	return r.Transport.Close()
}

// RateLimitConfig configures NewRateLimited from configuration files.
type RateLimitConfig struct {
	ReadBytesPerSec  float64 `yaml:"read_bytes_per_sec"`
	WriteBytesPerSec float64 `yaml:"write_bytes_per_sec"`
	Burst            int     `yaml:"burst"`
}

// Enabled reports whether any direction is limited.
func (c RateLimitConfig) Enabled() bool {
	return c.ReadBytesPerSec > 0 || c.WriteBytesPerSec > 0
}

// Wrap returns t limited per c, or t itself when c is disabled.
func (c RateLimitConfig) Wrap(t Transport) Transport {
	if !c.Enabled() {
		return t
	}
	return NewRateLimited(t, c.ReadBytesPerSec, c.WriteBytesPerSec, c.Burst)
}
