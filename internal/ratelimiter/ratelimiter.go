package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// AcceptLimiter throttles how fast a listener hands new connections to
// workers. It is a token bucket: up to burst connections are accepted
// back-to-back, after which accepts proceed at connectionsPerSecond.
//
// A nil *AcceptLimiter is valid and never throttles, so adapters can hold one
// unconditionally.
//
// Thread safety:
// All methods are safe for concurrent use.
type AcceptLimiter struct {
	limiter *rate.Limiter
}

// New creates an AcceptLimiter.
//
// Parameters:
//   - connectionsPerSecond: Sustained accept rate. Zero disables throttling
//     and New returns nil.
//   - burst: Bucket capacity. Zero falls back to connectionsPerSecond.
func New(connectionsPerSecond, burst uint) *AcceptLimiter {
	if connectionsPerSecond == 0 {
		return nil
	}
	if burst == 0 {
		burst = connectionsPerSecond
	}

	return &AcceptLimiter{
		limiter: rate.NewLimiter(rate.Limit(connectionsPerSecond), int(burst)),
	}
}

// Wait blocks until a connection may be accepted or ctx is done.
//
// Returns ctx.Err() (or the limiter's error when the wait could never be
// satisfied before the context deadline).
func (a *AcceptLimiter) Wait(ctx context.Context) error {
	if a == nil {
		return ctx.Err()
	}
	return a.limiter.Wait(ctx)
}

// Tokens returns the number of accepts currently available without waiting.
// The adapters report it in their periodic metrics log line.
func (a *AcceptLimiter) Tokens() float64 {
	if a == nil {
		return 0
	}
	return a.limiter.Tokens()
}
