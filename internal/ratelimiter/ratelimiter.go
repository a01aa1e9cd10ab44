// Package ratelimiter throttles how fast the Gopher adapter accepts new
// connections.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket consulted once per accepted connection.
//
// A nil *RateLimiter admits everything, so the accept loop can call Admit
// unconditionally.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New returns a limiter admitting connectionsPerSecond on average with bursts
// of up to burst. A zero rate disables limiting and returns nil. A zero burst
// is raised to one, otherwise no connection could ever be admitted.
func New(connectionsPerSecond, burst uint) *RateLimiter {
	if connectionsPerSecond == 0 {
		return nil
	}
	if burst == 0 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(connectionsPerSecond), int(burst)),
	}
}

// Admit takes a token for the next connection, blocking until one is
// available or ctx ends.
//
// throttled reports whether the caller had to wait, which the adapter counts
// as a rate-limited accept. err is ctx.Err() when shutdown interrupted the
// wait; the token is not consumed in that case.
func (r *RateLimiter) Admit(ctx context.Context) (throttled bool, err error) {
	if r == nil {
		return false, nil
	}
	if r.limiter.Allow() {
		return false, nil
	}
	return true, r.limiter.Wait(ctx)
}

// Tokens reports how many connections could be admitted right now without
// waiting. Unlimited limiters report +Inf.
func (r *RateLimiter) Tokens() float64 {
	if r == nil {
		return float64(rate.Inf)
	}
	return r.limiter.Tokens()
}
