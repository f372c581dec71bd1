package chain

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

// Throttle keeps one token bucket per chain host.
type Throttle struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	every   rate.Limit
	burst   int
}

// NewThrottle admits perSecond requests per host with the given burst.
// perSecond <= 0 means unlimited.
func NewThrottle(perSecond float64, burst int) *Throttle {
	every := rate.Limit(perSecond)
	if perSecond <= 0 {
		every = rate.Inf
	}
	return &Throttle{
		buckets: map[string]*rate.Limiter{},
		every:   every,
		burst:   max(burst, 1),
	}
}

// DefaultThrottle admits 5 requests per second with a burst of 10.
func DefaultThrottle() *Throttle {
	return NewThrottle(5, 10)
}

// TryAcquire takes a token for host without blocking.
func (t *Throttle) TryAcquire(host string) bool {
	return t.bucket(host).Allow()
}

// Acquire blocks until host has a token. A canceled ctx is CHAIN_UNAVAILABLE;
// a wait longer than the ctx deadline is RATE_LIMITED.
func (t *Throttle) Acquire(ctx context.Context, host string) error {
	err := t.bucket(host).Wait(ctx)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return walleterr.WithCause(walleterr.ErrChainUnavailable, ctx.Err())
	default:
		return walleterr.WithCause(ErrRateLimited, err)
	}
}

// Hosts returns how many hosts have a bucket.
func (t *Throttle) Hosts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buckets)
}

func (t *Throttle) bucket(host string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.buckets[host]
	if !ok {
		b = rate.NewLimiter(t.every, t.burst)
		t.buckets[host] = b
	}
	return b
}
