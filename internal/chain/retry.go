package chain

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"time"

	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

// ErrRateLimited is returned when a chain source answers 429 or the local
// throttle cannot admit a request.
var ErrRateLimited = &walleterr.WalletError{
	Code:       "RATE_LIMITED",
	Message:    "rate limited by chain source",
	Class:      walleterr.ClassResource,
	ExitCode:   walleterr.ExitResource,
	Suggestion: "Lower chain.rate_limit or wait before retrying",
}

// Backoff controls how often a failed chain request is attempted again.
// Attempts counts the first try.
type Backoff struct {
	Attempts int
	Initial  time.Duration
	Ceiling  time.Duration
}

// DefaultBackoff tries four times, waiting roughly 1s, 2s and 4s between tries.
func DefaultBackoff() Backoff {
	return Backoff{Attempts: 4, Initial: time.Second, Ceiling: 4 * time.Second}
}

// Wait returns the pause before try number n+1. The doubled delay is capped
// at Ceiling and jittered into [d/2, d).
func (b Backoff) Wait(n int) time.Duration {
	d := b.Initial
	for i := 0; i < n && d < b.Ceiling; i++ {
		d *= 2
	}
	if b.Ceiling > 0 && d > b.Ceiling {
		d = b.Ceiling
	}
	if d < 2 {
		return d
	}
	half := d / 2
	return half + rand.N(half) //nolint:gosec // jitter only
}

// transient marks a chain failure that is worth another attempt.
type transient struct{ err error }

func (t transient) Error() string { return t.err.Error() }
func (t transient) Unwrap() error { return t.err }

// MarkTransient flags err so Do will try again.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return transient{err: err}
}

// Transient reports whether err came from a failure that may clear up on
// its own: a flagged transport error, a 429 or a request deadline.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	var t transient
	return errors.As(err, &t) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Do calls fn until it succeeds, fails permanently, the attempts run out
// or ctx ends. fn receives the zero-based attempt number.
func Do[T any](ctx context.Context, b Backoff, fn func(attempt int) (T, error)) (T, error) {
	attempts := max(b.Attempts, 1)
	var (
		val T
		err error
	)
	for n := 0; n < attempts; n++ {
		if val, err = fn(n); err == nil || !Transient(err) {
			return val, err
		}
		if n == attempts-1 {
			break
		}
		timer := time.NewTimer(b.Wait(n))
		select {
		case <-ctx.Done():
			timer.Stop()
			return val, walleterr.WithCause(walleterr.ErrChainUnavailable, ctx.Err())
		case <-timer.C:
		}
	}
	return val, walleterr.WithDetails(err, map[string]string{"attempts": strconv.Itoa(attempts)})
}

// RetryAfter reads a Retry-After header given in seconds. Dates and junk
// yield zero.
func RetryAfter(header string) time.Duration {
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
