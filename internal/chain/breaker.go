package chain

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

// BreakerConfig configures the chain source circuit breaker.
type BreakerConfig struct {
	// MinRequests is the number of requests in the window before the
	// failure ratio is considered.
	MinRequests uint32
	// FailureRatio trips the breaker once reached.
	FailureRatio float64
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
}

// DefaultBreakerConfig trips after more than 20 requests with at least 70%
// failing and probes again after 30 seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MinRequests:  20,
		FailureRatio: 0.7,
		OpenTimeout:  30 * time.Second,
	}
}

// StateListener observes breaker transitions.
type StateListener func(name string, open bool)

// Breaker stops calling a chain source that keeps failing.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker creates a breaker named name. listener may be nil.
func NewBreaker(name string, cfg BreakerConfig, listener StateListener) *Breaker {
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests <= cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRatio
		},
	}
	if listener != nil {
		settings.OnStateChange = func(name string, _, to gobreaker.State) {
			listener(name, to == gobreaker.StateOpen)
		}
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Open reports whether the breaker is rejecting calls.
func (b *Breaker) Open() bool {
	return b.cb.State() == gobreaker.StateOpen
}

// Execute runs op through b. Errors returned by op count as failures.
// While open, calls fail fast with CHAIN_UNAVAILABLE.
func Execute[T any](b *Breaker, op func() (T, error)) (T, error) {
	var zero T
	res, err := b.cb.Execute(func() (interface{}, error) {
		return op()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return zero, walleterr.WithSuggestion(
			walleterr.WithCause(walleterr.ErrChainUnavailable, err),
			"the chain source keeps failing; try again later or configure another endpoint")
	}
	if err != nil {
		return zero, err
	}
	return res.(T), nil //nolint:forcetypeassert // op returns T
}
