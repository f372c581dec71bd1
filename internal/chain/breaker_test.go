package chain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/satchel/internal/chain"
	walleterr "github.com/mrz1836/satchel/pkg/errors"
)

var errUpstream = errors.New("upstream 503")

func TestBreaker_PassesThrough(t *testing.T) {
	t.Parallel()
	b := chain.NewBreaker("test", chain.DefaultBreakerConfig(), nil)

	got, err := chain.Execute(b, func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	_, err = chain.Execute(b, func() (int, error) { return 0, errUpstream })
	require.ErrorIs(t, err, errUpstream)
	assert.False(t, b.Open())
}

func TestBreaker_TripsAndRecovers(t *testing.T) {
	t.Parallel()
	var transitions []bool
	cfg := chain.BreakerConfig{MinRequests: 3, FailureRatio: 0.7, OpenTimeout: 20 * time.Millisecond}
	b := chain.NewBreaker("esplora", cfg, func(name string, open bool) {
		assert.Equal(t, "esplora", name)
		transitions = append(transitions, open)
	})

	for i := 0; i < 4; i++ {
		_, _ = chain.Execute(b, func() (string, error) { return "", errUpstream })
	}
	require.True(t, b.Open())

	calls := 0
	_, err := chain.Execute(b, func() (string, error) {
		calls++
		return "ok", nil
	})
	require.ErrorIs(t, err, walleterr.ErrChainUnavailable)
	assert.True(t, walleterr.IsRetryable(err))
	assert.Equal(t, 0, calls, "open breaker must not call the source")

	time.Sleep(30 * time.Millisecond)
	got, err := chain.Execute(b, func() (string, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.False(t, b.Open())
	assert.Equal(t, []bool{true, false, false}, transitions)
}

func TestBreaker_BelowMinimumDoesNotTrip(t *testing.T) {
	t.Parallel()
	b := chain.NewBreaker("test", chain.DefaultBreakerConfig(), nil)
	for i := 0; i < 20; i++ {
		_, _ = chain.Execute(b, func() (int, error) { return 0, errUpstream })
	}
	assert.False(t, b.Open())
}
