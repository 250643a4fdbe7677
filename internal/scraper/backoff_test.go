package scraper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExponentialBackoffDoubles(t *testing.T) {
	t.Parallel()

	p := NewExponentialBackoff(time.Second, 0)
	require.Equal(t, time.Second, p.Delay(1))
	require.Equal(t, 2*time.Second, p.Delay(2))
	require.Equal(t, 4*time.Second, p.Delay(3))
	require.Equal(t, 8*time.Second, p.Delay(4))
}

func TestExponentialBackoffStrictlyIncreasing(t *testing.T) {
	t.Parallel()

	p := NewExponentialBackoff(250*time.Millisecond, 0)
	prev := time.Duration(0)
	for attempt := 1; attempt <= 10; attempt++ {
		d := p.Delay(attempt)
		require.Greater(t, d, prev, "delay for attempt %d must exceed attempt %d", attempt, attempt-1)
		prev = d
	}
}

func TestExponentialBackoffNeverZero(t *testing.T) {
	t.Parallel()

	p := NewExponentialBackoff(time.Millisecond, 0)
	require.Positive(t, p.Delay(1))
	require.Positive(t, p.Delay(0), "out-of-range attempt clamps to 1")
}

func TestExponentialBackoffCapped(t *testing.T) {
	t.Parallel()

	p := NewExponentialBackoff(time.Second, 3*time.Second)
	require.Equal(t, time.Second, p.Delay(1))
	require.Equal(t, 2*time.Second, p.Delay(2))
	require.Equal(t, 3*time.Second, p.Delay(3))
	require.Equal(t, 3*time.Second, p.Delay(10))
}

func TestJitteredBackoffStaysInRange(t *testing.T) {
	t.Parallel()

	p := NewJitteredBackoff(time.Second, 0)
	for i := 0; i < 50; i++ {
		d := p.Delay(2)
		require.GreaterOrEqual(t, d, time.Second)
		require.Less(t, d, 2*time.Second)
	}
}
