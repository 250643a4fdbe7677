package scraper

import (
	"crypto/rand"
	"math/big"
	"time"
)

// ExponentialBackoff doubles the wait after every failed attempt.
type ExponentialBackoff struct {
	base     time.Duration
	max      time.Duration
	jittered bool
}

// NewExponentialBackoff builds a policy growing as base * 2^(attempt-1).
// A max of zero means uncapped.
func NewExponentialBackoff(base, max time.Duration) *ExponentialBackoff {
	return &ExponentialBackoff{base: base, max: max}
}

// NewJitteredBackoff is like NewExponentialBackoff but spreads each delay
// uniformly over [delay/2, delay) to avoid synchronized retries.
func NewJitteredBackoff(base, max time.Duration) *ExponentialBackoff {
	return &ExponentialBackoff{base: base, max: max, jittered: true}
}

// Delay returns the wait before the attempt following the given one.
// Attempt numbers are 1-indexed.
func (p *ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.max > 0 && delay >= p.max {
			delay = p.max
			break
		}
	}
	if p.max > 0 && delay > p.max {
		delay = p.max
	}
	if p.jittered {
		return delay/2 + randomJitter(delay/2)
	}
	return delay
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
