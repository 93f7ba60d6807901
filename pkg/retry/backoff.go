package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy defines the interface for different backoff strategies
type BackoffStrategy interface {
	// NextDelay returns the delay to wait after the given failed attempt
	NextDelay(attempt int) time.Duration
	// Ceiling returns the largest delay NextDelay can ever return for attempt
	Ceiling(attempt int) time.Duration
}

// ExponentialBackoff grows the delay geometrically between BaseDelay and
// MaxDelay, with optional jitter.
type ExponentialBackoff struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	// JitterFactor spreads each delay by up to +/- this fraction (0.0 to 1.0)
	JitterFactor float64
}

func (eb *ExponentialBackoff) base(attempt int) float64 {
	if attempt <= 0 {
		return 0
	}
	mult := eb.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(eb.BaseDelay) * math.Pow(mult, float64(attempt-1))
	if eb.MaxDelay > 0 && delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}
	return delay
}

// NextDelay calculates the next delay with exponential backoff and jitter
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	delay := eb.base(attempt)
	if eb.JitterFactor > 0 {
		jitter := delay * eb.JitterFactor
		delay += (rand.Float64() * 2 * jitter) - jitter
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Ceiling returns the capped delay plus the full positive jitter
func (eb *ExponentialBackoff) Ceiling(attempt int) time.Duration {
	delay := eb.base(attempt)
	return time.Duration(delay + delay*eb.JitterFactor)
}

// ConstantBackoff waits the same delay after every attempt
type ConstantBackoff struct {
	Delay time.Duration
}

// NextDelay returns a constant delay
func (cb *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return cb.Delay
}

// Ceiling equals NextDelay for a constant backoff
func (cb *ConstantBackoff) Ceiling(attempt int) time.Duration {
	return cb.NextDelay(attempt)
}

// Wait waits for the specified duration or until context is cancelled
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
