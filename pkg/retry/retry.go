package retry

import (
	"context"
	"fmt"
	"time"

	"konadl/pkg/config"
	errs "konadl/pkg/errors"
	"konadl/pkg/logger"
)

// Operation is a function that performs an operation that might need retrying
type Operation func() error

// OperationWithResult is a function that returns a result and might need retrying
type OperationWithResult[T any] func() (T, error)

// Config holds retry configuration
type Config struct {
	// MaxAttempts is the maximum number of attempts (0 means unlimited)
	MaxAttempts int
	Backoff     BackoffStrategy
	// RetryIf determines if an error should be retried
	RetryIf func(error) bool
	// OnRetry is called before each retry wait
	OnRetry func(attempt int, err error, delay time.Duration)
	Context context.Context
	Logger  logger.Logger
}

// DefaultConfig returns a retry configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		Backoff: &ExponentialBackoff{
			BaseDelay:    time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		RetryIf: DefaultRetryIf,
		Context: context.Background(),
		Logger:  logger.GetLogger(),
	}
}

// FromPolicy builds a retry configuration from its config file section
func FromPolicy(p config.RetryPolicyConfig, log logger.Logger) *Config {
	jitter := 0.0
	if p.Jitter {
		jitter = 0.1
	}
	var backoff BackoffStrategy = &ExponentialBackoff{
		BaseDelay:    p.BaseDelay,
		MaxDelay:     p.MaxDelay,
		Multiplier:   p.Multiplier,
		JitterFactor: jitter,
	}
	// a multiplier of exactly 1 means a fixed pause between attempts
	if p.Multiplier == 1 {
		backoff = &ConstantBackoff{Delay: p.BaseDelay}
	}

	return &Config{
		MaxAttempts: p.MaxAttempts,
		Backoff:     backoff,
		RetryIf:     DefaultRetryIf,
		Context:     context.Background(),
		Logger:      log,
	}
}

// DefaultRetryIf retries typed transient errors only
func DefaultRetryIf(err error) bool {
	return errs.IsTransient(err)
}

// WithContext returns a copy of the configuration bound to ctx
func (c *Config) WithContext(ctx context.Context) *Config {
	cp := *c
	cp.Context = ctx
	return &cp
}

// Budget returns the worst-case wall time of one operation under this
// policy when every attempt takes perAttempt and fails.
func (c *Config) Budget(perAttempt time.Duration) time.Duration {
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	total := time.Duration(attempts) * perAttempt
	if c.Backoff != nil {
		for i := 1; i < attempts; i++ {
			total += c.Backoff.Ceiling(i)
		}
	}
	return total
}

// Do executes an operation with retry logic
func Do(op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	retryIf := cfg.RetryIf
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil {
			if attempt > 1 {
				log.DebugWithFields("operation succeeded after retry", map[string]interface{}{
					"attempt": attempt,
				})
			}
			return nil
		}
		lastErr = err

		if !retryIf(err) {
			return err
		}

		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			log.WarnWithFields("max retry attempts exceeded", map[string]interface{}{
				"attempts":   attempt,
				"last_error": lastErr.Error(),
			})
			return fmt.Errorf("max retry attempts (%d) exceeded: %w", cfg.MaxAttempts, lastErr)
		}

		var delay time.Duration
		if cfg.Backoff != nil {
			delay = cfg.Backoff.NextDelay(attempt)
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}

		log.WarnWithFields("retrying operation", map[string]interface{}{
			"attempt":      attempt,
			"error":        err.Error(),
			"delay_ms":     delay.Milliseconds(),
			"max_attempts": cfg.MaxAttempts,
		})

		if err := Wait(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}
}

// DoWithResult executes an operation that returns a result with retry logic
func DoWithResult[T any](op OperationWithResult[T], cfg *Config) (T, error) {
	var result T

	err := Do(func() error {
		var opErr error
		result, opErr = op()
		return opErr
	}, cfg)

	return result, err
}
