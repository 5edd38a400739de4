package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"go.uber.org/zap"
)

// Config controls Execute.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first one.
	MaxAttempts int `toml:"max_attempts" yaml:"max_attempts"`

	// BaseDelay is the delay before the second attempt.
	BaseDelay time.Duration `toml:"base_delay" yaml:"base_delay"`

	// MaxDelay caps the pre-jitter delay.
	MaxDelay time.Duration `toml:"max_delay" yaml:"max_delay"`

	// BackoffFactor multiplies the delay after every failed attempt.
	BackoffFactor float64 `toml:"backoff_factor" yaml:"backoff_factor"`

	// Jitter adds a uniform random delay in [0, MaxJitter).
	Jitter bool `toml:"jitter" yaml:"jitter"`

	// MaxJitter bounds the jitter. Default: 1s
	MaxJitter time.Duration `toml:"max_jitter" yaml:"max_jitter"`

	// RetryCondition decides whether a failure is worth another attempt.
	// Default: IsRetryable
	RetryCondition func(err error) bool `toml:"-" yaml:"-"`

	// OnRetry runs before sleeping ahead of the next attempt.
	OnRetry func(attempt int, err error) `toml:"-" yaml:"-"`

	// OnMaxAttemptsReached runs once when the last allowed attempt fails.
	OnMaxAttemptsReached func(err error) `toml:"-" yaml:"-"`

	// Sleep waits between attempts. It must return early with ctx.Err() when ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error `toml:"-" yaml:"-"`

	// Rand returns a float in [0, 1) used for jitter.
	Rand func() float64 `toml:"-" yaml:"-"`

	Logger *zap.Logger `toml:"-" yaml:"-"`
}

// DefaultConfig returns the default retry policy: 3 attempts, 1s base delay doubling
// up to 30s, with jitter.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		BackoffFactor:  2,
		Jitter:         true,
		MaxJitter:      time.Second,
		RetryCondition: IsRetryable,
	}
}

// Validate checks the numeric settings.
func (c Config) Validate() error {
	err := goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&c,
			validation.Field(&c.MaxAttempts, validation.Required, validation.Min(1)),
			validation.Field(&c.BaseDelay, validation.Min(time.Duration(0))),
			validation.Field(&c.MaxDelay, validation.Min(c.BaseDelay)),
			validation.Field(&c.BackoffFactor, validation.Min(1.0)),
			validation.Field(&c.MaxJitter, validation.Min(time.Duration(0))),
		)
	}, "invalid retry configuration")
	if err != nil {
		return err
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.BackoffFactor == 0 {
		c.BackoffFactor = 1
	}
	if c.MaxJitter == 0 {
		c.MaxJitter = time.Second
	}
	if c.RetryCondition == nil {
		c.RetryCondition = IsRetryable
	}
	if c.Sleep == nil {
		c.Sleep = sleepContext
	}
	if c.Rand == nil {
		c.Rand = rand.Float64
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Result reports the outcome of Execute. It is returned instead of an error so callers
// can fall back to cached data with the attempt statistics at hand.
type Result[T any] struct {
	Success   bool
	Data      T
	Err       error
	Attempts  int
	TotalTime time.Duration
}

// Unwrap returns the data and the final error.
func (r Result[T]) Unwrap() (T, error) {
	return r.Data, r.Err
}

// Delay returns the pre-jitter delay that follows the given failed attempt (1 based):
// min(BaseDelay * BackoffFactor^(attempt-1), MaxDelay).
func Delay(cfg Config, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := cfg.BackoffFactor
	if factor < 1 {
		factor = 1
	}

	delay := float64(cfg.BaseDelay) * math.Pow(factor, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		return cfg.MaxDelay
	}
	if delay > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// Execute runs op until it succeeds, the retry condition rejects the failure, ctx is
// done between attempts, or MaxAttempts is reached. An attempt already running is never
// interrupted by Execute itself.
func Execute[T any](ctx context.Context, op func(ctx context.Context) (T, error), cfg Config) Result[T] {
	start := time.Now()
	result := Result[T]{}

	if err := cfg.Validate(); err != nil {
		result.Err = err
		return result
	}
	cfg = cfg.withDefaults()

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result.Attempts = attempt

		data, err := op(ctx)
		if err == nil {
			result.Success = true
			result.Data = data
			result.Err = nil
			result.TotalTime = time.Since(start)
			return result
		}
		result.Err = err

		if attempt == cfg.MaxAttempts {
			cfg.Logger.Warn("retry attempts exhausted",
				zap.Int("attempts", attempt),
				zap.Stringer("kind", KindOf(err)),
				zap.Error(err),
			)
			if cfg.OnMaxAttemptsReached != nil {
				cfg.OnMaxAttemptsReached(err)
			}
			break
		}

		if !cfg.RetryCondition(err) {
			cfg.Logger.Debug("failure is not retryable",
				zap.Int("attempt", attempt),
				zap.Stringer("kind", KindOf(err)),
				zap.Error(err),
			)
			break
		}

		delay := Delay(cfg, attempt)
		if cfg.Jitter {
			delay += time.Duration(cfg.Rand() * float64(cfg.MaxJitter))
		}

		cfg.Logger.Debug("retrying operation",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}

		if sleepErr := cfg.Sleep(ctx, delay); sleepErr != nil {
			result.Err = fmt.Errorf("%w (retry aborted: %w)", err, sleepErr)
			break
		}
	}

	result.TotalTime = time.Since(start)
	return result
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
