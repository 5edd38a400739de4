package retry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrCircuitOpen is returned without invoking the guarded operation while the breaker is open.
var ErrCircuitOpen = NewError(KindCircuitOpen, "circuit breaker is open")

// State represents the state of the circuit breaker.
type State int

const (
	// StateClosed means calls pass through.
	StateClosed State = iota
	// StateOpen means calls are rejected with ErrCircuitOpen.
	StateOpen
	// StateHalfOpen means a single trial call is allowed.
	StateHalfOpen
)

// String returns a human-readable state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds configuration for the circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `toml:"failure_threshold" yaml:"failure_threshold"` // failures before opening (default: 5)
	ResetTimeout     time.Duration `toml:"reset_timeout" yaml:"reset_timeout"`         // time since the last failure before a trial call (default: 60s)
	MonitoringPeriod time.Duration `toml:"monitoring_period" yaml:"monitoring_period"` // failures older than this are forgotten (default: 120s)

	Now    func() time.Time `toml:"-" yaml:"-"`
	Logger *zap.Logger      `toml:"-" yaml:"-"`
}

// DefaultBreakerConfig returns a default circuit breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     60 * time.Second,
		MonitoringPeriod: 120 * time.Second,
	}
}

// CircuitBreaker stops calling a failing dependency until a cooldown elapses.
type CircuitBreaker struct {
	failureThreshold int
	resetTimeout     time.Duration
	monitoringPeriod time.Duration
	now              func() time.Time
	logger           *zap.Logger

	mu            sync.Mutex
	state         State
	failures      int
	lastFailure   time.Time
	trialInFlight bool
}

// NewCircuitBreaker creates a closed breaker. Zero config values fall back to the defaults.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	defaults := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaults.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = defaults.ResetTimeout
	}
	if cfg.MonitoringPeriod <= 0 {
		cfg.MonitoringPeriod = defaults.MonitoringPeriod
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &CircuitBreaker{
		failureThreshold: cfg.FailureThreshold,
		resetTimeout:     cfg.ResetTimeout,
		monitoringPeriod: cfg.MonitoringPeriod,
		now:              cfg.Now,
		logger:           cfg.Logger,
		state:            StateClosed,
	}
}

// Call runs fn under breaker protection.
func (cb *CircuitBreaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	trial, err := cb.admit()
	if err != nil {
		return err
	}

	callErr := fn(ctx)
	cb.record(trial, callErr)
	return callErr
}

// Guard runs fn under cb and returns its value.
func Guard[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var value T
	err := cb.Call(ctx, func(ctx context.Context) error {
		var callErr error
		value, callErr = fn(ctx)
		return callErr
	})
	return value, err
}

// admit decides whether a call may proceed and whether it is the half-open trial.
func (cb *CircuitBreaker) admit() (bool, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	cb.decay(now)

	switch cb.state {
	case StateOpen:
		if now.Sub(cb.lastFailure) < cb.resetTimeout {
			return false, ErrCircuitOpen
		}
		cb.logger.Info("circuit breaker transitioning to half-open", zap.Duration("reset_timeout", cb.resetTimeout))
		cb.state = StateHalfOpen
		cb.trialInFlight = true
		return true, nil
	case StateHalfOpen:
		if cb.trialInFlight {
			return false, ErrCircuitOpen
		}
		cb.trialInFlight = true
		return true, nil
	}
	return false, nil
}

// record updates the breaker with the outcome of an admitted call.
func (cb *CircuitBreaker) record(trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if trial {
		cb.trialInFlight = false
	}

	if err == nil {
		if cb.state == StateHalfOpen {
			cb.logger.Info("circuit breaker closing after successful trial")
		}
		cb.state = StateClosed
		cb.failures = 0
		return
	}

	now := cb.now()
	cb.decay(now)
	cb.failures++
	cb.lastFailure = now

	if cb.state == StateHalfOpen || cb.failures >= cb.failureThreshold {
		if cb.state != StateOpen {
			cb.logger.Warn("circuit breaker opening",
				zap.Int("failures", cb.failures),
				zap.Int("threshold", cb.failureThreshold),
				zap.Error(err),
			)
		}
		cb.state = StateOpen
	}
}

// decay forgets failures older than the monitoring period, whatever the state.
func (cb *CircuitBreaker) decay(now time.Time) {
	if cb.failures > 0 && now.Sub(cb.lastFailure) > cb.monitoringPeriod {
		cb.failures = 0
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// StateString returns a human-readable state string.
func (cb *CircuitBreaker) StateString() string {
	return cb.State().String()
}

// Failures returns the current failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset closes the breaker and forgets all failures.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.lastFailure = time.Time{}
	cb.trialInFlight = false
}
