package reliability

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy decides delay and attempt limits for a retried operation.
type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
	ShouldRetry(err error, attempt int) bool
	MaxAttempts() int
}

// RetryConfig tunes an ExponentialBackoffPolicy.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64
	ShouldRetry  func(error, int) bool
	OnRetry      func(attempt int, delay time.Duration, err error)
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond * 100,
		MaxDelay:     time.Second * 30,
		Multiplier:   2.0,
		Jitter:       0.1,
		ShouldRetry: func(err error, attempt int) bool {
			return err != nil
		},
		OnRetry: func(attempt int, delay time.Duration, err error) {},
	}
}

// ExponentialBackoffPolicy doubles (times Multiplier) the delay on each
// attempt up to MaxDelay, with jitter to avoid synchronized retries
// against the same KMS provider.
type ExponentialBackoffPolicy struct {
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	jitter       float64
	shouldRetry  func(error, int) bool
}

func NewExponentialBackoffPolicy(config RetryConfig) *ExponentialBackoffPolicy {
	defaults := DefaultRetryConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = defaults.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = defaults.MaxDelay
	}
	if config.Multiplier <= 0 {
		config.Multiplier = defaults.Multiplier
	}
	if config.Jitter < 0 || config.Jitter > 1 {
		config.Jitter = defaults.Jitter
	}
	if config.ShouldRetry == nil {
		config.ShouldRetry = defaults.ShouldRetry
	}

	return &ExponentialBackoffPolicy{
		maxAttempts:  config.MaxAttempts,
		initialDelay: config.InitialDelay,
		maxDelay:     config.MaxDelay,
		multiplier:   config.Multiplier,
		jitter:       config.Jitter,
		shouldRetry:  config.ShouldRetry,
	}
}

func (p *ExponentialBackoffPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		return 0
	}

	delay := float64(p.initialDelay) * math.Pow(p.multiplier, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}

	if p.jitter > 0 {
		jitterRange := delay * p.jitter
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
	}

	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

func (p *ExponentialBackoffPolicy) ShouldRetry(err error, attempt int) bool {
	if attempt >= p.maxAttempts-1 {
		return false
	}
	return p.shouldRetry(err, attempt)
}

func (p *ExponentialBackoffPolicy) MaxAttempts() int {
	return p.maxAttempts
}

// RetryExecutor runs an operation under a RetryPolicy, sleeping between
// attempts and honoring context cancellation.
type RetryExecutor struct {
	policy  RetryPolicy
	onRetry func(attempt int, delay time.Duration, err error)
}

func NewRetryExecutor(policy RetryPolicy) *RetryExecutor {
	return &RetryExecutor{
		policy:  policy,
		onRetry: func(attempt int, delay time.Duration, err error) {},
	}
}

func (r *RetryExecutor) SetOnRetryCallback(callback func(attempt int, delay time.Duration, err error)) {
	r.onRetry = callback
}

func (r *RetryExecutor) Execute(ctx context.Context, operation func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < r.policy.MaxAttempts(); attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := operation(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !r.policy.ShouldRetry(err, attempt) {
			break
		}
		if attempt >= r.policy.MaxAttempts()-1 {
			break
		}

		delay := r.policy.NextDelay(attempt)
		r.onRetry(attempt+1, delay, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}

// RetryStats summarizes one Execute run.
type RetryStats struct {
	TotalAttempts     int           `json:"total_attempts"`
	SuccessfulRetries int           `json:"successful_retries"`
	FailedRetries     int           `json:"failed_retries"`
	TotalDelay        time.Duration `json:"total_delay"`
	LastError         string        `json:"last_error,omitempty"`
}

// RetryExecutorWithStats wraps RetryExecutor and keeps the stats from
// its most recent run, surfaced through ReliabilityService.GetStats.
type RetryExecutorWithStats struct {
	*RetryExecutor
	stats RetryStats
}

func NewRetryExecutorWithStats(policy RetryPolicy) *RetryExecutorWithStats {
	executor := NewRetryExecutor(policy)
	statsExecutor := &RetryExecutorWithStats{RetryExecutor: executor}

	executor.SetOnRetryCallback(func(attempt int, delay time.Duration, err error) {
		statsExecutor.stats.TotalAttempts = attempt
		statsExecutor.stats.TotalDelay += delay
		if err != nil {
			statsExecutor.stats.LastError = err.Error()
		}
	})

	return statsExecutor
}

func (r *RetryExecutorWithStats) ExecuteWithStats(ctx context.Context, operation func(context.Context) error) error {
	r.stats = RetryStats{}

	err := r.Execute(ctx, operation)
	if err == nil && r.stats.TotalAttempts > 0 {
		r.stats.SuccessfulRetries++
	} else if err != nil {
		r.stats.FailedRetries++
		r.stats.LastError = err.Error()
	}

	return err
}

func (r *RetryExecutorWithStats) GetStats() RetryStats {
	return r.stats
}

func (r *RetryExecutorWithStats) ResetStats() {
	r.stats = RetryStats{}
}
