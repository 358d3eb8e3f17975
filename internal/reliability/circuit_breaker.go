package reliability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// CircuitState is the current position of a CircuitBreaker's state machine.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerConfig tunes when a breaker trips and how it recovers.
type CircuitBreakerConfig struct {
	FailureThreshold      int
	SuccessThreshold      int
	Timeout               time.Duration
	MaxConcurrentRequests int
	ShouldTrip            func(error) bool
	OnStateChange         func(name string, from, to CircuitState)
}

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:      5,
		SuccessThreshold:      2,
		Timeout:               time.Second * 60,
		MaxConcurrentRequests: 1,
		ShouldTrip: func(err error) bool {
			return err != nil
		},
		OnStateChange: func(name string, from, to CircuitState) {},
	}
}

// CircuitBreaker stops calling a failing dependency once it crosses
// FailureThreshold, then probes it again after Timeout elapses.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig

	mutex              sync.RWMutex
	state              CircuitState
	generation         int64
	failureCount       int
	successCount       int
	lastFailureTime    time.Time
	nextAttemptTime    time.Time
	concurrentRequests int32
}

func NewCircuitBreaker(name string, config CircuitBreakerConfig) *CircuitBreaker {
	defaults := DefaultCircuitBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = defaults.SuccessThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxConcurrentRequests <= 0 {
		config.MaxConcurrentRequests = defaults.MaxConcurrentRequests
	}
	if config.ShouldTrip == nil {
		config.ShouldTrip = defaults.ShouldTrip
	}
	if config.OnStateChange == nil {
		config.OnStateChange = defaults.OnStateChange
	}

	return &CircuitBreaker{
		name:   name,
		config: config,
		state:  StateClosed,
	}
}

// Execute runs fn under the breaker's protection, failing fast with a
// CircuitOpenError while the circuit is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}
	defer cb.afterRequest()

	err := fn(ctx)
	cb.recordResult(err)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	state, generation := cb.currentState(now)

	if state == StateOpen {
		return NewCircuitOpenError(cb.name, cb.nextAttemptTime)
	}

	if state == StateHalfOpen {
		if cb.concurrentRequests >= int32(cb.config.MaxConcurrentRequests) {
			return NewCircuitOpenError(cb.name, cb.nextAttemptTime)
		}
		cb.concurrentRequests++
	}

	cb.generation = generation
	return nil
}

func (cb *CircuitBreaker) afterRequest() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state == StateHalfOpen {
		cb.concurrentRequests--
	}
}

func (cb *CircuitBreaker) recordResult(err error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	now := time.Now()
	if cb.config.ShouldTrip(err) {
		cb.onFailure(now)
	} else {
		cb.onSuccess(now)
	}
}

func (cb *CircuitBreaker) onFailure(now time.Time) {
	cb.failureCount++
	cb.lastFailureTime = now

	switch cb.state {
	case StateClosed:
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.setState(StateOpen, now)
		}
	case StateHalfOpen:
		cb.setState(StateOpen, now)
	}
}

func (cb *CircuitBreaker) onSuccess(now time.Time) {
	switch cb.state {
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.config.SuccessThreshold {
			cb.setState(StateClosed, now)
		}
	case StateClosed:
		cb.failureCount = 0
	}
}

func (cb *CircuitBreaker) setState(state CircuitState, now time.Time) {
	prevState := cb.state
	cb.state = state

	switch state {
	case StateClosed:
		cb.failureCount = 0
		cb.successCount = 0
		cb.nextAttemptTime = time.Time{}
	case StateOpen:
		cb.nextAttemptTime = now.Add(cb.config.Timeout)
		cb.successCount = 0
	case StateHalfOpen:
		cb.successCount = 0
		cb.concurrentRequests = 0
	}

	cb.config.OnStateChange(cb.name, prevState, state)
}

// currentState lazily transitions an expired open circuit to half-open.
func (cb *CircuitBreaker) currentState(now time.Time) (CircuitState, int64) {
	if cb.state == StateOpen && now.After(cb.nextAttemptTime) {
		cb.setState(StateHalfOpen, now)
	}
	return cb.state, cb.generation
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()

	state, _ := cb.currentState(time.Now())
	return state
}

func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mutex.RLock()
	defer cb.mutex.RUnlock()

	return CircuitBreakerStats{
		Name:               cb.name,
		State:              cb.state,
		FailureCount:       cb.failureCount,
		SuccessCount:       cb.successCount,
		LastFailureTime:    cb.lastFailureTime,
		NextAttemptTime:    cb.nextAttemptTime,
		ConcurrentRequests: int(cb.concurrentRequests),
	}
}

type CircuitBreakerStats struct {
	Name               string       `json:"name"`
	State              CircuitState `json:"state"`
	FailureCount       int          `json:"failure_count"`
	SuccessCount       int          `json:"success_count"`
	LastFailureTime    time.Time    `json:"last_failure_time,omitempty"`
	NextAttemptTime    time.Time    `json:"next_attempt_time,omitempty"`
	ConcurrentRequests int          `json:"concurrent_requests"`
}

// CircuitOpenError is returned by Execute while a breaker is open.
type CircuitOpenError struct {
	CircuitName     string    `json:"circuit_name"`
	NextAttemptTime time.Time `json:"next_attempt_time"`
}

func NewCircuitOpenError(circuitName string, nextAttemptTime time.Time) *CircuitOpenError {
	return &CircuitOpenError{CircuitName: circuitName, NextAttemptTime: nextAttemptTime}
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is open, next attempt allowed at %s",
		e.CircuitName, e.NextAttemptTime.Format(time.RFC3339))
}

func IsCircuitOpenError(err error) bool {
	var circuitErr *CircuitOpenError
	return errors.As(err, &circuitErr)
}
