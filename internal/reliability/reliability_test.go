package reliability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_BasicOperation(t *testing.T) {
	config := DefaultCircuitBreakerConfig()
	config.FailureThreshold = 2
	config.Timeout = time.Millisecond * 100

	cb := NewCircuitBreaker("test", config)
	ctx := context.Background()

	err := cb.Execute(ctx, func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_FailureThreshold(t *testing.T) {
	config := DefaultCircuitBreakerConfig()
	config.FailureThreshold = 2
	config.Timeout = time.Millisecond * 100

	cb := NewCircuitBreaker("test", config)
	ctx := context.Background()
	testError := errors.New("test error")

	err := cb.Execute(ctx, func(ctx context.Context) error { return testError })
	assert.Equal(t, testError, err)
	assert.Equal(t, StateClosed, cb.State())

	err = cb.Execute(ctx, func(ctx context.Context) error { return testError })
	assert.Equal(t, testError, err)
	assert.Equal(t, StateOpen, cb.State())

	err = cb.Execute(ctx, func(ctx context.Context) error {
		t.Error("function should not be called when circuit is open")
		return nil
	})
	assert.True(t, IsCircuitOpenError(err))
}

func TestCircuitBreaker_HalfOpenState(t *testing.T) {
	config := DefaultCircuitBreakerConfig()
	config.FailureThreshold = 1
	config.SuccessThreshold = 1
	config.Timeout = time.Millisecond * 50

	cb := NewCircuitBreaker("test", config)
	ctx := context.Background()

	cb.Execute(ctx, func(ctx context.Context) error { return errors.New("test error") })
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(time.Millisecond * 60)

	err := cb.Execute(ctx, func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestExponentialBackoffPolicy(t *testing.T) {
	config := RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond * 10,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       0.0,
	}

	policy := NewExponentialBackoffPolicy(config)

	assert.Equal(t, time.Millisecond*10, policy.NextDelay(0))
	assert.Equal(t, time.Millisecond*20, policy.NextDelay(1))
	assert.Equal(t, time.Millisecond*40, policy.NextDelay(2))

	assert.True(t, policy.ShouldRetry(errors.New("test"), 0))
	assert.True(t, policy.ShouldRetry(errors.New("test"), 1))
	assert.False(t, policy.ShouldRetry(errors.New("test"), 2))
}

func TestRetryExecutor_Success(t *testing.T) {
	policy := NewExponentialBackoffPolicy(RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond * 10})
	executor := NewRetryExecutor(policy)
	ctx := context.Background()

	callCount := 0
	err := executor.Execute(ctx, func(ctx context.Context) error {
		callCount++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, callCount)
}

func TestRetryExecutor_EventualSuccess(t *testing.T) {
	policy := NewExponentialBackoffPolicy(RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond * 10})
	executor := NewRetryExecutor(policy)
	ctx := context.Background()

	callCount := 0
	err := executor.Execute(ctx, func(ctx context.Context) error {
		callCount++
		if callCount < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, callCount)
}

func TestRetryExecutor_MaxAttemptsExceeded(t *testing.T) {
	policy := NewExponentialBackoffPolicy(RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond * 10})
	executor := NewRetryExecutor(policy)
	ctx := context.Background()

	testError := errors.New("persistent error")
	callCount := 0

	err := executor.Execute(ctx, func(ctx context.Context) error {
		callCount++
		return testError
	})

	assert.Equal(t, testError, err)
	assert.Equal(t, 2, callCount)
}

func TestReliabilityService_Integration(t *testing.T) {
	config := DefaultReliabilityConfig()
	config.CircuitBreaker.FailureThreshold = 2
	config.CircuitBreaker.Timeout = time.Millisecond * 100
	config.Retry.MaxAttempts = 2

	service := NewReliabilityService("test-service", config)
	ctx := context.Background()

	callCount := 0
	err := service.Execute(ctx, func(ctx context.Context) error {
		callCount++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, callCount)
	assert.True(t, service.IsHealthy())
}

func TestReliabilityService_WithFailures(t *testing.T) {
	config := DefaultReliabilityConfig()
	config.CircuitBreaker.FailureThreshold = 3
	config.CircuitBreaker.Timeout = time.Millisecond * 100
	config.Retry.MaxAttempts = 2

	service := NewReliabilityService("test-service", config)
	ctx := context.Background()
	testError := errors.New("test error")

	for i := 0; i < 3; i++ {
		callCount := 0
		err := service.Execute(ctx, func(ctx context.Context) error {
			callCount++
			return testError
		})
		assert.Equal(t, testError, err)
		assert.Equal(t, 2, callCount)
	}

	callCount := 0
	err := service.Execute(ctx, func(ctx context.Context) error {
		callCount++
		return nil
	})
	assert.True(t, IsCircuitOpenError(err))
	assert.Equal(t, 0, callCount)
	assert.False(t, service.IsHealthy())
}

func TestReliabilityManager(t *testing.T) {
	manager := NewReliabilityManager()

	service1 := manager.GetOrCreate("service1", DefaultReliabilityConfig())
	service2 := manager.GetOrCreate("service2", DefaultReliabilityConfig())
	require.NotNil(t, service1)
	require.NotNil(t, service2)

	sameService1 := manager.GetOrCreate("service1", DefaultReliabilityConfig())
	assert.Same(t, service1, sameService1)

	allStats := manager.GetAllStats()
	assert.Len(t, allStats, 2)
}

func TestConcurrentAccess(t *testing.T) {
	config := DefaultReliabilityConfig()
	config.CircuitBreaker.FailureThreshold = 10
	config.Retry.MaxAttempts = 2

	service := NewReliabilityService("concurrent-test", config)
	ctx := context.Background()

	const numGoroutines = 10
	const operationsPerGoroutine = 10

	var wg sync.WaitGroup
	results := make([][]error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(goroutineIndex int) {
			defer wg.Done()
			results[goroutineIndex] = make([]error, operationsPerGoroutine)

			for j := 0; j < operationsPerGoroutine; j++ {
				err := service.Execute(ctx, func(ctx context.Context) error {
					time.Sleep(time.Microsecond * 10)
					if j%3 == 0 {
						return fmt.Errorf("error %d-%d", goroutineIndex, j)
					}
					return nil
				})
				results[goroutineIndex][j] = err
			}
		}(i)
	}

	wg.Wait()

	totalOperations := 0
	for _, goroutineResults := range results {
		totalOperations += len(goroutineResults)
	}
	assert.Equal(t, numGoroutines*operationsPerGoroutine, totalOperations)

	stats := service.GetStats()
	t.Logf("final stats: %+v", stats)
}

func BenchmarkCircuitBreaker_ClosedState(b *testing.B) {
	cb := NewCircuitBreaker("benchmark", DefaultCircuitBreakerConfig())
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cb.Execute(ctx, func(ctx context.Context) error {
			return nil
		})
	}
}

func BenchmarkRetryExecutor_NoRetries(b *testing.B) {
	policy := NewExponentialBackoffPolicy(RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond})
	executor := NewRetryExecutor(policy)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		executor.Execute(ctx, func(ctx context.Context) error {
			return nil
		})
	}
}

func BenchmarkReliabilityService_Success(b *testing.B) {
	service := NewReliabilityService("benchmark", DefaultReliabilityConfig())
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		service.Execute(ctx, func(ctx context.Context) error {
			return nil
		})
	}
}
