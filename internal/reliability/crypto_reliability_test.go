package reliability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCryptoReliabilityManager_KMSOperation_Success(t *testing.T) {
	config := DefaultCryptoReliabilityConfig()
	config.KMSOperations.CircuitBreaker.FailureThreshold = 2
	config.KMSOperations.Retry.MaxAttempts = 2

	manager := NewCryptoReliabilityManager(config)
	ctx := context.Background()

	callCount := 0
	err := manager.ExecuteKMSOperation(ctx, "unwrap", func(ctx context.Context) error {
		callCount++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, callCount)
}

func TestCryptoReliabilityManager_KMSOperation_RetriesThenSucceeds(t *testing.T) {
	config := DefaultCryptoReliabilityConfig()
	config.KMSOperations.Retry.MaxAttempts = 3

	manager := NewCryptoReliabilityManager(config)
	ctx := context.Background()
	testError := errors.New("kms transient error")

	callCount := 0
	err := manager.ExecuteKMSOperation(ctx, "unwrap", func(ctx context.Context) error {
		callCount++
		if callCount < 3 {
			return testError
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, callCount)
}

func TestCryptoReliabilityManager_KMSOperation_OpensCircuit(t *testing.T) {
	config := DefaultCryptoReliabilityConfig()
	config.KMSOperations.CircuitBreaker.FailureThreshold = 1
	config.KMSOperations.Retry.MaxAttempts = 1

	manager := NewCryptoReliabilityManager(config)
	ctx := context.Background()
	testError := errors.New("kms unavailable")

	err1 := manager.ExecuteKMSOperation(ctx, "wrap", func(ctx context.Context) error {
		return testError
	})
	assert.Equal(t, testError, err1)

	err2 := manager.ExecuteKMSOperation(ctx, "wrap", func(ctx context.Context) error {
		t.Error("function should not be called when circuit is open")
		return nil
	})
	assert.True(t, IsCircuitOpenError(err2))
}

func TestCryptoReliabilityManager_Stats(t *testing.T) {
	manager := NewCryptoReliabilityManager(DefaultCryptoReliabilityConfig())
	ctx := context.Background()

	manager.ExecuteKMSOperation(ctx, "unwrap", func(ctx context.Context) error {
		return nil
	})
	manager.ExecuteKMSOperation(ctx, "wrap", func(ctx context.Context) error {
		return errors.New("failed")
	})

	stats := manager.GetAllStats()
	assert.Len(t, stats, 2)
	assert.Contains(t, stats, "kms_unwrap")
	assert.Contains(t, stats, "kms_wrap")
}

func TestCryptoReliabilityConfig_Defaults(t *testing.T) {
	config := DefaultCryptoReliabilityConfig()

	assert.Equal(t, 3, config.KMSOperations.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 3, config.KMSOperations.Retry.MaxAttempts)
}

func BenchmarkCryptoReliabilityManager_KMSOperation(b *testing.B) {
	manager := NewCryptoReliabilityManager(DefaultCryptoReliabilityConfig())
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		manager.ExecuteKMSOperation(ctx, "benchmark", func(ctx context.Context) error {
			return nil
		})
	}
}
