package reliability

import (
	"context"
	"time"
)

// CryptoReliabilityConfig tunes reliability for KMS calls made during
// auto-unseal. A vault has exactly one external dependency on the
// critical unseal path: the configured unseal-key provider.
type CryptoReliabilityConfig struct {
	KMSOperations ReliabilityConfig
}

// DefaultCryptoReliabilityConfig tightens the generic defaults for a
// provider that, if it stalls, blocks every mount from unsealing.
func DefaultCryptoReliabilityConfig() CryptoReliabilityConfig {
	kmsConfig := DefaultReliabilityConfig()
	kmsConfig.CircuitBreaker.FailureThreshold = 3
	kmsConfig.CircuitBreaker.Timeout = time.Second * 30
	kmsConfig.Retry.MaxAttempts = 3
	kmsConfig.Retry.InitialDelay = time.Millisecond * 200
	kmsConfig.Retry.MaxDelay = time.Second * 10

	return CryptoReliabilityConfig{KMSOperations: kmsConfig}
}

// CryptoReliabilityManager keys a ReliabilityService per KMS operation
// name (e.g. "unwrap", "wrap"), so a provider degrading on one call
// shape doesn't trip the breaker for another.
type CryptoReliabilityManager struct {
	manager *ReliabilityManager
	config  CryptoReliabilityConfig
}

func NewCryptoReliabilityManager(config CryptoReliabilityConfig) *CryptoReliabilityManager {
	return &CryptoReliabilityManager{
		manager: NewReliabilityManager(),
		config:  config,
	}
}

// ExecuteKMSOperation runs operation against the named KMS call under
// that call's own circuit breaker and retry budget.
func (crm *CryptoReliabilityManager) ExecuteKMSOperation(
	ctx context.Context,
	operationName string,
	operation func(context.Context) error,
) error {
	service := crm.manager.GetOrCreate("kms_"+operationName, crm.config.KMSOperations)
	return service.Execute(ctx, operation)
}

// GetAllStats reports every KMS operation's reliability stats, the
// backing data for the operator-facing sys/health endpoint.
func (crm *CryptoReliabilityManager) GetAllStats() map[string]ReliabilityStats {
	return crm.manager.GetAllStats()
}
