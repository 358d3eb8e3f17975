package reliability

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ReliabilityConfig composes a circuit breaker and a retry policy around
// one named dependency.
type ReliabilityConfig struct {
	CircuitBreaker CircuitBreakerConfig
	Retry          RetryConfig
	EnableMetrics  bool
	MetricsPrefix  string
}

func DefaultReliabilityConfig() ReliabilityConfig {
	return ReliabilityConfig{
		CircuitBreaker: DefaultCircuitBreakerConfig(),
		Retry:          DefaultRetryConfig(),
		EnableMetrics:  true,
		MetricsPrefix:  "reliability",
	}
}

// ReliabilityService wraps one dependency's calls in a circuit breaker,
// retrying within each breaker-permitted attempt.
type ReliabilityService struct {
	name           string
	config         ReliabilityConfig
	circuitBreaker *CircuitBreaker
	retryExecutor  *RetryExecutorWithStats
	metrics        *ReliabilityMetrics
	mutex          sync.RWMutex
}

func NewReliabilityService(name string, config ReliabilityConfig) *ReliabilityService {
	cbConfig := config.CircuitBreaker
	circuitBreaker := NewCircuitBreaker(name, cbConfig)

	retryPolicy := NewExponentialBackoffPolicy(config.Retry)
	retryExecutor := NewRetryExecutorWithStats(retryPolicy)

	var metrics *ReliabilityMetrics
	if config.EnableMetrics {
		metrics = NewReliabilityMetrics(name, config.MetricsPrefix)
		retryExecutor.SetOnRetryCallback(func(attempt int, delay time.Duration, err error) {
			metrics.RecordRetry(attempt, delay, err)
		})
		circuitBreaker.config.OnStateChange = func(cbName string, from, to CircuitState) {
			metrics.RecordStateChange(from, to)
		}
	}

	return &ReliabilityService{
		name:           name,
		config:         config,
		circuitBreaker: circuitBreaker,
		retryExecutor:  retryExecutor,
		metrics:        metrics,
	}
}

// Execute runs operation under both the circuit breaker and the retry
// policy: the breaker gates whether an attempt is made at all, the
// retry executor governs how many times it is attempted once gated in.
func (rs *ReliabilityService) Execute(ctx context.Context, operation func(context.Context) error) error {
	start := time.Now()

	err := rs.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		return rs.retryExecutor.ExecuteWithStats(ctx, operation)
	})

	duration := time.Since(start)
	if rs.metrics != nil {
		if err == nil {
			rs.metrics.RecordSuccess(duration)
		} else {
			rs.metrics.RecordFailure(duration, err)
		}
	}

	return err
}

// GetStats reports the breaker state, retry counts, and latency history
// for this dependency, surfaced through the sys/health endpoint.
func (rs *ReliabilityService) GetStats() ReliabilityStats {
	rs.mutex.RLock()
	defer rs.mutex.RUnlock()

	stats := ReliabilityStats{
		Name:                rs.name,
		CircuitBreakerStats: rs.circuitBreaker.Stats(),
		RetryStats:          rs.retryExecutor.GetStats(),
	}

	if rs.metrics != nil {
		stats.Metrics = rs.metrics.GetMetrics()
	}

	return stats
}

func (rs *ReliabilityService) IsHealthy() bool {
	state := rs.circuitBreaker.State()
	return state == StateClosed || state == StateHalfOpen
}

type ReliabilityStats struct {
	Name                string                  `json:"name"`
	CircuitBreakerStats CircuitBreakerStats     `json:"circuit_breaker"`
	RetryStats          RetryStats              `json:"retry"`
	Metrics             *ReliabilityMetricsData `json:"metrics,omitempty"`
}

// ReliabilityMetrics accumulates request counts, latency, and circuit
// transitions for one ReliabilityService.
type ReliabilityMetrics struct {
	serviceName string
	prefix      string
	data        ReliabilityMetricsData
	mutex       sync.RWMutex
}

type ReliabilityMetricsData struct {
	TotalRequests       int64            `json:"total_requests"`
	SuccessfulRequests  int64            `json:"successful_requests"`
	FailedRequests      int64            `json:"failed_requests"`
	CircuitOpenRequests int64            `json:"circuit_open_requests"`
	RetryAttempts       int64            `json:"retry_attempts"`
	TotalLatency        time.Duration    `json:"total_latency"`
	AverageLatency      time.Duration    `json:"average_latency"`
	StateTransitions    map[string]int64 `json:"state_transitions"`
	LastUpdate          time.Time        `json:"last_update"`
}

func NewReliabilityMetrics(serviceName, prefix string) *ReliabilityMetrics {
	return &ReliabilityMetrics{
		serviceName: serviceName,
		prefix:      prefix,
		data:        ReliabilityMetricsData{StateTransitions: make(map[string]int64)},
	}
}

func (rm *ReliabilityMetrics) RecordSuccess(duration time.Duration) {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()

	rm.data.TotalRequests++
	rm.data.SuccessfulRequests++
	rm.data.TotalLatency += duration
	rm.data.AverageLatency = rm.data.TotalLatency / time.Duration(rm.data.TotalRequests)
	rm.data.LastUpdate = time.Now()
}

func (rm *ReliabilityMetrics) RecordFailure(duration time.Duration, err error) {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()

	rm.data.TotalRequests++
	rm.data.FailedRequests++
	rm.data.TotalLatency += duration
	rm.data.AverageLatency = rm.data.TotalLatency / time.Duration(rm.data.TotalRequests)
	rm.data.LastUpdate = time.Now()

	if IsCircuitOpenError(err) {
		rm.data.CircuitOpenRequests++
	}
}

func (rm *ReliabilityMetrics) RecordRetry(attempt int, delay time.Duration, err error) {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()

	rm.data.RetryAttempts++
	rm.data.LastUpdate = time.Now()
}

func (rm *ReliabilityMetrics) RecordStateChange(from, to CircuitState) {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()

	key := fmt.Sprintf("%s_to_%s", from.String(), to.String())
	rm.data.StateTransitions[key]++
	rm.data.LastUpdate = time.Now()
}

func (rm *ReliabilityMetrics) GetMetrics() *ReliabilityMetricsData {
	rm.mutex.RLock()
	defer rm.mutex.RUnlock()

	data := rm.data
	data.StateTransitions = make(map[string]int64, len(rm.data.StateTransitions))
	for k, v := range rm.data.StateTransitions {
		data.StateTransitions[k] = v
	}

	return &data
}

// ReliabilityManager keys a ReliabilityService per dependency name, so
// each named operation gets its own breaker and retry budget.
type ReliabilityManager struct {
	services map[string]*ReliabilityService
	mutex    sync.RWMutex
}

func NewReliabilityManager() *ReliabilityManager {
	return &ReliabilityManager{services: make(map[string]*ReliabilityService)}
}

func (rm *ReliabilityManager) GetOrCreate(name string, config ReliabilityConfig) *ReliabilityService {
	rm.mutex.Lock()
	defer rm.mutex.Unlock()

	if service, exists := rm.services[name]; exists {
		return service
	}

	service := NewReliabilityService(name, config)
	rm.services[name] = service
	return service
}

// GetAllStats reports every managed dependency's stats, the backing
// data for the operator-facing sys/health endpoint.
func (rm *ReliabilityManager) GetAllStats() map[string]ReliabilityStats {
	rm.mutex.RLock()
	defer rm.mutex.RUnlock()

	stats := make(map[string]ReliabilityStats, len(rm.services))
	for name, service := range rm.services {
		stats[name] = service.GetStats()
	}
	return stats
}
