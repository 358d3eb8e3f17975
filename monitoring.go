package zvault

// Re-export monitoring types and constructors for public use, the
// teacher's pattern for keeping internal/monitoring's implementations
// reachable without exposing the internal/ import path.
import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zvault/zvault/internal/monitoring"
)

// Constructor functions
var (
	NewInMemoryMetricsCollector = monitoring.NewInMemoryMetricsCollector
)

// NewPrometheusMetricsCollector returns a MetricsCollector that
// registers its collectors against registerer, typically
// prometheus.DefaultRegisterer (the same registry
// internal/transport.NewRouter serves at /sys/metrics via
// promhttp.Handler()).
func NewPrometheusMetricsCollector(registerer prometheus.Registerer) MetricsCollector {
	return monitoring.NewPrometheusMetricsCollector(registerer)
}

// Default implementations
var (
	NoOpMetricsCollector = &monitoring.NoOpMetricsCollector{}
)
