package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsCollector implements MetricsCollector by registering
// Prometheus vector collectors lazily, one per distinct metric name, the
// same pattern r3e-network-service_layer's infrastructure/metrics
// package uses for its own fixed set of named collectors — adapted here
// to an open set of names, since zvault's callers (seal transitions,
// lease revocations, audit failures, pipeline requests) report under
// names decided by their own packages rather than a single upfront
// schema.
//
// Each metric's tag keys are fixed at first observation: calling the
// same metric name again with a different tag-key set is a caller bug,
// not something this collector guards against, matching Prometheus's
// own requirement that a CounterVec's label names are fixed at
// registration.
type PrometheusMetricsCollector struct {
	registerer prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusMetricsCollector returns a MetricsCollector that registers
// its collectors against registerer (typically prometheus.DefaultRegisterer,
// which promhttp.Handler() in internal/transport serves at /sys/metrics).
func NewPrometheusMetricsCollector(registerer prometheus.Registerer) *PrometheusMetricsCollector {
	return &PrometheusMetricsCollector{
		registerer: registerer,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

func tagKeys(tags map[string]string) []string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	return keys
}

func (p *PrometheusMetricsCollector) counterVec(name string, tags map[string]string) *prometheus.CounterVec {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zvault_" + name,
		Help: "zvault counter metric " + name,
	}, tagKeys(tags))
	p.registerer.MustRegister(c)
	p.counters[name] = c
	return c
}

func (p *PrometheusMetricsCollector) gaugeVec(name string, tags map[string]string) *prometheus.GaugeVec {
	p.mu.Lock()
	defer p.mu.Unlock()
	if g, ok := p.gauges[name]; ok {
		return g
	}
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "zvault_" + name,
		Help: "zvault gauge metric " + name,
	}, tagKeys(tags))
	p.registerer.MustRegister(g)
	p.gauges[name] = g
	return g
}

func (p *PrometheusMetricsCollector) histogramVec(name string, tags map[string]string) *prometheus.HistogramVec {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.histograms[name]; ok {
		return h
	}
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zvault_" + name,
		Help:    "zvault histogram metric " + name,
		Buckets: prometheus.DefBuckets,
	}, tagKeys(tags))
	p.registerer.MustRegister(h)
	p.histograms[name] = h
	return h
}

// IncrementCounter implements MetricsCollector.
func (p *PrometheusMetricsCollector) IncrementCounter(name string, tags map[string]string) {
	p.counterVec(name, tags).With(tags).Inc()
}

// IncrementCounterBy implements MetricsCollector.
func (p *PrometheusMetricsCollector) IncrementCounterBy(name string, value int64, tags map[string]string) {
	p.counterVec(name, tags).With(tags).Add(float64(value))
}

// SetGauge implements MetricsCollector.
func (p *PrometheusMetricsCollector) SetGauge(name string, value float64, tags map[string]string) {
	p.gaugeVec(name, tags).With(tags).Set(value)
}

// RecordTiming implements MetricsCollector.
func (p *PrometheusMetricsCollector) RecordTiming(name string, duration time.Duration, tags map[string]string) {
	p.histogramVec(name, tags).With(tags).Observe(duration.Seconds())
}

// RecordValue implements MetricsCollector.
func (p *PrometheusMetricsCollector) RecordValue(name string, value float64, tags map[string]string) {
	p.histogramVec(name, tags).With(tags).Observe(value)
}

// Flush implements MetricsCollector. Prometheus collectors are scraped,
// not flushed; there is nothing to do.
func (p *PrometheusMetricsCollector) Flush() error { return nil }
