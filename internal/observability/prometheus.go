package observability

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements the Metrics interface using the Prometheus
// client library. Collectors are created lazily the first time a metric name
// is used and registered with the supplied registry; metric names are
// namespaced with the service name and normalized to Prometheus conventions
// (dots become underscores).
type PrometheusMetrics struct {
	mu          sync.Mutex
	serviceName string
	registry    prometheus.Registerer

	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
}

// NewPrometheusMetrics creates a metrics collector registered against reg.
// Pass prometheus.DefaultRegisterer for the process-wide registry.
func NewPrometheusMetrics(serviceName string, reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusMetrics{
		serviceName: sanitize(serviceName),
		registry:    reg,
		counters:    make(map[string]*prometheus.CounterVec),
		histograms:  make(map[string]*prometheus.HistogramVec),
		gauges:      make(map[string]*prometheus.GaugeVec),
	}
}

// IncrementCounter increments the counter identified by name and tags.
// The label set is fixed by the first call for a given name; later calls
// with extra tags fall back to the registered labels.
func (m *PrometheusMetrics) IncrementCounter(name string, tags map[string]string) {
	labels := labelKeys(tags)
	m.mu.Lock()
	vec, ok := m.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: m.fqName(name),
			Help: fmt.Sprintf("Total %s events", name),
		}, labels)
		if err := m.registry.Register(vec); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				vec = are.ExistingCollector.(*prometheus.CounterVec)
			}
		}
		m.counters[name] = vec
	}
	m.mu.Unlock()

	if c, err := vec.GetMetricWith(prometheus.Labels(tagValues(tags, labels))); err == nil {
		c.Inc()
	}
}

// RecordHistogram records value in the histogram identified by name and tags.
func (m *PrometheusMetrics) RecordHistogram(name string, value float64, tags map[string]string) {
	labels := labelKeys(tags)
	m.mu.Lock()
	vec, ok := m.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    m.fqName(name),
			Help:    fmt.Sprintf("Distribution of %s", name),
			Buckets: prometheus.DefBuckets,
		}, labels)
		if err := m.registry.Register(vec); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				vec = are.ExistingCollector.(*prometheus.HistogramVec)
			}
		}
		m.histograms[name] = vec
	}
	m.mu.Unlock()

	if h, err := vec.GetMetricWith(prometheus.Labels(tagValues(tags, labels))); err == nil {
		h.Observe(value)
	}
}

// RecordGauge sets the gauge identified by name and tags to value.
func (m *PrometheusMetrics) RecordGauge(name string, value float64, tags map[string]string) {
	labels := labelKeys(tags)
	m.mu.Lock()
	vec, ok := m.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: m.fqName(name),
			Help: fmt.Sprintf("Current value of %s", name),
		}, labels)
		if err := m.registry.Register(vec); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				vec = are.ExistingCollector.(*prometheus.GaugeVec)
			}
		}
		m.gauges[name] = vec
	}
	m.mu.Unlock()

	if g, err := vec.GetMetricWith(prometheus.Labels(tagValues(tags, labels))); err == nil {
		g.Set(value)
	}
}

func (m *PrometheusMetrics) fqName(name string) string {
	return fmt.Sprintf("%s_%s", m.serviceName, sanitize(name))
}

func sanitize(name string) string {
	return strings.NewReplacer(".", "_", "-", "_", " ", "_").Replace(name)
}

func labelKeys(tags map[string]string) []string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func tagValues(tags map[string]string, labels []string) map[string]string {
	out := make(map[string]string, len(labels))
	for _, k := range labels {
		out[k] = tags[k]
	}
	return out
}

// NopMetrics discards all measurements. Used in tests.
type NopMetrics struct{}

func (NopMetrics) IncrementCounter(string, map[string]string)        {}
func (NopMetrics) RecordHistogram(string, float64, map[string]string) {}
func (NopMetrics) RecordGauge(string, float64, map[string]string)     {}

var _ Metrics = (*PrometheusMetrics)(nil)
var _ Metrics = NopMetrics{}
