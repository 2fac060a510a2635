// Package metrics implements the ports.MetricsCollector interface with
// Prometheus, exposing request and pipeline counters for long-running
// dataset generation runs.
package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/huihuang/mdaqa/internal/ports"
)

// PrometheusCollector registers counter and histogram vectors lazily, keyed
// by metric name and label set, against a caller-supplied registry.
type PrometheusCollector struct {
	registerer prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

var _ ports.MetricsCollector = (*PrometheusCollector)(nil)

// NewPrometheusCollector creates a collector registering onto reg. Pass
// prometheus.DefaultRegisterer for the process-wide registry.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	return &PrometheusCollector{
		registerer: reg,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// RecordCounter increments the named counter by value.
func (c *PrometheusCollector) RecordCounter(metric string, value float64, labels map[string]string) {
	keys, values := splitLabels(labels)

	c.mu.Lock()
	vec, ok := c.counters[metric]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: sanitize(metric),
			Help: "Counter recorded by the mdaqa pipeline.",
		}, keys)
		c.registerer.MustRegister(vec)
		c.counters[metric] = vec
	}
	c.mu.Unlock()

	vec.WithLabelValues(values...).Add(value)
}

// RecordLatency observes an operation duration in seconds.
func (c *PrometheusCollector) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	keys, values := splitLabels(labels)
	metric := sanitize(operation) + "_duration_seconds"

	c.mu.Lock()
	vec, ok := c.histograms[metric]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metric,
			Help:    "Latency recorded by the mdaqa pipeline.",
			Buckets: prometheus.DefBuckets,
		}, keys)
		c.registerer.MustRegister(vec)
		c.histograms[metric] = vec
	}
	c.mu.Unlock()

	vec.WithLabelValues(values...).Observe(duration.Seconds())
}

// splitLabels returns label keys in sorted order with values aligned, so a
// metric always registers with a stable label schema.
func splitLabels(labels map[string]string) ([]string, []string) {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = labels[k]
	}
	return keys, values
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
