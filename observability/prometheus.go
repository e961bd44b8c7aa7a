package observability

import (
	"errors"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusFactory is a MetricFactory backed by a Prometheus registerer.
// Dotted metric names are mapped to underscore form ("subvault.charge.failed"
// becomes "subvault_charge_failed_total" for counters).
type PrometheusFactory struct {
	reg prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]prometheus.Counter
	histograms map[string]prometheus.Histogram
}

// NewPrometheusFactory creates a factory that registers every metric it
// creates with reg.
func NewPrometheusFactory(reg prometheus.Registerer) (*PrometheusFactory, error) {
	if reg == nil {
		return nil, errors.New("observability: nil prometheus registerer")
	}
	return &PrometheusFactory{
		reg:        reg,
		counters:   make(map[string]prometheus.Counter),
		histograms: make(map[string]prometheus.Histogram),
	}, nil
}

// Counter implements MetricFactory. Asking twice for the same name returns
// the same counter.
func (f *PrometheusFactory) Counter(name string) Counter {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: promName(name) + "_total",
		Help: "Count of " + name + " events",
	})
	f.reg.MustRegister(c)
	f.counters[name] = c
	return c
}

// Histogram implements MetricFactory.
func (f *PrometheusFactory) Histogram(name string) Histogram {
	f.mu.Lock()
	defer f.mu.Unlock()

	if h, ok := f.histograms[name]; ok {
		return h
	}
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    promName(name),
		Help:    "Distribution of " + name,
		Buckets: bucketsFor(name),
	})
	f.reg.MustRegister(h)
	f.histograms[name] = h
	return h
}

func promName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}

// bucketsFor picks exponential buckets for amounts and sizes, and the
// default buckets otherwise.
func bucketsFor(name string) []float64 {
	switch {
	case strings.HasSuffix(name, ".amount"):
		return prometheus.ExponentialBuckets(1, 10, 16)
	case strings.HasSuffix(name, ".size"):
		return prometheus.ExponentialBuckets(1, 2, 12)
	case strings.HasSuffix(name, "_ms"):
		return prometheus.ExponentialBuckets(1, 2, 16)
	default:
		return prometheus.DefBuckets
	}
}
