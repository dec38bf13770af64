package metrics

import (
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter serves metrics at an HTTP endpoint using the real
// Prometheus client library: it adapts this package's Registry (and any
// registered CustomCollector) into a prometheus.Collector, registers that
// collector on its own prometheus.Registry, and serves it with promhttp.

// PrometheusConfig configures the Prometheus exporter.
type PrometheusConfig struct {
	// Namespace is an optional prefix prepended to all metric names
	// (e.g. "aura" produces "aura_aura_slot_current").
	Namespace string
	// EnableRuntime controls whether Go's built-in process/runtime
	// collectors (goroutines, memory, GC) are registered alongside ours.
	EnableRuntime bool
	// Path is the HTTP path to serve metrics on (default "/metrics").
	Path string
}

// DefaultPrometheusConfig returns a config with sensible defaults.
func DefaultPrometheusConfig() PrometheusConfig {
	return PrometheusConfig{
		Namespace:     "aura",
		EnableRuntime: true,
		Path:          "/metrics",
	}
}

// CustomCollector is an interface for registering arbitrary metric producers
// that are called during each scrape.
type CustomCollector interface {
	// Collect returns a set of metric lines in Prometheus text format.
	Collect() []MetricLine
}

// MetricLine represents a single Prometheus metric data point with optional labels.
type MetricLine struct {
	Name   string
	Labels map[string]string
	Value  float64
}

// PrometheusExporter formats and serves metrics over HTTP via promhttp.
type PrometheusExporter struct {
	mu         sync.RWMutex
	config     PrometheusConfig
	registry   *Registry
	promReg    *prometheus.Registry
	collectors map[string]CustomCollector
}

// NewPrometheusExporter creates a new exporter that reads from the given
// Registry and registers a real prometheus.Collector wrapping it.
func NewPrometheusExporter(registry *Registry, config PrometheusConfig) *PrometheusExporter {
	if config.Path == "" {
		config.Path = "/metrics"
	}
	pe := &PrometheusExporter{
		config:     config,
		registry:   registry,
		promReg:    prometheus.NewRegistry(),
		collectors: make(map[string]CustomCollector),
	}
	pe.promReg.MustRegister(&registryCollector{exporter: pe})
	if config.EnableRuntime {
		pe.promReg.MustRegister(prometheus.NewGoCollector())
		pe.promReg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	}
	return pe
}

// RegisterCollector adds a named custom collector. If a collector with the
// same name exists, it is replaced.
func (pe *PrometheusExporter) RegisterCollector(name string, c CustomCollector) {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	pe.collectors[name] = c
}

// UnregisterCollector removes a previously registered custom collector.
func (pe *PrometheusExporter) UnregisterCollector(name string) {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	delete(pe.collectors, name)
}

// Handler returns an http.Handler that serves the configured path using
// promhttp against this exporter's own prometheus.Registry.
func (pe *PrometheusExporter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(pe.config.Path, promhttp.HandlerFor(pe.promReg, promhttp.HandlerOpts{}))
	return mux
}

// promName converts a dot/dash-separated metric name to Prometheus format
// and prepends the namespace prefix.
func (pe *PrometheusExporter) promName(name string) string {
	sanitized := strings.ReplaceAll(name, ".", "_")
	sanitized = strings.ReplaceAll(sanitized, "-", "_")
	if pe.config.Namespace != "" {
		return pe.config.Namespace + "_" + sanitized
	}
	return sanitized
}

// registryCollector adapts a Registry (plus any CustomCollectors) into a
// prometheus.Collector so it can be scraped through promhttp.
type registryCollector struct {
	exporter *PrometheusExporter
}

func (rc *registryCollector) Describe(ch chan<- *prometheus.Desc) {
	// Descriptors are generated dynamically in Collect; Describe is a
	// deliberate no-op so new metric names can appear without a restart
	// (the registry is unchecked for this collector).
}

func (rc *registryCollector) Collect(ch chan<- prometheus.Metric) {
	pe := rc.exporter
	reg := pe.registry

	reg.mu.RLock()
	counterNames := sortedKeys(reg.counters)
	for _, name := range counterNames {
		c := reg.counters[name]
		desc := prometheus.NewDesc(pe.promName(name), name, nil, nil)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(c.Value()))
	}
	gaugeNames := sortedKeys(reg.gauges)
	for _, name := range gaugeNames {
		g := reg.gauges[name]
		desc := prometheus.NewDesc(pe.promName(name), name, nil, nil)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(g.Value()))
	}
	histNames := sortedKeys(reg.histograms)
	for _, name := range histNames {
		h := reg.histograms[name]
		promName := pe.promName(name)
		ch <- prometheus.MustNewConstMetric(prometheus.NewDesc(promName+"_count", name+" count", nil, nil), prometheus.GaugeValue, float64(h.Count()))
		ch <- prometheus.MustNewConstMetric(prometheus.NewDesc(promName+"_sum", name+" sum", nil, nil), prometheus.GaugeValue, h.Sum())
		if h.Count() > 0 {
			ch <- prometheus.MustNewConstMetric(prometheus.NewDesc(promName+"_min", name+" min", nil, nil), prometheus.GaugeValue, h.Min())
			ch <- prometheus.MustNewConstMetric(prometheus.NewDesc(promName+"_max", name+" max", nil, nil), prometheus.GaugeValue, h.Max())
			ch <- prometheus.MustNewConstMetric(prometheus.NewDesc(promName+"_mean", name+" mean", nil, nil), prometheus.GaugeValue, h.Mean())
		}
	}
	reg.mu.RUnlock()

	pe.mu.RLock()
	collectors := make(map[string]CustomCollector, len(pe.collectors))
	for k, v := range pe.collectors {
		collectors[k] = v
	}
	pe.mu.RUnlock()

	for _, c := range collectors {
		for _, line := range c.Collect() {
			labelNames := make([]string, 0, len(line.Labels))
			labelValues := make([]string, 0, len(line.Labels))
			keys := make([]string, 0, len(line.Labels))
			for k := range line.Labels {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				labelNames = append(labelNames, k)
				labelValues = append(labelValues, line.Labels[k])
			}
			desc := prometheus.NewDesc(pe.promName(line.Name), line.Name, labelNames, nil)
			ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, line.Value, labelValues...)
		}
	}
}

// sortedKeys returns a sorted list of keys from a map of any metric type.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
