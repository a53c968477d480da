// Package metrics exposes the logger's counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/manudelosrios02/datalogger/internal/record"
)

const namespace = "datalogger"

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	samples       prometheus.Counter
	writeFailures prometheus.Counter
	readFailures  *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	sessionActive prometheus.Gauge
	measurement   *prometheus.GaugeVec
}

// New registers the collectors, plus the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		samples: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_written_total",
			Help:      "Data lines appended to the active recording.",
		}),
		writeFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_failures_total",
			Help:      "Data lines that could not be written or flushed.",
		}),
		readFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_failures_total",
			Help:      "Failed device reads by device.",
		}, []string{"device"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route.",
		}, []string{"route"}),
		sessionActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_active",
			Help:      "1 while a recording session is running.",
		}),
		measurement: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "measurement",
			Help:      "Latest acquired value by column of the recording header.",
		}, []string{"column"}),
	}
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) SampleWritten() { m.samples.Inc() }
func (m *Metrics) WriteFailed() { m.writeFailures.Inc() }
func (m *Metrics) ReadFailed(device string) { m.readFailures.WithLabelValues(device).Inc() }
func (m *Metrics) Request(route string) { m.httpRequests.WithLabelValues(route).Inc() }

// SessionActive sets the session gauge.
func (m *Metrics) SessionActive(active bool) {
	if active {
		m.sessionActive.Set(1)
		return
	}
	m.sessionActive.Set(0)
}

// Observe publishes the values of s under their header column names.
func (m *Metrics) Observe(s record.Sample) {
	for i, v := range s.Values() {
		m.measurement.WithLabelValues(record.Columns[i+1]).Set(v)
	}
}
