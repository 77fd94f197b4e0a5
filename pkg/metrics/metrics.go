// Package metrics exposes ingestion counters and gauges for Prometheus.
//
// All methods are safe to call on a nil *Metrics, so components can be
// constructed without instrumentation in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "insole"

// Connection attempt results.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds the ingestion pipeline instruments.
type Metrics struct {
	registry *prometheus.Registry

	linesReceived     prometheus.Counter
	linesDiscarded    prometheus.Counter
	readingsPublished prometheus.Counter
	simulatedServed   prometheus.Counter
	readErrors        prometheus.Counter
	connectAttempts   *prometheus.CounterVec
	connected         prometheus.Gauge
	registrySize      prometheus.Gauge
	autoDisabled      prometheus.Gauge
}

// New creates the instruments and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		linesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_received_total",
			Help:      "Non-empty lines read from the link",
		}),
		linesDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_discarded_total",
			Help:      "Lines dropped as malformed or truncated",
		}),
		readingsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_published_total",
			Help:      "Filtered readings published to the snapshot cache",
		}),
		simulatedServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulated_readings_total",
			Help:      "Synthetic readings served because no real data arrived in time",
		}),
		readErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_errors_total",
			Help:      "I/O errors that forced a reconnect",
		}),
		connectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Transport open attempts by candidate and result",
		}, []string{"transport", "result"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 while a transport is connected",
		}),
		registrySize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensors",
			Help:      "Number of sensors in the registry",
		}),
		autoDisabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensors_auto_disabled",
			Help:      "Sensors disabled by noise or outlier detection",
		}),
	}

	m.registry.MustRegister(
		m.linesReceived,
		m.linesDiscarded,
		m.readingsPublished,
		m.simulatedServed,
		m.readErrors,
		m.connectAttempts,
		m.connected,
		m.registrySize,
		m.autoDisabled,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) LineReceived() {
	if m != nil {
		m.linesReceived.Inc()
	}
}

func (m *Metrics) LineDiscarded() {
	if m != nil {
		m.linesDiscarded.Inc()
	}
}

func (m *Metrics) ReadingPublished() {
	if m != nil {
		m.readingsPublished.Inc()
	}
}

func (m *Metrics) SimulatedServed() {
	if m != nil {
		m.simulatedServed.Inc()
	}
}

func (m *Metrics) ReadError() {
	if m != nil {
		m.readErrors.Inc()
	}
}

// ConnectAttempt records one open attempt on the named transport.
func (m *Metrics) ConnectAttempt(transport string, err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.connectAttempts.WithLabelValues(transport, result).Inc()
}

func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

// SetSensors records the registry size and the number of auto-disabled sensors.
func (m *Metrics) SetSensors(total, autoDisabled int) {
	if m == nil {
		return
	}
	m.registrySize.Set(float64(total))
	m.autoDisabled.Set(float64(autoDisabled))
}
