// Package metrics exposes fieldsim's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the service collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	IrrigationStarted   prometheus.Counter
	IrrigationCompleted prometheus.Counter
	WaterUsedLiters     prometheus.Counter
	TelemetryReadings   prometheus.Counter
	EventsDropped       prometheus.Counter
	HTTPDuration        *prometheus.HistogramVec
}

// New constructs and registers metrics. deviceCount and activeCount back
// the registered devices and active irrigation gauges and are read on every
// scrape.
func New(deviceCount, activeCount func() int) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		IrrigationStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldsim_irrigation_started_total",
			Help: "Irrigation runs started",
		}),
		IrrigationCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldsim_irrigation_completed_total",
			Help: "Irrigation runs completed",
		}),
		WaterUsedLiters: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldsim_water_used_liters_total",
			Help: "Water used by completed irrigation runs in liters",
		}),
		TelemetryReadings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldsim_telemetry_readings_total",
			Help: "Telemetry readings synthesized",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldsim_events_dropped_total",
			Help: "Events dropped because the dispatch queue was full",
		}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fieldsim_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "fieldsim_devices_registered",
			Help: "Devices currently registered",
		}, func() float64 { return float64(deviceCount()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "fieldsim_irrigation_active",
			Help: "Irrigation runs in progress",
		}, func() float64 { return float64(activeCount()) }),
		m.IrrigationStarted,
		m.IrrigationCompleted,
		m.WaterUsedLiters,
		m.TelemetryReadings,
		m.EventsDropped,
		m.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordStarted counts a started run.
func (m *Metrics) RecordStarted() {
	m.IrrigationStarted.Inc()
}

// RecordCompleted counts a finished run and the water it used.
func (m *Metrics) RecordCompleted(waterUsed float64) {
	m.IrrigationCompleted.Inc()
	if waterUsed > 0 {
		m.WaterUsedLiters.Add(waterUsed)
	}
}

// ObserveHTTP records one request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.HTTPDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
