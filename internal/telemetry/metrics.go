// Package telemetry exports simulation statistics as Prometheus metrics and
// as periodic CSV rows.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talgya/mini-factory/internal/engine"
	"github.com/talgya/mini-factory/internal/errorlogic"
	"github.com/talgya/mini-factory/internal/machines"
)

const namespace = "factory"

// Metrics provides Prometheus metrics for the simulation.
type Metrics struct {
	// Population
	units      *prometheus.GaugeVec
	conditions *prometheus.GaugeVec
	working    prometheus.Gauge
	blocked    prometheus.Gauge

	// Resources
	fluidStored   prometheus.Gauge
	energyStored  prometheus.Gauge
	gridConsumed  prometheus.Gauge
	meanProgress  prometheus.Gauge
	tickDuration  prometheus.Histogram
	ticksTotal    prometheus.Counter
	currentTick   prometheus.Gauge
	savesTotal    *prometheus.CounterVec

	// Observers
	observers     prometheus.Gauge
	framesSent    prometheus.Gauge
	framesDropped prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}

	m := &Metrics{
		registry: registry,

		units: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "units", Help: "Units placed, by kind"},
			[]string{"kind"},
		),
		conditions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Namespace: namespace, Name: "unit_conditions", Help: "Units with a blocking condition active, by code"},
			[]string{"code"},
		),
		working:       gauge("units_working", "Units with a bound recipe and no blocking condition"),
		blocked:       gauge("units_blocked", "Units with at least one blocking condition"),
		fluidStored:   gauge("fluid_stored_mb", "Fluid held in all tanks"),
		energyStored:  gauge("energy_stored", "Energy held in all unit buffers"),
		gridConsumed:  gauge("grid_consumed_eu", "EU drawn from the grid since start"),
		meanProgress:  gauge("mean_progress_ratio", "Mean progress/total over units with a bound recipe"),
		currentTick:   gauge("tick", "Most recently processed tick"),
		observers:     gauge("sync_observers", "Connected delta-sync observers"),
		framesSent:    gauge("sync_frames_sent", "Delta frames published since start"),
		framesDropped: gauge("sync_frames_dropped", "Delta frames dropped for slow observers"),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Wall time spent updating every unit for one tick",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		ticksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total", Help: "Ticks processed",
		}),
		savesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "saves_total", Help: "World saves, by result"},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		m.units, m.conditions, m.working, m.blocked,
		m.fluidStored, m.energyStored, m.gridConsumed, m.meanProgress,
		m.tickDuration, m.ticksTotal, m.currentTick, m.savesTotal,
		m.observers, m.framesSent, m.framesDropped,
	)
	return m
}

// ObserveTick records the duration of one tick.
func (m *Metrics) ObserveTick(d time.Duration) {
	m.ticksTotal.Inc()
	m.tickDuration.Observe(d.Seconds())
}

// RecordSave counts a save attempt.
func (m *Metrics) RecordSave(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.savesTotal.WithLabelValues(result).Inc()
}

// Observe sets every gauge from a statistics snapshot.
func (m *Metrics) Observe(st engine.SimStats) {
	for _, kind := range machines.Kinds {
		m.units.WithLabelValues(string(kind)).Set(float64(st.UnitsByKind[kind]))
	}
	for _, code := range errorlogic.Codes {
		m.conditions.WithLabelValues(string(code)).Set(float64(st.Conditions[code]))
	}
	m.working.Set(float64(st.Working))
	m.blocked.Set(float64(st.Blocked))
	m.fluidStored.Set(float64(st.FluidStored))
	m.energyStored.Set(float64(st.EnergyStored))
	m.gridConsumed.Set(float64(st.GridConsumed))
	m.meanProgress.Set(st.MeanProgress)
	m.currentTick.Set(float64(st.Tick))
	m.observers.Set(float64(st.Observers))
	m.framesSent.Set(float64(st.FramesSent))
	m.framesDropped.Set(float64(st.FramesDropped))
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
