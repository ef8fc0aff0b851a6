// Package telemetry observes an Engine's published snapshots and
// trigger events and exposes them as Prometheus metrics, following the
// Recorder-interface shape of the teacher's internal/observability/
// metrics package (operation/status counters, duration histograms,
// error counters) generalized from HTTP-request telemetry to the
// engine's own observer surface (spec §3: "telemetry" as one of the
// auxiliary snapshot consumers).
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/b0yaux/enginecore/internal/command"
	"github.com/b0yaux/enginecore/internal/runtime"
	"github.com/b0yaux/enginecore/internal/state"
)

// Recorder is the narrow interface engine instrumentation depends on,
// kept separate from Manager so tests can substitute a fake without
// standing up a real Prometheus registry.
type Recorder interface {
	RecordOperation(operation, status string)
	RecordDuration(operation string, seconds float64)
	RecordError(operation, errorType string)
}

// Manager wires Prometheus collectors to an Engine's observer and
// runtime trigger streams. Zero value is not usable; construct with New.
type Manager struct {
	registry *prometheus.Registry

	triggers      *prometheus.CounterVec
	stateVersion  prometheus.Gauge
	drainDuration prometheus.Histogram
	operations    *prometheus.CounterVec
	errors        *prometheus.CounterVec

	unsubscribeEngine func()
}

// New registers a dedicated metric set under namespace and returns a
// Manager ready to observe an Engine and a Runtime.
func New(namespace string) *Manager {
	reg := prometheus.NewRegistry()
	m := &Manager{
		registry: reg,
		triggers: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pattern_triggers_total",
			Help:      "Trigger events published by the pattern runtime, by sequencer name.",
		}, []string{"sequencer"}),
		stateVersion: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state_version",
			Help:      "The most recently published EngineState version.",
		}),
		drainDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "drain_duration_seconds",
			Help:      "Wall-clock duration of Engine.Drain calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		operations: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Operations recorded via the Recorder interface, by operation and status.",
		}, []string{"operation", "status"}),
		errors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Errors recorded via the Recorder interface, by operation and error type.",
		}, []string{"operation", "error_type"}),
	}
	return m
}

// RecordOperation implements Recorder.
func (m *Manager) RecordOperation(operation, status string) {
	m.operations.WithLabelValues(operation, status).Inc()
}

// RecordDuration implements Recorder.
func (m *Manager) RecordDuration(operation string, seconds float64) {
	m.drainDuration.Observe(seconds)
	_ = operation // single shared histogram today; kept as a label hook for a future per-operation split
}

// RecordError implements Recorder.
func (m *Manager) RecordError(operation, errorType string) {
	m.errors.WithLabelValues(operation, errorType).Inc()
}

// ObserveEngine subscribes to engine's snapshot observer and keeps the
// state_version gauge current. Call the returned func to unsubscribe.
func (m *Manager) ObserveEngine(engine *command.Engine) (func(), error) {
	unsub, err := engine.Subscribe(func(snapshot state.EngineState, _ state.Delta) {
		m.stateVersion.Set(float64(snapshot.Version))
	})
	if err != nil {
		return nil, err
	}
	m.unsubscribeEngine = unsub
	return unsub, nil
}

// Close unsubscribes from the engine, if ObserveEngine was called.
func (m *Manager) Close() {
	if m.unsubscribeEngine != nil {
		m.unsubscribeEngine()
		m.unsubscribeEngine = nil
	}
}

// Handler returns an http.Handler serving this Manager's metrics in the
// Prometheus exposition format (spec REDESIGN FLAGS area: telemetry is
// ambient and network-exposed only via this one read-only endpoint).
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTriggers subscribes to sequencerName's trigger stream on rt and
// increments the trigger counter on every event. The returned func
// unsubscribes.
func (m *Manager) ObserveTriggers(rt *runtime.Runtime, sequencerName string) func() {
	return rt.Subscribe(sequencerName, func(runtime.TriggerEvent) {
		m.triggers.WithLabelValues(sequencerName).Inc()
	})
}

// TimedDrain calls engine.Drain(nFrames) and records its wall-clock
// duration in drain_duration_seconds.
func (m *Manager) TimedDrain(engine *command.Engine, nFrames int64) {
	start := time.Now()
	engine.Drain(nFrames)
	m.drainDuration.Observe(time.Since(start).Seconds())
}
