// Package metrics exposes engine activity as Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine collectors. A nil *Metrics records nothing.
type Metrics struct {
	incidentsCreated *prometheus.CounterVec
	stepsExecuted    *prometheus.CounterVec
	actions          *prometheus.CounterVec
	sweeps           *prometheus.CounterVec
	phaseAdvances    *prometheus.CounterVec
	sweepDuration    *prometheus.HistogramVec
	openIncidents    prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		incidentsCreated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "irflow_incidents_created_total",
				Help: "Total number of incidents created",
			},
			[]string{"type", "severity"},
		),
		stepsExecuted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "irflow_steps_executed_total",
				Help: "Total number of playbook steps executed",
			},
			[]string{"type", "phase"},
		),
		actions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "irflow_actions_dispatched_total",
				Help: "Total number of automated actions dispatched",
			},
			[]string{"action", "result"},
		),
		sweeps: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "irflow_sweeps_total",
				Help: "Total number of workflow sweeps by outcome",
			},
			[]string{"type", "result"},
		),
		phaseAdvances: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "irflow_phase_advances_total",
				Help: "Total number of phase transitions",
			},
			[]string{"type", "to"},
		),
		sweepDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "irflow_sweep_duration_seconds",
				Help:    "Time taken by one workflow sweep",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
			},
			[]string{"type", "phase"},
		),
		openIncidents: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "irflow_open_incidents",
				Help: "Incidents not yet closed",
			},
		),
	}
}

// Handler serves g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) IncidentCreated(incidentType, severity string) {
	if m == nil {
		return
	}
	m.incidentsCreated.WithLabelValues(incidentType, severity).Inc()
	m.openIncidents.Inc()
}

func (m *Metrics) IncidentClosed() {
	if m == nil {
		return
	}
	m.openIncidents.Dec()
}

func (m *Metrics) StepExecuted(incidentType, phase string) {
	if m == nil {
		return
	}
	m.stepsExecuted.WithLabelValues(incidentType, phase).Inc()
}

// ActionDispatched records one action; result is success, failure or error.
func (m *Metrics) ActionDispatched(action, result string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(action, result).Inc()
}

// SweepFinished records a sweep outcome and its duration.
func (m *Metrics) SweepFinished(incidentType, phase, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(incidentType, result).Inc()
	m.sweepDuration.WithLabelValues(incidentType, phase).Observe(d.Seconds())
}

func (m *Metrics) PhaseAdvanced(incidentType, to string) {
	if m == nil {
		return
	}
	m.phaseAdvances.WithLabelValues(incidentType, to).Inc()
}
