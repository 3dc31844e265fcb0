// Package metrics exposes Prometheus instrumentation for the worker. All
// methods are nil-receiver safe so instrumented code never has to branch on
// whether metrics are enabled.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry       *prometheus.Registry
	jobsTotal      *prometheus.CounterVec
	stageDuration  *prometheus.HistogramVec
	stageRetries   *prometheus.CounterVec
	intakeMessages *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photo_worker_jobs_total",
			Help: "Jobs resolved, labeled by terminal status.",
		}, []string{"status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "photo_worker_stage_duration_seconds",
			Help:    "Wall time per stage attempt.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		stageRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photo_worker_stage_retries_total",
			Help: "Retries scheduled after a retryable stage failure.",
		}, []string{"stage"}),
		intakeMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "photo_worker_intake_messages_total",
			Help: "Intake messages consumed, labeled by outcome.",
		}, []string{"result"}),
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.jobsTotal,
		m.stageDuration,
		m.stageRetries,
		m.intakeMessages,
	)
	return m
}

func (m *Metrics) JobResolved(status string) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) StageRetried(stage string) {
	if m == nil {
		return
	}
	m.stageRetries.WithLabelValues(stage).Inc()
}

func (m *Metrics) IntakeMessage(result string) {
	if m == nil {
		return
	}
	m.intakeMessages.WithLabelValues(result).Inc()
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
