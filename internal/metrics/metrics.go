// Package metrics provides Prometheus metrics for the pipeline.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"oto-insights-go/internal/types"
)

const namespace = "oto_insights"

// Metrics holds every collector the service exports.
type Metrics struct {
	registry *prometheus.Registry

	// Pipeline runs
	RunsTotal   *prometheus.CounterVec
	RunsActive  prometheus.Gauge
	RunDuration prometheus.Histogram

	// Stages
	StageDuration *prometheus.HistogramVec
	StageFailures *prometheus.CounterVec

	// Status projector
	StatusTransitions *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// Clips
	ClipsCreated prometheus.Counter
	ClipsSkipped prometheus.Counter

	PointsAwarded prometheus.Counter
}

// New creates the collectors on a private registry that also carries the Go
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_total",
			Help:      "Total number of pipeline runs by outcome",
		}, []string{"outcome"}),
		RunsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_runs_active",
			Help:      "Number of pipeline runs in flight",
		}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_run_duration_seconds",
			Help:      "Wall-clock duration of pipeline runs",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),

		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual pipeline stages",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}),
		StageFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Total number of stage failures by kind",
		}, []string{"stage", "critical", "kind"}),

		StatusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_events_total",
			Help:      "Total number of conversation status events",
		}, []string{"status"}),

		KafkaPublishTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic"}),
		KafkaPublishErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic"}),
		KafkaPublishLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		ClipsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clips_created_total",
			Help:      "Total number of clips persisted",
		}),
		ClipsSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clips_skipped_total",
			Help:      "Total number of candidates skipped because cleaning left no captions",
		}),
		PointsAwarded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_awarded_total",
			Help:      "Sum of points credited to owners",
		}),
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordRunStart records a pipeline run starting.
func (m *Metrics) RecordRunStart() {
	m.RunsActive.Inc()
}

// RecordRunEnd records a pipeline run ending with the given outcome label.
func (m *Metrics) RecordRunEnd(outcome string, durationSeconds float64) {
	m.RunsActive.Dec()
	m.RunDuration.Observe(durationSeconds)
	m.RunsTotal.WithLabelValues(outcome).Inc()
}

// RecordStage records one stage execution. kind is empty on success.
func (m *Metrics) RecordStage(stage string, critical bool, kind string, durationSeconds float64) {
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
	if kind == "" {
		return
	}
	c := "false"
	if critical {
		c = "true"
	}
	m.StageFailures.WithLabelValues(stage, c, kind).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic).Inc()
	}
}

// RecordClips records the outcome of a clip generation run.
func (m *Metrics) RecordClips(created, skipped int) {
	m.ClipsCreated.Add(float64(created))
	m.ClipsSkipped.Add(float64(skipped))
}

// RecordPoints records points credited by an award.
func (m *Metrics) RecordPoints(amount float64) {
	if amount > 0 {
		m.PointsAwarded.Add(amount)
	}
}

// Publish counts status events. It lets Metrics act as a status sink.
func (m *Metrics) Publish(_ context.Context, ev types.StatusEvent) error {
	m.StatusTransitions.WithLabelValues(string(ev.Status)).Inc()
	return nil
}
