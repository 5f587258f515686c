// Package metrics records run statistics in a private prometheus registry
// that is flushed to a node-exporter textfile at the end of a run.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tier0/internal/models"
)

// Metrics provides observability for one pipeline run.
type Metrics struct {
	registry *prometheus.Registry

	// Source records read
	RecordsRead prometheus.Counter

	// Validation outcomes by entity kind and outcome
	Entities *prometheus.CounterVec

	// Files written by the publisher
	ArtifactsPublished prometheus.Counter

	// Stage latencies
	StageDuration *prometheus.HistogramVec

	// Unix time of the last successful run
	LastSuccess prometheus.Gauge
}

// New creates a Metrics instance on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RecordsRead: factory.NewCounter(prometheus.CounterOpts{
			Name: "tier0_source_records_total",
			Help: "Firm records read from the register extract",
		}),

		Entities: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tier0_entities_total",
			Help: "Validated entities by kind and outcome",
		}, []string{"kind", "outcome"}), // outcome: "accepted", "rejected"

		ArtifactsPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "tier0_artifacts_published_total",
			Help: "Files committed by the publisher",
		}),

		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tier0_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),

		LastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tier0_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run",
		}),
	}
}

// Registry exposes the private registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// AddRecords counts source records.
func (m *Metrics) AddRecords(n int) {
	if m != nil {
		m.RecordsRead.Add(float64(n))
	}
}

// ObserveCounts records validation outcomes.
func (m *Metrics) ObserveCounts(c models.Counts) {
	if m == nil {
		return
	}

	m.Entities.WithLabelValues(string(models.KindFirm), "accepted").Add(float64(c.FirmsAccepted))
	m.Entities.WithLabelValues(string(models.KindFirm), "rejected").Add(float64(c.FirmsRejected))
	m.Entities.WithLabelValues(string(models.KindOffice), "accepted").Add(float64(c.OfficesAccepted))
	m.Entities.WithLabelValues(string(models.KindOffice), "rejected").Add(float64(c.OfficesRejected))
}

// AddPublished counts committed files.
func (m *Metrics) AddPublished(n int) {
	if m != nil {
		m.ArtifactsPublished.Add(float64(n))
	}
}

// ObserveStage records the duration of a stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m != nil {
		m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// MarkSuccess stamps the last success gauge.
func (m *Metrics) MarkSuccess(at time.Time) {
	if m != nil {
		m.LastSuccess.Set(float64(at.Unix()))
	}
}

// WriteTextfile writes the registry in text exposition format. The parent
// directory is created when missing.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}

	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}

	return nil
}
