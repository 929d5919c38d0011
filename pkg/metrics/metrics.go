// Package metrics provides Prometheus metrics for the race exporter.
//
// The exporter is a one-shot batch process, so instead of serving a
// /metrics endpoint the registry is gathered at the end of a run and
// written as a text-format file, following the node-exporter textfile
// collector convention.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// Manager owns every metric the exporter records.
type Manager struct {
	namespace string
	registry  *prometheus.Registry

	racesExported  prometheus.Counter
	racesSkipped   prometheus.Counter
	positionsRead  prometheus.Counter
	framesWritten  prometheus.Counter
	pingsDropped   *prometheus.CounterVec
	resetsListed   prometheus.Counter
	exportDuration prometheus.Histogram
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace overrides the metric namespace.
func WithNamespace(ns string) Option {
	return func(m *Manager) {
		if ns != "" {
			m.namespace = ns
		}
	}
}

// NewManager creates a manager with its own registry so batch runs never
// collide with default Go collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "raceexport",
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}

	factory := promauto.With(m.registry)
	m.racesExported = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "races_exported_total",
		Help:      "Races exported successfully.",
	})
	m.racesSkipped = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "races_skipped_total",
		Help:      "Configured races skipped for lack of qualifying data.",
	})
	m.positionsRead = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "positions_read_total",
		Help:      "Raw position pings read from the source database.",
	})
	m.framesWritten = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "frames_written_total",
		Help:      "Time-bucketed frames written to positions.json.",
	})
	m.pingsDropped = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "pings_dropped_total",
		Help:      "Pings silently dropped during attribution.",
	}, []string{"reason"})
	m.resetsListed = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "resets_listed_total",
		Help:      "Race reset markers reported by --list-resets.",
	})
	m.exportDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "export_duration_seconds",
		Help:      "Wall time per race export.",
		Buckets:   prometheus.DefBuckets,
	})
	return m
}

// RecordExport counts one finished race export and its duration.
func (m *Manager) RecordExport(seconds float64) {
	m.racesExported.Inc()
	m.exportDuration.Observe(seconds)
}

// RecordSkip counts one skipped race export.
func (m *Manager) RecordSkip() { m.racesSkipped.Inc() }

// RecordPositions counts pings read from the source.
func (m *Manager) RecordPositions(n int) { m.positionsRead.Add(float64(n)) }

// RecordFrames counts frames written to positions.json.
func (m *Manager) RecordFrames(n int) { m.framesWritten.Add(float64(n)) }

// RecordDropped counts dropped pings by reason ("unmapped", "bad_fix",
// "duplicate").
func (m *Manager) RecordDropped(reason string, n int) {
	if n > 0 {
		m.pingsDropped.WithLabelValues(reason).Add(float64(n))
	}
}

// RecordResets counts reset markers reported by the listing.
func (m *Manager) RecordResets(n int) { m.resetsListed.Add(float64(n)) }

// WriteTextfile gathers the registry and writes it in Prometheus text
// format, e.g. <outputDir>/metrics.prom.
func (m *Manager) WriteTextfile(path string) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatherFailed, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	enc := expfmt.NewEncoder(f, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, fam := range families {
		if err := enc.Encode(fam); err != nil {
			return fmt.Errorf("%w: %v", ErrEncodeFailed, err)
		}
	}
	return nil
}
