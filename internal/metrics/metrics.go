// Package metrics exposes run counters and timings for Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// Stage names the phases of processing a single target.
type Stage string

const (
	StageNavigate Stage = "navigate"
	StageDetect   Stage = "detect"
	StageFill     Stage = "fill"
	StageSubmit   Stage = "submit"
)

// Metrics bundles Prometheus collectors for a run. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Registry       *prometheus.Registry
	TargetsTotal   *prometheus.CounterVec
	ErrorsTotal    *prometheus.CounterVec
	FieldsFilled   prometheus.Counter
	DedupSkips     prometheus.Counter
	TargetDuration prometheus.Histogram
	StageDuration  *prometheus.HistogramVec
	PendingTabs    prometheus.Gauge
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	targets := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formpilot_targets_total",
			Help: "Targets processed, by final status.",
		},
		[]string{"status"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formpilot_errors_total",
			Help: "Failed targets by error type.",
		},
		[]string{"error_type"},
	)
	fields := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "formpilot_fields_filled_total",
			Help: "Form fields written and verified.",
		},
	)
	dedup := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "formpilot_dedup_skips_total",
			Help: "Targets skipped because of a recent success.",
		},
	)
	targetDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "formpilot_target_duration_seconds",
			Help:    "Wall time spent per target.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120},
		},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formpilot_stage_duration_seconds",
			Help:    "Wall time spent per processing stage.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)
	pending := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "formpilot_pending_tabs",
			Help: "Tabs left open for manual completion.",
		},
	)

	registry.MustRegister(targets, errorsTotal, fields, dedup, targetDuration, stageDuration, pending)

	return &Metrics{
		Registry:       registry,
		TargetsTotal:   targets,
		ErrorsTotal:    errorsTotal,
		FieldsFilled:   fields,
		DedupSkips:     dedup,
		TargetDuration: targetDuration,
		StageDuration:  stageDuration,
		PendingTabs:    pending,
	}
}

// ObserveOutcome records a finished target.
func (m *Metrics) ObserveOutcome(o schemas.ProcessingOutcome) {
	if m == nil {
		return
	}
	m.TargetsTotal.WithLabelValues(string(o.Status)).Inc()
	if o.ErrorKind != schemas.ErrorNone {
		m.ErrorsTotal.WithLabelValues(string(o.ErrorKind)).Inc()
	}
	if o.FilledFieldCount > 0 {
		m.FieldsFilled.Add(float64(o.FilledFieldCount))
	}
	if o.Status != schemas.StatusSkipped && !o.StartedAt.IsZero() {
		m.TargetDuration.Observe(o.Duration().Seconds())
	}
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage Stage, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
}

// IncDedupSkip counts a target skipped by deduplication.
func (m *Metrics) IncDedupSkip() {
	if m == nil {
		return
	}
	m.DedupSkips.Inc()
}

// SetPendingTabs sets the number of tabs awaiting manual completion.
func (m *Metrics) SetPendingTabs(n int) {
	if m == nil {
		return
	}
	m.PendingTabs.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("Metrics server enabled.", zap.String("addr", addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown failed.", zap.Error(err))
			return err
		}
		<-errCh
		return nil
	}
}
