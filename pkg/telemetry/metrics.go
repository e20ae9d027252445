package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for hosted models. A Metrics created
// with collection disabled accepts every call and records nothing.
type Metrics struct {
	config MetricsConfig

	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errors            *prometheus.CounterVec

	steps          *prometheus.CounterVec
	simulationTime *prometheus.GaugeVec

	transitions  *prometheus.CounterVec
	activeModels prometheus.Gauge

	checkpoints *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_operations_total",
				Help:      "Total number of model operations invoked",
			},
			[]string{"model", "operation"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "model_operation_duration_seconds",
				Help:      "Duration of model operations in seconds",
				Buckets:   buckets,
			},
			[]string{"model", "operation"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_errors_total",
				Help:      "Total number of failed model operations by error kind",
			},
			[]string{"model", "operation", "kind"},
		),
		steps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_steps_total",
				Help:      "Total number of time steps taken",
			},
			[]string{"model"},
		),
		simulationTime: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "model_simulation_time",
				Help:      "Current simulation time of the model in model time units",
			},
			[]string{"model"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_lifecycle_transitions_total",
				Help:      "Total number of lifecycle state transitions",
			},
			[]string{"model", "from", "to"},
		),
		activeModels: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_models",
				Help:      "Current number of initialized models",
			},
		),
		checkpoints: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "model_checkpoints_total",
				Help:      "Total number of checkpoints saved or restored",
			},
			[]string{"model", "direction"},
		),
	}

	registry.MustRegister(
		m.operations,
		m.operationDuration,
		m.errors,
		m.steps,
		m.simulationTime,
		m.transitions,
		m.activeModels,
		m.checkpoints,
	)

	return m, nil
}

// RecordOperation records a model operation and its duration.
func (m *Metrics) RecordOperation(model, operation string, duration time.Duration) {
	if m.operations == nil {
		return
	}
	m.operations.WithLabelValues(model, operation).Inc()
	m.operationDuration.WithLabelValues(model, operation).Observe(duration.Seconds())
}

// RecordError records a failed model operation.
func (m *Metrics) RecordError(model, operation, kind string) {
	if m.errors == nil {
		return
	}
	if kind == "" {
		kind = "unclassified"
	}
	m.errors.WithLabelValues(model, operation, kind).Inc()
}

// RecordStep records one completed time step and the resulting model time.
func (m *Metrics) RecordStep(model string, current float64) {
	if m.steps == nil {
		return
	}
	m.steps.WithLabelValues(model).Inc()
	m.simulationTime.WithLabelValues(model).Set(current)
}

// RecordTransition records a lifecycle state change.
func (m *Metrics) RecordTransition(model, from, to string) {
	if m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(model, from, to).Inc()
	switch {
	case to == "initialized":
		m.activeModels.Inc()
	case from == "initialized":
		m.activeModels.Dec()
	}
}

// RecordCheckpoint records a saved or restored checkpoint.
func (m *Metrics) RecordCheckpoint(model, direction string) {
	if m.checkpoints == nil {
		return
	}
	m.checkpoints.WithLabelValues(model, direction).Inc()
}

// Registry returns the Prometheus registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve exposes the metrics endpoint on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	if !m.config.Enabled {
		return nil
	}
	if addr == "" {
		addr = m.config.ListenAddress
	}
	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
