package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// Telemetry combines logging, tracing, metrics, and events.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance and its logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext retrieves the telemetry instance from the context.
// If no telemetry is found, it returns nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if ctx == nil {
		return nil
	}
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown stops event delivery and flushes the tracer.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.Events.Shutdown(ctx); err != nil {
		return err
	}
	return t.Tracer.Shutdown(ctx)
}

// ErrorClassifier extracts a short kind label from an error for metrics.
type ErrorClassifier func(error) string

// RecordModelOperation runs fn inside a span named after the operation and
// records its duration and outcome. Without telemetry in ctx fn runs bare.
func RecordModelOperation(ctx context.Context, model, operation string, classify ErrorClassifier, fn func(ctx context.Context) error) error {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return fn(ctx)
	}

	var span trace.Span
	ctx, span = tel.Tracer.StartModelSpan(ctx, model, operation)
	defer span.End()

	timer := NewTimer()
	err := fn(ctx)
	elapsed := timer.Duration()
	tel.Metrics.RecordOperation(model, operation, elapsed)

	kind := ""
	if err != nil && classify != nil {
		kind = classify(err)
	}
	tel.Logger.WithModel(model, "").Operation(operation, elapsed, kind, err)

	if err != nil {
		span.SetAttributes(AttrErrorKind.String(kind))
		RecordError(span, err)
		tel.Metrics.RecordError(model, operation, kind)
		_ = tel.Events.PublishOperationFailed(model, operation, kind, err.Error())
		return err
	}

	RecordSuccess(span)
	return nil
}

// RecordTransition records a lifecycle state change.
func RecordTransition(ctx context.Context, model, from, to string) {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return
	}
	tel.Metrics.RecordTransition(model, from, to)
	tel.Logger.WithModel(model, "").Transition(from, to)
	_ = tel.Events.PublishLifecycleChanged(model, from, to)
}

// RecordStep records a completed time step.
func RecordStep(ctx context.Context, model string, current float64) {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return
	}
	tel.Metrics.RecordStep(model, current)
	trace.SpanFromContext(ctx).SetAttributes(AttrModelTime.Float64(current))
}

// RecordEndReached records that a model reached its end time.
func RecordEndReached(ctx context.Context, model string, end float64) {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return
	}
	_ = tel.Events.PublishEndReached(model, end)
}

// RecordCheckpoint records a saved (or, if loaded is true, restored) checkpoint.
func RecordCheckpoint(ctx context.Context, model, id, dir string, at float64, loaded bool) {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return
	}
	direction, eventType := "saved", EventTypeCheckpointSaved
	if loaded {
		direction, eventType = "loaded", EventTypeCheckpointLoaded
	}
	tel.Metrics.RecordCheckpoint(model, direction)
	_ = tel.Events.PublishCheckpoint(model, eventType, id, dir, at)
}

// RecordRegistryChange records a model registered or removed at runtime.
func RecordRegistryChange(ctx context.Context, key, change, source string) {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return
	}
	_ = tel.Events.PublishRegistryChanged(key, change, source)
}
