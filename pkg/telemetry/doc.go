// Package telemetry provides observability instrumentation for hosted models.
//
// The package integrates structured logging (zerolog), tracing
// (OpenTelemetry), metrics (Prometheus), and lifecycle event publishing.
//
// # Usage
//
// Initialize telemetry at startup and attach it to the context passed to
// model operations:
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//	err = model.UpdateUntil(ctx, 100)
//
// Every operation a host.Instance performs is wrapped by
// RecordModelOperation, which opens a "model.<operation>" span, observes
// the operation duration, and counts failures by error kind.
//
// # Metrics
//
//   - model_operations_total{model,operation}
//   - model_operation_duration_seconds{model,operation}
//   - model_errors_total{model,operation,kind}
//   - model_steps_total{model}
//   - model_simulation_time{model}
//   - model_lifecycle_transitions_total{model,from,to}
//   - model_checkpoints_total{model,direction}
//   - active_models
//
// Metrics.Serve exposes them over HTTP.
//
// # Events
//
// Lifecycle changes, failed operations, end-of-run and checkpoints are
// published as Events. Subscribe with an optional filter:
//
//	tel.Events.Subscribe(func(e telemetry.Event) {
//	    fmt.Println(e.Message)
//	}, telemetry.FilterByType(telemetry.EventTypeLifecycleChanged))
package telemetry
