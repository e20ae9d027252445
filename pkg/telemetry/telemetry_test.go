package telemetry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func newTestTelemetry(t *testing.T) *Telemetry {
	t.Helper()

	tel, err := NewTelemetry(TestConfig())
	if err != nil {
		t.Fatalf("NewTelemetry() error: %v", err)
	}
	t.Cleanup(func() {
		_ = tel.Shutdown(context.Background())
	})
	return tel
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"development", func(c *Config) { *c = *DevelopmentConfig() }, false},
		{"missing service", func(c *Config) { c.ServiceName = "" }, true},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad exporter", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "zipkin" }, true},
		{"otlp without endpoint", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "otlp" }, true},
		{"bad sampling", func(c *Config) { c.Tracing.SamplingRate = 1.5 }, true},
		{"zero buffer", func(c *Config) { c.Events.BufferSize = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecordModelOperationFailure(t *testing.T) {
	tel := newTestTelemetry(t)
	ctx := tel.WithContext(context.Background())

	var mu sync.Mutex
	var failures []Event
	tel.Events.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		failures = append(failures, e)
	}, FilterByType(EventTypeOperationFailed))

	boom := errors.New("boom")
	err := RecordModelOperation(ctx, "increment", "Update", func(error) string { return "time_bounds" },
		func(context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("RecordModelOperation() = %v, want boom", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(failures) != 1 {
		t.Fatalf("got %d failure events, want 1", len(failures))
	}
	if failures[0].Data["kind"] != "time_bounds" {
		t.Errorf("kind = %v, want time_bounds", failures[0].Data["kind"])
	}
}

func TestRecordModelOperationWithoutTelemetry(t *testing.T) {
	called := false
	err := RecordModelOperation(context.Background(), "m", "Update", nil, func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Errorf("err=%v called=%v", err, called)
	}

	// Recorders must be no-ops without telemetry.
	RecordStep(context.Background(), "m", 1)
	RecordTransition(context.Background(), "m", "created", "configured")
	RecordCheckpoint(context.Background(), "m", "id", "/tmp", 1, false)
}

func TestMetricsHandlerExposesModelSeries(t *testing.T) {
	tel := newTestTelemetry(t)
	ctx := tel.WithContext(context.Background())

	_ = RecordModelOperation(ctx, "increment", "Update", nil, func(ctx context.Context) error {
		RecordStep(ctx, "increment", 2)
		return nil
	})
	RecordTransition(ctx, "increment", "configured", "initialized")
	RecordCheckpoint(ctx, "increment", "c1", "/tmp/c", 2, false)

	rec := httptest.NewRecorder()
	tel.Metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, series := range []string{
		"bmi_model_operations_total",
		"bmi_model_steps_total",
		"bmi_model_simulation_time",
		"bmi_model_lifecycle_transitions_total",
		"bmi_model_checkpoints_total",
		"bmi_active_models 1",
	} {
		if !strings.Contains(string(body), series) {
			t.Errorf("metrics output missing %q", series)
		}
	}
}

func TestDisabledMetricsAreNoOps(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics() error: %v", err)
	}
	m.RecordOperation("m", "Update", 0)
	m.RecordError("m", "Update", "")
	m.RecordStep("m", 1)
	m.RecordTransition("m", "created", "configured")
	m.RecordCheckpoint("m", "saved")
	if m.Registry() != nil {
		t.Error("disabled metrics should have no registry")
	}
}

func TestLoggerWithModel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "debug", Format: "json"}, &buf)
	logger.WithModel("increment", "1.0.0").Info("initialized")

	out := buf.String()
	if !strings.Contains(out, `"model":"increment"`) || !strings.Contains(out, `"model_version":"1.0.0"`) {
		t.Errorf("log output = %s", out)
	}

	ctx := logger.WithContext(context.Background())
	if FromContext(ctx) != logger {
		t.Error("FromContext should return the stored logger")
	}
}
