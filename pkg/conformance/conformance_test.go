package conformance_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openfroyo/bmi/pkg/bmi"
	"github.com/openfroyo/bmi/pkg/conformance"
	"github.com/openfroyo/bmi/pkg/host"
	"github.com/openfroyo/bmi/pkg/models/increment"
)

func incrementFactory(ctx context.Context) (bmi.Model, error) {
	return increment.NewInstance(nil)
}

func assertPassed(t *testing.T, report *conformance.Report) {
	t.Helper()
	for _, r := range report.Results {
		if r.Status == conformance.StatusFail {
			t.Errorf("scenario %s failed: %s", r.Scenario, r.Message)
		}
	}
}

func TestRun_ReferenceModel(t *testing.T) {
	report := conformance.Run(context.Background(), incrementFactory, &conformance.Options{TempDir: t.TempDir()})

	assertPassed(t, report)
	if len(report.Results) != len(conformance.Scenarios()) {
		t.Errorf("got %d results, want %d", len(report.Results), len(conformance.Scenarios()))
	}
	for _, r := range report.Results {
		if r.Status == conformance.StatusSkip {
			t.Errorf("scenario %s skipped: %s", r.Scenario, r.Message)
		}
	}
	if report.Model != increment.ComponentName {
		t.Errorf("Model = %q", report.Model)
	}
	if got := report.Summary(); got != "11 passed, 0 failed, 0 skipped" {
		t.Errorf("Summary() = %q", got)
	}
}

func TestRun_Registry(t *testing.T) {
	ctx := context.Background()
	reg := host.NewRegistry(nil)
	if err := increment.Register(reg); err != nil {
		t.Fatal(err)
	}

	report := conformance.Run(ctx, conformance.FromRegistry(reg, increment.Name, "^1.0.0"), &conformance.Options{
		Source: `{"end_time": 6, "attributes": {"shape": "3x2", "increment": "0.25"}}`,
	})
	assertPassed(t, report)
}

func TestRun_FromKernel(t *testing.T) {
	factory := conformance.FromKernel(increment.Factory, &host.InstanceConfig{Version: increment.Version})
	report := conformance.Run(context.Background(), factory, &conformance.Options{
		Skip: []string{"capabilities", "finalize"},
	})

	assertPassed(t, report)
	for _, name := range []string{"capabilities", "finalize"} {
		r, ok := report.Result(name)
		if !ok || r.Status != conformance.StatusSkip {
			t.Errorf("Result(%s) = %+v, want skipped", name, r)
		}
	}
}

func TestRun_MaxSteps(t *testing.T) {
	report := conformance.Run(context.Background(), incrementFactory, &conformance.Options{MaxSteps: 5})

	r, _ := report.Result("update_past_end")
	if r.Status != conformance.StatusSkip {
		t.Errorf("update_past_end = %+v, want skipped", r)
	}
	assertPassed(t, report)
}

func TestRun_FactoryError(t *testing.T) {
	factory := func(ctx context.Context) (bmi.Model, error) {
		return nil, errors.New("no model today")
	}
	report := conformance.Run(context.Background(), factory, nil)

	if report.Passed() {
		t.Fatal("expected failures")
	}
	if len(report.Failures()) != len(conformance.Scenarios()) {
		t.Errorf("got %d failures, want every scenario", len(report.Failures()))
	}
	if msg := report.Failures()[0].Message; !strings.Contains(msg, "no model today") {
		t.Errorf("Message = %q", msg)
	}
}

// lenientUpdate ignores updates at the end time instead of rejecting them.
type lenientUpdate struct {
	*host.Instance
}

func (m lenientUpdate) Update(ctx context.Context) error {
	now, _ := m.CurrentTime()
	end, _ := m.EndTime()
	if now >= end {
		return nil
	}
	return m.Instance.Update(ctx)
}

// lenientGet reports unknown variables as empty instead of failing.
type lenientGet struct {
	*host.Instance
}

func (m lenientGet) GetValue(name string, dst bmi.Values) error {
	err := m.Instance.GetValue(name, dst)
	if bmi.IsKind(err, bmi.KindUnknownVariable) {
		return nil
	}
	return err
}

// driftingUpdateUntil overshoots its target by one step.
type driftingUpdateUntil struct {
	*host.Instance
}

func (m driftingUpdateUntil) UpdateUntil(ctx context.Context, t float64) error {
	if err := m.Instance.UpdateUntil(ctx, t); err != nil {
		return err
	}
	if now, _ := m.CurrentTime(); now < 20 {
		return m.Instance.Update(ctx)
	}
	return nil
}

func TestRun_DetectsViolations(t *testing.T) {
	tests := []struct {
		name     string
		wrap     func(*host.Instance) bmi.Model
		scenario string
		message  string
	}{
		{
			name:     "update at end accepted",
			wrap:     func(i *host.Instance) bmi.Model { return lenientUpdate{i} },
			scenario: "update_past_end",
			message:  "Update at end time succeeded",
		},
		{
			name:     "unknown variable read",
			wrap:     func(i *host.Instance) bmi.Model { return lenientGet{i} },
			scenario: "unknown_variable",
			message:  "GetValue succeeded",
		},
		{
			name:     "UpdateUntil overshoots",
			wrap:     func(i *host.Instance) bmi.Model { return driftingUpdateUntil{i} },
			scenario: "update_until",
			message:  "after UpdateUntil",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory := func(ctx context.Context) (bmi.Model, error) {
				inst, err := increment.NewInstance(nil)
				if err != nil {
					return nil, err
				}
				return tt.wrap(inst), nil
			}
			report := conformance.Run(context.Background(), factory, nil)

			r, ok := report.Result(tt.scenario)
			if !ok {
				t.Fatalf("no result for %s", tt.scenario)
			}
			if r.Status != conformance.StatusFail {
				t.Fatalf("%s = %s, want fail", tt.scenario, r.Status)
			}
			if !strings.Contains(r.Message, tt.message) {
				t.Errorf("Message = %q, want it to contain %q", r.Message, tt.message)
			}
		})
	}
}
