package host

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/openfroyo/bmi/pkg/bmi"
	"github.com/openfroyo/bmi/pkg/telemetry"
)

func newTestInstance(t *testing.T, k Kernel) *Instance {
	t.Helper()
	inst, err := NewInstance(k, nil)
	if err != nil {
		t.Fatalf("NewInstance() error: %v", err)
	}
	t.Cleanup(func() { _ = inst.Finalize(context.Background()) })
	return inst
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func wantKind(t *testing.T, err error, kind bmi.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if !bmi.IsKind(err, kind) {
		t.Fatalf("error = %v (kind %q), want kind %q", err, bmi.KindOf(err), kind)
	}
}

func mustInitialize(t *testing.T, inst *Instance, source string) {
	t.Helper()
	if err := inst.Initialize(context.Background(), source); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
}

func TestNewInstance(t *testing.T) {
	if _, err := NewInstance(nil, nil); err == nil {
		t.Error("expected error for nil kernel")
	}

	inst := newTestInstance(t, newTestKernel())
	if inst.ComponentName() != "test-model" {
		t.Errorf("ComponentName() = %q", inst.ComponentName())
	}
	if inst.State() != bmi.StateCreated {
		t.Errorf("State() = %s, want created", inst.State())
	}
	caps := inst.Capabilities()
	if !caps.Has(bmi.CapabilityCheckpoint) || !caps.Has(bmi.CapabilityFractionalUpdate) {
		t.Errorf("Capabilities() = %v", caps.List())
	}

	// The returned set is a copy.
	delete(caps, bmi.CapabilityCheckpoint)
	if !inst.Capabilities().Has(bmi.CapabilityCheckpoint) {
		t.Error("mutating Capabilities() result changed the instance")
	}

	plain := newTestInstance(t, plainKernel{newTestKernel()})
	if len(plain.Capabilities().List()) != 0 {
		t.Errorf("plain kernel capabilities = %v, want none", plain.Capabilities().List())
	}
}

func TestInstance_LifecycleGates(t *testing.T) {
	ctx := context.Background()
	inst := newTestInstance(t, newTestKernel())
	buf := make(bmi.Float64Values, 6)

	created := map[string]func() error{
		"InitializeState": func() error { return inst.InitializeState(ctx, "") },
		"Update":          func() error { return inst.Update(ctx) },
		"SaveState":       func() error { return inst.SaveState(ctx, t.TempDir()) },
		"CurrentTime":     func() error { _, err := inst.CurrentTime(); return err },
		"SetStartTime":    func() error { return inst.SetStartTime(1) },
		"InputVarNames":   func() error { _, err := inst.InputVarNames(); return err },
		"VarType":         func() error { _, err := inst.VarType("level"); return err },
		"GetValue":        func() error { return inst.GetValue("level", buf) },
	}
	for name, call := range created {
		t.Run("created/"+name, func(t *testing.T) {
			wantKind(t, call(), bmi.KindLifecycle)
		})
	}

	if _, err := inst.AttributeNames(); err != nil {
		t.Errorf("AttributeNames() while created: %v", err)
	}

	if err := inst.InitializeConfig(ctx, ""); err != nil {
		t.Fatalf("InitializeConfig() error: %v", err)
	}
	if inst.State() != bmi.StateConfigured {
		t.Fatalf("State() = %s, want configured", inst.State())
	}

	configured := map[string]func() error{
		"InitializeConfig": func() error { return inst.InitializeConfig(ctx, "") },
		"Update":           func() error { return inst.Update(ctx) },
		"VarType":          func() error { _, err := inst.VarType("level"); return err },
		"GridType":         func() error { _, err := inst.GridType("level"); return err },
		"SetValue":         func() error { return inst.SetValue("level", buf) },
	}
	for name, call := range configured {
		t.Run("configured/"+name, func(t *testing.T) {
			wantKind(t, call(), bmi.KindLifecycle)
		})
	}

	if err := inst.InitializeState(ctx, ""); err != nil {
		t.Fatalf("InitializeState() error: %v", err)
	}

	initialized := map[string]func() error{
		"InitializeConfig": func() error { return inst.InitializeConfig(ctx, "") },
		"InitializeState":  func() error { return inst.InitializeState(ctx, "") },
		"SetStartTime":     func() error { return inst.SetStartTime(1) },
		"SetEndTime":       func() error { return inst.SetEndTime(5) },
	}
	for name, call := range initialized {
		t.Run("initialized/"+name, func(t *testing.T) {
			wantKind(t, call(), bmi.KindLifecycle)
		})
	}

	if err := inst.Finalize(ctx); err != nil {
		t.Fatalf("Finalize() error: %v", err)
	}

	finalized := map[string]func() error{
		"Update":         func() error { return inst.Update(ctx) },
		"CurrentTime":    func() error { _, err := inst.CurrentTime(); return err },
		"AttributeNames": func() error { _, err := inst.AttributeNames(); return err },
		"GetValue":       func() error { return inst.GetValue("level", buf) },
		"Initialize":     func() error { return inst.Initialize(ctx, "") },
	}
	for name, call := range finalized {
		t.Run("finalized/"+name, func(t *testing.T) {
			wantKind(t, call(), bmi.KindLifecycle)
		})
	}
}

func TestInstance_Finalize(t *testing.T) {
	ctx := context.Background()

	t.Run("from every state", func(t *testing.T) {
		for _, steps := range []int{0, 1, 2} {
			k := newTestKernel()
			inst := newTestInstance(t, k)
			if steps > 0 {
				if err := inst.InitializeConfig(ctx, ""); err != nil {
					t.Fatal(err)
				}
			}
			if steps > 1 {
				if err := inst.InitializeState(ctx, ""); err != nil {
					t.Fatal(err)
				}
			}
			if err := inst.Finalize(ctx); err != nil {
				t.Fatalf("Finalize() error: %v", err)
			}
			if inst.State() != bmi.StateFinalized {
				t.Errorf("State() = %s", inst.State())
			}
			if k.released != 1 {
				t.Errorf("released = %d, want 1", k.released)
			}
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		k := newTestKernel()
		inst := newTestInstance(t, k)
		mustInitialize(t, inst, "")
		for n := 0; n < 3; n++ {
			if err := inst.Finalize(ctx); err != nil {
				t.Fatalf("Finalize() #%d error: %v", n, err)
			}
		}
		if k.released != 1 {
			t.Errorf("released = %d, want 1", k.released)
		}
	})
}

func TestInstance_InitializeConfig(t *testing.T) {
	ctx := context.Background()

	t.Run("applies clock and attributes", func(t *testing.T) {
		inst := newTestInstance(t, newTestKernel())
		src := writeConfig(t, "start_time: 2\nend_time: 6\nattributes:\n  rate: \"0.5\"\n")
		if err := inst.InitializeConfig(ctx, src); err != nil {
			t.Fatalf("InitializeConfig() error: %v", err)
		}
		if start, _ := inst.StartTime(); start != 2 {
			t.Errorf("StartTime() = %g, want 2", start)
		}
		if end, _ := inst.EndTime(); end != 6 {
			t.Errorf("EndTime() = %g, want 6", end)
		}
		if current, _ := inst.CurrentTime(); current != 2 {
			t.Errorf("CurrentTime() = %g, want 2", current)
		}
		if v, _ := inst.AttributeValue("rate"); v != "0.5" {
			t.Errorf("rate = %q, want 0.5", v)
		}
	})

	t.Run("driver override wins", func(t *testing.T) {
		inst := newTestInstance(t, newTestKernel())
		if err := inst.SetAttributeValue("rate", "3"); err != nil {
			t.Fatalf("SetAttributeValue() error: %v", err)
		}
		src := writeConfig(t, "attributes:\n  rate: \"0.5\"\n")
		if err := inst.InitializeConfig(ctx, src); err != nil {
			t.Fatalf("InitializeConfig() error: %v", err)
		}
		if v, _ := inst.AttributeValue("rate"); v != "3" {
			t.Errorf("rate = %q, want the override 3", v)
		}
	})

	tests := []struct {
		name   string
		config string
	}{
		{"unknown attribute", "attributes:\n  colour: \"red\"\n"},
		{"read-only attribute", "attributes:\n  author: \"someone\"\n"},
		{"invalid attribute value", "attributes:\n  rate: \"fast\"\n"},
		{"kernel rejects", "model: other-model\n"},
		{"start after end", "start_time: 20\n"},
		{"unknown field", "colour: red\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := newTestInstance(t, newTestKernel())
			err := inst.InitializeConfig(ctx, writeConfig(t, tt.config))
			wantKind(t, err, bmi.KindConfiguration)
			if inst.State() != bmi.StateCreated {
				t.Errorf("State() = %s, want created", inst.State())
			}
			if v, _ := inst.AttributeValue("rate"); v != "1" {
				t.Errorf("rate = %q after failed configuration, want default", v)
			}
		})
	}

	t.Run("missing source", func(t *testing.T) {
		inst := newTestInstance(t, newTestKernel())
		err := inst.InitializeConfig(ctx, filepath.Join(t.TempDir(), "missing.yaml"))
		wantKind(t, err, bmi.KindConfiguration)
	})
}

func TestInstance_Clock(t *testing.T) {
	ctx := context.Background()
	inst := newTestInstance(t, newTestKernel())
	if err := inst.InitializeConfig(ctx, ""); err != nil {
		t.Fatal(err)
	}

	if units, _ := inst.TimeUnits(); units != "s" {
		t.Errorf("TimeUnits() = %q", units)
	}
	if step, _ := inst.TimeStep(); step != 1 {
		t.Errorf("TimeStep() = %g", step)
	}

	wantKind(t, inst.SetStartTime(11), bmi.KindTimeBounds)
	wantKind(t, inst.SetStartTime(math.NaN()), bmi.KindTimeBounds)
	wantKind(t, inst.SetEndTime(-1), bmi.KindTimeBounds)
	wantKind(t, inst.SetEndTime(math.Inf(1)), bmi.KindTimeBounds)

	if err := inst.SetStartTime(3); err != nil {
		t.Fatalf("SetStartTime() error: %v", err)
	}
	if err := inst.SetEndTime(5); err != nil {
		t.Fatalf("SetEndTime() error: %v", err)
	}
	if current, _ := inst.CurrentTime(); current != 3 {
		t.Errorf("CurrentTime() = %g, want the new start time 3", current)
	}

	if err := inst.InitializeState(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if err := inst.UpdateUntil(ctx, 5); err != nil {
		t.Fatalf("UpdateUntil() error: %v", err)
	}
	wantKind(t, inst.Update(ctx), bmi.KindTimeBounds)
	if current, _ := inst.CurrentTime(); current != 5 {
		t.Errorf("CurrentTime() = %g after failed Update, want 5", current)
	}
}

func TestInstance_InexactTimeStep(t *testing.T) {
	ctx := context.Background()
	const config = "start_time: 0\nend_time: 1\ntime_step: 0.1\n"

	t.Run("UpdateUntil end", func(t *testing.T) {
		k := newTestKernel()
		inst := newTestInstance(t, k)
		mustInitialize(t, inst, writeConfig(t, config))

		if err := inst.UpdateUntil(ctx, 1); err != nil {
			t.Fatalf("UpdateUntil(1) error: %v", err)
		}
		if k.steps != 10 {
			t.Errorf("kernel steps = %d, want 10", k.steps)
		}
		if current, _ := inst.CurrentTime(); current != 1 {
			t.Errorf("CurrentTime() = %v, want exactly 1", current)
		}
		wantKind(t, inst.Update(ctx), bmi.KindTimeBounds)
		if k.steps != 10 {
			t.Errorf("kernel steps = %d after Update at end, want 10", k.steps)
		}
	})

	t.Run("Update loop", func(t *testing.T) {
		k := newTestKernel()
		inst := newTestInstance(t, k)
		mustInitialize(t, inst, writeConfig(t, config))

		n := 0
		for ; n < 20; n++ {
			if err := inst.Update(ctx); err != nil {
				wantKind(t, err, bmi.KindTimeBounds)
				break
			}
		}
		if n != 10 {
			t.Errorf("successful updates = %d, want 10", n)
		}
		if current, _ := inst.CurrentTime(); current != 1 {
			t.Errorf("CurrentTime() = %v, want exactly 1", current)
		}
	})

	t.Run("intermediate targets", func(t *testing.T) {
		k := newTestKernel()
		inst := newTestInstance(t, k)
		mustInitialize(t, inst, writeConfig(t, config))

		if err := inst.UpdateUntil(ctx, 0.3); err != nil {
			t.Fatalf("UpdateUntil(0.3) error: %v", err)
		}
		if k.steps != 3 {
			t.Errorf("kernel steps = %d, want 3", k.steps)
		}
		if err := inst.UpdateUntil(ctx, 0.7); err != nil {
			t.Fatalf("UpdateUntil(0.7) error: %v", err)
		}
		if k.steps != 7 {
			t.Errorf("kernel steps = %d, want 7", k.steps)
		}
	})
}

func TestInstance_Update(t *testing.T) {
	ctx := context.Background()
	inst := newTestInstance(t, newTestKernel())
	mustInitialize(t, inst, writeConfig(t, "end_time: 5\nattributes:\n  rate: \"2\"\n"))

	if err := inst.Update(ctx); err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if err := inst.UpdateUntil(ctx, 3); err != nil {
		t.Fatalf("UpdateUntil() error: %v", err)
	}
	if current, _ := inst.CurrentTime(); current != 3 {
		t.Errorf("CurrentTime() = %g, want 3", current)
	}

	level, err := bmi.Float64s(inst, "level")
	if err != nil {
		t.Fatalf("Float64s() error: %v", err)
	}
	for i, v := range level {
		if v != 6 {
			t.Errorf("level[%d] = %g, want 6", i, v)
		}
	}

	// Reaching the current time is a no-op.
	if err := inst.UpdateUntil(ctx, 3); err != nil {
		t.Errorf("UpdateUntil(current) error: %v", err)
	}

	wantKind(t, inst.UpdateUntil(ctx, 2), bmi.KindTimeBounds)
	wantKind(t, inst.UpdateUntil(ctx, 6), bmi.KindTimeBounds)
	wantKind(t, inst.UpdateUntil(ctx, math.NaN()), bmi.KindTimeBounds)
	if current, _ := inst.CurrentTime(); current != 3 {
		t.Errorf("CurrentTime() = %g after rejected targets, want 3", current)
	}
}

func TestInstance_UpdateFrac(t *testing.T) {
	ctx := context.Background()

	t.Run("supported", func(t *testing.T) {
		inst := newTestInstance(t, newTestKernel())
		mustInitialize(t, inst, "")
		if err := inst.UpdateFrac(ctx, 0.5); err != nil {
			t.Fatalf("UpdateFrac() error: %v", err)
		}
		if current, _ := inst.CurrentTime(); current != 0.5 {
			t.Errorf("CurrentTime() = %g, want 0.5", current)
		}
		for _, f := range []float64{0, -0.5, 1.5, math.NaN()} {
			wantKind(t, inst.UpdateFrac(ctx, f), bmi.KindTimeBounds)
		}
	})

	t.Run("off the step grid near the end", func(t *testing.T) {
		k := newTestKernel()
		inst := newTestInstance(t, k)
		mustInitialize(t, inst, "")
		if err := inst.UpdateFrac(ctx, 0.5); err != nil {
			t.Fatalf("UpdateFrac() error: %v", err)
		}
		if err := inst.UpdateUntil(ctx, 9.5); err != nil {
			t.Fatalf("UpdateUntil(9.5) error: %v", err)
		}
		steps := k.steps

		// A full step from 9.5 would land at 10.5.
		wantKind(t, inst.Update(ctx), bmi.KindTimeBounds)
		wantKind(t, inst.UpdateUntil(ctx, 10), bmi.KindTimeBounds)
		wantKind(t, inst.UpdateFrac(ctx, 1), bmi.KindTimeBounds)
		if k.steps != steps {
			t.Errorf("kernel steps = %d after rejected steps, want %d", k.steps, steps)
		}
		if current, _ := inst.CurrentTime(); current != 9.5 {
			t.Errorf("CurrentTime() = %g, want 9.5", current)
		}

		if err := inst.UpdateFrac(ctx, 0.5); err != nil {
			t.Fatalf("UpdateFrac() to the end error: %v", err)
		}
		if current, _ := inst.CurrentTime(); current != 10 {
			t.Errorf("CurrentTime() = %g, want 10", current)
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		inst := newTestInstance(t, plainKernel{newTestKernel()})
		mustInitialize(t, inst, "")
		wantKind(t, inst.UpdateFrac(ctx, 0.5), bmi.KindUnsupportedOperation)
	})
}

func TestInstance_KernelFailure(t *testing.T) {
	ctx := context.Background()
	k := newTestKernel()
	inst := newTestInstance(t, k)
	mustInitialize(t, inst, "")

	k.failAdvance = true
	err := inst.Update(ctx)
	wantKind(t, err, bmi.KindModelFailure)

	if op := bmi.AsModelError(err, "").Operation; op != "Update" {
		t.Errorf("Operation = %q, want Update", op)
	}
	if current, _ := inst.CurrentTime(); current != 0 {
		t.Errorf("CurrentTime() = %g after failed step, want 0", current)
	}
}

func TestInstance_Attributes(t *testing.T) {
	inst := newTestInstance(t, newTestKernel())

	names, err := inst.AttributeNames()
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"author", "rate", "label"}; !reflect.DeepEqual(names, want) {
		t.Errorf("AttributeNames() = %v, want %v", names, want)
	}

	_, err = inst.AttributeValue("colour")
	wantKind(t, err, bmi.KindUnknownAttribute)
	wantKind(t, inst.SetAttributeValue("colour", "red"), bmi.KindUnknownAttribute)
	wantKind(t, inst.SetAttributeValue("author", "someone"), bmi.KindReadOnlyAttribute)
	wantKind(t, inst.SetAttributeValue("rate", "fast"), bmi.KindConfiguration)

	mustInitialize(t, inst, "")

	wantKind(t, inst.SetAttributeValue("rate", "5"), bmi.KindLifecycle)
	if err := inst.SetAttributeValue("label", "b"); err != nil {
		t.Errorf("SetAttributeValue(label) after init: %v", err)
	}
	if v, _ := inst.AttributeValue("label"); v != "b" {
		t.Errorf("label = %q, want b", v)
	}
	if v, _ := inst.AttributeValue("author"); v != "tester" {
		t.Errorf("author = %q, want tester", v)
	}
}

func TestInstance_VariableMetadata(t *testing.T) {
	ctx := context.Background()
	inst := newTestInstance(t, newTestKernel())
	if err := inst.InitializeConfig(ctx, ""); err != nil {
		t.Fatal(err)
	}

	inputs, _ := inst.InputVarNames()
	outputs, _ := inst.OutputVarNames()
	if !reflect.DeepEqual(inputs, []string{"level"}) {
		t.Errorf("InputVarNames() = %v", inputs)
	}
	if !reflect.DeepEqual(outputs, []string{"level", "flux"}) {
		t.Errorf("OutputVarNames() = %v", outputs)
	}

	if err := inst.InitializeState(ctx, ""); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		typ    bmi.ElementType
		units  string
		role   bmi.Role
		rank   int
		size   int
		nbytes int
		grid   bmi.GridType
		shape  []int
	}{
		{"level", bmi.Float64, "m", bmi.RoleInputOutput, 2, 6, 48, bmi.GridUniform, []int{2, 3}},
		{"flux", bmi.Float32, "m s-1", bmi.RoleOutput, 2, 4, 16, bmi.GridRectilinear, []int{2, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, _ := inst.VarType(tt.name); got != tt.typ {
				t.Errorf("VarType() = %s, want %s", got, tt.typ)
			}
			if got, _ := inst.VarUnits(tt.name); got != tt.units {
				t.Errorf("VarUnits() = %q, want %q", got, tt.units)
			}
			if got, _ := inst.VarRole(tt.name); got != tt.role {
				t.Errorf("VarRole() = %s, want %s", got, tt.role)
			}
			if got, _ := inst.VarRank(tt.name); got != tt.rank {
				t.Errorf("VarRank() = %d, want %d", got, tt.rank)
			}
			if got, _ := inst.VarSize(tt.name); got != tt.size {
				t.Errorf("VarSize() = %d, want %d", got, tt.size)
			}
			if got, _ := inst.VarNbytes(tt.name); got != tt.nbytes {
				t.Errorf("VarNbytes() = %d, want %d", got, tt.nbytes)
			}
			if got, _ := inst.GridType(tt.name); got != tt.grid {
				t.Errorf("GridType() = %s, want %s", got, tt.grid)
			}
			if got, _ := inst.GridShape(tt.name); !reflect.DeepEqual(got, tt.shape) {
				t.Errorf("GridShape() = %v, want %v", got, tt.shape)
			}
		})
	}

	_, err := inst.VarType("missing")
	wantKind(t, err, bmi.KindUnknownVariable)
	_, err = inst.Variable("missing")
	wantKind(t, err, bmi.KindUnknownVariable)
}

func TestInstance_GridQueries(t *testing.T) {
	inst := newTestInstance(t, newTestKernel())
	mustInitialize(t, inst, "")

	spacing, err := inst.GridSpacing("level")
	if err != nil || !reflect.DeepEqual(spacing, []float64{1, 2}) {
		t.Errorf("GridSpacing(level) = %v, %v", spacing, err)
	}
	origin, err := inst.GridOrigin("level")
	if err != nil || !reflect.DeepEqual(origin, []float64{0, 10}) {
		t.Errorf("GridOrigin(level) = %v, %v", origin, err)
	}
	x, err := inst.GridX("flux")
	if err != nil || !reflect.DeepEqual(x, []float64{0, 1}) {
		t.Errorf("GridX(flux) = %v, %v", x, err)
	}
	y, err := inst.GridY("flux")
	if err != nil || !reflect.DeepEqual(y, []float64{5, 6}) {
		t.Errorf("GridY(flux) = %v, %v", y, err)
	}

	unsupported := map[string]func() error{
		"GridX(level)":            func() error { _, err := inst.GridX("level"); return err },
		"GridZ(flux)":             func() error { _, err := inst.GridZ("flux"); return err },
		"GridSpacing(flux)":       func() error { _, err := inst.GridSpacing("flux"); return err },
		"GridConnectivity(level)": func() error { _, err := inst.GridConnectivity("level"); return err },
		"GridOffset(flux)":        func() error { _, err := inst.GridOffset("flux"); return err },
	}
	for name, call := range unsupported {
		t.Run(name, func(t *testing.T) {
			wantKind(t, call(), bmi.KindUnsupportedGridQuery)
		})
	}
}

func TestInstance_VariableIsACopy(t *testing.T) {
	inst := newTestInstance(t, newTestKernel())
	mustInitialize(t, inst, "")

	v, err := inst.Variable("level")
	if err != nil {
		t.Fatalf("Variable() error: %v", err)
	}
	g := v.Grid.(bmi.UniformGrid)
	g.Dims[0] = 50
	g.Spacing[0] = -1

	if shape, _ := inst.GridShape("level"); !reflect.DeepEqual(shape, []int{2, 3}) {
		t.Errorf("GridShape() = %v after editing a descriptor, want [2 3]", shape)
	}
	if size, _ := inst.VarSize("level"); size != 6 {
		t.Errorf("VarSize() = %d, want 6", size)
	}
	if spacing, _ := inst.GridSpacing("level"); !reflect.DeepEqual(spacing, []float64{1, 2}) {
		t.Errorf("GridSpacing() = %v, want [1 2]", spacing)
	}

	at := make(bmi.Float64Values, 1)
	wantKind(t, inst.GetValueAtIndices("level", at, []int{100}), bmi.KindIndexOutOfBounds)
	wantKind(t, inst.SetValueAtIndices("level", []int{6}, at), bmi.KindIndexOutOfBounds)
}

func TestInstance_Values(t *testing.T) {
	inst := newTestInstance(t, newTestKernel())
	mustInitialize(t, inst, "")

	src := bmi.Float64Values{1, 2, 3, 4, 5, 6}
	if err := inst.SetValue("level", src); err != nil {
		t.Fatalf("SetValue() error: %v", err)
	}
	got := make(bmi.Float64Values, 6)
	if err := inst.GetValue("level", got); err != nil {
		t.Fatalf("GetValue() error: %v", err)
	}
	if !reflect.DeepEqual(got, src) {
		t.Errorf("GetValue() = %v, want %v", got, src)
	}

	// The instance keeps no reference to the caller's buffer.
	src[0] = 100
	_ = inst.GetValue("level", got)
	if got[0] != 1 {
		t.Errorf("level[0] = %g after mutating the source buffer, want 1", got[0])
	}

	if err := inst.SetValueAtIndices("level", []int{5, 0}, bmi.Float64Values{60, 10}); err != nil {
		t.Fatalf("SetValueAtIndices() error: %v", err)
	}
	at := make(bmi.Float64Values, 3)
	if err := inst.GetValueAtIndices("level", at, []int{0, 5, 1}); err != nil {
		t.Fatalf("GetValueAtIndices() error: %v", err)
	}
	if want := (bmi.Float64Values{10, 60, 2}); !reflect.DeepEqual(at, want) {
		t.Errorf("GetValueAtIndices() = %v, want %v", at, want)
	}

	flux := make(bmi.Float32Values, 4)
	if err := inst.GetValue("flux", flux); err != nil {
		t.Errorf("GetValue(flux) error: %v", err)
	}

	tests := []struct {
		name string
		call func() error
		kind bmi.ErrorKind
	}{
		{"type mismatch", func() error { return inst.GetValue("level", make(bmi.Float32Values, 6)) }, bmi.KindTypeMismatch},
		{"short buffer", func() error { return inst.GetValue("level", make(bmi.Float64Values, 5)) }, bmi.KindSizeMismatch},
		{"nil buffer", func() error { return inst.SetValue("level", nil) }, bmi.KindSizeMismatch},
		{"indices and buffer differ", func() error {
			return inst.GetValueAtIndices("level", make(bmi.Float64Values, 2), []int{0})
		}, bmi.KindSizeMismatch},
		{"negative index", func() error {
			return inst.GetValueAtIndices("level", make(bmi.Float64Values, 1), []int{-1})
		}, bmi.KindIndexOutOfBounds},
		{"index past end", func() error {
			return inst.SetValueAtIndices("level", []int{0, 6}, bmi.Float64Values{7, 7})
		}, bmi.KindIndexOutOfBounds},
		{"set output-only", func() error { return inst.SetValue("flux", make(bmi.Float32Values, 4)) }, bmi.KindUnknownVariable},
		{"unknown variable", func() error { return inst.GetValue("missing", got) }, bmi.KindUnknownVariable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantKind(t, tt.call(), tt.kind)
		})
	}

	// The rejected SetValueAtIndices must not have written index 0.
	_ = inst.GetValue("level", got)
	if got[0] != 10 {
		t.Errorf("level[0] = %g after rejected write, want 10", got[0])
	}
}

func TestInstance_Checkpoint(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "state")

	first := newTestInstance(t, newTestKernel())
	mustInitialize(t, first, writeConfig(t, "attributes:\n  rate: \"2\"\n"))
	if err := first.SetAttributeValue("label", "saved"); err != nil {
		t.Fatal(err)
	}
	if err := first.UpdateUntil(ctx, 3); err != nil {
		t.Fatal(err)
	}
	if err := first.SaveState(ctx, dir); err != nil {
		t.Fatalf("SaveState() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, CheckpointFile)); err != nil {
		t.Fatalf("checkpoint file: %v", err)
	}

	k := newTestKernel()
	second := newTestInstance(t, k)
	if err := second.InitializeConfig(ctx, ""); err != nil {
		t.Fatal(err)
	}
	if err := second.InitializeState(ctx, dir); err != nil {
		t.Fatalf("InitializeState(dir) error: %v", err)
	}

	if current, _ := second.CurrentTime(); current != 3 {
		t.Errorf("CurrentTime() = %g, want 3", current)
	}
	if v, _ := second.AttributeValue("rate"); v != "2" {
		t.Errorf("rate = %q, want 2", v)
	}
	if v, _ := second.AttributeValue("label"); v != "saved" {
		t.Errorf("label = %q, want saved", v)
	}
	if k.steps != 3 {
		t.Errorf("kernel steps = %d, want 3", k.steps)
	}

	level, _ := bmi.Float64s(second, "level")
	if level[0] != 6 {
		t.Errorf("level[0] = %g, want 6", level[0])
	}

	// Both instances continue identically.
	if err := first.Update(ctx); err != nil {
		t.Fatal(err)
	}
	if err := second.Update(ctx); err != nil {
		t.Fatal(err)
	}
	a, _ := bmi.Float32s(first, "flux")
	b, _ := bmi.Float32s(second, "flux")
	if !reflect.DeepEqual(a, b) {
		t.Errorf("flux diverged after restore: %v vs %v", a, b)
	}
}

func TestInstance_CheckpointErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing checkpoint", func(t *testing.T) {
		inst := newTestInstance(t, newTestKernel())
		if err := inst.InitializeConfig(ctx, ""); err != nil {
			t.Fatal(err)
		}
		wantKind(t, inst.InitializeState(ctx, t.TempDir()), bmi.KindStateLoad)
		if inst.State() != bmi.StateConfigured {
			t.Fatalf("State() = %s, want configured", inst.State())
		}
		if err := inst.InitializeState(ctx, ""); err != nil {
			t.Errorf("InitializeState(\"\") after failed restore: %v", err)
		}
	})

	t.Run("different model", func(t *testing.T) {
		dir := t.TempDir()
		first := newTestInstance(t, newTestKernel())
		mustInitialize(t, first, "")
		if err := first.SaveState(ctx, dir); err != nil {
			t.Fatal(err)
		}

		other := &renamedKernel{testKernel: newTestKernel()}
		inst := newTestInstance(t, other)
		if err := inst.InitializeConfig(ctx, ""); err != nil {
			t.Fatal(err)
		}
		wantKind(t, inst.InitializeState(ctx, dir), bmi.KindStateLoad)
	})

	t.Run("unsupported", func(t *testing.T) {
		inst := newTestInstance(t, plainKernel{newTestKernel()})
		if err := inst.InitializeConfig(ctx, ""); err != nil {
			t.Fatal(err)
		}
		wantKind(t, inst.InitializeState(ctx, t.TempDir()), bmi.KindUnsupportedOperation)
		if err := inst.InitializeState(ctx, ""); err != nil {
			t.Fatal(err)
		}
		wantKind(t, inst.SaveState(ctx, t.TempDir()), bmi.KindUnsupportedOperation)
	})
}

// renamedKernel is a testKernel under another component name.
type renamedKernel struct {
	*testKernel
}

func (k *renamedKernel) Describe() Description {
	d := k.testKernel.Describe()
	d.Component = "renamed-model"
	return d
}

func TestInstance_Telemetry(t *testing.T) {
	tel, err := telemetry.NewTelemetry(telemetry.TestConfig())
	if err != nil {
		t.Fatalf("NewTelemetry() error: %v", err)
	}
	defer tel.Shutdown(context.Background())

	var events []string
	tel.Events.Subscribe(func(e telemetry.Event) {
		events = append(events, e.Type)
	}, telemetry.FilterByModel("test-model"))

	ctx := tel.WithContext(context.Background())
	inst := newTestInstance(t, newTestKernel())
	if err := inst.Initialize(ctx, writeConfig(t, "end_time: 1\n")); err != nil {
		t.Fatal(err)
	}
	if err := inst.Update(ctx); err != nil {
		t.Fatal(err)
	}
	_ = inst.Update(ctx)

	want := []string{
		telemetry.EventTypeLifecycleChanged,
		telemetry.EventTypeLifecycleChanged,
		telemetry.EventTypeEndReached,
		telemetry.EventTypeOperationFailed,
	}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
}
