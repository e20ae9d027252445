package bmi

import (
	"testing"
)

func TestVariableDerivedSizes(t *testing.T) {
	v := Variable{
		Name:  "var1",
		Type:  Float64,
		Units: "-",
		Role:  RoleInputOutput,
		Grid:  UniformGrid{Dims: []int{10, 10}, Spacing: []float64{1, 1}, Origin: []float64{0, 0}},
	}
	if err := v.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if v.Rank() != 2 || v.Size() != 100 || v.Nbytes() != 800 {
		t.Errorf("rank=%d size=%d nbytes=%d", v.Rank(), v.Size(), v.Nbytes())
	}

	v.Type = Float32
	if v.Nbytes() != 400 {
		t.Errorf("float32 nbytes = %d, want 400", v.Nbytes())
	}

	scalar := Variable{Name: "k", Type: Float64, Role: RoleInput, Grid: UniformGrid{}}
	if scalar.Rank() != 0 || scalar.Size() != 1 {
		t.Errorf("scalar rank=%d size=%d", scalar.Rank(), scalar.Size())
	}
}

func TestVariableValidateCollectsErrors(t *testing.T) {
	v := Variable{Type: "complex128", Role: "sideways"}
	if err := v.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestGatherScatter(t *testing.T) {
	src := Float64Values{0, 1, 2, 3, 4, 5}
	dst := make(Float64Values, 3)
	if err := GatherValues(dst, src, []int{5, 0, 2}); err != nil {
		t.Fatalf("GatherValues: %v", err)
	}
	if dst[0] != 5 || dst[1] != 0 || dst[2] != 2 {
		t.Errorf("gathered %v", dst)
	}

	if err := ScatterValues(src, Float64Values{-1, -2}, []int{1, 4}); err != nil {
		t.Fatalf("ScatterValues: %v", err)
	}
	want := Float64Values{0, -1, 2, 3, -2, 5}
	for i := range want {
		if src[i] != want[i] {
			t.Fatalf("after scatter = %v, want %v", src, want)
		}
	}

	if err := GatherValues(make(Float32Values, 1), src, []int{0}); err == nil {
		t.Error("expected element type mismatch")
	}
	if err := ScatterValues(src, Float64Values{1}, []int{0, 1}); err == nil {
		t.Error("expected length mismatch")
	}
}

func TestCopyAndClone(t *testing.T) {
	src := Float32Values{1, 2, 3}
	clone := CloneValues(src).(Float32Values)
	clone[0] = 9
	if src[0] != 1 {
		t.Error("CloneValues must not alias")
	}

	dst := make(Float32Values, 3)
	if err := CopyValues(dst, src); err != nil {
		t.Fatalf("CopyValues: %v", err)
	}
	if dst[2] != 3 {
		t.Errorf("copied %v", dst)
	}
	if err := CopyValues(make(Float32Values, 2), src); err == nil {
		t.Error("expected length mismatch")
	}

	FillValues(dst, 7)
	if dst[1] != 7 {
		t.Errorf("FillValues: %v", dst)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	tests := []struct {
		from, to LifecycleState
		want     bool
	}{
		{StateCreated, StateConfigured, true},
		{StateCreated, StateInitialized, false},
		{StateConfigured, StateInitialized, true},
		{StateConfigured, StateConfigured, false},
		{StateInitialized, StateFinalized, true},
		{StateCreated, StateFinalized, true},
		{StateFinalized, StateFinalized, false},
		{StateFinalized, StateCreated, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}

	if err := StateConfigured.Require("Update", StateInitialized); !IsKind(err, KindLifecycle) {
		t.Errorf("Require() = %v, want lifecycle error", err)
	}
	if err := StateInitialized.Require("Update", StateInitialized); err != nil {
		t.Errorf("Require() = %v, want nil", err)
	}

	var s LifecycleState
	if err := s.UnmarshalJSON([]byte(`"paused"`)); err == nil {
		t.Error("expected error for unknown lifecycle state")
	}
}
