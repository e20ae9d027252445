package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/openfroyo/bmi/pkg/bmi"
	"github.com/openfroyo/bmi/pkg/config"
)

// testKernel exposes a 2x3 uniform "level" that grows by rate*dt each step
// and an output-only 2x2 rectilinear "flux" holding the step count.
type testKernel struct {
	setup *Setup
	level bmi.Float64Values
	flux  bmi.Float32Values
	steps int

	configured  *config.ModelConfig
	allocations int
	released    int
	failAdvance bool
}

func newTestKernel() *testKernel { return &testKernel{} }

func (k *testKernel) Describe() Description {
	return Description{
		Component: "test-model",
		Clock:     ClockDefaults{StartTime: 0, EndTime: 10, TimeStep: 1, TimeUnits: "s"},
		Attributes: []AttributeSpec{
			{Name: "author", Default: "tester", Policy: bmi.AttributeReadOnly},
			{Name: "rate", Default: "1", Policy: bmi.AttributeMutableBeforeInit},
			{Name: "label", Default: "a", Policy: bmi.AttributeMutable},
		},
	}
}

func (k *testKernel) Configure(ctx context.Context, cfg *config.ModelConfig, setup *Setup) error {
	k.configured = cfg
	if cfg.Model != "" && cfg.Model != "test-model" {
		return fmt.Errorf("configuration is for model %q", cfg.Model)
	}
	if err := setup.Declare("level", bmi.RoleInputOutput); err != nil {
		return err
	}
	return setup.Declare("flux", bmi.RoleOutput)
}

func (k *testKernel) Allocate(ctx context.Context, setup *Setup, bindings *Bindings) error {
	k.allocations++
	k.setup = setup
	k.level = make(bmi.Float64Values, 6)
	k.flux = make(bmi.Float32Values, 4)
	k.steps = 0
	bmi.FillValues(k.level, setup.StartTime)

	level := bmi.Variable{
		Name:  "level",
		Type:  bmi.Float64,
		Units: "m",
		Role:  bmi.RoleInputOutput,
		Grid:  bmi.UniformGrid{Dims: []int{2, 3}, Spacing: []float64{1, 2}, Origin: []float64{0, 10}},
	}
	flux := bmi.Variable{
		Name:  "flux",
		Type:  bmi.Float32,
		Units: "m s-1",
		Role:  bmi.RoleOutput,
		Grid:  bmi.RectilinearGrid{Dims: []int{2, 2}, X: []float64{0, 1}, Y: []float64{5, 6}},
	}
	if err := bindings.Bind(level, k.level); err != nil {
		return err
	}
	return bindings.Bind(flux, k.flux)
}

func (k *testKernel) rate() float64 {
	v, _ := k.setup.Attribute("rate")
	r, _ := strconv.ParseFloat(v, 64)
	return r
}

func (k *testKernel) Advance(ctx context.Context, dt float64) error {
	if k.failAdvance {
		return errors.New("solver diverged")
	}
	for i := range k.level {
		k.level[i] += k.rate() * dt
	}
	k.steps++
	bmi.FillValues(k.flux, float64(k.steps))
	return nil
}

func (k *testKernel) AdvanceFraction(ctx context.Context, fraction, dt float64) error {
	return k.Advance(ctx, fraction*dt)
}

func (k *testKernel) Release(ctx context.Context) error {
	k.released++
	return nil
}

func (k *testKernel) ValidateAttribute(name, value string) error {
	if name != "rate" {
		return nil
	}
	if _, err := strconv.ParseFloat(value, 64); err != nil {
		return fmt.Errorf("rate must be a number: %w", err)
	}
	return nil
}

type testKernelState struct {
	Steps int `json:"steps"`
}

func (k *testKernel) MarshalState() ([]byte, error) {
	return json.Marshal(testKernelState{Steps: k.steps})
}

func (k *testKernel) UnmarshalState(data []byte) error {
	var s testKernelState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	k.steps = s.Steps
	return nil
}

// plainKernel hides the optional interfaces of the kernel it wraps.
type plainKernel struct {
	Kernel
}
