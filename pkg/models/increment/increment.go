// Package increment implements the reference model of the contract: one
// rank-2 uniform grid whose every element grows by a fixed increment each
// time step.
//
// The model is the conformance fixture for pkg/conformance and the default
// model of the bmi CLI. Its values start at the start time, so with the
// default increment of 1.0 and a step of 1.0 every element equals the
// current time.
package increment

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/openfroyo/bmi/pkg/bmi"
	"github.com/openfroyo/bmi/pkg/config"
	"github.com/openfroyo/bmi/pkg/host"
)

const (
	// Name is the registry name of the model.
	Name = "increment"

	// Version is the registry version of the model.
	Version = "1.0.0"

	// ComponentName is the human-readable model name.
	ComponentName = "Example toy increment model"

	// Author is the fixed value of the read-only author attribute.
	Author = "Rolf Hut"

	// VarName is the only variable the model exposes.
	VarName = "var1"
)

// Attribute names.
const (
	AttrAuthor    = "author"
	AttrIncrement = "increment"
	AttrShape     = "shape"
)

// Model is the increment kernel. Use New or Register; the zero value is not
// usable.
type Model struct {
	increment float64
	values    bmi.Float64Values
	steps     int
}

var (
	_ host.Kernel             = (*Model)(nil)
	_ host.Checkpointer       = (*Model)(nil)
	_ host.AttributeValidator = (*Model)(nil)
)

// New returns a fresh kernel.
func New() *Model {
	return &Model{}
}

// Factory creates kernels for a host.Registry.
func Factory(ctx context.Context) (host.Kernel, error) {
	return New(), nil
}

// NewInstance wraps a fresh kernel in a host.Instance.
func NewInstance(cfg *host.InstanceConfig) (*host.Instance, error) {
	c := host.InstanceConfig{}
	if cfg != nil {
		c = *cfg
	}
	if c.Version == "" {
		c.Version = Version
	}
	return host.NewInstance(New(), &c)
}

// Manifest describes the model to a host.Registry.
func Manifest() *host.Manifest {
	return &host.Manifest{
		Name:         Name,
		Version:      Version,
		Description:  ComponentName,
		Author:       Author,
		License:      "Apache-2.0",
		Capabilities: []bmi.Capability{bmi.CapabilityCheckpoint},
	}
}

// Register adds the model to reg as increment@1.0.0.
func Register(reg *host.Registry) error {
	return reg.Register(Manifest(), Factory)
}

// Describe returns the model identity, clock defaults and attributes.
func (m *Model) Describe() host.Description {
	return host.Description{
		Component: ComponentName,
		Clock: host.ClockDefaults{
			StartTime: 1,
			EndTime:   20,
			TimeStep:  1,
			TimeUnits: "seconds",
		},
		Attributes: []host.AttributeSpec{
			{Name: AttrAuthor, Default: Author, Policy: bmi.AttributeReadOnly},
			{Name: AttrIncrement, Default: "1.0", Policy: bmi.AttributeMutableBeforeInit},
			{Name: AttrShape, Default: "10x10", Policy: bmi.AttributeMutableBeforeInit},
		},
	}
}

// Configure accepts only a time step of 1.0 and declares var1.
func (m *Model) Configure(ctx context.Context, cfg *config.ModelConfig, setup *host.Setup) error {
	if cfg.Model != "" && cfg.Model != Name {
		return bmi.NewConfigurationError(
			fmt.Sprintf("configuration is for model %q, not %q", cfg.Model, Name), nil)
	}
	if setup.TimeStep != 1 {
		return bmi.NewConfigurationError(
			fmt.Sprintf("time step is fixed at 1, got %g", setup.TimeStep), nil).
			WithDetail("time_step", setup.TimeStep)
	}
	return setup.Declare(VarName, bmi.RoleInputOutput)
}

// Allocate reads the increment and shape attributes and binds var1, filled
// with the start time.
func (m *Model) Allocate(ctx context.Context, setup *host.Setup, bindings *host.Bindings) error {
	incr, _ := setup.Attribute(AttrIncrement)
	increment, err := parseIncrement(incr)
	if err != nil {
		return bmi.NewConfigurationError("invalid increment", err)
	}
	s, _ := setup.Attribute(AttrShape)
	shape, err := parseShape(s)
	if err != nil {
		return bmi.NewConfigurationError("invalid shape", err)
	}

	values := make(bmi.Float64Values, shape[0]*shape[1])
	bmi.FillValues(values, setup.StartTime)

	v := bmi.Variable{
		Name:  VarName,
		Type:  bmi.Float64,
		Units: "-",
		Role:  bmi.RoleInputOutput,
		Grid: bmi.UniformGrid{
			Dims:    []int{shape[0], shape[1]},
			Spacing: []float64{1, 1},
			Origin:  []float64{0, 0},
		},
	}
	if err := bindings.Bind(v, values); err != nil {
		return err
	}

	m.increment = increment
	m.values = values
	m.steps = 0
	return nil
}

// Advance adds the increment to every element. The increment is per step,
// independent of dt.
func (m *Model) Advance(ctx context.Context, dt float64) error {
	for i := range m.values {
		m.values[i] += m.increment
	}
	m.steps++
	return nil
}

// Release drops the grid.
func (m *Model) Release(ctx context.Context) error {
	m.values = nil
	return nil
}

// ValidateAttribute checks increment and shape values when they are set.
func (m *Model) ValidateAttribute(name, value string) error {
	switch name {
	case AttrIncrement:
		_, err := parseIncrement(value)
		return err
	case AttrShape:
		_, err := parseShape(value)
		return err
	}
	return nil
}

type state struct {
	Steps int `json:"steps"`
}

// MarshalState records the number of steps taken. The grid values are
// checkpointed by the host.
func (m *Model) MarshalState() ([]byte, error) {
	return json.Marshal(state{Steps: m.steps})
}

// UnmarshalState restores the step count.
func (m *Model) UnmarshalState(data []byte) error {
	var s state
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to decode increment state: %w", err)
	}
	if s.Steps < 0 {
		return fmt.Errorf("negative step count %d", s.Steps)
	}
	m.steps = s.Steps
	return nil
}

// Steps returns the number of time steps taken since allocation.
func (m *Model) Steps() int {
	return m.steps
}

func parseIncrement(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("increment %q is not a number", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("increment %q is not finite", s)
	}
	return v, nil
}

// parseShape parses "<rows>x<columns>".
func parseShape(s string) ([2]int, error) {
	rows, cols, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return [2]int{}, fmt.Errorf("shape %q is not of the form <rows>x<columns>", s)
	}
	r, err := strconv.Atoi(rows)
	if err != nil || r <= 0 {
		return [2]int{}, fmt.Errorf("shape %q has an invalid row count", s)
	}
	c, err := strconv.Atoi(cols)
	if err != nil || c <= 0 {
		return [2]int{}, fmt.Errorf("shape %q has an invalid column count", s)
	}
	return [2]int{r, c}, nil
}
