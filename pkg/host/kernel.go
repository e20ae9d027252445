package host

import (
	"context"

	"github.com/openfroyo/bmi/pkg/bmi"
	"github.com/openfroyo/bmi/pkg/config"
)

// Kernel is the model-specific computation wrapped by an Instance. The
// Instance owns the lifecycle, clock, attribute table and all contract
// checks; a Kernel only describes itself, declares and binds its variables,
// and advances its state.
type Kernel interface {
	// Describe returns the fixed identity of the model. It is called once,
	// before any other method.
	Describe() Description

	// Configure validates the loaded configuration and declares the names
	// and roles of the variables the kernel will bind. The clock and
	// attribute overrides of cfg have already been applied to setup.
	Configure(ctx context.Context, cfg *config.ModelConfig, setup *Setup) error

	// Allocate creates the model state and binds every declared variable.
	// After a failed InitializeState it may be called again and must
	// replace any earlier allocation.
	Allocate(ctx context.Context, setup *Setup, bindings *Bindings) error

	// Advance moves the state forward by dt model time units.
	Advance(ctx context.Context, dt float64) error

	// Release frees all resources held by the kernel.
	Release(ctx context.Context) error
}

// Description is the static identity of a kernel.
type Description struct {
	// Component is the human-readable model name.
	Component string `json:"component"`

	// Clock holds the default simulation window.
	Clock ClockDefaults `json:"clock"`

	// Attributes are the declared attributes, in presentation order.
	Attributes []AttributeSpec `json:"attributes"`
}

// ClockDefaults are the clock values used unless a configuration source or
// the driver overrides them.
type ClockDefaults struct {
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	TimeStep  float64 `json:"time_step"`
	TimeUnits string  `json:"time_units"`
}

// AttributeSpec declares one attribute and its mutation policy.
type AttributeSpec struct {
	Name    string              `json:"name"`
	Default string              `json:"default"`
	Policy  bmi.AttributePolicy `json:"policy"`
}

// Checkpointer is implemented by kernels that carry state beyond their bound
// variables. Variable values are checkpointed by the Instance; the kernel
// only serializes what it keeps privately.
type Checkpointer interface {
	MarshalState() ([]byte, error)
	UnmarshalState(data []byte) error
}

// FractionalStepper is implemented by kernels that can advance by part of
// a time step.
type FractionalStepper interface {
	AdvanceFraction(ctx context.Context, fraction, dt float64) error
}

// AttributeValidator is implemented by kernels that check attribute values
// when they are set rather than at allocation.
type AttributeValidator interface {
	ValidateAttribute(name, value string) error
}

// Factory creates a fresh kernel. Every Instance owns its own kernel.
type Factory func(ctx context.Context) (Kernel, error)
