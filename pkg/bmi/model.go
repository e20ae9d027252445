package bmi

import "context"

// Model is the contract every simulation model presents to a driver.
//
// A Model moves through Created -> Configured -> Initialized -> Finalized.
// Each operation documents the states it is legal in; calling it in any
// other state fails with a LifecycleError. Implementations are not required
// to be safe for concurrent use and drivers must serialize calls.
type Model interface {
	// ComponentName returns the model's fixed human-readable name.
	ComponentName() string

	// State returns the current lifecycle state.
	State() LifecycleState

	// Capabilities returns the optional operations the model supports.
	Capabilities() Capabilities

	// InitializeConfig applies a configuration source. Created -> Configured.
	InitializeConfig(ctx context.Context, source string) error

	// InitializeState allocates state, from a saved state source if source is
	// non-empty. Configured -> Initialized.
	InitializeState(ctx context.Context, source string) error

	// Initialize is InitializeConfig followed by InitializeState("").
	Initialize(ctx context.Context, source string) error

	// Update advances the model by one time step.
	Update(ctx context.Context) error

	// UpdateUntil advances the model until its current time reaches t.
	UpdateUntil(ctx context.Context, t float64) error

	// UpdateFrac advances the model by a fraction of one time step.
	UpdateFrac(ctx context.Context, fraction float64) error

	// SaveState writes the model state to the directory dir.
	SaveState(ctx context.Context, dir string) error

	// Finalize releases all resources. It is legal in every state and
	// repeated calls are no-ops.
	Finalize(ctx context.Context) error

	Clock
	Attributes
	Variables
	GridQueries
	Accessors
}

// Clock exposes the simulation time window. Legal while Configured or Initialized.
type Clock interface {
	StartTime() (float64, error)
	EndTime() (float64, error)
	CurrentTime() (float64, error)
	TimeStep() (float64, error)
	TimeUnits() (string, error)

	// SetStartTime and SetEndTime are legal only while Configured.
	SetStartTime(t float64) error
	SetEndTime(t float64) error
}

// Attributes exposes the model's named string attributes.
type Attributes interface {
	AttributeNames() ([]string, error)
	AttributeValue(name string) (string, error)
	SetAttributeValue(name, value string) error
}

// Variables exposes variable metadata. Names are available from
// Configured on; everything else requires Initialized.
type Variables interface {
	InputVarNames() ([]string, error)
	OutputVarNames() ([]string, error)
	Variable(name string) (Variable, error)
	VarType(name string) (ElementType, error)
	VarUnits(name string) (string, error)
	VarRole(name string) (Role, error)
	VarRank(name string) (int, error)
	VarSize(name string) (int, error)
	VarNbytes(name string) (int, error)
}

// GridQueries exposes the geometry of a variable's grid. A query that does
// not apply to the grid variant fails with an UnsupportedGridQueryError.
type GridQueries interface {
	GridType(name string) (GridType, error)
	GridShape(name string) ([]int, error)
	GridSpacing(name string) ([]float64, error)
	GridOrigin(name string) ([]float64, error)
	GridX(name string) ([]float64, error)
	GridY(name string) ([]float64, error)
	GridZ(name string) ([]float64, error)
	GridConnectivity(name string) ([]int, error)
	GridOffset(name string) ([]int, error)
}

// Accessors read and write variable values using row-major flat indices.
type Accessors interface {
	// GetValue copies the whole variable into dst.
	GetValue(name string, dst Values) error

	// GetValueAtIndices copies the elements at indices into dst.
	GetValueAtIndices(name string, dst Values, indices []int) error

	// SetValue overwrites the whole variable with src.
	SetValue(name string, src Values) error

	// SetValueAtIndices writes src[k] to element indices[k]. No element is
	// written if any index is invalid.
	SetValueAtIndices(name string, indices []int, src Values) error
}
