package bmi

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ElementType is the scalar type stored by a variable.
type ElementType string

const (
	// Float64 is an IEEE-754 double precision element.
	Float64 ElementType = "float64"

	// Float32 is an IEEE-754 single precision element.
	Float32 ElementType = "float32"
)

// Size returns the width of one element in bytes.
func (t ElementType) Size() int {
	switch t {
	case Float64:
		return 8
	case Float32:
		return 4
	default:
		return 0
	}
}

// Validate checks if the element type is supported.
func (t ElementType) Validate() error {
	switch t {
	case Float64, Float32:
		return nil
	default:
		return fmt.Errorf("invalid element type: %s", t)
	}
}

// String implements fmt.Stringer.
func (t ElementType) String() string {
	return string(t)
}

// Role describes whether a variable accepts writes, exposes reads, or both.
type Role string

const (
	// RoleInput variables are written by the driver.
	RoleInput Role = "input"

	// RoleOutput variables are produced by the model.
	RoleOutput Role = "output"

	// RoleInputOutput variables are both.
	RoleInputOutput Role = "inout"
)

// IsInput returns true if the variable appears in the input set.
func (r Role) IsInput() bool {
	return r == RoleInput || r == RoleInputOutput
}

// IsOutput returns true if the variable appears in the output set.
func (r Role) IsOutput() bool {
	return r == RoleOutput || r == RoleInputOutput
}

// Validate checks if the role is valid.
func (r Role) Validate() error {
	switch r {
	case RoleInput, RoleOutput, RoleInputOutput:
		return nil
	default:
		return fmt.Errorf("invalid variable role: %s", r)
	}
}

// AttributePolicy governs when an attribute may be modified.
type AttributePolicy string

const (
	// AttributeReadOnly attributes can never be set by the driver.
	AttributeReadOnly AttributePolicy = "read_only"

	// AttributeMutableBeforeInit attributes can be set until the model is initialized.
	AttributeMutableBeforeInit AttributePolicy = "mutable_before_init"

	// AttributeMutable attributes can be set at any time before finalization.
	AttributeMutable AttributePolicy = "mutable"
)

// Validate checks if the attribute policy is valid.
func (p AttributePolicy) Validate() error {
	switch p {
	case AttributeReadOnly, AttributeMutableBeforeInit, AttributeMutable:
		return nil
	default:
		return fmt.Errorf("invalid attribute policy: %s", p)
	}
}

// Capability identifies an optional operation a model supports.
type Capability string

const (
	// CapabilityCheckpoint indicates SaveState and InitializeState with a
	// non-empty source are supported.
	CapabilityCheckpoint Capability = "state:checkpoint"

	// CapabilityFractionalUpdate indicates UpdateFrac is supported.
	CapabilityFractionalUpdate Capability = "time:fractional"
)

// Capabilities is the set of optional operations a model supports.
type Capabilities map[Capability]bool

// Has returns true if c is in the set.
func (cs Capabilities) Has(c Capability) bool {
	return cs[c]
}

// List returns the capabilities in the set, in a stable order.
func (cs Capabilities) List() []Capability {
	var out []Capability
	for _, c := range []Capability{CapabilityCheckpoint, CapabilityFractionalUpdate} {
		if cs[c] {
			out = append(out, c)
		}
	}
	return out
}

// GridType identifies the geometric variant of a grid. The numeric values
// are part of the external contract.
type GridType int

const (
	GridUnknown      GridType = 0
	GridUniform      GridType = 1
	GridRectilinear  GridType = 2
	GridStructured   GridType = 3
	GridUnstructured GridType = 4
)

var gridTypeNames = map[GridType]string{
	GridUnknown:      "unknown",
	GridUniform:      "uniform",
	GridRectilinear:  "rectilinear",
	GridStructured:   "structured",
	GridUnstructured: "unstructured",
}

// GridTypeFromValue returns the grid type with numeric encoding v.
func GridTypeFromValue(v int) (GridType, error) {
	t := GridType(v)
	if _, ok := gridTypeNames[t]; !ok {
		return GridUnknown, fmt.Errorf("invalid grid type value: %d", v)
	}
	return t, nil
}

// ParseGridType returns the grid type with the given name.
func ParseGridType(name string) (GridType, error) {
	for t, n := range gridTypeNames {
		if strings.EqualFold(n, name) {
			return t, nil
		}
	}
	return GridUnknown, fmt.Errorf("invalid grid type: %q", name)
}

// Value returns the numeric encoding of the grid type.
func (t GridType) Value() int {
	return int(t)
}

// String implements fmt.Stringer.
func (t GridType) String() string {
	if n, ok := gridTypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("GridType(%d)", int(t))
}

// MarshalText implements encoding.TextMarshaler.
func (t GridType) MarshalText() ([]byte, error) {
	n, ok := gridTypeNames[t]
	if !ok {
		return nil, fmt.Errorf("invalid grid type value: %d", int(t))
	}
	return []byte(n), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *GridType) UnmarshalText(text []byte) error {
	parsed, err := ParseGridType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// UnmarshalJSON accepts either the name or the numeric encoding.
func (t *GridType) UnmarshalJSON(data []byte) error {
	var v int
	if err := json.Unmarshal(data, &v); err == nil {
		parsed, err := GridTypeFromValue(v)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return t.UnmarshalText([]byte(s))
}
