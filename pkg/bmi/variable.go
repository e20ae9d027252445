package bmi

import (
	"errors"
	"fmt"
)

// Variable describes a named array a model exposes.
type Variable struct {
	// Name is the unique key of the variable within a model.
	Name string `json:"name"`

	// Type is the element type of the values.
	Type ElementType `json:"type"`

	// Units is the physical unit string, "-" for dimensionless.
	Units string `json:"units"`

	// Role places the variable in the input set, the output set, or both.
	Role Role `json:"role"`

	// Grid is the geometry the values are defined on.
	Grid Grid `json:"-"`
}

// Clone returns a copy of v whose grid shares no memory with v's.
func (v Variable) Clone() Variable {
	v.Grid = CloneGrid(v.Grid)
	return v
}

// Rank returns the number of dimensions.
func (v Variable) Rank() int {
	if v.Grid == nil {
		return 0
	}
	return v.Grid.Rank()
}

// Shape returns the per-dimension extents.
func (v Variable) Shape() []int {
	if v.Grid == nil {
		return nil
	}
	return v.Grid.Shape()
}

// Size returns the number of elements.
func (v Variable) Size() int {
	if v.Grid == nil {
		return 0
	}
	return v.Grid.Size()
}

// Nbytes returns the size of the values in bytes.
func (v Variable) Nbytes() int {
	return v.Size() * v.Type.Size()
}

// Validate checks that the descriptor is complete and self-consistent.
func (v Variable) Validate() error {
	var errs []error
	if v.Name == "" {
		errs = append(errs, errors.New("variable name is required"))
	}
	if err := v.Type.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := v.Role.Validate(); err != nil {
		errs = append(errs, err)
	}
	if v.Grid == nil {
		errs = append(errs, errors.New("grid is required"))
	} else if err := v.Grid.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("variable %q: %w", v.Name, errors.Join(errs...))
	}
	return nil
}
