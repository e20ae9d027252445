package host

import (
	"github.com/openfroyo/bmi/pkg/bmi"
)

// InputVarNames returns the names of variables the driver may write.
func (i *Instance) InputVarNames() ([]string, error) {
	if err := i.requireClock("InputVarNames"); err != nil {
		return nil, err
	}
	return i.setup.namesWhere(bmi.Role.IsInput), nil
}

// OutputVarNames returns the names of variables the driver may read.
func (i *Instance) OutputVarNames() ([]string, error) {
	if err := i.requireClock("OutputVarNames"); err != nil {
		return nil, err
	}
	return i.setup.namesWhere(bmi.Role.IsOutput), nil
}

// Variable returns the descriptor of a bound variable.
func (i *Instance) Variable(name string) (bmi.Variable, error) {
	b, err := i.lookup("Variable", name)
	if err != nil {
		return bmi.Variable{}, err
	}
	return b.desc.Clone(), nil
}

// VarType returns the element type of a variable.
func (i *Instance) VarType(name string) (bmi.ElementType, error) {
	b, err := i.lookup("VarType", name)
	if err != nil {
		return "", err
	}
	return b.desc.Type, nil
}

// VarUnits returns the units of a variable.
func (i *Instance) VarUnits(name string) (string, error) {
	b, err := i.lookup("VarUnits", name)
	if err != nil {
		return "", err
	}
	return b.desc.Units, nil
}

// VarRole returns the role of a variable.
func (i *Instance) VarRole(name string) (bmi.Role, error) {
	b, err := i.lookup("VarRole", name)
	if err != nil {
		return "", err
	}
	return b.desc.Role, nil
}

// VarRank returns the number of dimensions of a variable.
func (i *Instance) VarRank(name string) (int, error) {
	b, err := i.lookup("VarRank", name)
	if err != nil {
		return 0, err
	}
	return b.desc.Rank(), nil
}

// VarSize returns the number of elements of a variable.
func (i *Instance) VarSize(name string) (int, error) {
	b, err := i.lookup("VarSize", name)
	if err != nil {
		return 0, err
	}
	return b.desc.Size(), nil
}

// VarNbytes returns the size of a variable's values in bytes.
func (i *Instance) VarNbytes(name string) (int, error) {
	b, err := i.lookup("VarNbytes", name)
	if err != nil {
		return 0, err
	}
	return b.desc.Nbytes(), nil
}

// GridType returns the grid variant of a variable.
func (i *Instance) GridType(name string) (bmi.GridType, error) {
	b, err := i.lookup("GridType", name)
	if err != nil {
		return bmi.GridUnknown, err
	}
	return b.desc.Grid.Type(), nil
}

// GridShape returns the per-dimension extents of a variable's grid.
func (i *Instance) GridShape(name string) ([]int, error) {
	b, err := i.lookup("GridShape", name)
	if err != nil {
		return nil, err
	}
	return b.desc.Grid.Shape(), nil
}

// GridSpacing returns the per-axis spacing of a uniform grid.
func (i *Instance) GridSpacing(name string) ([]float64, error) {
	g, err := i.spacedGrid("GridSpacing", name)
	if err != nil {
		return nil, err
	}
	return g.GridSpacing(), nil
}

// GridOrigin returns the per-axis origin of a uniform grid.
func (i *Instance) GridOrigin(name string) ([]float64, error) {
	g, err := i.spacedGrid("GridOrigin", name)
	if err != nil {
		return nil, err
	}
	return g.GridOrigin(), nil
}

// GridX returns the x coordinates of a rectilinear, structured or
// unstructured grid.
func (i *Instance) GridX(name string) ([]float64, error) {
	return i.coordinates("GridX", name, bmi.AxisX)
}

// GridY returns the y coordinates of a grid of rank two or more.
func (i *Instance) GridY(name string) ([]float64, error) {
	return i.coordinates("GridY", name, bmi.AxisY)
}

// GridZ returns the z coordinates of a grid of rank three.
func (i *Instance) GridZ(name string) ([]float64, error) {
	return i.coordinates("GridZ", name, bmi.AxisZ)
}

// GridConnectivity returns the face-node connectivity of an unstructured grid.
func (i *Instance) GridConnectivity(name string) ([]int, error) {
	g, err := i.meshGrid("GridConnectivity", name)
	if err != nil {
		return nil, err
	}
	return g.GridConnectivity(), nil
}

// GridOffset returns the face offsets into the connectivity of an
// unstructured grid.
func (i *Instance) GridOffset(name string) ([]int, error) {
	g, err := i.meshGrid("GridOffset", name)
	if err != nil {
		return nil, err
	}
	return g.GridOffset(), nil
}

func (i *Instance) spacedGrid(op, name string) (bmi.SpacedGrid, error) {
	b, err := i.lookup(op, name)
	if err != nil {
		return nil, err
	}
	g, ok := b.desc.Grid.(bmi.SpacedGrid)
	if !ok {
		return nil, bmi.NewUnsupportedGridQueryError(op, name, b.desc.Grid.Type())
	}
	return g, nil
}

func (i *Instance) meshGrid(op, name string) (bmi.MeshGrid, error) {
	b, err := i.lookup(op, name)
	if err != nil {
		return nil, err
	}
	g, ok := b.desc.Grid.(bmi.MeshGrid)
	if !ok {
		return nil, bmi.NewUnsupportedGridQueryError(op, name, b.desc.Grid.Type())
	}
	return g, nil
}

func (i *Instance) coordinates(op, name string, axis bmi.Axis) ([]float64, error) {
	b, err := i.lookup(op, name)
	if err != nil {
		return nil, err
	}
	g, ok := b.desc.Grid.(bmi.CoordinateGrid)
	if !ok {
		return nil, bmi.NewUnsupportedGridQueryError(op, name, b.desc.Grid.Type())
	}
	coords, ok := g.Coordinates(axis)
	if !ok {
		return nil, bmi.NewUnsupportedGridQueryError(op, name, b.desc.Grid.Type()).
			WithDetail("axis", axis.String())
	}
	return coords, nil
}

// GetValue copies the whole variable into dst.
func (i *Instance) GetValue(name string, dst bmi.Values) error {
	const op = "GetValue"
	b, err := i.lookup(op, name)
	if err != nil {
		return err
	}
	if err := checkBuffer(op, b, dst, b.desc.Size()); err != nil {
		return err
	}
	return bmi.CopyValues(dst, b.buf)
}

// GetValueAtIndices copies the elements at the given flat indices into dst.
func (i *Instance) GetValueAtIndices(name string, dst bmi.Values, indices []int) error {
	const op = "GetValueAtIndices"
	b, err := i.lookup(op, name)
	if err != nil {
		return err
	}
	if err := checkBuffer(op, b, dst, len(indices)); err != nil {
		return err
	}
	if err := checkIndices(op, b, indices); err != nil {
		return err
	}
	return bmi.GatherValues(dst, b.buf, indices)
}

// SetValue overwrites the whole variable with src.
func (i *Instance) SetValue(name string, src bmi.Values) error {
	const op = "SetValue"
	b, err := i.lookupInput(op, name)
	if err != nil {
		return err
	}
	if err := checkBuffer(op, b, src, b.desc.Size()); err != nil {
		return err
	}
	return bmi.CopyValues(b.buf, src)
}

// SetValueAtIndices writes src[k] to the element at indices[k]. Every index
// is checked before the first write.
func (i *Instance) SetValueAtIndices(name string, indices []int, src bmi.Values) error {
	const op = "SetValueAtIndices"
	b, err := i.lookupInput(op, name)
	if err != nil {
		return err
	}
	if err := checkBuffer(op, b, src, len(indices)); err != nil {
		return err
	}
	if err := checkIndices(op, b, indices); err != nil {
		return err
	}
	return bmi.ScatterValues(b.buf, src, indices)
}

func (i *Instance) lookup(op, name string) (*binding, error) {
	if err := i.state.Require(op, bmi.StateInitialized); err != nil {
		return nil, err
	}
	b, ok := i.bindings.lookup(name)
	if !ok {
		return nil, bmi.NewUnknownVariableError(name).WithOperation(op)
	}
	return b, nil
}

// lookupInput resolves a variable the driver may write. Output-only
// variables are not in the input set and are reported as unknown.
func (i *Instance) lookupInput(op, name string) (*binding, error) {
	b, err := i.lookup(op, name)
	if err != nil {
		return nil, err
	}
	if !b.desc.Role.IsInput() {
		return nil, bmi.NewUnknownVariableError(name).
			WithOperation(op).
			WithDetail("reason", "variable is output-only")
	}
	return b, nil
}

func checkBuffer(op string, b *binding, buf bmi.Values, want int) error {
	if buf == nil {
		return bmi.NewSizeMismatchError(b.desc.Name, want, 0).WithOperation(op)
	}
	if buf.ElementType() != b.desc.Type {
		return bmi.NewTypeMismatchError(b.desc.Name, b.desc.Type, buf.ElementType()).WithOperation(op)
	}
	if buf.Len() != want {
		return bmi.NewSizeMismatchError(b.desc.Name, want, buf.Len()).WithOperation(op)
	}
	return nil
}

func checkIndices(op string, b *binding, indices []int) error {
	size := b.buf.Len()
	for _, idx := range indices {
		if idx < 0 || idx >= size {
			return bmi.NewIndexOutOfBoundsError(b.desc.Name, idx, size).WithOperation(op)
		}
	}
	return nil
}
