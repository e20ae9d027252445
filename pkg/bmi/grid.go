package bmi

import (
	"fmt"
	"math"
)

// Grid describes the geometry a variable's values live on. The set of
// variants is closed: UnknownGrid, UniformGrid, RectilinearGrid,
// StructuredGrid and UnstructuredGrid.
//
// Shapes are row-major with the last axis varying fastest, so a grid with
// Dims [rows, cols] maps flat index i to row i/cols, column i%cols.
type Grid interface {
	Type() GridType
	Rank() int
	Shape() []int
	Size() int
	Validate() error

	grid()
	clone() Grid
}

// CloneGrid returns a deep copy of g. Descriptors handed to drivers are
// clones, so editing them cannot change a model's geometry.
func CloneGrid(g Grid) Grid {
	if g == nil {
		return nil
	}
	return g.clone()
}

// Axis names a coordinate axis. X is the fastest-varying (last) dimension.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// String implements fmt.Stringer.
func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return fmt.Sprintf("Axis(%d)", int(a))
	}
}

// SpacedGrid is implemented by grids described by per-axis spacing and origin.
type SpacedGrid interface {
	Grid
	GridSpacing() []float64
	GridOrigin() []float64
}

// CoordinateGrid is implemented by grids with explicit node coordinates.
type CoordinateGrid interface {
	Grid
	Coordinates(axis Axis) ([]float64, bool)
}

// MeshGrid is implemented by grids with explicit face connectivity.
type MeshGrid interface {
	Grid
	GridConnectivity() []int
	GridOffset() []int
}

// UnknownGrid carries a shape but no geometry.
type UnknownGrid struct {
	Dims []int `json:"dims"`
}

func (UnknownGrid) grid()             {}
func (UnknownGrid) Type() GridType    { return GridUnknown }
func (g UnknownGrid) Rank() int       { return len(g.Dims) }
func (g UnknownGrid) Shape() []int    { return cloneInts(g.Dims) }
func (g UnknownGrid) Size() int       { return product(g.Dims) }
func (g UnknownGrid) Validate() error { return validateDims(g.Dims) }

func (g UnknownGrid) clone() Grid { return UnknownGrid{Dims: cloneInts(g.Dims)} }

// UniformGrid is a regular grid with constant spacing along each axis.
// A rank-0 UniformGrid describes a scalar.
type UniformGrid struct {
	Dims    []int     `json:"dims"`
	Spacing []float64 `json:"spacing"`
	Origin  []float64 `json:"origin"`
}

func (UniformGrid) grid()          {}
func (UniformGrid) Type() GridType { return GridUniform }
func (g UniformGrid) Rank() int    { return len(g.Dims) }
func (g UniformGrid) Shape() []int { return cloneInts(g.Dims) }
func (g UniformGrid) Size() int    { return product(g.Dims) }

func (g UniformGrid) clone() Grid {
	return UniformGrid{Dims: cloneInts(g.Dims), Spacing: cloneFloats(g.Spacing), Origin: cloneFloats(g.Origin)}
}

// GridSpacing returns a copy of the per-axis spacing.
func (g UniformGrid) GridSpacing() []float64 { return cloneFloats(g.Spacing) }

// GridOrigin returns a copy of the per-axis origin.
func (g UniformGrid) GridOrigin() []float64 { return cloneFloats(g.Origin) }

// Validate checks the dims and that spacing and origin match the rank.
func (g UniformGrid) Validate() error {
	if err := validateDims(g.Dims); err != nil {
		return err
	}
	if len(g.Spacing) != len(g.Dims) {
		return fmt.Errorf("uniform grid: spacing has %d entries, rank is %d", len(g.Spacing), len(g.Dims))
	}
	if len(g.Origin) != len(g.Dims) {
		return fmt.Errorf("uniform grid: origin has %d entries, rank is %d", len(g.Origin), len(g.Dims))
	}
	for i, s := range g.Spacing {
		if !(s > 0) || math.IsInf(s, 0) {
			return fmt.Errorf("uniform grid: spacing[%d] must be positive and finite, got %v", i, s)
		}
	}
	return nil
}

// RectilinearGrid has per-axis coordinate vectors. X has Dims[rank-1]
// entries, Y has Dims[rank-2] and Z has Dims[rank-3].
type RectilinearGrid struct {
	Dims []int     `json:"dims"`
	X    []float64 `json:"x"`
	Y    []float64 `json:"y,omitempty"`
	Z    []float64 `json:"z,omitempty"`
}

func (RectilinearGrid) grid()          {}
func (RectilinearGrid) Type() GridType { return GridRectilinear }
func (g RectilinearGrid) Rank() int    { return len(g.Dims) }
func (g RectilinearGrid) Shape() []int { return cloneInts(g.Dims) }
func (g RectilinearGrid) Size() int    { return product(g.Dims) }

func (g RectilinearGrid) clone() Grid {
	return RectilinearGrid{Dims: cloneInts(g.Dims), X: cloneFloats(g.X), Y: cloneFloats(g.Y), Z: cloneFloats(g.Z)}
}

// Coordinates returns a copy of the coordinate vector along axis.
func (g RectilinearGrid) Coordinates(axis Axis) ([]float64, bool) {
	return axisCoords(len(g.Dims), axis, g.X, g.Y, g.Z)
}

// Validate checks that each axis has one coordinate per node along it.
func (g RectilinearGrid) Validate() error {
	if err := validateDims(g.Dims); err != nil {
		return err
	}
	if len(g.Dims) == 0 {
		return fmt.Errorf("rectilinear grid: rank must be at least 1")
	}
	coords := [][]float64{g.X, g.Y, g.Z}
	for a := 0; a < 3; a++ {
		want := 0
		if a < len(g.Dims) {
			want = g.Dims[len(g.Dims)-1-a]
		}
		if len(coords[a]) != want {
			return fmt.Errorf("rectilinear grid: %s has %d coordinates, want %d", Axis(a), len(coords[a]), want)
		}
	}
	return nil
}

// StructuredGrid has explicit coordinates for every node. Each coordinate
// slice has Size() entries.
type StructuredGrid struct {
	Dims []int     `json:"dims"`
	X    []float64 `json:"x"`
	Y    []float64 `json:"y,omitempty"`
	Z    []float64 `json:"z,omitempty"`
}

func (StructuredGrid) grid()          {}
func (StructuredGrid) Type() GridType { return GridStructured }
func (g StructuredGrid) Rank() int    { return len(g.Dims) }
func (g StructuredGrid) Shape() []int { return cloneInts(g.Dims) }
func (g StructuredGrid) Size() int    { return product(g.Dims) }

func (g StructuredGrid) clone() Grid {
	return StructuredGrid{Dims: cloneInts(g.Dims), X: cloneFloats(g.X), Y: cloneFloats(g.Y), Z: cloneFloats(g.Z)}
}

// Coordinates returns a copy of the node coordinates along axis.
func (g StructuredGrid) Coordinates(axis Axis) ([]float64, bool) {
	return axisCoords(len(g.Dims), axis, g.X, g.Y, g.Z)
}

// Validate checks that every present axis has one coordinate per node.
func (g StructuredGrid) Validate() error {
	if err := validateDims(g.Dims); err != nil {
		return err
	}
	if len(g.Dims) == 0 {
		return fmt.Errorf("structured grid: rank must be at least 1")
	}
	n := g.Size()
	coords := [][]float64{g.X, g.Y, g.Z}
	for a := 0; a < 3; a++ {
		want := 0
		if a < len(g.Dims) {
			want = n
		}
		if len(coords[a]) != want {
			return fmt.Errorf("structured grid: %s has %d coordinates, want %d", Axis(a), len(coords[a]), want)
		}
	}
	return nil
}

// UnstructuredGrid is a mesh of nodes joined into faces. Face f is made of
// the nodes Connectivity[Offset[f]:Offset[f+1]].
type UnstructuredGrid struct {
	X            []float64 `json:"x"`
	Y            []float64 `json:"y,omitempty"`
	Z            []float64 `json:"z,omitempty"`
	Connectivity []int     `json:"connectivity"`
	Offset       []int     `json:"offset"`
}

func (UnstructuredGrid) grid()          {}
func (UnstructuredGrid) Type() GridType { return GridUnstructured }
func (UnstructuredGrid) Rank() int      { return 1 }
func (g UnstructuredGrid) Shape() []int { return []int{len(g.X)} }
func (g UnstructuredGrid) Size() int    { return len(g.X) }

func (g UnstructuredGrid) clone() Grid {
	return UnstructuredGrid{
		X:            cloneFloats(g.X),
		Y:            cloneFloats(g.Y),
		Z:            cloneFloats(g.Z),
		Connectivity: cloneInts(g.Connectivity),
		Offset:       cloneInts(g.Offset),
	}
}

// Faces returns the number of faces in the mesh.
func (g UnstructuredGrid) Faces() int {
	if len(g.Offset) == 0 {
		return 0
	}
	return len(g.Offset) - 1
}

// Coordinates returns a copy of the node coordinates along axis.
func (g UnstructuredGrid) Coordinates(axis Axis) ([]float64, bool) {
	var c []float64
	switch axis {
	case AxisX:
		c = g.X
	case AxisY:
		c = g.Y
	case AxisZ:
		c = g.Z
	}
	if c == nil {
		return nil, false
	}
	return cloneFloats(c), true
}

// GridConnectivity returns a copy of the face-node connectivity.
func (g UnstructuredGrid) GridConnectivity() []int { return cloneInts(g.Connectivity) }

// GridOffset returns a copy of the face offsets into the connectivity.
func (g UnstructuredGrid) GridOffset() []int { return cloneInts(g.Offset) }

// Validate checks the coordinate lengths and the connectivity layout.
func (g UnstructuredGrid) Validate() error {
	n := len(g.X)
	if n == 0 {
		return fmt.Errorf("unstructured grid: no nodes")
	}
	if g.Y != nil && len(g.Y) != n {
		return fmt.Errorf("unstructured grid: y has %d coordinates, want %d", len(g.Y), n)
	}
	if g.Z != nil && len(g.Z) != n {
		return fmt.Errorf("unstructured grid: z has %d coordinates, want %d", len(g.Z), n)
	}
	if g.Z != nil && g.Y == nil {
		return fmt.Errorf("unstructured grid: z coordinates without y")
	}
	if len(g.Offset) == 0 {
		if len(g.Connectivity) != 0 {
			return fmt.Errorf("unstructured grid: connectivity without offsets")
		}
		return nil
	}
	if g.Offset[0] != 0 {
		return fmt.Errorf("unstructured grid: offset must start at 0, got %d", g.Offset[0])
	}
	for i := 1; i < len(g.Offset); i++ {
		if g.Offset[i] < g.Offset[i-1] {
			return fmt.Errorf("unstructured grid: offset decreases at face %d", i-1)
		}
	}
	if last := g.Offset[len(g.Offset)-1]; last != len(g.Connectivity) {
		return fmt.Errorf("unstructured grid: last offset %d does not match connectivity length %d", last, len(g.Connectivity))
	}
	for i, node := range g.Connectivity {
		if node < 0 || node >= n {
			return fmt.Errorf("unstructured grid: connectivity[%d] references node %d of %d", i, node, n)
		}
	}
	return nil
}

// RowMajorIndex converts per-axis coordinates to a flat index for shape.
// It returns false if the coordinates do not address a node of shape.
func RowMajorIndex(shape []int, coords ...int) (int, bool) {
	if len(coords) != len(shape) {
		return 0, false
	}
	idx := 0
	for i, c := range coords {
		if c < 0 || c >= shape[i] {
			return 0, false
		}
		idx = idx*shape[i] + c
	}
	return idx, true
}

// RowMajorCoords converts a flat index to per-axis coordinates for shape.
func RowMajorCoords(shape []int, index int) ([]int, bool) {
	if index < 0 || index >= product(shape) {
		return nil, false
	}
	coords := make([]int, len(shape))
	for i := len(shape) - 1; i >= 0; i-- {
		coords[i] = index % shape[i]
		index /= shape[i]
	}
	return coords, true
}

func axisCoords(rank int, axis Axis, x, y, z []float64) ([]float64, bool) {
	if int(axis) < 0 || int(axis) >= rank {
		return nil, false
	}
	switch axis {
	case AxisX:
		return cloneFloats(x), true
	case AxisY:
		return cloneFloats(y), true
	default:
		return cloneFloats(z), true
	}
}

func validateDims(dims []int) error {
	if len(dims) > 3 {
		return fmt.Errorf("grid rank %d exceeds 3", len(dims))
	}
	for i, d := range dims {
		if d <= 0 {
			return fmt.Errorf("grid dimension %d must be positive, got %d", i, d)
		}
	}
	return nil
}

func product(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}

func cloneInts(s []int) []int {
	if s == nil {
		return nil
	}
	out := make([]int, len(s))
	copy(out, s)
	return out
}

func cloneFloats(s []float64) []float64 {
	if s == nil {
		return nil
	}
	out := make([]float64, len(s))
	copy(out, s)
	return out
}
