// Package bmi defines the Basic Model Interface: the contract a numerical
// simulation model presents so that a generic driver can initialize it,
// advance it in time, and read or write its state without knowing its
// internals.
//
// # Lifecycle
//
// Every model moves through four states:
//
//  1. Created - the instance exists; attributes may be inspected and set
//  2. Configured - InitializeConfig applied a configuration source; the
//     clock is known and may be adjusted with SetStartTime / SetEndTime
//  3. Initialized - InitializeState allocated state; the model can step
//     and exposes variable values and grid geometry
//  4. Finalized - Finalize released all resources; terminal
//
// Initialize performs steps 2 and 3 in sequence. Operations called in a
// state that does not permit them fail with a LifecycleError.
//
// # Variables and Grids
//
// A Variable is a named flat array with an element type (Float64 or
// Float32), units, a role (input, output or both) and a Grid. Grids are a
// closed set of variants:
//
//   - UnknownGrid (0): shape only
//   - UniformGrid (1): spacing and origin per axis
//   - RectilinearGrid (2): one coordinate vector per axis
//   - StructuredGrid (3): coordinates for every node
//   - UnstructuredGrid (4): nodes, connectivity and face offsets
//
// Geometry queries that do not apply to a variant fail with an
// UnsupportedGridQueryError. Values are flattened row-major with the last
// axis varying fastest.
//
// # Errors
//
// All failures are *ModelError values carrying one ErrorKind. Match them
// with errors.Is against the package sentinels:
//
//	if errors.Is(err, bmi.ErrTimeBounds) {
//	    // the model reached its end time
//	}
//
// # Example Usage
//
//	m, _ := registry.New(ctx, "increment", "latest")
//	defer m.Finalize(ctx)
//
//	if err := m.Initialize(ctx, ""); err != nil {
//	    return err
//	}
//	if err := m.UpdateUntil(ctx, 10); err != nil {
//	    return err
//	}
//	values, err := bmi.Float64s(m, "var1")
package bmi
