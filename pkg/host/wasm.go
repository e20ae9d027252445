package host

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/openfroyo/bmi/pkg/bmi"
	"github.com/openfroyo/bmi/pkg/config"
	"github.com/openfroyo/bmi/pkg/stores"
)

// WASMConfig contains configuration for WebAssembly models.
type WASMConfig struct {
	// Timeout bounds every call into the module. Default is 30 seconds.
	Timeout time.Duration

	// MemoryLimitPages is the maximum memory limit in pages (64KB each).
	// Default is 1024 pages (64MB), enough for the Go runtime of a wasip1
	// guest.
	MemoryLimitPages uint32

	// Logger receives messages the module writes through env.log.
	Logger *zerolog.Logger
}

// WASMKernel runs a model compiled to WebAssembly. The module owns its
// state in linear memory; the kernel mirrors every bound variable in a Go
// buffer and syncs the two around each call that may change them.
//
// Input and output of every export are JSON documents. A module reports a
// failure by returning {"error": {"kind": "...", "message": "..."}}.
type WASMKernel struct {
	runtime wazero.Runtime
	module  api.Module
	bridge  *wasmBridge
	desc    Description
	vars    []*wasmVariable
	logger  zerolog.Logger
	closed  bool
}

// wasmVariable is a variable bound by bmi_allocate. ptr addresses the
// module's copy of the values; buf is the Go copy the Instance sees.
type wasmVariable struct {
	desc bmi.Variable
	ptr  uint32
	buf  bmi.Values
}

var (
	_ Kernel             = (*WASMKernel)(nil)
	_ Checkpointer       = (*WASMKernel)(nil)
	_ FractionalStepper  = (*WASMKernel)(nil)
	_ capabilityReporter = (*WASMKernel)(nil)
)

// NewWASMKernel instantiates wasmModule and reads its description.
func NewWASMKernel(ctx context.Context, wasmModule []byte, cfg *WASMConfig) (*WASMKernel, error) {
	if cfg == nil {
		cfg = &WASMConfig{}
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	memoryLimitPages := cfg.MemoryLimitPages
	if memoryLimitPages == 0 {
		memoryLimitPages = 1024
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	runtimeConfig := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(memoryLimitPages).
		WithCloseOnContextDone(true)

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeConfig)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	k := &WASMKernel{runtime: runtime, logger: logger}

	builder := runtime.NewHostModuleBuilder("env")
	k.registerHostFunctions(builder)
	if _, err := builder.Instantiate(ctx); err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate host module: %w", err)
	}

	// Models are reactor modules: _initialize sets up the guest runtime and
	// main never runs.
	moduleConfig := wazero.NewModuleConfig().
		WithName("model").
		WithStartFunctions("_initialize")
	module, err := runtime.InstantiateWithConfig(ctx, wasmModule, moduleConfig)
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASM module: %w", err)
	}

	bridge, err := newWASMBridge(module, timeout)
	if err != nil {
		module.Close(ctx)
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to create WASM bridge: %w", err)
	}
	k.module = module
	k.bridge = bridge

	if err := bridge.callJSON(ctx, exportDescribe, nil, &k.desc); err != nil {
		module.Close(ctx)
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to describe WASM model: %w", err)
	}
	if k.desc.Component == "" {
		module.Close(ctx)
		runtime.Close(ctx)
		return nil, fmt.Errorf("WASM model description has no component name")
	}

	return k, nil
}

// registerHostFunctions exports env.log(level, ptr, len) to the module.
func (k *WASMKernel) registerHostFunctions(builder wazero.HostModuleBuilder) {
	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, mod api.Module, level, msgPtr, msgLen uint32) {
			msg, ok := mod.Memory().Read(msgPtr, msgLen)
			if !ok {
				return
			}
			k.logger.WithLevel(zerolog.Level(int8(level))).
				Str("source", "wasm").
				Msg(string(msg))
		}).
		Export("log")
}

// Describe returns the description read from bmi_describe.
func (k *WASMKernel) Describe() Description {
	return k.desc
}

// Capabilities reports the optional exports the module provides.
func (k *WASMKernel) Capabilities() bmi.Capabilities {
	caps := bmi.Capabilities{}
	if k.bridge.has(exportSaveState) && k.bridge.has(exportLoadState) {
		caps[bmi.CapabilityCheckpoint] = true
	}
	if k.bridge.has(exportAdvanceFraction) {
		caps[bmi.CapabilityFractionalUpdate] = true
	}
	return caps
}

type wasmConfigureRequest struct {
	Config     *config.ModelConfig `json:"config"`
	Clock      ClockDefaults       `json:"clock"`
	Attributes map[string]string   `json:"attributes"`
}

type wasmDeclaration struct {
	Name string   `json:"name"`
	Role bmi.Role `json:"role"`
}

type wasmConfigureResponse struct {
	Clock     *ClockDefaults    `json:"clock,omitempty"`
	Variables []wasmDeclaration `json:"variables"`
}

// Configure hands the configuration to bmi_configure and declares the
// variables it returns. The module may replace the clock.
func (k *WASMKernel) Configure(ctx context.Context, cfg *config.ModelConfig, setup *Setup) error {
	req := wasmConfigureRequest{
		Config:     cfg,
		Clock:      setup.clock(),
		Attributes: k.attributes(setup),
	}
	var resp wasmConfigureResponse
	if err := k.bridge.callJSON(ctx, exportConfigure, req, &resp); err != nil {
		return err
	}

	if resp.Clock != nil {
		setup.StartTime, setup.EndTime = resp.Clock.StartTime, resp.Clock.EndTime
		setup.TimeStep, setup.TimeUnits = resp.Clock.TimeStep, resp.Clock.TimeUnits
	}
	for _, d := range resp.Variables {
		if err := setup.Declare(d.Name, d.Role); err != nil {
			return bmi.NewConfigurationError("WASM model declared an invalid variable", err)
		}
	}
	return nil
}

type wasmAllocateRequest struct {
	Clock      ClockDefaults     `json:"clock"`
	Attributes map[string]string `json:"attributes"`
}

type wasmBinding struct {
	Name  string          `json:"name"`
	Type  bmi.ElementType `json:"type"`
	Units string          `json:"units"`
	Role  bmi.Role        `json:"role"`
	Grid  wasmGrid        `json:"grid"`
	Ptr   uint32          `json:"ptr"`
}

type wasmAllocateResponse struct {
	Variables []wasmBinding `json:"variables"`
}

// Allocate calls bmi_allocate and binds a Go mirror of every variable the
// module reports.
func (k *WASMKernel) Allocate(ctx context.Context, setup *Setup, bindings *Bindings) error {
	req := wasmAllocateRequest{Clock: setup.clock(), Attributes: k.attributes(setup)}
	var resp wasmAllocateResponse
	if err := k.bridge.callJSON(ctx, exportAllocate, req, &resp); err != nil {
		return err
	}

	vars := make([]*wasmVariable, 0, len(resp.Variables))
	for _, wb := range resp.Variables {
		grid, err := wb.Grid.toGrid()
		if err != nil {
			return bmi.NewModelFailure(fmt.Sprintf("WASM variable %q has an invalid grid", wb.Name), err)
		}
		desc := bmi.Variable{Name: wb.Name, Type: wb.Type, Units: wb.Units, Role: wb.Role, Grid: grid}
		buf, err := bmi.NewValues(desc.Type, desc.Size())
		if err != nil {
			return bmi.NewModelFailure(fmt.Sprintf("WASM variable %q is invalid", wb.Name), err)
		}
		if err := bindings.Bind(desc, buf); err != nil {
			return bmi.NewModelFailure("WASM model bound an invalid variable", err)
		}
		vars = append(vars, &wasmVariable{desc: desc, ptr: wb.Ptr, buf: buf})
	}
	k.vars = vars

	return k.pull()
}

type wasmAdvanceRequest struct {
	DT       float64 `json:"dt"`
	Fraction float64 `json:"fraction,omitempty"`
}

// Advance pushes the input variables, calls bmi_advance and pulls every
// variable back.
func (k *WASMKernel) Advance(ctx context.Context, dt float64) error {
	return k.advance(ctx, exportAdvance, wasmAdvanceRequest{DT: dt})
}

// AdvanceFraction calls bmi_advance_fraction.
func (k *WASMKernel) AdvanceFraction(ctx context.Context, fraction, dt float64) error {
	return k.advance(ctx, exportAdvanceFraction, wasmAdvanceRequest{DT: dt, Fraction: fraction})
}

func (k *WASMKernel) advance(ctx context.Context, export string, req wasmAdvanceRequest) error {
	if err := k.push(func(v bmi.Variable) bool { return v.Role.IsInput() }); err != nil {
		return err
	}
	if err := k.bridge.callJSON(ctx, export, req, nil); err != nil {
		return err
	}
	return k.pull()
}

type wasmState struct {
	State []byte `json:"state"`
}

// MarshalState returns the blob produced by bmi_save_state.
func (k *WASMKernel) MarshalState() ([]byte, error) {
	if !k.bridge.has(exportSaveState) {
		return nil, bmi.NewUnsupportedOperationError("SaveState")
	}
	var resp wasmState
	if err := k.bridge.callJSON(context.Background(), exportSaveState, nil, &resp); err != nil {
		return nil, err
	}
	return resp.State, nil
}

// UnmarshalState pushes every variable into linear memory, hands data to
// bmi_load_state and pulls the result back.
func (k *WASMKernel) UnmarshalState(data []byte) error {
	if !k.bridge.has(exportLoadState) {
		return bmi.NewUnsupportedOperationError("InitializeState from a saved state")
	}
	if err := k.push(func(bmi.Variable) bool { return true }); err != nil {
		return err
	}
	if err := k.bridge.callJSON(context.Background(), exportLoadState, wasmState{State: data}, nil); err != nil {
		return err
	}
	return k.pull()
}

// Release calls bmi_release and closes the module and runtime.
func (k *WASMKernel) Release(ctx context.Context) error {
	if k.closed {
		return nil
	}
	k.closed = true
	k.vars = nil

	callErr := k.bridge.callJSON(ctx, exportRelease, nil, nil)
	if err := k.module.Close(ctx); err != nil && callErr == nil {
		callErr = fmt.Errorf("failed to close WASM module: %w", err)
	}
	if err := k.runtime.Close(ctx); err != nil && callErr == nil {
		callErr = fmt.Errorf("failed to close WASM runtime: %w", err)
	}
	return callErr
}

// push copies the Go buffers of the selected variables into linear memory.
func (k *WASMKernel) push(selected func(bmi.Variable) bool) error {
	for _, v := range k.vars {
		if !selected(v.desc) {
			continue
		}
		if !k.bridge.memory.Write(v.ptr, stores.EncodeValues(v.buf)) {
			return bmi.NewModelFailure(fmt.Sprintf("failed to write variable %q to WASM memory", v.desc.Name), nil)
		}
	}
	return nil
}

// pull copies every variable from linear memory into its Go buffer.
func (k *WASMKernel) pull() error {
	for _, v := range k.vars {
		data, ok := k.bridge.memory.Read(v.ptr, uint32(v.desc.Nbytes()))
		if !ok {
			return bmi.NewModelFailure(fmt.Sprintf("failed to read variable %q from WASM memory", v.desc.Name), nil)
		}
		values, err := stores.DecodeValues(v.desc.Type, data)
		if err != nil {
			return bmi.NewModelFailure(fmt.Sprintf("failed to decode variable %q", v.desc.Name), err)
		}
		if err := bmi.CopyValues(v.buf, values); err != nil {
			return bmi.NewModelFailure(fmt.Sprintf("failed to decode variable %q", v.desc.Name), err)
		}
	}
	return nil
}

func (k *WASMKernel) attributes(setup *Setup) map[string]string {
	out := make(map[string]string, len(k.desc.Attributes))
	for _, a := range k.desc.Attributes {
		if v, ok := setup.Attribute(a.Name); ok {
			out[a.Name] = v
		}
	}
	return out
}

// wasmGrid is the JSON form of a grid returned by bmi_allocate.
type wasmGrid struct {
	Type         string    `json:"type"`
	Shape        []int     `json:"shape"`
	Spacing      []float64 `json:"spacing,omitempty"`
	Origin       []float64 `json:"origin,omitempty"`
	X            []float64 `json:"x,omitempty"`
	Y            []float64 `json:"y,omitempty"`
	Z            []float64 `json:"z,omitempty"`
	Connectivity []int     `json:"connectivity,omitempty"`
	Offset       []int     `json:"offset,omitempty"`
}

func (g wasmGrid) toGrid() (bmi.Grid, error) {
	t, err := bmi.ParseGridType(g.Type)
	if err != nil {
		return nil, err
	}

	var grid bmi.Grid
	switch t {
	case bmi.GridUniform:
		grid = bmi.UniformGrid{Dims: g.Shape, Spacing: g.Spacing, Origin: g.Origin}
	case bmi.GridRectilinear:
		grid = bmi.RectilinearGrid{Dims: g.Shape, X: g.X, Y: g.Y, Z: g.Z}
	case bmi.GridStructured:
		grid = bmi.StructuredGrid{Dims: g.Shape, X: g.X, Y: g.Y, Z: g.Z}
	case bmi.GridUnstructured:
		grid = bmi.UnstructuredGrid{X: g.X, Y: g.Y, Z: g.Z, Connectivity: g.Connectivity, Offset: g.Offset}
	default:
		grid = bmi.UnknownGrid{Dims: g.Shape}
	}
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	return grid, nil
}

// asModelError converts an error reported by the module into a contract
// error. Unknown kinds are treated as model failures.
func (e *wasmError) asModelError(export string) *bmi.ModelError {
	kind := bmi.ErrorKind(e.Kind)
	if kind.Validate() != nil {
		kind = bmi.KindModelFailure
	}
	return bmi.NewError(kind, e.Message, nil).WithDetail("export", export)
}
