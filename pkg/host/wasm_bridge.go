package host

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tetratelabs/wazero/api"
)

// Required and optional exports of a WebAssembly model.
const (
	exportDescribe        = "bmi_describe"
	exportConfigure       = "bmi_configure"
	exportAllocate        = "bmi_allocate"
	exportAdvance         = "bmi_advance"
	exportRelease         = "bmi_release"
	exportSaveState       = "bmi_save_state"
	exportLoadState       = "bmi_load_state"
	exportAdvanceFraction = "bmi_advance_fraction"
)

// wasmBridge calls model functions exported by a WebAssembly module. Every
// function takes (input_ptr, input_len) and returns (output_ptr << 32) |
// output_len, with both buffers allocated through the module's malloc.
type wasmBridge struct {
	// module is the WASM module instance.
	module api.Module

	// memory provides access to WASM linear memory.
	memory api.Memory

	// malloc is the memory allocation function exported by WASM.
	malloc api.Function

	// free is the memory deallocation function exported by WASM.
	free api.Function

	functions map[string]api.Function

	// timeout bounds each call into the module.
	timeout time.Duration
}

func newWASMBridge(module api.Module, timeout time.Duration) (*wasmBridge, error) {
	bridge := &wasmBridge{
		module:    module,
		timeout:   timeout,
		functions: make(map[string]api.Function),
	}

	bridge.memory = module.ExportedMemory("memory")
	if bridge.memory == nil {
		return nil, fmt.Errorf("WASM module does not export memory")
	}

	bridge.malloc = module.ExportedFunction("malloc")
	if bridge.malloc == nil {
		return nil, fmt.Errorf("WASM module does not export malloc function")
	}

	bridge.free = module.ExportedFunction("free")
	if bridge.free == nil {
		return nil, fmt.Errorf("WASM module does not export free function")
	}

	for _, name := range []string{exportDescribe, exportConfigure, exportAllocate, exportAdvance, exportRelease} {
		fn := module.ExportedFunction(name)
		if fn == nil {
			return nil, fmt.Errorf("WASM module does not export %s function", name)
		}
		bridge.functions[name] = fn
	}
	for _, name := range []string{exportSaveState, exportLoadState, exportAdvanceFraction} {
		if fn := module.ExportedFunction(name); fn != nil {
			bridge.functions[name] = fn
		}
	}

	return bridge, nil
}

func (b *wasmBridge) has(name string) bool {
	_, ok := b.functions[name]
	return ok
}

// wasmError is the error object a model function may return.
type wasmError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// callJSON marshals in, calls fn and unmarshals its output into out. An
// output carrying an "error" member is returned as an error.
func (b *wasmBridge) callJSON(ctx context.Context, name string, in, out interface{}) error {
	var input []byte
	if in != nil {
		var err error
		if input, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to marshal %s input: %w", name, err)
		}
	}

	output, err := b.call(ctx, name, input)
	if err != nil {
		return err
	}

	var envelope struct {
		Error *wasmError `json:"error"`
	}
	if err := json.Unmarshal(output, &envelope); err != nil {
		return fmt.Errorf("failed to unmarshal %s output: %w", name, err)
	}
	if envelope.Error != nil {
		return envelope.Error.asModelError(name)
	}
	if out != nil {
		if err := json.Unmarshal(output, out); err != nil {
			return fmt.Errorf("failed to unmarshal %s output: %w", name, err)
		}
	}
	return nil
}

// call invokes an exported function with raw input bytes and returns the raw
// output bytes.
func (b *wasmBridge) call(ctx context.Context, name string, input []byte) ([]byte, error) {
	fn, ok := b.functions[name]
	if !ok {
		return nil, fmt.Errorf("WASM module does not export %s function", name)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	var inputPtr, inputLen uint32
	if len(input) > 0 {
		ptr, err := b.allocate(ctx, uint32(len(input)))
		if err != nil {
			return nil, fmt.Errorf("failed to allocate WASM memory: %w", err)
		}
		defer func() { _ = b.deallocate(ctx, ptr) }()

		inputPtr = ptr
		inputLen = uint32(len(input))

		if !b.memory.Write(inputPtr, input) {
			return nil, fmt.Errorf("failed to write input to WASM memory")
		}
	}

	results, err := fn.Call(ctx, uint64(inputPtr), uint64(inputLen))
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", name, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%s returned no results", name)
	}

	packed := results[0]
	outputPtr := uint32(packed >> 32)
	outputLen := uint32(packed & 0xFFFFFFFF)
	if outputLen == 0 {
		return []byte("{}"), nil
	}

	view, ok := b.memory.Read(outputPtr, outputLen)
	if !ok {
		return nil, fmt.Errorf("failed to read %s output from WASM memory", name)
	}
	// The view aliases linear memory, which free may reuse.
	output := append([]byte(nil), view...)
	_ = b.deallocate(ctx, outputPtr)

	return output, nil
}

// allocate allocates memory in WASM and returns the pointer.
func (b *wasmBridge) allocate(ctx context.Context, size uint32) (uint32, error) {
	results, err := b.malloc.Call(ctx, uint64(size))
	if err != nil {
		return 0, fmt.Errorf("malloc failed: %w", err)
	}

	if len(results) == 0 {
		return 0, fmt.Errorf("malloc returned no results")
	}

	ptr := uint32(results[0])
	if ptr == 0 {
		return 0, fmt.Errorf("malloc returned null pointer")
	}

	return ptr, nil
}

// deallocate frees memory in WASM.
func (b *wasmBridge) deallocate(ctx context.Context, ptr uint32) error {
	if _, err := b.free.Call(ctx, uint64(ptr)); err != nil {
		return fmt.Errorf("free failed: %w", err)
	}
	return nil
}
