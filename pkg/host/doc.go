// Package host runs simulation models behind the bmi.Model contract.
//
// A model is split in two. The Kernel holds the model-specific computation:
// it describes itself, declares its variables during configuration, binds
// their buffers at allocation and advances its state. The Instance wraps a
// Kernel and owns everything the contract requires of every model:
//
//   - the lifecycle Created -> Configured -> Initialized -> Finalized
//   - the clock and its bounds checks
//   - the attribute table and its mutation policies
//   - variable lookup, buffer checks and row-major index validation
//   - checkpoints, written to a SQLite database via pkg/stores
//
// Kernels opt into optional behavior by implementing Checkpointer,
// FractionalStepper or AttributeValidator.
//
// # Registry
//
// Registry maps name@version to kernel factories. Built-in models register
// a Factory directly; WebAssembly models are registered from a
// manifest.yaml and run by WASMKernel under wazero:
//
//	reg := host.NewRegistry(&host.RegistryConfig{Logger: &logger})
//	if err := reg.ScanDirectory(ctx, "./models"); err != nil {
//		return err
//	}
//	model, err := reg.New(ctx, "increment", "^1.0")
//
// Watch keeps the registry in sync with a models directory as manifests are
// added, edited or removed.
//
// # WebAssembly ABI
//
// A WebAssembly model exports memory, malloc, free and the functions
// bmi_describe, bmi_configure, bmi_allocate, bmi_advance and bmi_release.
// bmi_save_state, bmi_load_state and bmi_advance_fraction are optional and
// enable the matching capabilities. Each function takes (ptr, len) of a
// JSON document and returns (ptr << 32) | len of a JSON reply. The host
// module "env" provides log(level, ptr, len).
package host
