package host

import "github.com/openfroyo/bmi/pkg/bmi"

// capabilitiesOf derives the contract capability set from the optional
// interfaces a kernel implements.
func capabilitiesOf(k Kernel) bmi.Capabilities {
	caps := bmi.Capabilities{}
	if _, ok := k.(Checkpointer); ok {
		caps[bmi.CapabilityCheckpoint] = true
	}
	if _, ok := k.(FractionalStepper); ok {
		caps[bmi.CapabilityFractionalUpdate] = true
	}
	return caps
}

// capabilityReporter lets a kernel narrow the set derived from its type.
// WASM kernels implement every optional interface and report what the
// module actually exports.
type capabilityReporter interface {
	Capabilities() bmi.Capabilities
}

func kernelCapabilities(k Kernel) bmi.Capabilities {
	caps := capabilitiesOf(k)
	if r, ok := k.(capabilityReporter); ok {
		reported := r.Capabilities()
		for c := range caps {
			if !reported.Has(c) {
				delete(caps, c)
			}
		}
	}
	return caps
}
