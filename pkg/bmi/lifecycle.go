package bmi

import (
	"encoding/json"
	"fmt"
)

// LifecycleState is the phase of a model instance.
type LifecycleState string

const (
	// StateCreated indicates the instance exists but has no configuration.
	StateCreated LifecycleState = "created"

	// StateConfigured indicates the configuration source has been applied.
	// The clock is known; variable values are not yet allocated.
	StateConfigured LifecycleState = "configured"

	// StateInitialized indicates the model is ready to step and exposes values.
	StateInitialized LifecycleState = "initialized"

	// StateFinalized indicates all resources are released. Terminal.
	StateFinalized LifecycleState = "finalized"
)

// IsTerminal returns true if no further transitions are possible.
func (s LifecycleState) IsTerminal() bool {
	return s == StateFinalized
}

// IsActive returns true if the model can advance in time.
func (s LifecycleState) IsActive() bool {
	return s == StateInitialized
}

// Validate checks if the lifecycle state is valid.
func (s LifecycleState) Validate() error {
	switch s {
	case StateCreated, StateConfigured, StateInitialized, StateFinalized:
		return nil
	default:
		return fmt.Errorf("invalid lifecycle state: %s", s)
	}
}

// CanTransition reports whether moving from s to next is legal.
// Finalize is reachable from every non-terminal state.
func (s LifecycleState) CanTransition(next LifecycleState) bool {
	switch next {
	case StateConfigured:
		return s == StateCreated
	case StateInitialized:
		return s == StateConfigured
	case StateFinalized:
		return s != StateFinalized
	default:
		return false
	}
}

// In returns true if s is one of states.
func (s LifecycleState) In(states ...LifecycleState) bool {
	for _, st := range states {
		if s == st {
			return true
		}
	}
	return false
}

// Require returns a LifecycleError for op unless s is one of allowed.
func (s LifecycleState) Require(op string, allowed ...LifecycleState) error {
	if s.In(allowed...) {
		return nil
	}
	return NewLifecycleError(op, s)
}

// String implements fmt.Stringer.
func (s LifecycleState) String() string {
	return string(s)
}

// MarshalJSON implements json.Marshaler.
func (s LifecycleState) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *LifecycleState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	state := LifecycleState(str)
	if err := state.Validate(); err != nil {
		return err
	}
	*s = state
	return nil
}
