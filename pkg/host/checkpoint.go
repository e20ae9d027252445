package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openfroyo/bmi/pkg/bmi"
	"github.com/openfroyo/bmi/pkg/stores"
)

// CheckpointFile is the name of the checkpoint database inside a
// checkpoint directory.
const CheckpointFile = "checkpoint.db"

func (i *Instance) writeCheckpoint(ctx context.Context, dir string) (string, error) {
	const op = "SaveState"
	if dir == "" {
		return "", bmi.NewModelFailure("checkpoint directory is required", nil).WithOperation(op)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", bmi.NewModelFailure("failed to create checkpoint directory", err).WithOperation(op)
	}

	store, err := i.openStore(ctx, filepath.Join(dir, CheckpointFile))
	if err != nil {
		return "", bmi.NewModelFailure("failed to open checkpoint store", err).WithOperation(op)
	}
	defer store.Close()

	cp := &stores.Checkpoint{
		Component:    i.desc.Component,
		ModelVersion: i.version,
		StartTime:    i.setup.StartTime,
		EndTime:      i.setup.EndTime,
		CurrentTime:  i.current,
		TimeStep:     i.setup.TimeStep,
		TimeUnits:    i.setup.TimeUnits,
		Attributes:   i.attrs.snapshot(),
	}
	if ck, ok := i.kernel.(Checkpointer); ok {
		blob, err := ck.MarshalState()
		if err != nil {
			return "", kernelError(err, bmi.KindModelFailure, op)
		}
		cp.KernelState = blob
	}
	for _, name := range i.bindings.order {
		b := i.bindings.vars[name]
		cp.Variables = append(cp.Variables, stores.VariableSnapshot{
			Name:   name,
			Shape:  b.desc.Shape(),
			Values: bmi.CloneValues(b.buf),
		})
	}

	if err := store.SaveCheckpoint(ctx, cp); err != nil {
		return "", bmi.NewModelFailure("failed to write checkpoint", err).WithOperation(op)
	}
	return cp.ID, nil
}

func (i *Instance) readCheckpoint(ctx context.Context, dir string) (*stores.Checkpoint, error) {
	const op = "InitializeState"
	path := filepath.Join(dir, CheckpointFile)
	if _, err := os.Stat(path); err != nil {
		return nil, bmi.NewStateLoadError(fmt.Sprintf("no checkpoint found in %s", dir), err).WithOperation(op)
	}

	store, err := i.openStore(ctx, path)
	if err != nil {
		return nil, bmi.NewStateLoadError("failed to open checkpoint store", err).WithOperation(op)
	}
	defer store.Close()

	cp, err := store.LatestCheckpoint(ctx, i.desc.Component)
	if err != nil {
		if errors.Is(err, stores.ErrNotFound) {
			return nil, bmi.NewStateLoadError(
				fmt.Sprintf("%s holds no checkpoint of %q", dir, i.desc.Component), err).WithOperation(op)
		}
		return nil, bmi.NewStateLoadError("failed to read checkpoint", err).WithOperation(op)
	}
	return cp, nil
}

// applyCheckpointSettings restores the clock and attributes, which must be
// in place before the kernel allocates.
func (i *Instance) applyCheckpointSettings(cp *stores.Checkpoint) error {
	const op = "InitializeState"
	clock := ClockDefaults{
		StartTime: cp.StartTime,
		EndTime:   cp.EndTime,
		TimeStep:  cp.TimeStep,
		TimeUnits: cp.TimeUnits,
	}
	if err := validateClock(clock); err != nil {
		return bmi.NewStateLoadError("checkpoint clock is invalid", err).WithOperation(op)
	}
	if cp.CurrentTime < cp.StartTime || cp.CurrentTime > cp.EndTime {
		return bmi.NewStateLoadError(
			fmt.Sprintf("checkpoint time %g is outside [%g, %g]", cp.CurrentTime, cp.StartTime, cp.EndTime), nil).
			WithOperation(op)
	}
	for name, value := range cp.Attributes {
		if err := i.validateAttribute(name, value); err != nil {
			return bmi.NewStateLoadError(fmt.Sprintf("checkpoint attribute %q is invalid", name), err).WithOperation(op)
		}
	}
	if err := i.attrs.restore(cp.Attributes); err != nil {
		return bmi.NewStateLoadError("checkpoint attributes do not match the model", err).WithOperation(op)
	}

	i.setup.StartTime, i.setup.EndTime = clock.StartTime, clock.EndTime
	i.setup.TimeStep, i.setup.TimeUnits = clock.TimeStep, clock.TimeUnits
	i.resetClock(cp.CurrentTime)
	return nil
}

// applyCheckpointState copies checkpointed values into freshly allocated
// buffers and hands the kernel its private state.
func (i *Instance) applyCheckpointState(cp *stores.Checkpoint, bindings *Bindings) error {
	const op = "InitializeState"
	if len(cp.Variables) != len(bindings.order) {
		return bmi.NewStateLoadError(
			fmt.Sprintf("checkpoint holds %d variables, model binds %d", len(cp.Variables), len(bindings.order)), nil).
			WithOperation(op)
	}
	for _, name := range bindings.order {
		b := bindings.vars[name]
		snap, ok := cp.Variable(name)
		if !ok {
			return bmi.NewStateLoadError(fmt.Sprintf("checkpoint is missing variable %q", name), nil).
				WithOperation(op).WithVariable(name)
		}
		if err := bmi.CopyValues(b.buf, snap.Values); err != nil {
			return bmi.NewStateLoadError(fmt.Sprintf("checkpoint values of %q do not fit", name), err).
				WithOperation(op).WithVariable(name)
		}
	}

	if ck, ok := i.kernel.(Checkpointer); ok {
		if err := ck.UnmarshalState(cp.KernelState); err != nil {
			return bmi.NewStateLoadError("kernel rejected checkpoint state", err).WithOperation(op)
		}
	}
	return nil
}
