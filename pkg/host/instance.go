package host

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/openfroyo/bmi/pkg/bmi"
	"github.com/openfroyo/bmi/pkg/config"
	"github.com/openfroyo/bmi/pkg/stores"
	"github.com/openfroyo/bmi/pkg/telemetry"
)

// StoreOpener opens the checkpoint store at path, creating it if needed.
type StoreOpener func(ctx context.Context, path string) (stores.CheckpointStore, error)

// InstanceConfig contains configuration for an Instance.
type InstanceConfig struct {
	// Logger receives lifecycle and failure logs. Default is zerolog.Nop().
	Logger *zerolog.Logger

	// Version is reported in checkpoints and logs.
	Version string

	// Loader decodes configuration sources. Default is config.NewLoader().
	Loader *config.Loader

	// OpenStore opens checkpoint stores. Default opens a SQLite store.
	OpenStore StoreOpener
}

// Instance implements bmi.Model around a Kernel. It enforces the lifecycle,
// owns the clock and attributes, and validates every variable access before
// touching kernel buffers. An Instance is not safe for concurrent use.
type Instance struct {
	kernel   Kernel
	desc     Description
	version  string
	caps     bmi.Capabilities
	state    bmi.LifecycleState
	attrs    *attributeTable
	setup    *Setup
	bindings *Bindings

	// The clock is base + steps*TimeStep; base moves only on a reset or a
	// fractional step, so repeated steps do not accumulate rounding error.
	current float64
	base    float64
	steps   int

	logger    zerolog.Logger
	loader    *config.Loader
	openStore StoreOpener
}

var _ bmi.Model = (*Instance)(nil)

// NewInstance wraps kernel in a new Instance in the Created state.
func NewInstance(kernel Kernel, cfg *InstanceConfig) (*Instance, error) {
	if kernel == nil {
		return nil, fmt.Errorf("kernel is required")
	}
	if cfg == nil {
		cfg = &InstanceConfig{}
	}

	desc := kernel.Describe()
	if desc.Component == "" {
		return nil, fmt.Errorf("kernel description has no component name")
	}
	attrs, err := newAttributeTable(desc.Attributes)
	if err != nil {
		return nil, fmt.Errorf("kernel %q: %w", desc.Component, err)
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	loader := cfg.Loader
	if loader == nil {
		loader = config.NewLoader()
	}
	openStore := cfg.OpenStore
	if openStore == nil {
		openStore = openSQLiteStore
	}

	logger = logger.With().
		Str("component", "model").
		Str("model", desc.Component).
		Logger()

	return &Instance{
		kernel:    kernel,
		desc:      desc,
		version:   cfg.Version,
		caps:      kernelCapabilities(kernel),
		state:     bmi.StateCreated,
		attrs:     attrs,
		setup:     newSetup(desc.Clock, attrs),
		logger:    logger,
		loader:    loader,
		openStore: openStore,
	}, nil
}

func openSQLiteStore(ctx context.Context, path string) (stores.CheckpointStore, error) {
	return stores.OpenSQLiteStore(ctx, path)
}

// ComponentName returns the model's name.
func (i *Instance) ComponentName() string {
	return i.desc.Component
}

// State returns the current lifecycle state.
func (i *Instance) State() bmi.LifecycleState {
	return i.state
}

// Capabilities returns a copy of the model's capability set.
func (i *Instance) Capabilities() bmi.Capabilities {
	out := make(bmi.Capabilities, len(i.caps))
	for c, ok := range i.caps {
		out[c] = ok
	}
	return out
}

// Kernel returns the wrapped kernel.
func (i *Instance) Kernel() Kernel {
	return i.kernel
}

// InitializeConfig loads source and applies it to the clock and attributes.
func (i *Instance) InitializeConfig(ctx context.Context, source string) error {
	const op = "InitializeConfig"
	return i.run(ctx, op, func(ctx context.Context) error {
		if err := i.state.Require(op, bmi.StateCreated); err != nil {
			return err
		}

		cfg, err := i.loader.Load(ctx, source)
		if err != nil {
			return bmi.NewConfigurationError(fmt.Sprintf("failed to load configuration source %q", source), err).
				WithOperation(op)
		}

		saved := i.attrs.snapshot()
		setup := newSetup(i.desc.Clock, i.attrs)
		if err := i.configure(ctx, cfg, setup); err != nil {
			_ = i.attrs.restore(saved)
			return err
		}

		i.setup = setup
		i.resetClock(setup.StartTime)
		i.transition(ctx, bmi.StateConfigured)
		return nil
	})
}

func (i *Instance) configure(ctx context.Context, cfg *config.ModelConfig, setup *Setup) error {
	const op = "InitializeConfig"

	if cfg.StartTime != nil {
		setup.StartTime = *cfg.StartTime
	}
	if cfg.EndTime != nil {
		setup.EndTime = *cfg.EndTime
	}
	if cfg.TimeStep != nil {
		setup.TimeStep = *cfg.TimeStep
	}
	if cfg.TimeUnits != "" {
		setup.TimeUnits = cfg.TimeUnits
	}

	if err := i.attrs.applyConfig(cfg.Attributes, i.validateAttribute); err != nil {
		return bmi.NewConfigurationError("invalid attribute in configuration", err).WithOperation(op)
	}
	if err := i.kernel.Configure(ctx, cfg, setup); err != nil {
		return kernelError(err, bmi.KindConfiguration, op)
	}
	if err := validateClock(setup.clock()); err != nil {
		return bmi.NewConfigurationError("invalid clock", err).WithOperation(op)
	}
	return nil
}

// InitializeState allocates the model state. A non-empty source names a
// directory previously written by SaveState.
func (i *Instance) InitializeState(ctx context.Context, source string) error {
	const op = "InitializeState"
	return i.run(ctx, op, func(ctx context.Context) error {
		if err := i.state.Require(op, bmi.StateConfigured); err != nil {
			return err
		}
		if source != "" && !i.caps.Has(bmi.CapabilityCheckpoint) {
			return bmi.NewUnsupportedOperationError("InitializeState from a saved state")
		}

		var cp *stores.Checkpoint
		if source != "" {
			var err error
			if cp, err = i.readCheckpoint(ctx, source); err != nil {
				return err
			}
		}

		savedAttrs := i.attrs.snapshot()
		savedClock := i.setup.clock()
		savedCurrent, savedBase, savedSteps := i.current, i.base, i.steps
		rollback := func() {
			_ = i.attrs.restore(savedAttrs)
			i.setup.StartTime, i.setup.EndTime = savedClock.StartTime, savedClock.EndTime
			i.setup.TimeStep, i.setup.TimeUnits = savedClock.TimeStep, savedClock.TimeUnits
			i.current, i.base, i.steps = savedCurrent, savedBase, savedSteps
		}

		if cp != nil {
			if err := i.applyCheckpointSettings(cp); err != nil {
				rollback()
				return err
			}
		}

		bindings := newBindings(i.setup)
		if err := i.kernel.Allocate(ctx, i.setup, bindings); err != nil {
			rollback()
			return kernelError(err, bmi.KindConfiguration, op)
		}
		if err := bindings.complete(); err != nil {
			rollback()
			return bmi.NewModelFailure("kernel bindings are incomplete", err).WithOperation(op)
		}

		if cp != nil {
			if err := i.applyCheckpointState(cp, bindings); err != nil {
				rollback()
				return err
			}
			telemetry.RecordCheckpoint(ctx, i.desc.Component, cp.ID, source, i.current, true)
			i.logger.Info().
				Str("checkpoint", cp.ID).
				Float64("current_time", i.current).
				Msg("Restored checkpoint")
		}

		i.bindings = bindings
		i.transition(ctx, bmi.StateInitialized)
		return nil
	})
}

// Initialize runs InitializeConfig(source) followed by InitializeState("").
func (i *Instance) Initialize(ctx context.Context, source string) error {
	if err := i.InitializeConfig(ctx, source); err != nil {
		return err
	}
	return i.InitializeState(ctx, "")
}

// Update advances the model by one time step.
func (i *Instance) Update(ctx context.Context) error {
	const op = "Update"
	return i.run(ctx, op, func(ctx context.Context) error {
		if err := i.state.Require(op, bmi.StateInitialized); err != nil {
			return err
		}
		return i.step(ctx, op)
	})
}

// UpdateUntil steps the model until its current time reaches t. It fails
// without stepping when the last step needed would pass the end time.
func (i *Instance) UpdateUntil(ctx context.Context, t float64) error {
	const op = "UpdateUntil"
	return i.run(ctx, op, func(ctx context.Context) error {
		if err := i.state.Require(op, bmi.StateInitialized); err != nil {
			return err
		}
		dt, end := i.setup.TimeStep, i.setup.EndTime
		switch {
		case math.IsNaN(t) || math.IsInf(t, 0):
			return bmi.NewTimeBoundsError("target time must be finite", t).WithOperation(op)
		case t < i.current && !bmi.SameTime(t, i.current, dt):
			return bmi.NewTimeBoundsError(
				fmt.Sprintf("target time %g is before current time %g", t, i.current), t).WithOperation(op)
		case t > end && !bmi.SameTime(t, end, dt):
			return bmi.NewTimeBoundsError(
				fmt.Sprintf("target time %g is after end time %g", t, end), t).WithOperation(op)
		}

		n := bmi.StepsUntil(i.current, t, dt)
		if n > 0 && i.timeAfter(n) > end {
			return bmi.NewTimeBoundsError(
				fmt.Sprintf("reaching %g takes %d steps and passes end time %g", t, n, end), t).WithOperation(op)
		}
		for ; n > 0; n-- {
			if err := i.step(ctx, op); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateFrac advances the model by fraction of one time step.
func (i *Instance) UpdateFrac(ctx context.Context, fraction float64) error {
	const op = "UpdateFrac"
	return i.run(ctx, op, func(ctx context.Context) error {
		if err := i.state.Require(op, bmi.StateInitialized); err != nil {
			return err
		}
		stepper, ok := i.kernel.(FractionalStepper)
		if !ok || !i.caps.Has(bmi.CapabilityFractionalUpdate) {
			return bmi.NewUnsupportedOperationError(op)
		}
		if math.IsNaN(fraction) || fraction <= 0 || fraction > 1 {
			return bmi.NewTimeBoundsError(fmt.Sprintf("fraction %g is outside (0, 1]", fraction), fraction).
				WithOperation(op)
		}

		dt, end := i.setup.TimeStep, i.setup.EndTime
		next := i.current + fraction*dt
		if bmi.SameTime(next, end, dt) {
			next = end
		}
		if i.atEnd() || next > end {
			return bmi.NewTimeBoundsError(
				fmt.Sprintf("advancing to %g passes end time %g", next, end), next).WithOperation(op)
		}
		if err := stepper.AdvanceFraction(ctx, fraction, dt); err != nil {
			return kernelError(err, bmi.KindModelFailure, op)
		}
		i.base, i.steps = next, 0
		i.advanced(ctx, next)
		return nil
	})
}

// step is the single-step path shared by Update and UpdateUntil.
func (i *Instance) step(ctx context.Context, op string) error {
	if i.atEnd() {
		return bmi.NewTimeBoundsError(
			fmt.Sprintf("current time %g has reached end time %g", i.current, i.setup.EndTime), i.current).
			WithOperation(op)
	}
	next := i.timeAfter(1)
	if next > i.setup.EndTime {
		return bmi.NewTimeBoundsError(
			fmt.Sprintf("a full step from %g passes end time %g", i.current, i.setup.EndTime), next).
			WithOperation(op)
	}
	if err := i.kernel.Advance(ctx, i.setup.TimeStep); err != nil {
		return kernelError(err, bmi.KindModelFailure, op)
	}
	i.steps++
	i.advanced(ctx, next)
	return nil
}

func (i *Instance) resetClock(t float64) {
	i.current, i.base, i.steps = t, t, 0
}

// timeAfter returns the model time n more full steps from now, snapped to
// the end time when it lands within rounding of it.
func (i *Instance) timeAfter(n int) float64 {
	t := i.base + float64(i.steps+n)*i.setup.TimeStep
	if bmi.SameTime(t, i.setup.EndTime, i.setup.TimeStep) {
		return i.setup.EndTime
	}
	return t
}

func (i *Instance) atEnd() bool {
	return i.current >= i.setup.EndTime || bmi.SameTime(i.current, i.setup.EndTime, i.setup.TimeStep)
}

func (i *Instance) advanced(ctx context.Context, now float64) {
	i.current = now
	telemetry.RecordStep(ctx, i.desc.Component, now)
	if now >= i.setup.EndTime {
		telemetry.RecordEndReached(ctx, i.desc.Component, i.setup.EndTime)
		i.logger.Debug().Float64("end_time", i.setup.EndTime).Msg("Reached end time")
	}
}

// SaveState writes a checkpoint of the clock, attributes, variables and
// kernel state to <dir>/checkpoint.db.
func (i *Instance) SaveState(ctx context.Context, dir string) error {
	const op = "SaveState"
	return i.run(ctx, op, func(ctx context.Context) error {
		if err := i.state.Require(op, bmi.StateInitialized); err != nil {
			return err
		}
		if !i.caps.Has(bmi.CapabilityCheckpoint) {
			return bmi.NewUnsupportedOperationError(op)
		}
		id, err := i.writeCheckpoint(ctx, dir)
		if err != nil {
			return err
		}
		telemetry.RecordCheckpoint(ctx, i.desc.Component, id, dir, i.current, false)
		i.logger.Info().
			Str("checkpoint", id).
			Str("dir", dir).
			Float64("current_time", i.current).
			Msg("Saved checkpoint")
		return nil
	})
}

// Finalize releases the kernel. It is legal in every state; calls after the
// first are no-ops.
func (i *Instance) Finalize(ctx context.Context) error {
	const op = "Finalize"
	return i.run(ctx, op, func(ctx context.Context) error {
		if i.state == bmi.StateFinalized {
			return nil
		}
		err := i.kernel.Release(ctx)
		i.bindings = nil
		i.transition(ctx, bmi.StateFinalized)
		if err != nil {
			return kernelError(err, bmi.KindModelFailure, op)
		}
		return nil
	})
}

// StartTime returns the simulation start time.
func (i *Instance) StartTime() (float64, error) {
	if err := i.requireClock("StartTime"); err != nil {
		return 0, err
	}
	return i.setup.StartTime, nil
}

// EndTime returns the simulation end time.
func (i *Instance) EndTime() (float64, error) {
	if err := i.requireClock("EndTime"); err != nil {
		return 0, err
	}
	return i.setup.EndTime, nil
}

// CurrentTime returns the current model time.
func (i *Instance) CurrentTime() (float64, error) {
	if err := i.requireClock("CurrentTime"); err != nil {
		return 0, err
	}
	return i.current, nil
}

// TimeStep returns the length of one Update.
func (i *Instance) TimeStep() (float64, error) {
	if err := i.requireClock("TimeStep"); err != nil {
		return 0, err
	}
	return i.setup.TimeStep, nil
}

// TimeUnits returns the unit of the model clock.
func (i *Instance) TimeUnits() (string, error) {
	if err := i.requireClock("TimeUnits"); err != nil {
		return "", err
	}
	return i.setup.TimeUnits, nil
}

// SetStartTime overrides the start time and resets the current time to it.
func (i *Instance) SetStartTime(t float64) error {
	const op = "SetStartTime"
	if err := i.state.Require(op, bmi.StateConfigured); err != nil {
		return err
	}
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return bmi.NewTimeBoundsError("start time must be finite", t).WithOperation(op)
	}
	if t > i.setup.EndTime {
		return bmi.NewTimeBoundsError(
			fmt.Sprintf("start time %g is after end time %g", t, i.setup.EndTime), t).WithOperation(op)
	}
	i.setup.StartTime = t
	i.resetClock(t)
	return nil
}

// SetEndTime overrides the end time.
func (i *Instance) SetEndTime(t float64) error {
	const op = "SetEndTime"
	if err := i.state.Require(op, bmi.StateConfigured); err != nil {
		return err
	}
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return bmi.NewTimeBoundsError("end time must be finite", t).WithOperation(op)
	}
	if t < i.setup.StartTime {
		return bmi.NewTimeBoundsError(
			fmt.Sprintf("end time %g is before start time %g", t, i.setup.StartTime), t).WithOperation(op)
	}
	i.setup.EndTime = t
	return nil
}

// AttributeNames returns the declared attribute names.
func (i *Instance) AttributeNames() ([]string, error) {
	if err := i.requireLive("AttributeNames"); err != nil {
		return nil, err
	}
	return i.attrs.names(), nil
}

// AttributeValue returns the current value of an attribute.
func (i *Instance) AttributeValue(name string) (string, error) {
	if err := i.requireLive("AttributeValue"); err != nil {
		return "", err
	}
	return i.attrs.get(name)
}

// SetAttributeValue overrides an attribute subject to its policy.
func (i *Instance) SetAttributeValue(name, value string) error {
	const op = "SetAttributeValue"
	if err := i.requireLive(op); err != nil {
		return err
	}
	a, err := i.attrs.checkSet(name, i.state)
	if err != nil {
		return err
	}
	if err := i.validateAttribute(name, value); err != nil {
		e := bmi.NewConfigurationError(fmt.Sprintf("invalid value %q for attribute %q", value, name), err).
			WithOperation(op)
		e.Attribute = name
		return e
	}
	i.attrs.set(a, value)
	i.logger.Debug().Str("attribute", name).Str("value", value).Msg("Attribute set")
	return nil
}

func (i *Instance) validateAttribute(name, value string) error {
	if v, ok := i.kernel.(AttributeValidator); ok {
		return v.ValidateAttribute(name, value)
	}
	return nil
}

func (i *Instance) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := telemetry.RecordModelOperation(ctx, i.desc.Component, op, classifyError, fn)
	if err != nil {
		i.logger.Warn().
			Err(err).
			Str("operation", op).
			Str("state", i.state.String()).
			Msg("Model operation failed")
	}
	return err
}

func (i *Instance) transition(ctx context.Context, to bmi.LifecycleState) {
	from := i.state
	i.state = to
	i.logger.Debug().
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("Lifecycle transition")
	telemetry.RecordTransition(ctx, i.desc.Component, from.String(), to.String())
}

func (i *Instance) requireClock(op string) error {
	return i.state.Require(op, bmi.StateConfigured, bmi.StateInitialized)
}

func (i *Instance) requireLive(op string) error {
	return i.state.Require(op, bmi.StateCreated, bmi.StateConfigured, bmi.StateInitialized)
}

func classifyError(err error) string {
	return string(bmi.KindOf(err))
}

// kernelError converts a kernel error into a contract error, keeping any
// kind the kernel already assigned.
func kernelError(err error, fallback bmi.ErrorKind, op string) error {
	e := bmi.AsModelError(err, fallback)
	if e.Operation == "" {
		e.Operation = op
	}
	return e
}

func validateClock(c ClockDefaults) error {
	for name, v := range map[string]float64{"start_time": c.StartTime, "end_time": c.EndTime, "time_step": c.TimeStep} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be finite", name)
		}
	}
	if c.StartTime > c.EndTime {
		return fmt.Errorf("start_time %g is after end_time %g", c.StartTime, c.EndTime)
	}
	if c.TimeStep <= 0 {
		return fmt.Errorf("time_step must be positive, got %g", c.TimeStep)
	}
	return nil
}
