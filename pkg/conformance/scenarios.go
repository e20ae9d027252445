package conformance

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"github.com/openfroyo/bmi/pkg/bmi"
)

// unknownName is assumed not to be a variable or attribute of any model.
const unknownName = "__conformance_unknown__"

type scenario struct {
	name string
	fn   func(context.Context, *harness) error
}

var scenarios = []scenario{
	{"lifecycle_guards", lifecycleGuards},
	{"unknown_variable", unknownVariable},
	{"attributes", attributes},
	{"metadata", metadata},
	{"grid_queries", gridQueries},
	{"update_until", updateUntil},
	{"update_past_end", updatePastEnd},
	{"indexed_round_trip", indexedRoundTrip},
	{"access_violations", accessViolations},
	{"capabilities", capabilities},
	{"finalize", finalize},
}

func lifecycleGuards(ctx context.Context, h *harness) error {
	m, err := h.fresh(ctx)
	if err != nil {
		return err
	}

	var errs []error
	check := func(what string, err error) {
		if e := expectKind(what, err, bmi.KindLifecycle); e != nil {
			errs = append(errs, e)
		}
	}

	_, err = m.CurrentTime()
	check("CurrentTime while created", err)
	_, err = m.InputVarNames()
	check("InputVarNames while created", err)
	check("InitializeState while created", m.InitializeState(ctx, ""))
	check("Update while created", m.Update(ctx))
	if len(errs) > 0 {
		return joinErrs(errs)
	}

	if err := m.InitializeConfig(ctx, h.opts.Source); err != nil {
		return fmt.Errorf("InitializeConfig failed: %w", err)
	}
	if s := m.State(); s != bmi.StateConfigured {
		return fmt.Errorf("state after InitializeConfig is %s, want configured", s)
	}
	names, err := varNames(m)
	if err != nil {
		return err
	}
	check("Update while configured", m.Update(ctx))
	check("InitializeConfig while configured", m.InitializeConfig(ctx, h.opts.Source))
	for _, name := range names {
		_, err := m.VarSize(name)
		check(fmt.Sprintf("VarSize(%q) while configured", name), err)
	}

	if err := m.InitializeState(ctx, ""); err != nil {
		return fmt.Errorf("InitializeState failed: %w", err)
	}
	if s := m.State(); s != bmi.StateInitialized {
		return fmt.Errorf("state after InitializeState is %s, want initialized", s)
	}
	check("InitializeConfig while initialized", m.InitializeConfig(ctx, h.opts.Source))
	check("InitializeState while initialized", m.InitializeState(ctx, ""))
	start, _ := m.StartTime()
	end, _ := m.EndTime()
	check("SetStartTime while initialized", m.SetStartTime(start))
	check("SetEndTime while initialized", m.SetEndTime(end))

	return joinErrs(errs)
}

func unknownVariable(ctx context.Context, h *harness) error {
	m, err := h.initialized(ctx)
	if err != nil {
		return err
	}

	buf := bmi.Float64Values{0}
	calls := []struct {
		name string
		err  error
	}{
		{"Variable", second(m.Variable(unknownName))},
		{"VarType", second(m.VarType(unknownName))},
		{"VarUnits", second(m.VarUnits(unknownName))},
		{"VarRole", second(m.VarRole(unknownName))},
		{"VarRank", second(m.VarRank(unknownName))},
		{"VarSize", second(m.VarSize(unknownName))},
		{"VarNbytes", second(m.VarNbytes(unknownName))},
		{"GridType", second(m.GridType(unknownName))},
		{"GridShape", second(m.GridShape(unknownName))},
		{"GridSpacing", second(m.GridSpacing(unknownName))},
		{"GridOrigin", second(m.GridOrigin(unknownName))},
		{"GridX", second(m.GridX(unknownName))},
		{"GridY", second(m.GridY(unknownName))},
		{"GridZ", second(m.GridZ(unknownName))},
		{"GridConnectivity", second(m.GridConnectivity(unknownName))},
		{"GridOffset", second(m.GridOffset(unknownName))},
		{"GetValue", m.GetValue(unknownName, buf)},
		{"GetValueAtIndices", m.GetValueAtIndices(unknownName, buf, []int{0})},
		{"SetValue", m.SetValue(unknownName, buf)},
		{"SetValueAtIndices", m.SetValueAtIndices(unknownName, []int{0}, buf)},
	}

	var errs []error
	for _, c := range calls {
		if e := expectKind(c.name, c.err, bmi.KindUnknownVariable); e != nil {
			errs = append(errs, e)
		}
	}

	// Output-only variables are not writable.
	outputs, _ := m.OutputVarNames()
	for _, name := range outputs {
		role, err := m.VarRole(name)
		if err != nil || role.IsInput() {
			continue
		}
		v, err := bmi.ReadValues(m, name)
		if err != nil {
			return fmt.Errorf("GetValue(%q) failed: %w", name, err)
		}
		if e := expectKind(fmt.Sprintf("SetValue(%q) on output-only variable", name),
			m.SetValue(name, v), bmi.KindUnknownVariable); e != nil {
			errs = append(errs, e)
		}
	}
	return joinErrs(errs)
}

func attributes(ctx context.Context, h *harness) error {
	m, err := h.fresh(ctx)
	if err != nil {
		return err
	}

	names, err := m.AttributeNames()
	if err != nil {
		return fmt.Errorf("AttributeNames while created failed: %w", err)
	}
	var errs []error
	for _, name := range names {
		if _, err := m.AttributeValue(name); err != nil {
			errs = append(errs, fmt.Errorf("AttributeValue(%q) failed: %w", name, err))
		}
	}
	if e := expectKind("AttributeValue(unknown)", second(m.AttributeValue(unknownName)), bmi.KindUnknownAttribute); e != nil {
		errs = append(errs, e)
	}
	if e := expectKind("SetAttributeValue(unknown)", m.SetAttributeValue(unknownName, "x"), bmi.KindUnknownAttribute); e != nil {
		errs = append(errs, e)
	}
	return joinErrs(errs)
}

func metadata(ctx context.Context, h *harness) error {
	m, err := h.initialized(ctx)
	if err != nil {
		return err
	}
	names, err := varNames(m)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return skip("model exposes no variables")
	}

	inputs, _ := m.InputVarNames()
	outputs, _ := m.OutputVarNames()
	isInput := toSet(inputs)
	isOutput := toSet(outputs)

	var errs []error
	for _, name := range names {
		v, err := m.Variable(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("Variable(%q) failed: %w", name, err))
			continue
		}
		if err := v.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("variable %q is invalid: %w", name, err))
		}
		if v.Role.IsInput() != isInput[name] || v.Role.IsOutput() != isOutput[name] {
			errs = append(errs, fmt.Errorf("variable %q has role %s but input=%t output=%t",
				name, v.Role, isInput[name], isOutput[name]))
		}
		size, _ := m.VarSize(name)
		nbytes, _ := m.VarNbytes(name)
		rank, _ := m.VarRank(name)
		shape, _ := m.GridShape(name)
		if size != v.Size() || nbytes != size*v.Type.Size() {
			errs = append(errs, fmt.Errorf("variable %q has size %d and %d bytes for %s elements",
				name, size, nbytes, v.Type))
		}
		if rank != len(shape) {
			errs = append(errs, fmt.Errorf("variable %q has rank %d but shape %v", name, rank, shape))
		}
	}
	return joinErrs(errs)
}

func gridQueries(ctx context.Context, h *harness) error {
	m, err := h.initialized(ctx)
	if err != nil {
		return err
	}
	names, err := varNames(m)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return skip("model exposes no variables")
	}

	var errs []error
	for _, name := range names {
		gt, err := m.GridType(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("GridType(%q) failed: %w", name, err))
			continue
		}
		spaced := gt == bmi.GridUniform
		mesh := gt == bmi.GridUnstructured
		coords := gt == bmi.GridRectilinear || gt == bmi.GridStructured || mesh

		queries := []struct {
			name      string
			err       error
			supported bool
		}{
			{"GridSpacing", second(m.GridSpacing(name)), spaced},
			{"GridOrigin", second(m.GridOrigin(name)), spaced},
			{"GridX", second(m.GridX(name)), coords},
			{"GridConnectivity", second(m.GridConnectivity(name)), mesh},
			{"GridOffset", second(m.GridOffset(name)), mesh},
		}
		for _, q := range queries {
			what := fmt.Sprintf("%s(%q) on %s grid", q.name, name, gt)
			switch {
			case q.supported && q.err != nil:
				errs = append(errs, fmt.Errorf("%s failed: %w", what, q.err))
			case !q.supported:
				if e := expectKind(what, q.err, bmi.KindUnsupportedGridQuery); e != nil {
					errs = append(errs, e)
				}
			}
		}
	}
	return joinErrs(errs)
}

func updateUntil(ctx context.Context, h *harness) error {
	stepped, err := h.initialized(ctx)
	if err != nil {
		return err
	}
	until, err := h.initialized(ctx)
	if err != nil {
		return err
	}

	current, _ := stepped.CurrentTime()
	end, _ := stepped.EndTime()
	step, _ := stepped.TimeStep()
	reachable := bmi.StepsWithin(current, end, step)
	if reachable == 0 {
		return skip("no full time step fits before end time")
	}
	target := math.Min(current+2.5*step, current+float64(reachable)*step)
	n := bmi.StepsUntil(current, target, step)

	for k := 0; k < n; k++ {
		if err := stepped.Update(ctx); err != nil {
			return fmt.Errorf("Update %d of %d failed: %w", k+1, n, err)
		}
	}
	if err := until.UpdateUntil(ctx, target); err != nil {
		return fmt.Errorf("UpdateUntil(%g) failed: %w", target, err)
	}

	a, _ := stepped.CurrentTime()
	b, _ := until.CurrentTime()
	if a != b {
		return fmt.Errorf("time is %g after %d updates but %g after UpdateUntil(%g)", a, n, b, target)
	}
	return compareOutputs(stepped, until, "after Update", "after UpdateUntil")
}

func updatePastEnd(ctx context.Context, h *harness) error {
	m, err := h.initialized(ctx)
	if err != nil {
		return err
	}
	current, _ := m.CurrentTime()
	end, _ := m.EndTime()
	step, _ := m.TimeStep()
	n := bmi.StepsWithin(current, end, step)
	if n > h.opts.MaxSteps {
		return skip("reaching end time takes %d updates, more than %d", n, h.opts.MaxSteps)
	}

	// The last whole step at or before the end time.
	last := current + float64(n)*step
	if err := m.UpdateUntil(ctx, last); err != nil {
		return fmt.Errorf("UpdateUntil(%g) with end time %g failed: %w", last, end, err)
	}
	before, _ := m.CurrentTime()
	snapshot, err := snapshotOutputs(m)
	if err != nil {
		return err
	}

	var errs []error
	if e := expectKind("Update at end time", m.Update(ctx), bmi.KindTimeBounds); e != nil {
		errs = append(errs, e)
	}
	if e := expectKind("UpdateUntil past end time", m.UpdateUntil(ctx, end+step), bmi.KindTimeBounds); e != nil {
		errs = append(errs, e)
	}
	if e := expectKind("UpdateUntil before current time", m.UpdateUntil(ctx, before-step), bmi.KindTimeBounds); e != nil {
		errs = append(errs, e)
	}

	after, _ := m.CurrentTime()
	if after != before {
		errs = append(errs, fmt.Errorf("time moved from %g to %g after rejected updates", before, after))
	}
	if err := compareSnapshot(m, snapshot); err != nil {
		errs = append(errs, fmt.Errorf("rejected updates changed state: %w", err))
	}
	return joinErrs(errs)
}

func indexedRoundTrip(ctx context.Context, h *harness) error {
	m, err := h.initialized(ctx)
	if err != nil {
		return err
	}
	inputs, err := m.InputVarNames()
	if err != nil {
		return err
	}

	tested := 0
	for _, name := range inputs {
		orig, err := bmi.ReadValues(m, name)
		if err != nil {
			return fmt.Errorf("GetValue(%q) failed: %w", name, err)
		}
		if orig.Len() < 2 {
			continue
		}
		tested++

		last := orig.Len() - 1
		indices := []int{last, 0}
		src := truncate(bmi.CloneValues(orig), 2)
		setAt(src, 0, valueAt(orig, last)+1)
		setAt(src, 1, valueAt(orig, 0)-1)

		if err := m.SetValueAtIndices(name, indices, src); err != nil {
			return fmt.Errorf("SetValueAtIndices(%q) failed: %w", name, err)
		}
		got := truncate(bmi.CloneValues(orig), 2)
		if err := m.GetValueAtIndices(name, got, indices); err != nil {
			return fmt.Errorf("GetValueAtIndices(%q) failed: %w", name, err)
		}
		if !valuesEqual(got, src) {
			return fmt.Errorf("variable %q: GetValueAtIndices returned %v after setting %v", name, got, src)
		}

		whole, err := bmi.ReadValues(m, name)
		if err != nil {
			return err
		}
		for k := 1; k < last; k++ {
			if !sameFloat(valueAt(whole, k), valueAt(orig, k)) {
				return fmt.Errorf("variable %q: index %d changed from %g to %g", name, k, valueAt(orig, k), valueAt(whole, k))
			}
		}
	}
	if tested == 0 {
		return skip("model has no input variable with two or more elements")
	}
	return nil
}

func accessViolations(ctx context.Context, h *harness) error {
	m, err := h.initialized(ctx)
	if err != nil {
		return err
	}
	names, err := varNames(m)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return skip("model exposes no variables")
	}
	inputs, _ := m.InputVarNames()
	isInput := toSet(inputs)

	var errs []error
	add := func(what string, err error, kind bmi.ErrorKind) {
		if e := expectKind(what, err, kind); e != nil {
			errs = append(errs, e)
		}
	}

	for _, name := range names {
		v, err := m.Variable(name)
		if err != nil {
			return fmt.Errorf("Variable(%q) failed: %w", name, err)
		}
		size := v.Size()
		wrong := bmi.Float32
		if v.Type == bmi.Float32 {
			wrong = bmi.Float64
		}

		short, _ := bmi.NewValues(v.Type, size+1)
		add(fmt.Sprintf("GetValue(%q) with %d elements", name, size+1), m.GetValue(name, short), bmi.KindSizeMismatch)
		other, _ := bmi.NewValues(wrong, size)
		add(fmt.Sprintf("GetValue(%q) into %s", name, wrong), m.GetValue(name, other), bmi.KindTypeMismatch)

		one, _ := bmi.NewValues(v.Type, 1)
		add(fmt.Sprintf("GetValueAtIndices(%q, [-1])", name), m.GetValueAtIndices(name, one, []int{-1}), bmi.KindIndexOutOfBounds)
		add(fmt.Sprintf("GetValueAtIndices(%q, [%d])", name, size), m.GetValueAtIndices(name, one, []int{size}), bmi.KindIndexOutOfBounds)
		add(fmt.Sprintf("GetValueAtIndices(%q) with mismatched lengths", name),
			m.GetValueAtIndices(name, one, []int{0, 0}), bmi.KindSizeMismatch)

		if !isInput[name] || size == 0 {
			continue
		}
		before, err := bmi.ReadValues(m, name)
		if err != nil {
			return err
		}
		two, _ := bmi.NewValues(v.Type, 2)
		bmi.FillValues(two, valueAt(before, 0)+1)
		add(fmt.Sprintf("SetValueAtIndices(%q, [0 %d])", name, size),
			m.SetValueAtIndices(name, []int{0, size}, two), bmi.KindIndexOutOfBounds)
		add(fmt.Sprintf("SetValue(%q) from %s", name, wrong), m.SetValue(name, other), bmi.KindTypeMismatch)

		after, err := bmi.ReadValues(m, name)
		if err != nil {
			return err
		}
		if !valuesEqual(before, after) {
			errs = append(errs, fmt.Errorf("variable %q changed after rejected writes", name))
		}
	}
	return joinErrs(errs)
}

func capabilities(ctx context.Context, h *harness) error {
	m, err := h.initialized(ctx)
	if err != nil {
		return err
	}
	caps := m.Capabilities()
	current, _ := m.CurrentTime()
	end, _ := m.EndTime()
	step, _ := m.TimeStep()

	var errs []error
	if !caps.Has(bmi.CapabilityFractionalUpdate) {
		if e := expectKind("UpdateFrac without capability", m.UpdateFrac(ctx, 0.5), bmi.KindUnsupportedOperation); e != nil {
			errs = append(errs, e)
		}
	} else if current+0.5*step <= end {
		if err := m.UpdateFrac(ctx, 0.5); err != nil {
			errs = append(errs, fmt.Errorf("UpdateFrac(0.5) failed: %w", err))
		} else if now, _ := m.CurrentTime(); math.Abs(now-(current+0.5*step)) > 1e-9*math.Max(1, math.Abs(step)) {
			errs = append(errs, fmt.Errorf("UpdateFrac(0.5) moved time from %g to %g with step %g", current, now, step))
		}
	}

	dir := filepath.Join(h.opts.TempDir, "capabilities")
	if !caps.Has(bmi.CapabilityCheckpoint) {
		if e := expectKind("SaveState without capability", m.SaveState(ctx, dir), bmi.KindUnsupportedOperation); e != nil {
			errs = append(errs, e)
		}
		return joinErrs(errs)
	}
	if len(errs) > 0 {
		return joinErrs(errs)
	}

	if now, _ := m.CurrentTime(); now+step <= end {
		if err := m.Update(ctx); err != nil {
			return fmt.Errorf("Update failed: %w", err)
		}
	}
	if err := m.SaveState(ctx, dir); err != nil {
		return fmt.Errorf("SaveState failed: %w", err)
	}

	restored, err := h.fresh(ctx)
	if err != nil {
		return err
	}
	if err := restored.InitializeConfig(ctx, h.opts.Source); err != nil {
		return fmt.Errorf("InitializeConfig failed: %w", err)
	}
	if err := restored.InitializeState(ctx, dir); err != nil {
		return fmt.Errorf("InitializeState(%q) failed: %w", dir, err)
	}
	a, _ := m.CurrentTime()
	b, _ := restored.CurrentTime()
	if a != b {
		return fmt.Errorf("restored time is %g, saved at %g", b, a)
	}
	return compareOutputs(m, restored, "saved", "restored")
}

func finalize(ctx context.Context, h *harness) error {
	created, err := h.fresh(ctx)
	if err != nil {
		return err
	}
	if err := created.Finalize(ctx); err != nil {
		return fmt.Errorf("Finalize while created failed: %w", err)
	}

	m, err := h.initialized(ctx)
	if err != nil {
		return err
	}
	names, err := varNames(m)
	if err != nil {
		return err
	}
	if err := m.Finalize(ctx); err != nil {
		return fmt.Errorf("Finalize failed: %w", err)
	}
	if err := m.Finalize(ctx); err != nil {
		return fmt.Errorf("second Finalize failed: %w", err)
	}
	if s := m.State(); s != bmi.StateFinalized {
		return fmt.Errorf("state after Finalize is %s, want finalized", s)
	}

	var errs []error
	check := func(what string, err error) {
		if e := expectKind(what+" after Finalize", err, bmi.KindLifecycle); e != nil {
			errs = append(errs, e)
		}
	}
	check("Update", m.Update(ctx))
	check("CurrentTime", second(m.CurrentTime()))
	check("AttributeNames", second(m.AttributeNames()))
	check("InitializeConfig", m.InitializeConfig(ctx, h.opts.Source))
	for _, name := range names {
		check(fmt.Sprintf("GetValue(%q)", name), m.GetValue(name, bmi.Float64Values{}))
	}
	return joinErrs(errs)
}

// second returns the error of a (value, error) pair.
func second[T any](_ T, err error) error {
	return err
}

// varNames returns input names followed by output-only names.
func varNames(m bmi.Model) ([]string, error) {
	inputs, err := m.InputVarNames()
	if err != nil {
		return nil, fmt.Errorf("InputVarNames failed: %w", err)
	}
	outputs, err := m.OutputVarNames()
	if err != nil {
		return nil, fmt.Errorf("OutputVarNames failed: %w", err)
	}
	seen := toSet(inputs)
	names := append([]string(nil), inputs...)
	for _, name := range outputs {
		if !seen[name] {
			names = append(names, name)
			seen[name] = true
		}
	}
	return names, nil
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
