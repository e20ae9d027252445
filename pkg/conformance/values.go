package conformance

import (
	"fmt"
	"math"

	"github.com/openfroyo/bmi/pkg/bmi"
)

func valueAt(v bmi.Values, i int) float64 {
	switch b := v.(type) {
	case bmi.Float64Values:
		return b[i]
	case bmi.Float32Values:
		return float64(b[i])
	}
	return math.NaN()
}

func setAt(v bmi.Values, i int, x float64) {
	switch b := v.(type) {
	case bmi.Float64Values:
		b[i] = x
	case bmi.Float32Values:
		b[i] = float32(x)
	}
}

// truncate returns the first n elements of v.
func truncate(v bmi.Values, n int) bmi.Values {
	switch b := v.(type) {
	case bmi.Float64Values:
		return b[:n]
	case bmi.Float32Values:
		return b[:n]
	}
	return v
}

// sameFloat treats NaN as equal to itself.
func sameFloat(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

func valuesEqual(a, b bmi.Values) bool {
	if a.ElementType() != b.ElementType() || a.Len() != b.Len() {
		return false
	}
	for i := 0; i < a.Len(); i++ {
		if !sameFloat(valueAt(a, i), valueAt(b, i)) {
			return false
		}
	}
	return true
}

// snapshotOutputs reads every output variable.
func snapshotOutputs(m bmi.Model) (map[string]bmi.Values, error) {
	names, err := m.OutputVarNames()
	if err != nil {
		return nil, fmt.Errorf("OutputVarNames failed: %w", err)
	}
	out := make(map[string]bmi.Values, len(names))
	for _, name := range names {
		v, err := bmi.ReadValues(m, name)
		if err != nil {
			return nil, fmt.Errorf("GetValue(%q) failed: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func compareSnapshot(m bmi.Model, snapshot map[string]bmi.Values) error {
	for name, want := range snapshot {
		got, err := bmi.ReadValues(m, name)
		if err != nil {
			return fmt.Errorf("GetValue(%q) failed: %w", name, err)
		}
		if !valuesEqual(got, want) {
			return fmt.Errorf("variable %q differs", name)
		}
	}
	return nil
}

// compareOutputs checks that two models hold identical outputs.
func compareOutputs(a, b bmi.Model, aLabel, bLabel string) error {
	snapshot, err := snapshotOutputs(a)
	if err != nil {
		return err
	}
	if err := compareSnapshot(b, snapshot); err != nil {
		return fmt.Errorf("%s and %s outputs differ: %w", aLabel, bLabel, err)
	}
	return nil
}
