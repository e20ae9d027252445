package host

import (
	"fmt"
	"sort"

	"github.com/openfroyo/bmi/pkg/bmi"
)

type attribute struct {
	AttributeSpec
	value      string
	overridden bool
}

// attributeTable holds the attribute values of one instance in declaration
// order.
type attributeTable struct {
	order  []string
	byName map[string]*attribute
}

func newAttributeTable(specs []AttributeSpec) (*attributeTable, error) {
	t := &attributeTable{byName: make(map[string]*attribute, len(specs))}
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("attribute name is required")
		}
		if err := spec.Policy.Validate(); err != nil {
			return nil, fmt.Errorf("attribute %q: %w", spec.Name, err)
		}
		if _, exists := t.byName[spec.Name]; exists {
			return nil, fmt.Errorf("attribute %q declared twice", spec.Name)
		}
		t.byName[spec.Name] = &attribute{AttributeSpec: spec, value: spec.Default}
		t.order = append(t.order, spec.Name)
	}
	return t, nil
}

func (t *attributeTable) names() []string {
	return append([]string{}, t.order...)
}

func (t *attributeTable) lookup(name string) (*attribute, bool) {
	a, ok := t.byName[name]
	return a, ok
}

func (t *attributeTable) get(name string) (string, error) {
	a, ok := t.byName[name]
	if !ok {
		return "", bmi.NewUnknownAttributeError(name)
	}
	return a.value, nil
}

// checkSet applies the attribute policy for a driver write in state.
func (t *attributeTable) checkSet(name string, state bmi.LifecycleState) (*attribute, error) {
	a, ok := t.byName[name]
	if !ok {
		return nil, bmi.NewUnknownAttributeError(name)
	}
	switch a.Policy {
	case bmi.AttributeReadOnly:
		return nil, bmi.NewReadOnlyAttributeError(name)
	case bmi.AttributeMutableBeforeInit:
		if state == bmi.StateInitialized {
			err := bmi.NewLifecycleError("SetAttributeValue", state)
			err.Attribute = name
			err.Message = fmt.Sprintf("attribute %q cannot be changed after initialization", name)
			return nil, err
		}
	}
	return a, nil
}

// set records a driver override.
func (t *attributeTable) set(a *attribute, value string) {
	a.value = value
	a.overridden = true
}

// applyConfig applies configuration-source values to every attribute the
// driver has not already overridden.
func (t *attributeTable) applyConfig(values map[string]string, validate func(name, value string) error) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		a, ok := t.byName[name]
		if !ok {
			return fmt.Errorf("unknown attribute %q", name)
		}
		if a.Policy == bmi.AttributeReadOnly {
			return fmt.Errorf("attribute %q is read-only", name)
		}
		if a.overridden {
			continue
		}
		if validate != nil {
			if err := validate(name, values[name]); err != nil {
				return fmt.Errorf("attribute %q: %w", name, err)
			}
		}
		a.value = values[name]
	}
	return nil
}

func (t *attributeTable) snapshot() map[string]string {
	out := make(map[string]string, len(t.order))
	for _, name := range t.order {
		out[name] = t.byName[name].value
	}
	return out
}

// restore loads checkpointed values for every writable attribute.
func (t *attributeTable) restore(values map[string]string) error {
	for name, value := range values {
		a, ok := t.byName[name]
		if !ok {
			return fmt.Errorf("checkpoint has unknown attribute %q", name)
		}
		if a.Policy == bmi.AttributeReadOnly {
			continue
		}
		a.value = value
	}
	return nil
}
