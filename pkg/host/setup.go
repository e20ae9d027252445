package host

import (
	"fmt"

	"github.com/openfroyo/bmi/pkg/bmi"
)

// Setup carries the effective clock and attributes into a kernel and
// collects the variables it declares. A kernel may keep the Setup it was
// given; Attribute always reflects the current value.
type Setup struct {
	StartTime float64
	EndTime   float64
	TimeStep  float64
	TimeUnits string

	attrs    *attributeTable
	roles    map[string]bmi.Role
	declared []string
}

func newSetup(clock ClockDefaults, attrs *attributeTable) *Setup {
	return &Setup{
		StartTime: clock.StartTime,
		EndTime:   clock.EndTime,
		TimeStep:  clock.TimeStep,
		TimeUnits: clock.TimeUnits,
		attrs:     attrs,
		roles:     make(map[string]bmi.Role),
	}
}

// Declare announces a variable that Allocate will bind.
func (s *Setup) Declare(name string, role bmi.Role) error {
	if name == "" {
		return fmt.Errorf("variable name is required")
	}
	if err := role.Validate(); err != nil {
		return fmt.Errorf("variable %q: %w", name, err)
	}
	if _, exists := s.roles[name]; exists {
		return fmt.Errorf("variable %q declared twice", name)
	}
	s.roles[name] = role
	s.declared = append(s.declared, name)
	return nil
}

// Declared returns the declared variable names in declaration order.
func (s *Setup) Declared() []string {
	return append([]string(nil), s.declared...)
}

// Attribute returns the current value of a declared attribute.
func (s *Setup) Attribute(name string) (string, bool) {
	a, ok := s.attrs.lookup(name)
	if !ok {
		return "", false
	}
	return a.value, true
}

func (s *Setup) namesWhere(pred func(bmi.Role) bool) []string {
	out := []string{}
	for _, name := range s.declared {
		if pred(s.roles[name]) {
			out = append(out, name)
		}
	}
	return out
}

func (s *Setup) clock() ClockDefaults {
	return ClockDefaults{
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		TimeStep:  s.TimeStep,
		TimeUnits: s.TimeUnits,
	}
}
