package host

import (
	"fmt"

	"github.com/openfroyo/bmi/pkg/bmi"
)

// binding pairs a variable descriptor with the kernel-owned buffer that
// holds its values. The Instance reads and writes the buffer in place.
type binding struct {
	desc bmi.Variable
	buf  bmi.Values
}

// Bindings collects the variables a kernel exposes. Each binding is
// validated once, when it is registered.
type Bindings struct {
	roles map[string]bmi.Role
	vars  map[string]*binding
	order []string
}

func newBindings(setup *Setup) *Bindings {
	return &Bindings{
		roles: setup.roles,
		vars:  make(map[string]*binding, len(setup.declared)),
	}
}

// Bind registers the buffer backing a declared variable. The buffer must
// match the descriptor's element type and size and stays owned by the
// kernel, which mutates it in place.
func (b *Bindings) Bind(v bmi.Variable, buf bmi.Values) error {
	if err := v.Validate(); err != nil {
		return err
	}
	role, declared := b.roles[v.Name]
	if !declared {
		return fmt.Errorf("variable %q was not declared during configuration", v.Name)
	}
	if role != v.Role {
		return fmt.Errorf("variable %q declared as %s, bound as %s", v.Name, role, v.Role)
	}
	if _, exists := b.vars[v.Name]; exists {
		return fmt.Errorf("variable %q bound twice", v.Name)
	}
	if buf == nil {
		return fmt.Errorf("variable %q: buffer is required", v.Name)
	}
	if buf.ElementType() != v.Type {
		return fmt.Errorf("variable %q: buffer type %s does not match declared type %s", v.Name, buf.ElementType(), v.Type)
	}
	if buf.Len() != v.Size() {
		return fmt.Errorf("variable %q: buffer has %d elements, grid has %d", v.Name, buf.Len(), v.Size())
	}

	b.vars[v.Name] = &binding{desc: v.Clone(), buf: buf}
	b.order = append(b.order, v.Name)
	return nil
}

// Names returns the bound variable names in binding order.
func (b *Bindings) Names() []string {
	return append([]string(nil), b.order...)
}

// Buffer returns the buffer bound to name.
func (b *Bindings) Buffer(name string) (bmi.Values, bool) {
	v, ok := b.vars[name]
	if !ok {
		return nil, false
	}
	return v.buf, true
}

func (b *Bindings) lookup(name string) (*binding, bool) {
	v, ok := b.vars[name]
	return v, ok
}

// complete checks that every declared variable was bound.
func (b *Bindings) complete() error {
	for name := range b.roles {
		if _, ok := b.vars[name]; !ok {
			return fmt.Errorf("declared variable %q was never bound", name)
		}
	}
	return nil
}
