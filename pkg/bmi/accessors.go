package bmi

// Float64s reads a whole float64 variable into a new slice.
func Float64s(m Model, name string) ([]float64, error) {
	n, err := m.VarSize(name)
	if err != nil {
		return nil, err
	}
	buf := make(Float64Values, n)
	if err := m.GetValue(name, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Float32s reads a whole float32 variable into a new slice.
func Float32s(m Model, name string) ([]float32, error) {
	n, err := m.VarSize(name)
	if err != nil {
		return nil, err
	}
	buf := make(Float32Values, n)
	if err := m.GetValue(name, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Float64sAt reads the float64 elements at indices.
func Float64sAt(m Model, name string, indices []int) ([]float64, error) {
	buf := make(Float64Values, len(indices))
	if err := m.GetValueAtIndices(name, buf, indices); err != nil {
		return nil, err
	}
	return buf, nil
}

// Float32sAt reads the float32 elements at indices.
func Float32sAt(m Model, name string, indices []int) ([]float32, error) {
	buf := make(Float32Values, len(indices))
	if err := m.GetValueAtIndices(name, buf, indices); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadValues reads a whole variable into a new buffer of its declared type.
func ReadValues(m Model, name string) (Values, error) {
	v, err := m.Variable(name)
	if err != nil {
		return nil, err
	}
	buf, err := NewValues(v.Type, v.Size())
	if err != nil {
		return nil, err
	}
	if err := m.GetValue(name, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
