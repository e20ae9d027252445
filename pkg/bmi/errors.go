package bmi

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a contract violation or model failure. Every error
// returned by a Model carries exactly one kind.
type ErrorKind string

const (
	// KindLifecycle indicates an operation was called in a state that does
	// not permit it.
	KindLifecycle ErrorKind = "lifecycle"

	// KindConfiguration indicates a malformed or inaccessible configuration source.
	KindConfiguration ErrorKind = "configuration"

	// KindStateLoad indicates a state source could not be loaded.
	KindStateLoad ErrorKind = "state_load"

	// KindUnknownVariable indicates a variable name the model does not expose.
	KindUnknownVariable ErrorKind = "unknown_variable"

	// KindUnknownAttribute indicates an attribute name the model does not declare.
	KindUnknownAttribute ErrorKind = "unknown_attribute"

	// KindTypeMismatch indicates a value buffer of the wrong element type.
	KindTypeMismatch ErrorKind = "type_mismatch"

	// KindSizeMismatch indicates a buffer or index list of the wrong length.
	KindSizeMismatch ErrorKind = "size_mismatch"

	// KindIndexOutOfBounds indicates a flat index outside [0, size).
	KindIndexOutOfBounds ErrorKind = "index_out_of_bounds"

	// KindTimeBounds indicates a time outside the simulation window, or an
	// update attempted at or past the end time.
	KindTimeBounds ErrorKind = "time_bounds"

	// KindUnsupportedOperation indicates an optional operation the model does
	// not implement.
	KindUnsupportedOperation ErrorKind = "unsupported_operation"

	// KindUnsupportedGridQuery indicates a geometry query that does not apply
	// to the variable's grid type.
	KindUnsupportedGridQuery ErrorKind = "unsupported_grid_query"

	// KindReadOnlyAttribute indicates an attempt to modify a read-only attribute.
	KindReadOnlyAttribute ErrorKind = "read_only_attribute"

	// KindModelFailure indicates the model's own computation failed.
	KindModelFailure ErrorKind = "model_failure"
)

// Validate checks if the error kind is known.
func (k ErrorKind) Validate() error {
	switch k {
	case KindLifecycle, KindConfiguration, KindStateLoad, KindUnknownVariable,
		KindUnknownAttribute, KindTypeMismatch, KindSizeMismatch, KindIndexOutOfBounds,
		KindTimeBounds, KindUnsupportedOperation, KindUnsupportedGridQuery,
		KindReadOnlyAttribute, KindModelFailure:
		return nil
	default:
		return fmt.Errorf("invalid error kind: %s", k)
	}
}

// ModelError is the single error type returned by Model operations.
// nolint:revive // ModelError mirrors the contract's error taxonomy
type ModelError struct {
	// Kind is the classification of the failure.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Operation is the contract operation that failed.
	Operation string `json:"operation,omitempty"`

	// Variable is the offending variable name, if any.
	Variable string `json:"variable,omitempty"`

	// Attribute is the offending attribute name, if any.
	Attribute string `json:"attribute,omitempty"`

	// State is the lifecycle state the model was in when the error occurred.
	State LifecycleState `json:"state,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context such as offending indices or values.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *ModelError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Kind, e.Message)

	var ctx []string
	if e.Variable != "" {
		ctx = append(ctx, "variable="+e.Variable)
	}
	if e.Attribute != "" {
		ctx = append(ctx, "attribute="+e.Attribute)
	}
	if e.Operation != "" {
		ctx = append(ctx, "operation="+e.Operation)
	}
	if e.State != "" {
		ctx = append(ctx, "state="+string(e.State))
	}
	if len(ctx) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(ctx, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %s", e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ModelError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a ModelError of the same kind, so that
// errors.Is(err, ErrTimeBounds) matches any time-bounds failure.
func (e *ModelError) Is(target error) bool {
	t, ok := target.(*ModelError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for use with errors.Is.
var (
	ErrLifecycle            = &ModelError{Kind: KindLifecycle}
	ErrConfiguration        = &ModelError{Kind: KindConfiguration}
	ErrStateLoad            = &ModelError{Kind: KindStateLoad}
	ErrUnknownVariable      = &ModelError{Kind: KindUnknownVariable}
	ErrUnknownAttribute     = &ModelError{Kind: KindUnknownAttribute}
	ErrTypeMismatch         = &ModelError{Kind: KindTypeMismatch}
	ErrSizeMismatch         = &ModelError{Kind: KindSizeMismatch}
	ErrIndexOutOfBounds     = &ModelError{Kind: KindIndexOutOfBounds}
	ErrTimeBounds           = &ModelError{Kind: KindTimeBounds}
	ErrUnsupportedOperation = &ModelError{Kind: KindUnsupportedOperation}
	ErrUnsupportedGridQuery = &ModelError{Kind: KindUnsupportedGridQuery}
	ErrReadOnlyAttribute    = &ModelError{Kind: KindReadOnlyAttribute}
	ErrModelFailure         = &ModelError{Kind: KindModelFailure}
)

// NewError creates a new error of the given kind.
func NewError(kind ErrorKind, message string, err error) *ModelError {
	return &ModelError{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// NewLifecycleError reports that op is not permitted in state.
func NewLifecycleError(op string, state LifecycleState) *ModelError {
	return &ModelError{
		Kind:      KindLifecycle,
		Message:   fmt.Sprintf("%s is not permitted while %s", op, state),
		Operation: op,
		State:     state,
	}
}

// NewConfigurationError creates a new configuration error.
func NewConfigurationError(message string, err error) *ModelError {
	return NewError(KindConfiguration, message, err)
}

// NewStateLoadError creates a new state load error.
func NewStateLoadError(message string, err error) *ModelError {
	return NewError(KindStateLoad, message, err)
}

// NewUnknownVariableError reports a variable name the model does not expose.
func NewUnknownVariableError(name string) *ModelError {
	return &ModelError{
		Kind:     KindUnknownVariable,
		Message:  fmt.Sprintf("unknown variable %q", name),
		Variable: name,
	}
}

// NewUnknownAttributeError reports an attribute name the model does not declare.
func NewUnknownAttributeError(name string) *ModelError {
	return &ModelError{
		Kind:      KindUnknownAttribute,
		Message:   fmt.Sprintf("unknown attribute %q", name),
		Attribute: name,
	}
}

// NewReadOnlyAttributeError reports an attempt to modify a read-only attribute.
func NewReadOnlyAttributeError(name string) *ModelError {
	return &ModelError{
		Kind:      KindReadOnlyAttribute,
		Message:   fmt.Sprintf("attribute %q is read-only", name),
		Attribute: name,
	}
}

// NewTypeMismatchError reports a buffer whose element type differs from the
// variable's declared type.
func NewTypeMismatchError(name string, want, got ElementType) *ModelError {
	return (&ModelError{
		Kind:     KindTypeMismatch,
		Message:  fmt.Sprintf("variable %q has type %s, buffer has type %s", name, want, got),
		Variable: name,
	}).WithDetail("want", want).WithDetail("got", got)
}

// NewSizeMismatchError reports a buffer or index list of the wrong length.
func NewSizeMismatchError(name string, want, got int) *ModelError {
	return (&ModelError{
		Kind:     KindSizeMismatch,
		Message:  fmt.Sprintf("variable %q expects %d elements, got %d", name, want, got),
		Variable: name,
	}).WithDetail("want", want).WithDetail("got", got)
}

// NewIndexOutOfBoundsError reports a flat index outside [0, size).
func NewIndexOutOfBoundsError(name string, index, size int) *ModelError {
	return (&ModelError{
		Kind:     KindIndexOutOfBounds,
		Message:  fmt.Sprintf("index %d out of bounds for variable %q of size %d", index, name, size),
		Variable: name,
	}).WithDetail("index", index).WithDetail("size", size)
}

// NewTimeBoundsError reports a time value outside the permitted window.
func NewTimeBoundsError(message string, value float64) *ModelError {
	return (&ModelError{
		Kind:    KindTimeBounds,
		Message: message,
	}).WithDetail("time", value)
}

// NewUnsupportedOperationError reports an optional operation the model does
// not implement.
func NewUnsupportedOperationError(op string) *ModelError {
	return &ModelError{
		Kind:      KindUnsupportedOperation,
		Message:   fmt.Sprintf("%s is not supported by this model", op),
		Operation: op,
	}
}

// NewUnsupportedGridQueryError reports a geometry query that does not apply
// to the grid of the named variable.
func NewUnsupportedGridQueryError(op, name string, grid GridType) *ModelError {
	return (&ModelError{
		Kind:      KindUnsupportedGridQuery,
		Message:   fmt.Sprintf("%s does not apply to %s grid of variable %q", op, grid, name),
		Operation: op,
		Variable:  name,
	}).WithDetail("grid_type", grid)
}

// NewModelFailure wraps an error raised by the model's own computation.
func NewModelFailure(message string, err error) *ModelError {
	return NewError(KindModelFailure, message, err)
}

// WithOperation adds operation context to an error.
func (e *ModelError) WithOperation(op string) *ModelError {
	e.Operation = op
	return e
}

// WithVariable adds variable context to an error.
func (e *ModelError) WithVariable(name string) *ModelError {
	e.Variable = name
	return e
}

// WithState adds lifecycle state context to an error.
func (e *ModelError) WithState(state LifecycleState) *ModelError {
	e.State = state
	return e
}

// WithDetail adds a detail field to the error context.
func (e *ModelError) WithDetail(key string, value interface{}) *ModelError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// KindOf returns the kind of the first ModelError in err's chain, or the
// empty kind if there is none.
func KindOf(err error) ErrorKind {
	var e *ModelError
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind returns true if err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// AsModelError returns err as a *ModelError, classifying errors without a
// kind as fallback.
func AsModelError(err error, fallback ErrorKind) *ModelError {
	var e *ModelError
	if errors.As(err, &e) {
		return e
	}
	return NewError(fallback, err.Error(), err)
}
