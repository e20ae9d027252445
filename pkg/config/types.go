package config

import (
	"fmt"
	"strings"
	"time"
)

// ModelConfig is the decoded content of a model configuration source.
// Unset fields leave the model's defaults in place.
type ModelConfig struct {
	// Model optionally names the model the configuration is written for.
	Model string `json:"model,omitempty" yaml:"model,omitempty" validate:"omitempty,max=128"`

	// StartTime overrides the model's start time.
	StartTime *float64 `json:"start_time,omitempty" yaml:"start_time,omitempty"`

	// EndTime overrides the model's end time.
	EndTime *float64 `json:"end_time,omitempty" yaml:"end_time,omitempty"`

	// TimeStep requests a time step; models with a fixed step reject other values.
	TimeStep *float64 `json:"time_step,omitempty" yaml:"time_step,omitempty" validate:"omitempty,gt=0"`

	// TimeUnits overrides the unit of the model clock.
	TimeUnits string `json:"time_units,omitempty" yaml:"time_units,omitempty" validate:"omitempty,oneof=s seconds min minutes h hours d days y years"`

	// Attributes sets model attributes by name.
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty" validate:"omitempty,dive,keys,required,endkeys"`

	// Source is the path or "inline" the configuration was loaded from.
	Source string `json:"-" yaml:"-"`

	// LoadedAt is when the configuration was decoded.
	LoadedAt time.Time `json:"-" yaml:"-"`
}

// Attribute returns the configured value of an attribute.
func (c *ModelConfig) Attribute(name string) (string, bool) {
	if c == nil || c.Attributes == nil {
		return "", false
	}
	v, ok := c.Attributes[name]
	return v, ok
}

// ValidationError describes one problem found in a configuration source.
type ValidationError struct {
	// File is the source file, if known.
	File string `json:"file,omitempty"`

	// Line is the 1-based line number, if known.
	Line int `json:"line,omitempty"`

	// Column is the 1-based column number, if known.
	Column int `json:"column,omitempty"`

	// Path is the field path, if known.
	Path string `json:"path,omitempty"`

	// Message describes the problem.
	Message string `json:"message"`
}

// String formats the error as file:line:col: path: message.
func (e ValidationError) String() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// ValidationErrors is returned when a configuration source is malformed.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.String()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// StarlarkResult is the outcome of evaluating a Starlark script.
type StarlarkResult struct {
	// Output holds the script's exported globals.
	Output map[string]interface{}

	// ExecutionTime is how long evaluation took.
	ExecutionTime time.Duration
}
