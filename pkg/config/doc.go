// Package config loads model configuration sources.
//
// A configuration source overrides a model's clock and attributes before
// the model is initialized. Four formats are accepted and decode to the
// same ModelConfig:
//
//	# model.cue (or model.json)
//	start_time: 1.0
//	end_time:   20.0
//	attributes: increment: "2.0"
//
//	# model.yaml
//	start_time: 1.0
//	end_time: 20.0
//	attributes:
//	  increment: "2.0"
//
//	# model.star
//	start_time = 1.0
//	end_time = start_time + 19
//	attributes = {"increment": 2.0}
//
// CUE sources are unified with a closed schema, YAML sources reject unknown
// fields, and Starlark scripts export their top-level globals (names
// beginning with an underscore are private). Every decoded configuration is
// then validated with go-playground/validator struct tags.
//
// Malformed sources produce ValidationErrors carrying file and line
// positions where the format reports them.
package config
