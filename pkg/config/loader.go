package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Loader decodes and validates model configuration sources.
//
// A source is one of:
//   - "" for no configuration (all model defaults)
//   - inline CUE or JSON starting with "{"
//   - a path ending in .cue, .json, .yaml, .yml or .star
type Loader struct {
	cue       *CUEParser
	starlark  *StarlarkEvaluator
	validator *validator.Validate
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		cue:       NewCUEParser(),
		starlark:  NewStarlarkEvaluator(10 * time.Second),
		validator: validator.New(),
	}
}

// Load reads, decodes and validates source.
func (l *Loader) Load(ctx context.Context, source string) (*ModelConfig, error) {
	trimmed := strings.TrimSpace(source)
	if trimmed == "" {
		return &ModelConfig{Source: "", LoadedAt: time.Now()}, nil
	}

	var (
		cfg *ModelConfig
		err error
	)
	switch {
	case strings.HasPrefix(trimmed, "{"):
		cfg, err = l.cue.ParseInline(ctx, trimmed)
	default:
		cfg, err = l.loadFile(ctx, source)
	}
	if err != nil {
		return nil, err
	}

	if err := l.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and the start/end ordering.
func (l *Loader) Validate(cfg *ModelConfig) error {
	var out ValidationErrors

	if err := l.validator.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			out = append(out, ValidationError{
				File:    cfg.Source,
				Path:    fe.Namespace(),
				Message: fmt.Sprintf("failed on '%s' constraint", fe.Tag()),
			})
		}
	}

	if cfg.StartTime != nil && cfg.EndTime != nil && *cfg.EndTime < *cfg.StartTime {
		out = append(out, ValidationError{
			File:    cfg.Source,
			Path:    "end_time",
			Message: fmt.Sprintf("end time %g is before start time %g", *cfg.EndTime, *cfg.StartTime),
		})
	}

	if len(out) > 0 {
		return out
	}
	return nil
}

func (l *Loader) loadFile(ctx context.Context, path string) (*ModelConfig, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("configuration source %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".cue", ".json":
		return l.cue.ParseFile(ctx, path)
	case ".yaml", ".yml":
		return l.loadYAML(path)
	case ".star":
		return l.loadStarlark(ctx, path)
	default:
		return nil, fmt.Errorf("unsupported configuration format %q for %s", ext, path)
	}
}

func (l *Loader) loadYAML(path string) (*ModelConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration %s: %w", path, err)
	}

	var cfg ModelConfig
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, ValidationErrors{{File: path, Message: err.Error()}}
	}
	cfg.Source = path
	cfg.LoadedAt = time.Now()
	return &cfg, nil
}

func (l *Loader) loadStarlark(ctx context.Context, path string) (*ModelConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration %s: %w", path, err)
	}

	result, err := l.starlark.Evaluate(ctx, filepath.Base(path), string(content), nil)
	if err != nil {
		return nil, ValidationErrors{{File: path, Message: err.Error()}}
	}

	if attrs, ok := result.Output["attributes"].(map[string]interface{}); ok {
		for k, v := range attrs {
			attrs[k] = fmt.Sprint(v)
		}
	}

	// Round-trip through JSON so the script's globals decode with the same
	// field names as every other format.
	data, err := json.Marshal(result.Output)
	if err != nil {
		return nil, fmt.Errorf("failed to encode starlark output: %w", err)
	}
	var cfg ModelConfig
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, ValidationErrors{{File: path, Message: err.Error()}}
	}
	cfg.Source = path
	cfg.LoadedAt = time.Now()
	return &cfg, nil
}

var defaultLoader = NewLoader()

// Load reads a configuration source with a shared Loader.
func Load(ctx context.Context, source string) (*ModelConfig, error) {
	return defaultLoader.Load(ctx, source)
}
