package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

// CUEParser parses CUE (and JSON, which is valid CUE) configuration sources.
// A cue.Context is not safe for concurrent use, so parses are serialized.
type CUEParser struct {
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
}

// NewCUEParser creates a new CUE parser.
func NewCUEParser() *CUEParser {
	ctx := cuecontext.New()
	schema := ctx.CompileString(modelConfigSchema, cue.Filename("schema.cue")).
		LookupPath(cue.ParsePath("#ModelConfig"))
	return &CUEParser{
		ctx:    ctx,
		schema: schema,
	}
}

// ParseFile parses a configuration file.
func (cp *CUEParser) ParseFile(ctx context.Context, path string) (*ModelConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration %s: %w", path, err)
	}
	return cp.parse(string(content), path)
}

// ParseInline parses inline CUE content.
func (cp *CUEParser) ParseInline(ctx context.Context, content string) (*ModelConfig, error) {
	return cp.parse(content, "inline")
}

func (cp *CUEParser) parse(content, filename string) (*ModelConfig, error) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	val := cp.ctx.CompileString(content, cue.Filename(filename))
	if err := val.Err(); err != nil {
		return nil, cp.convertCUEErrors(err)
	}

	unified := cp.schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, cp.convertCUEErrors(err)
	}

	var cfg ModelConfig
	if err := unified.Decode(&cfg); err != nil {
		return nil, ValidationErrors{{File: filename, Message: fmt.Sprintf("failed to decode configuration: %v", err)}}
	}
	cfg.Source = filename
	cfg.LoadedAt = time.Now()
	return &cfg, nil
}

// convertCUEErrors converts CUE errors to ValidationErrors.
func (cp *CUEParser) convertCUEErrors(err error) ValidationErrors {
	var out ValidationErrors
	for _, e := range errors.Errors(err) {
		ve := ValidationError{
			Path:    pathString(e.Path()),
			Message: errors.Details(e, nil),
		}
		if pos := errors.Positions(e); len(pos) > 0 {
			ve.File = pos[0].Filename()
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}
		out = append(out, ve)
	}
	return out
}

func pathString(path []string) string {
	s := ""
	for i, p := range path {
		if i > 0 {
			s += "."
		}
		s += p
	}
	return s
}
