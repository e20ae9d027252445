// Package conformance runs behavioral checks against any bmi.Model.
//
// Every scenario gets a fresh model from the Factory and finalizes it when
// done, so scenarios never observe each other's state. The checks only use
// the bmi.Model contract; they hold for every conforming model regardless of
// its variables or grids.
//
//	report := conformance.Run(ctx, conformance.FromRegistry(reg, "increment", ""), nil)
//	if !report.Passed() {
//		for _, r := range report.Failures() {
//			fmt.Println(r.Scenario, r.Message)
//		}
//	}
package conformance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/bmi/pkg/bmi"
	"github.com/openfroyo/bmi/pkg/host"
)

// Factory creates a fresh model in the Created state.
type Factory func(ctx context.Context) (bmi.Model, error)

// FromRegistry returns a Factory that creates name@version from reg.
func FromRegistry(reg *host.Registry, name, version string) Factory {
	return func(ctx context.Context) (bmi.Model, error) {
		m, err := reg.New(ctx, name, version)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

// FromKernel returns a Factory that wraps kernels from factory in a
// host.Instance.
func FromKernel(factory host.Factory, cfg *host.InstanceConfig) Factory {
	return func(ctx context.Context) (bmi.Model, error) {
		k, err := factory(ctx)
		if err != nil {
			return nil, err
		}
		m, err := host.NewInstance(k, cfg)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

// Options configures a conformance run.
type Options struct {
	// Source is passed to InitializeConfig. Default is "" (model defaults).
	Source string

	// MaxSteps bounds the number of updates a scenario may take to reach the
	// end time. Scenarios that need more are skipped. Default is 10000.
	MaxSteps int

	// TempDir is where checkpoint scenarios write saved state. Default is a
	// new directory under os.TempDir, removed after the run.
	TempDir string

	// Skip lists scenario names not to run.
	Skip []string

	// Logger receives one line per scenario. Default is zerolog.Nop().
	Logger *zerolog.Logger
}

// Status is the outcome of one scenario.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusSkip Status = "skip"
)

// Result is the outcome of one scenario.
type Result struct {
	Scenario string        `json:"scenario"`
	Status   Status        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Report collects the results of a run.
type Report struct {
	Model     string        `json:"model"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Results   []Result      `json:"results"`
}

// Passed returns true if no scenario failed.
func (r *Report) Passed() bool {
	return len(r.Failures()) == 0
}

// Failures returns the failed scenarios.
func (r *Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Status == StatusFail {
			out = append(out, res)
		}
	}
	return out
}

// Result returns the result of the named scenario.
func (r *Report) Result(scenario string) (Result, bool) {
	for _, res := range r.Results {
		if res.Scenario == scenario {
			return res, true
		}
	}
	return Result{}, false
}

// Summary returns "N passed, N failed, N skipped".
func (r *Report) Summary() string {
	counts := map[Status]int{}
	for _, res := range r.Results {
		counts[res.Status]++
	}
	return fmt.Sprintf("%d passed, %d failed, %d skipped",
		counts[StatusPass], counts[StatusFail], counts[StatusSkip])
}

// Scenarios returns the names of all scenarios in run order.
func Scenarios() []string {
	names := make([]string, len(scenarios))
	for i, s := range scenarios {
		names[i] = s.name
	}
	return names
}

// errSkip marks a scenario that does not apply to the model under test.
type errSkip struct{ reason string }

func (e errSkip) Error() string { return e.reason }

func skip(format string, args ...interface{}) error {
	return errSkip{reason: fmt.Sprintf(format, args...)}
}

// Run executes every scenario against models from factory. A nil opts uses
// the defaults.
func Run(ctx context.Context, factory Factory, opts *Options) *Report {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.MaxSteps <= 0 {
		o.MaxSteps = 10000
	}
	logger := zerolog.Nop()
	if o.Logger != nil {
		logger = *o.Logger
	}

	report := &Report{StartedAt: time.Now()}

	if o.TempDir == "" {
		dir, err := os.MkdirTemp("", "bmi-conformance-")
		if err != nil {
			report.Results = append(report.Results, Result{
				Scenario: "setup",
				Status:   StatusFail,
				Message:  fmt.Sprintf("failed to create temp dir: %v", err),
			})
			return report
		}
		defer os.RemoveAll(dir)
		o.TempDir = dir
	}

	skipped := make(map[string]bool, len(o.Skip))
	for _, name := range o.Skip {
		skipped[name] = true
	}

	for _, s := range scenarios {
		if skipped[s.name] {
			report.Results = append(report.Results, Result{Scenario: s.name, Status: StatusSkip, Message: "skipped by options"})
			continue
		}

		h := &harness{factory: factory, opts: o}
		start := time.Now()
		err := h.run(ctx, s.fn)
		res := Result{Scenario: s.name, Status: StatusPass, Duration: time.Since(start)}

		var se errSkip
		switch {
		case errors.As(err, &se):
			res.Status = StatusSkip
			res.Message = se.reason
		case err != nil:
			res.Status = StatusFail
			res.Message = err.Error()
		}
		if report.Model == "" {
			report.Model = h.component
		}
		report.Results = append(report.Results, res)

		logger.Debug().
			Str("scenario", s.name).
			Str("status", string(res.Status)).
			Str("message", res.Message).
			Dur("duration", res.Duration).
			Msg("Conformance scenario finished")
	}

	report.Duration = time.Since(report.StartedAt)
	logger.Info().
		Str("model", report.Model).
		Str("summary", report.Summary()).
		Msg("Conformance run finished")
	return report
}

// harness hands out fresh models to one scenario and finalizes them all.
type harness struct {
	factory   Factory
	opts      Options
	models    []bmi.Model
	component string
}

func (h *harness) run(ctx context.Context, fn func(context.Context, *harness) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		for _, m := range h.models {
			if ferr := m.Finalize(ctx); ferr != nil && err == nil {
				err = fmt.Errorf("Finalize failed: %w", ferr)
			}
		}
	}()
	return fn(ctx, h)
}

// fresh returns a new model in the Created state.
func (h *harness) fresh(ctx context.Context) (bmi.Model, error) {
	m, err := h.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("factory failed: %w", err)
	}
	h.models = append(h.models, m)
	h.component = m.ComponentName()
	if s := m.State(); s != bmi.StateCreated {
		return nil, fmt.Errorf("new model is %s, want created", s)
	}
	return m, nil
}

// initialized returns a new model in the Initialized state.
func (h *harness) initialized(ctx context.Context) (bmi.Model, error) {
	m, err := h.fresh(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.Initialize(ctx, h.opts.Source); err != nil {
		return nil, fmt.Errorf("Initialize(%q) failed: %w", h.opts.Source, err)
	}
	if s := m.State(); s != bmi.StateInitialized {
		return nil, fmt.Errorf("state after Initialize is %s, want initialized", s)
	}
	return m, nil
}

// expectKind checks that err carries kind.
func expectKind(what string, err error, kind bmi.ErrorKind) error {
	if err == nil {
		return fmt.Errorf("%s succeeded, want %s error", what, kind)
	}
	if got := bmi.KindOf(err); got != kind {
		return fmt.Errorf("%s failed with %s (%v), want %s", what, got, err, kind)
	}
	return nil
}

// joinErrs returns nil for no errors and otherwise one error listing all.
func joinErrs(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return errors.New(strings.Join(msgs, "; "))
}
