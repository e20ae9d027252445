package commands

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/bmi/pkg/bmi"
	"github.com/openfroyo/bmi/pkg/host"
	"github.com/openfroyo/bmi/pkg/telemetry"
)

func newRunCommand() *cobra.Command {
	var (
		source      string
		sets        []string
		until       float64
		steps       int
		vars        []string
		checkpoint  string
		restore     string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "run [model[@version]]",
		Short: "Run a model and report its outputs",
		Long: `Initialize a model, advance it and print a summary of its output
variables.

The model runs to --until, or --steps updates, or its end time. An
interrupt stops it after the current update. State can be restored from
and saved to a checkpoint directory when the model supports it.`,
		Example: `  # Run the reference model to its end time
  bmi run

  # Run to t=10 on a 4x4 grid and print var1 in full
  bmi run increment --set shape=4x4 --until 10 --var var1

  # Save a checkpoint, then continue from it
  bmi run increment --until 10 --checkpoint ./ckpt
  bmi run increment --restore ./ckpt

  # Expose Prometheus metrics while running
  bmi run --metrics-addr :9090`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, tel, err := newTelemetry(cmd.Context(), cmd.Root().Version)
			if err != nil {
				return err
			}
			defer shutdownTelemetry(tel)

			if metricsAddr != "" {
				serveCtx, stop := context.WithCancel(ctx)
				defer stop()
				go func() {
					if err := tel.Metrics.Serve(serveCtx, metricsAddr); err != nil {
						log.Error().Err(err).Str("addr", metricsAddr).Msg("Metrics server failed")
					}
				}()
				log.Info().Str("addr", metricsAddr).Msg("Serving metrics")
			}

			reg, err := newRegistry(ctx)
			if err != nil {
				return err
			}
			name, version := modelArg(args)
			model, err := reg.New(ctx, name, version)
			if err != nil {
				return err
			}
			ctx, span := tel.Tracer.StartSpan(ctx, "bmi.run", telemetry.AttrModelName.String(model.ComponentName()))
			defer span.End()
			if id := telemetry.TraceID(ctx); id != "" && traceExporter != "none" {
				log.Debug().Str("trace_id", id).Msg("Tracing run")
			}

			defer func() {
				if err := model.Finalize(ctx); err != nil {
					log.Warn().Err(err).Msg("Finalize failed")
				}
			}()

			if err := applySets(model, sets); err != nil {
				return err
			}
			if err := model.InitializeConfig(ctx, source); err != nil {
				return err
			}
			if err := model.InitializeState(ctx, restore); err != nil {
				return err
			}

			target, err := runTarget(model, cmd.Flags().Changed("until"), until, steps)
			if err != nil {
				return err
			}
			taken, err := advance(ctx, model, target)
			if err != nil {
				return err
			}

			now, _ := model.CurrentTime()
			log.Info().
				Str("model", model.ComponentName()).
				Int("steps", taken).
				Float64("current_time", now).
				Msg("Run finished")

			if checkpoint != "" {
				if err := model.SaveState(ctx, checkpoint); err != nil {
					return err
				}
				log.Info().Str("dir", checkpoint).Msg("Saved checkpoint")
			}

			return printRun(model, vars)
		},
	}

	cmd.Flags().StringVarP(&source, "config", "c", "", "configuration source (file or inline CUE/JSON)")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "attribute override name=value (repeatable)")
	cmd.Flags().Float64Var(&until, "until", 0, "model time to run to (default: end time)")
	cmd.Flags().IntVar(&steps, "steps", 0, "number of updates to run")
	cmd.Flags().StringSliceVar(&vars, "var", nil, "variables to print in full")
	cmd.Flags().StringVar(&checkpoint, "checkpoint", "", "save state to this directory after the run")
	cmd.Flags().StringVar(&restore, "restore", "", "restore state from this checkpoint directory")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.MarkFlagsMutuallyExclusive("until", "steps")

	return cmd
}

// runTarget returns the model time a run should stop at.
func runTarget(m bmi.Model, hasUntil bool, until float64, steps int) (float64, error) {
	if hasUntil {
		return until, nil
	}
	end, err := m.EndTime()
	if err != nil {
		return 0, err
	}
	now, _ := m.CurrentTime()
	dt, _ := m.TimeStep()

	// Stop on the last whole step at or before the end time.
	n := bmi.StepsWithin(now, end, dt)
	if steps > 0 && steps < n {
		n = steps
	}
	return now + float64(n)*dt, nil
}

// advance steps m until it reaches target or ctx is done. It returns the
// number of updates taken.
func advance(ctx context.Context, m bmi.Model, target float64) (int, error) {
	now, err := m.CurrentTime()
	if err != nil {
		return 0, err
	}
	end, _ := m.EndTime()
	dt, _ := m.TimeStep()
	n := bmi.StepsUntil(now, target, dt)

	// UpdateUntil rejects an unreachable target without stepping.
	last := now + float64(n)*dt
	if math.IsNaN(target) || (target < now && !bmi.SameTime(target, now, dt)) ||
		(last > end && !bmi.SameTime(last, end, dt)) {
		return 0, m.UpdateUntil(ctx, target)
	}

	taken := 0
	for taken < n {
		if ctx.Err() != nil {
			log.Warn().Float64("current_time", now).Msg("Run interrupted")
			return taken, nil
		}
		if err := m.Update(ctx); err != nil {
			return taken, err
		}
		taken++
		now, _ = m.CurrentTime()
		log.Debug().Int("step", taken).Float64("current_time", now).Msg("Model updated")
	}
	return taken, nil
}

type runResult struct {
	*modelInfo
	Values map[string][]float64 `json:"values,omitempty"`
}

func printRun(m *host.Instance, vars []string) error {
	info, err := describe(context.Background(), m, true)
	if err != nil {
		return err
	}
	result := runResult{modelInfo: info, Values: map[string][]float64{}}
	for _, name := range vars {
		values, err := bmi.ReadValues(m, name)
		if err != nil {
			return err
		}
		result.Values[name] = toFloat64s(values)
	}

	if jsonOutput {
		return printJSON(result)
	}
	printModelInfo(info)
	for _, name := range sortedKeys(result.Values) {
		v, _ := m.Variable(name)
		fmt.Printf("\n%s %v:\n", name, v.Shape())
		printGrid(result.Values[name], v.Shape())
	}
	return nil
}

// printGrid prints values one row per line for rank-2 shapes and on one
// line otherwise.
func printGrid(values []float64, shape []int) {
	if len(shape) != 2 || shape[0]*shape[1] != len(values) {
		fmt.Printf("  %v\n", values)
		return
	}
	for r := 0; r < shape[0]; r++ {
		fmt.Printf("  %v\n", values[r*shape[1]:(r+1)*shape[1]])
	}
}

type valueStatistics struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

func statistics(v bmi.Values) *valueStatistics {
	values := toFloat64s(v)
	if len(values) == 0 {
		return nil
	}
	s := &valueStatistics{Min: math.Inf(1), Max: math.Inf(-1)}
	sum := 0.0
	for _, x := range values {
		s.Min = math.Min(s.Min, x)
		s.Max = math.Max(s.Max, x)
		sum += x
	}
	s.Mean = sum / float64(len(values))
	return s
}

func toFloat64s(v bmi.Values) []float64 {
	switch b := v.(type) {
	case bmi.Float64Values:
		return b
	case bmi.Float32Values:
		out := make([]float64, len(b))
		for i, x := range b {
			out[i] = float64(x)
		}
		return out
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
