package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/bmi/pkg/conformance"
)

func newConformCommand() *cobra.Command {
	var (
		source   string
		skip     []string
		maxSteps int
	)

	cmd := &cobra.Command{
		Use:   "conform [model[@version]]",
		Short: "Check a model against the contract",
		Long: `Run the conformance scenarios against a model. Each scenario creates
a fresh instance, so the model's factory is called many times.

Scenarios:
  lifecycle_guards    operations outside their legal states fail
  unknown_variable    unknown names fail every accessor
  attributes          attributes are readable and unknown names fail
  metadata            sizes, bytes, ranks and roles are consistent
  grid_queries        geometry queries apply only to matching grid types
  update_until        UpdateUntil equals repeated Update
  update_past_end     updates past the end time fail and change nothing
  indexed_round_trip  indexed writes read back and leave neighbours alone
  access_violations   size, type and index errors, with no partial writes
  capabilities        optional operations match the reported capabilities
  finalize            Finalize is idempotent and ends the lifecycle

The command fails if any scenario fails.`,
		Example: `  # Check the reference model
  bmi conform

  # Check a WebAssembly model with its configuration
  bmi conform decay@^1 --models-dir ./models --config decay.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			reg, err := newRegistry(ctx)
			if err != nil {
				return err
			}
			name, version := modelArg(args)
			if _, err := reg.Resolve(name, version); err != nil {
				return err
			}

			logger := log.Logger
			report := conformance.Run(ctx, conformance.FromRegistry(reg, name, version), &conformance.Options{
				Source:   source,
				Skip:     skip,
				MaxSteps: maxSteps,
				Logger:   &logger,
			})

			if jsonOutput {
				if err := printJSON(report); err != nil {
					return err
				}
			} else {
				printReport(report)
			}

			if !report.Passed() {
				return fmt.Errorf("%s: %s", report.Model, report.Summary())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&source, "config", "c", "", "configuration source for every instance")
	cmd.Flags().StringSliceVar(&skip, "skip", nil, "scenarios to skip")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 10000, "skip scenarios needing more updates than this")

	return cmd
}

func printReport(report *conformance.Report) {
	fmt.Printf("Model: %s\n\n", report.Model)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCENARIO\tSTATUS\tDURATION\tMESSAGE")
	for _, r := range report.Results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Scenario, r.Status, r.Duration.Round(time.Microsecond), r.Message)
	}
	_ = w.Flush()
	fmt.Printf("\n%s\n", report.Summary())
}
