package commands

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/bmi/pkg/config"
)

func newValidateCommand() *cobra.Command {
	var model string

	cmd := &cobra.Command{
		Use:   "validate <source>",
		Short: "Validate a model configuration source",
		Long: `Decode and validate a configuration source.

Sources can be CUE or JSON (.cue, .json, or inline text starting with "{"),
YAML (.yaml, .yml) or Starlark (.star). With --model the source is also
applied to a fresh instance of that model, which checks attribute names,
policies and model-specific constraints.`,
		Example: `  # Check syntax and field constraints
  bmi validate model.yaml

  # Check an inline source against the reference model
  bmi validate '{"end_time": 5, "attributes": {"shape": "3x3"}}' --model increment`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			source := args[0]

			cfg, err := config.NewLoader().Load(ctx, source)
			if err != nil {
				var verrs config.ValidationErrors
				if errors.As(err, &verrs) && !jsonOutput {
					for _, e := range verrs {
						fmt.Println(e.String())
					}
				}
				return err
			}

			if model != "" {
				reg, err := newRegistry(ctx)
				if err != nil {
					return err
				}
				name, version := parseModelRef(model)
				inst, err := reg.New(ctx, name, version)
				if err != nil {
					return err
				}
				defer inst.Finalize(ctx)
				if err := inst.InitializeConfig(ctx, source); err != nil {
					return err
				}
				log.Debug().Str("model", inst.ComponentName()).Msg("Configuration accepted by model")
			}

			if jsonOutput {
				return printJSON(cfg)
			}
			fmt.Printf("%s: valid\n", source)
			return nil
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "also apply the source to this model[@version]")

	return cmd
}
