package commands

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/bmi/pkg/host"
)

func newModelsCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List registered models",
		Long: `List the built-in models and every WebAssembly model found under
--models-dir.

With --watch the command keeps running and reports models as their
manifests are added, changed or removed.`,
		Example: `  # List models
  bmi models

  # List models from a directory as JSON
  bmi models --models-dir ./models --json

  # Follow manifest changes
  bmi models --models-dir ./models --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			reg, err := newRegistry(ctx)
			if err != nil {
				return err
			}

			if err := printModels(reg.List()); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			if modelsDir == "" {
				return fmt.Errorf("--watch requires --models-dir")
			}

			err = reg.Watch(ctx, modelsDir, func(c host.RegistryChange) {
				ev := log.Info()
				if c.Err != nil {
					ev = log.Warn().Err(c.Err)
				}
				ev.Str("model", c.Key).
					Str("change", c.Change).
					Str("manifest", c.Manifest).
					Msg("Registry changed")
			})
			if err != nil {
				return err
			}
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "watch --models-dir for manifest changes")

	return cmd
}

func printModels(models []host.Manifest) error {
	if jsonOutput {
		return printJSON(models)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tVERSION\tCAPABILITIES\tSOURCE\tDESCRIPTION")
	for _, m := range models {
		caps := make([]string, len(m.Capabilities))
		for i, c := range m.Capabilities {
			caps[i] = string(c)
		}
		source := "builtin"
		if m.WasmPath != "" {
			source = m.WasmPath
			if !m.Verified {
				source += " (unverified)"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.Name, m.Version, strings.Join(caps, ","), source, m.Description)
	}
	return w.Flush()
}
