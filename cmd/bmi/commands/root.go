package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/bmi/pkg/host"
	"github.com/openfroyo/bmi/pkg/models/increment"
	"github.com/openfroyo/bmi/pkg/telemetry"
)

var (
	// Global flags
	modelsDir     string
	verbose       bool
	jsonOutput    bool
	traceExporter string
	otlpEndpoint  string
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bmi",
		Short: "Drive simulation models through the Basic Model Interface",
		Long: `bmi runs, inspects and checks simulation models that implement the
Basic Model Interface.

Models come from two places:
  - built in: increment@1.0.0, the reference model
  - WebAssembly: every <dir>/<model>/manifest.yaml under --models-dir

A model is named as name or name@version, where version is an exact
version, latest, ~x.y or ^x.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&modelsDir, "models-dir", os.Getenv("BMI_MODELS_DIR"), "directory of WebAssembly model manifests")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().StringVar(&traceExporter, "trace", "none", "trace exporter (none, stdout, otlp)")
	rootCmd.PersistentFlags().StringVar(&otlpEndpoint, "otlp-endpoint", "", "OTLP collector endpoint for --trace=otlp")

	rootCmd.AddCommand(newModelsCommand())
	rootCmd.AddCommand(newInspectCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newConformCommand())
	rootCmd.AddCommand(newValidateCommand())

	return rootCmd
}

// newTelemetry builds the telemetry stack for one command invocation and
// attaches it to ctx.
func newTelemetry(ctx context.Context, version string) (context.Context, *telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.Logging.Level = zerolog.GlobalLevel().String()
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if traceExporter != "" && traceExporter != "none" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = traceExporter
		cfg.Tracing.Endpoint = otlpEndpoint
	}

	t, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return ctx, nil, fmt.Errorf("failed to set up telemetry: %w", err)
	}
	return t.WithContext(ctx), t, nil
}

func shutdownTelemetry(t *telemetry.Telemetry) {
	if err := t.Shutdown(context.Background()); err != nil {
		log.Warn().Err(err).Msg("Telemetry shutdown failed")
	}
}

// newRegistry returns a registry holding the built-in models and every
// model under --models-dir.
func newRegistry(ctx context.Context) (*host.Registry, error) {
	logger := log.Logger
	reg := host.NewRegistry(&host.RegistryConfig{
		BaseDir: modelsDir,
		Logger:  &logger,
	})
	if err := increment.Register(reg); err != nil {
		return nil, err
	}
	if modelsDir != "" {
		if err := reg.ScanDirectory(ctx, modelsDir); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// parseModelRef splits name@version.
func parseModelRef(ref string) (name, version string) {
	name, version, _ = strings.Cut(ref, "@")
	return name, version
}

// modelArg returns the model named by args, defaulting to the reference model.
func modelArg(args []string) (name, version string) {
	if len(args) == 0 {
		return increment.Name, ""
	}
	return parseModelRef(args[0])
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
