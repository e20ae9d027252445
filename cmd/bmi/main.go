package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openfroyo/bmi/cmd/bmi/commands"
	"github.com/openfroyo/bmi/pkg/telemetry"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	setupLogging(os.Getenv("LOG_LEVEL"), os.Args[1:])

	// Cancelling ctx stops a run between steps.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received interrupt signal, stopping")
		cancel()
	}()

	if err := commands.Execute(ctx, Version, Commit, BuildDate); err != nil {
		log.Error().Err(err).Msg("Command execution failed")
		os.Exit(1)
	}
}

// setupLogging sends console logs to stderr at the LOG_LEVEL level, or at
// debug when --verbose is among args.
func setupLogging(level string, args []string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(logLevel(level, args))
}

func logLevel(level string, args []string) zerolog.Level {
	if verboseRequested(args) {
		return zerolog.DebugLevel
	}
	return telemetry.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
}

// verboseRequested scans args for -v or --verbose ahead of flag parsing,
// stopping at "--".
func verboseRequested(args []string) bool {
	for _, arg := range args {
		if arg == "--" {
			return false
		}
		name, value, hasValue := strings.Cut(arg, "=")
		if name != "-v" && name != "--verbose" {
			continue
		}
		if !hasValue {
			return true
		}
		on, err := strconv.ParseBool(value)
		return err == nil && on
	}
	return false
}
