package telemetry

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with model-specific fields.
type Logger struct {
	zlog   zerolog.Logger
	config LoggingConfig
}

type loggerContextKey struct{}

// NewLogger creates a new logger with the given configuration.
func NewLogger(cfg LoggingConfig) (*Logger, error) {
	var writer io.Writer
	switch cfg.Output {
	case "", "stderr":
		writer = os.Stderr
	case "stdout":
		writer = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, err
		}
		writer = file
	}

	return NewLoggerWithWriter(cfg, writer), nil
}

// NewLoggerWithWriter creates a logger writing to w.
func NewLoggerWithWriter(cfg LoggingConfig, w io.Writer) *Logger {
	timeFormat := time.RFC3339
	if cfg.TimeFormat == "unix" {
		timeFormat = zerolog.TimeFormatUnix
	}
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: timeFormat}
	}

	zctx := zerolog.New(w).Level(ParseLevel(cfg.Level)).With().Timestamp()
	if cfg.EnableCaller {
		zctx = zctx.Caller()
	}
	return &Logger{zlog: zctx.Logger(), config: cfg}
}

// NopLogger returns a logger that discards everything.
func NopLogger() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// WithContext adds the logger to the context.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, l)
}

// FromContext retrieves the logger from the context, or a no-op logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(*Logger); ok {
		return l
	}
	return NopLogger()
}

// WithModel adds model identification to the logger.
func (l *Logger) WithModel(component, version string) *Logger {
	zctx := l.zlog.With().Str("model", component)
	if version != "" {
		zctx = zctx.Str("model_version", version)
	}
	return &Logger{zlog: zctx.Logger(), config: l.config}
}

// Info logs an info-level message.
func (l *Logger) Info(msg string) {
	l.zlog.Info().Msg(msg)
}

// Operation logs a finished model operation: failures at warn level with
// their error kind, successes at debug level.
func (l *Logger) Operation(operation string, elapsed time.Duration, kind string, err error) {
	if err != nil {
		l.zlog.Warn().
			Str("operation", operation).
			Str("kind", kind).
			Dur("elapsed", elapsed).
			Err(err).
			Msg("Model operation failed")
		return
	}
	l.zlog.Debug().
		Str("operation", operation).
		Dur("elapsed", elapsed).
		Msg("Model operation finished")
}

// Transition logs a lifecycle state change.
func (l *Logger) Transition(from, to string) {
	l.zlog.Debug().Str("from", from).Str("to", to).Msg("Lifecycle state changed")
}

// ParseLevel converts a level name to a zerolog.Level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	if level == "" {
		return zerolog.InfoLevel
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}
