// Package logger provides structured logging utilities.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a wrapper around zap.Logger.
type Logger struct {
	*zap.Logger
}

// Format selects the log encoding.
type Format string

const (
	// FormatJSON writes one JSON object per line. Production default.
	FormatJSON Format = "json"
	// FormatText writes colourless human-readable lines.
	FormatText Format = "text"
	// FormatPretty writes coloured development output with stack traces.
	FormatPretty Format = "pretty"
)

// Options configures New.
type Options struct {
	Level  string
	Format Format
	// Output is a zap sink path. Defaults to stdout; the console command
	// uses stderr so the chat owns stdout.
	Output string
}

// New builds a logger from opts. An unknown level is an error rather than
// a silent fallback.
func New(opts Options) (*Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, fmt.Errorf("log level %q: %w", opts.Level, err)
		}
	}
	output := opts.Output
	if output == "" {
		output = "stdout"
	}

	var config zap.Config
	switch opts.Format {
	case FormatJSON, "":
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "ts"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		config.EncoderConfig.EncodeDuration = zapcore.SecondsDurationEncoder
		config.Sampling = nil
	case FormatText:
		config = zap.NewDevelopmentConfig()
		config.DisableStacktrace = true
	case FormatPretty:
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
	config.Level = zap.NewAtomicLevelAt(level)
	config.OutputPaths = []string{output}
	config.ErrorOutputPaths = []string{"stderr"}

	l, err := config.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: l}, nil
}

// NewNop returns a logger that discards everything. Used by tests.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// With creates a child logger with additional fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// Named creates a child logger for a component.
func (l *Logger) Named(component string) *Logger {
	return &Logger{Logger: l.Logger.Named(component)}
}

// WithCustomer creates a child logger scoped to one customer's conversation.
func (l *Logger) WithCustomer(customerID, conversationID string) *Logger {
	return l.With(
		zap.String("customer_id", customerID),
		zap.String("conversation_id", conversationID),
	)
}

// SetGlobal installs l as zap's global logger, for libraries that log
// through zap.L().
func SetGlobal(l *Logger) {
	zap.ReplaceGlobals(l.Logger)
}
