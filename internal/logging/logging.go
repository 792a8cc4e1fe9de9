// Package logging builds the shared zap logger.
//
// Components receive a plain *zap.Logger; nothing in the repo depends
// on a custom logging abstraction. New composes a stdout core with an
// optional OTLP bridge core so log entries reach the same collector as
// traces and metrics when telemetry is enabled.
package logging

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	otellog "go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const bridgeName = "counterpartyd"

// Config holds logger construction options.
type Config struct {
	// Level is the minimum enabled level: debug, info, warn or error.
	// Empty means info.
	Level string

	// Format selects the encoder: json or console. Empty means json.
	Format string

	// Caller annotates entries with file:line.
	Caller bool

	// StacktraceLevel attaches stacktraces at this level and above.
	// Empty disables them.
	StacktraceLevel string

	// Stderr routes entries to stderr instead of stdout. The MCP stdio
	// transport owns stdout.
	Stderr bool

	// Fields are constant fields stamped on every entry.
	Fields map[string]string
}

// New builds the process logger. A non-nil otelProvider tees every
// entry to the OTLP log bridge in addition to stdout.
func New(cfg Config, otelProvider otellog.LoggerProvider) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	out := os.Stdout
	if cfg.Stderr {
		out = os.Stderr
	}

	cores := []zapcore.Core{
		zapcore.NewCore(newEncoder(cfg.Format), zapcore.AddSync(out), level),
	}
	if otelProvider != nil {
		cores = append(cores, otelzap.NewCore(bridgeName,
			otelzap.WithLoggerProvider(otelProvider),
		))
	}

	core := cores[0]
	if len(cores) > 1 {
		core = zapcore.NewTee(cores...)
	}

	var opts []zap.Option
	if cfg.Caller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.StacktraceLevel != "" {
		stackLevel, err := zapcore.ParseLevel(cfg.StacktraceLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid stacktrace level %q: %w", cfg.StacktraceLevel, err)
		}
		opts = append(opts, zap.AddStacktrace(stackLevel))
	}

	logger := zap.New(core, opts...)

	if len(cfg.Fields) > 0 {
		fields := make([]zap.Field, 0, len(cfg.Fields))
		for k, v := range cfg.Fields {
			fields = append(fields, zap.String(k, v))
		}
		logger = logger.With(fields...)
	}

	return logger, nil
}

// newEncoder creates a JSON or console encoder.
func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if format == "console" {
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}

// Sync flushes buffered entries. Syncing stdout returns EINVAL or
// ENOTTY on Linux; those are ignored.
func Sync(logger *zap.Logger) error {
	err := logger.Sync()
	if err != nil && isStdoutSyncError(err) {
		return nil
	}
	return err
}

// isStdoutSyncError checks if error is a harmless stdout/stderr sync
// error.
func isStdoutSyncError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EINVAL || errno == syscall.ENOTTY
	}
	return false
}
