package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls how the process logger is built
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json or console
	File   string // empty means stderr
}

// Logger is a printf-style wrapper around a zap SugaredLogger
type Logger struct {
	base  *zap.Logger
	sugar *zap.SugaredLogger
}

// New builds a logger from options
func New(opts Options) (*Logger, error) {
	var cfg zap.Config
	if opts.Format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	level := zapcore.InfoLevel
	if opts.Level != "" {
		parsed, err := zapcore.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = parsed
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	// Under systemd the journal already captures stderr.
	cfg.OutputPaths = []string{"stderr"}
	if opts.File != "" && os.Getenv("JOURNAL_STREAM") == "" {
		cfg.OutputPaths = []string{opts.File}
	}
	cfg.ErrorOutputPaths = []string{"stderr"}

	z, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return FromZap(z), nil
}

// FromZap wraps an existing zap logger (tests use zaptest/observer cores)
func FromZap(z *zap.Logger) *Logger {
	z = z.WithOptions(zap.AddCallerSkip(1))
	return &Logger{base: z, sugar: z.Sugar()}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return FromZap(zap.NewNop())
}

// Named returns a child logger for a component
func (l *Logger) Named(name string) *Logger {
	z := l.base.Named(name)
	return &Logger{base: z, sugar: z.Sugar()}
}

// With returns a child logger carrying structured fields
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	s := l.sugar.With(keysAndValues...)
	return &Logger{base: s.Desugar(), sugar: s}
}

// Zap exposes the underlying zap logger for libraries that want one
func (l *Logger) Zap() *zap.Logger {
	return l.base.WithOptions(zap.AddCallerSkip(-1))
}

// Sync flushes buffered entries
func (l *Logger) Sync() {
	_ = l.base.Sync()
}

// Info logs an informational message
func (l *Logger) Info(message string, args ...interface{}) {
	l.sugar.Infof(message, args...)
}

// Warning logs a warning message
func (l *Logger) Warning(message string, args ...interface{}) {
	l.sugar.Warnf(message, args...)
}

// Error logs an error message
func (l *Logger) Error(message string, args ...interface{}) {
	l.sugar.Errorf(message, args...)
}

// Success logs a completed operation at info level
func (l *Logger) Success(message string, args ...interface{}) {
	l.sugar.With("outcome", "success").Infof(message, args...)
}

// Debug logs a debug message
func (l *Logger) Debug(message string, args ...interface{}) {
	l.sugar.Debugf(message, args...)
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = mustDefault()
)

func mustDefault() *Logger {
	l, err := New(Options{Level: "info", Format: "json"})
	if err != nil {
		return Nop()
	}
	return l
}

// Init replaces the process-wide logger
func Init(opts Options) error {
	l, err := New(opts)
	if err != nil {
		return err
	}
	SetDefault(l)
	return nil
}

// SetDefault swaps the process-wide logger
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// Default returns the process-wide logger
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// Named returns a component logger derived from the default logger
func Named(name string) *Logger {
	return Default().Named(name)
}

// Sync flushes the default logger
func Sync() {
	Default().Sync()
}

// Info logs an informational message using the default logger
func Info(message string, args ...interface{}) {
	Default().Info(message, args...)
}

// Warning logs a warning message using the default logger
func Warning(message string, args ...interface{}) {
	Default().Warning(message, args...)
}

// Error logs an error message using the default logger
func Error(message string, args ...interface{}) {
	Default().Error(message, args...)
}

// Success logs a success message using the default logger
func Success(message string, args ...interface{}) {
	Default().Success(message, args...)
}

// Debug logs a debug message using the default logger
func Debug(message string, args ...interface{}) {
	Default().Debug(message, args...)
}
