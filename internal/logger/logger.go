// Package logger provides process-wide logging for calsync.
// Messages are printf-formatted and written through log/slog. Debug
// messages are only emitted in verbose mode; everything else is always
// emitted.
//
// Every record is also handed to the global OpenTelemetry LoggerProvider,
// which exports it once telemetry is set up and drops it otherwise.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"gopkg.in/natefinch/lumberjack.v2"
)

const scopeName = "github.com/custodia-labs/calsync"

// Options configures the process logger.
type Options struct {
	// Verbose enables debug messages.
	Verbose bool

	// JSON selects the JSON handler instead of text.
	JSON bool

	// File, when set, writes logs to a rotating file instead of stderr.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	mu      sync.RWMutex
	verbose bool
	asJSON  bool
	closer  io.Closer
	level   = new(slog.LevelVar)

	loggerProvider = func() otellog.LoggerProvider { return global.GetLoggerProvider() }

	log = newLogger(os.Stderr, false)
)

func newLogger(w io.Writer, asJSON bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var local slog.Handler = slog.NewTextHandler(w, opts)
	if asJSON {
		local = slog.NewJSONHandler(w, opts)
	}
	bridge := otelslog.NewHandler(scopeName, otelslog.WithLoggerProvider(loggerProvider()))
	return slog.New(&fanout{level: level, handlers: []slog.Handler{local, bridge}})
}

// Configure replaces the process logger.
// The previous rotating file, if any, is closed.
func Configure(opts Options) {
	var w io.Writer = os.Stderr
	var c io.Closer
	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		w, c = lj, lj
	}

	mu.Lock()
	defer mu.Unlock()
	if closer != nil {
		_ = closer.Close()
	}
	closer = c
	asJSON = opts.JSON
	setVerboseLocked(opts.Verbose)
	log = newLogger(w, asJSON)
	slog.SetDefault(log)
}

// Close flushes and closes a rotating log file.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	return err
}

// SetVerbose enables or disables debug logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	setVerboseLocked(v)
}

func setVerboseLocked(v bool) {
	verbose = v
	if v {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	log = newLogger(w, asJSON)
}

// Logger returns the underlying structured logger.
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func emit(lvl slog.Level, format string, args ...any) {
	mu.RLock()
	l := log
	mu.RUnlock()
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	l.Log(context.Background(), lvl, msg)
}

// Debug logs a message if verbose mode is enabled.
func Debug(format string, args ...any) {
	emit(slog.LevelDebug, format, args...)
}

// Section logs a section header if verbose mode is enabled.
func Section(name string) {
	emit(slog.LevelDebug, "=== "+name+" ===")
}

// Info logs an informational message.
func Info(format string, args ...any) {
	emit(slog.LevelInfo, format, args...)
}

// Warn logs a warning.
func Warn(format string, args ...any) {
	emit(slog.LevelWarn, format, args...)
}

// Error logs an error.
func Error(format string, args ...any) {
	emit(slog.LevelError, format, args...)
}
