package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// LogLevel represents different logging levels.
// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger defines the minimal logging interface for blobmesh.
// This allows users to provide their own logger implementation or use the built-in adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// StoreLogger wraps slog.Logger adding contextual cloning helpers and domain
// convenience methods for stores and the pipeline runner. It is cheap to copy
// via With* methods.
type StoreLogger struct {
	logger    *slog.Logger
	level     LogLevel
	context   map[string]any
	component string
	container string
	uploadID  string
}

// LoggerConfig configures construction of a StoreLogger.
type LoggerConfig struct {
	Level       LogLevel
	Format      string // json or text
	Output      io.Writer
	AddSource   bool
	Component   string
	Container   string
	CustomAttrs map[string]any
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stdout, AddSource: true, CustomAttrs: map[string]any{}}
}

// NewLogger builds a StoreLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *StoreLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}
	return &StoreLogger{logger: slog.New(handler), level: cfg.Level, context: map[string]any{}, component: cfg.Component, container: cfg.Container}
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *StoreLogger) clone() *StoreLogger {
	nl := *l
	nl.context = map[string]any{}
	for k, v := range l.context {
		nl.context[k] = v
	}
	return &nl
}

// WithContext adds a key/value attribute that will be attached to every log entry.
func (l *StoreLogger) WithContext(key string, value any) *StoreLogger {
	nl := l.clone()
	nl.context[key] = value
	return nl
}

// WithComponent sets the logical component (store, upload, pipeline, etc.).
func (l *StoreLogger) WithComponent(c string) *StoreLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

// WithContainer attaches the container and, optionally, the active upload key.
func (l *StoreLogger) WithContainer(container, uploadID string) *StoreLogger {
	nl := l.clone()
	nl.container = container
	nl.uploadID = uploadID
	return nl
}

func (l *StoreLogger) buildAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(l.context)+4)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if l.container != "" {
		attrs = append(attrs, slog.String("container", l.container))
	}
	if l.uploadID != "" {
		attrs = append(attrs, slog.String("upload_id", l.uploadID))
	}
	attrs = append(attrs, slog.Time("timestamp", time.Now()))
	for k, v := range l.context {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

func (l *StoreLogger) log(level slog.Level, allowed bool, msg string, args ...any) {
	if !allowed {
		return
	}
	attrs := l.buildAttrs()
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// Debug logs at debug level.
func (l *StoreLogger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, l.level <= LogLevelDebug, msg, args...)
}

// Info logs at info level.
func (l *StoreLogger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, l.level <= LogLevelInfo, msg, args...)
}

// Warn logs at warn level.
func (l *StoreLogger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, l.level <= LogLevelWarn, msg, args...)
}

// Error logs at error level.
func (l *StoreLogger) Error(msg string, args ...any) {
	l.log(slog.LevelError, l.level <= LogLevelError, msg, args...)
}

// LogS3Call records latency and outcome of a single backend call.
func (l *StoreLogger) LogS3Call(op, bucket string, dur time.Duration, err error) {
	attrs := l.buildAttrs()
	attrs = append(attrs, slog.String("op", op), slog.String("bucket", bucket), slog.Duration("duration", dur), slog.Bool("success", err == nil))
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	level := slog.LevelDebug
	msg := "S3 call completed"
	if err != nil {
		level = slog.LevelError
		msg = "S3 call failed"
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// LogUpload records aggregate metrics for a finished upload session.
func (l *StoreLogger) LogUpload(key string, parts int, size int64, dur time.Duration, err error) {
	attrs := l.buildAttrs()
	attrs = append(attrs, slog.String("key", key), slog.Int("part_count", parts), slog.Int64("size", size), slog.Duration("duration", dur), slog.Bool("success", err == nil))
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	level := slog.LevelInfo
	msg := "Upload completed"
	if err != nil {
		level = slog.LevelError
		msg = "Upload failed"
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// LogStep records execution details for one pipeline step.
func (l *StoreLogger) LogStep(step string, exitCode int, dur time.Duration, err error) {
	attrs := l.buildAttrs()
	attrs = append(attrs, slog.String("step", step), slog.Int("exit_code", exitCode), slog.Duration("duration", dur), slog.Bool("success", err == nil && exitCode == 0))
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	level := slog.LevelInfo
	msg := "Step completed"
	if err != nil || exitCode != 0 {
		level = slog.LevelError
		msg = "Step failed"
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// StartTimer returns a closure that logs the elapsed duration when invoked.
func (l *StoreLogger) StartTimer(op string) func() {
	start := time.Now()
	return func() { l.Info("%s completed in %s", op, time.Since(start)) }
}

// ForComponent returns l narrowed to a logical component when l supports
// contextual cloning, or l unchanged otherwise.
func ForComponent(l Logger, component string) Logger {
	if sl, ok := l.(*StoreLogger); ok {
		return sl.WithComponent(component)
	}
	return l
}

// ForContainer returns l with container and upload key attached when l
// supports contextual cloning, or l unchanged otherwise.
func ForContainer(l Logger, container, uploadID string) Logger {
	if sl, ok := l.(*StoreLogger); ok {
		return sl.WithContainer(container, uploadID)
	}
	return l
}

// LogS3Call records a backend call through l, preferring the structured form.
func LogS3Call(l Logger, op, bucket string, dur time.Duration, err error) {
	if sl, ok := l.(*StoreLogger); ok {
		sl.LogS3Call(op, bucket, dur, err)
		return
	}
	if err != nil {
		l.Error("s3 %s on %s failed after %s: %v", op, bucket, dur, err)
		return
	}
	l.Debug("s3 %s on %s took %s", op, bucket, dur)
}

// LogUpload records a finished upload session through l, preferring the
// structured form.
func LogUpload(l Logger, key string, parts int, size int64, dur time.Duration, err error) {
	if sl, ok := l.(*StoreLogger); ok {
		sl.LogUpload(key, parts, size, dur, err)
		return
	}
	if err != nil {
		l.Error("upload %s failed after %d parts, %d bytes in %s: %v", key, parts, size, dur, err)
		return
	}
	l.Info("upload %s completed: %d parts, %d bytes in %s", key, parts, size, dur)
}

// LogStep records one pipeline step through l, preferring the structured form.
func LogStep(l Logger, step string, exitCode int, dur time.Duration, err error) {
	if sl, ok := l.(*StoreLogger); ok {
		sl.LogStep(step, exitCode, dur, err)
		return
	}
	switch {
	case err != nil:
		l.Error("step %s could not run: %v", step, err)
	case exitCode != 0:
		l.Error("step %s exited %d after %s", step, exitCode, dur)
	default:
		l.Info("step %s succeeded in %s", step, dur)
	}
}

// TimeOperation returns a stop function that logs the elapsed time when l
// supports timing, or a no-op otherwise. Intended for defer.
func TimeOperation(l Logger, op string) func() {
	if sl, ok := l.(*StoreLogger); ok {
		return sl.StartTimer(op)
	}
	return func() {}
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// NewSlogLogger creates a new StoreLogger with the specified configuration.
func NewSlogLogger(level LogLevel, format string, addSource bool) *StoreLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}
