// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers a richer EvalMeshLogger with contextual
// helpers (job, run, component) and domain specific logging helpers for
// model calls, metric stages and claim verification.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
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

// Logger defines the minimal logging interface for the evaluation pipeline.
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

// EvalMeshLogger wraps slog.Logger adding contextual cloning helpers and
// domain convenience methods. It should be cheap to copy via With* methods.
type EvalMeshLogger struct {
	logger    *slog.Logger
	level     LogLevel
	context   map[string]interface{}
	component string
	jobID     string
	runID     string
}

// LoggerConfig configures construction of an EvalMeshLogger.
type LoggerConfig struct {
	Level       LogLevel
	Format      string // json or text
	Output      io.Writer
	AddSource   bool
	Component   string
	JobID       string
	RunID       string
	CustomAttrs map[string]interface{}
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stdout, AddSource: true, CustomAttrs: map[string]interface{}{}}
}

// NewLogger builds an EvalMeshLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *EvalMeshLogger {
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
	return &EvalMeshLogger{logger: slog.New(handler), level: cfg.Level, context: map[string]interface{}{}, component: cfg.Component, jobID: cfg.JobID, runID: cfg.RunID}
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

func (l *EvalMeshLogger) clone() *EvalMeshLogger {
	nl := *l
	nl.context = map[string]interface{}{}
	for k, v := range l.context {
		nl.context[k] = v
	}
	return &nl
}

// WithContext adds a key/value attribute that will be attached to every log entry.
func (l *EvalMeshLogger) WithContext(key string, value interface{}) *EvalMeshLogger {
	nl := l.clone()
	nl.context[key] = value
	return nl
}

// WithComponent sets the logical component (orchestrator, stage, verifier, etc.).
func (l *EvalMeshLogger) WithComponent(c string) *EvalMeshLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

// WithJob attaches job and run identifiers.
func (l *EvalMeshLogger) WithJob(jobID, runID string) *EvalMeshLogger {
	nl := l.clone()
	nl.jobID = jobID
	nl.runID = runID
	return nl
}

func (l *EvalMeshLogger) buildAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(l.context)+5)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if l.jobID != "" {
		attrs = append(attrs, slog.String("job_id", l.jobID))
	}
	if l.runID != "" {
		attrs = append(attrs, slog.String("run_id", l.runID))
	}
	attrs = append(attrs, slog.Time("timestamp", time.Now()))
	for k, v := range l.context {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

func (l *EvalMeshLogger) log(level slog.Level, allowed bool, msg string, args ...interface{}) {
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
func (l *EvalMeshLogger) Debug(msg string, args ...interface{}) {
	l.log(slog.LevelDebug, l.level <= LogLevelDebug, msg, args...)
}

// Info logs at info level.
func (l *EvalMeshLogger) Info(msg string, args ...interface{}) {
	l.log(slog.LevelInfo, l.level <= LogLevelInfo, msg, args...)
}

// Warn logs at warn level.
func (l *EvalMeshLogger) Warn(msg string, args ...interface{}) {
	l.log(slog.LevelWarn, l.level <= LogLevelWarn, msg, args...)
}

// Error logs at error level.
func (l *EvalMeshLogger) Error(msg string, args ...interface{}) {
	l.log(slog.LevelError, l.level <= LogLevelError, msg, args...)
}

// ErrorWithStack logs an error plus a runtime stack snapshot.
func (l *EvalMeshLogger) ErrorWithStack(err error, msg string, args ...interface{}) {
	if l.level > LogLevelError {
		return
	}
	attrs := l.buildAttrs()
	attrs = append(attrs, slog.String("error", err.Error()), slog.String("error_type", fmt.Sprintf("%T", err)))
	stack := make([]byte, 4096)
	n := runtime.Stack(stack, false)
	attrs = append(attrs, slog.String("stack_trace", string(stack[:n])))
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	l.logger.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
}

// LogModelCall records model call latency, token usage and success.
func (l *EvalMeshLogger) LogModelCall(model string, tokens int, dur time.Duration, success bool, err error) {
	attrs := l.buildAttrs()

	attrs = append(attrs, slog.String("model", model), slog.Int("token_count", tokens), slog.Duration("duration", dur), slog.Bool("success", success))

	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	level := slog.LevelInfo

	msg := "Model call completed"

	if !success {
		level = slog.LevelError
		msg = "Model call failed"
	}

	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// LogStageExecution records aggregate metric stage run metrics.
func (l *EvalMeshLogger) LogStageExecution(stage string, inputs int, dur time.Duration, success bool, err error) {
	attrs := l.buildAttrs()
	attrs = append(attrs, slog.String("stage", stage), slog.Int("input_count", inputs), slog.Duration("duration", dur), slog.Bool("success", success))
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	level := slog.LevelInfo
	msg := "Stage execution completed"
	if !success {
		level = slog.LevelError
		msg = "Stage execution failed"
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// LogVerification records execution details for a claim verification.
func (l *EvalMeshLogger) LogVerification(tool string, verdict string, dur time.Duration, cached bool, err error) {
	attrs := l.buildAttrs()
	attrs = append(attrs, slog.String("tool", tool), slog.String("verdict", verdict), slog.Duration("duration", dur), slog.Bool("cache_hit", cached))
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	level := slog.LevelInfo
	msg := "Claim verification completed"
	if err != nil {
		level = slog.LevelError
		msg = "Claim verification failed"
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// StartTimer returns a closure that logs the elapsed duration when invoked.
func (l *EvalMeshLogger) StartTimer(op string) func() {
	start := time.Now()
	return func() { l.Info("Operation completed", "operation", op, "duration", time.Since(start)) }
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

// NewNoOpLogger returns a Logger that discards all messages.
func NewNoOpLogger() Logger { return NoOpLogger{} }

// NewSlogLogger creates a new EvalMeshLogger with the specified configuration.
func NewSlogLogger(level LogLevel, format string, addSource bool) *EvalMeshLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}
