// Package logging provides the leveled, field-carrying logger used across
// spellmark. Records are emitted through a log/slog handler so output can be
// plain text for terminals or JSON for collectors.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is the severity of a log message.
type Level int

const (
	// LevelDebug is for detailed debugging information.
	LevelDebug Level = iota
	// LevelInfo is for general informational messages.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
)

// String returns the upper-case level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel parses a level name. Unknown names map to LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Config configures a Logger.
type Config struct {
	// Level is the minimum level written.
	Level Level

	// Format is "text" or "json".
	Format string

	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Format: "text",
		Output: os.Stderr,
	}
}

// Logger writes leveled messages with attached fields. Loggers derived with
// WithField share the level and handler of their parent.
type Logger struct {
	level   *slog.LevelVar
	handler slog.Handler
	attrs   []slog.Attr
}

// New creates a logger from cfg.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	lv := new(slog.LevelVar)
	lv.Set(cfg.Level.slog())

	opts := &slog.HandlerOptions{Level: lv}
	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(&syncWriter{w: cfg.Output}, opts)
	} else {
		h = slog.NewTextHandler(&syncWriter{w: cfg.Output}, opts)
	}
	return &Logger{level: lv, handler: h}
}

// WithField returns a logger carrying one more field.
func (l *Logger) WithField(key string, value any) *Logger {
	return l.with(slog.Any(key, value))
}

// WithFields returns a logger carrying the given fields.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	attrs := make([]slog.Attr, 0, len(fields))
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	return l.with(attrs...)
}

// WithComponent returns a logger with the component field set.
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithField("component", component)
}

func (l *Logger) with(attrs ...slog.Attr) *Logger {
	if l.handler == nil {
		return l
	}
	merged := make([]slog.Attr, 0, len(l.attrs)+len(attrs))
	merged = append(merged, l.attrs...)
	merged = append(merged, attrs...)
	return &Logger{level: l.level, handler: l.handler, attrs: merged}
}

// SetLevel changes the minimum level for this logger and every logger
// derived from the same root.
func (l *Logger) SetLevel(level Level) {
	if l.level != nil {
		l.level.Set(level.slog())
	}
}

// Enabled reports whether messages at level are written.
func (l *Logger) Enabled(level Level) bool {
	return l.handler != nil && l.handler.Enabled(context.Background(), level.slog())
}

// Debug logs a debug message. Args format msg printf-style.
func (l *Logger) Debug(msg string, args ...any) {
	l.log(LevelDebug, msg, args...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, args ...any) {
	l.log(LevelInfo, msg, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...any) {
	l.log(LevelWarn, msg, args...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, args ...any) {
	l.log(LevelError, msg, args...)
}

func (l *Logger) log(level Level, msg string, args ...any) {
	if !l.Enabled(level) {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	rec := slog.NewRecord(time.Now(), level.slog(), msg, 0)
	rec.AddAttrs(l.attrs...)
	_ = l.handler.Handle(context.Background(), rec)
}

// Slog exposes the logger as a *slog.Logger for libraries that want one.
func (l *Logger) Slog() *slog.Logger {
	if l.handler == nil {
		return slog.New(discardHandler{})
	}
	return slog.New(l.handler.WithAttrs(l.attrs))
}

// NullLogger discards all output.
var NullLogger = &Logger{}

var (
	defaultMu     sync.RWMutex
	defaultLogger *Logger
)

// Get returns the process-wide logger, creating a default one on first use.
func Get() *Logger {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()
	if l != nil {
		return l
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New(DefaultConfig())
	}
	return defaultLogger
}

// Set replaces the process-wide logger. Call it early during startup.
func Set(l *Logger) {
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// syncWriter serialises writes from concurrent handlers.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
