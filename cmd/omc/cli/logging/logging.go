// Package logging provides structured logging shared by all commands.
// Attributes accumulate on the context (component, session) and are attached
// to every record emitted through the package-level helpers. Output is
// discarded until Init or InitFile routes it somewhere, so library code can
// log unconditionally without spamming stdout in hook invocations.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type contextKey struct{}

var attrsKey contextKey

// WithComponent returns a context whose log records carry a component attribute.
func WithComponent(ctx context.Context, component string) context.Context {
	return withAttrs(ctx, slog.String("component", component))
}

// WithSession returns a context whose log records carry the session id.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return withAttrs(ctx, slog.String("session_id", sessionID))
}

func withAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	existing := contextAttrs(ctx)
	merged := make([]slog.Attr, 0, len(existing)+len(attrs))
	merged = append(merged, existing...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, attrsKey, merged)
}

func contextAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	attrs, _ := ctx.Value(attrsKey).([]slog.Attr)
	return attrs
}

var (
	mu     sync.RWMutex
	logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
)

// Init routes log output to w at the given level.
func Init(w io.Writer, level slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	logger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// InitFile appends log output to the file at path, creating parent directories
// as needed. The returned cleanup restores the discard logger and closes the
// file. Initialization failures leave logging disabled rather than erroring:
// a hook invocation must never die because its log file is unwritable.
func InitFile(path string, level slog.Level) func() {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return func() {}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) //nolint:gosec // path is under the project state dir
	if err != nil {
		return func() {}
	}
	Init(f, level)
	return func() {
		mu.Lock()
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
		mu.Unlock()
		_ = f.Close()
	}
}

// ParseLevel maps a settings log_level string to a slog level.
// Unknown or empty values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func log(ctx context.Context, level slog.Level, msg string, attrs ...slog.Attr) {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if !l.Enabled(ctx, level) {
		return
	}
	ctxAttrs := contextAttrs(ctx)
	all := make([]slog.Attr, 0, len(ctxAttrs)+len(attrs))
	all = append(all, ctxAttrs...)
	all = append(all, attrs...)
	if ctx == nil {
		ctx = context.Background()
	}
	l.LogAttrs(ctx, level, msg, all...)
}

// Debug logs msg at DEBUG level with context attributes attached.
func Debug(ctx context.Context, msg string, attrs ...slog.Attr) {
	log(ctx, slog.LevelDebug, msg, attrs...)
}

// Info logs msg at INFO level with context attributes attached.
func Info(ctx context.Context, msg string, attrs ...slog.Attr) {
	log(ctx, slog.LevelInfo, msg, attrs...)
}

// Warn logs msg at WARN level with context attributes attached.
func Warn(ctx context.Context, msg string, attrs ...slog.Attr) {
	log(ctx, slog.LevelWarn, msg, attrs...)
}

// Error logs msg at ERROR level with context attributes attached.
func Error(ctx context.Context, msg string, attrs ...slog.Attr) {
	log(ctx, slog.LevelError, msg, attrs...)
}

// LogDuration logs msg at the given level with the elapsed time since start
// appended as a duration attribute.
func LogDuration(ctx context.Context, level slog.Level, msg string, start time.Time, attrs ...slog.Attr) {
	attrs = append(attrs, slog.Duration("duration", time.Since(start)))
	log(ctx, level, msg, attrs...)
}
