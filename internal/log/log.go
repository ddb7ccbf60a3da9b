package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger is the injectable form of the package-level helpers. Components take
// a Logger so tests can silence or capture output.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, err error, kv ...any)
}

var (
	mu       sync.RWMutex
	levelVar = new(slog.LevelVar)
	base     = newSlog(os.Stderr)
)

func newSlog(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: levelVar}))
}

// SetOutput redirects the package logger. Mainly used by tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	base = newSlog(w)
	mu.Unlock()
}

func SetLevel(l Level) {
	levelVar.Set(toSlog(l))
}

// ParseLevel maps config strings like "debug" onto a Level. Unknown values
// fall back to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func toSlog(l Level) slog.Level {
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

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func Debug(msg string, kv ...any) {
	current().Log(context.Background(), slog.LevelDebug, msg, kv...)
}

func Info(msg string, kv ...any) {
	current().Log(context.Background(), slog.LevelInfo, msg, kv...)
}

func Warn(msg string, kv ...any) {
	current().Log(context.Background(), slog.LevelWarn, msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	current().Log(context.Background(), slog.LevelError, msg, extended...)
}

type component struct {
	name string
}

// Default returns a Logger backed by the package-level output. A non-empty
// name is attached to every line as component=<name>.
func Default(name string) Logger {
	return component{name: name}
}

func (c component) with(kv []any) []any {
	if c.name == "" {
		return kv
	}
	return append([]any{"component", c.name}, kv...)
}

func (c component) Debug(msg string, kv ...any) { Debug(msg, c.with(kv)...) }
func (c component) Info(msg string, kv ...any)  { Info(msg, c.with(kv)...) }
func (c component) Warn(msg string, kv ...any)  { Warn(msg, c.with(kv)...) }
func (c component) Error(msg string, err error, kv ...any) {
	Error(msg, err, c.with(kv)...)
}

type nop struct{}

func (nop) Debug(string, ...any)        {}
func (nop) Info(string, ...any)         {}
func (nop) Warn(string, ...any)         {}
func (nop) Error(string, error, ...any) {}

// Nop discards everything.
func Nop() Logger { return nop{} }

// OrNop returns l, or a discarding logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop()
	}
	return l
}
