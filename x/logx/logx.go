// Package logx builds the bridge's slog handlers and holds small logging
// helpers shared by every component.
package logx

import (
	"io"
	"log/slog"
	"strings"
	"time"
)

// DefaultCapBytes is the size at which a CapFile starts over.
const DefaultCapBytes = 32 * 1024

// New returns a logger writing to w. format is "text" or "json" (default).
func New(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level, ReplaceAttr: SlogReplacer}
	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// ParseLevel maps debug/info/warn/error to a level; anything else is info.
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

// SlogReplacer renders times and durations as short strings.
func SlogReplacer(_ []string, a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindTime:
		return slog.String(a.Key, a.Value.Time().Format(time.DateTime))
	case slog.KindDuration:
		return slog.String(a.Key, a.Value.Duration().String())
	}
	return a
}

func ErrAttr(err error) slog.Attr { return slog.Any("error", err) }

// Component returns l (or slog.Default when nil) tagged with a component.
func Component(l *slog.Logger, name string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With(slog.String("component", name))
}

// LogOnError calls fn and logs its error, if any.
func LogOnError(l *slog.Logger, fn func() error, msg string) {
	if err := fn(); err != nil {
		l.Error(msg, ErrAttr(err))
	}
}
