package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// NewSlogHandler returns a slog.Handler that forwards records to l.
// Libraries that log through slog end up in the session log with the same
// redaction rules. Returns nil for a nil logger.
func NewSlogHandler(l *Logger) slog.Handler {
	if l == nil {
		return nil
	}
	return &slogAdapter{log: l}
}

// NewSlog wraps l in a *slog.Logger.
func NewSlog(l *Logger) *slog.Logger {
	if l == nil {
		l = Discard()
	}
	return slog.New(NewSlogHandler(l))
}

type slogAdapter struct {
	log    *Logger
	groups []string
	attrs  []slog.Attr
}

func (h *slogAdapter) Enabled(_ context.Context, level slog.Level) bool {
	return fromSlogLevel(level) >= h.log.GetLevel()
}

func (h *slogAdapter) Handle(_ context.Context, record slog.Record) error {
	parts := make([]string, 0, 1+len(h.attrs)+record.NumAttrs())
	if record.Message != "" {
		parts = append(parts, record.Message)
	}
	for _, attr := range h.attrs {
		parts = appendAttr(parts, attr, h.groups)
	}
	record.Attrs(func(attr slog.Attr) bool {
		parts = appendAttr(parts, attr, h.groups)
		return true
	})
	line := strings.Join(parts, " ")

	switch fromSlogLevel(record.Level) {
	case LevelError:
		h.log.Error("%s", line)
	case LevelWarn:
		h.log.Warn("%s", line)
	case LevelInfo:
		h.log.Info("%s", line)
	default:
		h.log.Debug("%s", line)
	}
	return nil
}

func (h *slogAdapter) WithAttrs(attrs []slog.Attr) slog.Handler {
	combined := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	combined = append(combined, h.attrs...)
	combined = append(combined, attrs...)
	return &slogAdapter{log: h.log, groups: h.groups, attrs: combined}
}

func (h *slogAdapter) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	groups := make([]string, 0, len(h.groups)+1)
	groups = append(groups, h.groups...)
	groups = append(groups, name)
	return &slogAdapter{log: h.log, groups: groups, attrs: h.attrs}
}

func fromSlogLevel(level slog.Level) Level {
	switch {
	case level >= slog.LevelError:
		return LevelError
	case level >= slog.LevelWarn:
		return LevelWarn
	case level >= slog.LevelInfo:
		return LevelInfo
	default:
		return LevelDebug
	}
}

func appendAttr(parts []string, attr slog.Attr, groups []string) []string {
	if attr.Equal(slog.Attr{}) {
		return parts
	}
	if attr.Value.Kind() == slog.KindGroup {
		nested := append(append([]string(nil), groups...), attr.Key)
		for _, a := range attr.Value.Group() {
			parts = appendAttr(parts, a, nested)
		}
		return parts
	}
	key := attr.Key
	if key == "" {
		key = "attr"
	}
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}
	return append(parts, fmt.Sprintf("%s=%v", key, attr.Value))
}
