// Package logging configures the process-wide zerolog logger and adapts it to
// log/slog, for libraries that take a *slog.Logger.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global zerolog logger to write human readable output
// to w at the given level. Unknown levels fall back to info. A nil w means
// os.Stderr.
func Setup(level string, w io.Writer) zerolog.Level {
	if w == nil {
		w = os.Stderr
	}
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339})
	return lvl
}

// Slog returns a *slog.Logger that writes through logger.
func Slog(logger zerolog.Logger) *slog.Logger {
	return slog.New(NewSlogHandler(logger))
}

// SlogHandler is an slog.Handler writing to a zerolog.Logger. Groups are
// flattened into dotted field names.
type SlogHandler struct {
	logger zerolog.Logger
	prefix string
}

var _ slog.Handler = SlogHandler{}

// NewSlogHandler returns an slog.Handler that writes to logger.
func NewSlogHandler(logger zerolog.Logger) SlogHandler {
	return SlogHandler{logger: logger}
}

// Enabled reports whether records at level would be written.
func (h SlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	lvl := zerologLevel(level)
	return lvl >= h.logger.GetLevel() && lvl >= zerolog.GlobalLevel()
}

// Handle writes r to the underlying zerolog.Logger.
func (h SlogHandler) Handle(_ context.Context, r slog.Record) error {
	ev := h.logger.WithLevel(zerologLevel(r.Level))
	if ev == nil {
		return nil
	}
	r.Attrs(func(attr slog.Attr) bool {
		ev = appendAttr(ev, h.prefix, attr)
		return true
	})
	ev.Msg(r.Message)
	return nil
}

// WithAttrs returns a handler that includes attrs in every record.
func (h SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := map[string]any{}
	for _, attr := range attrs {
		collectAttr(fields, h.prefix, attr)
	}
	return SlogHandler{
		logger: h.logger.With().Fields(fields).Logger(),
		prefix: h.prefix,
	}
}

// WithGroup returns a handler that nests later attributes under name.
func (h SlogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return SlogHandler{
		logger: h.logger,
		prefix: h.prefix + name + ".",
	}
}

func appendAttr(ev *zerolog.Event, prefix string, attr slog.Attr) *zerolog.Event {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return ev
	}
	key := prefix + attr.Key
	switch attr.Value.Kind() {
	case slog.KindGroup:
		groupPrefix := prefix
		if attr.Key != "" {
			groupPrefix = key + "."
		}
		for _, child := range attr.Value.Group() {
			ev = appendAttr(ev, groupPrefix, child)
		}
		return ev
	case slog.KindString:
		return ev.Str(key, attr.Value.String())
	case slog.KindInt64:
		return ev.Int64(key, attr.Value.Int64())
	case slog.KindUint64:
		return ev.Uint64(key, attr.Value.Uint64())
	case slog.KindFloat64:
		return ev.Float64(key, attr.Value.Float64())
	case slog.KindBool:
		return ev.Bool(key, attr.Value.Bool())
	case slog.KindDuration:
		return ev.Dur(key, attr.Value.Duration())
	case slog.KindTime:
		return ev.Time(key, attr.Value.Time())
	}
	if err, ok := attr.Value.Any().(error); ok {
		return ev.AnErr(key, err)
	}
	return ev.Interface(key, attr.Value.Any())
}

func collectAttr(fields map[string]any, prefix string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}
	key := prefix + attr.Key
	if attr.Value.Kind() == slog.KindGroup {
		groupPrefix := prefix
		if attr.Key != "" {
			groupPrefix = key + "."
		}
		for _, child := range attr.Value.Group() {
			collectAttr(fields, groupPrefix, child)
		}
		return
	}
	if err, ok := attr.Value.Any().(error); ok {
		fields[key] = err.Error()
		return
	}
	fields[key] = attr.Value.Any()
}

func zerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level >= slog.LevelError:
		return zerolog.ErrorLevel
	case level >= slog.LevelWarn:
		return zerolog.WarnLevel
	case level >= slog.LevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}
