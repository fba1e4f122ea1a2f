// Package logging builds the service logger and carries query-scoped fields in contexts.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Formats.
const (
	FormatJSON    = "json"
	FormatText    = "text"
	FormatConsole = "console"
)

// Config selects the level and output format.
type Config struct {
	Level  string
	Format string
}

type ctxKey string

const (
	ctxWorkflowID ctxKey = "workflow_id"
	ctxQueryID    ctxKey = "query_id"
)

// New creates a logger writing to out (stdout if nil).
func New(cfg Config, out io.Writer) *slog.Logger {
	if out == nil {
		out = os.Stdout
	}
	level := ParseLevel(cfg.Level)

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case FormatConsole:
		zl := zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: out != os.Stdout}).
			Level(zerologLevel(level)).
			With().Timestamp().Logger()
		handler = &zerologHandler{zl: zl, level: level}
	case FormatText:
		handler = slog.NewTextHandler(out, handlerOptions(level))
	default:
		handler = slog.NewJSONHandler(out, handlerOptions(level))
	}

	return slog.New(&contextHandler{Handler: handler})
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func handlerOptions(level slog.Level) *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339))
			}
			return a
		},
	}
}

// WithWorkflowID attaches a workflow id to ctx.
func WithWorkflowID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxWorkflowID, id)
}

// WithQueryID attaches a query id to ctx.
func WithQueryID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxQueryID, id)
}

// contextAttrs returns the query-scoped fields stored in ctx.
func contextAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var attrs []slog.Attr
	for _, key := range []ctxKey{ctxWorkflowID, ctxQueryID} {
		if s, ok := ctx.Value(key).(string); ok && s != "" {
			attrs = append(attrs, slog.String(string(key), s))
		}
	}
	return attrs
}

// contextHandler adds the query-scoped fields of the record's context.
type contextHandler struct {
	slog.Handler
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(contextAttrs(ctx)...)
	return h.Handler.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithGroup(name)}
}
