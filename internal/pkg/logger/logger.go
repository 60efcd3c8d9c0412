// Package logger builds the backend's slog loggers and carries per-request
// attributes (dispatcher request id, map layer) through a context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"metatiled/internal/pkg/errors"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	layerKey
)

// Logger is a slog.Logger with helpers for the attributes the backend logs
// on nearly every line.
type Logger struct {
	*slog.Logger
}

// Config selects level, encoding and destination of log records.
type Config struct {
	// Level is one of debug, info, warn, error. Anything else means info.
	Level string
	// Format is json or text.
	Format    string
	Output    io.Writer
	AddSource bool
	// ServiceName is attached to every record as "service".
	ServiceName string
}

// DefaultConfig reads LOG_LEVEL, LOG_FORMAT, LOG_SOURCE and SERVICE_NAME.
func DefaultConfig() Config {
	return Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Format:      getEnv("LOG_FORMAT", "json"),
		Output:      os.Stdout,
		AddSource:   getEnv("LOG_SOURCE", "false") == "true",
		ServiceName: getEnv("SERVICE_NAME", "metatile-backend"),
	}
}

// New builds a Logger. Timestamps are written as RFC 3339 in UTC.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.AddSource,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if t, ok := a.Value.Any().(time.Time); ok && a.Key == slog.TimeKey {
				a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
			}
			return a
		},
	}

	var h slog.Handler = slog.NewJSONHandler(out, opts)
	if cfg.Format == "text" {
		h = slog.NewTextHandler(out, opts)
	}
	if cfg.ServiceName != "" {
		h = h.WithAttrs([]slog.Attr{slog.String("service", cfg.ServiceName)})
	}
	return &Logger{Logger: slog.New(h)}
}

// NewDefault is New(DefaultConfig()).
func NewDefault() *Logger {
	return New(DefaultConfig())
}

// Discard returns a logger that drops every record.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func (l *Logger) WithComponent(component string) *Logger {
	return l.with("component", component)
}

func (l *Logger) WithRequestID(id string) *Logger {
	return l.with("request_id", id)
}

func (l *Logger) WithLayer(layer string) *Logger {
	return l.with("layer", layer)
}

// WithTile attaches a tile coordinate as z, x and y.
func (l *Logger) WithTile(z, x, y uint32) *Logger {
	return l.with("z", z, "x", x, "y", y)
}

// WithError attaches err as "error". For coded errors the code and the
// error's fields are attached as well. A nil err returns l unchanged.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	args := []any{"error", err.Error()}
	var e *errors.Error
	if errors.As(err, &e) {
		args = append(args, "code", string(e.Code))
		for k, v := range errors.GetFields(err) {
			args = append(args, k, v)
		}
	}
	return l.with(args...)
}

// FromContext returns l with the request id and layer stored in ctx, if any.
func (l *Logger) FromContext(ctx context.Context) *Logger {
	out := l
	if id := RequestIDFromContext(ctx); id != "" {
		out = out.WithRequestID(id)
	}
	if layer, _ := ctx.Value(layerKey).(string); layer != "" {
		out = out.WithLayer(layer)
	}
	return out
}

// LogFatal logs msg at error level and exits with status 1.
func (l *Logger) LogFatal(msg string, err error, args ...any) {
	l.WithError(err).Error(msg, args...)
	os.Exit(1)
}

// ContextWithRequestID stores a dispatcher or HTTP request id in ctx.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the id stored by ContextWithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ContextWithLayer stores the map layer of the request in ctx.
func ContextWithLayer(ctx context.Context, layer string) context.Context {
	return context.WithValue(ctx, layerKey, layer)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
