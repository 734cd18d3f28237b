package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/trace"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Record attribute keys.
const (
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"
	KeyHook    = "hook"
	KeyFile    = "file"

	keyService = "service"
	keyEnv     = "env"
	keyMode    = "mode"
)

type hookScopeKey struct{}

type hookScope struct {
	hook string
	file string
}

// WithHook marks ctx as running hook for file. Records logged with the
// returned context carry both, so messages from the resolver or the
// rewriter point back at the file being built.
func WithHook(ctx context.Context, hook, file string) context.Context {
	return context.WithValue(ctx, hookScopeKey{}, hookScope{hook: hook, file: file})
}

// HookFromContext returns the hook and file set by WithHook.
func HookFromContext(ctx context.Context) (hook, file string, ok bool) {
	scope, ok := ctx.Value(hookScopeKey{}).(hookScope)

	return scope.hook, scope.file, ok
}

// Handler decorates every record with the hook scope and the active span.
// Service attributes are attached once, before any group.
type Handler struct {
	next slog.Handler
}

// NewHandler wraps next.
func NewHandler(next slog.Handler, service, env string, mode AppMode) *Handler {
	static := []slog.Attr{slog.String(keyService, service), slog.String(keyMode, string(mode))}
	if env != "" {
		static = append(static, slog.String(keyEnv, env))
	}

	return &Handler{next: next.WithAttrs(static)}
}

// Enabled implements slog.Handler.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	if hook, file, ok := HookFromContext(ctx); ok {
		record.AddAttrs(slog.String(KeyHook, hook), slog.String(KeyFile, file))
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		record.AddAttrs(slog.String(KeyTraceID, sc.TraceID().String()), slog.String(KeySpanID, sc.SpanID().String()))
	}

	if err := h.next.Handle(ctx, record); err != nil {
		return fmt.Errorf("log %q: %w", record.Message, err)
	}

	return nil
}

// WithAttrs implements slog.Handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{next: h.next.WithAttrs(attrs)}
}

// WithGroup implements slog.Handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{next: h.next.WithGroup(name)}
}

// NewLogger returns the logger for cfg and the closer of its output.
func NewLogger(cfg Config) (*slog.Logger, io.Closer) {
	out := openLogOutput(cfg)
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var base slog.Handler = slog.NewTextHandler(out, opts)
	if cfg.LogJSON {
		base = slog.NewJSONHandler(out, opts)
	}

	return slog.New(NewHandler(base, cfg.ServiceName, cfg.Environment, cfg.Mode)), out
}

type stdStream struct{ *os.File }

// Close leaves the process streams open.
func (stdStream) Close() error { return nil }

// openLogOutput maps logging.output onto a writer. Anything other than the
// two stream names is a file rotated by lumberjack.
func openLogOutput(cfg Config) io.WriteCloser {
	switch cfg.LogOutput {
	case "", OutputStderr:
		return stdStream{os.Stderr}
	case OutputStdout:
		return stdStream{os.Stdout}
	default:
		return &lumberjack.Logger{
			Filename:   cfg.LogOutput,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAgeDays,
			Compress:   cfg.LogCompress,
		}
	}
}
