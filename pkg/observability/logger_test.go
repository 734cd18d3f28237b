package observability_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/descinject/pkg/config"
	"github.com/Sumatoshi-tech/descinject/pkg/observability"
	"github.com/Sumatoshi-tech/descinject/pkg/plugin"
	"github.com/Sumatoshi-tech/descinject/pkg/resolve"
)

func jsonLogger(buf *bytes.Buffer, mode observability.AppMode) *slog.Logger {
	base := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	return slog.New(observability.NewHandler(base, "descinject", "ci", mode))
}

func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var out []map[string]any

	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var rec map[string]any

		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))

		out = append(out, rec)
	}

	return out
}

func byMessage(t *testing.T, recs []map[string]any, msg string) map[string]any {
	t.Helper()

	for _, rec := range recs {
		if rec["msg"] == msg {
			return rec
		}
	}

	require.Failf(t, "record not logged", "message %q", msg)

	return nil
}

func TestHandler_LoadRecordsCarryHookFileAndSpan(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := filepath.Join(root, "App.tsx")
	require.NoError(t, os.WriteFile(path, []byte(`import { Dialog } from "@kobalte/core";
import Wrapper from "./missing";
export const A = () => <Dialog.Root><Wrapper /></Dialog.Root>;
`), 0o600))

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	var buf bytes.Buffer

	cfg := config.Default().Plugin
	cfg.IncludePrefix = root

	hooks, err := plugin.New(cfg, plugin.Deps{
		Resolver: resolve.New(root),
		Logger:   jsonLogger(&buf, observability.ModeBuild),
		Tracer:   tp.Tracer("test"),
	})
	require.NoError(t, err)

	require.Equal(t, plugin.StateCached, hooks.Load(context.Background(), path))

	var loadTraceID string

	for _, span := range recorder.Ended() {
		if span.Name() == "descinject.load" {
			loadTraceID = span.SpanContext().TraceID().String()
		}
	}

	require.NotEmpty(t, loadTraceID)

	recs := records(t, &buf)

	for _, msg := range []string{"candidate import not resolved", "verdict cached"} {
		rec := byMessage(t, recs, msg)

		assert.Equal(t, observability.HookLoad, rec[observability.KeyHook], msg)
		assert.Equal(t, path, rec[observability.KeyFile], msg)
		assert.Equal(t, loadTraceID, rec[observability.KeyTraceID], msg)
		assert.NotEmpty(t, rec[observability.KeySpanID], msg)
		assert.Equal(t, "build", rec["mode"], msg)
	}
}

func TestHandler_OutsideHooks(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	jsonLogger(&buf, observability.ModeMCP).InfoContext(context.Background(), "session started")

	rec := byMessage(t, records(t, &buf), "session started")

	assert.NotContains(t, rec, observability.KeyHook)
	assert.NotContains(t, rec, observability.KeyFile)
	assert.NotContains(t, rec, observability.KeyTraceID)
	assert.Equal(t, "descinject", rec["service"])
	assert.Equal(t, "ci", rec["env"])
	assert.Equal(t, "mcp", rec["mode"])
}

func TestHandler_GroupsKeepServiceAtTopLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	ctx := observability.WithHook(context.Background(), observability.HookTransform, "/src/App.tsx")

	jsonLogger(&buf, observability.ModeCLI).
		With(slog.Int("calls", 2)).
		WithGroup("rewrite").
		InfoContext(ctx, "flag injected", slog.Bool("verdict", true))

	rec := byMessage(t, records(t, &buf), "flag injected")

	assert.Equal(t, "descinject", rec["service"])
	assert.InDelta(t, 2, rec["calls"], 0)

	group, ok := rec["rewrite"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, group["verdict"])
	assert.Equal(t, observability.HookTransform, group[observability.KeyHook])
	assert.Equal(t, "/src/App.tsx", group[observability.KeyFile])
}

func TestHookFromContext(t *testing.T) {
	t.Parallel()

	_, _, ok := observability.HookFromContext(context.Background())
	assert.False(t, ok)

	hook, file, ok := observability.HookFromContext(
		observability.WithHook(context.Background(), observability.HookLoad, "/src/App.tsx"))
	require.True(t, ok)
	assert.Equal(t, observability.HookLoad, hook)
	assert.Equal(t, "/src/App.tsx", file)
}
