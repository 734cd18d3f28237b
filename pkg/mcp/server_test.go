package mcp_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Sumatoshi-tech/descinject/pkg/config"
	"github.com/Sumatoshi-tech/descinject/pkg/mcp"
	"github.com/Sumatoshi-tech/descinject/pkg/observability"
	"github.com/Sumatoshi-tech/descinject/pkg/plugin"
	"github.com/Sumatoshi-tech/descinject/pkg/resolve"
)

const (
	appSource = `import { Dialog } from "@kobalte/core";
import { Wrapper } from "./wrapper";
export const App = () => <Dialog.Root><Wrapper /></Dialog.Root>;
`
	wrapperSource = `import { Dialog } from "@kobalte/core";
export const Wrapper = () => <Dialog.Description>About</Dialog.Description>;
`
	plainSource = `import { Dialog } from "@kobalte/core";
export const Plain = () => <Dialog.Root><Trigger /></Dialog.Root>;
`
)

func newServer(t *testing.T) (*mcp.Server, string) {
	t.Helper()

	root, hooks := newHooks(t)

	srv, err := mcp.NewServer(mcp.ServerDeps{Plugin: hooks})
	require.NoError(t, err)

	return srv, root
}

func newHooks(t *testing.T) (string, *plugin.Plugin) {
	t.Helper()

	root := t.TempDir()

	for name, content := range map[string]string{
		"App.tsx":     appSource,
		"wrapper.tsx": wrapperSource,
		"Plain.tsx":   plainSource,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o600))
	}

	cfg := config.Default().Plugin
	cfg.IncludePrefix = root

	hooks, err := plugin.New(cfg, plugin.Deps{Resolver: resolve.New(root)})
	require.NoError(t, err)

	return root, hooks
}

func connect(t *testing.T, srv *mcp.Server) *mcpsdk.ClientSession {
	t.Helper()

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	serverDone := make(chan error, 1)

	go func() {
		serverDone <- srv.RunWithTransport(ctx, serverTransport)
	}()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = session.Close()

		cancel()
		<-serverDone
	})

	return session
}

func callTool(t *testing.T, session *mcpsdk.ClientSession, name string, args map[string]any) *mcpsdk.CallToolResult {
	t.Helper()

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)

	return result
}

func textOf(t *testing.T, result *mcpsdk.CallToolResult) string {
	t.Helper()

	text, ok := result.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok, "first content is %T", result.Content[0])

	return text.Text
}

func TestNewServer_RequiresPlugin(t *testing.T) {
	t.Parallel()

	_, err := mcp.NewServer(mcp.ServerDeps{})
	require.ErrorIs(t, err, mcp.ErrNoPlugin)
}

func TestServer_InstrumentedToolCall(t *testing.T) {
	t.Parallel()

	root, hooks := newHooks(t)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	reader := sdkmetric.NewManualReader()
	metrics, err := observability.NewPluginMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))
	require.NoError(t, err)

	srv, err := mcp.NewServer(mcp.ServerDeps{Plugin: hooks, Tracer: tp.Tracer("test"), Metrics: metrics})
	require.NoError(t, err)

	session := connect(t, srv)

	result := callTool(t, session, mcp.ToolNameScan, map[string]any{"path": filepath.Join(root, "Plain.tsx")})
	require.False(t, result.IsError, textOf(t, result))
	require.Len(t, result.Content, 2)

	traceText, ok := result.Content[1].(*mcpsdk.TextContent)
	require.True(t, ok)
	assert.Regexp(t, `^trace_id=[0-9a-f]{32}$`, traceText.Text)

	var rm metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(context.Background(), &rm))

	var points []metricdata.DataPoint[int64]

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if sum, isSum := m.Data.(metricdata.Sum[int64]); isSum && m.Name == "descinject.hooks.total" {
				points = append(points, sum.DataPoints...)
			}
		}
	}

	require.Len(t, points, 1)

	hook, _ := points[0].Attributes.Value(attribute.Key("hook"))
	outcome, _ := points[0].Attributes.Value(attribute.Key("outcome"))
	assert.Equal(t, "mcp."+mcp.ToolNameScan, hook.AsString())
	assert.Equal(t, "ok", outcome.AsString())
}

func TestServer_ListTools(t *testing.T) {
	t.Parallel()

	srv, _ := newServer(t)
	assert.Equal(t, []string{mcp.ToolNameRewrite, mcp.ToolNameScan}, srv.ListToolNames())

	session := connect(t, srv)

	toolsResult, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, toolsResult.Tools, 2)

	for _, tool := range toolsResult.Tools {
		assert.NotNil(t, tool.InputSchema, "tool %s missing input schema", tool.Name)
		assert.NotEmpty(t, tool.Description)
	}
}

func TestServer_ScanFindsMarkerThroughWrapper(t *testing.T) {
	t.Parallel()

	srv, root := newServer(t)
	session := connect(t, srv)

	result := callTool(t, session, mcp.ToolNameScan, map[string]any{"path": filepath.Join(root, "App.tsx")})
	require.False(t, result.IsError, textOf(t, result))

	var disc struct {
		Verdict       bool `json:"verdict"`
		FoundDirectly bool `json:"found_directly"`
		Indirect      bool `json:"indirect"`
		Candidates    []struct {
			Name           string `json:"name"`
			ProvidesMarker bool   `json:"provides_marker"`
		} `json:"candidates"`
	}

	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &disc))
	assert.True(t, disc.Verdict)
	assert.False(t, disc.FoundDirectly)
	assert.True(t, disc.Indirect)
	require.Len(t, disc.Candidates, 1)
	assert.Equal(t, "Wrapper", disc.Candidates[0].Name)
	assert.True(t, disc.Candidates[0].ProvidesMarker)
}

func TestServer_ScanInlineCode(t *testing.T) {
	t.Parallel()

	srv, root := newServer(t)
	session := connect(t, srv)

	result := callTool(t, session, mcp.ToolNameScan, map[string]any{
		"path": filepath.Join(root, "Inline.tsx"),
		"code": `import { Dialog } from "@kobalte/core";
export const I = () => <Dialog.Root><Dialog.Description /></Dialog.Root>;`,
	})
	require.False(t, result.IsError, textOf(t, result))
	assert.Contains(t, textOf(t, result), `"found_directly": true`)
}

func TestServer_ScanRejectsBadPaths(t *testing.T) {
	t.Parallel()

	srv, root := newServer(t)
	session := connect(t, srv)

	tests := []struct {
		name string
		path string
		want error
	}{
		{name: "empty", path: "", want: mcp.ErrEmptyPath},
		{name: "relative", path: "src/App.tsx", want: mcp.ErrPathNotAbsolute},
		{name: "filtered", path: filepath.Join(root, "styles.css"), want: mcp.ErrPathFiltered},
	}

	for _, tt := range tests {
		result := callTool(t, session, mcp.ToolNameScan, map[string]any{"path": tt.path})
		assert.True(t, result.IsError, tt.name)
		assert.Contains(t, textOf(t, result), tt.want.Error(), tt.name)
	}
}

func TestServer_RewriteInjectsDiscoveredFlag(t *testing.T) {
	t.Parallel()

	srv, root := newServer(t)
	session := connect(t, srv)

	result := callTool(t, session, mcp.ToolNameRewrite, map[string]any{"path": filepath.Join(root, "Plain.tsx")})
	require.False(t, result.IsError, textOf(t, result))

	var res mcp.RewriteResult

	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &res))
	assert.False(t, res.Verdict)
	assert.Equal(t, 1, res.Calls)
	assert.Contains(t, res.Code, "__hasDescription: false")
	assert.NotContains(t, res.Code, "<Dialog.Root")
}

func TestServer_RewriteVerdictOverride(t *testing.T) {
	t.Parallel()

	srv, root := newServer(t)
	session := connect(t, srv)

	result := callTool(t, session, mcp.ToolNameRewrite, map[string]any{
		"path":    filepath.Join(root, "Plain.tsx"),
		"verdict": true,
	})
	require.False(t, result.IsError, textOf(t, result))

	var res mcp.RewriteResult

	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &res))
	assert.True(t, res.Verdict)
	assert.Contains(t, res.Code, "__hasDescription: true")
}

func TestServer_RewriteReportsLowerErrors(t *testing.T) {
	t.Parallel()

	srv, root := newServer(t)
	session := connect(t, srv)

	result := callTool(t, session, mcp.ToolNameRewrite, map[string]any{
		"path":    filepath.Join(root, "Broken.tsx"),
		"code":    `export const B = () => <Dialog.Root>;`,
		"verdict": false,
	})
	assert.True(t, result.IsError)
	assert.Contains(t, textOf(t, result), "lower jsx")
}
