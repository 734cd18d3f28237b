package esbuildplugin_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/descinject/pkg/config"
	"github.com/Sumatoshi-tech/descinject/pkg/esbuildplugin"
	"github.com/Sumatoshi-tech/descinject/pkg/plugin"
	"github.com/Sumatoshi-tech/descinject/pkg/verdict"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()

	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}

	return root
}

func TestLower_AutomaticRuntime(t *testing.T) {
	t.Parallel()

	code, err := esbuildplugin.Lower("/src/App.tsx",
		[]byte(`const A = (p: {x: number}) => <Dialog.Root open><Trigger /></Dialog.Root>;`), "solid-js/h")
	require.NoError(t, err)

	assert.Contains(t, code, `from "solid-js/h/jsx-runtime"`)
	assert.Contains(t, code, "Dialog.Root")
	assert.NotContains(t, code, "<Dialog.Root")
}

func TestLower_ReportsErrors(t *testing.T) {
	t.Parallel()

	_, err := esbuildplugin.Lower("/src/App.tsx", []byte(`const A = () => <Dialog.Root>;`), "solid-js/h")
	require.ErrorIs(t, err, esbuildplugin.ErrLower)
}

func TestAdapter_BuildInjectsVerdicts(t *testing.T) {
	t.Parallel()

	root := writeFiles(t, map[string]string{
		"src/main.tsx": `import { Direct } from "./direct";
import { Indirect } from "./indirect";
import { Plain } from "./plain";
export const all = [Direct, Indirect, Plain];
`,
		"src/direct.tsx": `import { Dialog } from "@kobalte/core";
export const Direct = () => <Dialog.Root><Dialog.Description>d</Dialog.Description></Dialog.Root>;
`,
		"src/indirect.tsx": `import { Dialog } from "@kobalte/core";
import { Wrapper } from "./wrapper";
export const Indirect = () => <Dialog.Root><Wrapper /></Dialog.Root>;
`,
		"src/wrapper.tsx": `import { Dialog } from "@kobalte/core";
export const Wrapper = () => <Dialog.Description>w</Dialog.Description>;
`,
		"src/plain.tsx": `import { Dialog } from "@kobalte/core";
export const Plain = () => <Dialog.Root><span /></Dialog.Root>;
`,
	})

	cfg := config.Default().Plugin
	cfg.IncludePrefix = root

	store := verdict.NewMemoryStore()

	adapter, err := esbuildplugin.New(esbuildplugin.Options{Config: cfg, Deps: plugin.Deps{Store: store}})
	require.NoError(t, err)

	result := api.Build(api.BuildOptions{
		EntryPoints: []string{filepath.Join(root, "src", "main.tsx")},
		Bundle:      true,
		Write:       false,
		Outdir:      filepath.Join(root, "dist"),
		Format:      api.FormatESModule,
		External:    []string{"@kobalte/core", "solid-js/h/jsx-runtime"},
		Plugins:     []api.Plugin{adapter.Plugin()},
		LogLevel:    api.LogLevelSilent,
	})
	require.Empty(t, result.Errors)
	require.Len(t, result.OutputFiles, 1)

	out := string(result.OutputFiles[0].Contents)
	assert.Equal(t, 2, strings.Count(out, "__hasDescription: true"), out)
	assert.Equal(t, 1, strings.Count(out, "__hasDescription: false"), out)

	got, err := adapter.Hooks().Verdict(filepath.Join(root, "src", "indirect.tsx"))
	require.NoError(t, err)
	assert.True(t, got)

	entry, ok := store.Get(filepath.Join(root, "src", "plain.tsx"))
	require.True(t, ok)
	assert.False(t, entry.Verdict)
}

func TestAdapter_KeyAfterSpreadLowersToCreateElement(t *testing.T) {
	t.Parallel()

	root := writeFiles(t, map[string]string{
		"src/Key.tsx": `import { Dialog } from "@kobalte/core";
export const K = (p) => <Dialog.Root {...p} key="k"><Dialog.Description /></Dialog.Root>;
`,
	})
	path := filepath.Join(root, "src", "Key.tsx")

	cfg := config.Default().Plugin
	cfg.IncludePrefix = root

	adapter, err := esbuildplugin.New(esbuildplugin.Options{Config: cfg})
	require.NoError(t, err)

	require.Equal(t, plugin.StateCached, adapter.Hooks().Load(context.Background(), path))

	src, err := os.ReadFile(path)
	require.NoError(t, err)

	lowered, err := esbuildplugin.Lower(path, src, esbuildplugin.DefaultJSXImportSource)
	require.NoError(t, err)
	require.Contains(t, lowered, "createElement(Dialog.Root")

	out := adapter.Hooks().Transform(context.Background(), lowered, path)
	require.NotNil(t, out)
	assert.Equal(t, 1, out.Calls)
	assert.Contains(t, out.Code, `key: "k", __hasDescription: true }`)
}

func TestAdapter_UntouchedFilesKeepBuildJSXSettings(t *testing.T) {
	t.Parallel()

	root := writeFiles(t, map[string]string{
		"src/view.tsx": `export const View = () => <div class="view" />;
`,
	})

	cfg := config.Default().Plugin
	cfg.IncludePrefix = root

	adapter, err := esbuildplugin.New(esbuildplugin.Options{Config: cfg})
	require.NoError(t, err)

	result := api.Build(api.BuildOptions{
		EntryPoints: []string{filepath.Join(root, "src", "view.tsx")},
		Bundle:      true,
		Write:       false,
		Outdir:      filepath.Join(root, "dist"),
		Format:      api.FormatESModule,
		JSX:         api.JSXTransform,
		Plugins:     []api.Plugin{adapter.Plugin()},
		LogLevel:    api.LogLevelSilent,
	})
	require.Empty(t, result.Errors)
	require.Len(t, result.OutputFiles, 1)

	out := string(result.OutputFiles[0].Contents)
	assert.Contains(t, out, "React.createElement")
	assert.NotContains(t, out, "jsx-runtime")

	entry, ok := adapter.Hooks().Store().Get(filepath.Join(root, "src", "view.tsx"))
	require.True(t, ok)
	assert.False(t, entry.Verdict)
}
