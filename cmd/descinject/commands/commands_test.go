package commands_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/descinject/cmd/descinject/commands"
	"github.com/Sumatoshi-tech/descinject/pkg/config"
	"github.com/Sumatoshi-tech/descinject/pkg/verdict"
)

const (
	directSource = `import { Dialog } from "@kobalte/core";
export const Direct = () => <Dialog.Root><Dialog.Description>d</Dialog.Description></Dialog.Root>;
`
	indirectSource = `import { Dialog } from "@kobalte/core";
import { Wrapper } from "./wrapper";
export const Indirect = () => <Dialog.Root><Wrapper /></Dialog.Root>;
`
	wrapperSource = `import { Dialog } from "@kobalte/core";
export const Wrapper = () => <Dialog.Description>w</Dialog.Description>;
`
	plainSource = `import { Dialog } from "@kobalte/core";
export const Plain = () => <Dialog.Root><span /></Dialog.Root>;
`
	brokenSource = `import { Dialog } from "@kobalte/core";
export const Broken = () => <Dialog.Root><</Dialog.Root>;
`
	mainSource = `import { Direct } from "./direct";
import { Indirect } from "./indirect";
import { Plain } from "./plain";
export const all = [Direct, Indirect, Plain];
`
)

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()

	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}

	return root
}

func defaultProject(t *testing.T) string {
	t.Helper()

	return writeProject(t, map[string]string{
		"src/main.tsx":             mainSource,
		"src/direct.tsx":           directSource,
		"src/indirect.tsx":         indirectSource,
		"src/wrapper.tsx":          wrapperSource,
		"src/plain.tsx":            plainSource,
		"src/broken.tsx":           brokenSource,
		"src/styles.css":           ".a {}",
		"node_modules/x/index.tsx": directSource,
		"src/.hidden/ignored.tsx":  directSource,
	})
}

var ansi = regexp.MustCompile("\x1b\\[[0-9;]*m")

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	cmd := commands.NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()

	return ansi.ReplaceAllString(out.String(), ""), err
}

type scanRow struct {
	Path    string `json:"path"`
	State   string `json:"state"`
	Verdict bool   `json:"verdict"`
}

func TestScan_JSONReportsVerdicts(t *testing.T) {
	t.Parallel()

	root := defaultProject(t)

	out, err := execute(t, "scan", "--root", root, "--json", root)
	require.NoError(t, err)

	var rows []scanRow

	require.NoError(t, json.Unmarshal([]byte(out), &rows))

	got := make(map[string]scanRow, len(rows))
	for _, row := range rows {
		rel, relErr := filepath.Rel(root, row.Path)
		require.NoError(t, relErr)

		got[filepath.ToSlash(rel)] = row
	}

	require.Len(t, got, 6, "node_modules, hidden dirs and non-JSX files are skipped")
	assert.True(t, got["src/direct.tsx"].Verdict)
	assert.True(t, got["src/indirect.tsx"].Verdict)
	assert.False(t, got["src/plain.tsx"].Verdict)
	assert.False(t, got["src/main.tsx"].Verdict, "no package import")
	assert.False(t, got["src/wrapper.tsx"].Verdict, "no container")
	assert.Equal(t, "cached", got["src/plain.tsx"].State)
	assert.Equal(t, "failed", got["src/broken.tsx"].State)
}

func TestScan_TableAndSnapshot(t *testing.T) {
	t.Parallel()

	root := defaultProject(t)
	snapshot := filepath.Join(t.TempDir(), "verdicts.lz4")

	out, err := execute(t, "scan", "--root", root, "--save", snapshot, filepath.Join(root, "src"))
	require.NoError(t, err)

	assert.Contains(t, out, filepath.Join("src", "indirect.tsx"))
	assert.Contains(t, out, "Total: 6 files")
	assert.Contains(t, out, "2 with description")
	assert.Contains(t, out, "3 without")
	assert.Contains(t, out, "1 failed")

	file, err := os.Open(snapshot)
	require.NoError(t, err)

	defer file.Close()

	store := verdict.NewMemoryStore()
	n, err := verdict.Load(file, store, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	entry, ok := store.Get(filepath.Join(root, "src", "plain.tsx"))
	require.True(t, ok)
	assert.False(t, entry.Verdict)
	assert.Equal(t, verdict.Digest([]byte(plainSource)), entry.Digest)
}

func TestScan_FailOnError(t *testing.T) {
	t.Parallel()

	root := defaultProject(t)

	_, err := execute(t, "scan", "--root", root, "--fail-on-error", root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analysis failed")
}

func TestRewrite_InjectsVerdict(t *testing.T) {
	t.Parallel()

	root := defaultProject(t)

	out, err := execute(t, "rewrite", "--root", root, filepath.Join(root, "src", "plain.tsx"))
	require.NoError(t, err)
	assert.Contains(t, out, "__hasDescription: false")
	assert.Contains(t, out, `from "solid-js/h/jsx-runtime"`)

	out, err = execute(t, "rewrite", "--root", root, filepath.Join(root, "src", "indirect.tsx"))
	require.NoError(t, err)
	assert.Contains(t, out, "__hasDescription: true")
}

func TestRewrite_DiffAndSourceMap(t *testing.T) {
	t.Parallel()

	root := defaultProject(t)
	path := filepath.Join(root, "src", "plain.tsx")

	out, err := execute(t, "rewrite", "--root", root, "--diff", path)
	require.NoError(t, err)

	var added, removed int

	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "+"):
			added++

			assert.Contains(t, line, "__hasDescription: false")
		case strings.HasPrefix(line, "-"):
			removed++
		}
	}

	assert.Equal(t, 1, added)
	assert.Equal(t, 1, removed)

	out, err = execute(t, "rewrite", "--root", root, "--sourcemap", path)
	require.NoError(t, err)

	const marker = "//# sourceMappingURL=data:application/json;charset=utf-8;base64,"

	idx := strings.Index(out, marker)
	require.GreaterOrEqual(t, idx, 0, out)

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(out[idx+len(marker):]))
	require.NoError(t, err)

	var sm struct {
		Sources        []string `json:"sources"`
		SourcesContent []string `json:"sourcesContent"`
	}

	require.NoError(t, json.Unmarshal(raw, &sm))
	assert.Equal(t, []string{"plain.tsx.lowered.js"}, sm.Sources)
	require.Len(t, sm.SourcesContent, 1)
	assert.NotContains(t, sm.SourcesContent[0], "<Dialog.Root")
}

func TestRewrite_WritesOutputFile(t *testing.T) {
	t.Parallel()

	root := defaultProject(t)
	dst := filepath.Join(t.TempDir(), "plain.js")

	out, err := execute(t, "rewrite", "--root", root, "-o", dst, filepath.Join(root, "src", "plain.tsx"))
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Contains(t, string(data), "__hasDescription: false")

	_, err = execute(t, "rewrite", "--root", root, "-o", filepath.Join(root, "missing", "x.js"),
		filepath.Join(root, "src", "plain.tsx"))
	require.Error(t, err)
}

func TestRewrite_UsesMatchingSnapshotEntries(t *testing.T) {
	t.Parallel()

	root := defaultProject(t)
	path := filepath.Join(root, "src", "plain.tsx")
	snapshot := filepath.Join(t.TempDir(), "verdicts.lz4")

	store := verdict.NewMemoryStore()
	store.Put(path, verdict.Entry{Verdict: true, Digest: verdict.Digest([]byte(plainSource))})

	file, err := os.Create(snapshot)
	require.NoError(t, err)
	require.NoError(t, verdict.Save(file, store))
	require.NoError(t, file.Close())

	out, err := execute(t, "rewrite", "--root", root, "--cache", snapshot, path)
	require.NoError(t, err)
	assert.Contains(t, out, "__hasDescription: true", "cached verdict wins while the digest matches")

	require.NoError(t, os.WriteFile(path, []byte(plainSource+"\n"), 0o600))

	out, err = execute(t, "rewrite", "--root", root, "--cache", snapshot, path)
	require.NoError(t, err)
	assert.Contains(t, out, "__hasDescription: false", "stale entries are re-analysed")
}

func TestRewrite_Errors(t *testing.T) {
	t.Parallel()

	root := defaultProject(t)

	_, err := execute(t, "rewrite", "--root", root, filepath.Join(root, "src", "styles.css"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside the include filter")

	_, err = execute(t, "rewrite", "--root", root, filepath.Join(root, "src", "broken.tsx"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analysis failed")

	_, err = execute(t, "rewrite", "--root", root, filepath.Join(root, "src", "missing.tsx"))
	require.Error(t, err)
}

func TestBuild_WritesBundleWithFlags(t *testing.T) {
	t.Parallel()

	root := writeProject(t, map[string]string{
		"src/main.tsx":     mainSource,
		"src/direct.tsx":   directSource,
		"src/indirect.tsx": indirectSource,
		"src/wrapper.tsx":  wrapperSource,
		"src/plain.tsx":    plainSource,
	})

	out, err := execute(t, "build", "--root", root,
		"--external", "@kobalte/core", "--external", "solid-js/h/jsx-runtime",
		filepath.Join(root, "src", "main.tsx"))
	require.NoError(t, err)
	assert.Contains(t, out, "built ")

	bundle, err := os.ReadFile(filepath.Join(root, "dist", "main.js"))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(bundle), "__hasDescription: true"))
	assert.Equal(t, 1, strings.Count(string(bundle), "__hasDescription: false"))
	assert.Contains(t, string(bundle), `from "solid-js/h/jsx-runtime"`)
	assert.NotContains(t, string(bundle), "React.createElement", "files without containers use the same runtime")
}

func TestBuild_ReportsErrors(t *testing.T) {
	t.Parallel()

	root := writeProject(t, map[string]string{
		"src/main.tsx": `import { Missing } from "./missing";
export const m = Missing;
`,
	})

	out, err := execute(t, "build", "--root", root, "--write=false", filepath.Join(root, "src", "main.tsx"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build failed")
	assert.Contains(t, out, "error:")
}

func TestConfig_FileIsValidated(t *testing.T) {
	t.Parallel()

	root := defaultProject(t)
	cfgPath := filepath.Join(t.TempDir(), "descinject.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("plugin:\n  unknown_option: true\n"), 0o600))

	_, err := execute(t, "scan", "--root", root, "--config", cfgPath, root)
	require.ErrorIs(t, err, config.ErrSchema)
}

func TestConfig_FileChangesNames(t *testing.T) {
	t.Parallel()

	root := writeProject(t, map[string]string{
		"src/App.tsx": `import { Modal } from "my-ui";
export const App = () => <Modal.Root><Modal.Note /></Modal.Root>;
`,
	})
	cfgPath := filepath.Join(t.TempDir(), "descinject.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`plugin:
  container_name: Modal.Root
  marker_name: Modal.Note
  package_specifier: my-ui
  flag_key: hasNote
`), 0o600))

	out, err := execute(t, "rewrite", "--root", root, "--config", cfgPath, filepath.Join(root, "src", "App.tsx"))
	require.NoError(t, err)
	assert.Contains(t, out, "hasNote: true")
	assert.NotContains(t, out, "__hasDescription")
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "descinject "), out)
}

func TestRootCommand_Subcommands(t *testing.T) {
	t.Parallel()

	cmd := commands.NewRootCommand()

	names := make([]string, 0, len(cmd.Commands()))
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}

	for _, want := range []string{"scan", "rewrite", "build", "mcp", "version"} {
		assert.Contains(t, names, want)
	}

	flag := cmd.PersistentFlags().Lookup("debug")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}
