package resolve_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/descinject/pkg/resolve"
)

func writeTree(t *testing.T, files ...string) string {
	t.Helper()

	root := t.TempDir()

	for _, rel := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("export {};\n"), 0o600))
	}

	return root
}

func TestFS_Resolve(t *testing.T) {
	t.Parallel()

	root := writeTree(t,
		"src/App.tsx",
		"src/wrapper.tsx",
		"src/util.ts",
		"src/widgets/index.tsx",
		"src/shared/button.jsx",
		"src/legacy.js",
	)

	r := resolve.New(root, resolve.WithAliases(map[string]string{
		"~/":     "src/",
		"~/wid/": "src/widgets/",
	}))

	importer := filepath.Join(root, "src", "App.tsx")

	tests := []struct {
		name      string
		specifier string
		want      string
	}{
		{"extensionless", "./wrapper", "src/wrapper.tsx"},
		{"explicit extension", "./wrapper.tsx", "src/wrapper.tsx"},
		{"ts behind js extension", "./util.js", "src/util.ts"},
		{"plain js", "./legacy.js", "src/legacy.js"},
		{"directory index", "./widgets", "src/widgets/index.tsx"},
		{"nested relative", "./shared/button", "src/shared/button.jsx"},
		{"alias", "~/wrapper", "src/wrapper.tsx"},
		{"longest alias wins", "~/wid/index", "src/widgets/index.tsx"},
		{"query stripped", "./wrapper?raw", "src/wrapper.tsx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, found, err := r.Resolve(context.Background(), tt.specifier, importer)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, filepath.Join(root, filepath.FromSlash(tt.want)), got)
		})
	}
}

func TestFS_ResolveMisses(t *testing.T) {
	t.Parallel()

	root := writeTree(t, "src/App.tsx")
	r := resolve.New(root)
	importer := filepath.Join(root, "src", "App.tsx")

	for _, specifier := range []string{"./missing", "react", "@kobalte/core", "./"} {
		_, found, err := r.Resolve(context.Background(), specifier, importer)
		require.NoError(t, err, specifier)
		assert.False(t, found, specifier)
	}

	_, _, err := r.Resolve(context.Background(), "", importer)
	require.ErrorIs(t, err, resolve.ErrEmptySpecifier)
}

func TestFS_ResolveAbsolute(t *testing.T) {
	t.Parallel()

	root := writeTree(t, "lib/panel.tsx")
	r := resolve.New(root, resolve.WithExtensions([]string{".tsx"}))

	got, found, err := r.Resolve(context.Background(), filepath.Join(root, "lib", "panel"), "/elsewhere/x.tsx")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, filepath.Join(root, "lib", "panel.tsx"), got)
}

func TestFS_ResolveCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := resolve.New(t.TempDir()).Resolve(ctx, "./x", "/a/b.tsx")
	require.ErrorIs(t, err, context.Canceled)
}
