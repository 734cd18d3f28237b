// Package esbuildplugin runs the descinject hooks inside an esbuild build:
// each matching source is analysed, lowered to factory calls with the
// automatic JSX runtime, and rewritten before esbuild bundles it.
package esbuildplugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/Sumatoshi-tech/descinject/pkg/analysis"
	"github.com/Sumatoshi-tech/descinject/pkg/config"
	"github.com/Sumatoshi-tech/descinject/pkg/plugin"
)

// PluginName is reported to esbuild.
const PluginName = "descinject"

// DefaultJSXImportSource is the runtime lowered JSX imports from.
const DefaultJSXImportSource = "solid-js/h"

// ErrLower reports esbuild diagnostics produced while lowering JSX.
var ErrLower = errors.New("lower jsx")

// Options configures an Adapter.
type Options struct {
	Config config.PluginConfig
	// Deps are passed to plugin.New. A nil Resolver resolves through the
	// running build; Fallback is then consulted for specifiers esbuild
	// cannot resolve.
	Deps     plugin.Deps
	Fallback analysis.Resolver
	// JSXImportSource defaults to DefaultJSXImportSource.
	JSXImportSource string
	// Context is passed to the hooks. Nil uses context.Background().
	Context context.Context //nolint:containedctx // esbuild callbacks carry no context.
}

// Adapter binds a plugin.Plugin to esbuild.
type Adapter struct {
	hooks        *plugin.Plugin
	host         *hostResolver
	importSource string
	ctx          context.Context //nolint:containedctx // esbuild callbacks carry no context.
	logger       *slog.Logger
	filter       *regexp.Regexp
}

// New creates an Adapter.
func New(opts Options) (*Adapter, error) {
	host := &hostResolver{fallback: opts.Fallback}

	if opts.Deps.Resolver == nil {
		opts.Deps.Resolver = host
	}

	if opts.Deps.Logger == nil {
		opts.Deps.Logger = slog.Default()
	}

	if opts.JSXImportSource == "" {
		opts.JSXImportSource = DefaultJSXImportSource
	}

	if opts.Context == nil {
		opts.Context = context.Background()
	}

	hooks, err := plugin.New(opts.Config, opts.Deps)
	if err != nil {
		return nil, err
	}

	return &Adapter{
		hooks:        hooks,
		host:         host,
		importSource: opts.JSXImportSource,
		ctx:          opts.Context,
		logger:       opts.Deps.Logger,
		filter:       suffixFilter(opts.Config.IncludeSuffixes),
	}, nil
}

// Hooks returns the wrapped plugin.
func (a *Adapter) Hooks() *plugin.Plugin {
	return a.hooks
}

// Plugin returns the esbuild plugin.
func (a *Adapter) Plugin() api.Plugin {
	return api.Plugin{
		Name:  PluginName,
		Setup: a.setup,
	}
}

func (a *Adapter) setup(build api.PluginBuild) {
	a.host.bind(build)

	build.OnLoad(api.OnLoadOptions{Filter: a.filter.String(), Namespace: "file"}, a.onLoad)

	build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
		a.logger.DebugContext(a.ctx, "build finished",
			"verdicts", a.hooks.Store().Len(), "errors", len(result.Errors))

		return api.OnEndResult{}, nil
	})
}

func (a *Adapter) onLoad(args api.OnLoadArgs) (api.OnLoadResult, error) {
	id := args.Path + args.Suffix

	if a.hooks.Load(a.ctx, id) != plugin.StateCached {
		// Let esbuild load the file itself.
		return api.OnLoadResult{}, nil
	}

	src, err := os.ReadFile(args.Path)
	if err != nil {
		return api.OnLoadResult{}, fmt.Errorf("read %s: %w", args.Path, err)
	}

	lowered, err := Lower(args.Path, src, a.importSource)
	if err != nil {
		a.logger.WarnContext(a.ctx, "lowering failed, leaving file to esbuild", "path", args.Path, "error", err)

		return api.OnLoadResult{}, nil
	}

	out := a.hooks.Transform(a.ctx, lowered, id)
	if out == nil {
		// No container call was edited; keep the build's own JSX settings.
		return api.OnLoadResult{}, nil
	}

	code := out.Code

	return api.OnLoadResult{
		PluginName: PluginName,
		Contents:   &code,
		ResolveDir: filepath.Dir(args.Path),
		Loader:     api.LoaderJS,
	}, nil
}

// Lower compiles the JSX (and TypeScript) of src to plain ES module code
// calling the automatic runtime of importSource.
func Lower(path string, src []byte, importSource string) (string, error) {
	result := api.Transform(string(src), api.TransformOptions{
		Loader:          loaderFor(path),
		Format:          api.FormatESModule,
		JSX:             api.JSXAutomatic,
		JSXImportSource: importSource,
		Sourcefile:      path,
		LogLevel:        api.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		return "", fmt.Errorf("%w: %s: %s", ErrLower, path, formatMessages(result.Errors))
	}

	return string(result.Code), nil
}

func loaderFor(path string) api.Loader {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsx":
		return api.LoaderTSX
	case ".ts", ".mts", ".cts":
		return api.LoaderTS
	case ".js", ".mjs", ".cjs":
		return api.LoaderJS
	default:
		return api.LoaderJSX
	}
}

func formatMessages(msgs []api.Message) string {
	parts := make([]string, 0, len(msgs))

	for _, msg := range msgs {
		if msg.Location != nil {
			parts = append(parts, fmt.Sprintf("%d:%d %s", msg.Location.Line, msg.Location.Column, msg.Text))

			continue
		}

		parts = append(parts, msg.Text)
	}

	return strings.Join(parts, "; ")
}

// suffixFilter builds the esbuild path filter matching any suffix.
func suffixFilter(suffixes []string) *regexp.Regexp {
	quoted := make([]string, 0, len(suffixes))
	for _, suffix := range suffixes {
		quoted = append(quoted, regexp.QuoteMeta(suffix))
	}

	return regexp.MustCompile(`(` + strings.Join(quoted, "|") + `)$`)
}

// hostResolver resolves candidate imports with the running build's own
// resolver, so tsconfig paths, aliases and conditions all apply.
type hostResolver struct {
	mu       sync.RWMutex
	build    *api.PluginBuild
	fallback analysis.Resolver
}

func (h *hostResolver) bind(build api.PluginBuild) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.build = &build
}

// Resolve implements analysis.Resolver.
func (h *hostResolver) Resolve(ctx context.Context, specifier, importer string) (string, bool, error) {
	h.mu.RLock()
	build := h.build
	h.mu.RUnlock()

	if build != nil {
		result := build.Resolve(specifier, api.ResolveOptions{
			PluginName: PluginName,
			Importer:   importer,
			ResolveDir: filepath.Dir(importer),
			Kind:       api.ResolveJSImportStatement,
		})

		if len(result.Errors) == 0 && !result.External && result.Path != "" && result.Namespace == "file" {
			return result.Path, true, nil
		}
	}

	if h.fallback != nil {
		path, found, err := h.fallback.Resolve(ctx, specifier, importer)
		if err != nil {
			return "", false, fmt.Errorf("fallback resolver: %w", err)
		}

		return path, found, nil
	}

	return "", false, nil
}
