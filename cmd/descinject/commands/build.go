package commands

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/descinject/pkg/esbuildplugin"
	"github.com/Sumatoshi-tech/descinject/pkg/observability"
)

var errBuildFailed = errors.New("build failed")

type buildOptions struct {
	outdir       string
	external     []string
	importSource string
	minify       bool
	sourceMap    bool
	write        bool
}

func newBuildCommand() *cobra.Command {
	var opts buildOptions

	cmd := &cobra.Command{
		Use:   "build ENTRY...",
		Short: "Bundle entry points with esbuild, injecting description flags",
		Long: `Bundle the entry points with esbuild. Every matching source is analysed in
the load phase and its lowered container calls receive the verdict before
esbuild bundles them. Imports are resolved by esbuild itself, falling back to
the configured aliases.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.outdir, "outdir", "dist", "output directory")
	cmd.Flags().StringSliceVar(&opts.external, "external", nil, "module specifiers left unbundled")
	cmd.Flags().StringVar(&opts.importSource, "jsx-import-source", esbuildplugin.DefaultJSXImportSource,
		"module the automatic JSX runtime is imported from")
	cmd.Flags().BoolVar(&opts.minify, "minify", false, "minify the output")
	cmd.Flags().BoolVar(&opts.sourceMap, "sourcemap", false, "emit linked source maps")
	cmd.Flags().BoolVar(&opts.write, "write", true, "write output files to disk")

	return cmd
}

func runBuild(cmd *cobra.Command, entries []string, opts buildOptions) error {
	sess, err := newSession(cmd, observability.ModeBuild)
	if err != nil {
		return err
	}
	defer sess.close(cmd.Context())

	deps := sess.deps()
	deps.Resolver = nil

	adapter, err := esbuildplugin.New(esbuildplugin.Options{
		Config:          sess.cfg.Plugin,
		Deps:            deps,
		Fallback:        sess.resolver,
		JSXImportSource: opts.importSource,
		Context:         cmd.Context(),
	})
	if err != nil {
		return err
	}

	for idx, entry := range entries {
		abs, absErr := filepath.Abs(entry)
		if absErr != nil {
			return fmt.Errorf("resolve %s: %w", entry, absErr)
		}

		entries[idx] = abs
	}

	outdir := opts.outdir
	if !filepath.IsAbs(outdir) {
		outdir = filepath.Join(sess.root, outdir)
	}

	buildOpts := api.BuildOptions{
		EntryPoints:       entries,
		AbsWorkingDir:     sess.root,
		Bundle:            true,
		Write:             opts.write,
		Outdir:            outdir,
		Format:            api.FormatESModule,
		External:          opts.external,
		JSX:               api.JSXAutomatic,
		JSXImportSource:   opts.importSource,
		MinifyWhitespace:  opts.minify,
		MinifyIdentifiers: opts.minify,
		MinifySyntax:      opts.minify,
		Plugins:           []api.Plugin{adapter.Plugin()},
		LogLevel:          api.LogLevelSilent,
	}

	if opts.sourceMap {
		buildOpts.Sourcemap = api.SourceMapLinked
	}

	result := api.Build(buildOpts)

	out := cmd.OutOrStdout()
	reportMessages(out, "warning", color.New(color.FgYellow), result.Warnings)
	reportMessages(out, "error", color.New(color.FgRed), result.Errors)

	if len(result.Errors) > 0 {
		return fmt.Errorf("%w: %d error(s)", errBuildFailed, len(result.Errors))
	}

	for _, file := range result.OutputFiles {
		rel, relErr := filepath.Rel(sess.root, file.Path)
		if relErr != nil {
			rel = file.Path
		}

		fmt.Fprintf(out, "  %s  %s\n", rel, humanize.Bytes(uint64(len(file.Contents))))
	}

	color.New(color.FgGreen).Fprintf(out, "built %d file(s), %d verdict(s)\n",
		len(result.OutputFiles), sess.store.Len())

	return nil
}

func reportMessages(out io.Writer, kind string, paint *color.Color, msgs []api.Message) {
	for _, msg := range msgs {
		if msg.Location != nil {
			paint.Fprintf(out, "%s: %s:%d:%d: %s\n", kind, msg.Location.File, msg.Location.Line, msg.Location.Column, msg.Text)

			continue
		}

		paint.Fprintf(out, "%s: %s\n", kind, msg.Text)
	}
}
