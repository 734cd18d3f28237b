package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/descinject/pkg/esbuildplugin"
	"github.com/Sumatoshi-tech/descinject/pkg/observability"
	"github.com/Sumatoshi-tech/descinject/pkg/plugin"
	"github.com/Sumatoshi-tech/descinject/pkg/verdict"
)

var (
	errAnalysisFailed = errors.New("analysis failed")
	errNoVerdict      = errors.New("no verdict for file")
)

type rewriteOptions struct {
	output       string
	cache        string
	importSource string
	diff         bool
	sourceMap    bool
}

func newRewriteCommand() *cobra.Command {
	var opts rewriteOptions

	cmd := &cobra.Command{
		Use:   "rewrite FILE",
		Short: "Lower a JSX/TSX file and inject the description flag",
		Long: `Compile FILE's JSX to automatic-runtime factory calls with esbuild and set the
description flag on every container call.

The verdict comes from --cache when the snapshot holds an entry whose digest
matches the file, and from a fresh analysis otherwise.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRewrite(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write the result here instead of stdout")
	cmd.Flags().StringVar(&opts.cache, "cache", "", "read verdicts from a snapshot written by scan --save")
	cmd.Flags().StringVar(&opts.importSource, "jsx-import-source", esbuildplugin.DefaultJSXImportSource,
		"module the automatic JSX runtime is imported from")
	cmd.Flags().BoolVar(&opts.diff, "diff", false, "print a line diff against the lowered code instead of the result")
	cmd.Flags().BoolVar(&opts.sourceMap, "sourcemap", false,
		"append an inline source map of the injection, mapped against esbuild's lowered output")

	return cmd
}

func runRewrite(cmd *cobra.Command, file string, opts rewriteOptions) error {
	sess, err := newSession(cmd, observability.ModeCLI)
	if err != nil {
		return err
	}
	defer sess.close(cmd.Context())

	path, err := filepath.Abs(file)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", file, err)
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}

	if opts.cache != "" {
		err = loadSnapshot(opts.cache, sess.store)
		if err != nil {
			return err
		}
	}

	hooks, err := sess.plugin()
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	if _, cached := sess.store.Get(path); !cached {
		switch state := hooks.Load(ctx, path); state {
		case plugin.StateCached:
		case plugin.StateSkipped:
			return fmt.Errorf("%w: %s is outside the include filter", errNoVerdict, file)
		default:
			return fmt.Errorf("%w: %s", errAnalysisFailed, file)
		}
	}

	lowered, err := esbuildplugin.Lower(path, src, opts.importSource)
	if err != nil {
		return err
	}

	code := lowered

	out := hooks.Transform(ctx, lowered, path)
	if out != nil {
		code = out.Code

		if opts.sourceMap {
			// The map's input is the lowered text carried in sourcesContent, not FILE itself.
			out.Map.Sources = []string{loweredSourceName(path)}

			dataURL, mapErr := out.Map.DataURL()
			if mapErr != nil {
				return fmt.Errorf("encode source map: %w", mapErr)
			}

			code += "\n//# sourceMappingURL=" + dataURL + "\n"
		}
	}

	if opts.output == "" {
		return writeRewrite(cmd.OutOrStdout(), lowered, code, opts.diff)
	}

	outFile, err := os.Create(opts.output)
	if err != nil {
		return fmt.Errorf("create %s: %w", opts.output, err)
	}

	writeErr := writeRewrite(outFile, lowered, code, opts.diff)
	closeErr := outFile.Close()

	if writeErr != nil {
		return writeErr
	}

	if closeErr != nil {
		return fmt.Errorf("close %s: %w", opts.output, closeErr)
	}

	return nil
}

func writeRewrite(dst io.Writer, lowered, code string, diff bool) error {
	if diff {
		writeLineDiff(dst, lowered, code)

		return nil
	}

	_, err := io.WriteString(dst, code)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	return nil
}

// loweredSourceName names the esbuild output a rewrite source map points into.
func loweredSourceName(path string) string {
	return filepath.Base(path) + ".lowered.js"
}

// loadSnapshot fills store with the snapshot entries whose digest still
// matches the file on disk.
func loadSnapshot(path string, store verdict.Store) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer file.Close()

	_, err = verdict.Load(file, store, func(source string, entry verdict.Entry) bool {
		data, readErr := os.ReadFile(source)

		return readErr == nil && verdict.Digest(data) == entry.Digest
	})
	if err != nil {
		return fmt.Errorf("load snapshot %s: %w", path, err)
	}

	return nil
}

// writeLineDiff prints the lines that differ between before and after.
func writeLineDiff(out io.Writer, before, after string) {
	dmp := diffmatchpatch.New()
	src, dst, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(src, dst, false), lines)

	removed := color.New(color.FgRed)
	added := color.New(color.FgGreen)

	for _, diff := range diffs {
		var (
			prefix string
			paint  *color.Color
		)

		switch diff.Type {
		case diffmatchpatch.DiffDelete:
			prefix, paint = "-", removed
		case diffmatchpatch.DiffInsert:
			prefix, paint = "+", added
		default:
			continue
		}

		for _, line := range strings.SplitAfter(strings.TrimSuffix(diff.Text, "\n"), "\n") {
			paint.Fprintln(out, prefix+strings.TrimSuffix(line, "\n"))
		}
	}
}
