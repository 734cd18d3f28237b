package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/descinject/pkg/observability"
	"github.com/Sumatoshi-tech/descinject/pkg/plugin"
	"github.com/Sumatoshi-tech/descinject/pkg/verdict"
)

// skippedDirs are never descended into while collecting sources.
var skippedDirs = map[string]bool{
	"node_modules": true,
	"dist":         true,
	"build":        true,
}

type scanOptions struct {
	save   string
	asJSON bool
	failOn bool
}

// scanRow is one analysed file.
type scanRow struct {
	Path    string       `json:"path"`
	State   plugin.State `json:"state"`
	Verdict bool         `json:"verdict"`
	Size    uint64       `json:"size"`
}

func newScanCommand() *cobra.Command {
	var opts scanOptions

	cmd := &cobra.Command{
		Use:   "scan [paths...]",
		Short: "Analyse JSX/TSX files and report whether their containers hold a description",
		Long: `Run the load hook over every matching file under the given paths (default:
the project root) and print one verdict per file.

Use --save to write the verdicts to an LZ4 snapshot that "rewrite --cache"
can consume in a later process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.save, "save", "", "write verdicts to this snapshot file")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print results as JSON")
	cmd.Flags().BoolVar(&opts.failOn, "fail-on-error", false, "exit non-zero when any file fails to analyse")

	return cmd
}

func runScan(cmd *cobra.Command, args []string, opts scanOptions) error {
	sess, err := newSession(cmd, observability.ModeCLI)
	if err != nil {
		return err
	}
	defer sess.close(cmd.Context())

	hooks, err := sess.plugin()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		args = []string{sess.root}
	}

	files, err := collectSources(args, hooks.Filter())
	if err != nil {
		return err
	}

	rows := make([]scanRow, len(files))

	group, ctx := errgroup.WithContext(cmd.Context())
	group.SetLimit(scanLimit(sess.cfg.Plugin.Parallelism))

	for idx, file := range files {
		group.Go(func() error {
			row := scanRow{Path: file.path, Size: file.size}
			row.State = hooks.Load(ctx, file.path)

			if entry, ok := sess.store.Get(file.path); ok {
				row.Verdict = entry.Verdict
			}

			rows[idx] = row

			return ctx.Err()
		})
	}

	err = group.Wait()
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	if opts.save != "" {
		err = saveSnapshot(opts.save, sess.store)
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")

		err = enc.Encode(rows)
		if err != nil {
			return fmt.Errorf("encode results: %w", err)
		}
	} else {
		renderScan(out, sess.root, rows)
	}

	if failed := countState(rows, plugin.StateFailed); opts.failOn && failed > 0 {
		return fmt.Errorf("%w: %d file(s)", errAnalysisFailed, failed)
	}

	return nil
}

type sourceFile struct {
	path string
	size uint64
}

// collectSources expands args into the sorted set of files filter accepts.
func collectSources(args []string, filter plugin.Filter) ([]sourceFile, error) {
	seen := make(map[string]bool)

	var files []sourceFile

	add := func(path string, info fs.FileInfo) {
		if seen[path] || !filter.Match(path) {
			return
		}

		seen[path] = true
		files = append(files, sourceFile{path: path, size: uint64(max(info.Size(), 0))})
	}

	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", arg, err)
		}

		walkErr := filepath.WalkDir(abs, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			if entry.IsDir() {
				if path != abs && (skippedDirs[entry.Name()] || strings.HasPrefix(entry.Name(), ".")) {
					return filepath.SkipDir
				}

				return nil
			}

			info, infoErr := entry.Info()
			if infoErr != nil {
				return infoErr
			}

			add(path, info)

			return nil
		})
		if walkErr != nil {
			return nil, fmt.Errorf("walk %s: %w", arg, walkErr)
		}
	}

	slices.SortFunc(files, func(a, b sourceFile) int { return strings.Compare(a.path, b.path) })

	return files, nil
}

func scanLimit(parallelism int) int {
	if parallelism > 1 {
		return parallelism
	}

	return runtime.GOMAXPROCS(0)
}

func saveSnapshot(path string, store *verdict.MemoryStore) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}

	saveErr := verdict.Save(file, store)
	closeErr := file.Close()

	if saveErr != nil {
		return saveErr
	}

	if closeErr != nil {
		return fmt.Errorf("close snapshot: %w", closeErr)
	}

	return nil
}

func renderScan(out io.Writer, root string, rows []scanRow) {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(out)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.DrawBorder = false

	tbl.AppendHeader(table.Row{"File", "State", "Description", "Size"})

	var total uint64

	for _, row := range rows {
		rel, err := filepath.Rel(root, row.Path)
		if err != nil || strings.HasPrefix(rel, "..") {
			rel = row.Path
		}

		tbl.AppendRow(table.Row{rel, string(row.State), verdictCell(row), humanize.Bytes(row.Size)})

		total += row.Size
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d files", len(rows)), "", "", humanize.Bytes(total)})
	tbl.Render()

	with, without := 0, 0

	for _, row := range rows {
		if row.State != plugin.StateCached {
			continue
		}

		if row.Verdict {
			with++
		} else {
			without++
		}
	}

	color.New(color.FgGreen).Fprintf(out, "%d with description", with)
	fmt.Fprint(out, ", ")
	color.New(color.FgYellow).Fprintf(out, "%d without", without)

	if failed := countState(rows, plugin.StateFailed); failed > 0 {
		fmt.Fprint(out, ", ")
		color.New(color.FgRed).Fprintf(out, "%d failed", failed)
	}

	fmt.Fprintln(out)
}

func verdictCell(row scanRow) string {
	switch {
	case row.State != plugin.StateCached:
		return "-"
	case row.Verdict:
		return "yes"
	default:
		return "no"
	}
}

func countState(rows []scanRow, state plugin.State) int {
	n := 0

	for _, row := range rows {
		if row.State == state {
			n++
		}
	}

	return n
}
