// Package resolve locates the source file behind a relative, absolute or
// aliased import specifier on the local filesystem.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ErrEmptySpecifier reports an empty import specifier.
var ErrEmptySpecifier = errors.New("empty import specifier")

// FS resolves specifiers the way bundlers resolve user code: relative to
// the importing file, through configured aliases, with extension and
// directory index probing. Bare package specifiers are not resolved.
type FS struct {
	root       string
	aliases    []alias
	extensions []string
	stat       func(string) (fs.FileInfo, error)
}

type alias struct {
	prefix string
	target string
}

// Option configures an FS resolver.
type Option func(*FS)

// WithAliases maps specifier prefixes to directories. Relative targets are
// taken relative to the resolver root. The longest matching prefix wins.
func WithAliases(aliases map[string]string) Option {
	return func(r *FS) {
		for prefix, target := range aliases {
			if !filepath.IsAbs(target) {
				target = filepath.Join(r.root, target)
			}

			r.aliases = append(r.aliases, alias{prefix: prefix, target: target})
		}

		slices.SortFunc(r.aliases, func(a, b alias) int {
			return len(b.prefix) - len(a.prefix)
		})
	}
}

// WithExtensions sets the extensions probed for extensionless specifiers.
// An empty list keeps the defaults.
func WithExtensions(exts []string) Option {
	return func(r *FS) {
		if len(exts) == 0 {
			return
		}

		r.extensions = slices.Clone(exts)
	}
}

// WithStat replaces os.Stat, mainly for tests.
func WithStat(stat func(string) (fs.FileInfo, error)) Option {
	return func(r *FS) {
		r.stat = stat
	}
}

// New creates a resolver rooted at root.
func New(root string, opts ...Option) *FS {
	r := &FS{
		root:       filepath.Clean(root),
		extensions: []string{".tsx", ".ts", ".jsx", ".js", ".mjs"},
		stat:       os.Stat,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve implements analysis.Resolver.
func (r *FS) Resolve(ctx context.Context, specifier, importer string) (string, bool, error) {
	err := ctx.Err()
	if err != nil {
		return "", false, fmt.Errorf("resolve %q: %w", specifier, err)
	}

	specifier, _, _ = strings.Cut(specifier, "?")
	if specifier == "" {
		return "", false, ErrEmptySpecifier
	}

	base, ok := r.base(specifier, importer)
	if !ok {
		return "", false, nil
	}

	for _, candidate := range r.candidates(base) {
		info, statErr := r.stat(candidate)
		if statErr == nil && info.Mode().IsRegular() {
			return candidate, true, nil
		}
	}

	return "", false, nil
}

func (r *FS) base(specifier, importer string) (string, bool) {
	for _, a := range r.aliases {
		if rest, ok := strings.CutPrefix(specifier, a.prefix); ok {
			return filepath.Join(a.target, filepath.FromSlash(rest)), true
		}
	}

	switch {
	case strings.HasPrefix(specifier, "./"), strings.HasPrefix(specifier, "../"), specifier == ".", specifier == "..":
		return filepath.Join(filepath.Dir(importer), filepath.FromSlash(specifier)), true
	case filepath.IsAbs(specifier):
		return filepath.Clean(specifier), true
	default:
		return "", false
	}
}

// candidates lists the paths probed for base, in order.
func (r *FS) candidates(base string) []string {
	out := make([]string, 0, 2+2*len(r.extensions))
	out = append(out, base)

	// TypeScript sources are imported with the extension of their output.
	switch ext := filepath.Ext(base); ext {
	case ".js", ".mjs":
		stem := strings.TrimSuffix(base, ext)
		out = append(out, stem+".ts", stem+".tsx")
	case ".jsx":
		out = append(out, strings.TrimSuffix(base, ext)+".tsx")
	}

	for _, ext := range r.extensions {
		out = append(out, base+ext)
	}

	for _, ext := range r.extensions {
		out = append(out, filepath.Join(base, "index"+ext))
	}

	return out
}
