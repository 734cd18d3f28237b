package plugin

import (
	"path/filepath"
	"slices"
	"strings"
)

// CanonicalPath strips the query and fragment bundlers append to module ids
// (`/src/App.tsx?v=3`) and cleans the remaining path.
func CanonicalPath(id string) string {
	path, _, _ := strings.Cut(id, "?")
	path, _, _ = strings.Cut(path, "#")

	if path == "" {
		return ""
	}

	return filepath.Clean(path)
}

// Filter gates hook invocations on an absolute path prefix and a set of
// source suffixes.
type Filter struct {
	prefix   string
	suffixes []string
}

// NewFilter creates a Filter. An empty prefix accepts every directory.
func NewFilter(prefix string, suffixes []string) Filter {
	if prefix != "" {
		prefix = filepath.Clean(prefix)
	}

	return Filter{prefix: prefix, suffixes: slices.Clone(suffixes)}
}

// Match reports whether the canonical form of id passes the filter.
func (f Filter) Match(id string) bool {
	path := CanonicalPath(id)
	if path == "" {
		return false
	}

	if f.prefix != "" && path != f.prefix && !strings.HasPrefix(path, f.prefix+string(filepath.Separator)) {
		return false
	}

	return slices.ContainsFunc(f.suffixes, func(suffix string) bool {
		return strings.HasSuffix(path, suffix)
	})
}
