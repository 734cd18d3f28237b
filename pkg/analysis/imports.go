package analysis

import (
	"strings"

	"github.com/Sumatoshi-tech/descinject/pkg/jsx"
)

// BindImports annotates candidates with the module specifier their name was
// imported from. Matching is lexical on the candidate's first name segment,
// so `Wrapper` and `Ns.Wrapper` both bind through a local `Wrapper`/`Ns`.
// Only top-level import declarations are inspected.
func BindImports(root jsx.Node, candidates []*Candidate) {
	if len(candidates) == 0 {
		return
	}

	byLocal := make(map[string][]*Candidate, len(candidates))
	for _, c := range candidates {
		local := rootNamespace(c.Name)
		byLocal[local] = append(byLocal[local], c)
	}

	forEachImport(root, func(decl *jsx.ImportDecl) bool {
		for _, binding := range decl.Bindings {
			for _, c := range byLocal[binding.Local] {
				c.ImportSource = decl.Source
			}
		}

		return true
	})
}

// ImportsPackage reports whether root imports pkg or one of its sub-paths.
func ImportsPackage(root jsx.Node, pkg string) bool {
	if pkg == "" {
		return false
	}

	found := false

	forEachImport(root, func(decl *jsx.ImportDecl) bool {
		if decl.Source == pkg || strings.HasPrefix(decl.Source, pkg+"/") {
			found = true

			return false
		}

		return true
	})

	return found
}

// forEachImport calls fn for every top-level import declaration until fn
// returns false.
func forEachImport(root jsx.Node, fn func(*jsx.ImportDecl) bool) {
	jsx.Walk(root, jsx.VisitorFuncs{EnterFunc: func(n jsx.Node) jsx.Action {
		if n == root {
			return jsx.Continue
		}

		decl, ok := n.(*jsx.ImportDecl)
		if !ok {
			return jsx.SkipChildren
		}

		if !fn(decl) {
			return jsx.Stop
		}

		return jsx.SkipChildren
	}})
}
