// Package analysis finds description markers inside container components,
// directly or through imported wrapper components.
package analysis

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Sumatoshi-tech/descinject/pkg/jsx"
)

// Candidate is a custom component rendered inside a container that might
// render the marker itself.
type Candidate struct {
	Name string       `json:"name"`
	Node *jsx.Element `json:"-"`
	// ImportSource is the module specifier the name was imported from.
	ImportSource string `json:"import_source,omitempty"`
	// ResolvedPath is where the host resolver located ImportSource.
	ResolvedPath string `json:"resolved_path,omitempty"`
	// ProvidesMarker reports that the resolved module renders the marker.
	ProvidesMarker bool `json:"provides_marker"`
}

// Result is the outcome of a scoped presence search.
type Result struct {
	FoundDirectly bool
	Candidates    []*Candidate
	// Containers counts the container instances entered.
	Containers int
}

// Search walks root and reports whether an element named marker occurs
// inside any element named container, collecting the custom components found
// there as candidates.
//
// Once the marker has been found and no container is open, the walk stops
// descending. A file with a second, later container only reachable through
// a wrapper therefore reports that container's candidates incompletely.
func Search(root jsx.Node, container, marker string) Result {
	s := &scopedSearch{
		container: container,
		marker:    marker,
		namespace: rootNamespace(container) + ".",
	}

	jsx.Walk(root, s)

	return s.result
}

type scopedSearch struct {
	container string
	marker    string
	namespace string
	open      int
	result    Result
}

func (s *scopedSearch) Enter(n jsx.Node) jsx.Action {
	if s.result.FoundDirectly && s.open == 0 {
		return jsx.SkipChildren
	}

	el, ok := n.(*jsx.Element)
	if !ok {
		return jsx.Continue
	}

	if el.Name == s.container {
		s.open++
		s.result.Containers++

		return jsx.Continue
	}

	if s.open == 0 {
		return jsx.Continue
	}

	switch {
	case el.Name == s.marker:
		s.result.FoundDirectly = true
	case IsComponentName(el.Name) && !strings.HasPrefix(el.Name, s.namespace):
		s.result.Candidates = append(s.result.Candidates, &Candidate{Name: el.Name, Node: el})
	}

	return jsx.Continue
}

func (s *scopedSearch) Leave(n jsx.Node) {
	if el, ok := n.(*jsx.Element); ok && el.Name == s.container && s.open > 0 {
		s.open--
	}
}

// SearchUnscoped reports whether an element named marker occurs anywhere
// under root.
func SearchUnscoped(root jsx.Node, marker string) bool {
	found := false

	jsx.Walk(root, jsx.VisitorFuncs{EnterFunc: func(n jsx.Node) jsx.Action {
		if el, ok := n.(*jsx.Element); ok && el.Name == marker {
			found = true

			return jsx.Stop
		}

		return jsx.Continue
	}})

	return found
}

// IsComponentName reports whether a JSX element name refers to a component
// rather than an intrinsic element: a capitalised identifier or a member
// access such as `ui.Button`. Namespaced names (`svg:rect`) and fragments
// are intrinsic.
func IsComponentName(name string) bool {
	if name == "" || strings.Contains(name, ":") {
		return false
	}

	if strings.Contains(name, ".") {
		return true
	}

	first, _ := utf8.DecodeRuneInString(name)

	return unicode.IsUpper(first)
}

// rootNamespace returns the first segment of a dotted name.
func rootNamespace(name string) string {
	head, _, _ := strings.Cut(name, ".")

	return head
}
