// Package jsx parses JSX/TSX sources with tree-sitter and exposes the small,
// closed set of node kinds the description analysis inspects.
package jsx

// Span is a half-open byte range [Start, End) into the parsed source.
type Span struct {
	Start int
	End   int
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// Node is a node of the analysis tree. The set of implementations is closed:
// *Element, *ImportDecl, *Call, *Object, *Ident, *Member and *Other.
type Node interface {
	// Span returns the byte range of the node in the source.
	Span() Span
	// Children returns the child nodes in source order.
	Children() []Node

	isNode()
}

type base struct {
	span Span
	kids []Node
}

func (b *base) Span() Span       { return b.span }
func (b *base) Children() []Node { return b.kids }
func (b *base) isNode()          {}

// Element is a JSX element, either `<Name ...>...</Name>` or `<Name ... />`.
// Fragments have an empty Name.
type Element struct {
	base

	// Name is the dotted element name, e.g. "Dialog.Root" or "div".
	Name        string
	Attrs       []Attribute
	SelfClosing bool
}

// Attribute is a JSX attribute of an element.
type Attribute struct {
	Span

	Name string
	// Value is nil for bare boolean attributes like `<X open />`.
	Value  Node
	Spread bool
}

// BindingKind distinguishes the forms of an import binding.
type BindingKind uint8

// Import binding kinds.
const (
	BindingNamed BindingKind = iota
	BindingDefault
	BindingNamespace
)

// Binding is one local name introduced by an import declaration.
type Binding struct {
	Local    string
	Imported string
	Kind     BindingKind
}

// ImportDecl is an `import ... from "source"` declaration.
type ImportDecl struct {
	base

	Source   string
	Bindings []Binding
}

// Call is a call expression.
type Call struct {
	base

	Callee Node
	Args   []Node
}

// Property is one entry of an object literal.
type Property struct {
	Span

	// KeySpan is the byte range of the key; zero for spreads.
	KeySpan Span
	Key     string
	Value   Node

	Computed  bool
	Shorthand bool
	Spread    bool
	Method    bool
}

// Object is an object literal expression.
type Object struct {
	base

	Props []Property
}

// Ident is an identifier in expression position.
type Ident struct {
	base

	Name string
}

// Member is a non-computed member access `Object.Property`.
type Member struct {
	base

	Object   Node
	Property string
}

// Other is any node kind the analysis does not inspect. Type holds the
// grammar's node type name.
type Other struct {
	base

	Type string
}

// DottedName reconstructs the dotted name of an identifier or a chain of
// member accesses. It reports false for any other expression.
func DottedName(n Node) (string, bool) {
	switch v := n.(type) {
	case *Ident:
		return v.Name, v.Name != ""
	case *Member:
		head, ok := DottedName(v.Object)
		if !ok || v.Property == "" {
			return "", false
		}

		return head + "." + v.Property, true
	default:
		return "", false
	}
}
