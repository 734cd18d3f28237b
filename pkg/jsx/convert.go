package jsx

import (
	"strings"

	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

// Tree-sitter node types the converter maps onto the closed node set.
const (
	tsError          = "ERROR"
	tsComment        = "comment"
	tsElement        = "jsx_element"
	tsSelfClosing    = "jsx_self_closing_element"
	tsOpeningElement = "jsx_opening_element"
	tsClosingElement = "jsx_closing_element"
	tsAttribute      = "jsx_attribute"
	tsExpression     = "jsx_expression"
	tsNamespaceName  = "jsx_namespace_name"
	tsImport         = "import_statement"
	tsImportClause   = "import_clause"
	tsNamespaceImp   = "namespace_import"
	tsNamedImports   = "named_imports"
	tsImportSpec     = "import_specifier"
	tsCall           = "call_expression"
	tsArguments      = "arguments"
	tsObject         = "object"
	tsPair           = "pair"
	tsShorthand      = "shorthand_property_identifier"
	tsSpread         = "spread_element"
	tsMethod         = "method_definition"
	tsComputedKey    = "computed_property_name"
	tsString         = "string"
	tsIdentifier     = "identifier"
	tsMember         = "member_expression"
	tsNestedIdent    = "nested_identifier"
)

type converter struct {
	src  []byte
	errs []Span
}

func (c *converter) convert(n sitter.Node) Node {
	switch n.Type() {
	case tsElement:
		return c.element(n, n.ChildByFieldName("open_tag"), false)
	case tsSelfClosing:
		return c.element(n, n, true)
	case tsImport:
		return c.importDecl(n)
	case tsCall:
		return c.call(n)
	case tsObject:
		return c.object(n)
	case tsIdentifier:
		return &Ident{base: c.leaf(n), Name: c.text(n)}
	case tsMember:
		return c.member(n)
	default:
		return c.other(n)
	}
}

// collectErrors records every ERROR node and every token the parser had to
// invent to recover.
func (c *converter) collectErrors(n sitter.Node) {
	if n.Type() == tsError || n.IsMissing() {
		c.errs = append(c.errs, spanOf(n))

		return
	}

	for idx := range n.ChildCount() {
		c.collectErrors(n.Child(idx))
	}
}

func (c *converter) element(n, tag sitter.Node, selfClosing bool) *Element {
	el := &Element{base: c.leaf(n), SelfClosing: selfClosing}

	if !tag.IsNull() {
		if nameNode := tag.ChildByFieldName("name"); !nameNode.IsNull() {
			el.Name = c.elementName(nameNode)
		}

		for _, child := range namedChildren(tag) {
			switch child.Type() {
			case tsAttribute:
				attr := c.attribute(child)
				el.Attrs = append(el.Attrs, attr)

				if attr.Value != nil {
					el.kids = append(el.kids, attr.Value)
				}
			case tsExpression:
				value := c.convert(child)
				el.Attrs = append(el.Attrs, Attribute{Span: spanOf(child), Value: value, Spread: true})
				el.kids = append(el.kids, value)
			}
		}
	}

	if selfClosing {
		return el
	}

	for _, child := range namedChildren(n) {
		switch child.Type() {
		case tsOpeningElement, tsClosingElement:
			continue
		}

		el.kids = append(el.kids, c.convert(child))
	}

	return el
}

func (c *converter) attribute(n sitter.Node) Attribute {
	attr := Attribute{Span: spanOf(n)}
	children := namedChildren(n)

	if len(children) > 0 {
		attr.Name = c.elementName(children[0])
	}

	if len(children) > 1 {
		attr.Value = c.convert(children[1])
	}

	return attr
}

// elementName reconstructs a JSX element or attribute name.
func (c *converter) elementName(n sitter.Node) string {
	switch n.Type() {
	case tsMember, tsNestedIdent:
		object := n.ChildByFieldName("object")
		property := n.ChildByFieldName("property")

		if !object.IsNull() && !property.IsNull() {
			return c.elementName(object) + "." + c.text(property)
		}

		return c.joinNamed(n, ".")
	case tsNamespaceName:
		return c.joinNamed(n, ":")
	default:
		return c.text(n)
	}
}

func (c *converter) joinNamed(n sitter.Node, sep string) string {
	children := namedChildren(n)
	parts := make([]string, 0, len(children))

	for _, child := range children {
		parts = append(parts, c.elementName(child))
	}

	return strings.Join(parts, sep)
}

func (c *converter) importDecl(n sitter.Node) *ImportDecl {
	decl := &ImportDecl{base: c.leaf(n)}

	if source := n.ChildByFieldName("source"); !source.IsNull() {
		decl.Source = unquote(c.text(source))
	}

	for _, child := range namedChildren(n) {
		if child.Type() == tsImportClause {
			decl.Bindings = c.bindings(child)
		}
	}

	return decl
}

func (c *converter) bindings(clause sitter.Node) []Binding {
	var out []Binding

	for _, child := range namedChildren(clause) {
		switch child.Type() {
		case tsIdentifier:
			out = append(out, Binding{Local: c.text(child), Imported: "default", Kind: BindingDefault})
		case tsNamespaceImp:
			for _, ident := range namedChildren(child) {
				if ident.Type() == tsIdentifier {
					out = append(out, Binding{Local: c.text(ident), Imported: "*", Kind: BindingNamespace})
				}
			}
		case tsNamedImports:
			for _, spec := range namedChildren(child) {
				if spec.Type() != tsImportSpec {
					continue
				}

				name := spec.ChildByFieldName("name")
				if name.IsNull() {
					continue
				}

				binding := Binding{Imported: unquote(c.text(name)), Kind: BindingNamed}
				binding.Local = binding.Imported

				if alias := spec.ChildByFieldName("alias"); !alias.IsNull() {
					binding.Local = c.text(alias)
				}

				out = append(out, binding)
			}
		}
	}

	return out
}

func (c *converter) call(n sitter.Node) *Call {
	call := &Call{base: c.leaf(n)}

	if fn := n.ChildByFieldName("function"); !fn.IsNull() {
		call.Callee = c.convert(fn)
		call.kids = append(call.kids, call.Callee)
	}

	args := n.ChildByFieldName("arguments")
	if args.IsNull() {
		return call
	}

	if args.Type() != tsArguments {
		// Tagged template: keep it walkable but expose no arguments.
		call.kids = append(call.kids, c.convert(args))

		return call
	}

	for _, child := range namedChildren(args) {
		arg := c.convert(child)
		call.Args = append(call.Args, arg)
		call.kids = append(call.kids, arg)
	}

	return call
}

func (c *converter) object(n sitter.Node) *Object {
	obj := &Object{base: c.leaf(n)}

	for _, child := range namedChildren(n) {
		prop, ok := c.property(child)
		if !ok {
			continue
		}

		obj.Props = append(obj.Props, prop)

		if prop.Value != nil {
			obj.kids = append(obj.kids, prop.Value)
		}
	}

	return obj
}

func (c *converter) property(n sitter.Node) (Property, bool) {
	prop := Property{Span: spanOf(n)}

	switch n.Type() {
	case tsPair:
		key := n.ChildByFieldName("key")
		if key.IsNull() {
			return prop, false
		}

		prop.KeySpan = spanOf(key)
		prop.Computed = key.Type() == tsComputedKey
		prop.Key = c.text(key)

		if key.Type() == tsString {
			prop.Key = unquote(prop.Key)
		}

		if value := n.ChildByFieldName("value"); !value.IsNull() {
			prop.Value = c.convert(value)
		}
	case tsShorthand:
		prop.KeySpan = prop.Span
		prop.Key = c.text(n)
		prop.Shorthand = true
		prop.Value = &Ident{base: c.leaf(n), Name: prop.Key}
	case tsSpread:
		prop.Spread = true

		if children := namedChildren(n); len(children) > 0 {
			prop.Value = c.convert(children[0])
		}
	case tsMethod:
		prop.Method = true

		if name := n.ChildByFieldName("name"); !name.IsNull() {
			prop.KeySpan = spanOf(name)
			prop.Key = unquote(c.text(name))
		}

		prop.Value = c.other(n)
	default:
		return prop, false
	}

	return prop, true
}

func (c *converter) member(n sitter.Node) Node {
	object := n.ChildByFieldName("object")
	property := n.ChildByFieldName("property")

	if object.IsNull() || property.IsNull() {
		return c.other(n)
	}

	m := &Member{base: c.leaf(n), Property: c.text(property)}
	m.Object = c.convert(object)
	m.kids = []Node{m.Object}

	return m
}

func (c *converter) other(n sitter.Node) *Other {
	o := &Other{base: c.leaf(n), Type: n.Type()}

	for _, child := range namedChildren(n) {
		o.kids = append(o.kids, c.convert(child))
	}

	return o
}

func (c *converter) leaf(n sitter.Node) base {
	return base{span: spanOf(n)}
}

func (c *converter) text(n sitter.Node) string {
	s := spanOf(n)
	if s.End > len(c.src) || s.Start > s.End {
		return ""
	}

	return string(c.src[s.Start:s.End])
}

// namedChildren returns the named, non-comment children of n.
func namedChildren(n sitter.Node) []sitter.Node {
	out := make([]sitter.Node, 0, n.NamedChildCount())

	for idx := range n.NamedChildCount() {
		child := n.NamedChild(idx)
		if child.IsNull() || child.Type() == tsComment {
			continue
		}

		out = append(out, child)
	}

	return out
}

func spanOf(n sitter.Node) Span {
	return Span{Start: int(n.StartByte()), End: int(n.EndByte())}
}

// unquote strips matching single, double or backtick quotes. Escape
// sequences are left untouched; module specifiers rarely carry them.
func unquote(s string) string {
	if len(s) < 2 {
		return s
	}

	first, last := s[0], s[len(s)-1]
	if first == last && (first == '"' || first == '\'' || first == '`') {
		return s[1 : len(s)-1]
	}

	return s
}
