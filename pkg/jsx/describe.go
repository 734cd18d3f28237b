package jsx

// PropKind classifies a described prop value.
type PropKind string

// Prop kinds.
const (
	PropString     PropKind = "string"
	PropBoolean    PropKind = "boolean"
	PropExpression PropKind = "expression"
	PropElement    PropKind = "element"
	PropSpread     PropKind = "spread"
)

// Prop is one described prop.
type Prop struct {
	Name  string   `json:"name,omitempty"`
	Kind  PropKind `json:"kind"`
	Value string   `json:"value,omitempty"`
}

// Descriptor is a diagnostic summary of a component usage: its dotted name
// and its props.
type Descriptor struct {
	Name  string `json:"name"`
	Props []Prop `json:"props,omitempty"`
}

// Describe extracts a Descriptor from a JSX element or from a lowered
// factory call of the form `factory(Name, { ...props })`. It reports false
// for any other node.
func (f *File) Describe(n Node) (Descriptor, bool) {
	switch v := n.(type) {
	case *Element:
		return f.describeElement(v), true
	case *Call:
		return f.describeCall(v)
	default:
		return Descriptor{}, false
	}
}

func (f *File) describeElement(el *Element) Descriptor {
	desc := Descriptor{Name: el.Name}

	for _, attr := range el.Attrs {
		switch {
		case attr.Spread:
			desc.Props = append(desc.Props, Prop{Kind: PropSpread, Value: f.slice(attr.Span)})
		case attr.Value == nil:
			desc.Props = append(desc.Props, Prop{Name: attr.Name, Kind: PropBoolean, Value: "true"})
		default:
			desc.Props = append(desc.Props, f.describeValue(attr.Name, attr.Value))
		}
	}

	return desc
}

func (f *File) describeCall(call *Call) (Descriptor, bool) {
	if len(call.Args) == 0 {
		return Descriptor{}, false
	}

	name, ok := DottedName(call.Args[0])
	if !ok {
		return Descriptor{}, false
	}

	desc := Descriptor{Name: name}

	if len(call.Args) < 2 {
		return desc, true
	}

	obj, ok := call.Args[1].(*Object)
	if !ok {
		return desc, true
	}

	for _, prop := range obj.Props {
		if prop.Spread {
			desc.Props = append(desc.Props, Prop{Kind: PropSpread, Value: f.slice(prop.Span)})

			continue
		}

		desc.Props = append(desc.Props, f.describeValue(prop.Key, prop.Value))
	}

	return desc, true
}

func (f *File) describeValue(name string, value Node) Prop {
	prop := Prop{Name: name, Kind: PropExpression, Value: f.Text(value)}

	switch v := value.(type) {
	case *Element:
		prop.Kind = PropElement
	case *Other:
		switch v.Type {
		case tsString:
			prop.Kind = PropString
			prop.Value = unquote(prop.Value)
		case "true", "false":
			prop.Kind = PropBoolean
		case tsExpression:
			if kids := v.Children(); len(kids) == 1 {
				return f.describeValue(name, kids[0])
			}
		}
	}

	return prop
}
