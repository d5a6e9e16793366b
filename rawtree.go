package indiclient

import "strings"

// rawAttr is one attribute on a rawElement, kept in an ordered slice rather
// than a map so the decoder preserves arrival order (the serializer does not
// use it; it emits attributes in its own fixed order).
type rawAttr struct {
	Name  string
	Value string
}

// rawElement is one top-level XML element (or one of its descendants) as
// produced by the stream decoder (component A), before component B has
// assigned it any protocol meaning. Unknown elements and attributes are
// still represented here; it is the builder's job to warn about them.
type rawElement struct {
	Name        string
	Attrs       []rawAttr
	Text        string
	Children    []*rawElement
	Diagnostics []Diagnostic // populated by the decoder itself (malformed recovery)
}

// attr returns the value of the named attribute and whether it was present.
func (e *rawElement) attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// childrenNamed returns the direct children whose tag name matches.
func (e *rawElement) childrenNamed(name string) []*rawElement {
	var out []*rawElement
	for _, c := range e.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

func trimText(s string) string {
	return strings.TrimSpace(s)
}
