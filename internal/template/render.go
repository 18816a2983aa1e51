package template

import (
	"fmt"
	"strings"
)

// Lookup resolves a hole name to its replacement text.
type Lookup func(name string) (string, bool)

// Render substitutes every hole. A hole the lookup cannot resolve is an
// error.
func (t *Template) Render(lookup Lookup) (string, error) {
	var sb strings.Builder
	for _, node := range t.Nodes {
		switch n := node.(type) {
		case LiteralNode:
			sb.WriteString(n.Value)
		case HoleNode:
			val, ok := lookup(n.Name)
			if !ok {
				return "", fmt.Errorf("line %d col %d: undefined template hole %q", n.Line, n.Col, n.Name)
			}
			sb.WriteString(val)
		}
	}
	return sb.String(), nil
}

// RenderMap renders t with values taken from vars.
func (t *Template) RenderMap(vars map[string]string) (string, error) {
	return t.Render(func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	})
}
