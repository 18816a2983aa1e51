package template

import "fmt"

// Node represents a parsed template element: literal text or a hole
type Node interface {
	String() string
}

// LiteralNode is text copied to the output unchanged
type LiteralNode struct {
	Value string
}

func (l LiteralNode) String() string {
	return fmt.Sprintf("Literal(%q)", l.Value)
}

// HoleNode is a `$name$` placeholder
type HoleNode struct {
	Name string
	Line int
	Col  int
}

func (h HoleNode) String() string {
	return fmt.Sprintf("Hole(%q)", h.Name)
}

// Parse converts a sequence of tokens into a slice of Nodes.
func Parse(tokens []Token) ([]Node, error) {
	var nodes []Node
	for _, tok := range tokens {
		switch tok.Type {
		case TokenEOF:
			return nodes, nil
		case TokenLiteral:
			nodes = append(nodes, LiteralNode{Value: tok.Value})
		case TokenHole:
			nodes = append(nodes, HoleNode{Name: tok.Value, Line: tok.Line, Col: tok.Col})
		default:
			return nil, errorf(tok, "unexpected token type: %v", tok.Type)
		}
	}
	return nodes, nil
}

// Template is a parsed template ready to render.
type Template struct {
	Source string
	Nodes  []Node
}

// New lexes and parses src.
func New(src string) (*Template, error) {
	toks, err := Lex(src)
	if err != nil {
		return nil, err
	}
	nodes, err := Parse(toks)
	if err != nil {
		return nil, err
	}
	return &Template{Source: src, Nodes: nodes}, nil
}

// Holes returns the distinct hole names in order of first appearance.
func (t *Template) Holes() []string {
	seen := make(map[string]bool)
	var names []string
	for _, n := range t.Nodes {
		if h, ok := n.(HoleNode); ok && !seen[h.Name] {
			seen[h.Name] = true
			names = append(names, h.Name)
		}
	}
	return names
}
