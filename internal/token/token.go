package token

import (
	"fmt"
	"strings"
)

// Kind defines the lexical category of a token
type Kind int

const (
	ENDMARKER Kind = iota
	NAME
	NUMBER
	STRING
	NEWLINE
	INDENT
	DEDENT
	OP
	// Kinds from ERRORTOKEN onwards are markers: they never start a statement
	// and are skipped when classifying a suite header.
	ERRORTOKEN
	COMMENT
	NL
)

var kindNames = [...]string{
	ENDMARKER:  "ENDMARKER",
	NAME:       "NAME",
	NUMBER:     "NUMBER",
	STRING:     "STRING",
	NEWLINE:    "NEWLINE",
	INDENT:     "INDENT",
	DEDENT:     "DEDENT",
	OP:         "OP",
	ERRORTOKEN: "ERRORTOKEN",
	COMMENT:    "COMMENT",
	NL:         "NL",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// IsMarker reports whether k is an escape, comment or blank-line kind.
func (k Kind) IsMarker() bool {
	return k >= ERRORTOKEN
}

// Position is a line/column pair. Lines start at 1 and columns at 0.
// The zero Position marks a synthesized token.
type Position struct {
	Line   int
	Column int
}

func (p Position) IsValid() bool { return p.Line > 0 }

func (p Position) String() string {
	if !p.IsValid() {
		return "-"
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Token is an immutable lexical token. Expanders never modify a Token,
// they build replacements with With or New.
type Token struct {
	Kind  Kind
	Value string
	Begin Position
	End   Position
	Line  string // physical source line the token starts on
}

// New returns a synthesized token without source position.
func New(kind Kind, value string) Token {
	return Token{Kind: kind, Value: value}
}

// Match reports whether the token has the given kind and, when values are
// provided, one of the given values.
func (t Token) Match(kind Kind, values ...string) bool {
	if t.Kind != kind {
		return false
	}
	if len(values) == 0 {
		return true
	}
	for _, v := range values {
		if t.Value == v {
			return true
		}
	}
	return false
}

// IsOp is shorthand for Match(OP, ops...).
func (t Token) IsOp(ops ...string) bool {
	return t.Match(OP, ops...)
}

// Equal compares kind and value. INDENT, DEDENT and NEWLINE tokens are
// compared by kind only: their text is layout, not content.
func (t Token) Equal(o Token) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case INDENT, DEDENT, NEWLINE:
		return true
	}
	return t.Value == o.Value
}

// With returns a copy of t carrying a different value.
func (t Token) With(value string) Token {
	t.Value = value
	return t
}

// Detached returns a copy of t without position information.
func (t Token) Detached() Token {
	t.Begin, t.End = Position{}, Position{}
	return t
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)", t.Kind, t.Value)
}

// Equal reports whether two token sequences are equal element-wise.
func Equal(a, b []Token) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// Format renders a token sequence for debugging, one token per line.
func Format(toks []Token) string {
	var sb strings.Builder
	for _, t := range toks {
		sb.WriteString(t.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Detach strips positions from every token of toks.
func Detach(toks []Token) []Token {
	out := make([]Token, len(toks))
	for i, t := range toks {
		out[i] = t.Detached()
	}
	return out
}
