package template

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType defines the type of a template token
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenLiteral
	TokenHole
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenLiteral:
		return "Literal"
	case TokenHole:
		return "Hole"
	default:
		return "Unknown"
	}
}

// Token represents a lexical token of a template
type Token struct {
	Type  TokenType
	Value string
	Line  int
	Col   int
}

// Lex splits a template into literal runs and `$name$` holes. `$$` is an
// escaped dollar sign, and a `$` that does not open a well-formed hole is
// kept as literal text.
func Lex(input string) ([]Token, error) {
	var tokens []Token
	var literal strings.Builder

	line, col := 1, 1
	litLine, litCol := 1, 1

	flushLiteral := func() {
		if literal.Len() > 0 {
			tokens = append(tokens, Token{Type: TokenLiteral, Value: literal.String(), Line: litLine, Col: litCol})
			literal.Reset()
		}
	}
	writeLiteral := func(s string) {
		if literal.Len() == 0 {
			litLine, litCol = line, col
		}
		literal.WriteString(s)
		for _, r := range s {
			if r == '\n' {
				line++
				col = 1
			} else {
				col++
			}
		}
	}

	i := 0
	for i < len(input) {
		c := input[i]
		if c != '$' {
			writeLiteral(input[i : i+1])
			i++
			continue
		}

		if i+1 < len(input) && input[i+1] == '$' {
			writeLiteral("$")
			// the escape occupies two columns
			col++
			i += 2
			continue
		}

		end := holeEnd(input, i+1)
		if end < 0 {
			writeLiteral("$")
			i++
			continue
		}

		flushLiteral()
		tokens = append(tokens, Token{Type: TokenHole, Value: input[i+1 : end], Line: line, Col: col})
		col += end + 1 - i
		i = end + 1
	}

	flushLiteral()
	tokens = append(tokens, Token{Type: TokenEOF, Line: line, Col: col})
	return tokens, nil
}

// holeEnd returns the index of the `$` closing an identifier that starts at
// start, or -1.
func holeEnd(input string, start int) int {
	if start >= len(input) || !isIdentifierStart(input[start]) {
		return -1
	}
	i := start + 1
	for i < len(input) && isIdentifierChar(input[i]) {
		i++
	}
	if i < len(input) && input[i] == '$' {
		return i
	}
	return -1
}

func isIdentifierStart(c byte) bool {
	return unicode.IsLetter(rune(c)) || c == '_'
}

func isIdentifierChar(c byte) bool {
	return isIdentifierStart(c) || unicode.IsDigit(rune(c))
}

// errorf formats a position-prefixed error.
func errorf(t Token, format string, args ...any) error {
	return fmt.Errorf("line %d col %d: %s", t.Line, t.Col, fmt.Sprintf(format, args...))
}
