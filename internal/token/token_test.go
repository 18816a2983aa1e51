package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenEqual(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		a, b     Token
		expected bool
	}{
		{
			name:     "same name",
			a:        Token{Kind: NAME, Value: "x", Begin: Position{1, 0}},
			b:        New(NAME, "x"),
			expected: true,
		},
		{
			name:     "different value",
			a:        New(NAME, "x"),
			b:        New(NAME, "y"),
			expected: false,
		},
		{
			name:     "indent ignores width",
			a:        New(INDENT, "    "),
			b:        New(INDENT, "\t"),
			expected: true,
		},
		{
			name:     "dedent ignores value",
			a:        New(DEDENT, ""),
			b:        New(DEDENT, "    "),
			expected: true,
		},
		{
			name:     "newline ignores value",
			a:        New(NEWLINE, "\n"),
			b:        New(NEWLINE, ""),
			expected: true,
		},
		{
			name:     "kind mismatch",
			a:        New(OP, "("),
			b:        New(ERRORTOKEN, "("),
			expected: false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.a.Equal(tt.b))
		})
	}
}

func TestTokenMatch(t *testing.T) {
	t.Parallel()
	tok := New(OP, ":")
	assert.True(t, tok.Match(OP))
	assert.True(t, tok.Match(OP, ",", ":"))
	assert.False(t, tok.Match(OP, ","))
	assert.False(t, tok.Match(NAME))
	assert.True(t, tok.IsOp(":"))
}

func TestKindIsMarker(t *testing.T) {
	t.Parallel()
	for _, k := range []Kind{ERRORTOKEN, COMMENT, NL} {
		assert.True(t, k.IsMarker(), k.String())
	}
	for _, k := range []Kind{NAME, OP, NEWLINE, INDENT, DEDENT, ENDMARKER, STRING, NUMBER} {
		assert.False(t, k.IsMarker(), k.String())
	}
	assert.Equal(t, "Kind(99)", Kind(99).String())
}

func TestSequenceEqual(t *testing.T) {
	t.Parallel()
	a := []Token{New(NAME, "j"), New(OP, "="), New(NUMBER, "50"), New(NEWLINE, "\n")}
	b := []Token{New(NAME, "j"), New(OP, "="), New(NUMBER, "50"), New(NEWLINE, "")}
	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, b[:3]))

	detached := Detach([]Token{{Kind: NAME, Value: "x", Begin: Position{3, 4}, End: Position{3, 5}}})
	assert.False(t, detached[0].Begin.IsValid())
	assert.Equal(t, "x", detached[0].Value)
}
