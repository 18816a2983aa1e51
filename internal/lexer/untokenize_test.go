package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnoswap-labs/metapy/internal/token"
)

func TestUntokenizeRoundTrip(t *testing.T) {
	t.Parallel()
	sources := []string{
		"j = 50\n",
		"for x in range(10):\n    print(x)\n",
		"def f(a, b=1):\n    if a:\n        return a + b\n    return b\n",
		"x = {'a': [1, 2], 'b': (3,)}  # trailing\n",
		"s = '''multi\nline'''\ny = s\n",
		"$for i in range(3):\n    print($i)\n",
		"foo(?pass)\n",
		"total = (1 +\n         2)\n",
	}

	for _, src := range sources {
		src := src
		t.Run(src, func(t *testing.T) {
			t.Parallel()
			toks, err := Lex("<test>", src)
			require.NoError(t, err)

			text := Untokenize(toks, false)
			again, err := Lex("<test>", text)
			require.NoError(t, err)
			assert.True(t, token.Equal(toks, again), "round trip changed tokens:\n%s", text)
		})
	}
}

func TestUntokenizePreservesLayout(t *testing.T) {
	t.Parallel()
	src := "for x in range(10):\n    print(x,  'hi')\n"
	toks, err := Lex("<test>", src)
	require.NoError(t, err)
	assert.Equal(t, src, Untokenize(toks, false))
}

func TestUntokenizeSynthesized(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		toks     []token.Token
		inline   bool
		expected string
	}{
		{
			name: "compat spacing",
			toks: []token.Token{
				token.New(token.NAME, "print"), token.New(token.NUMBER, "0"),
				token.New(token.OP, ","), token.New(token.NUMBER, "50"),
				token.New(token.NEWLINE, "\n"),
			},
			expected: "print 0,50\n",
		},
		{
			name: "inline strips newline",
			toks: []token.Token{
				token.New(token.NAME, "pass"), token.New(token.NEWLINE, "\n"),
			},
			inline:   true,
			expected: "pass",
		},
		{
			name: "operators kept apart",
			toks: []token.Token{
				token.New(token.NAME, "a"), token.New(token.OP, "*"), token.New(token.OP, "*"),
				token.New(token.NAME, "b"),
			},
			expected: "a* *b",
		},
		{
			name: "indent rebuilt from parent",
			toks: []token.Token{
				token.New(token.NAME, "if"), token.New(token.NAME, "x"), token.New(token.OP, ":"),
				token.New(token.NEWLINE, "\n"), token.New(token.INDENT, ""),
				token.New(token.NAME, "pass"), token.New(token.NEWLINE, "\n"),
				token.New(token.DEDENT, ""), token.New(token.NAME, "y"),
				token.New(token.NEWLINE, ""),
			},
			expected: "if x:\n    pass\ny\n",
		},
		{
			name: "unbalanced dedent dropped",
			toks: []token.Token{
				token.New(token.DEDENT, ""), token.New(token.NAME, "z"), token.New(token.NEWLINE, "\n"),
			},
			expected: "z\n",
		},
		{
			name: "number before attribute",
			toks: []token.Token{
				token.New(token.NUMBER, "1"), token.New(token.OP, "."), token.New(token.NAME, "real"),
			},
			expected: "1 .real",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, Untokenize(tt.toks, tt.inline))
		})
	}
}

func TestReindentAccumulates(t *testing.T) {
	t.Parallel()
	toks := []token.Token{
		token.New(token.INDENT, "  "),
		token.New(token.INDENT, "  "),
		token.New(token.INDENT, "\t"),
		token.New(token.DEDENT, ""),
		token.New(token.DEDENT, ""),
		token.New(token.DEDENT, ""),
		token.New(token.DEDENT, ""),
	}
	out := Reindent(toks)
	require.Len(t, out, 6)
	assert.Equal(t, "  ", out[0].Value)
	assert.Equal(t, "      ", out[1].Value)
	assert.Equal(t, "          ", out[2].Value)
	assert.Equal(t, "      ", out[3].Value)
	assert.Equal(t, "  ", out[4].Value)
	assert.Equal(t, "", out[5].Value)
}
