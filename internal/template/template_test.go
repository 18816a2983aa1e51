package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLex(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		input    string
		expected []Token
	}{
		{
			name:  "single hole",
			input: "x = $value$\n",
			expected: []Token{
				{Type: TokenLiteral, Value: "x = ", Line: 1, Col: 1},
				{Type: TokenHole, Value: "value", Line: 1, Col: 5},
				{Type: TokenLiteral, Value: "\n", Line: 1, Col: 12},
				{Type: TokenEOF, Line: 2, Col: 1},
			},
		},
		{
			name:  "escaped dollar",
			input: "cost = '$$5'",
			expected: []Token{
				{Type: TokenLiteral, Value: "cost = '$5'", Line: 1, Col: 1},
				{Type: TokenEOF, Line: 1, Col: 13},
			},
		},
		{
			name:  "unterminated hole is literal",
			input: "$x + 1",
			expected: []Token{
				{Type: TokenLiteral, Value: "$x + 1", Line: 1, Col: 1},
				{Type: TokenEOF, Line: 1, Col: 7},
			},
		},
		{
			name:  "adjacent holes",
			input: "$a$$b$",
			expected: []Token{
				{Type: TokenHole, Value: "a", Line: 1, Col: 1},
				{Type: TokenHole, Value: "b", Line: 1, Col: 4},
				{Type: TokenEOF, Line: 1, Col: 7},
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Lex(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestHoles(t *testing.T) {
	t.Parallel()
	tmpl, err := New("$b$ = $a$ + $b$\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, tmpl.Holes())
}

func TestRender(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		template string
		vars     map[string]string
		expected string
		wantErr  bool
	}{
		{
			name:     "simple replacement",
			template: "def get_$name$():\n    return $name$\n",
			vars:     map[string]string{"name": "x"},
			expected: "def get_x():\n    return x\n",
		},
		{
			name:     "escape survives",
			template: "s = '$$$v$'",
			vars:     map[string]string{"v": "1"},
			expected: "s = '$1'",
		},
		{
			name:     "missing hole",
			template: "$missing$",
			vars:     map[string]string{},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tmpl, err := New(tt.template)
			require.NoError(t, err)
			got, err := tmpl.RenderMap(tt.vars)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
