package diag

import (
	"errors"
	"fmt"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/gnoswap-labs/metapy/internal/token"
)

func TestFormat(t *testing.T) {
	color.NoColor = true

	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name: "syntax error",
			err: &SyntaxError{
				Filename: "a.mpy",
				Pos:      token.Position{Line: 3, Column: 4},
				Line:     "foo(bar\n",
				Msg:      "unterminated '('",
			},
			expected: "error: syntax\n --> a.mpy:3:4\n  |\n3 | foo(bar\n  |     ^ unterminated '('\n\n",
		},
		{
			name: "wrapped lex error",
			err: fmt.Errorf("expand: %w", &LexError{
				Filename: "b.mpy",
				Pos:      token.Position{Line: 1, Column: 0},
				Line:     "'abc",
				Msg:      "unterminated string",
			}),
			expected: "error: lex\n --> b.mpy:1:0\n  |\n1 | 'abc\n  | ^ unterminated string\n\n",
		},
		{
			name: "eval error",
			err: &EvalError{
				Filename: "c.mpy",
				Source:   "x + 1\n",
				Err:      errors.New("undefined: x"),
			},
			expected: "error: macro\n --> c.mpy\n  |\n1 | x + 1\n  | undefined: x\n\n",
		},
		{
			name:     "stack error",
			err:      &StackError{Op: "pop"},
			expected: "error: builder\n --> <expansion>\n  builder: pop on empty statement stack\n\n",
		},
		{
			name:     "plain error",
			err:      errors.New("boom"),
			expected: "error: boom\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Format(tt.err))
		})
	}
}

func TestCalculateVisualColumn(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0, calculateVisualColumn("abc", 0))
	assert.Equal(t, 2, calculateVisualColumn("abc", 2))
	assert.Equal(t, 9, calculateVisualColumn("\tab", 2))
	assert.Equal(t, "        x", expandTabs("\tx"))
}

func TestEvalErrorUnwrap(t *testing.T) {
	t.Parallel()
	inner := errors.New("boom")
	err := fmt.Errorf("outer: %w", &EvalError{Filename: "f", Source: "x", Err: inner})
	assert.ErrorIs(t, err, inner)

	var ee *EvalError
	assert.True(t, errors.As(err, &ee))
	assert.Equal(t, "x", ee.Source)
}
