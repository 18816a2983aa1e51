package diag

import (
	"fmt"

	"github.com/gnoswap-labs/metapy/internal/token"
)

// LexError is raised when the tokenizer cannot produce a well-formed token.
type LexError struct {
	Filename string
	Pos      token.Position
	Line     string
	Msg      string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.Filename, e.Pos.Line, e.Pos.Column, e.Msg)
}

// SyntaxError reports a missing terminator or an unexpected token found while
// reading structure out of a token stream.
type SyntaxError struct {
	Filename string
	Pos      token.Position
	Line     string
	Msg      string
}

// NewSyntaxError builds a SyntaxError located at tok.
func NewSyntaxError(filename string, tok token.Token, format string, args ...any) *SyntaxError {
	return &SyntaxError{
		Filename: filename,
		Pos:      tok.Begin,
		Line:     tok.Line,
		Msg:      fmt.Sprintf(format, args...),
	}
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.Filename, e.Pos.Line, e.Pos.Column, e.Msg)
}

// EvalError wraps a host failure while evaluating a macro expression or
// executing an import-time block. Source holds the regenerated text that was
// handed to the host.
type EvalError struct {
	Filename string
	Source   string
	Err      error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("%s: evaluating %q: %v", e.Filename, e.Source, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }

// StackError reports builder push/pop imbalance.
type StackError struct {
	Op    string
	Depth int
}

func (e *StackError) Error() string {
	if e.Op == "pop" {
		return "builder: pop on empty statement stack"
	}
	return fmt.Sprintf("builder: unbalanced statement stack after %s (depth %d)", e.Op, e.Depth)
}
