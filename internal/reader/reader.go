package reader

import (
	"github.com/gnoswap-labs/metapy/internal/diag"
	"github.com/gnoswap-labs/metapy/internal/token"
)

// Nesting maps each opening bracket to its closing bracket.
var Nesting = map[string]string{
	"(": ")",
	"[": "]",
	"{": "}",
}

var closingOps = []string{")", "]", "}"}

// Cursor is a pull-based position over a materialized token slice. Every
// reader consumes from the cursor and returns the tokens it consumed, so the
// amount read is always visible through Pos.
type Cursor struct {
	filename string
	toks     []token.Token
	pos      int
}

func New(filename string, toks []token.Token) *Cursor {
	return &Cursor{filename: filename, toks: toks}
}

func (c *Cursor) Filename() string { return c.filename }

// Pos returns the index of the next token to be read.
func (c *Cursor) Pos() int { return c.pos }

func (c *Cursor) Done() bool { return c.pos >= len(c.toks) }

// Next consumes one token.
func (c *Cursor) Next() (token.Token, bool) {
	if c.pos >= len(c.toks) {
		return token.Token{}, false
	}
	t := c.toks[c.pos]
	c.pos++
	return t, true
}

// Peek returns the next token without consuming it.
func (c *Cursor) Peek() (token.Token, bool) {
	if c.pos >= len(c.toks) {
		return token.Token{}, false
	}
	return c.toks[c.pos], true
}

// Rest consumes and returns every remaining token.
func (c *Cursor) Rest() []token.Token {
	rest := c.toks[c.pos:]
	c.pos = len(c.toks)
	return rest
}

// Expect consumes one token and fails unless it matches kind and values.
func (c *Cursor) Expect(kind token.Kind, values ...string) (token.Token, error) {
	t, ok := c.Next()
	if !ok {
		return t, c.errorAt(c.last(), "expected %s, found end of input", kind)
	}
	if !t.Match(kind, values...) {
		if len(values) > 0 {
			return t, c.errorAt(t, "expected %s %q, found %s", kind, values, t)
		}
		return t, c.errorAt(t, "expected %s, found %s", kind, t)
	}
	return t, nil
}

// ReadNested consumes tokens until one of closing appears at the current
// nesting depth. Opening brackets read on the way recurse to their matching
// close first. The returned tokens include the closing token. The token read
// just before the call is taken as the opener for error reporting.
func (c *Cursor) ReadNested(closing ...string) ([]token.Token, error) {
	opener := c.last()
	var out []token.Token
	for {
		t, ok := c.Next()
		if !ok || t.Kind == token.ENDMARKER {
			return out, c.unterminated(opener)
		}
		out = append(out, t)
		if t.IsOp(closing...) {
			return out, nil
		}
		if closer, nested := Nesting[t.Value]; nested && t.Kind == token.OP {
			inner, err := c.ReadNested(closer)
			out = append(out, inner...)
			if err != nil {
				return out, err
			}
		}
	}
}

// ReadExpr reads one expression and returns its tokens followed by the
// token that terminated it. NAME and NUMBER tokens continue the expression,
// brackets are read whole, and any other token terminates it. When closing
// operators are given they terminate the expression, and `,` and `:` do not.
//
// A leading `<` starts a region read up to the matching `>`; the `<` is
// dropped and the `>` becomes an ERRORTOKEN " " terminator. `<` and `>` are
// not bracket pairs inside the region, so the first `>` closes it even when
// it is a comparison: `<1 > 0>` reads as `1` and leaves `0 >` unread. Wrap
// such expressions in parentheses, as in `<(1 > 0)>`.
//
// At end of input a synthesized ENDMARKER is the terminator.
func (c *Cursor) ReadExpr(closing ...string) ([]token.Token, error) {
	var out []token.Token
	first := true
	for {
		t, ok := c.Next()
		if !ok {
			return append(out, token.New(token.ENDMARKER, "")), nil
		}
		if first && t.IsOp("<") {
			inner, err := c.ReadNested(">")
			if err != nil {
				return nil, err
			}
			if n := len(inner); n > 0 {
				end := inner[n-1]
				inner[n-1] = token.Token{Kind: token.ERRORTOKEN, Value: " ", Begin: end.Begin, End: end.End, Line: end.Line}
			}
			return append(out, inner...), nil
		}
		first = false
		out = append(out, t)

		switch {
		case len(closing) > 0 && t.IsOp(closing...):
			return out, nil
		case t.Kind == token.OP && Nesting[t.Value] != "":
			inner, err := c.ReadNested(Nesting[t.Value])
			if err != nil {
				return nil, err
			}
			out = append(out, inner...)
		case t.IsOp(closingOps...):
			return out, nil
		case t.Kind == token.NAME, t.Kind == token.NUMBER:
		case len(closing) > 0 && t.IsOp(",", ":"):
		default:
			return out, nil
		}
	}
}

// ReadIndentedBlock consumes through the next INDENT and then up to its
// matching DEDENT, returning the whole span including both.
func (c *Cursor) ReadIndentedBlock() ([]token.Token, error) {
	var out []token.Token
	for {
		t, ok := c.Next()
		if !ok {
			return out, c.errorAt(c.last(), "expected an indented block")
		}
		out = append(out, t)
		if t.Kind == token.INDENT {
			break
		}
	}
	opener := out[len(out)-1]
	for depth := 1; depth > 0; {
		t, ok := c.Next()
		if !ok {
			return out, c.errorAt(opener, "indented block is not closed")
		}
		out = append(out, t)
		switch t.Kind {
		case token.DEDENT:
			depth--
		case token.INDENT:
			depth++
		}
	}
	return out, nil
}

// ReadToNewline consumes through the next NEWLINE token.
func (c *Cursor) ReadToNewline() ([]token.Token, error) {
	start := c.last()
	var out []token.Token
	for {
		t, ok := c.Next()
		if !ok {
			return out, c.errorAt(start, "expected end of line")
		}
		out = append(out, t)
		if t.Kind == token.NEWLINE {
			return out, nil
		}
	}
}

// ReadArgs reads a comma separated argument list whose opening parenthesis
// has already been consumed, stopping after the closing parenthesis. Each
// argument is returned without its terminator; empty slots are skipped.
// Expression pieces are joined until a `,` or `)` ends the slot, so a
// `?`-quoted argument keeps its quoted tokens.
func (c *Cursor) ReadArgs() ([][]token.Token, error) {
	opener := c.last()
	var args [][]token.Token
	for {
		var arg []token.Token
		for {
			piece, err := c.ReadExpr(",", ")")
			if err != nil {
				return nil, err
			}
			arg = append(arg, piece...)
			last := piece[len(piece)-1]
			if last.IsOp(",", ")") {
				break
			}
			if last.Kind == token.ENDMARKER || last.Kind == token.NEWLINE {
				return nil, c.unterminated(opener)
			}
		}
		if len(arg) > 1 {
			args = append(args, arg[:len(arg)-1])
		}
		if arg[len(arg)-1].IsOp(")") {
			return args, nil
		}
	}
}

func (c *Cursor) last() token.Token {
	if c.pos == 0 || len(c.toks) == 0 {
		return token.New(token.ENDMARKER, "")
	}
	return c.toks[c.pos-1]
}

func (c *Cursor) unterminated(opener token.Token) error {
	if opener.Kind == token.OP {
		return c.errorAt(opener, "unterminated %q opened on line %d", opener.Value, opener.Begin.Line)
	}
	return c.errorAt(opener, "unexpected end of input")
}

func (c *Cursor) errorAt(t token.Token, format string, args ...any) error {
	return diag.NewSyntaxError(c.filename, t, format, args...)
}
