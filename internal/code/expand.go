package code

import (
	"strings"

	"go.uber.org/zap"

	"github.com/gnoswap-labs/metapy/internal/diag"
	"github.com/gnoswap-labs/metapy/internal/lexer"
	"github.com/gnoswap-labs/metapy/internal/reader"
	"github.com/gnoswap-labs/metapy/internal/token"
)

// passthroughKeywords may follow `$` without being evaluated. The `$` and
// the clause are emitted unchanged for a later quoting pass.
var passthroughKeywords = []string{"for", "while", "if", "else", "elif", "import", "from"}

func isEscape(t token.Token) bool  { return t.Match(token.ERRORTOKEN, "$") }
func isQuoting(t token.Token) bool { return t.Match(token.ERRORTOKEN, "?") }

// ExpandMacros replaces every `$expr` in toks with the re-lexed rendering
// of the expression's value, evaluated in scope. A `$:` followed by a suite
// runs the suite in scope and contributes no tokens. Results that themselves
// contain escapes are expanded again.
func (s *Session) ExpandMacros(toks []token.Token, scope *Scope) ([]token.Token, error) {
	c := reader.New(s.Filename, toks)
	var out []token.Token
	for {
		t, ok := c.Next()
		if !ok {
			return out, nil
		}
		for isEscape(t) {
			escape := t
			expr, err := c.ReadExpr()
			if err != nil {
				return nil, err
			}
			term := expr[len(expr)-1]
			expr = expr[:len(expr)-1]

			if term.IsOp(":") && len(expr) == 0 {
				if err := s.runImportBlock(c, escape, scope); err != nil {
					return nil, err
				}
				t, ok = c.Next()
				if !ok {
					return out, nil
				}
				continue
			}
			if len(expr) == 0 {
				return nil, diag.NewSyntaxError(s.Filename, escape, "expected expression after $")
			}
			if expr[0].Match(token.NAME, passthroughKeywords...) {
				out = append(out, escape)
				out = append(out, expr...)
				t = term
				continue
			}

			end := expr[len(expr)-1].End
			if isAngleClose(term) {
				end = term.End
			}
			value, err := s.evalMacro(escape.Begin, end, expr, scope)
			if err != nil {
				return nil, err
			}
			out = append(out, value...)
			if t, ok = afterExpr(c, term); !ok {
				return out, nil
			}
		}
		out = append(out, t)
	}
}

// evalMacro evaluates one escape expression and returns the tokens of its
// rendered value.
func (s *Session) evalMacro(begin, end token.Position, expr []token.Token, scope *Scope) ([]token.Token, error) {
	expr, err := s.expandInlineQuotes(expr)
	if err != nil {
		return nil, err
	}
	expr, err = s.ExpandMacros(expr, scope)
	if err != nil {
		return nil, err
	}
	b, err := ParseTokens(s.Filename, expr)
	if err != nil {
		return nil, err
	}
	text := b.AsPython(true)
	s.logger.Debug("evaluating macro", zap.String("file", s.Filename), zap.String("expr", text))

	value, err := s.eval.Eval(text, scope)
	if err != nil {
		return nil, &diag.EvalError{Filename: s.Filename, Source: text, Err: err}
	}
	text = Render(value)
	if !strings.Contains(text, "\n") {
		text = strings.TrimSpace(text)
	}
	rendered, err := lexer.Lex(s.Filename, text)
	if err != nil {
		return nil, err
	}
	rendered = splice(rendered, begin, end)
	if !hasEscape(rendered) {
		return rendered, nil
	}
	again, err := s.ExpandMacros(rendered, scope)
	if err != nil {
		return nil, err
	}
	out := again[:0]
	for _, t := range again {
		if t.Kind != token.ENDMARKER {
			out = append(out, t)
		}
	}
	return out, nil
}

// runImportBlock executes the suite following a `$:` escape.
func (s *Session) runImportBlock(c *reader.Cursor, escape token.Token, scope *Scope) error {
	next, ok := c.Next()
	if !ok {
		return diag.NewSyntaxError(s.Filename, escape, "expected a block after $:")
	}
	var body []token.Token
	if next.Kind == token.NEWLINE {
		span, err := c.ReadIndentedBlock()
		if err != nil {
			return err
		}
		body = span[indexOfKind(span, token.INDENT)+1 : len(span)-1]
	} else {
		rest, err := c.ReadToNewline()
		if err != nil {
			return err
		}
		body = append([]token.Token{next}, rest...)
	}
	return s.execText(lexer.Untokenize(body, false), scope)
}

// expandInlineQuotes rewrites each `?expr` into a call that builds the
// quoted expression as code at evaluation time.
func (s *Session) expandInlineQuotes(toks []token.Token) ([]token.Token, error) {
	c := reader.New(s.Filename, toks)
	var out []token.Token
	for {
		t, ok := c.Next()
		if !ok {
			return out, nil
		}
		for isQuoting(t) {
			quoted, err := c.ReadExpr()
			if err != nil {
				return nil, err
			}
			term := quoted[len(quoted)-1]
			quoted = quoted[:len(quoted)-1]
			if len(quoted) == 0 {
				return nil, diag.NewSyntaxError(s.Filename, t, "expected expression after ?")
			}
			end := quoted[len(quoted)-1].End
			if isAngleClose(term) {
				end = term.End
			}
			call, err := s.quoteCall(t.Begin, end, quoted)
			if err != nil {
				return nil, err
			}
			out = append(out, call...)
			if t, ok = afterExpr(c, term); !ok {
				return out, nil
			}
		}
		out = append(out, t)
	}
}

// quoteCall returns the tokens of `_mpy.q("<text>")` for the quoted tokens.
func (s *Session) quoteCall(begin, end token.Position, quoted []token.Token) ([]token.Token, error) {
	src := BuilderName + ".q(" + s.eval.Quote(lexer.Untokenize(quoted, true)) + ")"
	toks, err := lexer.Lex(s.Filename, src)
	if err != nil {
		return nil, err
	}
	return splice(toks, begin, end), nil
}

// isAngleClose reports whether term is the blank left by the closing `>` of
// a `$<...>` expression.
func isAngleClose(term token.Token) bool { return term.Match(token.ERRORTOKEN, " ") }

// afterExpr returns the token that follows an escaped expression: its
// terminator, or the next token when the terminator was an angle close.
func afterExpr(c *reader.Cursor, term token.Token) (token.Token, bool) {
	if isAngleClose(term) {
		return c.Next()
	}
	return term, true
}

func (s *Session) execText(src string, scope *Scope) error {
	s.logger.Debug("executing block", zap.String("file", s.Filename), zap.Int("bytes", len(src)))
	if err := s.eval.Exec(src, scope); err != nil {
		return &diag.EvalError{Filename: s.Filename, Source: src, Err: err}
	}
	return nil
}

// splice prepares freshly lexed tokens for insertion in place of the
// source text between begin and end. The end marker and the synthesized
// final NEWLINE are dropped. Text that fits on one line keeps its own
// spacing and is moved to begin; anything else loses its positions. The
// first token starts at begin and the last one ends at end, so the
// insertion is spaced like the text it replaces.
func splice(toks []token.Token, begin, end token.Position) []token.Token {
	out := make([]token.Token, 0, len(toks))
	oneLine := begin.IsValid()
	for _, t := range toks {
		if t.Kind == token.ENDMARKER || (t.Kind == token.NEWLINE && t.Value == "") {
			continue
		}
		if t.Begin.Line != 1 || t.End.Line != 1 {
			oneLine = false
		}
		out = append(out, t)
	}
	for i, t := range out {
		if oneLine {
			t.Begin = token.Position{Line: begin.Line, Column: begin.Column + t.Begin.Column}
			t.End = token.Position{Line: begin.Line, Column: begin.Column + t.End.Column}
		} else {
			t = t.Detached()
		}
		if i == 0 {
			t.Begin = begin
		}
		if i == len(out)-1 {
			t.End = end
		}
		out[i] = t
	}
	return out
}

func hasEscape(toks []token.Token) bool {
	for _, t := range toks {
		if isEscape(t) {
			return true
		}
	}
	return false
}
