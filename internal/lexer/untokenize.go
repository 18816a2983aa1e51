package lexer

import (
	"strings"

	"github.com/gnoswap-labs/metapy/internal/token"
)

const indentUnit = "    "

// Untokenize renders toks back into source text.
//
// INDENT values are rewritten so that each one strictly extends its parent;
// an INDENT that does not is replaced by the parent plus four spaces, and a
// DEDENT without a matching INDENT is dropped. Tokens that still carry their
// source positions keep their original spacing when they sit on the same
// source line; everything else is spaced just enough to re-lex to the same
// tokens. With inline set, trailing NEWLINE tokens are omitted.
func Untokenize(toks []token.Token, inline bool) string {
	toks = Reindent(toks)
	if inline {
		for len(toks) > 0 && toks[len(toks)-1].Kind == token.NEWLINE {
			toks = toks[:len(toks)-1]
		}
	}

	var (
		sb          strings.Builder
		indents     = []string{""}
		atLineStart = true
		prev        token.Token
		hasPrev     bool
	)
	for _, tok := range toks {
		switch tok.Kind {
		case token.INDENT:
			indents = append(indents, tok.Value)
			continue
		case token.DEDENT:
			if len(indents) > 1 {
				indents = indents[:len(indents)-1]
			}
			continue
		case token.ENDMARKER:
			continue
		case token.NEWLINE, token.NL:
			sb.WriteByte('\n')
			atLineStart = true
			hasPrev = false
			continue
		}

		if atLineStart {
			sb.WriteString(indents[len(indents)-1])
			atLineStart = false
		} else if hasPrev {
			sb.WriteString(spacing(prev, tok))
		}
		sb.WriteString(tok.Value)
		prev, hasPrev = tok, true
	}
	return sb.String()
}

// Reindent normalizes INDENT and DEDENT values so that nested indentation
// strictly accumulates.
func Reindent(toks []token.Token) []token.Token {
	out := make([]token.Token, 0, len(toks))
	indent := []string{""}
	for _, tok := range toks {
		switch tok.Kind {
		case token.INDENT:
			cur := indent[len(indent)-1]
			if !strings.HasPrefix(tok.Value, cur) || len(tok.Value) <= len(cur) {
				tok = tok.With(cur + indentUnit)
			}
			indent = append(indent, tok.Value)
			out = append(out, tok)
		case token.DEDENT:
			if len(indent) == 1 {
				continue
			}
			indent = indent[:len(indent)-1]
			out = append(out, tok.With(indent[len(indent)-1]))
		default:
			out = append(out, tok)
		}
	}
	return out
}

func spacing(prev, tok token.Token) string {
	if prev.End.IsValid() && tok.Begin.IsValid() &&
		prev.End.Line == tok.Begin.Line && tok.Begin.Column >= prev.End.Column {
		if gap := tok.Begin.Column - prev.End.Column; gap > 0 {
			return strings.Repeat(" ", gap)
		}
	}
	if needsSpace(prev, tok) {
		return " "
	}
	return ""
}

// needsSpace reports whether prev and tok would lex differently when written
// back to back.
func needsSpace(prev, tok token.Token) bool {
	if isWord(prev.Kind) && isWord(tok.Kind) {
		return true
	}
	if tok.Kind == token.COMMENT {
		return true
	}
	if prev.Kind == token.NUMBER && tok.IsOp(".") {
		return true
	}
	if prev.Kind == token.OP && tok.Kind == token.OP && tok.Value != "" {
		joined := prev.Value + tok.Value[:1]
		for _, op := range operators {
			if strings.HasPrefix(op, joined) {
				return true
			}
		}
	}
	return false
}

func isWord(k token.Kind) bool {
	return k == token.NAME || k == token.NUMBER || k == token.STRING
}
