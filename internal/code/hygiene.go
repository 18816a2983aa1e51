package code

import (
	"strings"

	"go.uber.org/zap"

	"github.com/gnoswap-labs/metapy/internal/diag"
	"github.com/gnoswap-labs/metapy/internal/reader"
	"github.com/gnoswap-labs/metapy/internal/token"
)

// Sanitize renames every name b binds locally to a fresh identifier, except
// the names in omit. Locals are found by asking the host for the locals of
// a function whose body is b; the function is never called.
func (s *Session) Sanitize(b *Block, omit ...string) (*Block, error) {
	if b.Len() == 0 {
		return b.Clone(), nil
	}
	wrapper := NewSuite([]token.Token{
		token.New(token.NAME, "def"),
		token.New(token.NAME, "_"),
		token.New(token.OP, "("),
		token.New(token.OP, ")"),
		token.New(token.OP, ":"),
	}, b, nil, nil)
	src := wrapper.AsPython(false)

	locals, err := s.eval.LocalNames(src)
	if err != nil {
		return nil, &diag.EvalError{Filename: s.Filename, Source: src, Err: err}
	}

	keep := make(map[string]bool, len(omit))
	for _, name := range omit {
		keep[strings.TrimSpace(name)] = true
	}
	mapping := make(map[string]string)
	for _, name := range locals {
		if keep[name] {
			continue
		}
		if _, done := mapping[name]; !done {
			mapping[name] = s.gensym.Next()
		}
	}
	s.logger.Debug("sanitized block",
		zap.String("file", s.Filename),
		zap.Strings("locals", locals),
		zap.Strings("omit", omit))
	return ReplaceNames(s.Filename, b, mapping)
}

// ReplaceNames returns a copy of b with every NAME token found in mapping
// renamed. Attribute names and keyword-argument names are left alone.
func ReplaceNames(filename string, b *Block, mapping map[string]string) (*Block, error) {
	toks := b.Tokens()
	out := make([]token.Token, 0, len(toks))
	depth := 0
	for i, t := range toks {
		switch {
		case t.Kind == token.ENDMARKER:
			continue
		case t.Kind == token.OP && reader.Nesting[t.Value] != "":
			depth++
		case t.IsOp(")", "]", "}"):
			depth--
		case t.Kind == token.NAME:
			repl, ok := mapping[t.Value]
			attr := i > 0 && toks[i-1].IsOp(".")
			kwarg := depth > 0 && i+1 < len(toks) && toks[i+1].IsOp("=")
			if ok && !attr && !kwarg {
				t = t.With(repl)
			}
		}
		out = append(out, t)
	}
	nb, err := ParseTokens(filename, out)
	if err != nil {
		return nil, err
	}
	nb.Namespace = b.Namespace
	return nb, nil
}
