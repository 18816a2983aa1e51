package code

import (
	"fmt"
	"strings"

	"github.com/gnoswap-labs/metapy/internal/diag"
	"github.com/gnoswap-labs/metapy/internal/lexer"
	"github.com/gnoswap-labs/metapy/internal/reader"
	"github.com/gnoswap-labs/metapy/internal/template"
	"github.com/gnoswap-labs/metapy/internal/token"
)

var keywords = map[string]bool{
	"and": true, "as": true, "assert": true, "break": true, "class": true,
	"continue": true, "def": true, "del": true, "elif": true, "else": true,
	"except": true, "finally": true, "for": true, "from": true, "global": true,
	"if": true, "import": true, "in": true, "is": true, "lambda": true,
	"load": true, "nonlocal": true, "not": true, "or": true, "pass": true,
	"raise": true, "return": true, "try": true, "while": true, "with": true,
	"yield": true, "True": true, "False": true, "None": true,
}

// ExpandDefcode rewrites the `defcode` and `deftemplate` suites of b into
// the builder calls that construct them, and `?expr` quotes in plain
// statements into quote calls. Other suites are kept with their bodies
// rewritten.
//
// Builder calls for suites at module level, or in the body of an escaped
// control suite, are wrapped in a `$:` suite so they run while the module
// expands and bind their name in the session scope. Inside `$:` bodies and
// plain suites they are left as ordinary statements of that body.
func (s *Session) ExpandDefcode(b *Block) (*Block, error) {
	return s.expandDefcode(b, true)
}

func (s *Session) expandDefcode(b *Block, atImport bool) (*Block, error) {
	out := &Block{Namespace: b.Namespace}
	for _, n := range b.Statements {
		switch n := n.(type) {
		case *Statement:
			toks, err := s.expandInlineQuotes(n.Toks)
			if err != nil {
				return nil, err
			}
			nb, err := ParseTokens(s.Filename, toks)
			if err != nil {
				return nil, err
			}
			out.AppendBlock(nb)
		case *Suite:
			var (
				nodes []Node
				err   error
			)
			switch {
			case n.First().Match(token.NAME, "defcode"):
				nodes, err = s.expandDefcodeSuite(n)
			case n.First().Match(token.NAME, "deftemplate"):
				nodes, err = s.expandTemplateSuite(n)
			default:
				var body *Block
				body, err = s.expandDefcode(n.Body, quotedAtImport(n))
				nodes = []Node{&Suite{Header: n.Header, Body: body, Prologue: n.Prologue, Epilogue: n.Epilogue}}
			}
			if err != nil {
				return nil, err
			}
			if atImport && isDefinition(n) {
				nodes = []Node{importTime(nodes)}
			}
			for _, node := range nodes {
				out.Append(node)
			}
		}
	}
	return out, nil
}

func isDefinition(su *Suite) bool {
	return su.First().Match(token.NAME, "defcode", "deftemplate")
}

// quotedAtImport reports whether the body of su is quoted by a builder
// program that runs during expansion, as for `$for` and `$if`.
func quotedAtImport(su *Suite) bool {
	return len(su.Header) > 1 && isEscape(su.Header[0]) && !su.Header[1].IsOp(":")
}

// importTime wraps nodes in a `$:` suite, which quoting splices into the
// builder program as is.
func importTime(nodes []Node) *Suite {
	header := []token.Token{token.New(token.ERRORTOKEN, "$"), token.New(token.OP, ":")}
	return NewSuite(header, NewBlock(nodes...), nil, nil)
}

// expandDefcodeSuite turns
//
//	defcode name(omit...):
//	    body
//
// into a push, the quoted body, a pop bound to name and, when an argument
// list was given, a hygiene pass.
func (s *Session) expandDefcodeSuite(su *Suite) ([]Node, error) {
	c := reader.New(s.Filename, su.Header[1:])
	name, err := c.Expect(token.NAME)
	if err != nil {
		return nil, err
	}

	var omit []string
	sanitize := false
	next, _ := c.Next()
	if next.IsOp("(") {
		sanitize = true
		args, err := c.ReadArgs()
		if err != nil {
			return nil, err
		}
		for _, arg := range args {
			quoted, err := s.expandInlineQuotes(arg)
			if err != nil {
				return nil, err
			}
			omit = append(omit, lexer.Untokenize(quoted, true))
		}
		next, _ = c.Next()
	}
	if !next.IsOp(":") {
		return nil, diag.NewSyntaxError(s.Filename, next, "expected ':' after defcode %s", name.Value)
	}

	nodes, err := s.generated("%s.push()\n", BuilderName)
	if err != nil {
		return nil, err
	}
	for _, stmt := range su.Body.Statements {
		quoted, err := s.Quote(stmt)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, quoted...)
	}
	pop, err := s.generated("%s = %s.pop()\n", name.Value, BuilderName)
	if err != nil {
		return nil, err
	}
	nodes = append(nodes, pop...)
	if sanitize {
		clean, err := s.generated("%s = %s.sanitize(%s)\n", name.Value, name.Value, strings.Join(omit, ", "))
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, clean...)
	}
	return nodes, nil
}

// expandTemplateSuite turns a `deftemplate name:` suite into a template
// call that renders the body's `$hole$` placeholders.
func (s *Session) expandTemplateSuite(su *Suite) ([]Node, error) {
	c := reader.New(s.Filename, su.Header[1:])
	name, err := c.Expect(token.NAME)
	if err != nil {
		return nil, err
	}
	if _, err := c.Expect(token.OP, ":"); err != nil {
		return nil, err
	}

	text := su.Body.AsPython(false)
	tmpl, err := template.New(text)
	if err != nil {
		return nil, diag.NewSyntaxError(s.Filename, su.First(), "deftemplate %s: %v", name.Value, err)
	}
	var holes []string
	for _, h := range tmpl.Holes() {
		if h != BuilderName {
			holes = append(holes, h)
		}
	}
	return s.generated("%s = %s.template(%s, %s)\n", name.Value, BuilderName, s.eval.Quote(text), s.envLiteral(holes))
}

// Quote converts n into builder program statements that, when executed,
// rebuild n on the builder's current block.
func (s *Session) Quote(n Node) ([]Node, error) {
	switch n := n.(type) {
	case *Statement:
		return s.quoteStatement(n)
	case *Suite:
		return s.quoteSuite(n)
	}
	return nil, fmt.Errorf("quote: unsupported node %T", n)
}

// QuoteBlock quotes every node of b.
func (s *Session) QuoteBlock(b *Block) (*Block, error) {
	out := NewBlock()
	for _, n := range b.Statements {
		nodes, err := s.Quote(n)
		if err != nil {
			return nil, err
		}
		for _, node := range nodes {
			out.Append(node)
		}
	}
	return out, nil
}

// QuoteAs quotes b between a push and a pop whose result is bound to name.
func (s *Session) QuoteAs(b *Block, name string) (*Block, error) {
	body, err := s.QuoteBlock(b)
	if err != nil {
		return nil, err
	}
	out := NewBlock()
	push, err := s.generated("%s.push()\n", BuilderName)
	if err != nil {
		return nil, err
	}
	pop, err := s.generated("%s = %s.pop()\n", name, BuilderName)
	if err != nil {
		return nil, err
	}
	for _, n := range push {
		out.Append(n)
	}
	out.AppendBlock(body)
	for _, n := range pop {
		out.Append(n)
	}
	return out, nil
}

func (s *Session) quoteStatement(st *Statement) ([]Node, error) {
	toks := st.Toks
	if len(toks) > 1 && isEscape(toks[0]) && toks[1].Match(token.NAME, passthroughKeywords...) {
		switch toks[1].Value {
		case "import":
			return s.importStatement(toks[1:])
		case "from":
			return s.fromStatement(toks[1:])
		}
		b, err := ParseTokens(s.Filename, toks[1:])
		if err != nil {
			return nil, err
		}
		return b.Statements, nil
	}
	names, err := s.escapeNames(toks)
	if err != nil {
		return nil, err
	}
	return s.generated("%s.append(%s, %s)\n", BuilderName, s.eval.Quote(st.AsPython(false)), s.envLiteral(names))
}

func (s *Session) quoteSuite(su *Suite) ([]Node, error) {
	if len(su.Header) > 1 && isEscape(su.Header[0]) {
		header := su.Header[1:]
		if header[0].IsOp(":") {
			// import-time suite: its body runs as part of the builder program
			return su.Body.Clone().Statements, nil
		}
		body, err := s.QuoteBlock(su.Body)
		if err != nil {
			return nil, err
		}
		return []Node{&Suite{Header: header, Body: body, Prologue: su.Prologue, Epilogue: su.Epilogue}}, nil
	}

	nodes, err := s.generated("%s.push()\n", BuilderName)
	if err != nil {
		return nil, err
	}
	body, err := s.QuoteBlock(su.Body)
	if err != nil {
		return nil, err
	}
	nodes = append(nodes, body.Statements...)

	names, err := s.escapeNames(su.Header)
	if err != nil {
		return nil, err
	}
	header := lexer.Untokenize(su.Header, true)
	call, err := s.generated("%s.append_suite(%s, %s)\n", BuilderName, s.eval.Quote(header), s.envLiteral(names))
	if err != nil {
		return nil, err
	}
	return append(nodes, call...), nil
}

// importStatement rewrites `import a.b as c, d` into loader calls.
func (s *Session) importStatement(toks []token.Token) ([]Node, error) {
	c := reader.New(s.Filename, toks[1:])
	var src strings.Builder
	for {
		module, err := dottedName(c)
		if err != nil {
			return nil, err
		}
		alias := module[strings.LastIndex(module, ".")+1:]
		next, ok := c.Next()
		if next.Match(token.NAME, "as") {
			as, err := c.Expect(token.NAME)
			if err != nil {
				return nil, err
			}
			alias = as.Value
			next, ok = c.Next()
		}
		fmt.Fprintf(&src, "%s = %s.require(%s)\n", alias, BuilderName, s.eval.Quote(module))
		if ok && next.IsOp(",") {
			continue
		}
		if ok && next.Kind != token.NEWLINE && next.Kind != token.ENDMARKER {
			return nil, diag.NewSyntaxError(s.Filename, next, "unexpected %s in import", next)
		}
		break
	}
	b, err := ParseString(s.Filename, src.String())
	if err != nil {
		return nil, err
	}
	return b.Statements, nil
}

// fromStatement rewrites `from m import x, y as z` into attribute reads of
// the loaded module.
func (s *Session) fromStatement(toks []token.Token) ([]Node, error) {
	c := reader.New(s.Filename, toks[1:])
	module, err := dottedName(c)
	if err != nil {
		return nil, err
	}
	if _, err := c.Expect(token.NAME, "import"); err != nil {
		return nil, err
	}
	paren := false
	if next, ok := c.Peek(); ok && next.IsOp("(") {
		c.Next()
		paren = true
	}

	var src strings.Builder
	for {
		name, err := c.Expect(token.NAME)
		if err != nil {
			return nil, err
		}
		alias := name.Value
		next, ok := c.Next()
		if next.Match(token.NAME, "as") {
			as, err := c.Expect(token.NAME)
			if err != nil {
				return nil, err
			}
			alias = as.Value
			next, ok = c.Next()
		}
		fmt.Fprintf(&src, "%s = %s.require(%s).%s\n", alias, BuilderName, s.eval.Quote(module), name.Value)
		if ok && next.IsOp(",") {
			if after, more := c.Peek(); more && after.IsOp(")") && paren {
				c.Next()
				break
			}
			continue
		}
		if ok && next.IsOp(")") && paren {
			break
		}
		if ok && next.Kind != token.NEWLINE && next.Kind != token.ENDMARKER {
			return nil, diag.NewSyntaxError(s.Filename, next, "unexpected %s in import", next)
		}
		break
	}
	b, err := ParseString(s.Filename, src.String())
	if err != nil {
		return nil, err
	}
	return b.Statements, nil
}

func dottedName(c *reader.Cursor) (string, error) {
	first, err := c.Expect(token.NAME)
	if err != nil {
		return "", err
	}
	parts := []string{first.Value}
	for {
		next, ok := c.Peek()
		if !ok || !next.IsOp(".") {
			return strings.Join(parts, "."), nil
		}
		c.Next()
		part, err := c.Expect(token.NAME)
		if err != nil {
			return "", err
		}
		parts = append(parts, part.Value)
	}
}

// escapeNames returns the names the `$` escapes in toks read from their
// environment, in order of first use.
func (s *Session) escapeNames(toks []token.Token) ([]string, error) {
	c := reader.New(s.Filename, toks)
	seen := make(map[string]bool)
	var names []string
	add := func(list []string) {
		for _, n := range list {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	for {
		t, ok := c.Next()
		if !ok {
			return names, nil
		}
		for isEscape(t) {
			expr, err := c.ReadExpr()
			if err != nil {
				return nil, err
			}
			t = expr[len(expr)-1]
			expr = expr[:len(expr)-1]
			if len(expr) == 0 {
				continue
			}
			if expr[0].Match(token.NAME, passthroughKeywords...) {
				nested, err := s.escapeNames(expr)
				if err != nil {
					return nil, err
				}
				add(nested)
				continue
			}
			quoted, err := s.expandInlineQuotes(expr)
			if err != nil {
				return nil, err
			}
			add(s.freeNames(quoted))
		}
	}
}

// freeNames lists the NAME tokens of an expression that refer to
// variables: keywords, attributes, keyword-argument names, names bound by
// comprehensions or lambdas, host builtins and the builder are skipped.
func (s *Session) freeNames(toks []token.Token) []string {
	bound := make(map[string]bool)
	for i, t := range toks {
		var stop string
		switch {
		case t.Match(token.NAME, "for"):
			stop = "in"
		case t.Match(token.NAME, "lambda"):
			stop = ":"
		default:
			continue
		}
		for _, u := range toks[i+1:] {
			if u.Value == stop {
				break
			}
			if u.Kind == token.NAME {
				bound[u.Value] = true
			}
		}
	}

	var names []string
	depth := 0
	for i, t := range toks {
		switch {
		case t.Kind == token.OP && reader.Nesting[t.Value] != "":
			depth++
		case t.IsOp(")", "]", "}"):
			depth--
		}
		if t.Kind != token.NAME {
			continue
		}
		if keywords[t.Value] || bound[t.Value] || t.Value == BuilderName || s.eval.IsBuiltin(t.Value) {
			continue
		}
		if i > 0 && toks[i-1].IsOp(".") {
			continue
		}
		if depth > 0 && i+1 < len(toks) && toks[i+1].IsOp("=") {
			continue
		}
		names = append(names, t.Value)
	}
	return names
}

func (s *Session) envLiteral(names []string) string {
	if len(names) == 0 {
		return "{}"
	}
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = s.eval.Quote(n) + ": " + n
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// generated parses builder program text produced by the expander.
func (s *Session) generated(format string, args ...any) ([]Node, error) {
	b, err := ParseString(s.Filename, fmt.Sprintf(format, args...))
	if err != nil {
		return nil, err
	}
	return b.Statements, nil
}
