package code

import (
	"fmt"

	"github.com/gnoswap-labs/metapy/internal/diag"
	"github.com/gnoswap-labs/metapy/internal/lexer"
	"github.com/gnoswap-labs/metapy/internal/reader"
	"github.com/gnoswap-labs/metapy/internal/token"
)

// suiteKeywords are the header words that turn a depth-0 colon into the
// start of a suite.
var suiteKeywords = []string{
	"for", "while", "if", "elif", "else", "try", "except", "finally",
	"with", "class", "def", "defcode", "deftemplate",
}

// ParseTokens groups a token stream into statements and suites. Error
// tokens holding a single space, ENDMARKER, NL and COMMENT tokens are
// dropped.
func ParseTokens(filename string, toks []token.Token) (*Block, error) {
	p := &parser{c: reader.New(filename, toks), filename: filename}
	return p.parse()
}

// ParseInline parses toks and requires exactly one resulting node.
func ParseInline(filename string, toks []token.Token) (Node, error) {
	b, err := ParseTokens(filename, toks)
	if err != nil {
		return nil, err
	}
	if b.Len() != 1 {
		first := token.New(token.ENDMARKER, "")
		if len(toks) > 0 {
			first = toks[0]
		}
		return nil, diag.NewSyntaxError(filename, first, "inline code must be a single statement, found %d", b.Len())
	}
	return b.Statements[0], nil
}

// ParseString lexes and parses src.
func ParseString(filename, src string) (*Block, error) {
	toks, err := lexer.Lex(filename, src)
	if err != nil {
		return nil, err
	}
	return ParseTokens(filename, toks)
}

// ParseStringInline lexes src and parses it as a single node.
func ParseStringInline(filename, src string) (Node, error) {
	toks, err := lexer.Lex(filename, src)
	if err != nil {
		return nil, err
	}
	return ParseInline(filename, toks)
}

// ParseFile reads, lexes and parses the file at path.
func ParseFile(path string) (*Block, error) {
	toks, err := lexer.LexFile(path)
	if err != nil {
		return nil, err
	}
	return ParseTokens(path, toks)
}

type parser struct {
	c        *reader.Cursor
	filename string
	line     []token.Token
	openers  []token.Token
	out      *Block
}

func (p *parser) parse() (*Block, error) {
	p.out = NewBlock()
	for {
		t, ok := p.c.Next()
		if !ok {
			break
		}
		if skipped(t) {
			continue
		}
		if t.Kind == token.NEWLINE && len(p.line) == 0 && len(p.openers) == 0 {
			continue
		}
		p.line = append(p.line, t)

		switch {
		case t.Kind == token.OP && reader.Nesting[t.Value] != "":
			p.openers = append(p.openers, t)
		case t.IsOp(")", "]", "}"):
			if len(p.openers) > 0 {
				p.openers = p.openers[:len(p.openers)-1]
			}
		case t.Kind == token.NEWLINE:
			if err := p.checkBalanced(); err != nil {
				return nil, err
			}
			p.flush()
		case t.IsOp(":") && len(p.openers) == 0 && isSuiteHeader(p.line):
			if err := p.suite(); err != nil {
				return nil, err
			}
		}
	}
	if err := p.checkBalanced(); err != nil {
		return nil, err
	}
	p.flush()
	return p.out, nil
}

func (p *parser) suite() error {
	header := p.line
	p.line = nil

	next, ok := p.c.Peek()
	for ok && next.Kind == token.COMMENT {
		p.c.Next()
		next, ok = p.c.Peek()
	}
	if ok && next.Kind == token.NEWLINE {
		p.c.Next()
		header = append(header, next)
		span, err := p.c.ReadIndentedBlock()
		if err != nil {
			return err
		}
		open := indexOfKind(span, token.INDENT)
		body, err := ParseTokens(p.filename, span[open+1:len(span)-1])
		if err != nil {
			return err
		}
		p.out.Append(&Suite{
			Header:   header,
			Body:     body,
			Prologue: []token.Token{span[open]},
			Epilogue: []token.Token{span[len(span)-1]},
		})
		return nil
	}

	rest, err := p.c.ReadToNewline()
	if err != nil {
		return err
	}
	body, err := ParseTokens(p.filename, rest)
	if err != nil {
		return err
	}
	p.out.Append(NewSuite(header, body, nil, nil))
	return nil
}

func (p *parser) flush() {
	if len(p.line) == 0 {
		return
	}
	p.out.Append(&Statement{Toks: p.line})
	p.line = nil
}

func (p *parser) checkBalanced() error {
	if len(p.openers) == 0 {
		return nil
	}
	open := p.openers[len(p.openers)-1]
	return diag.NewSyntaxError(p.filename, open, "unterminated %q opened on line %d", open.Value, open.Begin.Line)
}

func skipped(t token.Token) bool {
	switch t.Kind {
	case token.ENDMARKER, token.NL, token.COMMENT:
		return true
	case token.ERRORTOKEN:
		return t.Value == " "
	}
	return false
}

// isSuiteHeader reports whether the buffered line starts a compound
// statement: its first non-marker token is a suite keyword or a bare colon.
func isSuiteHeader(line []token.Token) bool {
	for _, t := range line {
		if t.Kind.IsMarker() {
			continue
		}
		return t.Match(token.NAME, suiteKeywords...) || t.IsOp(":")
	}
	return false
}

func indexOfKind(toks []token.Token, kind token.Kind) int {
	for i, t := range toks {
		if t.Kind == kind {
			return i
		}
	}
	panic(fmt.Sprintf("no %s token in span", kind))
}
