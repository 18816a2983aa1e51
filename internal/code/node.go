package code

import (
	"strings"

	"github.com/gnoswap-labs/metapy/internal/lexer"
	"github.com/gnoswap-labs/metapy/internal/token"
)

// Node is a single element of a Block: either a Statement or a Suite.
type Node interface {
	// Tokens returns the node's tokens in source order.
	Tokens() []token.Token
	// First returns the node's first token.
	First() token.Token
	// AsPython renders the node as source text. With inline set the
	// trailing newline is omitted.
	AsPython(inline bool) string
	clone() Node
}

// Statement is a simple (non-compound) logical line.
type Statement struct {
	Toks []token.Token
}

func NewStatement(toks ...token.Token) *Statement {
	return &Statement{Toks: toks}
}

func (s *Statement) Tokens() []token.Token { return s.Toks }

func (s *Statement) First() token.Token {
	if len(s.Toks) == 0 {
		return token.New(token.ENDMARKER, "")
	}
	return s.Toks[0]
}

// EOL reports whether the statement ends with a NEWLINE token.
func (s *Statement) EOL() bool {
	return len(s.Toks) > 0 && s.Toks[len(s.Toks)-1].Kind == token.NEWLINE
}

func (s *Statement) AsPython(inline bool) string {
	return lexer.Untokenize(s.Toks, inline)
}

func (s *Statement) String() string { return s.AsPython(true) }

// terminate appends a NEWLINE unless the statement already ends with one.
func (s *Statement) terminate() {
	if s.EOL() {
		return
	}
	nl := token.New(token.NEWLINE, "\n")
	if len(s.Toks) > 0 {
		nl.Begin = s.Toks[len(s.Toks)-1].End
		nl.End = nl.Begin
	}
	s.Toks = append(s.Toks[:len(s.Toks):len(s.Toks)], nl)
}

func (s *Statement) clone() Node {
	return &Statement{Toks: append([]token.Token(nil), s.Toks...)}
}

// Suite is a compound statement: a header line ending in `:` and a body.
// Prologue holds the INDENT that opens the body and Epilogue the closing
// DEDENT.
type Suite struct {
	Header   []token.Token
	Body     *Block
	Prologue []token.Token
	Epilogue []token.Token
}

// NewSuite builds a suite. A missing prologue or epilogue defaults to a
// four-space INDENT and a DEDENT, and a header that does not end in NEWLINE
// gets one.
func NewSuite(header []token.Token, body *Block, prologue, epilogue []token.Token) *Suite {
	if prologue == nil {
		prologue = []token.Token{token.New(token.INDENT, "    ")}
	}
	if epilogue == nil {
		epilogue = []token.Token{token.New(token.DEDENT, "")}
	}
	if body == nil {
		body = NewBlock()
	}
	header = append([]token.Token(nil), header...)
	if len(header) == 0 || header[len(header)-1].Kind != token.NEWLINE {
		header = append(header, token.New(token.NEWLINE, "\n"))
	}
	return &Suite{Header: header, Body: body, Prologue: prologue, Epilogue: epilogue}
}

func (s *Suite) Tokens() []token.Token {
	out := make([]token.Token, 0, len(s.Header)+len(s.Prologue)+len(s.Epilogue))
	out = append(out, s.Header...)
	out = append(out, s.Prologue...)
	out = append(out, s.Body.Tokens()...)
	return append(out, s.Epilogue...)
}

func (s *Suite) First() token.Token {
	if len(s.Header) == 0 {
		return token.New(token.ENDMARKER, "")
	}
	return s.Header[0]
}

func (s *Suite) AsPython(inline bool) string {
	return lexer.Untokenize(s.Tokens(), inline)
}

func (s *Suite) String() string { return s.AsPython(true) }

// Keyword returns the header's first NAME, or "" for a bare `:` header.
func (s *Suite) Keyword() string {
	for _, t := range s.Header {
		if t.Kind.IsMarker() {
			continue
		}
		if t.Kind == token.NAME {
			return t.Value
		}
		return ""
	}
	return ""
}

func (s *Suite) clone() Node {
	return &Suite{
		Header:   append([]token.Token(nil), s.Header...),
		Body:     s.Body.Clone(),
		Prologue: append([]token.Token(nil), s.Prologue...),
		Epilogue: append([]token.Token(nil), s.Epilogue...),
	}
}

// Block is an ordered sequence of statements and suites. Nodes appended to a
// block are copied, so a node is never shared between two blocks.
type Block struct {
	Statements []Node
	// Namespace, when set, is the scope the block is evaluated in.
	Namespace *Scope
}

func NewBlock(nodes ...Node) *Block {
	b := &Block{}
	for _, n := range nodes {
		b.Append(n)
	}
	return b
}

// Append adds a copy of n. A preceding statement that lacks a trailing
// NEWLINE is terminated first.
func (b *Block) Append(n Node) {
	if len(b.Statements) > 0 {
		if st, ok := b.Statements[len(b.Statements)-1].(*Statement); ok {
			st.terminate()
		}
	}
	b.Statements = append(b.Statements, n.clone())
}

// AppendBlock appends every node of other.
func (b *Block) AppendBlock(other *Block) {
	for _, n := range other.Statements {
		b.Append(n)
	}
}

func (b *Block) Len() int { return len(b.Statements) }

// terminate ends a trailing statement with a NEWLINE.
func (b *Block) terminate() {
	if len(b.Statements) == 0 {
		return
	}
	if st, ok := b.Statements[len(b.Statements)-1].(*Statement); ok {
		st.terminate()
	}
}

// Tokens returns the concatenated tokens of every node.
func (b *Block) Tokens() []token.Token {
	var out []token.Token
	for _, n := range b.Statements {
		out = append(out, n.Tokens()...)
	}
	return out
}

// AsPython renders the block. Unless inline, non-empty text always ends
// with a newline.
func (b *Block) AsPython(inline bool) string {
	text := lexer.Untokenize(b.Tokens(), inline)
	if !inline && text != "" && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return text
}

func (b *Block) String() string { return b.AsPython(true) }

// Equal compares two blocks token by token.
func (b *Block) Equal(o *Block) bool {
	if b == nil || o == nil {
		return b == o
	}
	return token.Equal(b.Tokens(), o.Tokens())
}

func (b *Block) Clone() *Block {
	out := &Block{Namespace: b.Namespace}
	for _, n := range b.Statements {
		out.Statements = append(out.Statements, n.clone())
	}
	return out
}
