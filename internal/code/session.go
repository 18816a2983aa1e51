package code

import (
	"time"

	"go.uber.org/zap"

	"github.com/gnoswap-labs/metapy/internal/diag"
	"github.com/gnoswap-labs/metapy/internal/lexer"
	"github.com/gnoswap-labs/metapy/internal/token"
)

// Session carries the state one expansion runs against: the evaluator, the
// scope macro expressions see, the builder stack and the name generator.
// A session is not safe for concurrent use.
type Session struct {
	Filename string

	eval    Evaluator
	scope   *Scope
	builder *Builder
	gensym  *GenSym
	loader  Loader
	logger  *zap.Logger
	exec    bool
}

type Option func(*Session)

func WithFilename(name string) Option { return func(s *Session) { s.Filename = name } }

// WithScope makes the session evaluate in scope instead of a fresh one.
func WithScope(scope *Scope) Option { return func(s *Session) { s.scope = scope } }

func WithGenSym(g *GenSym) Option { return func(s *Session) { s.gensym = g } }

func WithLoader(l Loader) Option { return func(s *Session) { s.loader = l } }

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithExec runs the expanded module after expansion.
func WithExec(exec bool) Option { return func(s *Session) { s.exec = exec } }

func NewSession(eval Evaluator, opts ...Option) *Session {
	s := &Session{
		Filename: "<string>",
		eval:     eval,
		gensym:   DefaultGenSym,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.scope == nil {
		s.scope = NewScope(nil)
	}
	s.builder = &Builder{s: s}
	s.scope.Set(BuilderName, s.builder)
	return s
}

func (s *Session) Scope() *Scope        { return s.scope }
func (s *Session) Builder() *Builder    { return s.builder }
func (s *Session) Evaluator() Evaluator { return s.eval }
func (s *Session) Logger() *zap.Logger  { return s.logger }
func (s *Session) SetLoader(l Loader)   { s.loader = l }
func (s *Session) GenSym() *GenSym      { return s.gensym }

// Result is the outcome of expanding a module.
type Result struct {
	Filename string
	// Doc is the module's leading string literal as written, or "".
	Doc   string
	Block *Block
	Text  string
	Scope *Scope
}

// ExpandString expands the module source src.
func (s *Session) ExpandString(src string) (*Result, error) {
	toks, err := lexer.Lex(s.Filename, src)
	if err != nil {
		return nil, err
	}
	return s.ExpandTokens(toks)
}

// ExpandFile expands the module stored at path.
func (s *Session) ExpandFile(path string) (*Result, error) {
	s.Filename = path
	toks, err := lexer.LexFile(path)
	if err != nil {
		return nil, err
	}
	return s.ExpandTokens(toks)
}

// ExpandTokens runs the module pipeline: parse, expand defcode blocks,
// quote the module into a builder program, run that program and take the
// block it built as the expanded module.
func (s *Session) ExpandTokens(toks []token.Token) (*Result, error) {
	start := time.Now()
	parsed, err := ParseTokens(s.Filename, toks)
	if err != nil {
		return nil, err
	}
	out, err := s.Expand(parsed)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Filename: s.Filename,
		Doc:      docString(toks),
		Block:    out,
		Text:     out.AsPython(false),
		Scope:    s.scope,
	}
	if s.exec {
		if err := s.execText(res.Text, s.scope); err != nil {
			return nil, err
		}
	}
	s.logger.Info("expanded module",
		zap.String("file", s.Filename),
		zap.Int("statements", out.Len()),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}

// Expand quotes b, runs the resulting builder program in the block's
// namespace (or the session scope) and returns the block it produced.
func (s *Session) Expand(b *Block) (*Block, error) {
	expanded, err := s.ExpandDefcode(b)
	if err != nil {
		return nil, err
	}
	program, err := s.QuoteBlock(expanded)
	if err != nil {
		return nil, err
	}

	base := s.builder.Depth()
	s.builder.Push()
	if err := s.execText(program.AsPython(false), s.scopeFor(b)); err != nil {
		s.builder.truncate(base)
		return nil, err
	}
	if depth := s.builder.Depth(); depth != base+1 {
		s.builder.truncate(base)
		return nil, &diag.StackError{Op: "expand", Depth: depth - base - 1}
	}
	return s.builder.Pop()
}

// ExpandMacrosIn expands the escapes of b against its namespace and
// reparses the result.
func (s *Session) ExpandMacrosIn(b *Block) (*Block, error) {
	toks, err := s.ExpandMacros(b.Tokens(), s.scopeFor(b))
	if err != nil {
		return nil, err
	}
	nb, err := ParseTokens(s.Filename, toks)
	if err != nil {
		return nil, err
	}
	nb.Namespace = b.Namespace
	return nb, nil
}

// EvalBlock evaluates b as a single expression.
func (s *Session) EvalBlock(b *Block) (any, error) {
	text := b.AsPython(true)
	v, err := s.eval.Eval(text, s.scopeFor(b))
	if err != nil {
		return nil, &diag.EvalError{Filename: s.Filename, Source: text, Err: err}
	}
	return v, nil
}

// ExecBlock executes b.
func (s *Session) ExecBlock(b *Block) error {
	return s.execText(b.AsPython(false), s.scopeFor(b))
}

func (s *Session) scopeFor(b *Block) *Scope {
	if b != nil && b.Namespace != nil {
		return b.Namespace
	}
	return s.scope
}

func docString(toks []token.Token) string {
	for _, t := range toks {
		switch t.Kind {
		case token.COMMENT, token.NL:
			continue
		case token.STRING:
			return t.Value
		}
		return ""
	}
	return ""
}
