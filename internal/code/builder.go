package code

import (
	"fmt"

	"github.com/gnoswap-labs/metapy/internal/diag"
	"github.com/gnoswap-labs/metapy/internal/lexer"
	"github.com/gnoswap-labs/metapy/internal/token"
)

// BuilderName is the name the builder is bound to in every session scope.
const BuilderName = "_mpy"

// Builder is the runtime that generated builder programs call into. It
// keeps a stack of blocks under construction; quoted statements are
// appended to the top block after their escapes are expanded.
//
// A Builder belongs to one Session and is not safe for concurrent use.
type Builder struct {
	s     *Session
	stack []*Block
}

func (b *Builder) Session() *Session { return b.s }

// Push starts a new block.
func (b *Builder) Push() {
	b.stack = append(b.stack, NewBlock())
}

// Pop removes and returns the block on top of the stack.
func (b *Builder) Pop() (*Block, error) {
	if len(b.stack) == 0 {
		return nil, &diag.StackError{Op: "pop", Depth: 0}
	}
	top := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]
	return top, nil
}

func (b *Builder) Depth() int { return len(b.stack) }

func (b *Builder) top() (*Block, error) {
	if len(b.stack) == 0 {
		return nil, &diag.StackError{Op: "append", Depth: 0}
	}
	return b.stack[len(b.stack)-1], nil
}

func (b *Builder) truncate(depth int) {
	if depth < len(b.stack) {
		b.stack = b.stack[:depth]
	}
}

// Append adds code to the top block. Text is lexed, has its escapes
// expanded against the session scope overlaid with env, and is parsed;
// blocks and nodes are copied in as they are.
func (b *Builder) Append(v any, env map[string]any) error {
	top, err := b.top()
	if err != nil {
		return err
	}
	switch x := v.(type) {
	case string:
		blk, err := b.expandText(x, env)
		if err != nil {
			return err
		}
		top.AppendBlock(blk)
		top.terminate()
	case *Block:
		top.AppendBlock(x)
	case Node:
		top.Append(x)
	default:
		return fmt.Errorf("builder: cannot append %T", v)
	}
	return nil
}

// AppendSuite pops the top block and appends it, as the body of a suite with
// the given header, to the block below.
func (b *Builder) AppendSuite(header string, env map[string]any) error {
	toks, err := lexer.Lex(b.s.Filename, header)
	if err != nil {
		return err
	}
	toks, err = b.s.ExpandMacros(toks, ScopeOf(b.s.scope, env))
	if err != nil {
		return err
	}
	head := make([]token.Token, 0, len(toks))
	for _, t := range toks {
		if t.Kind != token.ENDMARKER {
			head = append(head, t)
		}
	}
	body, err := b.Pop()
	if err != nil {
		return err
	}
	top, err := b.top()
	if err != nil {
		return err
	}
	top.Append(NewSuite(head, body, nil, nil))
	return nil
}

// Q parses text as a single statement or suite.
func (b *Builder) Q(text string) (Node, error) {
	return ParseStringInline(b.s.Filename, text)
}

// Template renders a `$name$` template with env and parses the result.
func (b *Builder) Template(text string, env map[string]any) (*Block, error) {
	out, err := b.s.eval.Render(text, ScopeOf(b.s.scope, env))
	if err != nil {
		return nil, &diag.EvalError{Filename: b.s.Filename, Source: text, Err: err}
	}
	return ParseString(b.s.Filename, out)
}

// Require resolves a module through the session's loader. Builder programs
// reach it as `_mpy.require` since `load` is reserved in Starlark.
func (b *Builder) Require(name string) (any, error) {
	if b.s.loader == nil {
		return nil, fmt.Errorf("builder: no loader configured, cannot import %q", name)
	}
	return b.s.loader.Load(name)
}

func (b *Builder) expandText(text string, env map[string]any) (*Block, error) {
	toks, err := lexer.Lex(b.s.Filename, text)
	if err != nil {
		return nil, err
	}
	toks, err = b.s.ExpandMacros(toks, ScopeOf(b.s.scope, env))
	if err != nil {
		return nil, err
	}
	return ParseTokens(b.s.Filename, toks)
}
