package host

import (
	"fmt"
	"sort"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/gnoswap-labs/metapy/internal/code"
)

// builderValue exposes a code.Builder to Starlark as the `_mpy` object.
type builderValue struct {
	b *code.Builder
}

var (
	_ starlark.HasAttrs   = (*builderValue)(nil)
	_ starlark.HasAttrs   = (*Code)(nil)
	_ starlark.Comparable = (*Code)(nil)
)

var builderMethods = map[string]func(b *code.Builder, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error){
	"push":         builderPush,
	"pop":          builderPop,
	"append":       builderAppend,
	"append_suite": builderAppendSuite,
	"q":            builderQ,
	"template":     builderTemplate,
	"require":      builderRequire,
}

func (v *builderValue) String() string        { return "<builder>" }
func (v *builderValue) Type() string          { return "builder" }
func (v *builderValue) Freeze()               {}
func (v *builderValue) Truth() starlark.Bool  { return starlark.True }
func (v *builderValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: builder") }

func (v *builderValue) Attr(name string) (starlark.Value, error) {
	method, ok := builderMethods[name]
	if !ok {
		return nil, nil
	}
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		return method(v.b, fn, args, kwargs)
	}), nil
}

func (v *builderValue) AttrNames() []string {
	names := make([]string, 0, len(builderMethods))
	for name := range builderMethods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func builderPush(b *code.Builder, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	b.Push()
	return starlark.None, nil
}

func builderPop(b *code.Builder, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	blk, err := b.Pop()
	if err != nil {
		return nil, err
	}
	return NewCode(blk), nil
}

func builderAppend(b *code.Builder, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		stmt starlark.Value
		env  *starlark.Dict
	)
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "stmt", &stmt, "env?", &env); err != nil {
		return nil, err
	}
	vars, err := envMap(fn.Name(), env)
	if err != nil {
		return nil, err
	}
	if err := b.Append(FromStarlark(stmt), vars); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

func builderAppendSuite(b *code.Builder, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		header string
		env    *starlark.Dict
	)
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "header", &header, "env?", &env); err != nil {
		return nil, err
	}
	vars, err := envMap(fn.Name(), env)
	if err != nil {
		return nil, err
	}
	if err := b.AppendSuite(header, vars); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

func builderQ(b *code.Builder, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var text string
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &text); err != nil {
		return nil, err
	}
	n, err := b.Q(text)
	if err != nil {
		return nil, err
	}
	return NewCode(n), nil
}

func builderTemplate(b *code.Builder, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		text string
		env  *starlark.Dict
	)
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "text", &text, "env?", &env); err != nil {
		return nil, err
	}
	vars, err := envMap(fn.Name(), env)
	if err != nil {
		return nil, err
	}
	blk, err := b.Template(text, vars)
	if err != nil {
		return nil, err
	}
	return NewCode(blk), nil
}

func builderRequire(b *code.Builder, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	m, err := b.Require(name)
	if err != nil {
		return nil, err
	}
	return ToStarlark(m)
}

// Code is a Starlark value wrapping a block, statement or suite.
type Code struct {
	v any
}

// NewCode wraps a *code.Block or a code.Node.
func NewCode(v any) *Code { return &Code{v: v} }

// Block returns the wrapped code as a block.
func (c *Code) Block() *code.Block {
	switch x := c.v.(type) {
	case *code.Block:
		return x
	case code.Node:
		return code.NewBlock(x)
	}
	return code.NewBlock()
}

func (c *Code) String() string        { return code.Render(c.v) }
func (c *Code) Type() string          { return "code" }
func (c *Code) Freeze()               {}
func (c *Code) Truth() starlark.Bool  { return starlark.True }
func (c *Code) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: code") }

func (c *Code) CompareSameType(op syntax.Token, y starlark.Value, _ int) (bool, error) {
	other := y.(*Code)
	switch op {
	case syntax.EQL:
		return c.Block().Equal(other.Block()), nil
	case syntax.NEQ:
		return !c.Block().Equal(other.Block()), nil
	}
	return false, fmt.Errorf("%s %s %s not implemented", c.Type(), op, y.Type())
}

var codeMethods = []string{"as_python", "expand", "replace_names", "sanitize"}

func (c *Code) AttrNames() []string { return codeMethods }

func (c *Code) Attr(name string) (starlark.Value, error) {
	switch name {
	case "as_python":
		return starlark.NewBuiltin(name, c.asPython), nil
	case "expand":
		return starlark.NewBuiltin(name, c.expand), nil
	case "replace_names":
		return starlark.NewBuiltin(name, c.replaceNames), nil
	case "sanitize":
		return starlark.NewBuiltin(name, c.sanitize), nil
	}
	return nil, nil
}

func (c *Code) asPython(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	inline := false
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "inline?", &inline); err != nil {
		return nil, err
	}
	if p, ok := c.v.(code.Pythonic); ok {
		return starlark.String(p.AsPython(inline)), nil
	}
	return starlark.String(""), nil
}

func (c *Code) expand(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	s, err := sessionOf(thread)
	if err != nil {
		return nil, err
	}
	out, err := s.Expand(c.Block())
	if err != nil {
		return nil, err
	}
	return NewCode(out), nil
}

// replaceNames renames names given as keyword arguments: x.replace_names(i="j").
func (c *Code) replaceNames(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("%s: unexpected positional arguments", fn.Name())
	}
	mapping := make(map[string]string, len(kwargs))
	for _, kv := range kwargs {
		name, _ := starlark.AsString(kv[0])
		mapping[name] = strings.TrimSpace(code.Render(FromStarlark(kv[1])))
	}
	filename := "<code>"
	if s, err := sessionOf(thread); err == nil {
		filename = s.Filename
	}
	out, err := code.ReplaceNames(filename, c.Block(), mapping)
	if err != nil {
		return nil, err
	}
	return NewCode(out), nil
}

// sanitize renames the block's locals except those named by the arguments.
func (c *Code) sanitize(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", fn.Name())
	}
	s, err := sessionOf(thread)
	if err != nil {
		return nil, err
	}
	omit := make([]string, len(args))
	for i, a := range args {
		omit[i] = code.Render(FromStarlark(a))
	}
	out, err := s.Sanitize(c.Block(), omit...)
	if err != nil {
		return nil, err
	}
	return NewCode(out), nil
}
