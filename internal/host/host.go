package host

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
	"go.uber.org/zap"

	"github.com/gnoswap-labs/metapy/internal/code"
	"github.com/gnoswap-labs/metapy/internal/template"
)

// FileOptions enables the Python features expanded modules commonly use.
var FileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

const sessionKey = "metapy.session"

// Host evaluates code with the Starlark interpreter. Every Eval and Exec
// call runs on its own thread, so nested calls made by builder methods
// during an Exec are independent.
type Host struct {
	ctx      context.Context
	stdout   io.Writer
	loader   code.Loader
	maxSteps uint64
	logger   *zap.Logger
}

var _ code.Evaluator = (*Host)(nil)

type Option func(*Host)

// WithContext cancels running threads when ctx is done.
func WithContext(ctx context.Context) Option { return func(h *Host) { h.ctx = ctx } }

// WithStdout routes print() output to w.
func WithStdout(w io.Writer) Option { return func(h *Host) { h.stdout = w } }

// WithLoader resolves `load()` statements through l.
func WithLoader(l code.Loader) Option { return func(h *Host) { h.loader = l } }

// WithMaxSteps bounds the number of steps a single thread may execute.
func WithMaxSteps(n uint64) Option { return func(h *Host) { h.maxSteps = n } }

func WithLogger(l *zap.Logger) Option {
	return func(h *Host) {
		if l != nil {
			h.logger = l
		}
	}
}

func New(opts ...Option) *Host {
	h := &Host{stdout: os.Stdout, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetLoader replaces the loader used by `load()` statements.
func (h *Host) SetLoader(l code.Loader) { h.loader = l }

func (h *Host) Eval(expr string, scope *code.Scope) (any, error) {
	env, err := globals(scope)
	if err != nil {
		return nil, err
	}
	thread, done := h.thread(scope)
	defer done()

	v, err := starlark.EvalOptions(FileOptions, thread, "<expr>", expr, env)
	if err != nil {
		return nil, err
	}
	return FromStarlark(v), nil
}

// Exec runs src with the scope's names as globals. Every global the program
// refers to is written back into scope, even when execution fails part way.
func (h *Host) Exec(src string, scope *code.Scope) error {
	f, err := FileOptions.Parse("<exec>", src, 0)
	if err != nil {
		return err
	}
	env, err := globals(scope)
	if err != nil {
		return err
	}
	thread, done := h.thread(scope)
	defer done()

	release := scope.Attach(runningGlobals{thread})
	execErr := starlark.ExecREPLChunk(f, thread, env)
	release()
	if mod, ok := f.Module.(*resolve.Module); ok {
		for _, b := range mod.Globals {
			name := b.First.Name
			if name == code.BuilderName {
				continue
			}
			if v, ok := env[name]; ok {
				scope.Set(name, v)
			}
		}
	}
	return execErr
}

// runningGlobals exposes the globals of the program executing on a thread,
// so builder calls made by the program see its assignments so far.
type runningGlobals struct {
	thread *starlark.Thread
}

func (g runningGlobals) current() starlark.StringDict {
	depth := g.thread.CallStackDepth()
	if depth == 0 {
		return nil
	}
	fn, ok := g.thread.DebugFrame(depth - 1).Callable().(*starlark.Function)
	if !ok {
		return nil
	}
	d := fn.Globals()
	delete(d, code.BuilderName)
	return d
}

func (g runningGlobals) Names() []string { return g.current().Keys() }

func (g runningGlobals) Lookup(name string) (any, bool) {
	if name == code.BuilderName {
		return nil, false
	}
	v, ok := g.current()[name]
	return v, ok
}

// LocalNames resolves src without running it and returns the locals of its
// first function definition. Every free name is treated as predeclared.
func (h *Host) LocalNames(src string) ([]string, error) {
	f, err := FileOptions.Parse("<hygiene>", src, 0)
	if err != nil {
		return nil, err
	}
	anything := func(string) bool { return true }
	if err := resolve.File(f, anything, starlark.Universe.Has); err != nil {
		return nil, err
	}
	for _, stmt := range f.Stmts {
		def, ok := stmt.(*syntax.DefStmt)
		if !ok {
			continue
		}
		fn := def.Function.(*resolve.Function)
		names := make([]string, 0, len(fn.Locals))
		for _, b := range fn.Locals {
			names = append(names, b.First.Name)
		}
		return names, nil
	}
	return nil, fmt.Errorf("no function definition in %q", src)
}

// Render fills the template's holes with the inline text of the values
// bound in scope.
func (h *Host) Render(tmpl string, scope *code.Scope) (string, error) {
	t, err := template.New(tmpl)
	if err != nil {
		return "", err
	}
	return t.Render(func(name string) (string, bool) {
		v, ok := scope.Get(name)
		if !ok {
			return "", false
		}
		if sv, isValue := v.(starlark.Value); isValue {
			v = FromStarlark(sv)
		}
		return code.Render(v), true
	})
}

func (h *Host) Quote(s string) string { return syntax.Quote(s, false) }

func (h *Host) IsBuiltin(name string) bool { return starlark.Universe.Has(name) }

func (h *Host) thread(scope *code.Scope) (*starlark.Thread, func()) {
	th := &starlark.Thread{
		Name: "metapy",
		Print: func(_ *starlark.Thread, msg string) {
			fmt.Fprintln(h.stdout, msg)
		},
		Load: h.load,
	}
	if v, ok := scope.Get(code.BuilderName); ok {
		if b := asBuilder(v); b != nil {
			th.SetLocal(sessionKey, b.Session())
		}
	}
	if h.maxSteps > 0 {
		th.SetMaxExecutionSteps(h.maxSteps)
	}
	if h.ctx == nil {
		return th, func() {}
	}
	stop := make(chan struct{})
	go func() {
		select {
		case <-h.ctx.Done():
			th.Cancel(h.ctx.Err().Error())
		case <-stop:
		}
	}()
	return th, func() { close(stop) }
}

func (h *Host) load(_ *starlark.Thread, module string) (starlark.StringDict, error) {
	if h.loader == nil {
		return nil, fmt.Errorf("cannot load %s: no loader configured", module)
	}
	v, err := h.loader.Load(module)
	if err != nil {
		return nil, err
	}
	h.logger.Debug("load statement", zap.String("module", module))
	switch m := v.(type) {
	case *starlarkstruct.Module:
		return m.Members, nil
	case starlark.StringDict:
		return m, nil
	}
	return nil, fmt.Errorf("cannot load %s: loader returned %T", module, v)
}

func sessionOf(thread *starlark.Thread) (*code.Session, error) {
	s, ok := thread.Local(sessionKey).(*code.Session)
	if !ok || s == nil {
		return nil, fmt.Errorf("code values need a session: %s is not bound", code.BuilderName)
	}
	return s, nil
}

func asBuilder(v any) *code.Builder {
	switch b := v.(type) {
	case *code.Builder:
		return b
	case *builderValue:
		return b.b
	}
	return nil
}
