// Package importer resolves `$import` and `load()` requests to expanded
// modules found on a search path.
//
// A module name maps to the file `<last dotted component><ext>` in the first
// search path directory that contains it. The file is expanded and executed
// in a session of its own; the bindings it leaves behind become the members
// of the module value. Modules are registered by name after their first
// successful expansion, so repeated imports return the same value.
package importer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/gnoswap-labs/metapy/internal/code"
	"github.com/gnoswap-labs/metapy/internal/host"
)

// DefaultExtension is the file extension of importable modules.
const DefaultExtension = ".mpy"

var ErrNotFound = errors.New("module not found")

// CycleError reports a module that imports itself, directly or not.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return "import cycle: " + strings.Join(e.Chain, " -> ")
}

type Importer struct {
	paths    []string
	ext      string
	hostOpts []host.Option
	gensym   *code.GenSym
	logger   *zap.Logger

	mu      sync.RWMutex
	modules map[string]*starlarkstruct.Module
	files   map[string]string
	group   singleflight.Group
}

var _ code.Loader = (*Importer)(nil)

type Option func(*Importer)

// WithExtension changes the extension module files are looked up with.
func WithExtension(ext string) Option {
	return func(imp *Importer) {
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if ext != "" {
			imp.ext = ext
		}
	}
}

// WithHostOptions configures the interpreter every module runs in.
func WithHostOptions(opts ...host.Option) Option {
	return func(imp *Importer) { imp.hostOpts = append(imp.hostOpts, opts...) }
}

func WithGenSym(g *code.GenSym) Option { return func(imp *Importer) { imp.gensym = g } }

func WithLogger(l *zap.Logger) Option {
	return func(imp *Importer) {
		if l != nil {
			imp.logger = l
		}
	}
}

func New(paths []string, opts ...Option) *Importer {
	imp := &Importer{
		paths:   append([]string(nil), paths...),
		ext:     DefaultExtension,
		gensym:  code.DefaultGenSym,
		logger:  zap.NewNop(),
		modules: make(map[string]*starlarkstruct.Module),
		files:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(imp)
	}
	return imp
}

// Install makes the importer resolve both the session's `$import`
// statements and the host's `load()` statements.
func (imp *Importer) Install(s *code.Session, h *host.Host) {
	s.SetLoader(imp)
	h.SetLoader(imp)
}

func (imp *Importer) Paths() []string { return append([]string(nil), imp.paths...) }

// Load returns the module registered under name, expanding it first if
// needed.
func (imp *Importer) Load(name string) (any, error) {
	return imp.load(name, nil)
}

// Module returns a registered module without loading anything.
func (imp *Importer) Module(name string) (*starlarkstruct.Module, bool) {
	imp.mu.RLock()
	defer imp.mu.RUnlock()
	m, ok := imp.modules[name]
	return m, ok
}

// Modules lists the registered module names.
func (imp *Importer) Modules() []string {
	imp.mu.RLock()
	defer imp.mu.RUnlock()
	names := make([]string, 0, len(imp.modules))
	for name := range imp.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Forget drops a module from the registry; the next import expands it again.
func (imp *Importer) Forget(name string) {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	delete(imp.modules, name)
	delete(imp.files, name)
}

// ForgetFile drops every module that was loaded from path.
func (imp *Importer) ForgetFile(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	imp.mu.Lock()
	defer imp.mu.Unlock()
	for name, file := range imp.files {
		if file == abs {
			delete(imp.modules, name)
			delete(imp.files, name)
		}
	}
}

// Reset empties the registry.
func (imp *Importer) Reset() {
	imp.mu.Lock()
	defer imp.mu.Unlock()
	imp.modules = make(map[string]*starlarkstruct.Module)
	imp.files = make(map[string]string)
}

// Find returns the file that name resolves to.
func (imp *Importer) Find(name string) (string, error) {
	file := name[strings.LastIndex(name, ".")+1:] + imp.ext
	for _, dir := range imp.paths {
		path := filepath.Join(dir, file)
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s (looked for %s in %s)", ErrNotFound, name, file, strings.Join(imp.paths, string(os.PathListSeparator)))
}

func (imp *Importer) load(name string, chain []string) (*starlarkstruct.Module, error) {
	for _, n := range chain {
		if n == name {
			return nil, &CycleError{Chain: append(append([]string(nil), chain...), name)}
		}
	}
	if m, ok := imp.Module(name); ok {
		return m, nil
	}

	v, err, _ := imp.group.Do(name, func() (any, error) {
		if m, ok := imp.Module(name); ok {
			return m, nil
		}
		path, err := imp.Find(name)
		if err != nil {
			return nil, err
		}
		next := append(append([]string(nil), chain...), name)
		m, err := imp.expand(name, path, next)
		if err != nil {
			imp.Forget(name)
			return nil, err
		}
		abs, absErr := filepath.Abs(path)
		if absErr != nil {
			abs = path
		}
		imp.mu.Lock()
		imp.modules[name] = m
		imp.files[name] = abs
		imp.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*starlarkstruct.Module), nil
}

func (imp *Importer) expand(name, path string, chain []string) (*starlarkstruct.Module, error) {
	loader := &chainLoader{imp: imp, chain: chain}
	opts := append(append([]host.Option(nil), imp.hostOpts...), host.WithLoader(loader), host.WithLogger(imp.logger))
	h := host.New(opts...)
	s := code.NewSession(h,
		code.WithFilename(path),
		code.WithLoader(loader),
		code.WithExec(true),
		code.WithGenSym(imp.gensym),
		code.WithLogger(imp.logger))

	res, err := s.ExpandFile(path)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", name, err)
	}
	m, err := moduleOf(name, h, res)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", name, err)
	}
	imp.logger.Info("imported module",
		zap.String("module", name),
		zap.String("file", path),
		zap.Int("members", len(m.Members)))
	return m, nil
}

// moduleOf builds the module value from the names an expanded module left
// in its scope.
func moduleOf(name string, h *host.Host, res *code.Result) (*starlarkstruct.Module, error) {
	names, values := res.Scope.Flatten()
	members := make(starlark.StringDict, len(names)+2)
	for _, n := range names {
		if n == code.BuilderName {
			continue
		}
		v, err := host.ToStarlark(values[n])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", n, err)
		}
		members[n] = v
	}

	members["__expanded__"] = starlark.String(res.Text)
	members["__doc__"] = starlark.None
	if res.Doc != "" {
		doc, err := h.Eval(res.Doc, code.NewScope(nil))
		if err != nil {
			return nil, fmt.Errorf("doc string: %w", err)
		}
		if s, ok := doc.(string); ok {
			members["__doc__"] = starlark.String(s)
		}
	}
	return &starlarkstruct.Module{Name: name, Members: members}, nil
}

// chainLoader loads on behalf of one module, remembering which modules are
// being expanded beneath it.
type chainLoader struct {
	imp   *Importer
	chain []string
}

func (l *chainLoader) Load(name string) (any, error) {
	return l.imp.load(name, l.chain)
}
