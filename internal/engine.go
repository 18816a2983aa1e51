package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/gnoswap-labs/metapy/importer"
	"github.com/gnoswap-labs/metapy/internal/code"
	"github.com/gnoswap-labs/metapy/internal/host"
	"github.com/gnoswap-labs/metapy/scanner"
)

const defaultDebounce = 100 * time.Millisecond

// Expansion is the outcome of expanding one source file.
type Expansion struct {
	Filename string `json:"-"`
	Doc      string `json:"doc"`
	Text     string `json:"text"`

	cached bool
}

// FromCache reports whether the expansion was served by the cache.
func (e *Expansion) FromCache() bool { return e.cached }

// Engine expands files. Each file gets a session of its own; sessions share
// the engine's importer, so library modules are expanded once.
type Engine struct {
	importer   *importer.Importer
	hostOpts   []host.Option
	logger     *zap.Logger
	cache      *Cache
	exec       bool
	extensions []string

	watchDirs  []string
	watcher    *fsnotify.Watcher
	isWatching atomic.Bool
	debounce   time.Duration
	onResult   func(filename string, exp *Expansion, err error)
}

type EngineOption func(*Engine)

func WithImporter(imp *importer.Importer) EngineOption {
	return func(e *Engine) { e.importer = imp }
}

func WithHostOptions(opts ...host.Option) EngineOption {
	return func(e *Engine) { e.hostOpts = append(e.hostOpts, opts...) }
}

func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithCache serves repeated expansions of unchanged files from c. Engines
// that execute modules never use the cache.
func WithCache(c *Cache) EngineOption { return func(e *Engine) { e.cache = c } }

// WithExec executes every module after expanding it.
func WithExec(exec bool) EngineOption { return func(e *Engine) { e.exec = exec } }

func WithExtensions(exts ...string) EngineOption {
	return func(e *Engine) {
		if len(exts) > 0 {
			e.extensions = exts
		}
	}
}

func WithWatchDirs(dirs ...string) EngineOption {
	return func(e *Engine) { e.watchDirs = append(e.watchDirs, dirs...) }
}

// WithResultHandler receives the outcome of every expansion triggered by
// the watcher. Without one, outcomes are logged.
func WithResultHandler(fn func(filename string, exp *Expansion, err error)) EngineOption {
	return func(e *Engine) { e.onResult = fn }
}

// NewEngine creates an expansion engine.
func NewEngine(opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		logger:     zap.NewNop(),
		extensions: []string{importer.DefaultExtension},
		debounce:   defaultDebounce,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache != nil && e.importer != nil {
		e.cache.SetDependencies(e.libraryFiles())
	}
	return e, nil
}

func (e *Engine) Importer() *importer.Importer { return e.importer }
func (e *Engine) Extensions() []string         { return e.extensions }

// libraryFiles lists the module files on the importer's search path.
func (e *Engine) libraryFiles() []string {
	var files []string
	for _, dir := range e.importer.Paths() {
		found, err := scanner.New(dir, e.extensions...).Scan()
		if err != nil {
			e.logger.Debug("skipping search path", zap.String("dir", dir), zap.Error(err))
			continue
		}
		for _, f := range found {
			files = append(files, f.Path)
		}
	}
	return files
}

// NewSession returns a session and host wired to the engine's importer.
func (e *Engine) NewSession(filename string, exec bool, opts ...host.Option) (*code.Session, *host.Host) {
	hostOpts := append(append([]host.Option(nil), e.hostOpts...), host.WithLogger(e.logger))
	h := host.New(append(hostOpts, opts...)...)
	s := code.NewSession(h,
		code.WithFilename(filename),
		code.WithExec(exec),
		code.WithLogger(e.logger))
	if e.importer != nil {
		e.importer.Install(s, h)
	}
	return s, h
}

// Run expands the file at filename.
func (e *Engine) Run(filename string) (*Expansion, error) {
	useCache := e.cache != nil && !e.exec
	if useCache {
		if exp, ok := e.cache.Get(filename); ok {
			e.logger.Debug("cache hit", zap.String("file", filename))
			exp.cached = true
			return exp, nil
		}
	}

	src, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", filename, err)
	}
	exp, err := e.RunSource(filename, src)
	if err != nil {
		return nil, err
	}

	if useCache {
		if err := e.cache.Set(filename, exp); err != nil {
			e.logger.Warn("failed to cache expansion", zap.String("file", filename), zap.Error(err))
		}
	}
	return exp, nil
}

// RunSource expands src as if it were read from filename.
func (e *Engine) RunSource(filename string, src []byte) (*Expansion, error) {
	s, _ := e.NewSession(filename, e.exec)
	res, err := s.ExpandString(string(src))
	if err != nil {
		return nil, err
	}
	e.logger.Info("expanded module", zap.String("file", filename), zap.Bool("exec", e.exec))
	return &Expansion{Filename: filename, Doc: res.Doc, Text: res.Text}, nil
}

func (e *Engine) hasExtension(path string) bool {
	ext := filepath.Ext(path)
	for _, want := range e.extensions {
		if ext == want {
			return true
		}
	}
	return false
}
