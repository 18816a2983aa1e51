// Package metapy expands MetaPython-style source: Python-like code carrying
// `$` escapes that run at expansion time, quoted code blocks and macros.
//
// Expansion runs on a Starlark interpreter. The functions here cover the
// common cases; the cmd package offers the same through a CLI.
package metapy

import (
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/gnoswap-labs/metapy/importer"
	"github.com/gnoswap-labs/metapy/internal"
	"github.com/gnoswap-labs/metapy/internal/host"
)

// Expansion is the expanded text of one source, with its doc string.
type Expansion = internal.Expansion

type config struct {
	searchPaths []string
	stdout      io.Writer
	logger      *zap.Logger
	maxSteps    uint64
}

type Option func(*config)

// WithSearchPaths sets the directories `$import` looks for modules in.
func WithSearchPaths(paths ...string) Option {
	return func(c *config) { c.searchPaths = append(c.searchPaths, paths...) }
}

// WithStdout receives the output of `print` while expanding or running.
func WithStdout(w io.Writer) Option { return func(c *config) { c.stdout = w } }

func WithLogger(l *zap.Logger) Option { return func(c *config) { c.logger = l } }

// WithMaxSteps aborts any single evaluation after n interpreter steps.
func WithMaxSteps(n uint64) Option { return func(c *config) { c.maxSteps = n } }

func newEngine(exec bool, opts []Option) (*internal.Engine, error) {
	c := config{stdout: os.Stdout, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&c)
	}
	hostOpts := []host.Option{host.WithStdout(c.stdout)}
	if c.maxSteps > 0 {
		hostOpts = append(hostOpts, host.WithMaxSteps(c.maxSteps))
	}
	imp := importer.New(c.searchPaths,
		importer.WithHostOptions(hostOpts...),
		importer.WithLogger(c.logger))
	return internal.NewEngine(
		internal.WithImporter(imp),
		internal.WithHostOptions(hostOpts...),
		internal.WithLogger(c.logger),
		internal.WithExec(exec))
}

// ExpandString expands src. The name is used in diagnostics.
func ExpandString(name, src string, opts ...Option) (*Expansion, error) {
	engine, err := newEngine(false, opts)
	if err != nil {
		return nil, err
	}
	return engine.RunSource(name, []byte(src))
}

// ExpandFile expands the file at path.
func ExpandFile(path string, opts ...Option) (*Expansion, error) {
	engine, err := newEngine(false, opts)
	if err != nil {
		return nil, err
	}
	return engine.Run(path)
}

// Run expands the file at path and then executes the result.
func Run(path string, opts ...Option) (*Expansion, error) {
	engine, err := newEngine(true, opts)
	if err != nil {
		return nil, err
	}
	return engine.Run(path)
}
