package importer

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"github.com/gnoswap-labs/metapy/internal/code"
	"github.com/gnoswap-labs/metapy/internal/host"
)

const macrosSrc = `"""Macros for tests."""
$:
    answer = 42
    def twice(x):
        return x * 2
greeting = "hi"
`

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func attr(t *testing.T, v any, name string) starlark.Value {
	t.Helper()
	m, ok := v.(starlark.HasAttrs)
	require.True(t, ok, "%T has no attributes", v)
	a, err := m.Attr(name)
	require.NoError(t, err)
	require.NotNil(t, a, "missing attribute %s", name)
	return a
}

func TestLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"macros.mpy": macrosSrc})
	imp := New([]string{dir}, WithGenSym(code.NewGenSym("_t")))

	m, err := imp.Load("macros")
	require.NoError(t, err)

	assert.Equal(t, starlark.MakeInt(42), attr(t, m, "answer"))
	assert.Equal(t, starlark.String("hi"), attr(t, m, "greeting"))
	assert.Equal(t, starlark.String("Macros for tests."), attr(t, m, "__doc__"))
	assert.Equal(t, starlark.String("\"\"\"Macros for tests.\"\"\"\ngreeting = \"hi\"\n"), attr(t, m, "__expanded__"))
	assert.Equal(t, "function", attr(t, m, "twice").Type())

	_, callable := attr(t, m, "twice").(starlark.Callable)
	assert.True(t, callable)
	assert.Equal(t, []string{"macros"}, imp.Modules())
}

func TestLoadIsCached(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"macros.mpy": macrosSrc})
	imp := New([]string{dir})

	first, err := imp.Load("macros")
	require.NoError(t, err)
	second, err := imp.Load("macros")
	require.NoError(t, err)
	assert.Same(t, first, second)

	imp.Forget("macros")
	third, err := imp.Load("macros")
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}

func TestFindUsesLastComponent(t *testing.T) {
	t.Parallel()
	first := t.TempDir()
	second := t.TempDir()
	writeFiles(t, second, map[string]string{"macros.mpy": "x = 1\n"})
	imp := New([]string{first, second})

	path, err := imp.Find("pkg.macros")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(second, "macros.mpy"), path)

	_, err = imp.Find("nothing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFailedImportIsNotRegistered(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"broken.mpy": "x = $undefined_name\n"})
	imp := New([]string{dir})

	_, err := imp.Load("broken")
	require.Error(t, err)
	_, ok := imp.Module("broken")
	assert.False(t, ok)

	writeFiles(t, dir, map[string]string{"broken.mpy": "x = 1\n"})
	m, err := imp.Load("broken")
	require.NoError(t, err)
	assert.Equal(t, starlark.MakeInt(1), attr(t, m, "x"))
}

func TestImportCycle(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.mpy": "$import b\n",
		"b.mpy": "$import a\n",
	})
	imp := New([]string{dir})

	_, err := imp.Load("a")
	require.Error(t, err)
	var cycle *CycleError
	require.True(t, errors.As(err, &cycle))
	assert.Equal(t, []string{"a", "b", "a"}, cycle.Chain)
	assert.Empty(t, imp.Modules())
}

func TestConcurrentLoadExpandsOnce(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"macros.mpy": macrosSrc})
	core, logs := observer.New(zapcore.InfoLevel)
	imp := New([]string{dir}, WithLogger(zap.New(core)))

	results := make([]any, 16)
	var g errgroup.Group
	for i := range results {
		i := i
		g.Go(func() error {
			m, err := imp.Load("macros")
			results[i] = m
			return err
		})
	}
	require.NoError(t, g.Wait())

	for _, m := range results[1:] {
		assert.Same(t, results[0], m)
	}
	assert.Equal(t, 1, logs.FilterMessage("imported module").Len())
}

func TestInstall(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"macros.mpy": macrosSrc})
	imp := New([]string{dir})

	h := host.New()
	s := code.NewSession(h)
	imp.Install(s, h)

	res, err := s.ExpandString("$import macros\nx = $<macros.twice(21)>\n")
	require.NoError(t, err)
	assert.Equal(t, "x = 42\n", res.Text)

	require.NoError(t, h.Exec("load('macros', 'answer')\ny = answer + 1\n", s.Scope()))
	y, ok := s.Scope().Get("y")
	require.True(t, ok)
	assert.Equal(t, starlark.MakeInt(43), y)
}

func TestNestedImport(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"base.mpy":    "$: unit = 10\n",
		"derived.mpy": "$from base import unit\n$: scaled = unit * 3\n",
	})
	imp := New([]string{dir})

	m, err := imp.Load("derived")
	require.NoError(t, err)
	assert.Equal(t, starlark.MakeInt(30), attr(t, m, "scaled"))
	assert.Equal(t, []string{"base", "derived"}, imp.Modules())
}
