package internal

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnoswap-labs/metapy/importer"
	"github.com/gnoswap-labs/metapy/internal/diag"
	"github.com/gnoswap-labs/metapy/internal/host"
)

func TestEngineRun(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "escaped loop",
			input:    "$for i in range(2):\n    print($i)\n",
			expected: "print(0)\nprint(1)\n",
		},
		{
			name:     "import-time binding",
			input:    "$: n = 3\nx = $n\n",
			expected: "x = 3\n",
		},
		{
			name:     "plain source",
			input:    "y = 2\n",
			expected: "y = 2\n",
		},
	}

	engine, err := NewEngine()
	require.NoError(t, err)

	for i, tt := range tests {
		filename := filepath.Join(tmpDir, string(rune('a'+i))+".mpy")
		writeTestFile(t, filename, tt.input)
		t.Run(tt.name, func(t *testing.T) {
			exp, err := engine.Run(filename)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, exp.Text)
			assert.Equal(t, filename, exp.Filename)
			assert.False(t, exp.FromCache())
		})
	}
}

func TestEngineRunErrors(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	engine, err := NewEngine()
	require.NoError(t, err)

	_, err = engine.Run(filepath.Join(tmpDir, "missing.mpy"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	broken := filepath.Join(tmpDir, "broken.mpy")
	writeTestFile(t, broken, "x = $undefined_name\n")
	_, err = engine.Run(broken)
	require.Error(t, err)
	var evalErr *diag.EvalError
	assert.True(t, errors.As(err, &evalErr))
}

func TestEngineExec(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	var out bytes.Buffer
	engine, err := NewEngine(
		WithExec(true),
		WithHostOptions(host.WithStdout(&out)))
	require.NoError(t, err)

	filename := filepath.Join(tmpDir, "main.mpy")
	writeTestFile(t, filename, "$for i in range(2):\n    print(\"n\", $i)\n")

	_, err = engine.Run(filename)
	require.NoError(t, err)
	assert.Equal(t, "n 0\nn 1\n", out.String())
}

func TestEngineUsesCache(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	cache, err := NewCache(filepath.Join(tmpDir, "cache"))
	require.NoError(t, err)
	engine, err := NewEngine(WithCache(cache))
	require.NoError(t, err)

	filename := filepath.Join(tmpDir, "main.mpy")
	writeTestFile(t, filename, "$: n = 3\nx = $n\n")

	first, err := engine.Run(filename)
	require.NoError(t, err)
	assert.False(t, first.FromCache())

	second, err := engine.Run(filename)
	require.NoError(t, err)
	assert.True(t, second.FromCache())
	assert.Equal(t, first.Text, second.Text)

	writeTestFile(t, filename, "$: n = 4\nx = $n\n")
	third, err := engine.Run(filename)
	require.NoError(t, err)
	assert.False(t, third.FromCache())
	assert.Equal(t, "x = 4\n", third.Text)
}

func TestEngineExecBypassesCache(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	cache, err := NewCache(filepath.Join(tmpDir, "cache"))
	require.NoError(t, err)
	engine, err := NewEngine(WithCache(cache), WithExec(true), WithHostOptions(host.WithStdout(&bytes.Buffer{})))
	require.NoError(t, err)

	filename := filepath.Join(tmpDir, "main.mpy")
	writeTestFile(t, filename, "x = 1\n")

	for i := 0; i < 2; i++ {
		exp, err := engine.Run(filename)
		require.NoError(t, err)
		assert.False(t, exp.FromCache())
	}
	assert.Equal(t, 0, cache.Len())
}

func TestEngineImportInvalidatesCache(t *testing.T) {
	t.Parallel()
	tmpDir := t.TempDir()
	libDir := filepath.Join(tmpDir, "lib")
	lib := filepath.Join(libDir, "macros.mpy")
	writeTestFile(t, lib, "$: answer = 42\n")

	cache, err := NewCache(filepath.Join(tmpDir, "cache"))
	require.NoError(t, err)
	imp := importer.New([]string{libDir})
	engine, err := NewEngine(WithImporter(imp), WithCache(cache))
	require.NoError(t, err)

	filename := filepath.Join(tmpDir, "main.mpy")
	writeTestFile(t, filename, "$import macros\nx = $<macros.answer>\n")

	exp, err := engine.Run(filename)
	require.NoError(t, err)
	assert.Equal(t, "x = 42\n", exp.Text)

	exp, err = engine.Run(filename)
	require.NoError(t, err)
	assert.True(t, exp.FromCache())

	writeTestFile(t, lib, "$: answer = 7\n")
	imp.ForgetFile(lib)

	exp, err = engine.Run(filename)
	require.NoError(t, err)
	assert.False(t, exp.FromCache())
	assert.Equal(t, "x = 7\n", exp.Text)
}

func TestEngineRunSource(t *testing.T) {
	t.Parallel()
	engine, err := NewEngine()
	require.NoError(t, err)

	exp, err := engine.RunSource("inline.mpy", []byte("\"\"\"Doc.\"\"\"\n$: v = 'a'\nname = $<repr(v)>\n"))
	require.NoError(t, err)
	assert.Equal(t, `"""Doc."""`, exp.Doc)
	assert.Equal(t, "\"\"\"Doc.\"\"\"\nname = \"a\"\n", exp.Text)
}

func TestEngineExtensions(t *testing.T) {
	t.Parallel()
	engine, err := NewEngine(WithExtensions(".mpy", ".py"))
	require.NoError(t, err)

	assert.True(t, engine.hasExtension("a.mpy"))
	assert.True(t, engine.hasExtension("dir/b.py"))
	assert.False(t, engine.hasExtension("c.star"))
}
