package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gnoswap-labs/metapy/batch"
	"github.com/gnoswap-labs/metapy/internal"
	"github.com/gnoswap-labs/metapy/internal/code"
	"github.com/gnoswap-labs/metapy/internal/host"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, ".metapy.yaml")

	out, _, err := execute(t, "init", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, cfg)

	config, err := batch.LoadConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, batch.DefaultConfig(), config)
}

func TestExpandCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "missing.yaml")
	lib := filepath.Join(dir, "lib")
	writeFile(t, filepath.Join(lib, "consts.mpy"), "$: answer = 42\n")
	src := filepath.Join(dir, "src", "main.mpy")
	writeFile(t, src, "$import consts\nx = $<consts.answer>\n")

	t.Run("text", func(t *testing.T) {
		out, _, err := execute(t, "expand", "--config", cfg, "--path", lib, src)
		require.NoError(t, err)
		assert.Equal(t, "x = 42\n", out)
	})

	t.Run("json", func(t *testing.T) {
		out, _, err := execute(t, "expand", "--config", cfg, "--path", lib, "--json", src)
		require.NoError(t, err)

		var got map[string]internal.Expansion
		require.NoError(t, json.Unmarshal([]byte(out), &got))
		assert.Equal(t, "x = 42\n", got[src].Text)
	})

	t.Run("output directory", func(t *testing.T) {
		outDir := filepath.Join(dir, "build")
		out, _, err := execute(t, "expand", "--config", cfg, "--path", lib, "-o", outDir, filepath.Join(dir, "src"))
		require.NoError(t, err)
		assert.Contains(t, out, filepath.Join(outDir, "main.star"))

		data, err := os.ReadFile(filepath.Join(outDir, "main.star"))
		require.NoError(t, err)
		assert.Equal(t, "x = 42\n", string(data))
	})

	t.Run("failure", func(t *testing.T) {
		_, errOut, err := execute(t, "expand", "--config", cfg, src)
		assert.True(t, errors.Is(err, errFailed))
		assert.Contains(t, errOut, "error")
	})

	t.Run("no arguments", func(t *testing.T) {
		_, _, err := execute(t, "expand", "--config", cfg)
		assert.Error(t, err)
	})
}

func TestExpandCommandRejectsConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, ".metapy.yaml")
	writeFile(t, cfg, "requires: \">= 99.0.0\"\n")
	src := filepath.Join(dir, "main.mpy")
	writeFile(t, src, "x = 1\n")

	_, _, err := execute(t, "expand", "--config", cfg, src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires")
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "main.mpy")
	writeFile(t, src, "$for i in range(2):\n    print(\"line\", $i)\n")

	out, _, err := execute(t, "run", "--config", filepath.Join(dir, "none.yaml"), src)
	require.NoError(t, err)
	assert.Equal(t, "line 0\nline 1\n", out)
}

type mockLineReader struct {
	mock.Mock
	lines []string
}

func (m *mockLineReader) Prompt(p string) (string, error) {
	m.Called(p)
	if len(m.lines) == 0 {
		return "", io.EOF
	}
	line := m.lines[0]
	m.lines = m.lines[1:]
	return line, nil
}

func (m *mockLineReader) AppendHistory(item string) { m.Called(item) }

func newREPLSession(out io.Writer) (*code.Session, *host.Host) {
	h := host.New(host.WithStdout(out))
	return code.NewSession(h, code.WithFilename("<repl>")), h
}

func TestREPL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		lines    []string
		expected string
	}{
		{
			name:     "bindings persist",
			lines:    []string{"$: n = 3", "x = $n", "print(x * 2)"},
			expected: "x = 3\nprint(x * 2)\n6\n",
		},
		{
			name:     "suite with continuation",
			lines:    []string{"$for i in range(2):", "    print($i)", ""},
			expected: "print(0)\nprint(1)\n0\n1\n",
		},
		{
			name:     "quit stops reading",
			lines:    []string{":quit", "print('never')"},
			expected: "",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var out bytes.Buffer
			in := &mockLineReader{lines: tt.lines}
			in.On("Prompt", mock.Anything)
			in.On("AppendHistory", mock.Anything)

			s, h := newREPLSession(&out)
			require.NoError(t, runREPL(in, &out, s, h))
			assert.Equal(t, tt.expected, out.String())
		})
	}
}

func TestREPLReportsErrors(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	in := &mockLineReader{lines: []string{"y = $undefined_thing", "print('still here')"}}
	in.On("Prompt", mock.Anything)
	in.On("AppendHistory", mock.Anything)

	s, h := newREPLSession(&out)
	require.NoError(t, runREPL(in, &out, s, h))
	assert.Contains(t, out.String(), "error")
	assert.Contains(t, out.String(), "still here\n")
	in.AssertNotCalled(t, "Prompt", continuePrompt)
}
