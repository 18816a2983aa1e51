package internal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type watchResult struct {
	filename string
	exp      *Expansion
	err      error
}

func newWatchedEngine(t *testing.T, dir string) (*Engine, chan watchResult) {
	t.Helper()
	results := make(chan watchResult, 16)
	engine, err := NewEngine(
		WithWatchDirs(dir),
		WithResultHandler(func(filename string, exp *Expansion, err error) {
			results <- watchResult{filename, exp, err}
		}))
	require.NoError(t, err)
	engine.debounce = 20 * time.Millisecond

	require.NoError(t, engine.StartWatching())
	t.Cleanup(func() {
		if engine.IsWatching() {
			_ = engine.StopWatching()
		}
	})
	return engine, results
}

func waitResult(t *testing.T, results <-chan watchResult) watchResult {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the watcher")
		return watchResult{}
	}
}

func TestWatchReexpandsOnWrite(t *testing.T) {
	tmpDir := t.TempDir()
	_, results := newWatchedEngine(t, tmpDir)

	filename := filepath.Join(tmpDir, "main.mpy")
	writeTestFile(t, filename, "$: n = 5\nx = $n\n")

	r := waitResult(t, results)
	require.NoError(t, r.err)
	assert.Equal(t, filename, r.filename)
	assert.Equal(t, "x = 5\n", r.exp.Text)
}

func TestWatchIgnoresOtherExtensions(t *testing.T) {
	tmpDir := t.TempDir()
	_, results := newWatchedEngine(t, tmpDir)

	writeTestFile(t, filepath.Join(tmpDir, "notes.txt"), "hello")
	writeTestFile(t, filepath.Join(tmpDir, "main.mpy"), "x = 1\n")

	r := waitResult(t, results)
	assert.Equal(t, filepath.Join(tmpDir, "main.mpy"), r.filename)
}

func TestWatchReportsErrors(t *testing.T) {
	tmpDir := t.TempDir()
	_, results := newWatchedEngine(t, tmpDir)

	writeTestFile(t, filepath.Join(tmpDir, "broken.mpy"), "x = $missing\n")

	r := waitResult(t, results)
	assert.Error(t, r.err)
	assert.Nil(t, r.exp)
}

func TestWatchStartStop(t *testing.T) {
	tmpDir := t.TempDir()
	engine, _ := newWatchedEngine(t, tmpDir)

	assert.True(t, engine.IsWatching())
	assert.ErrorIs(t, engine.StartWatching(), ErrAlreadyWatching)

	require.NoError(t, engine.StopWatching())
	assert.False(t, engine.IsWatching())
	assert.ErrorIs(t, engine.StopWatching(), ErrNotWatching)
}

func TestWatchMissingDirectory(t *testing.T) {
	engine, err := NewEngine(WithWatchDirs(filepath.Join(t.TempDir(), "missing")))
	require.NoError(t, err)

	assert.Error(t, engine.StartWatching())
	assert.False(t, engine.IsWatching())
}
