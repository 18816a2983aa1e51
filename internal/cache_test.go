package internal

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, filename string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(filename), 0o755))
	require.NoError(t, os.WriteFile(filename, []byte(content), 0o644))
}

func TestCache(t *testing.T) {
	tmpDir := t.TempDir()

	cache, err := NewCache(filepath.Join(tmpDir, "cache"))
	require.NoError(t, err)

	t.Run("SaveAndLoad", func(t *testing.T) {
		filename := filepath.Join(tmpDir, "main.mpy")
		writeTestFile(t, filename, "x = $<1 + 2>\n")
		exp := &Expansion{Filename: filename, Text: "x = 3\n"}

		require.NoError(t, cache.Set(filename, exp))

		loaded, found := cache.Get(filename)
		require.True(t, found)
		assert.Equal(t, exp.Text, loaded.Text)
		assert.Equal(t, filename, loaded.Filename)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, found := cache.Get("nonexistent.mpy")
		assert.False(t, found)
	})

	t.Run("FileModified", func(t *testing.T) {
		filename := filepath.Join(tmpDir, "modified.mpy")
		writeTestFile(t, filename, "x = 1\n")
		require.NoError(t, cache.Set(filename, &Expansion{Text: "x = 1\n"}))

		writeTestFile(t, filename, "x = 2\n")

		_, found := cache.Get(filename)
		assert.False(t, found)
	})

	t.Run("FileRemoved", func(t *testing.T) {
		filename := filepath.Join(tmpDir, "removed.mpy")
		writeTestFile(t, filename, "x = 1\n")
		require.NoError(t, cache.Set(filename, &Expansion{Text: "x = 1\n"}))

		require.NoError(t, os.Remove(filename))

		_, found := cache.Get(filename)
		assert.False(t, found)
	})
}

func TestCacheDependencies(t *testing.T) {
	tmpDir := t.TempDir()
	cache, err := NewCache(filepath.Join(tmpDir, "cache"))
	require.NoError(t, err)

	lib := filepath.Join(tmpDir, "lib", "macros.mpy")
	writeTestFile(t, lib, "$: answer = 42\n")
	main := filepath.Join(tmpDir, "main.mpy")
	writeTestFile(t, main, "x = 1\n")

	cache.SetDependencies([]string{lib})
	require.NoError(t, cache.Set(main, &Expansion{Text: "x = 1\n"}))

	_, found := cache.Get(main)
	require.True(t, found)

	writeTestFile(t, lib, "$: answer = 7\n")
	_, found = cache.Get(main)
	assert.False(t, found, "a changed dependency invalidates the entry")
}

func TestCacheExpiry(t *testing.T) {
	tmpDir := t.TempDir()
	cache, err := NewCache(filepath.Join(tmpDir, "cache"))
	require.NoError(t, err)

	filename := filepath.Join(tmpDir, "old.mpy")
	writeTestFile(t, filename, "x = 1\n")
	require.NoError(t, cache.Set(filename, &Expansion{Text: "x = 1\n"}))

	cache.SetMaxAge(time.Nanosecond)
	time.Sleep(time.Millisecond)
	_, found := cache.Get(filename)
	assert.False(t, found)
	assert.Equal(t, 0, cache.Len())

	cache.SetMaxAge(0)
	require.NoError(t, cache.Set(filename, &Expansion{Text: "x = 1\n"}))
	_, found = cache.Get(filename)
	assert.True(t, found, "a zero max age never expires entries")
}

func TestCachePersists(t *testing.T) {
	tmpDir := t.TempDir()
	cacheDir := filepath.Join(tmpDir, "cache")
	filename := filepath.Join(tmpDir, "main.mpy")
	writeTestFile(t, filename, "x = 1\n")

	first, err := NewCache(cacheDir)
	require.NoError(t, err)
	require.NoError(t, first.Set(filename, &Expansion{Doc: `"""doc"""`, Text: "x = 1\n"}))

	second, err := NewCache(cacheDir)
	require.NoError(t, err)
	exp, found := second.Get(filename)
	require.True(t, found)
	assert.Equal(t, `"""doc"""`, exp.Doc)
	assert.Equal(t, "x = 1\n", exp.Text)

	second.InvalidateAll()
	third, err := NewCache(cacheDir)
	require.NoError(t, err)
	assert.Equal(t, 0, third.Len())
}

func TestCacheConcurrency(t *testing.T) {
	tmpDir := t.TempDir()
	cache, err := NewCache(filepath.Join(tmpDir, "cache"))
	require.NoError(t, err)

	testFile := filepath.Join(tmpDir, "main.mpy")
	writeTestFile(t, testFile, "x = 1\n")
	exp := &Expansion{Filename: testFile, Text: "x = 1\n"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, cache.Set(testFile, exp))
		}()
		go func() {
			defer wg.Done()
			_, _ = cache.Get(testFile)
		}()
	}
	wg.Wait()

	got, found := cache.Get(testFile)
	require.True(t, found)
	assert.Equal(t, exp.Text, got.Text)
}
