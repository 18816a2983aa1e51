package internal

import (
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
)

const (
	cacheFileName = "expand_cache.gob"

	DefaultCacheMaxAge = 24 * time.Hour
)

type fileMetadata struct {
	Hash         string
	Size         int64
	LastModified time.Time
}

type CacheEntry struct {
	Metadata     fileMetadata
	Expansion    Expansion
	Dependencies string
	CreatedAt    time.Time
	LastAccessed time.Time
}

// Cache keeps expansions of source files on disk. An entry is served only
// while the file's content, the content of every dependency file and the
// entry's age all still match.
type Cache struct {
	CacheDir        string
	entries         map[string]CacheEntry
	mutex           sync.RWMutex
	maxAge          time.Duration
	dependencyFiles []string
}

func NewCache(cacheDir string) (*Cache, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	cache := &Cache{
		CacheDir: cacheDir,
		entries:  make(map[string]CacheEntry),
		maxAge:   DefaultCacheMaxAge,
	}

	if err := cache.load(); err != nil {
		return nil, fmt.Errorf("failed to load cache: %w", err)
	}

	return cache, nil
}

func (c *Cache) load() error {
	cacheFile := filepath.Join(c.CacheDir, cacheFileName)
	file, err := os.Open(cacheFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	defer file.Close()

	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&c.entries); err != nil {
		return fmt.Errorf("failed to decode cache file: %w", err)
	}

	return nil
}

func (c *Cache) save() error {
	cacheFile := filepath.Join(c.CacheDir, cacheFileName)
	file, err := os.Create(cacheFile)
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	defer file.Close()

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(c.entries); err != nil {
		return fmt.Errorf("failed to encode cache file: %w", err)
	}

	return nil
}

func (c *Cache) Set(filename string, exp *Expansion) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	metadata, err := getFileMetadata(filename)
	if err != nil {
		return fmt.Errorf("failed to get file metadata: %w", err)
	}
	deps, err := c.dependencyDigest()
	if err != nil {
		return err
	}

	now := time.Now()
	c.entries[filename] = CacheEntry{
		Metadata:     metadata,
		Expansion:    *exp,
		Dependencies: deps,
		CreatedAt:    now,
		LastAccessed: now,
	}

	return c.save()
}

func (c *Cache) Get(filename string) (*Expansion, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, exists := c.entries[filename]
	if !exists {
		return nil, false
	}

	if c.isEntryInvalid(filename, entry) {
		delete(c.entries, filename)
		return nil, false
	}

	entry.LastAccessed = time.Now()
	c.entries[filename] = entry

	exp := entry.Expansion
	return &exp, true
}

func (c *Cache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}

func (c *Cache) isEntryInvalid(filename string, entry CacheEntry) bool {
	if c.maxAge > 0 && time.Since(entry.CreatedAt) > c.maxAge {
		return true
	}

	current, err := getFileMetadata(filename)
	if err != nil || current.Hash != entry.Metadata.Hash || current.Size != entry.Metadata.Size {
		return true
	}

	deps, err := c.dependencyDigest()
	return err != nil || deps != entry.Dependencies
}

// SetDependencies names the files every entry depends on, such as the
// modules on the import search path.
func (c *Cache) SetDependencies(files []string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.dependencyFiles = append([]string(nil), files...)
	sort.Strings(c.dependencyFiles)
}

// dependencyDigest hashes the names and contents of the dependency files.
func (c *Cache) dependencyDigest() (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	for _, file := range c.dependencyFiles {
		hash, err := getFileHash(file)
		if err != nil {
			return "", fmt.Errorf("failed to get hash for %s: %w", file, err)
		}
		fmt.Fprintf(h, "%s\x00%s\x00", file, hash)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SetMaxAge bounds the age of served entries. A zero duration disables
// expiry.
func (c *Cache) SetMaxAge(duration time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.maxAge = duration
}

func (c *Cache) InvalidateAll() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries = make(map[string]CacheEntry)
	_ = c.save() // best effort; the in-memory state is already empty
}

func getFileMetadata(filename string) (fileMetadata, error) {
	file, err := os.Open(filename)
	if err != nil {
		return fileMetadata{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	hash, err := blake2b.New256(nil)
	if err != nil {
		return fileMetadata{}, err
	}
	if _, err := io.Copy(hash, file); err != nil {
		return fileMetadata{}, fmt.Errorf("failed to calculate hash: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		return fileMetadata{}, fmt.Errorf("failed to get file info: %w", err)
	}

	return fileMetadata{
		Hash:         hex.EncodeToString(hash.Sum(nil)),
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}, nil
}

func getFileHash(filename string) (string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
