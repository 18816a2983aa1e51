// Package scanner lists the files and directories of a source tree.
package scanner

import (
	"io/fs"
	"path/filepath"
	"strings"
)

type FileInfo struct {
	Path string
	Size int64
}

// Scanner walks a source tree in lexical order. Hidden directories and
// directories on the skip list are never entered.
type Scanner struct {
	root string
	exts map[string]struct{}
	skip map[string]struct{}
}

// New returns a scanner for rootDir matching files whose extension is one of
// extensions, or every file when none are given. `__pycache__` directories
// are skipped.
func New(rootDir string, extensions ...string) *Scanner {
	s := &Scanner{
		root: rootDir,
		exts: make(map[string]struct{}, len(extensions)),
		skip: map[string]struct{}{"__pycache__": {}},
	}
	for _, ext := range extensions {
		s.exts[ext] = struct{}{}
	}
	return s
}

// SkipDirs adds directory names that the scanner does not enter.
func (s *Scanner) SkipDirs(names ...string) *Scanner {
	for _, n := range names {
		s.skip[n] = struct{}{}
	}
	return s
}

// Scan returns the matching files.
func (s *Scanner) Scan() ([]FileInfo, error) {
	var files []FileInfo
	err := s.walk(func(path string, d fs.DirEntry) error {
		if d.IsDir() || !s.matches(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, FileInfo{Path: path, Size: info.Size()})
		return nil
	})
	return files, err
}

// Dirs returns the root and every directory beneath it that Scan enters.
func (s *Scanner) Dirs() ([]string, error) {
	var dirs []string
	err := s.walk(func(path string, d fs.DirEntry) error {
		if d.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs, err
}

func (s *Scanner) walk(visit func(path string, d fs.DirEntry) error) error {
	return filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != s.root && s.skipped(d.Name()) {
			return filepath.SkipDir
		}
		return visit(path, d)
	})
}

func (s *Scanner) skipped(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	_, ok := s.skip[name]
	return ok
}

func (s *Scanner) matches(path string) bool {
	if len(s.exts) == 0 {
		return true
	}
	_, ok := s.exts[filepath.Ext(path)]
	return ok
}
