package internal

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/gnoswap-labs/metapy/scanner"
)

var (
	ErrAlreadyWatching = errors.New("already watching")
	ErrNotWatching     = errors.New("not watching")
)

// StartWatching re-expands files in the watch directories whenever they are
// written. Writes to files on the import search path also drop the
// corresponding modules from the importer, so the next expansion sees them.
func (e *Engine) StartWatching() error {
	if !e.isWatching.CompareAndSwap(false, true) {
		return ErrAlreadyWatching
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		e.isWatching.Store(false)
		return fmt.Errorf("error creating watcher: %w", err)
	}

	for _, root := range e.watchDirs {
		if err := watchTree(watcher, root); err != nil {
			watcher.Close()
			e.isWatching.Store(false)
			return fmt.Errorf("error adding directory to watcher: %w", err)
		}
	}

	e.watcher = watcher
	go e.watchLoop(watcher)
	return nil
}

// watchTree adds root and the directories the scanner would enter below it.
func watchTree(w *fsnotify.Watcher, root string) error {
	dirs, err := scanner.New(root).Dirs()
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) StopWatching() error {
	if !e.isWatching.CompareAndSwap(true, false) {
		return ErrNotWatching
	}
	return e.watcher.Close()
}

func (e *Engine) IsWatching() bool { return e.isWatching.Load() }

func (e *Engine) watchLoop(watcher *fsnotify.Watcher) {
	var (
		mu      sync.Mutex
		pending = make(map[string]*time.Timer)
	)
	defer func() {
		mu.Lock()
		for _, t := range pending {
			t.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !e.isRelevant(event) {
				continue
			}
			// several writes in quick succession count as one change
			mu.Lock()
			if t, ok := pending[event.Name]; ok {
				t.Reset(e.debounce)
			} else {
				name := event.Name
				pending[name] = time.AfterFunc(e.debounce, func() {
					mu.Lock()
					delete(pending, name)
					mu.Unlock()
					if e.isWatching.Load() {
						e.handleFileEvent(name)
					}
				})
			}
			mu.Unlock()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			e.logger.Error("watcher error", zap.Error(err))
		}
	}
}

func (e *Engine) isRelevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	return e.hasExtension(event.Name)
}

func (e *Engine) handleFileEvent(filename string) {
	if e.importer != nil {
		e.importer.ForgetFile(filename)
		if e.cache != nil {
			e.cache.SetDependencies(e.libraryFiles())
		}
	}
	exp, err := e.Run(filename)
	e.report(filename, exp, err)
}

func (e *Engine) report(filename string, exp *Expansion, err error) {
	if e.onResult != nil {
		e.onResult(filename, exp, err)
		return
	}
	if err != nil {
		e.logger.Error("expansion failed", zap.String("file", filename), zap.Error(err))
		return
	}
	e.logger.Debug("re-expanded on change",
		zap.String("file", filename),
		zap.Int("bytes", len(exp.Text)),
		zap.Bool("cached", exp.cached))
}
