// Package batch expands many files at once, as configured by a
// `.metapy.yaml` file.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/gnoswap-labs/metapy/internal"
	"github.com/gnoswap-labs/metapy/scanner"
)

// Expander is the part of the engine batch processing needs.
type Expander interface {
	Run(filename string) (*internal.Expansion, error)
	Extensions() []string
}

var _ Expander = (*internal.Engine)(nil)

// Result is the outcome for one file. Exactly one of Expansion and Err is
// set.
type Result struct {
	Filename  string
	Expansion *internal.Expansion
	Err       error
}

type options struct {
	progress io.Writer
	workers  int
}

type Option func(*options)

// WithProgress draws a progress bar on w while a directory is processed.
func WithProgress(w io.Writer) Option { return func(o *options) { o.progress = w } }

// WithWorkers bounds the number of files expanded at once.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

func ProcessFile(engine Expander, filePath string) (*internal.Expansion, error) {
	return engine.Run(filePath)
}

// ProcessFiles processes every path in turn. Results are sorted by file name;
// the returned error joins the errors of all failed files.
func ProcessFiles(
	ctx context.Context,
	logger *zap.Logger,
	engine Expander,
	paths []string,
	processor func(Expander, string) (*internal.Expansion, error),
	opts ...Option,
) ([]Result, error) {
	var (
		all  []Result
		errs []error
	)
	for _, path := range paths {
		results, err := ProcessPath(ctx, logger, engine, path, processor, opts...)
		all = append(all, results...)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				sortResults(all)
				return all, err
			}
			errs = append(errs, err)
		}
	}
	sortResults(all)
	return all, errors.Join(errs...)
}

// ProcessPath processes one file, or every matching file beneath a
// directory using a pool of workers. A file named directly is processed
// whatever its extension.
func ProcessPath(
	ctx context.Context,
	logger *zap.Logger,
	engine Expander,
	path string,
	processor func(Expander, string) (*internal.Expansion, error),
	opts ...Option,
) ([]Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{workers: runtime.NumCPU()}
	for _, opt := range opts {
		opt(&o)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error accessing %s: %w", path, err)
	}

	if !info.IsDir() {
		exp, err := processor(engine, path)
		if err != nil {
			logger.Error("Error processing file", zap.String("file", path), zap.Error(err))
			return []Result{{Filename: path, Err: err}}, err
		}
		return []Result{{Filename: path, Expansion: exp}}, nil
	}

	found, err := scanner.New(path, engine.Extensions()...).Scan()
	if err != nil {
		return nil, fmt.Errorf("error scanning %s: %w", path, err)
	}

	var bar *progressbar.ProgressBar
	if o.progress != nil {
		bar = progressbar.NewOptions(len(found),
			progressbar.OptionSetWriter(o.progress),
			progressbar.OptionSetDescription(path),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}))
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make([]Result, 0, len(found))
		errs    []error
		sem     = make(chan struct{}, o.workers)
	)

	var ctxErr error
dispatch:
	for _, file := range found {
		if err := ctx.Err(); err != nil {
			ctxErr = err
			break
		}
		select {
		case <-ctx.Done():
			ctxErr = ctx.Err()
			break dispatch
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(fp string) {
			defer wg.Done()
			defer func() { <-sem }()

			exp, err := processor(engine, fp)
			mu.Lock()
			if err != nil {
				logger.Error("Error processing file", zap.String("file", fp), zap.Error(err))
				results = append(results, Result{Filename: fp, Err: err})
				errs = append(errs, err)
			} else {
				results = append(results, Result{Filename: fp, Expansion: exp})
			}
			mu.Unlock()
			if bar != nil {
				_ = bar.Add(1)
			}
		}(file.Path)
	}
	wg.Wait()

	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(o.progress)
	}

	sortResults(results)
	if ctxErr != nil {
		return results, ctxErr
	}
	return results, errors.Join(errs...)
}

func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Filename < results[j].Filename })
}

// OutputPath is where the expansion of filename is written inside dir:
// the base name with its extension replaced by `.star`.
func OutputPath(dir, filename string) string {
	base := filepath.Base(filename)
	return filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+".star")
}

// WriteOutputs writes every successful expansion into dir and returns the
// paths written.
func WriteOutputs(dir string, results []Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating output directory: %w", err)
	}
	var written []string
	for _, r := range results {
		if r.Err != nil || r.Expansion == nil {
			continue
		}
		out := OutputPath(dir, r.Filename)
		if err := os.WriteFile(out, []byte(r.Expansion.Text), 0o644); err != nil {
			return written, fmt.Errorf("error writing %s: %w", out, err)
		}
		written = append(written, out)
	}
	return written, nil
}
