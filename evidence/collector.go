// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

// Package evidence walks a repository and records what it finds as typed
// signals. It never interprets what it reads and never runs anything found
// in the repository.
package evidence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"stackcraft.sh/diag"
	"stackcraft.sh/log"
)

const (
	DefaultMaxFileSize = 1 << 20
	DefaultMaxDepth    = 6
	DefaultWorkers     = 4
	DefaultFileTimeout = 2 * time.Second
	DefaultDeadline    = 30 * time.Second

	// binarySniffLen bytes are inspected for a NUL byte.
	binarySniffLen = 8000
)

// Skip is a path the collector deliberately did not read.
type Skip struct {
	Path   string `json:"path" yaml:"path"`
	Reason string `json:"reason" yaml:"reason"`
}

// Result is the outcome of one scan.
type Result struct {
	Root    string `json:"root" yaml:"root"`
	Signals Set    `json:"-" yaml:"-"`
	Skipped []Skip `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	// Truncated is set when the overall deadline expired.
	Truncated bool `json:"truncated" yaml:"truncated"`
}

// Diagnostics converts unreadable and truncation signals into ScanWarning
// diagnostics.
func (r *Result) Diagnostics() diag.List {
	var out diag.List
	for _, sig := range r.Signals.OfKind(KindUnreadable) {
		d := diag.Warn(diag.ScanWarning, "evidence", "%s", sig.Value.String())
		d.Path = sig.Path
		out = append(out, d)
	}
	for _, sig := range r.Signals.OfKind(KindTruncated) {
		out = append(out, diag.Warn(diag.ScanWarning, "evidence", "scan truncated: %s", sig.Value.String()))
	}
	return out
}

// Option configures a Collector.
type Option func(*Collector)

// WithMaxFileSize bounds the size of any file that is read.
func WithMaxFileSize(n int64) Option {
	return func(c *Collector) { c.maxFileSize = n }
}

// WithMaxDepth bounds the directory depth of the walk.
func WithMaxDepth(n int) Option {
	return func(c *Collector) { c.maxDepth = n }
}

// WithWorkers sets the size of the read worker pool.
func WithWorkers(n int) Option {
	return func(c *Collector) { c.workers = n }
}

// WithFileTimeout bounds the time spent reading a single file.
func WithFileTimeout(d time.Duration) Option {
	return func(c *Collector) { c.fileTimeout = d }
}

// WithDeadline bounds the whole scan.
func WithDeadline(d time.Duration) Option {
	return func(c *Collector) { c.deadline = d }
}

// WithIgnore adds glob patterns, matched against the slash-separated
// relative path and the base name.
func WithIgnore(patterns ...string) Option {
	return func(c *Collector) { c.ignore = append(c.ignore, patterns...) }
}

// WithGitignore toggles honoring the repository's root .gitignore.
func WithGitignore(enabled bool) Option {
	return func(c *Collector) { c.gitignore = enabled }
}

// Collector gathers signals from a repository tree.
type Collector struct {
	maxFileSize int64
	maxDepth    int
	workers     int
	fileTimeout time.Duration
	deadline    time.Duration
	ignore      []string
	gitignore   bool

	// open is swapped in tests.
	open func(name string) (io.ReadCloser, error)
}

// New returns a Collector with the default budget, adjusted by opts.
func New(opts ...Option) *Collector {
	c := &Collector{
		maxFileSize: DefaultMaxFileSize,
		maxDepth:    DefaultMaxDepth,
		workers:     DefaultWorkers,
		fileTimeout: DefaultFileTimeout,
		deadline:    DefaultDeadline,
		gitignore:   true,
		open: func(name string) (io.ReadCloser, error) {
			return os.Open(name)
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.workers < 1 {
		c.workers = 1
	}
	if c.maxDepth < 1 {
		c.maxDepth = 1
	}
	return c
}

type readTask struct {
	rel     string
	abs     string
	extract extractor
}

// scan is the mutable state of one Collect call.
type scan struct {
	mu        sync.Mutex
	signals   []Signal
	skipped   []Skip
	truncated bool
}

func (s *scan) emit(signals ...Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals = append(s.signals, signals...)
}

func (s *scan) skip(rel, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped = append(s.skipped, Skip{Path: rel, Reason: reason})
}

func (s *scan) truncate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.truncated = true
}

// Collect walks root and returns every signal it could gather. An error is
// returned only when root itself is unusable; everything below root is
// recorded as signals or skips instead.
func (c *Collector) Collect(ctx context.Context, root string) (*Result, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving repository root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("opening repository root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repository root %s is not a directory", abs)
	}

	ctx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	st := &scan{}
	ig, err := newIgnorer(abs, c.ignore, c.gitignore, func(msg string) {
		st.emit(unreadableSignal(".gitignore", msg))
	})
	if err != nil {
		return nil, err
	}

	tasks, err := c.walk(ctx, abs, ig, st)
	if err != nil {
		return nil, fmt.Errorf("reading repository root: %w", err)
	}
	c.read(ctx, tasks, st)

	if st.truncated {
		st.emit(Signal{
			Kind:  KindTruncated,
			Path:  ".",
			Value: String(fmt.Sprintf("deadline of %s exceeded, signal set is partial", c.deadline)),
		})
	}

	sort.Slice(st.skipped, func(i, j int) bool {
		if st.skipped[i].Path != st.skipped[j].Path {
			return st.skipped[i].Path < st.skipped[j].Path
		}
		return st.skipped[i].Reason < st.skipped[j].Reason
	})

	res := &Result{
		Root:      abs,
		Signals:   NewSet(st.signals...),
		Skipped:   st.skipped,
		Truncated: st.truncated,
	}

	log.G(ctx).WithFields(logrus.Fields{
		"root":      abs,
		"signals":   res.Signals.Len(),
		"skipped":   len(res.Skipped),
		"truncated": res.Truncated,
	}).Debug("collected evidence")

	return res, nil
}

// walk visits the tree sequentially in lexical order, emitting file
// signals and returning the files that have an extractor.
func (c *Collector) walk(ctx context.Context, root string, ig *ignorer, st *scan) ([]readTask, error) {
	var tasks []readTask

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			st.truncate()
			return filepath.SkipAll
		}

		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if err != nil {
			if rel == "." {
				return err
			}
			st.emit(unreadableSignal(rel, err.Error()))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if reason := ig.match(rel, true); reason != "" {
				st.skip(rel, reason)
				return filepath.SkipDir
			}
			if depth := strings.Count(rel, "/") + 1; depth > c.maxDepth {
				st.skip(rel, fmt.Sprintf("deeper than %d levels", c.maxDepth))
				return filepath.SkipDir
			}
			return nil
		}

		if reason := ig.match(rel, false); reason != "" {
			st.skip(rel, reason)
			return nil
		}

		target := p
		if d.Type()&fs.ModeSymlink != 0 {
			resolved, ok := c.resolveLink(root, rel, st)
			if !ok {
				return nil
			}
			target = resolved
		} else if !d.Type().IsRegular() {
			st.skip(rel, "not a regular file")
			return nil
		}

		st.emit(fileSignal(rel))

		fn := lookupExtractor(rel)
		if fn == nil {
			return nil
		}

		info, err := os.Stat(target)
		if err != nil {
			st.emit(unreadableSignal(rel, err.Error()))
			return nil
		}
		if info.Size() > c.maxFileSize {
			st.skip(rel, fmt.Sprintf("too large (%s > %s)",
				humanize.IBytes(uint64(info.Size())),
				humanize.IBytes(uint64(c.maxFileSize)),
			))
			return nil
		}

		tasks = append(tasks, readTask{rel: rel, abs: target, extract: fn})
		return nil
	})

	return tasks, err
}

// resolveLink resolves a symlinked file inside root. Links that escape the
// root are clamped to it by securejoin; links that do not resolve to a
// regular file are recorded as unreadable.
func (c *Collector) resolveLink(root, rel string, st *scan) (string, bool) {
	resolved, err := securejoin.SecureJoin(root, rel)
	if err != nil {
		st.emit(unreadableSignal(rel, fmt.Sprintf("resolving symlink: %v", err)))
		return "", false
	}
	info, err := os.Stat(resolved)
	if err != nil {
		st.emit(unreadableSignal(rel, fmt.Sprintf("broken symlink: %v", err)))
		return "", false
	}
	if info.IsDir() {
		st.skip(rel, "symlinked directory not followed")
		return "", false
	}
	if !info.Mode().IsRegular() {
		st.skip(rel, "symlink to a non-regular file")
		return "", false
	}
	return resolved, true
}

// read runs the extractors over a bounded worker pool.
func (c *Collector) read(ctx context.Context, tasks []readTask, st *scan) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for _, task := range tasks {
		if ctx.Err() != nil {
			st.truncate()
			break
		}

		g.Go(func() error {
			data, err := c.readFile(gctx, task.abs)
			if err != nil {
				st.emit(unreadableSignal(task.rel, err.Error()))
				return nil
			}

			sniff := data
			if len(sniff) > binarySniffLen {
				sniff = sniff[:binarySniffLen]
			}
			if bytes.IndexByte(sniff, 0) >= 0 {
				st.skip(task.rel, "binary file")
				return nil
			}

			signals, err := safeExtract(task.extract, task.rel, data)
			if err != nil {
				st.emit(unreadableSignal(task.rel, err.Error()))
			}
			st.emit(signals...)
			return nil
		})
	}

	_ = g.Wait()
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		st.truncate()
	}
}

// readFile reads at most maxFileSize bytes of name, giving up after the
// per-file timeout. A timed-out read is abandoned, not interrupted.
func (c *Collector) readFile(ctx context.Context, name string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.fileTimeout)
	defer cancel()

	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)

	go func() {
		f, err := c.open(name)
		if err != nil {
			ch <- result{err: err}
			return
		}
		defer f.Close()

		data, err := io.ReadAll(io.LimitReader(f, c.maxFileSize+1))
		if err == nil && int64(len(data)) > c.maxFileSize {
			err = fmt.Errorf("file grew beyond %s while reading", humanize.IBytes(uint64(c.maxFileSize)))
		}
		ch <- result{data: data, err: err}
	}()

	select {
	case r := <-ch:
		return r.data, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("read timed out after %s", c.fileTimeout)
	}
}

func safeExtract(fn extractor, rel string, data []byte) (signals []Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			signals = nil
			err = fmt.Errorf("extracting %s: %v", rel, r)
		}
	}()
	return fn(rel, data)
}
