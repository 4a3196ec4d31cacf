// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package evidence

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/gobwas/glob"
)

// DefaultIgnoredDirs are directory names never descended into.
var DefaultIgnoredDirs = []string{
	".git",
	".hg",
	".svn",
	".idea",
	".vscode",
	".venv",
	"venv",
	"__pycache__",
	".mypy_cache",
	".pytest_cache",
	".ruff_cache",
	".tox",
	"node_modules",
	"bower_components",
	"target",
	"dist",
	"build",
	"vendor",
	"bin",
	"obj",
	".next",
	".gradle",
}

// DefaultIgnoredExts are file extensions skipped without a read.
var DefaultIgnoredExts = []string{
	".pyc",
	".pyo",
	".log",
	".class",
	".o",
	".so",
	".dll",
	".exe",
}

type ignorer struct {
	dirs    map[string]struct{}
	exts    map[string]struct{}
	globs   []namedGlob
	matcher gitignore.Matcher
}

type namedGlob struct {
	pattern string
	glob    glob.Glob
}

// newIgnorer compiles the built-in rules, user globs and, when enabled,
// the root .gitignore. A .gitignore that cannot be read is reported through
// warn and otherwise ignored.
func newIgnorer(root string, patterns []string, useGitignore bool, warn func(string)) (*ignorer, error) {
	ig := &ignorer{
		dirs: map[string]struct{}{},
		exts: map[string]struct{}{},
	}
	for _, d := range DefaultIgnoredDirs {
		ig.dirs[d] = struct{}{}
	}
	for _, e := range DefaultIgnoredExts {
		ig.exts[e] = struct{}{}
	}

	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("compiling ignore pattern %q: %w", pattern, err)
		}
		ig.globs = append(ig.globs, namedGlob{pattern: pattern, glob: g})
	}

	if useGitignore {
		data, err := os.ReadFile(filepath.Join(root, ".gitignore"))
		switch {
		case err == nil:
			ig.matcher = gitignore.NewMatcher(parseGitignore(data))
		case !os.IsNotExist(err):
			warn(fmt.Sprintf("reading .gitignore: %v", err))
		}
	}

	return ig, nil
}

func parseGitignore(data []byte) []gitignore.Pattern {
	var patterns []gitignore.Pattern
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " \t\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	return patterns
}

// match returns why rel is ignored, or the empty string.
func (ig *ignorer) match(rel string, isDir bool) string {
	base := path.Base(rel)
	if isDir {
		if _, ok := ig.dirs[base]; ok {
			return "ignored directory"
		}
	} else if _, ok := ig.exts[path.Ext(base)]; ok {
		return "ignored extension"
	}

	for _, g := range ig.globs {
		if g.glob.Match(rel) || g.glob.Match(base) {
			return fmt.Sprintf("matches ignore pattern %q", g.pattern)
		}
	}

	if ig.matcher != nil && ig.matcher.Match(strings.Split(rel, "/"), isDir) {
		return "matches .gitignore"
	}

	return ""
}
