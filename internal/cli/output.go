// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize/english"

	"stackcraft.sh/advisor"
	"stackcraft.sh/config"
	"stackcraft.sh/diag"
	"stackcraft.sh/iostreams"
)

// PrintDiagnostics writes every diagnostic, errors first, under a summary
// line. Nothing is written for an empty list.
func PrintDiagnostics(w io.Writer, cs *iostreams.ColorScheme, diags diag.List) {
	if len(diags) == 0 {
		return
	}

	counts := map[diag.Severity]int{}
	for _, d := range diags {
		counts[d.Severity]++
	}
	var parts []string
	if n := counts[diag.SeverityError]; n > 0 {
		parts = append(parts, english.Plural(n, "error", ""))
	}
	if n := counts[diag.SeverityWarning]; n > 0 {
		parts = append(parts, english.Plural(n, "warning", ""))
	}
	if n := counts[diag.SeverityInfo]; n > 0 {
		parts = append(parts, english.Plural(n, "note", ""))
	}

	header := cs.Bold("Diagnostics: " + strings.Join(parts, ", "))
	switch diags.Max() {
	case diag.SeverityError:
		header = cs.Red(header)
	case diag.SeverityWarning:
		header = cs.Yellow(header)
	}
	fmt.Fprintln(w, header)

	for _, d := range diags.Sorted() {
		line := "  " + d.String()
		switch d.Severity {
		case diag.SeverityError:
			line = cs.Red(line)
		case diag.SeverityWarning:
			line = cs.Yellow(line)
		default:
			line = cs.Gray(line)
		}
		fmt.Fprintln(w, line)
	}
}

// PrintQuestions lists the clarifications a run left open.
func PrintQuestions(w io.Writer, cs *iostreams.ColorScheme, questions []advisor.Question) {
	if len(questions) == 0 {
		return
	}
	fmt.Fprintln(w, cs.Bold("Open questions (answer with --set FIELD=VALUE):"))
	for _, q := range questions {
		fmt.Fprintf(w, "  %s %s\n", cs.Cyan(string(q.Field)+":"), q.Question)
		if len(q.Options) > 0 {
			fmt.Fprintf(w, "    options: %s\n", strings.Join(q.Options, ", "))
		}
	}
}

// PrintSuggestions lists advisor output. Suggestions are never applied.
func PrintSuggestions(w io.Writer, cs *iostreams.ColorScheme, suggestions []advisor.Suggestion) {
	if len(suggestions) == 0 {
		return
	}
	fmt.Fprintln(w, cs.Bold("Suggestions (not applied):"))
	for _, s := range suggestions {
		where := ""
		if s.Line > 0 {
			where = fmt.Sprintf(" (line %d)", s.Line)
		}
		fmt.Fprintf(w, "  - %s%s: %s\n", s.Title, where, s.Detail)
	}
}

// WriteOutput renders into path, or to stdout when path is "-". An
// existing file is only replaced when force is set.
func WriteOutput(stdout io.Writer, path string, force bool, render func(io.Writer) error) error {
	if path == "-" {
		return render(stdout)
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists; use --force to overwrite", path)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return config.ChownToUser(path)
}
