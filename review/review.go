// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

// Package review lints Dockerfiles for common image hygiene mistakes.
package review

import (
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/moby/buildkit/frontend/dockerfile/parser"

	"stackcraft.sh/diag"
	"stackcraft.sh/imageref"
)

// Finding is one lint result.
type Finding struct {
	Rule     string        `json:"rule" yaml:"rule"`
	Severity diag.Severity `json:"severity" yaml:"severity"`
	Line     int           `json:"line,omitempty" yaml:"line,omitempty"`
	Message  string        `json:"message" yaml:"message"`
}

func (f Finding) String() string {
	if f.Line > 0 {
		return fmt.Sprintf("%d: %s [%s] %s", f.Line, f.Severity, f.Rule, f.Message)
	}
	return fmt.Sprintf("%s [%s] %s", f.Severity, f.Rule, f.Message)
}

// Diagnostic converts the finding into an informational diagnostic.
func (f Finding) Diagnostic(source string) diag.Diagnostic {
	d := diag.Info(diag.ReviewFinding, "review."+f.Rule, "%s", f.Message)
	if f.Line > 0 {
		d.Path = fmt.Sprintf("%s:%d", source, f.Line)
	} else {
		d.Path = source
	}
	return d
}

// Report is the outcome of a review.
type Report struct {
	Findings []Finding `json:"findings" yaml:"findings"`
}

// Passed reports whether the review found no errors.
func (r *Report) Passed() bool {
	for _, f := range r.Findings {
		if f.Severity == diag.SeverityError {
			return false
		}
	}
	return true
}

// Count returns the number of findings of a severity.
func (r *Report) Count(s diag.Severity) int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == s {
			n++
		}
	}
	return n
}

type stage struct {
	name  string
	image string
	line  int
	nodes []*parser.Node
}

// Review parses the Dockerfile read from r and lints it.
func Review(r io.Reader) (*Report, error) {
	res, err := parser.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing Dockerfile: %w", err)
	}

	var stages []*stage
	for _, node := range res.AST.Children {
		if strings.EqualFold(node.Value, "from") {
			s := &stage{line: node.StartLine}
			args := words(node)
			if len(args) > 0 {
				s.image = args[0]
			}
			if len(args) >= 3 && strings.EqualFold(args[1], "as") {
				s.name = args[2]
			}
			stages = append(stages, s)
			continue
		}
		if len(stages) == 0 {
			continue
		}
		cur := stages[len(stages)-1]
		cur.nodes = append(cur.nodes, node)
	}

	report := &Report{Findings: []Finding{}}
	if len(stages) == 0 {
		report.add("from.missing", diag.SeverityError, 0, "no FROM instruction")
		return report, nil
	}

	names := map[string]bool{}
	for i, s := range stages {
		report.checkBase(s, names, i == len(stages)-1)
		if s.name != "" {
			names[strings.ToLower(s.name)] = true
		}
		report.checkRuns(s)
		report.checkAdd(s)
	}

	final := stages[len(stages)-1]
	report.checkUser(final)
	report.checkStart(final)

	sort.SliceStable(report.Findings, func(i, j int) bool {
		return report.Findings[i].Line < report.Findings[j].Line
	})
	return report, nil
}

// ReviewString lints Dockerfile text.
func ReviewString(dockerfile string) (*Report, error) {
	return Review(strings.NewReader(dockerfile))
}

func (r *Report) add(rule string, sev diag.Severity, line int, format string, args ...interface{}) {
	r.Findings = append(r.Findings, Finding{Rule: rule, Severity: sev, Line: line, Message: fmt.Sprintf(format, args...)})
}

// words returns the arguments of a node.
func words(node *parser.Node) []string {
	var out []string
	for n := node.Next; n != nil; n = n.Next {
		out = append(out, n.Value)
	}
	return out
}

// fullImages are repositories whose default tags ship a full distribution
// or toolchain.
var fullImages = map[string]bool{
	"python":          true,
	"node":            true,
	"golang":          true,
	"rust":            true,
	"ruby":            true,
	"openjdk":         true,
	"eclipse-temurin": true,
	"maven":           true,
	"gradle":          true,
}

var slimMarkers = []string{"slim", "alpine", "jre", "distroless", "chiseled", "minimal"}

func (r *Report) checkBase(s *stage, names map[string]bool, final bool) {
	img := s.image
	switch {
	case img == "", strings.EqualFold(img, "scratch"), names[strings.ToLower(img)], strings.Contains(img, "$"):
		return
	}

	if err := imageref.CheckPinned(img); err != nil {
		if errors.Is(err, imageref.ErrUnpinned) {
			r.add("base.unpinned", diag.SeverityWarning, s.line, "base image %s is not pinned to a version; avoid implicit or latest tags", img)
		} else {
			r.add("base.invalid", diag.SeverityError, s.line, "base image %s: %v", img, err)
		}
	}

	if !final {
		return
	}
	ref := imageref.Parse(img)
	if !fullImages[path.Base(ref.Name)] {
		return
	}
	for _, m := range slimMarkers {
		if strings.Contains(ref.Tag, m) {
			return
		}
	}
	r.add("base.not-slim", diag.SeverityWarning, s.line, "final base image %s is not a slim variant", img)
}

var (
	pipInstall = regexp.MustCompile(`(^|\s)pip3?\s+install\b`)
	reqFile    = regexp.MustCompile(`(?:-r|--requirement)[\s=]+(\S+)`)
	segments   = regexp.MustCompile(`&&|\|\||;`)
)

func (r *Report) checkRuns(s *stage) {
	var copied []string
	for _, node := range s.nodes {
		switch strings.ToLower(node.Value) {
		case "copy", "add":
			args := words(node)
			if len(args) > 1 {
				copied = append(copied, args[:len(args)-1]...)
			}
		case "run":
			cmd := strings.Join(words(node), " ")
			for _, seg := range segments.Split(cmd, -1) {
				r.checkPip(node.StartLine, strings.TrimSpace(seg), copied)
			}
			if strings.Contains(cmd, "apt-get install") && !strings.Contains(cmd, "/var/lib/apt/lists") {
				r.add("apt.lists", diag.SeverityWarning, node.StartLine, "apt-get install without removing /var/lib/apt/lists in the same layer")
			}
		}
	}
}

func (r *Report) checkPip(line int, seg string, copied []string) {
	if !pipInstall.MatchString(seg) {
		return
	}
	if !strings.Contains(seg, "--no-cache-dir") && !strings.Contains(seg, "--no-cache") {
		r.add("pip.cache", diag.SeverityWarning, line, "pip install should use --no-cache-dir")
	}
	for _, m := range reqFile.FindAllStringSubmatch(seg, -1) {
		if !isCopied(m[1], copied) {
			r.add("pip.requirements-not-copied", diag.SeverityError, line, "%s is installed but never copied into the stage", m[1])
		}
	}
}

func isCopied(file string, copied []string) bool {
	file = strings.TrimPrefix(file, "./")
	for _, src := range copied {
		src = strings.TrimPrefix(src, "./")
		if src == "." || src == file || strings.HasPrefix(src, "--") {
			return true
		}
		if ok, _ := path.Match(src, file); ok {
			return true
		}
	}
	return false
}

func (r *Report) checkAdd(s *stage) {
	for _, node := range s.nodes {
		if !strings.EqualFold(node.Value, "add") {
			continue
		}
		args := words(node)
		if len(args) < 2 {
			continue
		}
		for _, src := range args[:len(args)-1] {
			if !strings.Contains(src, "://") && !strings.HasPrefix(src, "git@") {
				r.add("add.local", diag.SeverityInfo, node.StartLine, "use COPY for local file %s", src)
			}
		}
	}
}

func (r *Report) checkUser(final *stage) {
	var last *parser.Node
	for _, node := range final.nodes {
		if strings.EqualFold(node.Value, "user") {
			last = node
		}
	}
	if last == nil {
		r.add("user.missing", diag.SeverityWarning, 0, "the final stage has no USER; the container runs as root")
		return
	}
	user := strings.Join(words(last), " ")
	name, _, _ := strings.Cut(user, ":")
	if name == "root" || name == "0" {
		r.add("user.root", diag.SeverityWarning, last.StartLine, "the final stage runs as root")
	}
}

func (r *Report) checkStart(final *stage) {
	for _, node := range final.nodes {
		switch strings.ToLower(node.Value) {
		case "cmd", "entrypoint":
			return
		}
	}
	r.add("start.missing", diag.SeverityError, 0, "no CMD or ENTRYPOINT; the container has nothing to start")
}
