// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

// Package diag holds the diagnostics taxonomy shared by every pipeline stage.
// Recoverable conditions are accumulated as Diagnostic values and returned
// next to the best-effort result; only an InvariantViolation is fatal.
package diag

import (
	"fmt"
	"sort"
	"strings"
)

// Code classifies a diagnostic.
type Code string

const (
	// ScanWarning is an unreadable, skipped or truncated part of the scan.
	ScanWarning Code = "ScanWarning"
	// AmbiguousField is a profile field whose best claims tied.
	AmbiguousField Code = "AmbiguousField"
	// UnresolvedField is a field a policy strictly requires that has no claim.
	UnresolvedField Code = "UnresolvedField"
	// PolicyInvariantViolation aborts synthesis.
	PolicyInvariantViolation Code = "PolicyInvariantViolation"
	// InternalRuleError is a detection or policy rule that failed.
	InternalRuleError Code = "InternalRuleError"
	// ReviewFinding is a lint finding on a rendered Dockerfile.
	ReviewFinding Code = "ReviewFinding"
)

// Severity of a diagnostic.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

func (s Severity) rank() int {
	switch s {
	case SeverityError:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Diagnostic is one recoverable (or, for invariant violations, fatal)
// condition observed during a run.
type Diagnostic struct {
	Code     Code     `json:"code" yaml:"code"`
	Severity Severity `json:"severity" yaml:"severity"`
	// Source is the component or rule id that raised the diagnostic.
	Source  string `json:"source" yaml:"source"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
	Field   string `json:"field,omitempty" yaml:"field,omitempty"`
	Message string `json:"message" yaml:"message"`
}

func (d Diagnostic) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s", d.Severity, d.Code, d.Source)
	if d.Path != "" {
		fmt.Fprintf(&b, " %s", d.Path)
	}
	if d.Field != "" {
		fmt.Fprintf(&b, " (%s)", d.Field)
	}
	fmt.Fprintf(&b, ": %s", d.Message)
	return b.String()
}

// Warn builds a warning diagnostic.
func Warn(code Code, source, format string, args ...interface{}) Diagnostic {
	return Diagnostic{Code: code, Severity: SeverityWarning, Source: source, Message: fmt.Sprintf(format, args...)}
}

// Info builds an informational diagnostic.
func Info(code Code, source, format string, args ...interface{}) Diagnostic {
	return Diagnostic{Code: code, Severity: SeverityInfo, Source: source, Message: fmt.Sprintf(format, args...)}
}

// List is an ordered collection of diagnostics.
type List []Diagnostic

// Has reports whether any diagnostic carries the given code.
func (l List) Has(code Code) bool {
	for _, d := range l {
		if d.Code == code {
			return true
		}
	}
	return false
}

// OfCode returns the diagnostics with the given code, in order.
func (l List) OfCode(code Code) List {
	var out List
	for _, d := range l {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out
}

// Max returns the highest severity present, SeverityInfo when empty.
func (l List) Max() Severity {
	max := SeverityInfo
	for _, d := range l {
		if d.Severity.rank() > max.rank() {
			max = d.Severity
		}
	}
	return max
}

// Sorted returns a copy ordered by severity (errors first), then code,
// source, path and message. The input order of equal entries is kept.
func (l List) Sorted() List {
	out := append(List(nil), l...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Severity.rank() != b.Severity.rank() {
			return a.Severity.rank() > b.Severity.rank()
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.Message < b.Message
	})
	return out
}

// InvariantViolation is the structured failure returned when synthesis
// cannot satisfy a structural invariant.
type InvariantViolation struct {
	// Invariant names the violated invariant, e.g. "pinned-base-image".
	Invariant string
	// Rule is the policy id that caused the violation, empty when the
	// violation is structural rather than attributable to one rule.
	Rule   string
	Detail string
}

func (e *InvariantViolation) Error() string {
	if e.Rule == "" {
		return fmt.Sprintf("policy invariant %q violated: %s", e.Invariant, e.Detail)
	}
	return fmt.Sprintf("policy invariant %q violated by %s: %s", e.Invariant, e.Rule, e.Detail)
}

// Diagnostic converts the violation into a diagnostic entry.
func (e *InvariantViolation) Diagnostic() Diagnostic {
	src := e.Rule
	if src == "" {
		src = "policy"
	}
	return Diagnostic{
		Code:     PolicyInvariantViolation,
		Severity: SeverityError,
		Source:   src,
		Message:  fmt.Sprintf("%s: %s", e.Invariant, e.Detail),
	}
}
