// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package diag

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestListSeverity(t *testing.T) {
	var l List
	require.Equal(t, SeverityInfo, l.Max())

	l = append(l, Info(ReviewFinding, "Dockerfile", "apt lists kept"))
	require.Equal(t, SeverityInfo, l.Max())

	l = append(l, Warn(ScanWarning, "collector", "%s: too large", "data.json"))
	require.Equal(t, SeverityWarning, l.Max())
	require.True(t, l.Has(ScanWarning))
	require.False(t, l.Has(AmbiguousField))
	require.Len(t, l.OfCode(ScanWarning), 1)
	require.Equal(t, "data.json: too large", l.OfCode(ScanWarning)[0].Message)
}

func TestSortedErrorsFirst(t *testing.T) {
	l := List{
		Info(ReviewFinding, "b", "x"),
		Warn(ScanWarning, "z", "x"),
		{Code: PolicyInvariantViolation, Severity: SeverityError, Source: "policy", Message: "x"},
		Warn(AmbiguousField, "resolver", "x"),
	}

	sorted := l.Sorted()
	var codes []Code
	for _, d := range sorted {
		codes = append(codes, d.Code)
	}
	require.Equal(t, []Code{PolicyInvariantViolation, AmbiguousField, ScanWarning, ReviewFinding}, codes)
	require.Equal(t, ReviewFinding, l[0].Code)
}

func TestDiagnosticString(t *testing.T) {
	d := Diagnostic{Code: AmbiguousField, Severity: SeverityWarning, Source: "resolver", Path: "go.mod", Field: "language", Message: "tie"}
	require.Equal(t, "warning [AmbiguousField] resolver go.mod (language): tie", d.String())
}

func TestInvariantViolation(t *testing.T) {
	var err error = &InvariantViolation{Invariant: "pinned-base-image", Rule: "base.final", Detail: "no digest for python:3.12-slim"}

	var v *InvariantViolation
	require.True(t, errors.As(err, &v))
	require.Contains(t, err.Error(), "base.final")

	d := v.Diagnostic()
	require.Equal(t, PolicyInvariantViolation, d.Code)
	require.Equal(t, SeverityError, d.Severity)
	require.Equal(t, "base.final", d.Source)

	structural := &InvariantViolation{Invariant: "single-start", Detail: "two ENTRYPOINT instructions"}
	require.Equal(t, "policy", structural.Diagnostic().Source)
}
