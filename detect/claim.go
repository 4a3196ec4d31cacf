// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

// Package detect turns evidence signals into scored claims about the
// technology stack of a repository. Rules are pure functions of the signal
// set; none of them sees another rule's output.
package detect

import (
	"fmt"
	"math"
	"slices"

	"stackcraft.sh/evidence"
)

// Field is one attribute of the stack profile a claim can target.
type Field string

const (
	FieldLanguage       Field = "language"
	FieldFramework      Field = "framework"
	FieldRuntimeVersion Field = "runtime_version"
	FieldPackageManager Field = "package_manager"
	FieldBuildCommand   Field = "build_command"
	FieldRunCommand     Field = "run_command"
	FieldEntrypoint     Field = "entrypoint"
	FieldExposedPort    Field = "exposed_port"
)

var allFields = []Field{
	FieldLanguage,
	FieldFramework,
	FieldRuntimeVersion,
	FieldPackageManager,
	FieldBuildCommand,
	FieldRunCommand,
	FieldEntrypoint,
	FieldExposedPort,
}

// Fields returns every known field in profile order.
func Fields() []Field { return slices.Clone(allFields) }

// Valid reports whether f is a known field.
func (f Field) Valid() bool { return slices.Contains(allFields, f) }

// Multi reports whether the profile keeps every claimed value of f rather
// than a single winner.
func (f Field) Multi() bool {
	return f == FieldEntrypoint || f == FieldExposedPort
}

// Claim is a rule's scored proposal for the value of one field.
type Claim struct {
	Field      Field   `json:"field" yaml:"field"`
	Value      string  `json:"value" yaml:"value"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	// RuleID is stamped by the engine; rules cannot set it.
	RuleID  string            `json:"rule" yaml:"rule"`
	Signals []evidence.Signal `json:"signals,omitempty" yaml:"signals,omitempty"`
}

func (c Claim) String() string {
	return fmt.Sprintf("%s=%s (%.2f, %s)", c.Field, c.Value, c.Confidence, c.RuleID)
}

func (c Claim) validate() error {
	if !c.Field.Valid() {
		return fmt.Errorf("unknown field %q", c.Field)
	}
	if c.Value == "" {
		return fmt.Errorf("empty value for field %s", c.Field)
	}
	if math.IsNaN(c.Confidence) || c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("confidence %v for %s outside [0,1]", c.Confidence, c.Field)
	}
	return nil
}

// NewClaim builds a claim citing the given signals.
func NewClaim(field Field, value string, confidence float64, signals ...evidence.Signal) Claim {
	return Claim{
		Field:      field,
		Value:      value,
		Confidence: confidence,
		Signals:    slices.Clone(signals),
	}
}

// Rule is a detection rule.
type Rule interface {
	// ID is unique within a registry and orders tiebreaks.
	ID() string
	// Evaluate proposes zero or more claims from the signal set.
	Evaluate(signals evidence.Set) ([]Claim, error)
}

type funcRule struct {
	id string
	fn func(evidence.Set) []Claim
}

func (r funcRule) ID() string { return r.id }

func (r funcRule) Evaluate(signals evidence.Set) ([]Claim, error) {
	return r.fn(signals), nil
}

// RuleFunc adapts an infallible function into a Rule.
func RuleFunc(id string, fn func(evidence.Set) []Claim) Rule {
	return funcRule{id: id, fn: fn}
}
