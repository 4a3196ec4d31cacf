// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

// Package profile resolves conflicting detection claims into a single
// StackProfile.
package profile

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"gopkg.in/yaml.v3"

	"stackcraft.sh/detect"
)

// Resolved is the winning value of one profile field and its provenance.
type Resolved struct {
	Value      string
	Confidence float64
	// Rule is the id of the rule whose claim won.
	Rule string
	// Claims holds every claim that proposed Value, best first.
	Claims []detect.Claim
}

// SupportedBy lists the ids of every rule that proposed the value.
func (r Resolved) SupportedBy() []string {
	ids := make([]string, 0, len(r.Claims))
	for _, c := range r.Claims {
		if !slices.Contains(ids, c.RuleID) {
			ids = append(ids, c.RuleID)
		}
	}
	return ids
}

type resolvedView struct {
	Value       string   `json:"value" yaml:"value"`
	Confidence  float64  `json:"confidence" yaml:"confidence"`
	Rule        string   `json:"rule" yaml:"rule"`
	SupportedBy []string `json:"supportedBy,omitempty" yaml:"supportedBy,omitempty"`
}

func (r Resolved) view() resolvedView {
	return resolvedView{
		Value:       r.Value,
		Confidence:  r.Confidence,
		Rule:        r.Rule,
		SupportedBy: r.SupportedBy(),
	}
}

func (r Resolved) MarshalJSON() ([]byte, error) { return json.Marshal(r.view()) }

func (r Resolved) MarshalYAML() (interface{}, error) { return r.view(), nil }

func (r Resolved) clone() Resolved {
	out := r
	out.Claims = make([]detect.Claim, len(r.Claims))
	for i, c := range r.Claims {
		c.Signals = slices.Clone(c.Signals)
		out.Claims[i] = c
	}
	return out
}

// Candidate is one of the values that tied for an ambiguous field.
type Candidate struct {
	Value      string  `json:"value" yaml:"value"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Rule       string  `json:"rule" yaml:"rule"`
}

// Ambiguity records a field whose best claims tied within epsilon.
type Ambiguity struct {
	Field      detect.Field `json:"field" yaml:"field"`
	Chosen     string       `json:"chosen" yaml:"chosen"`
	Candidates []Candidate  `json:"candidates" yaml:"candidates"`
}

// StackProfile is the resolved description of a repository's stack. It is
// built once by a Resolver and read-only afterwards; use Clone to obtain a
// copy that may be modified.
type StackProfile struct {
	Language       *Resolved   `json:"language,omitempty" yaml:"language,omitempty"`
	Framework      *Resolved   `json:"framework,omitempty" yaml:"framework,omitempty"`
	RuntimeVersion *Resolved   `json:"runtimeVersion,omitempty" yaml:"runtimeVersion,omitempty"`
	PackageManager *Resolved   `json:"packageManager,omitempty" yaml:"packageManager,omitempty"`
	BuildCommand   *Resolved   `json:"buildCommand,omitempty" yaml:"buildCommand,omitempty"`
	RunCommand     *Resolved   `json:"runCommand,omitempty" yaml:"runCommand,omitempty"`
	Entrypoints    []Resolved  `json:"entrypoints" yaml:"entrypoints"`
	ExposedPorts   []Resolved  `json:"exposedPorts" yaml:"exposedPorts"`
	Ambiguities    []Ambiguity `json:"ambiguities" yaml:"ambiguities"`
}

func (p *StackProfile) slot(f detect.Field) **Resolved {
	switch f {
	case detect.FieldLanguage:
		return &p.Language
	case detect.FieldFramework:
		return &p.Framework
	case detect.FieldRuntimeVersion:
		return &p.RuntimeVersion
	case detect.FieldPackageManager:
		return &p.PackageManager
	case detect.FieldBuildCommand:
		return &p.BuildCommand
	case detect.FieldRunCommand:
		return &p.RunCommand
	}
	return nil
}

// Get returns the resolved single-valued field f. For multi-valued fields
// it returns the first entry.
func (p *StackProfile) Get(f detect.Field) (Resolved, bool) {
	if f.Multi() {
		all := p.All(f)
		if len(all) == 0 {
			return Resolved{}, false
		}
		return all[0], true
	}
	slot := p.slot(f)
	if slot == nil || *slot == nil {
		return Resolved{}, false
	}
	return **slot, true
}

// Value returns the resolved value of f, or "" when unset.
func (p *StackProfile) Value(f detect.Field) string {
	r, _ := p.Get(f)
	return r.Value
}

// Has reports whether f has a resolved value.
func (p *StackProfile) Has(f detect.Field) bool {
	_, ok := p.Get(f)
	return ok
}

// All returns every entry of a multi-valued field, or the single value of
// any other field as a one-element slice.
func (p *StackProfile) All(f detect.Field) []Resolved {
	switch f {
	case detect.FieldEntrypoint:
		return p.Entrypoints
	case detect.FieldExposedPort:
		return p.ExposedPorts
	}
	if r, ok := p.Get(f); ok {
		return []Resolved{r}
	}
	return nil
}

// Values returns the values of All(f).
func (p *StackProfile) Values(f detect.Field) []string {
	all := p.All(f)
	out := make([]string, len(all))
	for i, r := range all {
		out[i] = r.Value
	}
	return out
}

// IsAmbiguous reports whether f tied within epsilon.
func (p *StackProfile) IsAmbiguous(f detect.Field) bool {
	for _, a := range p.Ambiguities {
		if a.Field == f {
			return true
		}
	}
	return false
}

// AmbiguousFields lists the ambiguous fields in profile order.
func (p *StackProfile) AmbiguousFields() []detect.Field {
	out := []detect.Field{}
	for _, a := range p.Ambiguities {
		out = append(out, a.Field)
	}
	return out
}

// Clone returns a deep copy.
func (p *StackProfile) Clone() *StackProfile {
	out := &StackProfile{}
	for _, f := range detect.Fields() {
		if f.Multi() {
			continue
		}
		if src := *p.slot(f); src != nil {
			c := src.clone()
			*out.slot(f) = &c
		}
	}
	for _, r := range p.Entrypoints {
		out.Entrypoints = append(out.Entrypoints, r.clone())
	}
	for _, r := range p.ExposedPorts {
		out.ExposedPorts = append(out.ExposedPorts, r.clone())
	}
	for _, a := range p.Ambiguities {
		a.Candidates = slices.Clone(a.Candidates)
		out.Ambiguities = append(out.Ambiguities, a)
	}
	if out.Entrypoints == nil {
		out.Entrypoints = []Resolved{}
	}
	if out.ExposedPorts == nil {
		out.ExposedPorts = []Resolved{}
	}
	if out.Ambiguities == nil {
		out.Ambiguities = []Ambiguity{}
	}
	return out
}

// Format is an encoding for profiles and traces.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Encode writes the profile in the requested format.
func (p *StackProfile) Encode(w io.Writer, format Format) error {
	return Encode(w, format, p)
}

// Encode writes v as YAML or indented JSON.
func Encode(w io.Writer, format Format, v interface{}) error {
	switch format {
	case FormatYAML, "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return fmt.Errorf("unsupported format %q", format)
}
