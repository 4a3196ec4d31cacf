// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package profile

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"stackcraft.sh/detect"
	"stackcraft.sh/diag"
	"stackcraft.sh/evidence"
)

// DefaultEpsilon is the confidence margin under which two claims tie.
const DefaultEpsilon = 0.05

// tolerance absorbs float rounding when comparing against epsilon.
const tolerance = 1e-9

// Resolver turns claims into a StackProfile.
type Resolver struct {
	epsilon float64
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithEpsilon sets the tie margin. Negative values are treated as zero.
func WithEpsilon(eps float64) Option {
	return func(r *Resolver) {
		r.epsilon = max(eps, 0)
	}
}

// NewResolver returns a resolver using DefaultEpsilon unless overridden.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{epsilon: DefaultEpsilon}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Epsilon returns the configured tie margin.
func (r *Resolver) Epsilon() float64 { return r.epsilon }

// compareClaims orders claims best first: confidence, then rule id, then
// value, then cited signals.
func compareClaims(a, b detect.Claim) int {
	if a.Confidence != b.Confidence {
		return cmp.Compare(b.Confidence, a.Confidence)
	}
	if c := strings.Compare(a.RuleID, b.RuleID); c != 0 {
		return c
	}
	if c := strings.Compare(a.Value, b.Value); c != 0 {
		return c
	}
	return slices.CompareFunc(a.Signals, b.Signals, func(x, y evidence.Signal) int {
		return strings.Compare(x.String(), y.String())
	})
}

// candidate is the best claim for one distinct value.
type candidate struct {
	best   detect.Claim
	claims []detect.Claim
}

func group(claims []detect.Claim) []candidate {
	byValue := map[string]*candidate{}
	var order []string
	for _, c := range claims {
		cand, ok := byValue[c.Value]
		if !ok {
			cand = &candidate{}
			byValue[c.Value] = cand
			order = append(order, c.Value)
		}
		cand.claims = append(cand.claims, c)
	}

	out := make([]candidate, 0, len(order))
	for _, v := range order {
		cand := byValue[v]
		slices.SortFunc(cand.claims, compareClaims)
		cand.best = cand.claims[0]
		out = append(out, *cand)
	}
	slices.SortFunc(out, func(a, b candidate) int { return compareClaims(a.best, b.best) })
	return out
}

func (c candidate) resolved() Resolved {
	return Resolved{
		Value:      c.best.Value,
		Confidence: c.best.Confidence,
		Rule:       c.best.RuleID,
		Claims:     slices.Clone(c.claims),
	}
}

// tie is the set of claims within epsilon of the best claim of a field.
type tie struct {
	claims []detect.Claim
	winner detect.Claim
}

// tied collects every claim within epsilon of the highest confidence. The
// winner is the tied claim with the smallest rule id; claims sharing that
// id fall back to claim order.
func (r *Resolver) tied(claims []detect.Claim) tie {
	sorted := slices.Clone(claims)
	slices.SortFunc(sorted, compareClaims)

	top := sorted[0].Confidence
	var t tie
	for _, c := range sorted {
		if top-c.Confidence <= r.epsilon+tolerance {
			t.claims = append(t.claims, c)
		}
	}
	t.winner = t.claims[0]
	for _, c := range t.claims[1:] {
		if c.RuleID < t.winner.RuleID {
			t.winner = c
		}
	}
	return t
}

// ambiguous reports whether the tied claims disagree on the value.
func (t tie) ambiguous() bool {
	for _, c := range t.claims {
		if c.Value != t.winner.Value {
			return true
		}
	}
	return false
}

func (t tie) ambiguity(field detect.Field) Ambiguity {
	a := Ambiguity{Field: field, Chosen: t.winner.Value}
	for _, c := range t.claims {
		a.Candidates = append(a.Candidates, Candidate{
			Value:      c.Value,
			Confidence: c.Confidence,
			Rule:       c.RuleID,
		})
	}
	return a
}

// resolvedBy is the candidate's resolution attributed to the winning claim.
func (c candidate) resolvedBy(winner detect.Claim) Resolved {
	res := c.resolved()
	res.Confidence = winner.Confidence
	res.Rule = winner.RuleID
	return res
}

func (a Ambiguity) diagnostic(eps float64) diag.Diagnostic {
	parts := make([]string, len(a.Candidates))
	for i, c := range a.Candidates {
		parts[i] = fmt.Sprintf("%s (%.2f, %s)", c.Value, c.Confidence, c.Rule)
	}
	d := diag.Warn(diag.AmbiguousField, "profile",
		"%d candidates tied within %.2f: %s; chose %q by smallest rule id",
		len(a.Candidates), eps, strings.Join(parts, ", "), a.Chosen)
	d.Field = string(a.Field)
	return d
}

// Resolve picks one value per field. The result depends only on the claim
// set, not on the order of claims.
func (r *Resolver) Resolve(claims []detect.Claim) (*StackProfile, diag.List) {
	byField := map[detect.Field][]detect.Claim{}
	for _, c := range claims {
		if c.Field.Valid() && c.Value != "" {
			byField[c.Field] = append(byField[c.Field], c)
		}
	}

	p := &StackProfile{
		Entrypoints:  []Resolved{},
		ExposedPorts: []Resolved{},
		Ambiguities:  []Ambiguity{},
	}
	var diags diag.List

	for _, f := range detect.Fields() {
		fieldClaims := byField[f]
		if len(fieldClaims) == 0 {
			continue
		}
		cands := group(fieldClaims)

		t := r.tied(fieldClaims)
		chosen := cands[slices.IndexFunc(cands, func(c candidate) bool {
			return c.best.Value == t.winner.Value
		})]

		if f.Multi() {
			ordered := cands
			if f == detect.FieldEntrypoint && t.ambiguous() {
				a := t.ambiguity(f)
				p.Ambiguities = append(p.Ambiguities, a)
				diags = append(diags, a.diagnostic(r.epsilon))
				ordered = append([]candidate{chosen}, slices.DeleteFunc(slices.Clone(cands), func(c candidate) bool {
					return c.best.Value == chosen.best.Value
				})...)
			}
			for i, c := range ordered {
				res := c.resolved()
				if i == 0 && f == detect.FieldEntrypoint && c.best.Value == t.winner.Value {
					res = c.resolvedBy(t.winner)
				}
				switch f {
				case detect.FieldEntrypoint:
					p.Entrypoints = append(p.Entrypoints, res)
				case detect.FieldExposedPort:
					p.ExposedPorts = append(p.ExposedPorts, res)
				}
			}
			continue
		}

		if t.ambiguous() {
			a := t.ambiguity(f)
			p.Ambiguities = append(p.Ambiguities, a)
			diags = append(diags, a.diagnostic(r.epsilon))
		}
		res := chosen.resolvedBy(t.winner)
		*p.slot(f) = &res
	}

	return p, diags
}
