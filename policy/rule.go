// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

// Package policy turns a resolved StackProfile into BuildIR by running an
// ordered set of policy rules and enforcing the structural invariants of
// the result.
package policy

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"stackcraft.sh/buildir"
	"stackcraft.sh/detect"
)

// Rule is a policy rule. Implementations are pure functions of the plan.
type Rule interface {
	ID() string
	// Priority orders evaluation, lowest first. Equal priorities run in id
	// order.
	Priority() int
	// Requires lists the profile fields the rule cannot do without.
	Requires(p *Plan) []detect.Field
	// Applies reports whether the rule has anything to say for the plan,
	// and why not when it does not.
	Applies(p *Plan) (bool, string)
	// Emit returns the instructions the rule contributes.
	Emit(p *Plan) ([]buildir.Instruction, error)
}

// OptOut is implemented by rules that may waive an invariant. The waiver
// is recorded as a Decision.
type OptOut interface {
	OptsOut(p *Plan) (invariant, reason string, ok bool)
}

// Spec describes a rule built from functions.
type Spec struct {
	ID       string
	Priority int
	Requires func(p *Plan) []detect.Field
	Applies  func(p *Plan) (bool, string)
	Emit     func(p *Plan) ([]buildir.Instruction, error)
	OptsOut  func(p *Plan) (string, string, bool)
}

type specRule struct {
	spec Spec
}

type optOutRule struct {
	specRule
}

func (r optOutRule) OptsOut(p *Plan) (string, string, bool) { return r.spec.OptsOut(p) }

func (r specRule) ID() string { return r.spec.ID }

func (r specRule) Priority() int { return r.spec.Priority }

func (r specRule) Requires(p *Plan) []detect.Field {
	if r.spec.Requires == nil {
		return nil
	}
	return r.spec.Requires(p)
}

func (r specRule) Applies(p *Plan) (bool, string) {
	if r.spec.Applies == nil {
		return true, ""
	}
	return r.spec.Applies(p)
}

func (r specRule) Emit(p *Plan) ([]buildir.Instruction, error) {
	return r.spec.Emit(p)
}

// NewRule builds a Rule from a Spec. Emit is mandatory.
func NewRule(spec Spec) Rule {
	if spec.OptsOut != nil {
		return optOutRule{specRule{spec: spec}}
	}
	return specRule{spec: spec}
}

// requires is a Requires helper for a fixed field list.
func requires(fields ...detect.Field) func(*Plan) []detect.Field {
	return func(*Plan) []detect.Field { return fields }
}

// Registry is an immutable, ordered set of policy rules.
type Registry struct {
	rules []Rule
}

// NewRegistry validates rules and orders them by priority then id.
func NewRegistry(rules ...Rule) (*Registry, error) {
	seen := map[string]bool{}
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r == nil {
			return nil, fmt.Errorf("nil policy rule")
		}
		id := r.ID()
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("policy rule with empty id")
		}
		if id != strings.TrimSpace(id) {
			return nil, fmt.Errorf("policy rule id %q has surrounding whitespace", id)
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate policy rule %q", id)
		}
		seen[id] = true
		out = append(out, r)
	}
	slices.SortStableFunc(out, func(a, b Rule) int {
		if a.Priority() != b.Priority() {
			return a.Priority() - b.Priority()
		}
		return strings.Compare(a.ID(), b.ID())
	})
	return &Registry{rules: out}, nil
}

// Rules returns the rules in evaluation order.
func (r *Registry) Rules() []Rule { return slices.Clone(r.rules) }

// IDs returns the rule ids in evaluation order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.rules))
	for i, rule := range r.rules {
		ids[i] = rule.ID()
	}
	return ids
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	return slices.ContainsFunc(r.rules, func(rule Rule) bool { return rule.ID() == id })
}

// With returns a registry extended by extra.
func (r *Registry) With(extra ...Rule) (*Registry, error) {
	return NewRegistry(append(r.Rules(), extra...)...)
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	reg, err := NewRegistry(builtinRules()...)
	if err != nil {
		panic(fmt.Sprintf("invalid built-in policy rules: %v", err))
	}
	return reg
})

// Default returns the built-in policy registry.
func Default() *Registry { return defaultRegistry() }
