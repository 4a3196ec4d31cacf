// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package detect

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Registry is an immutable, id-ordered set of detection rules.
type Registry struct {
	rules []Rule
}

// NewRegistry validates and freezes rules. Ids must be non-empty, free of
// surrounding whitespace and unique.
func NewRegistry(rules ...Rule) (*Registry, error) {
	seen := map[string]struct{}{}
	frozen := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		if rule == nil {
			return nil, fmt.Errorf("nil detection rule")
		}
		id := rule.ID()
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("detection rule with empty id")
		}
		if id != strings.TrimSpace(id) {
			return nil, fmt.Errorf("detection rule id %q has surrounding whitespace", id)
		}
		if _, ok := seen[id]; ok {
			return nil, fmt.Errorf("duplicate detection rule id %q", id)
		}
		seen[id] = struct{}{}
		frozen = append(frozen, rule)
	}

	slices.SortFunc(frozen, func(a, b Rule) int {
		return strings.Compare(a.ID(), b.ID())
	})

	return &Registry{rules: frozen}, nil
}

// Rules returns the rules in id order.
func (r *Registry) Rules() []Rule { return slices.Clone(r.rules) }

// Len returns the number of rules.
func (r *Registry) Len() int { return len(r.rules) }

// IDs returns every rule id in order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.rules))
	for i, rule := range r.rules {
		ids[i] = rule.ID()
	}
	return ids
}

// With returns a new registry holding r's rules plus extra.
func (r *Registry) With(extra ...Rule) (*Registry, error) {
	return NewRegistry(append(r.Rules(), extra...)...)
}

// Without returns a new registry lacking the given ids.
func (r *Registry) Without(ids ...string) *Registry {
	out := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		if !slices.Contains(ids, rule.ID()) {
			out = append(out, rule)
		}
	}
	return &Registry{rules: out}
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	var rules []Rule
	rules = append(rules, languageRules()...)
	rules = append(rules, frameworkRules()...)
	rules = append(rules, runtimeRules()...)
	rules = append(rules, toolingRules()...)
	rules = append(rules, entryRules()...)
	rules = append(rules, portRules()...)

	reg, err := NewRegistry(rules...)
	if err != nil {
		panic(fmt.Sprintf("built-in detection rules: %v", err))
	}
	return reg
})

// Default returns the built-in registry. It is built once and shared.
func Default() *Registry { return defaultRegistry() }
