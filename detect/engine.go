// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package detect

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"stackcraft.sh/diag"
	"stackcraft.sh/evidence"
	"stackcraft.sh/log"
)

// Engine evaluates every rule of a registry.
type Engine struct {
	registry *Registry
}

// NewEngine returns an engine over reg, or over the built-in registry when
// reg is nil.
func NewEngine(reg *Registry) *Engine {
	if reg == nil {
		reg = Default()
	}
	return &Engine{registry: reg}
}

// Evaluate runs all rules and concatenates their claims in rule id order.
// A rule that fails, panics or emits a malformed claim contributes nothing
// and is reported as an InternalRuleError.
func (e *Engine) Evaluate(ctx context.Context, signals evidence.Set) ([]Claim, diag.List) {
	var (
		claims []Claim
		diags  diag.List
	)

	for _, rule := range e.registry.rules {
		produced, err := evaluate(rule, signals)
		if err != nil {
			d := diag.Warn(diag.InternalRuleError, rule.ID(), "%v", err)
			diags = append(diags, d)
			log.G(ctx).WithFields(logrus.Fields{
				"rule":  rule.ID(),
				"error": err,
			}).Debug("detection rule excluded")
			continue
		}

		for _, claim := range produced {
			claim.RuleID = rule.ID()
			claims = append(claims, claim)
		}

		if len(produced) > 0 {
			log.G(ctx).WithFields(logrus.Fields{
				"rule":   rule.ID(),
				"claims": len(produced),
			}).Trace("detection rule matched")
		}
	}

	return claims, diags
}

func evaluate(rule Rule, signals evidence.Set) (claims []Claim, err error) {
	defer func() {
		if r := recover(); r != nil {
			claims = nil
			err = fmt.Errorf("rule panicked: %v", r)
		}
	}()

	claims, err = rule.Evaluate(signals)
	if err != nil {
		return nil, err
	}
	for _, claim := range claims {
		if verr := claim.validate(); verr != nil {
			return nil, fmt.Errorf("malformed claim: %w", verr)
		}
	}
	return claims, nil
}
