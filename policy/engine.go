// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package policy

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"stackcraft.sh/buildir"
	"stackcraft.sh/detect"
	"stackcraft.sh/diag"
	"stackcraft.sh/imageref"
	"stackcraft.sh/log"
	"stackcraft.sh/profile"
)

// Invariants enforced on the synthesized IR, in addition to the structural
// ones buildir.Validate checks.
const (
	InvariantPinned       = "pinned-base-image"
	InvariantDigest       = "digest-pinned-base-image"
	InvariantNonRoot      = "non-root-user"
	InvariantExposedPorts = "expose-matches-profile"
)

// Outcome of evaluating one rule.
type Outcome string

const (
	Emitted       Outcome = "emitted"
	NotApplicable Outcome = "not-applicable"
	Disabled      Outcome = "disabled"
	Unresolved    Outcome = "unresolved"
	Failed        Outcome = "failed"
	OptedOut      Outcome = "opted-out"
)

// Decision records what a rule did and why.
type Decision struct {
	Policy   string         `json:"policy" yaml:"policy"`
	Priority int            `json:"priority" yaml:"priority"`
	Outcome  Outcome        `json:"outcome" yaml:"outcome"`
	Reason   string         `json:"reason,omitempty" yaml:"reason,omitempty"`
	Fields   []detect.Field `json:"fields,omitempty" yaml:"fields,omitempty"`
	// Invariant is the invariant waived by an opt-out.
	Invariant    string `json:"invariant,omitempty" yaml:"invariant,omitempty"`
	Instructions int    `json:"instructions,omitempty" yaml:"instructions,omitempty"`
}

// Supersession records an instruction dropped because a later rule
// targeted the same effect in the same stage.
type Supersession struct {
	Instruction buildir.Instruction `json:"instruction" yaml:"instruction"`
	By          string              `json:"by" yaml:"by"`
	Reason      string              `json:"reason" yaml:"reason"`
}

// Result is the outcome of one synthesis.
type Result struct {
	IR          *buildir.IR    `json:"ir" yaml:"ir"`
	Plan        *Plan          `json:"-" yaml:"-"`
	Decisions   []Decision     `json:"decisions" yaml:"decisions"`
	Superseded  []Supersession `json:"superseded" yaml:"superseded"`
	Diagnostics diag.List      `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`

	waivedInvariants []string
}

// Decision returns the decision recorded for a policy id.
func (r *Result) Decision(id string) (Decision, bool) {
	for _, d := range r.Decisions {
		if d.Policy == id {
			return d, true
		}
	}
	return Decision{}, false
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithConfig sets the policy configuration.
func WithConfig(cfg Config) EngineOption {
	return func(e *Engine) { e.config = cfg }
}

// WithCatalog replaces the base image catalog.
func WithCatalog(c *imageref.Catalog) EngineOption {
	return func(e *Engine) { e.catalog = c }
}

// WithLock sets the digest lock used in digest pinning mode.
func WithLock(l *imageref.Lock) EngineOption {
	return func(e *Engine) { e.lock = l }
}

// Engine evaluates a policy registry against profiles.
type Engine struct {
	registry *Registry
	config   Config
	catalog  *imageref.Catalog
	lock     *imageref.Lock
}

// NewEngine returns an engine over reg, or over the built-in registry when
// reg is nil. Disabling an unknown policy id is an error.
func NewEngine(reg *Registry, opts ...EngineOption) (*Engine, error) {
	if reg == nil {
		reg = Default()
	}
	e := &Engine{
		registry: reg,
		config:   DefaultConfig(),
		catalog:  imageref.Default(),
		lock:     imageref.NewLock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, id := range e.config.Disable {
		if !reg.Has(id) {
			return nil, fmt.Errorf("cannot disable unknown policy %q", id)
		}
	}
	return e, nil
}

// Synthesize runs every rule against p and returns the resulting IR. The
// returned error is a *diag.InvariantViolation when the IR cannot satisfy
// an invariant, or wraps ErrUnsupportedLanguage.
func (e *Engine) Synthesize(ctx context.Context, p *profile.StackProfile) (*Result, error) {
	plan, diags, err := NewPlan(p, e.config, e.catalog)
	if err != nil {
		return nil, err
	}
	plan.lock = e.lock

	res := &Result{
		Plan:        plan,
		Decisions:   []Decision{},
		Superseded:  []Supersession{},
		Diagnostics: diags,
	}
	var live []buildir.Instruction

	for _, rule := range e.registry.rules {
		id := rule.ID()
		decision := Decision{Policy: id, Priority: rule.Priority()}

		if e.config.Disabled(id) {
			decision.Outcome = Disabled
			decision.Reason = "disabled by policy configuration"
			res.Decisions = append(res.Decisions, decision)
			continue
		}

		var (
			applies bool
			reason  string
			missing []detect.Field
		)
		if err := guard(func() error {
			applies, reason = rule.Applies(plan)
			if applies {
				for _, f := range rule.Requires(plan) {
					if !p.Has(f) {
						missing = append(missing, f)
					}
				}
			}
			return nil
		}); err != nil {
			res.fail(decision, err)
			continue
		}

		if !applies {
			decision.Outcome = NotApplicable
			decision.Reason = reason
			res.Decisions = append(res.Decisions, decision)
			continue
		}

		if len(missing) > 0 {
			names := make([]string, len(missing))
			for i, f := range missing {
				names[i] = string(f)
				d := diag.Warn(diag.UnresolvedField, id, "required field %s has no claim; rule skipped", f)
				d.Field = string(f)
				res.Diagnostics = append(res.Diagnostics, d)
			}
			decision.Outcome = Unresolved
			decision.Reason = "no value for " + strings.Join(names, ", ")
			decision.Fields = missing
			res.Decisions = append(res.Decisions, decision)
			continue
		}

		var emitted []buildir.Instruction
		if err := guard(func() error {
			var err error
			emitted, err = rule.Emit(plan)
			return err
		}); err != nil {
			res.fail(decision, err)
			continue
		}

		for i := range emitted {
			emitted[i].PolicyID = id
			if err := emitted[i].Validate(); err != nil {
				return nil, err
			}
			if emitted[i].Kind == buildir.BaseImage {
				if err := e.checkBaseImage(emitted[i]); err != nil {
					return nil, err
				}
			}
		}

		if oo, ok := rule.(OptOut); ok {
			if invariant, why, waived := oo.OptsOut(plan); waived {
				res.waivedInvariants = append(res.waivedInvariants, invariant)
				res.Decisions = append(res.Decisions, Decision{
					Policy:    id,
					Priority:  rule.Priority(),
					Outcome:   OptedOut,
					Reason:    why,
					Invariant: invariant,
				})
				log.G(ctx).WithFields(logrus.Fields{
					"policy":    id,
					"invariant": invariant,
				}).Debug("policy opted out of invariant")
			}
		}

		for _, inst := range emitted {
			live = res.supersede(live, inst)
			live = append(live, inst)
		}

		decision.Outcome = Emitted
		decision.Instructions = len(emitted)
		res.Decisions = append(res.Decisions, decision)

		log.G(ctx).WithFields(logrus.Fields{
			"policy":       id,
			"instructions": len(emitted),
		}).Trace("policy emitted")
	}

	res.IR = assemble(live)
	if err := res.IR.Validate(); err != nil {
		return nil, err
	}
	if err := res.checkUser(); err != nil {
		return nil, err
	}
	if err := res.checkExpose(p); err != nil {
		return nil, err
	}

	return res, nil
}

func (r *Result) fail(decision Decision, err error) {
	decision.Outcome = Failed
	decision.Reason = err.Error()
	r.Decisions = append(r.Decisions, decision)
	r.Diagnostics = append(r.Diagnostics, diag.Warn(diag.InternalRuleError, decision.Policy, "%v", err))
}

// supersede drops the live instruction that inst replaces, if any.
func (r *Result) supersede(live []buildir.Instruction, inst buildir.Instruction) []buildir.Instruction {
	effect := inst.Effect()
	if effect == "" {
		return live
	}
	idx := slices.IndexFunc(live, func(prev buildir.Instruction) bool {
		return prev.Stage == inst.Stage && prev.Effect() == effect
	})
	if idx < 0 {
		return live
	}
	r.Superseded = append(r.Superseded, Supersession{
		Instruction: live[idx],
		By:          inst.PolicyID,
		Reason:      fmt.Sprintf("%s in stage %q is set again by %s", effect, inst.Stage, inst.PolicyID),
	})
	return slices.Delete(live, idx, idx+1)
}

func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("policy panicked: %v", r)
		}
	}()
	return fn()
}

func (e *Engine) checkBaseImage(inst buildir.Instruction) error {
	ref := inst.Args[0]
	if err := imageref.CheckPinned(ref); err != nil {
		return &diag.InvariantViolation{Invariant: InvariantPinned, Rule: inst.PolicyID, Detail: err.Error()}
	}
	if e.config.BaseImagePinning == PinDigest && imageref.Parse(ref).Digest == "" {
		return &diag.InvariantViolation{
			Invariant: InvariantDigest,
			Rule:      inst.PolicyID,
			Detail:    fmt.Sprintf("%s has no locked digest", ref),
		}
	}
	return nil
}

// assemble groups instructions by stage in the order stages were opened.
// Instructions of undeclared stages are kept last so Validate reports them.
func assemble(live []buildir.Instruction) *buildir.IR {
	ir := &buildir.IR{}
	order := map[string]int{}
	for _, inst := range live {
		if inst.Kind == buildir.StageBoundary {
			if _, ok := order[inst.Stage]; !ok {
				order[inst.Stage] = len(ir.Stages)
				ir.Stages = append(ir.Stages, buildir.Stage{Name: inst.Stage})
			}
		}
	}
	if n := len(ir.Stages); n > 0 {
		ir.Stages[n-1].Final = true
	}

	rank := func(stage string) int {
		if i, ok := order[stage]; ok {
			return i
		}
		return len(order)
	}
	ir.Instructions = slices.Clone(live)
	slices.SortStableFunc(ir.Instructions, func(a, b buildir.Instruction) int {
		return rank(a.Stage) - rank(b.Stage)
	})
	return ir
}

func isRoot(user string) bool {
	name, _, _ := strings.Cut(user, ":")
	return name == "root" || name == "0"
}

func (r *Result) checkUser() error {
	if slices.Contains(r.waivedInvariants, InvariantNonRoot) {
		return nil
	}
	final, _ := r.IR.Final()
	for _, inst := range r.IR.InStage(final.Name) {
		if inst.Kind != buildir.User {
			continue
		}
		if isRoot(inst.Args[0]) {
			return &diag.InvariantViolation{
				Invariant: InvariantNonRoot,
				Rule:      inst.PolicyID,
				Detail:    fmt.Sprintf("final stage runs as %s without an opt-out", inst.Args[0]),
			}
		}
		return nil
	}
	return &diag.InvariantViolation{Invariant: InvariantNonRoot, Detail: "final stage has no USER instruction"}
}

func (r *Result) checkExpose(p *profile.StackProfile) error {
	ports := p.Values(detect.FieldExposedPort)
	for _, inst := range r.IR.Find(buildir.Expose) {
		port, _, _ := strings.Cut(inst.Args[0], "/")
		if !slices.Contains(ports, port) {
			return &diag.InvariantViolation{
				Invariant: InvariantExposedPorts,
				Rule:      inst.PolicyID,
				Detail:    fmt.Sprintf("EXPOSE %s is not an exposed port of the profile", inst.Args[0]),
			}
		}
	}
	return nil
}
