// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

// Package pipeline runs detection and synthesis end to end: evidence,
// claims, profile, policy, Dockerfile, rationale and review.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"stackcraft.sh/advisor"
	"stackcraft.sh/detect"
	"stackcraft.sh/diag"
	"stackcraft.sh/evidence"
	"stackcraft.sh/explain"
	"stackcraft.sh/imageref"
	"stackcraft.sh/log"
	"stackcraft.sh/policy"
	"stackcraft.sh/profile"
	"stackcraft.sh/render"
	"stackcraft.sh/review"
)

// ErrNoLanguage is returned when no claim determines the language.
var ErrNoLanguage = errors.New("no language could be determined")

// Status summarizes a run.
type Status string

const (
	StatusOK       Status = "ok"
	StatusWarnings Status = "warnings"
	StatusFailed   Status = "failed"
)

// AnswerRule prefixes the rule id of claims built from user answers.
const AnswerRule = "answer."

// Options configure a run. The zero value uses every default.
type Options struct {
	Collector []evidence.Option
	Rules     *detect.Registry
	Epsilon   float64

	Policy   *policy.Config
	Policies *policy.Registry
	Catalog  *imageref.Catalog
	Lock     *imageref.Lock
	// Resolver, when set, looks up the digests of the selected base images
	// before synthesis and adds them to the lock.
	Resolver imageref.Resolver

	// Answers settle profile fields explicitly, outranking every detected
	// claim.
	Answers map[detect.Field]string

	// Advisor is consulted after synthesis; nil disables it.
	Advisor advisor.Advisor
}

// Result holds every product of a run. Fields after the failing stage are
// nil.
type Result struct {
	Root        string                `json:"root" yaml:"root"`
	Status      Status                `json:"status" yaml:"status"`
	Evidence    *evidence.Result      `json:"evidence,omitempty" yaml:"evidence,omitempty"`
	Claims      []detect.Claim        `json:"claims,omitempty" yaml:"claims,omitempty"`
	Profile     *profile.StackProfile `json:"profile,omitempty" yaml:"profile,omitempty"`
	Synthesis   *policy.Result        `json:"synthesis,omitempty" yaml:"synthesis,omitempty"`
	Dockerfile  string                `json:"dockerfile,omitempty" yaml:"dockerfile,omitempty"`
	Trace       *explain.Trace        `json:"trace,omitempty" yaml:"trace,omitempty"`
	Review      *review.Report        `json:"review,omitempty" yaml:"review,omitempty"`
	Questions   []advisor.Question    `json:"questions,omitempty" yaml:"questions,omitempty"`
	Suggestions []advisor.Suggestion  `json:"suggestions,omitempty" yaml:"suggestions,omitempty"`
	Diagnostics diag.List             `json:"diagnostics" yaml:"diagnostics"`
}

// Detect runs the stages up to the profile.
func Detect(ctx context.Context, root string, opts Options) (*Result, error) {
	res := &Result{Root: root, Status: StatusFailed, Diagnostics: diag.List{}}

	ev, err := evidence.New(opts.Collector...).Collect(ctx, root)
	if err != nil {
		return res, err
	}
	res.Root = ev.Root
	res.Evidence = ev
	res.Diagnostics = append(res.Diagnostics, ev.Diagnostics()...)

	rules := opts.Rules
	if rules == nil {
		rules = detect.Default()
	}
	claims, diags := detect.NewEngine(rules).Evaluate(ctx, ev.Signals)
	res.Diagnostics = append(res.Diagnostics, diags...)
	res.Claims = append(claims, answerClaims(opts.Answers)...)

	var resolverOpts []profile.Option
	if opts.Epsilon > 0 {
		resolverOpts = append(resolverOpts, profile.WithEpsilon(opts.Epsilon))
	}
	p, diags := profile.NewResolver(resolverOpts...).Resolve(res.Claims)
	res.Diagnostics = append(res.Diagnostics, diags...)
	res.Profile = p
	res.Questions = advisor.Clarifications(p)

	if !p.Has(detect.FieldLanguage) {
		return res, fmt.Errorf("%s: %w", res.Root, ErrNoLanguage)
	}
	res.Status = status(res.Diagnostics)
	return res, nil
}

func answerClaims(answers map[detect.Field]string) []detect.Claim {
	fields := make([]string, 0, len(answers))
	for f := range answers {
		fields = append(fields, string(f))
	}
	sort.Strings(fields)

	var out []detect.Claim
	for _, f := range fields {
		field := detect.Field(f)
		if v := answers[field]; v != "" && field.Valid() {
			out = append(out, detect.Claim{Field: field, Value: v, Confidence: 1, RuleID: AnswerRule + f})
		}
	}
	return out
}

// Run executes every stage. On failure the returned error wraps
// ErrNoLanguage or is a *diag.InvariantViolation, and the result holds the
// products of the stages that completed.
func Run(ctx context.Context, root string, opts Options) (*Result, error) {
	res, err := Detect(ctx, root, opts)
	if err != nil {
		return res, err
	}
	res.Status = StatusFailed

	cfg := policy.DefaultConfig()
	if opts.Policy != nil {
		cfg = *opts.Policy
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog = imageref.Default()
	}
	lock := opts.Lock
	if lock == nil {
		lock = imageref.NewLock()
	}

	if opts.Resolver != nil {
		lock, err = resolveDigests(ctx, opts.Resolver, res.Profile, cfg, catalog, lock)
		if err != nil {
			res.Diagnostics = append(res.Diagnostics, diag.Warn(diag.ScanWarning, "imageref", "resolving base image digests: %v", err))
		}
	}

	engine, err := policy.NewEngine(opts.Policies,
		policy.WithConfig(cfg),
		policy.WithCatalog(catalog),
		policy.WithLock(lock),
	)
	if err != nil {
		return res, err
	}
	synth, err := engine.Synthesize(ctx, res.Profile)
	if err != nil {
		var v *diag.InvariantViolation
		if errors.As(err, &v) {
			res.Diagnostics = append(res.Diagnostics, v.Diagnostic())
		}
		return res, err
	}
	res.Synthesis = synth
	res.Diagnostics = append(res.Diagnostics, synth.Diagnostics...)

	if res.Dockerfile, err = render.String(synth.IR); err != nil {
		return res, err
	}
	if res.Trace, err = explain.Explain(synth); err != nil {
		return res, err
	}

	report, err := review.ReviewString(res.Dockerfile)
	if err != nil {
		return res, err
	}
	res.Review = report
	for _, f := range report.Findings {
		res.Diagnostics = append(res.Diagnostics, f.Diagnostic("Dockerfile"))
	}

	if opts.Advisor != nil {
		in := advisor.NewInput(res.Profile, synth.IR, res.Dockerfile)
		suggestions, err := opts.Advisor.Advise(ctx, in)
		if err != nil {
			res.Diagnostics = append(res.Diagnostics, diag.Warn(diag.InternalRuleError, "advisor", "%v", err))
		}
		res.Suggestions = suggestions
	}

	res.Status = status(res.Diagnostics)

	log.G(ctx).WithFields(logrus.Fields{
		"root":        res.Root,
		"status":      res.Status,
		"diagnostics": len(res.Diagnostics),
		"lines":       len(synth.IR.Instructions),
	}).Debug("pipeline finished")

	return res, nil
}

// resolveDigests adds the digests of the base images the profile selects
// to lock.
func resolveDigests(ctx context.Context, r imageref.Resolver, p *profile.StackProfile, cfg policy.Config, catalog *imageref.Catalog, lock *imageref.Lock) (*imageref.Lock, error) {
	plan, _, err := policy.NewPlan(p, cfg, catalog)
	if err != nil {
		return lock, err
	}
	refs := []string{plan.Final.Ref}
	if plan.MultiStage {
		refs = append(refs, plan.Build.Ref)
	}
	var missing []string
	for _, ref := range refs {
		if _, ok := lock.Digest(ref); !ok {
			missing = append(missing, ref)
		}
	}
	if len(missing) == 0 {
		return lock, nil
	}
	refreshed, err := imageref.Refresh(ctx, r, lock, missing...)
	if err != nil {
		return lock, err
	}
	return refreshed, nil
}

// status grades a run that produced its products. Info diagnostics do not
// count.
func status(diags diag.List) Status {
	switch diags.Max() {
	case diag.SeverityError:
		return StatusFailed
	case diag.SeverityWarning:
		return StatusWarnings
	}
	return StatusOK
}
