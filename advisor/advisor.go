// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

// Package advisor offers optional, read-only suggestions on a finished
// synthesis. Nothing an advisor returns is applied to the artifact.
package advisor

import (
	"context"

	"stackcraft.sh/buildir"
	"stackcraft.sh/profile"
)

// Input is what an advisor sees. NewInput copies everything so an advisor
// cannot alter the pipeline's products.
type Input struct {
	Profile    *profile.StackProfile `json:"profile"`
	IR         *buildir.IR           `json:"ir"`
	Dockerfile string                `json:"dockerfile"`
}

// NewInput deep-copies the profile and IR.
func NewInput(p *profile.StackProfile, ir *buildir.IR, dockerfile string) Input {
	in := Input{Dockerfile: dockerfile}
	if p != nil {
		in.Profile = p.Clone()
	}
	if ir != nil {
		in.IR = ir.Clone()
	}
	return in
}

// Suggestion is one piece of advice.
type Suggestion struct {
	Title  string `json:"title" yaml:"title"`
	Detail string `json:"detail" yaml:"detail"`
	// Line is the Dockerfile line the suggestion is about, zero for the
	// whole file.
	Line int `json:"line,omitempty" yaml:"line,omitempty"`
	// Source names the advisor.
	Source string `json:"source" yaml:"source"`
}

// Advisor produces suggestions.
type Advisor interface {
	Advise(ctx context.Context, in Input) ([]Suggestion, error)
}

// Noop never suggests anything.
type Noop struct{}

func (Noop) Advise(context.Context, Input) ([]Suggestion, error) { return nil, nil }
