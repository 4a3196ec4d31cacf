// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

// Package buildir defines the ordered, stage-grouped build instructions
// the policy engine emits and the renderer prints.
package buildir

import (
	"fmt"
	"slices"
	"strings"

	"stackcraft.sh/detect"
	"stackcraft.sh/diag"
)

// Kind of a build instruction.
type Kind string

const (
	StageBoundary Kind = "STAGE_BOUNDARY"
	BaseImage     Kind = "BASE_IMAGE"
	Workdir       Kind = "WORKDIR"
	Env           Kind = "ENV"
	Label         Kind = "LABEL"
	Copy          Kind = "COPY"
	Run           Kind = "RUN"
	User          Kind = "USER"
	Expose        Kind = "EXPOSE"
	Entrypoint    Kind = "ENTRYPOINT"
	Cmd           Kind = "CMD"
)

// Instruction is one build step.
//
// Args by kind: STAGE_BOUNDARY [name], BASE_IMAGE [ref], WORKDIR [dir],
// ENV and LABEL [key, value], COPY [src..., dest], RUN [shell command],
// USER [user], EXPOSE [port], ENTRYPOINT and CMD [argv...].
type Instruction struct {
	Kind     Kind     `json:"kind" yaml:"kind"`
	Args     []string `json:"args" yaml:"args"`
	Stage    string   `json:"stage" yaml:"stage"`
	PolicyID string   `json:"policy" yaml:"policy"`
	// From and Chown are COPY flags.
	From  string `json:"from,omitempty" yaml:"from,omitempty"`
	Chown string `json:"chown,omitempty" yaml:"chown,omitempty"`
	// Reason and Fields are rationale for the explainer; the renderer
	// ignores them.
	Reason string         `json:"reason,omitempty" yaml:"reason,omitempty"`
	Fields []detect.Field `json:"fields,omitempty" yaml:"fields,omitempty"`
}

func (i Instruction) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%s]", i.Kind, i.Stage)
	if i.From != "" {
		fmt.Fprintf(&b, " --from=%s", i.From)
	}
	if i.Chown != "" {
		fmt.Fprintf(&b, " --chown=%s", i.Chown)
	}
	if len(i.Args) > 0 {
		fmt.Fprintf(&b, " %s", strings.Join(i.Args, " "))
	}
	return b.String()
}

// Because attaches a rationale and the profile fields it consulted.
func (i Instruction) Because(reason string, fields ...detect.Field) Instruction {
	i.Reason = reason
	i.Fields = slices.Clone(fields)
	return i
}

// Effect returns the key two instructions in one stage must share to
// conflict, or "" for instructions that accumulate (RUN, COPY).
func (i Instruction) Effect() string {
	switch i.Kind {
	case User, Entrypoint, Cmd, Workdir, BaseImage, StageBoundary:
		return string(i.Kind)
	case Env, Label, Expose:
		if len(i.Args) > 0 {
			return string(i.Kind) + ":" + i.Args[0]
		}
	}
	return ""
}

func (i Instruction) clone() Instruction {
	i.Args = slices.Clone(i.Args)
	i.Fields = slices.Clone(i.Fields)
	return i
}

func newInstruction(kind Kind, stage string, args ...string) Instruction {
	return Instruction{Kind: kind, Stage: stage, Args: slices.Clone(args)}
}

// NewBoundary opens stage.
func NewBoundary(stage string) Instruction { return newInstruction(StageBoundary, stage, stage) }

// NewBaseImage sets the base image of stage.
func NewBaseImage(stage, ref string) Instruction { return newInstruction(BaseImage, stage, ref) }

func NewWorkdir(stage, dir string) Instruction { return newInstruction(Workdir, stage, dir) }

func NewEnv(stage, key, value string) Instruction { return newInstruction(Env, stage, key, value) }

func NewLabel(stage, key, value string) Instruction { return newInstruction(Label, stage, key, value) }

func NewRun(stage, command string) Instruction { return newInstruction(Run, stage, command) }

func NewUser(stage, user string) Instruction { return newInstruction(User, stage, user) }

func NewExpose(stage, port string) Instruction { return newInstruction(Expose, stage, port) }

func NewEntrypoint(stage string, argv ...string) Instruction {
	return newInstruction(Entrypoint, stage, argv...)
}

func NewCmd(stage string, argv ...string) Instruction { return newInstruction(Cmd, stage, argv...) }

// NewCopy copies srcs from the build context to dest.
func NewCopy(stage string, srcs []string, dest string) Instruction {
	return newInstruction(Copy, stage, append(slices.Clone(srcs), dest)...)
}

// NewCopyFrom copies srcs out of an earlier stage.
func NewCopyFrom(stage, from string, srcs []string, dest string) Instruction {
	i := NewCopy(stage, srcs, dest)
	i.From = from
	return i
}

// WithChown sets COPY --chown.
func (i Instruction) WithChown(owner string) Instruction {
	i.Chown = owner
	return i
}

// Stage is a named build stage.
type Stage struct {
	Name  string `json:"name" yaml:"name"`
	Final bool   `json:"final,omitempty" yaml:"final,omitempty"`
}

// IR is the ordered instruction sequence grouped by stage.
type IR struct {
	Stages       []Stage       `json:"stages" yaml:"stages"`
	Instructions []Instruction `json:"instructions" yaml:"instructions"`
}

// Stage looks a stage up by name and returns its position.
func (ir *IR) Stage(name string) (Stage, int, bool) {
	for i, s := range ir.Stages {
		if s.Name == name {
			return s, i, true
		}
	}
	return Stage{}, -1, false
}

// Final returns the final stage.
func (ir *IR) Final() (Stage, bool) {
	for _, s := range ir.Stages {
		if s.Final {
			return s, true
		}
	}
	return Stage{}, false
}

// InStage returns the instructions of one stage in order.
func (ir *IR) InStage(name string) []Instruction {
	var out []Instruction
	for _, inst := range ir.Instructions {
		if inst.Stage == name {
			out = append(out, inst)
		}
	}
	return out
}

// Find returns the instructions of the given kind, in order.
func (ir *IR) Find(kind Kind) []Instruction {
	var out []Instruction
	for _, inst := range ir.Instructions {
		if inst.Kind == kind {
			out = append(out, inst)
		}
	}
	return out
}

// Clone returns a deep copy.
func (ir *IR) Clone() *IR {
	out := &IR{Stages: slices.Clone(ir.Stages)}
	for _, inst := range ir.Instructions {
		out.Instructions = append(out.Instructions, inst.clone())
	}
	return out
}

// Invariant names reported by Validate.
const (
	InvariantSingleFinal  = "single-final-stage"
	InvariantStageOrder   = "stage-order"
	InvariantStageBase    = "stage-starts-with-base-image"
	InvariantCopyFrom     = "copy-from-earlier-stage"
	InvariantWellFormed   = "well-formed-instruction"
	InvariantUnknownStage = "instruction-in-declared-stage"
)

func violation(invariant string, inst Instruction, format string, args ...interface{}) *diag.InvariantViolation {
	return &diag.InvariantViolation{
		Invariant: invariant,
		Rule:      inst.PolicyID,
		Detail:    fmt.Sprintf(format, args...),
	}
}

var minArgs = map[Kind]int{
	StageBoundary: 1,
	BaseImage:     1,
	Workdir:       1,
	Env:           2,
	Label:         2,
	Copy:          2,
	Run:           1,
	User:          1,
	Expose:        1,
	Entrypoint:    1,
	Cmd:           1,
}

// Validate checks that the instruction has a known kind and the arguments
// that kind needs.
func (i Instruction) Validate() error {
	n, ok := minArgs[i.Kind]
	if !ok {
		return violation(InvariantWellFormed, i, "unknown instruction kind %q", i.Kind)
	}
	if len(i.Args) < n {
		return violation(InvariantWellFormed, i, "%s needs at least %d argument(s)", i.Kind, n)
	}
	for _, a := range i.Args {
		if strings.TrimSpace(a) == "" && i.Kind != Env && i.Kind != Label {
			return violation(InvariantWellFormed, i, "%s has an empty argument", i.Kind)
		}
	}
	return nil
}

// Validate checks the structural invariants of the IR: exactly one final
// stage and it is last; instructions are grouped by stage in declaration
// order; every stage opens with its boundary followed by its base image;
// COPY --from names an earlier stage.
func (ir *IR) Validate() error {
	finals := 0
	for i, s := range ir.Stages {
		if s.Final {
			finals++
			if i != len(ir.Stages)-1 {
				return &diag.InvariantViolation{Invariant: InvariantSingleFinal, Detail: fmt.Sprintf("final stage %q is not the last stage", s.Name)}
			}
		}
	}
	if finals != 1 {
		return &diag.InvariantViolation{Invariant: InvariantSingleFinal, Detail: fmt.Sprintf("%d final stages declared", finals)}
	}

	current := -1
	position := 0
	for _, inst := range ir.Instructions {
		if err := inst.Validate(); err != nil {
			return err
		}

		_, idx, ok := ir.Stage(inst.Stage)
		if !ok {
			return violation(InvariantUnknownStage, inst, "stage %q is not declared", inst.Stage)
		}
		switch {
		case idx < current:
			return violation(InvariantStageOrder, inst, "%s in stage %q appears after stage %q", inst.Kind, inst.Stage, ir.Stages[current].Name)
		case idx > current:
			if idx != current+1 {
				return violation(InvariantStageOrder, inst, "stage %q opened before stage %q", inst.Stage, ir.Stages[current+1].Name)
			}
			current = idx
			position = 0
		}

		switch position {
		case 0:
			if inst.Kind != StageBoundary {
				return violation(InvariantStageBase, inst, "stage %q does not open with a boundary", inst.Stage)
			}
		case 1:
			if inst.Kind != BaseImage {
				return violation(InvariantStageBase, inst, "stage %q does not start with its base image", inst.Stage)
			}
		default:
			if inst.Kind == StageBoundary || inst.Kind == BaseImage {
				return violation(InvariantStageBase, inst, "stage %q has a second %s", inst.Stage, inst.Kind)
			}
		}
		position++

		if inst.From != "" {
			if inst.Kind != Copy {
				return violation(InvariantWellFormed, inst, "--from on %s", inst.Kind)
			}
			_, fromIdx, ok := ir.Stage(inst.From)
			if !ok || fromIdx >= idx {
				return violation(InvariantCopyFrom, inst, "COPY --from=%s in stage %q does not reference an earlier stage", inst.From, inst.Stage)
			}
		}
	}

	if current != len(ir.Stages)-1 {
		return &diag.InvariantViolation{Invariant: InvariantStageBase, Detail: "a declared stage has no instructions"}
	}
	return nil
}
