// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

// Package explain builds the rationale trace of a synthesis: one node per
// rendered Dockerfile line, citing the profile values and claims behind it.
package explain

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/xlab/treeprint"

	"stackcraft.sh/buildir"
	"stackcraft.sh/detect"
	"stackcraft.sh/policy"
	"stackcraft.sh/profile"
	"stackcraft.sh/render"
)

// Format of a written trace.
type Format string

const (
	FormatText Format = "text"
	FormatTree Format = "tree"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Formats lists the accepted trace formats.
func Formats() []string {
	return []string{string(FormatText), string(FormatTree), string(FormatYAML), string(FormatJSON)}
}

// ClaimRef is a claim that supported a cited value.
type ClaimRef struct {
	Rule       string   `json:"rule" yaml:"rule"`
	Confidence float64  `json:"confidence" yaml:"confidence"`
	Evidence   []string `json:"evidence,omitempty" yaml:"evidence,omitempty"`
}

// Citation is a profile value an instruction was derived from.
type Citation struct {
	Field      detect.Field `json:"field" yaml:"field"`
	Value      string       `json:"value" yaml:"value"`
	Confidence float64      `json:"confidence" yaml:"confidence"`
	Ambiguous  bool         `json:"ambiguous,omitempty" yaml:"ambiguous,omitempty"`
	Claims     []ClaimRef   `json:"claims" yaml:"claims"`
}

// Node explains one rendered line.
type Node struct {
	Line      int        `json:"line" yaml:"line"`
	Text      string     `json:"text" yaml:"text"`
	Stage     string     `json:"stage" yaml:"stage"`
	Policy    string     `json:"policy" yaml:"policy"`
	Reason    string     `json:"reason,omitempty" yaml:"reason,omitempty"`
	Waives    string     `json:"waives,omitempty" yaml:"waives,omitempty"`
	Citations []Citation `json:"citations,omitempty" yaml:"citations,omitempty"`
}

// Dropped is an instruction removed by a later policy.
type Dropped struct {
	Text   string `json:"text" yaml:"text"`
	Policy string `json:"policy" yaml:"policy"`
	By     string `json:"by" yaml:"by"`
	Reason string `json:"reason" yaml:"reason"`
}

// Trace is the full rationale of one synthesis.
type Trace struct {
	Nodes       []Node              `json:"nodes" yaml:"nodes"`
	Decisions   []policy.Decision   `json:"decisions" yaml:"decisions"`
	Superseded  []Dropped           `json:"superseded" yaml:"superseded"`
	Ambiguities []profile.Ambiguity `json:"ambiguities" yaml:"ambiguities"`
}

// Explain builds the trace for a synthesis result. Node n explains line n
// of the rendered artifact.
func Explain(res *policy.Result) (*Trace, error) {
	p := res.Plan.Profile
	t := &Trace{
		Nodes:       make([]Node, 0, len(res.IR.Instructions)),
		Decisions:   []policy.Decision{},
		Superseded:  []Dropped{},
		Ambiguities: append([]profile.Ambiguity{}, p.Ambiguities...),
	}

	waived := map[string]string{}
	for _, d := range res.Decisions {
		switch d.Outcome {
		case policy.Emitted:
		case policy.OptedOut:
			waived[d.Policy] = d.Invariant
			t.Decisions = append(t.Decisions, d)
		default:
			t.Decisions = append(t.Decisions, d)
		}
	}

	for i, inst := range res.IR.Instructions {
		text, err := render.Line(inst)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i+1, err)
		}
		node := Node{
			Line:   i + 1,
			Text:   text,
			Stage:  inst.Stage,
			Policy: inst.PolicyID,
			Reason: inst.Reason,
		}
		if inst.Kind == buildir.User {
			node.Waives = waived[inst.PolicyID]
		}
		for _, f := range inst.Fields {
			node.Citations = append(node.Citations, cite(p, inst, f)...)
		}
		t.Nodes = append(t.Nodes, node)
	}

	for _, s := range res.Superseded {
		text, err := render.Line(s.Instruction)
		if err != nil {
			return nil, err
		}
		t.Superseded = append(t.Superseded, Dropped{
			Text:   text,
			Policy: s.Instruction.PolicyID,
			By:     s.By,
			Reason: s.Reason,
		})
	}
	return t, nil
}

// cite returns the profile entries of f that inst was built from. Of a
// multi-valued field that is the primary entrypoint, or the ports the
// instruction names.
func cite(p *profile.StackProfile, inst buildir.Instruction, f detect.Field) []Citation {
	entries := p.All(f)
	switch f {
	case detect.FieldEntrypoint:
		entries = entries[:min(1, len(entries))]
	case detect.FieldExposedPort:
		entries = slices.DeleteFunc(slices.Clone(entries), func(r profile.Resolved) bool {
			return !slices.Contains(inst.Args, r.Value)
		})
	}

	var out []Citation
	for _, r := range entries {
		c := Citation{
			Field:      f,
			Value:      r.Value,
			Confidence: r.Confidence,
			Ambiguous:  p.IsAmbiguous(f),
		}
		for _, claim := range r.Claims {
			ref := ClaimRef{Rule: claim.RuleID, Confidence: claim.Confidence}
			for _, sig := range claim.Signals {
				ref.Evidence = append(ref.Evidence, sig.String())
			}
			c.Claims = append(c.Claims, ref)
		}
		out = append(out, c)
	}
	return out
}

// Write renders the trace in the requested format.
func (t *Trace) Write(w io.Writer, format Format) error {
	switch format {
	case FormatText, "":
		_, err := io.WriteString(w, t.Text())
		return err
	case FormatTree:
		_, err := io.WriteString(w, t.Tree())
		return err
	case FormatYAML:
		return profile.Encode(w, profile.FormatYAML, t)
	case FormatJSON:
		return profile.Encode(w, profile.FormatJSON, t)
	}
	return fmt.Errorf("unsupported trace format %q", format)
}

func (c Citation) String() string {
	s := fmt.Sprintf("%s = %s (%.2f", c.Field, c.Value, c.Confidence)
	if c.Ambiguous {
		s += ", ambiguous"
	}
	return s + ")"
}

func (r ClaimRef) String() string {
	s := fmt.Sprintf("%s %.2f", r.Rule, r.Confidence)
	if len(r.Evidence) > 0 {
		s += " <- " + strings.Join(r.Evidence, ", ")
	}
	return s
}

// Text renders the numbered trace.
func (t *Trace) Text() string {
	var b strings.Builder
	width := len(fmt.Sprint(len(t.Nodes)))
	indent := strings.Repeat(" ", width+2)

	for _, n := range t.Nodes {
		fmt.Fprintf(&b, "%*d  %s\n", width, n.Line, n.Text)
		fmt.Fprintf(&b, "%s[%s] %s\n", indent, n.Policy, n.Reason)
		if n.Waives != "" {
			fmt.Fprintf(&b, "%swaives %s\n", indent, n.Waives)
		}
		for _, c := range n.Citations {
			fmt.Fprintf(&b, "%s%s\n", indent, c)
			for _, r := range c.Claims {
				fmt.Fprintf(&b, "%s  %s\n", indent, r)
			}
		}
	}

	if len(t.Decisions) > 0 {
		b.WriteString("\nPolicies without output:\n")
		for _, d := range t.Decisions {
			fmt.Fprintf(&b, "  %s: %s", d.Policy, d.Outcome)
			if d.Reason != "" {
				fmt.Fprintf(&b, " (%s)", d.Reason)
			}
			b.WriteString("\n")
		}
	}
	if len(t.Superseded) > 0 {
		b.WriteString("\nSuperseded:\n")
		for _, s := range t.Superseded {
			fmt.Fprintf(&b, "  %s [%s]: %s\n", s.Text, s.Policy, s.Reason)
		}
	}
	if len(t.Ambiguities) > 0 {
		b.WriteString("\nAmbiguities:\n")
		for _, a := range t.Ambiguities {
			candidates := make([]string, len(a.Candidates))
			for i, c := range a.Candidates {
				candidates[i] = fmt.Sprintf("%s %.2f (%s)", c.Value, c.Confidence, c.Rule)
			}
			fmt.Fprintf(&b, "  %s: chose %s from %s\n", a.Field, a.Chosen, strings.Join(candidates, ", "))
		}
	}
	return b.String()
}

// Tree renders the trace grouped by stage.
func (t *Trace) Tree() string {
	tree := treeprint.NewWithRoot("Dockerfile")
	var (
		stage  treeprint.Tree
		opened string
	)
	for _, n := range t.Nodes {
		if stage == nil || n.Stage != opened {
			stage = tree.AddBranch("stage " + n.Stage)
			opened = n.Stage
		}
		line := stage.AddMetaBranch(n.Line, n.Text)
		line.AddNode(fmt.Sprintf("%s: %s", n.Policy, n.Reason))
		if n.Waives != "" {
			line.AddNode("waives " + n.Waives)
		}
		for _, c := range n.Citations {
			cb := line.AddBranch(c.String())
			for _, r := range c.Claims {
				cb.AddNode(r.String())
			}
		}
	}

	if len(t.Decisions) > 0 {
		db := tree.AddBranch("policies without output")
		for _, d := range t.Decisions {
			db.AddMetaNode(d.Outcome, fmt.Sprintf("%s %s", d.Policy, d.Reason))
		}
	}
	if len(t.Superseded) > 0 {
		sb := tree.AddBranch("superseded")
		for _, s := range t.Superseded {
			sb.AddMetaNode(s.Policy, fmt.Sprintf("%s by %s", s.Text, s.By))
		}
	}
	return tree.String()
}
