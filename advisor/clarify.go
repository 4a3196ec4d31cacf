// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package advisor

import (
	"fmt"
	"slices"

	"stackcraft.sh/detect"
	"stackcraft.sh/profile"
)

// QuestionType tells how a question is answered.
type QuestionType string

const (
	Selection QuestionType = "selection"
	FreeForm  QuestionType = "input"
)

// Question asks the user for a value the detector could not settle.
type Question struct {
	ID       string       `json:"id" yaml:"id"`
	Field    detect.Field `json:"field" yaml:"field"`
	Type     QuestionType `json:"type" yaml:"type"`
	Question string       `json:"question" yaml:"question"`
	Options  []string     `json:"options,omitempty" yaml:"options,omitempty"`
}

// Clarifications returns the questions a profile leaves open: a missing or
// ambiguous entrypoint and any other ambiguous field. The result depends on
// the profile only.
func Clarifications(p *profile.StackProfile) []Question {
	var out []Question

	if !p.Has(detect.FieldEntrypoint) && !p.Has(detect.FieldRunCommand) {
		out = append(out, Question{
			ID:       "entrypoint_input",
			Field:    detect.FieldEntrypoint,
			Type:     FreeForm,
			Question: "No application entrypoint was detected. Which file or module starts the application?",
		})
	}

	for _, a := range p.Ambiguities {
		var options []string
		for _, c := range a.Candidates {
			if !slices.Contains(options, c.Value) {
				options = append(options, c.Value)
			}
		}
		q := Question{
			ID:       fmt.Sprintf("%s_selection", a.Field),
			Field:    a.Field,
			Type:     Selection,
			Question: fmt.Sprintf("Several values of %s are equally likely; %s was chosen. Which one should be used?", a.Field, a.Chosen),
			Options:  options,
		}
		if a.Field == detect.FieldEntrypoint {
			q.Question = fmt.Sprintf("Multiple possible application entrypoints were detected; %s was chosen. Which one should be used in production?", a.Chosen)
		}
		out = append(out, q)
	}
	return out
}
