// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"stackcraft.sh/log"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// ErrInvalidResponse is returned when the model's answer does not match
// the response schema.
var ErrInvalidResponse = errors.New("advisor: invalid response from model")

const prompt = `You review Dockerfiles produced by a deterministic generator.
Suggest improvements to the Dockerfile below for size, security, build caching
and startup behaviour. Do not rewrite the file. Refer to Dockerfile lines by
number when a suggestion concerns one line, otherwise use line 0.
The detected stack profile and the build instructions are attached as JSON.`

// contentGenerator is the part of *genai.Models the advisor uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini asks a Gemini model for suggestions.
type Gemini struct {
	models contentGenerator
	model  string
}

// NewGemini connects to the Gemini API. An empty apiKey lets the client
// read GEMINI_API_KEY or GOOGLE_API_KEY from the environment.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &Gemini{models: cli.Models, model: model}, nil
}

// Name identifies the advisor in suggestions.
func (g *Gemini) Name() string { return "gemini:" + g.model }

var responseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"suggestions": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"title":  {Type: genai.TypeString},
					"detail": {Type: genai.TypeString},
					"line":   {Type: genai.TypeInteger},
				},
				Required: []string{"title", "detail"},
			},
		},
	},
	Required: []string{"suggestions"},
}

type response struct {
	Suggestions []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Line   int    `json:"line"`
	} `json:"suggestions"`
}

func (g *Gemini) Advise(ctx context.Context, in Input) ([]Suggestion, error) {
	attached, err := json.MarshalIndent(struct {
		Profile interface{} `json:"profile"`
		IR      interface{} `json:"ir"`
	}{in.Profile, in.IR}, "", "  ")
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\n[DOCKERFILE]\n")
	for i, line := range strings.Split(strings.TrimRight(in.Dockerfile, "\n"), "\n") {
		fmt.Fprintf(&b, "%d: %s\n", i+1, line)
	}
	b.WriteString("\n[INPUT JSON]\n")
	b.Write(attached)

	temperature := float32(0.2)
	resp, err := g.models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: b.String()}}}},
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   responseSchema,
			Temperature:      &temperature,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, ErrInvalidResponse
	}

	var parsed response
	if err := json.Unmarshal([]byte(resp.Candidates[0].Content.Parts[0].Text), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	lines := strings.Count(in.Dockerfile, "\n")
	out := make([]Suggestion, 0, len(parsed.Suggestions))
	for _, s := range parsed.Suggestions {
		if strings.TrimSpace(s.Title) == "" {
			continue
		}
		line := s.Line
		if line < 0 || line > lines {
			line = 0
		}
		out = append(out, Suggestion{Title: s.Title, Detail: s.Detail, Line: line, Source: g.Name()})
	}

	log.G(ctx).WithFields(logrus.Fields{
		"model":       g.model,
		"suggestions": len(out),
	}).Debug("advisor responded")

	return out, nil
}
