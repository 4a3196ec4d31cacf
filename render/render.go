// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

// Package render prints a BuildIR as a Dockerfile, one line per
// instruction.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"stackcraft.sh/buildir"
)

// BoundaryPrefix starts the comment line a stage boundary renders as.
const BoundaryPrefix = "# stage: "

// Lines renders every instruction of ir, in order. Line n of the result is
// instruction n.
func Lines(ir *buildir.IR) ([]string, error) {
	lines := make([]string, 0, len(ir.Instructions))
	for i, inst := range ir.Instructions {
		line, err := Line(inst)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i+1, err)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// Render writes the Dockerfile for ir to w.
func Render(w io.Writer, ir *buildir.IR) error {
	lines, err := Lines(ir)
	if err != nil {
		return err
	}
	for _, line := range lines {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// String renders ir to a string.
func String(ir *buildir.IR) (string, error) {
	var b strings.Builder
	if err := Render(&b, ir); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Line renders a single instruction.
func Line(inst buildir.Instruction) (string, error) {
	for _, a := range inst.Args {
		if strings.ContainsAny(a, "\r\n") {
			return "", fmt.Errorf("%s argument %q spans lines", inst.Kind, a)
		}
	}
	if len(inst.Args) == 0 {
		return "", fmt.Errorf("%s has no arguments", inst.Kind)
	}

	switch inst.Kind {
	case buildir.StageBoundary:
		return BoundaryPrefix + inst.Args[0], nil
	case buildir.BaseImage:
		return fmt.Sprintf("FROM %s AS %s", inst.Args[0], inst.Stage), nil
	case buildir.Workdir:
		return "WORKDIR " + inst.Args[0], nil
	case buildir.Env:
		return fmt.Sprintf("ENV %s=%s", inst.Args[0], quote(inst.Args[1], false)), nil
	case buildir.Label:
		return fmt.Sprintf("LABEL %s=%s", quote(inst.Args[0], false), quote(inst.Args[1], true)), nil
	case buildir.Run:
		return "RUN " + inst.Args[0], nil
	case buildir.User:
		return "USER " + inst.Args[0], nil
	case buildir.Expose:
		return "EXPOSE " + inst.Args[0], nil
	case buildir.Entrypoint, buildir.Cmd:
		argv, err := execForm(inst.Args)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s", inst.Kind, argv), nil
	case buildir.Copy:
		return copyLine(inst)
	}
	return "", fmt.Errorf("unknown instruction kind %q", inst.Kind)
}

func copyLine(inst buildir.Instruction) (string, error) {
	var b strings.Builder
	b.WriteString("COPY")
	if inst.From != "" {
		b.WriteString(" --from=" + inst.From)
	}
	if inst.Chown != "" {
		b.WriteString(" --chown=" + inst.Chown)
	}

	spaced := false
	for _, a := range inst.Args {
		if strings.ContainsAny(a, " \t") {
			spaced = true
		}
	}
	if spaced {
		paths, err := execForm(inst.Args)
		if err != nil {
			return "", err
		}
		b.WriteString(" " + paths)
		return b.String(), nil
	}
	b.WriteString(" " + strings.Join(inst.Args, " "))
	return b.String(), nil
}

// execForm encodes argv as a JSON array without HTML escaping.
func execForm(argv []string) (string, error) {
	elems := make([]string, len(argv))
	for i, a := range argv {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(a); err != nil {
			return "", err
		}
		elems[i] = strings.TrimSuffix(buf.String(), "\n")
	}
	return "[" + strings.Join(elems, ", ") + "]", nil
}

// quote double-quotes s when the Dockerfile parser would otherwise split
// or expand it.
func quote(s string, always bool) string {
	if !always && s != "" && !strings.ContainsAny(s, " \t\"'\\$=") {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`)
	return `"` + r.Replace(s) + `"`
}
