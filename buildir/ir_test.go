// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package buildir

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"stackcraft.sh/diag"
)

func twoStage() *IR {
	return &IR{
		Stages: []Stage{{Name: "build"}, {Name: "final", Final: true}},
		Instructions: []Instruction{
			NewBoundary("build"),
			NewBaseImage("build", "golang:1.22-bookworm"),
			NewRun("build", "go build -o /out/app ."),
			NewBoundary("final"),
			NewBaseImage("final", "gcr.io/distroless/static-debian12:nonroot"),
			NewCopyFrom("final", "build", []string{"/out/app"}, "/app/app"),
			NewUser("final", "65532:65532"),
			NewEntrypoint("final", "/app/app"),
		},
	}
}

func invariantOf(t *testing.T, err error) string {
	t.Helper()
	var v *diag.InvariantViolation
	require.True(t, errors.As(err, &v), "expected an invariant violation, got %v", err)
	return v.Invariant
}

func TestValidate(t *testing.T) {
	require.NoError(t, twoStage().Validate())

	t.Run("two finals", func(t *testing.T) {
		ir := twoStage()
		ir.Stages[0].Final = true
		require.Equal(t, InvariantSingleFinal, invariantOf(t, ir.Validate()))
	})

	t.Run("no final", func(t *testing.T) {
		ir := twoStage()
		ir.Stages[1].Final = false
		require.Equal(t, InvariantSingleFinal, invariantOf(t, ir.Validate()))
	})

	t.Run("copy from later stage", func(t *testing.T) {
		ir := twoStage()
		bad := NewCopyFrom("final", "final", []string{"/x"}, "/y")
		bad.PolicyID = "artifact.copy"
		ir.Instructions[5] = bad
		err := ir.Validate()
		require.Equal(t, InvariantCopyFrom, invariantOf(t, err))
		require.ErrorContains(t, err, "artifact.copy")
	})

	t.Run("missing base image", func(t *testing.T) {
		ir := twoStage()
		ir.Instructions = append(ir.Instructions[:4], ir.Instructions[5:]...)
		require.Equal(t, InvariantStageBase, invariantOf(t, ir.Validate()))
	})

	t.Run("interleaved stages", func(t *testing.T) {
		ir := twoStage()
		ir.Instructions = append(ir.Instructions, NewRun("build", "true"))
		require.Equal(t, InvariantStageOrder, invariantOf(t, ir.Validate()))
	})

	t.Run("undeclared stage", func(t *testing.T) {
		ir := twoStage()
		ir.Instructions = append(ir.Instructions, NewRun("test", "true"))
		require.Equal(t, InvariantUnknownStage, invariantOf(t, ir.Validate()))
	})

	t.Run("empty entrypoint", func(t *testing.T) {
		ir := twoStage()
		ir.Instructions[7] = NewEntrypoint("final")
		require.Equal(t, InvariantWellFormed, invariantOf(t, ir.Validate()))
	})
}

func TestEffect(t *testing.T) {
	require.Equal(t, "USER", NewUser("final", "app").Effect())
	require.Equal(t, "ENV:PORT", NewEnv("final", "PORT", "8080").Effect())
	require.Equal(t, "EXPOSE:8080", NewExpose("final", "8080").Effect())
	require.Equal(t, "", NewRun("final", "true").Effect())
	require.Equal(t, "", NewCopy("final", []string{"."}, ".").Effect())
}

func TestCloneIsDeep(t *testing.T) {
	ir := twoStage()
	c := ir.Clone()
	c.Instructions[7].Args[0] = "/bin/sh"
	c.Stages[0].Name = "changed"

	require.Equal(t, "/app/app", ir.Instructions[7].Args[0])
	require.Equal(t, "build", ir.Stages[0].Name)
}

func TestAccessors(t *testing.T) {
	ir := twoStage()

	final, ok := ir.Final()
	require.True(t, ok)
	require.Equal(t, "final", final.Name)

	require.Len(t, ir.InStage("build"), 3)
	require.Len(t, ir.Find(BaseImage), 2)

	_, idx, ok := ir.Stage("final")
	require.True(t, ok)
	require.Equal(t, 1, idx)
}
