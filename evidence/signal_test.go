// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package evidence

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSetKeepsListsWithSameRendering(t *testing.T) {
	joined := fieldSignal("Procfile", "web", List("a, b"))
	split := fieldSignal("Procfile", "web", List("a", "b"))
	require.Equal(t, joined.Value.String(), split.Value.String())

	set := NewSet(split, joined, split)
	require.Equal(t, 2, set.Len())
	require.Equal(t, []Signal{split, joined}, set.All())
}

func TestNewSetOrdersValues(t *testing.T) {
	set := NewSet(
		fieldSignal("go.mod", "require", List("b")),
		fieldSignal("go.mod", "require", List("a", "c")),
		fieldSignal("go.mod", "require", List("a")),
		fieldSignal("package.json", "port", Number(10)),
		fieldSignal("package.json", "port", Number(9)),
	)

	var got []string
	for _, sig := range set.All() {
		got = append(got, sig.Value.String())
	}
	require.Equal(t, []string{"[a]", "[a, c]", "[b]", "9", "10"}, got)
}
