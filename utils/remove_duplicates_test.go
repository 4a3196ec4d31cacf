// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package utils

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSortedUnique(t *testing.T) {
	in := []string{"pip", "npm", "pip", "cargo", "npm"}
	require.Equal(t, []string{"cargo", "npm", "pip"}, SortedUnique(in))
	require.Equal(t, []string{"pip", "npm", "pip", "cargo", "npm"}, in)

	require.Empty(t, SortedUnique([]int{}))
}

func TestFirstNonEmpty(t *testing.T) {
	require.Equal(t, "index.js", FirstNonEmpty("", "  ", "index.js", "server.js"))
	require.Equal(t, "", FirstNonEmpty())
}
