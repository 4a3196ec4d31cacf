// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package utils

import (
	"cmp"
	"slices"
	"strings"
)

// RemoveDuplicates removes adjacent duplicates from a sorted slice in-place.
func RemoveDuplicates[T comparable](items []T) []T {
	if len(items) == 0 {
		return items
	}

	j := 0
	for i := 1; i < len(items); i++ {
		if items[i] != items[j] {
			j++
			items[j] = items[i]
		}
	}
	return items[:j+1]
}

// SortedUnique returns a sorted copy of items without duplicates. The input
// is left untouched.
func SortedUnique[T cmp.Ordered](items []T) []T {
	out := slices.Clone(items)
	slices.Sort(out)
	return RemoveDuplicates(out)
}

// FirstNonEmpty returns the first value that is not blank.
func FirstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
