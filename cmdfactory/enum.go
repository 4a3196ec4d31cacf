// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package cmdfactory

import (
	"fmt"
	"strings"
)

// EnumFlag is a string flag restricted to a fixed set of values.
type EnumFlag[T ~string] struct {
	allowed []T
	value   T
}

// NewEnumFlag returns an enum flag holding def.
func NewEnumFlag[T ~string](allowed []T, def T) *EnumFlag[T] {
	return &EnumFlag[T]{allowed: allowed, value: def}
}

func (e *EnumFlag[T]) String() string { return string(e.value) }

// Value returns the selected value.
func (e *EnumFlag[T]) Value() T { return e.value }

func (e *EnumFlag[T]) Set(s string) error {
	for _, a := range e.allowed {
		if strings.EqualFold(string(a), s) {
			e.value = a
			return nil
		}
	}
	return fmt.Errorf("must be one of %s", e.Choices())
}

func (e *EnumFlag[T]) Type() string { return "string" }

// Choices lists the allowed values for help text.
func (e *EnumFlag[T]) Choices() string {
	names := make([]string, len(e.allowed))
	for i, a := range e.allowed {
		names[i] = string(a)
	}
	return "[" + strings.Join(names, ", ") + "]"
}
