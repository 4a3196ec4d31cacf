// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package iostreams

import "github.com/muesli/termenv"

// ColorScheme styles text for the output stream. Every method returns its
// input unchanged when color is disabled.
type ColorScheme struct {
	enabled bool
	profile termenv.Profile
}

func (c *ColorScheme) color(s, ansi string) string {
	if !c.enabled {
		return s
	}
	return termenv.String(s).Foreground(c.profile.Color(ansi)).String()
}

func (c *ColorScheme) Red(s string) string    { return c.color(s, "1") }
func (c *ColorScheme) Green(s string) string  { return c.color(s, "2") }
func (c *ColorScheme) Yellow(s string) string { return c.color(s, "3") }
func (c *ColorScheme) Cyan(s string) string   { return c.color(s, "6") }
func (c *ColorScheme) Gray(s string) string   { return c.color(s, "8") }

func (c *ColorScheme) Bold(s string) string {
	if !c.enabled {
		return s
	}
	return termenv.String(s).Bold().String()
}
