// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

// Package iostreams carries the process's input and output streams and
// their terminal capabilities through a context.Context.
package iostreams

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

type IOStreams struct {
	In     io.Reader
	Out    io.Writer
	ErrOut io.Writer

	stdoutTTY    bool
	colorEnabled bool
	profile      termenv.Profile
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// System returns streams bound to the process's standard streams. Color is
// enabled when stdout is a terminal and the environment allows it.
func System() *IOStreams {
	tty := isTerminal(os.Stdout)
	profile := termenv.EnvColorProfile()
	return &IOStreams{
		In:           os.Stdin,
		Out:          os.Stdout,
		ErrOut:       os.Stderr,
		stdoutTTY:    tty,
		colorEnabled: tty && profile != termenv.Ascii,
		profile:      profile,
	}
}

// Test returns streams over buffers, with color disabled.
func Test() (*IOStreams, *bytes.Buffer, *bytes.Buffer, *bytes.Buffer) {
	in, out, errOut := &bytes.Buffer{}, &bytes.Buffer{}, &bytes.Buffer{}
	return &IOStreams{In: in, Out: out, ErrOut: errOut, profile: termenv.Ascii}, in, out, errOut
}

func (s *IOStreams) IsStdoutTTY() bool { return s.stdoutTTY }

func (s *IOStreams) ColorEnabled() bool { return s.colorEnabled }

// SetColorEnabled forces color on or off.
func (s *IOStreams) SetColorEnabled(enabled bool) {
	s.colorEnabled = enabled
	if enabled && s.profile == termenv.Ascii {
		s.profile = termenv.ANSI
	}
}

func (s *IOStreams) ColorScheme() *ColorScheme {
	return &ColorScheme{enabled: s.colorEnabled, profile: s.profile}
}

type iostreamsKey struct{}

// WithIOStreams returns a context carrying s.
func WithIOStreams(ctx context.Context, s *IOStreams) context.Context {
	return context.WithValue(ctx, iostreamsKey{}, s)
}

// G returns the streams in the context, or the system streams.
func G(ctx context.Context) *IOStreams {
	if s, ok := ctx.Value(iostreamsKey{}).(*IOStreams); ok && s != nil {
		return s
	}
	return System()
}
