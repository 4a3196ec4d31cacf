// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package review

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"

	"stackcraft.sh/cmdfactory"
	"stackcraft.sh/diag"
	"stackcraft.sh/iostreams"
	stackreview "stackcraft.sh/review"
)

type ReviewOptions struct {
	Strict bool `long:"strict" usage:"Exit with status 3 when warnings were found"`
}

func NewCmd() *cobra.Command {
	cmd, err := cmdfactory.New(&ReviewOptions{}, cobra.Command{
		Short: "Review an existing Dockerfile",
		Use:   "review [FLAGS] [DOCKERFILE]",
		Args:  cobra.MaximumNArgs(1),
		Long: heredoc.Doc(`
			Check a Dockerfile for common mistakes: unpinned or oversized base
			images, missing USER or start command, pip and apt caches left in
			layers and requirement files that were never copied.

			Reads ./Dockerfile by default and standard input for -. Exits with
			status 1 when errors were found.`),
		Example: heredoc.Doc(`
			$ stackcraft review
			$ stackcraft generate -o - | stackcraft review -`),
		Annotations: map[string]string{
			cmdfactory.AnnotationHelpGroup: "inspect",
		},
	})
	if err != nil {
		panic(err)
	}
	return cmd
}

func (opts *ReviewOptions) Run(ctx context.Context, args []string) error {
	ios := iostreams.G(ctx)
	cs := ios.ColorScheme()

	path := "Dockerfile"
	if len(args) > 0 {
		path = args[0]
	}

	var in io.Reader = ios.In
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	report, err := stackreview.Review(in)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	for _, f := range report.Findings {
		sep := ":"
		if f.Line == 0 {
			sep = ": "
		}
		line := path + sep + f.String()
		switch f.Severity {
		case diag.SeverityError:
			line = cs.Red(line)
		case diag.SeverityWarning:
			line = cs.Yellow(line)
		}
		fmt.Fprintln(ios.Out, line)
	}

	errs, warns := report.Count(diag.SeverityError), report.Count(diag.SeverityWarning)
	switch {
	case errs > 0:
		return cmdfactory.Exit(1, fmt.Errorf("%s: %s, %s", path,
			english.Plural(errs, "error", ""), english.Plural(warns, "warning", "")))
	case warns > 0 && opts.Strict:
		return cmdfactory.Exit(3, nil)
	case len(report.Findings) == 0:
		fmt.Fprintln(ios.ErrOut, cs.Green(path+": no findings"))
	}
	return nil
}
