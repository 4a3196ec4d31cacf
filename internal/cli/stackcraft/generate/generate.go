// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package generate

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/MakeNowJust/heredoc"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"stackcraft.sh/advisor"
	"stackcraft.sh/cmdfactory"
	"stackcraft.sh/config"
	"stackcraft.sh/explain"
	"stackcraft.sh/internal/cli"
	"stackcraft.sh/iostreams"
	"stackcraft.sh/log"
	"stackcraft.sh/pipeline"
)

// ExitWarnings is the exit code of a run with warnings under --strict.
const ExitWarnings = 3

type GenerateOptions struct {
	cli.DetectFlags
	cli.PolicyFlags

	Output    string `long:"output" short:"o" usage:"Where to write the Dockerfile, - for stdout (default DIR/Dockerfile)"`
	Rationale string `long:"rationale" usage:"Also write the rationale to this path (.json, .yaml or text)"`
	Advise    bool   `long:"advise" usage:"Ask the Gemini advisor for suggestions (never applied)"`
	Strict    bool   `long:"strict" usage:"Exit with status 3 when the run produced warnings"`
	Force     bool   `long:"force" short:"f" usage:"Overwrite existing output files"`
}

func NewCmd() *cobra.Command {
	cmd, err := cmdfactory.New(&GenerateOptions{}, cobra.Command{
		Short: "Generate a Dockerfile for a repository",
		Use:   "generate [FLAGS] [DIR]",
		Args:  cmdfactory.MaxDirArgs(1),
		Long: heredoc.Doc(`
			Detect the stack of a repository and synthesize a Dockerfile from
			the policy set. Every line can be traced back to the policy that
			emitted it and the evidence behind it with --rationale or the
			explain command.

			Exit status is 0 on success, also when warnings were reported
			unless --strict is given (status 3), and 1 on failure.`),
		Example: heredoc.Doc(`
			# Write ./Dockerfile
			$ stackcraft generate

			# Print to stdout with digest-pinned base images
			$ stackcraft generate -o - --resolve-digests --policy policy.yaml ./api`),
		Annotations: map[string]string{
			cmdfactory.AnnotationHelpGroup: "build",
		},
	})
	if err != nil {
		panic(err)
	}
	return cmd
}

func (opts *GenerateOptions) Run(ctx context.Context, args []string) error {
	root := cli.RootDir(args)

	popts, err := cli.PipelineOptions(ctx, opts.DetectFlags, &opts.PolicyFlags)
	if err != nil {
		return err
	}
	if opts.Advise {
		cfg := config.G(ctx)
		g, err := advisor.NewGemini(ctx, cfg.Advisor.APIKey, cfg.Advisor.Model)
		if err != nil {
			return err
		}
		popts.Advisor = g
	}

	ios := iostreams.G(ctx)
	cs := ios.ColorScheme()

	res, err := pipeline.Run(ctx, root, popts)
	cli.PrintDiagnostics(ios.ErrOut, cs, res.Diagnostics)
	if err != nil {
		cli.PrintQuestions(ios.ErrOut, cs, res.Questions)
		return err
	}

	output := opts.Output
	if output == "" {
		output = filepath.Join(root, "Dockerfile")
	}
	if err := cli.WriteOutput(ios.Out, output, opts.Force, func(w io.Writer) error {
		_, err := io.WriteString(w, res.Dockerfile)
		return err
	}); err != nil {
		return err
	}

	if opts.Rationale != "" {
		format := rationaleFormat(opts.Rationale)
		if err := cli.WriteOutput(ios.Out, opts.Rationale, opts.Force, func(w io.Writer) error {
			return res.Trace.Write(w, format)
		}); err != nil {
			return err
		}
	}

	cli.PrintQuestions(ios.ErrOut, cs, res.Questions)
	cli.PrintSuggestions(ios.ErrOut, cs, res.Suggestions)

	log.G(ctx).WithFields(logrus.Fields{
		"output": output,
		"status": res.Status,
	}).Info("generated Dockerfile")

	if res.Status == pipeline.StatusWarnings {
		fmt.Fprintln(ios.ErrOut, cs.Yellow("Generated with warnings; review the diagnostics above."))
		if opts.Strict {
			return cmdfactory.Exit(ExitWarnings, nil)
		}
	}
	return nil
}

func rationaleFormat(path string) explain.Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return explain.FormatJSON
	case ".yaml", ".yml":
		return explain.FormatYAML
	}
	return explain.FormatText
}
