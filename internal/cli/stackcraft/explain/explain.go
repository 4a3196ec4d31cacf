// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package explain

import (
	"context"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	"stackcraft.sh/cmdfactory"
	stackexplain "stackcraft.sh/explain"
	"stackcraft.sh/internal/cli"
	"stackcraft.sh/iostreams"
	"stackcraft.sh/pipeline"
)

type ExplainOptions struct {
	cli.DetectFlags
	cli.PolicyFlags

	Format *cmdfactory.EnumFlag[stackexplain.Format] `long:"format" usage:"Output format. Choice of: [text, tree, yaml, json]"`
}

func NewCmd() *cobra.Command {
	formats := []stackexplain.Format{
		stackexplain.FormatText,
		stackexplain.FormatTree,
		stackexplain.FormatYAML,
		stackexplain.FormatJSON,
	}
	cmd, err := cmdfactory.New(&ExplainOptions{
		Format: cmdfactory.NewEnumFlag(formats, stackexplain.FormatText),
	}, cobra.Command{
		Short: "Explain every line of the generated Dockerfile",
		Use:   "explain [FLAGS] [DIR]",
		Args:  cmdfactory.MaxDirArgs(1),
		Long: heredoc.Doc(`
			Print the rationale of the Dockerfile generate would write: for each
			line the policy that emitted it, why, and the profile values and
			evidence it rests on. Policies that emitted nothing and superseded
			instructions are listed too.`),
		Example: heredoc.Doc(`
			$ stackcraft explain --format tree ./api`),
		Annotations: map[string]string{
			cmdfactory.AnnotationHelpGroup: "inspect",
		},
	})
	if err != nil {
		panic(err)
	}
	return cmd
}

func (opts *ExplainOptions) Run(ctx context.Context, args []string) error {
	popts, err := cli.PipelineOptions(ctx, opts.DetectFlags, &opts.PolicyFlags)
	if err != nil {
		return err
	}

	ios := iostreams.G(ctx)
	res, err := pipeline.Run(ctx, cli.RootDir(args), popts)
	cli.PrintDiagnostics(ios.ErrOut, ios.ColorScheme(), res.Diagnostics)
	if err != nil {
		return err
	}
	return res.Trace.Write(ios.Out, opts.Format.Value())
}
