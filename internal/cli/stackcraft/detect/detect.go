// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package detect

import (
	"context"
	"fmt"
	"io"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	"stackcraft.sh/cmdfactory"
	stackdetect "stackcraft.sh/detect"
	"stackcraft.sh/internal/cli"
	"stackcraft.sh/internal/tableprinter"
	"stackcraft.sh/iostreams"
	"stackcraft.sh/pipeline"
	"stackcraft.sh/profile"
)

const formatTable = "table"

type DetectOptions struct {
	cli.DetectFlags

	Output  *cmdfactory.EnumFlag[string] `long:"output" short:"o" usage:"Output format. Choice of: [yaml, json, table]"`
	Signals bool                         `long:"signals" usage:"Include the collected signals"`
	Claims  bool                         `long:"claims" usage:"Include every claim made by the rules"`
}

func NewCmd() *cobra.Command {
	opts := &DetectOptions{
		Output: cmdfactory.NewEnumFlag([]string{string(profile.FormatYAML), string(profile.FormatJSON), formatTable}, string(profile.FormatYAML)),
	}
	cmd, err := cmdfactory.New(opts, cobra.Command{
		Short: "Detect the stack of a repository",
		Use:   "detect [FLAGS] [DIR]",
		Args:  cmdfactory.MaxDirArgs(1),
		Long: heredoc.Doc(`
			Scan a repository and print its stack profile: language, framework,
			runtime version, package manager, commands, entrypoints and ports,
			each with the confidence and rule that settled it.`),
		Example: heredoc.Doc(`
			# Detect the stack of the current directory
			$ stackcraft detect

			# Show the evidence and every claim as JSON
			$ stackcraft detect --signals --claims -o json ./service`),
		Annotations: map[string]string{
			cmdfactory.AnnotationHelpGroup: "inspect",
		},
	})
	if err != nil {
		panic(err)
	}
	return cmd
}

type report struct {
	Profile *profile.StackProfile `json:"profile" yaml:"profile"`
	Signals []string              `json:"signals,omitempty" yaml:"signals,omitempty"`
	Claims  []string              `json:"claims,omitempty" yaml:"claims,omitempty"`
}

func (opts *DetectOptions) Run(ctx context.Context, args []string) error {
	popts, err := cli.PipelineOptions(ctx, opts.DetectFlags, nil)
	if err != nil {
		return err
	}

	res, err := pipeline.Detect(ctx, cli.RootDir(args), popts)
	if res.Profile == nil {
		return err
	}

	ios := iostreams.G(ctx)
	cs := ios.ColorScheme()

	rep := report{Profile: res.Profile}
	if opts.Signals {
		for _, sig := range res.Evidence.Signals.All() {
			rep.Signals = append(rep.Signals, sig.String())
		}
	}
	if opts.Claims {
		for _, c := range res.Claims {
			rep.Claims = append(rep.Claims, c.String())
		}
	}

	var werr error
	switch format := opts.Output.Value(); format {
	case formatTable:
		werr = writeTable(ctx, ios.Out, rep, res.Profile)
	default:
		var v interface{} = res.Profile
		if opts.Signals || opts.Claims {
			v = rep
		}
		werr = profile.Encode(ios.Out, profile.Format(format), v)
	}
	if werr != nil {
		return werr
	}

	cli.PrintDiagnostics(ios.ErrOut, cs, res.Diagnostics)
	cli.PrintQuestions(ios.ErrOut, cs, res.Questions)
	return err
}

func writeTable(ctx context.Context, w io.Writer, rep report, p *profile.StackProfile) error {
	cs := iostreams.G(ctx).ColorScheme()
	table, err := tableprinter.NewTablePrinter(ctx)
	if err != nil {
		return err
	}

	table.AddField("FIELD", cs.Bold)
	table.AddField("VALUE", cs.Bold)
	table.AddField("CONFIDENCE", cs.Bold)
	table.AddField("RULE", cs.Bold)
	table.EndRow()

	for _, field := range stackdetect.Fields() {
		for _, r := range p.All(field) {
			var color func(string) string
			if p.IsAmbiguous(field) {
				color = cs.Yellow
			}
			table.AddField(string(field), nil)
			table.AddField(r.Value, color)
			table.AddField(fmt.Sprintf("%.2f", r.Confidence), nil)
			table.AddField(r.Rule, cs.Gray)
			table.EndRow()
		}
	}
	if err := table.Render(w); err != nil {
		return err
	}

	for _, section := range []struct {
		title string
		items []string
	}{{"Signals", rep.Signals}, {"Claims", rep.Claims}} {
		if len(section.items) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s:\n", cs.Bold(section.title))
		for _, item := range section.items {
			fmt.Fprintf(w, "  %s\n", item)
		}
	}
	return nil
}
