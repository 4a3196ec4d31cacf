// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package stackcraft

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"strings"

	"github.com/MakeNowJust/heredoc"
	"github.com/rancher/wrangler/pkg/signals"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"stackcraft.sh/cmdfactory"
	"stackcraft.sh/config"
	"stackcraft.sh/internal/cli"
	kitversion "stackcraft.sh/internal/version"
	"stackcraft.sh/log"

	"stackcraft.sh/internal/cli/stackcraft/detect"
	"stackcraft.sh/internal/cli/stackcraft/doctor"
	"stackcraft.sh/internal/cli/stackcraft/explain"
	"stackcraft.sh/internal/cli/stackcraft/generate"
	"stackcraft.sh/internal/cli/stackcraft/lock"
	"stackcraft.sh/internal/cli/stackcraft/review"
	"stackcraft.sh/internal/cli/stackcraft/version"
)

type StackcraftOptions struct{}

func NewCmd() *cobra.Command {
	cmd, err := cmdfactory.New(&StackcraftOptions{}, cobra.Command{
		Short: "Detect a repository's stack and generate its Dockerfile",
		Use:   "stackcraft [FLAGS] SUBCOMMAND",
		Long: heredoc.Docf(`
			Detect the stack of a repository from evidence and synthesize a
			Dockerfile from declarative policies, with a rationale for every line.

			Version: %s`, kitversion.Version()),
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	})
	if err != nil {
		panic(err)
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		ctx, err := cli.Reconfigure(cmd.Context())
		if err != nil {
			return err
		}
		cmd.SetContext(ctx)
		return nil
	}

	cmd.AddCommand(generate.NewCmd())
	cmd.AddCommand(lock.NewCmd())
	cmd.AddCommand(detect.NewCmd())
	cmd.AddCommand(explain.NewCmd())
	cmd.AddCommand(review.NewCmd())
	cmd.AddCommand(doctor.NewCmd())
	cmd.AddCommand(version.NewCmd())

	cmdfactory.ApplyHelpGroups(cmd,
		&cobra.Group{ID: "build", Title: "Build Commands:"},
		&cobra.Group{ID: "inspect", Title: "Inspection Commands:"},
	)

	return cmd
}

func (opts *StackcraftOptions) Run(_ context.Context, _ []string) error {
	return pflag.ErrHelp
}

func Main(args []string) int {
	cmd := NewCmd()
	ctx := signals.SetupSignalContext()
	copts := &cli.CliOptions{}

	for _, o := range []cli.CliOption{
		cli.WithDefaultConfig(),
		cli.WithDefaultIOStreams(),
		cli.WithDefaultLogger(),
	} {
		if err := o(copts); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}

	if len(args) > 0 {
		args = args[1:]
	}
	return run(ctx, cmd, copts, args)
}

// run executes cmd with the options in place and converts panics into a
// failed exit.
func run(ctx context.Context, cmd *cobra.Command, copts *cli.CliOptions, args []string) (code int) {
	if err := cmdfactory.AttributeFlags(cmd.PersistentFlags(), copts.Config); err != nil {
		fmt.Fprintln(copts.IOStreams.ErrOut, err)
		return 1
	}
	cmd.SetArgs(args)
	cmd.SetIn(copts.IOStreams.In)
	cmd.SetOut(copts.IOStreams.Out)
	cmd.SetErr(copts.IOStreams.ErrOut)

	ctx = copts.Apply(ctx)

	log.G(ctx).
		WithField("version", kitversion.Version()).
		Debug("stackcraft")

	defer func() {
		if err := recover(); err != nil {
			// copts.Logger rather than log.G(ctx), which may be unusable in
			// the panic state.
			copts.Logger.Logf(logrus.ErrorLevel, "a fatal error occurred: %s", err)
			for _, line := range strings.Split(string(debug.Stack()), "\n") {
				copts.Logger.Log(logrus.DebugLevel, line)
			}
			code = 1
		}
	}()

	if config.InvokedViaSudo() && !copts.Config.NoWarnSudo {
		log.G(ctx).Warn("detected invocation via sudo; written files are handed back to the invoking user")
		log.G(ctx).Warn("to hide this warning, set STACKCRAFT_NO_WARN_SUDO=1")
	}

	return cmdfactory.Main(ctx, cmd)
}
