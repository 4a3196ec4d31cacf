// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package version

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"stackcraft.sh/cmdfactory"
	kitversion "stackcraft.sh/internal/version"
	"stackcraft.sh/iostreams"
)

type VersionOptions struct{}

func NewCmd() *cobra.Command {
	cmd, err := cmdfactory.New(&VersionOptions{}, cobra.Command{
		Short: "Show the stackcraft version",
		Use:   "version",
		Args:  cobra.NoArgs,
	})
	if err != nil {
		panic(err)
	}
	return cmd
}

func (opts *VersionOptions) Run(ctx context.Context, _ []string) error {
	_, err := fmt.Fprintln(iostreams.G(ctx).Out, kitversion.String())
	return err
}
