// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package cmdfactory

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// MaxDirArgs accepts at most n arguments, each an existing directory.
func MaxDirArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MaximumNArgs(n)(cmd, args); err != nil {
			return err
		}
		for _, arg := range args {
			fi, err := os.Stat(arg)
			if err != nil {
				return err
			}
			if !fi.IsDir() {
				return fmt.Errorf("%s is not a directory", arg)
			}
		}
		return nil
	}
}
