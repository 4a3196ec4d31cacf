// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package cmdfactory

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"stackcraft.sh/log"
)

// ExitError carries a process exit code out of a command. A nil Err exits
// without printing anything.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// Exit returns an error that makes Main exit with code.
func Exit(code int, err error) error {
	return &ExitError{Code: code, Err: err}
}

// ExitCode maps a command error to a process exit code: 0 for nil, the
// code of an *ExitError, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return 1
}

// Main executes cmd and returns the process exit code. Errors are logged
// through the context's logger.
func Main(ctx context.Context, cmd *cobra.Command) int {
	c, err := cmd.ExecuteContextC(ctx)
	if errors.Is(err, pflag.ErrHelp) {
		if c == nil {
			c = cmd
		}
		_ = c.Help()
		return 0
	}
	if err != nil {
		var ee *ExitError
		if !errors.As(err, &ee) || ee.Err != nil {
			log.G(ctx).Error(err)
		}
	}
	return ExitCode(err)
}
