// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package lock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/dustin/go-humanize/english"
	"github.com/spf13/cobra"

	"stackcraft.sh/cmdfactory"
	"stackcraft.sh/config"
	"stackcraft.sh/imageref"
	"stackcraft.sh/internal/cli"
	"stackcraft.sh/iostreams"
	"stackcraft.sh/utils"
)

// DefaultFile is written when neither --output nor lock_file is set.
const DefaultFile = "stackcraft.lock.json"

type LockOptions struct {
	Output  string        `long:"output" short:"o" usage:"Lock file to write, - for stdout"`
	Timeout time.Duration `long:"timeout" usage:"Time allowed for all registry requests" default:"2m"`
	Fresh   bool          `long:"fresh" usage:"Resolve every reference again instead of extending the existing lock"`

	resolver imageref.Resolver
}

func NewCmd() *cobra.Command {
	cmd, err := cmdfactory.New(&LockOptions{}, cobra.Command{
		Short: "Resolve base image digests into a lock file",
		Use:   "lock [FLAGS] [IMAGE...]",
		Long: heredoc.Doc(`
			Query the registry for the content digest of base images and record
			them in a lock file, which generate uses to pin FROM lines when the
			policy asks for digest pinning.

			Without arguments every image of the built-in catalog is locked.
			No local Docker daemon is needed.`),
		Example: heredoc.Doc(`
			$ stackcraft lock
			$ stackcraft lock -o images.lock.json python:3.12-slim node:20-bookworm-slim`),
		Annotations: map[string]string{
			cmdfactory.AnnotationHelpGroup: "build",
		},
	})
	if err != nil {
		panic(err)
	}
	return cmd
}

func (opts *LockOptions) Pre(_ *cobra.Command, args []string) error {
	for _, ref := range args {
		if err := imageref.CheckPinned(ref); err != nil {
			return err
		}
	}
	if opts.resolver == nil {
		opts.resolver = imageref.Remote
	}
	return nil
}

func (opts *LockOptions) Run(ctx context.Context, args []string) error {
	path := opts.Output
	if path == "" {
		path = config.G(ctx).LockFile
	}
	if path == "" {
		path = DefaultFile
	}

	refs := args
	if len(refs) == 0 {
		for _, img := range imageref.Default().All() {
			refs = append(refs, img.Ref)
		}
	}
	refs = utils.SortedUnique(refs)

	base := imageref.NewLock()
	if path != "-" && !opts.Fresh {
		existing, err := imageref.LoadLock(path)
		switch {
		case err == nil:
			base = existing
		case !errors.Is(err, fs.ErrNotExist):
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	lock, err := imageref.Refresh(ctx, opts.resolver, base, refs...)
	if err != nil {
		return err
	}

	ios := iostreams.G(ctx)
	if err := cli.WriteOutput(ios.Out, path, true, func(w io.Writer) error {
		return lock.Write(w)
	}); err != nil {
		return err
	}
	if path != "-" {
		fmt.Fprintf(ios.ErrOut, "%s %s in %s\n",
			ios.ColorScheme().Green("locked"), english.Plural(len(refs), "image", ""), path)
	}
	return nil
}
