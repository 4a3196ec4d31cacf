// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package lock

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stackcraft.sh/config"
	"stackcraft.sh/imageref"
	"stackcraft.sh/iostreams"
)

const testDigest = "sha256:0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func testContext(t *testing.T) (context.Context, *iostreams.IOStreams) {
	t.Helper()
	cfg, err := config.New()
	require.NoError(t, err)
	ios, _, _, _ := iostreams.Test()
	ctx := config.WithConfig(context.Background(), cfg)
	return iostreams.WithIOStreams(ctx, ios), ios
}

func TestLockExtendsExistingFile(t *testing.T) {
	ctx, _ := testContext(t)
	path := filepath.Join(t.TempDir(), "images.lock.json")

	var asked []string
	opts := &LockOptions{
		Output:  path,
		Timeout: time.Minute,
		resolver: imageref.ResolverFunc(func(_ context.Context, ref string) (string, error) {
			asked = append(asked, ref)
			return testDigest, nil
		}),
	}
	args := []string{"python:3.12-slim", "node:20-bookworm-slim", "python:3.12-slim"}
	require.NoError(t, opts.Pre(nil, args))
	require.NoError(t, opts.Run(ctx, args))
	require.Equal(t, []string{"node:20-bookworm-slim", "python:3.12-slim"}, asked)

	require.NoError(t, opts.Run(ctx, []string{"golang:1.23-bookworm"}))

	lock, err := imageref.LoadLock(path)
	require.NoError(t, err)
	require.Equal(t, 3, lock.Len())
	d, ok := lock.Digest("python:3.12-slim")
	require.True(t, ok)
	require.Equal(t, testDigest, d)
}

func TestLockFreshDropsOldEntries(t *testing.T) {
	ctx, _ := testContext(t)
	path := filepath.Join(t.TempDir(), "images.lock.json")
	opts := &LockOptions{
		Output:  path,
		Timeout: time.Minute,
		resolver: imageref.ResolverFunc(func(context.Context, string) (string, error) {
			return testDigest, nil
		}),
	}
	require.NoError(t, opts.Run(ctx, []string{"python:3.12-slim"}))

	opts.Fresh = true
	require.NoError(t, opts.Run(ctx, []string{"node:20-bookworm-slim"}))

	lock, err := imageref.LoadLock(path)
	require.NoError(t, err)
	require.Equal(t, []string{"node:20-bookworm-slim"}, lock.References())
}

func TestLockRejectsUnpinned(t *testing.T) {
	opts := &LockOptions{}
	require.ErrorIs(t, opts.Pre(nil, []string{"python"}), imageref.ErrUnpinned)
}

func TestLockResolverFailure(t *testing.T) {
	ctx, _ := testContext(t)
	path := filepath.Join(t.TempDir(), "images.lock.json")
	opts := &LockOptions{
		Output:  path,
		Timeout: time.Minute,
		resolver: imageref.ResolverFunc(func(context.Context, string) (string, error) {
			return "", errors.New("registry unavailable")
		}),
	}
	require.ErrorContains(t, opts.Run(ctx, []string{"python:3.12-slim"}), "registry unavailable")
	require.NoFileExists(t, path)
}
