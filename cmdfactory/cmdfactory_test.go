// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package cmdfactory

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stackcraft.sh/log"
)

type format string

type testOpts struct {
	Output  string            `long:"output" short:"o" usage:"Output path" default:"Dockerfile"`
	Force   bool              `long:"force" usage:"Overwrite"`
	Workers int               `long:"workers" default:"4"`
	Timeout time.Duration     `long:"timeout" default:"2s"`
	Ignore  []string          `long:"ignore"`
	Labels  map[string]string `long:"label"`
	Format  *EnumFlag[format] `long:"format" usage:"Output format"`
	Secret  string            `long:"secret" noattribute:"true"`
	Scan    struct {
		Depth int `long:"depth" default:"6"`
	}

	ran  []string
	pre  bool
	fail error
}

func (o *testOpts) Pre(*cobra.Command, []string) error {
	o.pre = true
	return nil
}

func (o *testOpts) Run(_ context.Context, args []string) error {
	o.ran = args
	return o.fail
}

func newTestCmd(t *testing.T, opts *testOpts) *cobra.Command {
	t.Helper()
	opts.Format = NewEnumFlag([]format{"yaml", "json"}, "yaml")
	cmd, err := New(opts, cobra.Command{Use: "gen [DIR]"})
	require.NoError(t, err)
	return cmd
}

func TestNewAttributesFlags(t *testing.T) {
	opts := &testOpts{}
	cmd := newTestCmd(t, opts)

	assert.Equal(t, "Dockerfile", opts.Output)
	assert.Equal(t, 4, opts.Workers)
	assert.Equal(t, 2*time.Second, opts.Timeout)
	assert.Equal(t, 6, opts.Scan.Depth)
	assert.Nil(t, cmd.Flags().Lookup("secret"))
	assert.Equal(t, "o", cmd.Flags().Lookup("output").Shorthand)

	cmd.SetArgs([]string{"-o", "out/Dockerfile", "--force", "--workers=2", "--timeout=1m",
		"--ignore", "a/**", "--ignore", "b/**", "--label", "team=core", "--format", "JSON", "--depth", "3", "src"})
	require.NoError(t, cmd.ExecuteContext(context.Background()))

	assert.True(t, opts.pre)
	assert.Equal(t, []string{"src"}, opts.ran)
	assert.Equal(t, "out/Dockerfile", opts.Output)
	assert.True(t, opts.Force)
	assert.Equal(t, 2, opts.Workers)
	assert.Equal(t, time.Minute, opts.Timeout)
	assert.Equal(t, []string{"a/**", "b/**"}, opts.Ignore)
	assert.Equal(t, map[string]string{"team": "core"}, opts.Labels)
	assert.Equal(t, format("json"), opts.Format.Value())
	assert.Equal(t, 3, opts.Scan.Depth)
}

func TestCurrentValueWinsOverDefault(t *testing.T) {
	opts := &testOpts{Output: "custom", Workers: 9}
	newTestCmd(t, opts)
	assert.Equal(t, "custom", opts.Output)
	assert.Equal(t, 9, opts.Workers)
}

func TestEnumRejectsUnknown(t *testing.T) {
	opts := &testOpts{}
	cmd := newTestCmd(t, opts)
	cmd.SetArgs([]string{"--format", "toml"})
	err := cmd.ExecuteContext(context.Background())
	require.ErrorContains(t, err, "must be one of [yaml, json]")
}

type envOpts struct {
	Level string `long:"level" env:"CMDFACTORY_TEST_LEVEL" default:"info"`
}

func (*envOpts) Run(context.Context, []string) error { return nil }

func TestEnvOverridesDefault(t *testing.T) {
	t.Setenv("CMDFACTORY_TEST_LEVEL", "debug")
	opts := &envOpts{}
	_, err := New(opts, cobra.Command{Use: "x"})
	require.NoError(t, err)
	assert.Equal(t, "debug", opts.Level)
}

type dupOpts struct {
	A string `long:"name"`
	B string `long:"name"`
}

func (*dupOpts) Run(context.Context, []string) error { return nil }

func TestDuplicateFlag(t *testing.T) {
	_, err := New(&dupOpts{}, cobra.Command{Use: "x"})
	require.ErrorContains(t, err, "defined twice")
}

func TestMaxDirArgs(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	check := MaxDirArgs(1)
	assert.NoError(t, check(&cobra.Command{}, nil))
	assert.NoError(t, check(&cobra.Command{}, []string{dir}))
	assert.ErrorContains(t, check(&cobra.Command{}, []string{file}), "not a directory")
	assert.Error(t, check(&cobra.Command{}, []string{dir, dir}))
	assert.Error(t, check(&cobra.Command{}, []string{filepath.Join(dir, "absent")}))
}

func TestMainExitCodes(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	ctx := log.WithLogger(context.Background(), logrus.NewEntry(logger))

	run := func(fail error) int {
		opts := &testOpts{fail: fail}
		cmd := newTestCmd(t, opts)
		cmd.SetArgs([]string{})
		cmd.SetOut(&bytes.Buffer{})
		return Main(ctx, cmd)
	}

	assert.Equal(t, 0, run(nil))
	assert.Equal(t, 0, run(pflag.ErrHelp))

	assert.Equal(t, 1, run(errors.New("boom")))
	assert.Contains(t, buf.String(), "boom")

	buf.Reset()
	assert.Equal(t, 3, run(Exit(3, nil)))
	assert.Empty(t, buf.String())

	assert.Equal(t, 2, run(Exit(2, errors.New("bad input"))))
	assert.Contains(t, buf.String(), "bad input")
}

func TestApplyHelpGroups(t *testing.T) {
	root := &cobra.Command{Use: "root"}
	child := &cobra.Command{Use: "child", Annotations: map[string]string{AnnotationHelpGroup: "build"}, Run: func(*cobra.Command, []string) {}}
	other := &cobra.Command{Use: "other", Run: func(*cobra.Command, []string) {}}
	root.AddCommand(child, other)

	ApplyHelpGroups(root, &cobra.Group{ID: "build", Title: "Build commands"})
	assert.Equal(t, "build", child.GroupID)
	assert.Empty(t, other.GroupID)
}
