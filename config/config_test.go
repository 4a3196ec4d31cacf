// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "fancy", cfg.Log.Type)
	assert.Equal(t, "1MiB", cfg.Scan.MaxFileSize)
	assert.Equal(t, 6, cfg.Scan.MaxDepth)
	assert.Equal(t, 4, cfg.Scan.Workers)
	assert.Equal(t, 2*time.Second, cfg.Scan.FileTimeout)
	assert.Equal(t, 30*time.Second, cfg.Scan.Deadline)
	assert.Equal(t, 0.05, cfg.Epsilon)
	assert.Equal(t, "gemini-2.5-flash", cfg.Advisor.Model)
	assert.False(t, cfg.Scan.NoGitignore)
	require.NoError(t, cfg.Validate())

	size, err := cfg.MaxFileSize()
	require.NoError(t, err)
	assert.Equal(t, int64(1<<20), size)
}

func TestLoadDefaultLocation(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	require.Equal(t, filepath.Join(xdg, "stackcraft", "config.yaml"), DefaultPath())

	// A missing default file is fine.
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "info", cfg.Log.Level)

	require.NoError(t, os.MkdirAll(Dir(), 0o755))
	require.NoError(t, os.WriteFile(DefaultPath(), []byte(heredoc.Doc(`
		log:
		  level: debug
		scan:
		  max_file_size: 256KiB
		  workers: 8
		  file_timeout: 500ms
		  ignore:
		    - "fixtures/**"
		epsilon: 0.1
		policy: policy.yaml
	`)), 0o644))

	t.Setenv("STACKCRAFT_SCAN_WORKERS", "2")
	t.Setenv("STACKCRAFT_SCAN_IGNORE", "vendor/**, testdata/**")

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "fancy", cfg.Log.Type)
	assert.Equal(t, 2, cfg.Scan.Workers)
	assert.Equal(t, 500*time.Millisecond, cfg.Scan.FileTimeout)
	assert.Equal(t, []string{"vendor/**", "testdata/**"}, cfg.Scan.Ignore)
	assert.Equal(t, 0.1, cfg.Epsilon)
	assert.Equal(t, "policy.yaml", cfg.Policy)

	size, err := cfg.MaxFileSize()
	require.NoError(t, err)
	assert.Equal(t, int64(256<<10), size)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "absent.yaml"))
	require.ErrorContains(t, err, "reading configuration")

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("colour: true\n"), 0o644))
	_, err = Load(unknown)
	require.ErrorContains(t, err, "decoding configuration")

	env := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(env, nil, 0o644))
	t.Setenv("STACKCRAFT_SCAN_MAX_DEPTH", "deep")
	_, err = Load(env)
	require.ErrorContains(t, err, "STACKCRAFT_SCAN_MAX_DEPTH")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"type", func(c *Config) { c.Log.Type = "rainbow" }, "log.type"},
		{"size", func(c *Config) { c.Scan.MaxFileSize = "huge" }, "scan.max_file_size"},
		{"zero size", func(c *Config) { c.Scan.MaxFileSize = "0" }, "scan.max_file_size"},
		{"depth", func(c *Config) { c.Scan.MaxDepth = 0 }, "scan.max_depth"},
		{"workers", func(c *Config) { c.Scan.Workers = 0 }, "scan.workers"},
		{"timeout", func(c *Config) { c.Scan.Deadline = 0 }, "timeouts"},
		{"epsilon", func(c *Config) { c.Epsilon = 1 }, "epsilon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := New()
			require.NoError(t, err)
			tt.mutate(cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	env := map[string]string{
		"STACKCRAFT_NO_COLOR":          "true",
		"STACKCRAFT_SCAN_DEADLINE":     "1m",
		"STACKCRAFT_EPSILON":           "0.2",
		"STACKCRAFT_ADVISOR_API_KEY":   "secret",
		"STACKCRAFT_SCAN_NO_GITIGNORE": "1",
	}
	require.NoError(t, cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))

	assert.True(t, cfg.NoColor)
	assert.Equal(t, time.Minute, cfg.Scan.Deadline)
	assert.Equal(t, 0.2, cfg.Epsilon)
	assert.Equal(t, "secret", cfg.Advisor.APIKey)
	assert.True(t, cfg.Scan.NoGitignore)
}

func TestCollectorOptionsAndLogger(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	opts, err := cfg.CollectorOptions()
	require.NoError(t, err)
	assert.Len(t, opts, 7)

	cfg.Log.Type = "json"
	cfg.Log.Level = "debug"
	l, err := cfg.Logger()
	require.NoError(t, err)
	assert.Equal(t, "debug", l.Logger.GetLevel().String())
}

func TestContext(t *testing.T) {
	assert.Equal(t, "info", G(context.Background()).Log.Level)

	cfg, err := New()
	require.NoError(t, err)
	cfg.Log.Level = "trace"
	ctx := WithConfig(context.Background(), cfg)
	assert.Same(t, cfg, G(ctx))
}
