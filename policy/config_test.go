// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package policy

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	doc := `
nonRootUser: true
baseImagePinning: digest
user: "2000:2000"
workdir: /srv
disable:
  - metadata.labels
baseImages:
  python: python:3.11-slim
  go/build: golang:1.23-alpine
labels:
  org.opencontainers.image.title: api
`
	cfg, err := ParseConfig([]byte(doc))
	require.NoError(t, err)

	want := Config{
		NonRootUser:      true,
		BaseImagePinning: PinDigest,
		User:             "2000:2000",
		Workdir:          "/srv",
		Disable:          []string{"metadata.labels"},
		BaseImages: map[string]string{
			"python":   "python:3.11-slim",
			"go/build": "golang:1.23-alpine",
		},
		Labels: map[string]string{"org.opencontainers.image.title": "api"},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("unexpected config (-want +got):\n%s", diff)
	}
	require.True(t, cfg.Disabled("metadata.labels"))
	require.False(t, cfg.Disabled("user.nonroot"))
}

func TestParseConfigDefaults(t *testing.T) {
	for _, doc := range []string{"", "  \n", "# only a comment\n"} {
		cfg, err := ParseConfig([]byte(doc))
		require.NoError(t, err)
		require.Equal(t, DefaultConfig(), cfg)
	}

	cfg, err := ParseConfig([]byte("nonRootUser: false\n"))
	require.NoError(t, err)
	require.False(t, cfg.NonRootUser)
	require.Equal(t, PinTag, cfg.BaseImagePinning)
	require.Equal(t, "/app", cfg.Workdir)
}

func TestParseConfigRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		problem string
	}{
		{name: "unknown key", doc: "nonRoot: true\n", problem: "nonRoot"},
		{name: "pinning mode", doc: "baseImagePinning: floating\n", problem: "baseImagePinning"},
		{name: "relative workdir", doc: "workdir: app\n", problem: "workdir"},
		{name: "non-boolean", doc: "nonRootUser: maybe\n", problem: "nonRootUser"},
		{name: "duplicate disable", doc: "disable: [a, a]\n", problem: "disable"},
		{name: "image key", doc: "baseImages:\n  Python: python:3.12\n", problem: "baseImages"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.doc))
			var serr *SchemaError
			require.True(t, errors.As(err, &serr), "expected a schema error, got %v", err)
			require.NotEmpty(t, serr.Problems)
			require.True(t, strings.Contains(err.Error(), tt.problem), "%q does not mention %q", err.Error(), tt.problem)
		})
	}

	_, err := ParseConfig([]byte("nonRootUser: [\n"))
	require.ErrorContains(t, err, "parsing policy document")
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stackcraft.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workdir: /opt/app\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "/opt/app", cfg.Workdir)

	require.NoError(t, os.WriteFile(path, []byte("workdir: 3\n"), 0o644))
	_, err = LoadConfig(path)
	require.ErrorContains(t, err, path)
}
