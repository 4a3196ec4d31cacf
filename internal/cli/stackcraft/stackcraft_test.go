// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package stackcraft

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stackcraft.sh/config"
	"stackcraft.sh/internal/cli"
	kitversion "stackcraft.sh/internal/version"
	"stackcraft.sh/iostreams"
	"stackcraft.sh/log"
)

type result struct {
	code   int
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

func execute(t *testing.T, args ...string) result {
	t.Helper()

	cfg, err := config.New()
	require.NoError(t, err)
	cfg.NoWarnSudo = true
	cfg.Log.Type = "basic"
	cfg.Log.Level = "error"

	ios, _, out, errOut := iostreams.Test()
	logger, err := log.New(log.Options{Level: "error", Type: "basic", Output: errOut})
	require.NoError(t, err)

	copts := &cli.CliOptions{Config: cfg, IOStreams: ios, Logger: logger}
	code := run(context.Background(), NewCmd(), copts, args)
	return result{code: code, out: out, errOut: errOut}
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func nodeTree(t *testing.T) string {
	return writeTree(t, map[string]string{
		"package.json": `{"name":"svc","main":"index.js"}`,
		"index.js":     "require('http').createServer(() => {}).listen(3000)\n",
	})
}

func tiedTree(t *testing.T) string {
	return writeTree(t, map[string]string{
		"go.mod":           "module example.com/svc\n\ngo 1.22\n",
		"main.go":          "package main\n\nfunc main() {}\n",
		"requirements.txt": "requests\n",
	})
}

func TestVersion(t *testing.T) {
	res := execute(t, "version")
	require.Equal(t, 0, res.code)
	assert.Equal(t, kitversion.String()+"\n", res.out.String())
}

func TestHelpWithoutSubcommand(t *testing.T) {
	res := execute(t)
	require.Equal(t, 0, res.code)
	assert.Contains(t, res.out.String(), "Build Commands:")
	assert.Contains(t, res.out.String(), "Inspection Commands:")
}

func TestGenerateToStdout(t *testing.T) {
	res := execute(t, "generate", "-o", "-", nodeTree(t))
	require.Equal(t, 0, res.code, res.errOut.String())
	assert.Contains(t, res.out.String(), "FROM node:")
	assert.Contains(t, res.out.String(), `ENTRYPOINT ["node", "index.js"]`)
}

func TestGenerateWritesAndRefusesOverwrite(t *testing.T) {
	root := nodeTree(t)
	rationale := filepath.Join(root, "rationale.json")

	res := execute(t, "generate", "--rationale", rationale, root)
	require.Equal(t, 0, res.code, res.errOut.String())

	data, err := os.ReadFile(filepath.Join(root, "Dockerfile"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "USER node")

	raw, err := os.ReadFile(rationale)
	require.NoError(t, err)
	assert.True(t, json.Valid(raw))

	res = execute(t, "generate", root)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.errOut.String(), "already exists")

	res = execute(t, "generate", "--force", root)
	assert.Equal(t, 0, res.code, res.errOut.String())
}

func TestGenerateStrictExitCodes(t *testing.T) {
	root := tiedTree(t)

	res := execute(t, "generate", "-o", "-", root)
	require.Equal(t, 0, res.code, res.errOut.String())
	assert.Contains(t, res.errOut.String(), "Open questions")

	res = execute(t, "generate", "-o", "-", "--strict", root)
	assert.Equal(t, 3, res.code)
	assert.Contains(t, res.out.String(), "FROM golang:")
}

func TestGenerateFailures(t *testing.T) {
	res := execute(t, "generate", "-o", "-", writeTree(t, map[string]string{"README.md": "# hi\n"}))
	assert.Equal(t, 1, res.code)
	assert.Empty(t, res.out.String())

	res = execute(t, "generate", "-o", "-", "--set", "flavour=vanilla", nodeTree(t))
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.errOut.String(), "unknown field")

	res = execute(t, "generate", "-o", "-", "--log-type", "rainbow", nodeTree(t))
	assert.Equal(t, 1, res.code)
}

func TestDetectJSON(t *testing.T) {
	res := execute(t, "detect", "-o", "json", nodeTree(t))
	require.Equal(t, 0, res.code, res.errOut.String())

	var v map[string]interface{}
	require.NoError(t, json.Unmarshal(res.out.Bytes(), &v))
	assert.Contains(t, res.out.String(), `"node"`)
}

func TestDetectRejectsUnknownFormat(t *testing.T) {
	res := execute(t, "detect", "-o", "xml", nodeTree(t))
	assert.Equal(t, 1, res.code)
}

func TestReviewGeneratedDockerfile(t *testing.T) {
	root := nodeTree(t)
	require.Equal(t, 0, execute(t, "generate", root).code)

	res := execute(t, "review", filepath.Join(root, "Dockerfile"))
	assert.Equal(t, 0, res.code, res.out.String())
}

func TestReviewMissingStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Dockerfile")
	require.NoError(t, os.WriteFile(path, []byte("FROM alpine:3.20\nRUN echo hi\n"), 0o644))

	res := execute(t, "review", path)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.out.String(), "start.missing")
}

func TestDoctorOffline(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(cli.ConfigFileEnv, "")

	res := execute(t, "doctor", "--offline")
	require.Equal(t, 0, res.code, res.errOut.String())
	assert.Contains(t, res.out.String(), "image-lock")
	assert.Contains(t, res.out.String(), "built-in defaults")
	assert.NotContains(t, res.out.String(), "registry")
}
