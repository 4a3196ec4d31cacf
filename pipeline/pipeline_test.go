// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"stackcraft.sh/advisor"
	"stackcraft.sh/detect"
	"stackcraft.sh/diag"
	"stackcraft.sh/imageref"
	"stackcraft.sh/policy"
)

const testDigest = "sha256:3b8a8a4d6c9ea2a4b1f2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718"

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return root
}

func fastAPITree(t *testing.T) string {
	return writeTree(t, map[string]string{
		"requirements.txt": "fastapi\nuvicorn\n",
		"main.py":          "from fastapi import FastAPI\n\napp = FastAPI()\n",
	})
}

func TestNodeService(t *testing.T) {
	root := writeTree(t, map[string]string{
		"package.json": `{"name": "svc", "main": "index.js"}`,
		"index.js":     "console.log('up')\n",
	})

	res, err := Run(context.Background(), root, Options{})
	require.NoError(t, err)
	require.Equal(t, StatusOK, res.Status, res.Diagnostics)
	require.Equal(t, detect.LanguageJavaScript, res.Profile.Value(detect.FieldLanguage))
	require.Equal(t, "index.js", res.Profile.Value(detect.FieldEntrypoint))

	require.Contains(t, res.Dockerfile, `ENTRYPOINT ["node", "index.js"]`)
	require.Contains(t, res.Dockerfile, "\nUSER node\n")
	require.NotContains(t, res.Dockerfile, "USER root")

	require.Len(t, res.Trace.Nodes, len(res.Synthesis.IR.Instructions))
	require.NotNil(t, res.Review)
	require.Empty(t, res.Questions)
}

func TestTiedLanguages(t *testing.T) {
	root := writeTree(t, map[string]string{
		"go.mod":           "module example.com/svc\n\ngo 1.22\n",
		"main.go":          "package main\n\nfunc main() {}\n",
		"requirements.txt": "requests\n",
	})

	res, err := Run(context.Background(), root, Options{})
	require.NoError(t, err)
	require.Equal(t, StatusWarnings, res.Status)
	require.Equal(t, "go", res.Profile.Value(detect.FieldLanguage))
	require.True(t, res.Profile.IsAmbiguous(detect.FieldLanguage))
	require.True(t, res.Diagnostics.Has(diag.AmbiguousField))
	require.NotEmpty(t, res.Dockerfile)

	var ids []string
	for _, q := range res.Questions {
		ids = append(ids, q.ID)
	}
	require.Contains(t, ids, "language_selection")
}

func TestUnreadableFileIsReported(t *testing.T) {
	root := fastAPITree(t)
	require.NoError(t, os.Symlink(filepath.Join(root, "gone.py"), filepath.Join(root, "settings.py")))

	res, err := Run(context.Background(), root, Options{})
	require.NoError(t, err)
	require.Equal(t, StatusWarnings, res.Status)
	require.True(t, res.Diagnostics.Has(diag.ScanWarning))
	require.Equal(t, "python", res.Profile.Value(detect.FieldLanguage))
	require.Contains(t, res.Dockerfile, "FROM python:")
}

func TestNoLanguage(t *testing.T) {
	root := writeTree(t, map[string]string{"README.md": "# notes\n"})

	res, err := Run(context.Background(), root, Options{})
	require.ErrorIs(t, err, ErrNoLanguage)
	require.Equal(t, StatusFailed, res.Status)
	require.NotNil(t, res.Profile)
	require.Nil(t, res.Synthesis)
	require.Empty(t, res.Dockerfile)
}

func TestMissingRoot(t *testing.T) {
	res, err := Run(context.Background(), filepath.Join(t.TempDir(), "absent"), Options{})
	require.Error(t, err)
	require.Equal(t, StatusFailed, res.Status)
	require.Nil(t, res.Profile)
}

func TestDigestPinningWithoutLockFails(t *testing.T) {
	cfg := policy.DefaultConfig()
	cfg.BaseImagePinning = policy.PinDigest

	res, err := Run(context.Background(), fastAPITree(t), Options{Policy: &cfg})
	var v *diag.InvariantViolation
	require.ErrorAs(t, err, &v)
	require.Equal(t, StatusFailed, res.Status)
	require.True(t, res.Diagnostics.Has(diag.PolicyInvariantViolation))
	require.Empty(t, res.Dockerfile)
}

func TestResolverFillsLock(t *testing.T) {
	cfg := policy.DefaultConfig()
	cfg.BaseImagePinning = policy.PinDigest

	var asked []string
	resolver := imageref.ResolverFunc(func(_ context.Context, ref string) (string, error) {
		asked = append(asked, ref)
		return testDigest, nil
	})

	res, err := Run(context.Background(), fastAPITree(t), Options{Policy: &cfg, Resolver: resolver})
	require.NoError(t, err)
	require.NotEmpty(t, asked)
	require.Contains(t, res.Dockerfile, "@"+testDigest)
}

func TestAnswersSettleFields(t *testing.T) {
	root := writeTree(t, map[string]string{
		"requirements.txt": "flask\n",
		"app.py":           "print('a')\n",
		"main.py":          "print('m')\n",
	})

	res, err := Detect(context.Background(), root, Options{
		Answers: map[detect.Field]string{
			detect.FieldEntrypoint: "main.py",
			"bogus":                "ignored",
		},
	})
	require.NoError(t, err)
	require.Equal(t, "main.py", res.Profile.Value(detect.FieldEntrypoint))
	require.False(t, res.Profile.IsAmbiguous(detect.FieldEntrypoint))

	r, ok := res.Profile.Get(detect.FieldEntrypoint)
	require.True(t, ok)
	require.Equal(t, AnswerRule+"entrypoint", r.Rule)
}

type failingAdvisor struct{}

func (failingAdvisor) Advise(context.Context, advisor.Input) ([]advisor.Suggestion, error) {
	return nil, errors.New("quota exceeded")
}

type lineAdvisor struct{ seen advisor.Input }

func (a *lineAdvisor) Advise(_ context.Context, in advisor.Input) ([]advisor.Suggestion, error) {
	a.seen = in
	return []advisor.Suggestion{{Title: "Add a HEALTHCHECK", Source: "test"}}, nil
}

func TestAdvisor(t *testing.T) {
	res, err := Run(context.Background(), fastAPITree(t), Options{Advisor: failingAdvisor{}})
	require.NoError(t, err)
	require.Equal(t, StatusWarnings, res.Status)
	require.NotEmpty(t, res.Dockerfile)

	found := false
	for _, d := range res.Diagnostics {
		if d.Source == "advisor" && strings.Contains(d.Message, "quota exceeded") {
			found = true
		}
	}
	require.True(t, found)

	a := &lineAdvisor{}
	res, err = Run(context.Background(), fastAPITree(t), Options{Advisor: a})
	require.NoError(t, err)
	require.Len(t, res.Suggestions, 1)
	require.Equal(t, res.Dockerfile, a.seen.Dockerfile)
	require.NotSame(t, res.Profile, a.seen.Profile)
}
