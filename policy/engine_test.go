// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"stackcraft.sh/buildir"
	"stackcraft.sh/detect"
	"stackcraft.sh/diag"
	"stackcraft.sh/evidence"
	"stackcraft.sh/imageref"
	"stackcraft.sh/profile"
)

const testDigest = "sha256:4c5a9e1f0b4a2d3c6e7f8091a2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4d5"

func claim(f detect.Field, value string, confidence float64, rule string, cited ...string) detect.Claim {
	c := detect.Claim{Field: f, Value: value, Confidence: confidence, RuleID: rule}
	for _, p := range cited {
		c.Signals = append(c.Signals, evidence.Signal{Kind: evidence.KindFile, Path: p})
	}
	return c
}

func resolve(claims ...detect.Claim) *profile.StackProfile {
	p, _ := profile.NewResolver().Resolve(claims)
	return p
}

func synthesize(t *testing.T, p *profile.StackProfile, opts ...EngineOption) *Result {
	t.Helper()
	e, err := NewEngine(nil, opts...)
	require.NoError(t, err)
	res, err := e.Synthesize(context.Background(), p)
	require.NoError(t, err)
	return res
}

func lines(ir *buildir.IR) []string {
	out := make([]string, len(ir.Instructions))
	for i, inst := range ir.Instructions {
		out[i] = inst.String()
	}
	return out
}

func goService() *profile.StackProfile {
	return resolve(
		claim(detect.FieldLanguage, "go", 0.9, "language.go.gomod", "go.mod"),
		claim(detect.FieldPackageManager, "gomod", 0.9, "package-manager.go.modules", "go.mod"),
		claim(detect.FieldRuntimeVersion, "1.23", 0.95, "runtime.go.directive", "go.mod"),
		claim(detect.FieldBuildCommand, `go build -trimpath -ldflags="-s -w" -o /out/app ./cmd/api`, 0.6, "build.go.default", "go.mod"),
		claim(detect.FieldEntrypoint, "./cmd/api", 0.8, "entrypoint.go.main-package", "cmd/api/main.go"),
		claim(detect.FieldExposedPort, "8080", 0.8, "port.source.listen", "cmd/api/main.go"),
	)
}

func fastAPIService() *profile.StackProfile {
	return resolve(
		claim(detect.FieldLanguage, "python", 0.9, "language.python.requirements", "requirements.txt"),
		claim(detect.FieldPackageManager, "pip", 0.7, "package-manager.python.manifest", "requirements.txt"),
		claim(detect.FieldFramework, "fastapi", 0.8, "framework.python.dependency", "requirements.txt"),
		claim(detect.FieldEntrypoint, "main.py", 0.5, "entrypoint.python.conventional", "main.py"),
		claim(detect.FieldExposedPort, "8000", 0.5, "port.framework-default", "requirements.txt"),
		claim(detect.FieldRunCommand, "uvicorn main:app --host 0.0.0.0 --port 8000", 0.75, "run.python.asgi", "requirements.txt"),
	)
}

func TestCompiledLanguageBuildsInTwoStages(t *testing.T) {
	res := synthesize(t, goService())

	want := []string{
		"STAGE_BOUNDARY[build] build",
		"BASE_IMAGE[build] golang:1.23-bookworm",
		"WORKDIR[build] /src",
		"ENV[build] CGO_ENABLED 0",
		"COPY[build] go.mod go.sum* ./",
		"RUN[build] go mod download",
		"COPY[build] . .",
		`RUN[build] go build -trimpath -ldflags="-s -w" -o /out/app ./cmd/api`,
		"STAGE_BOUNDARY[final] final",
		"BASE_IMAGE[final] gcr.io/distroless/static-debian12:nonroot",
		"WORKDIR[final] /app",
		"COPY[final] --from=build /out/ /app/",
		"USER[final] 65532:65532",
		"EXPOSE[final] 8080",
		"ENTRYPOINT[final] /app/app",
	}
	if diff := cmp.Diff(want, lines(res.IR)); diff != "" {
		t.Fatalf("unexpected instructions (-want +got):\n%s", diff)
	}

	require.Equal(t, []buildir.Stage{{Name: "build"}, {Name: "final", Final: true}}, res.IR.Stages)
	for _, inst := range res.IR.InStage(StageFinal) {
		require.NotEqual(t, buildir.Run, inst.Kind, "final stage must not run toolchain commands")
	}

	d, ok := res.Decision("source.copy")
	require.True(t, ok)
	require.Equal(t, NotApplicable, d.Outcome)
	d, _ = res.Decision("user.create")
	require.Equal(t, NotApplicable, d.Outcome)
	require.Empty(t, res.Diagnostics)
}

func TestNodeBuildPrunesDevDependencies(t *testing.T) {
	p := resolve(
		claim(detect.FieldLanguage, "typescript", 0.9, "language.typescript.tsconfig", "tsconfig.json"),
		claim(detect.FieldPackageManager, "npm", 0.95, "package-manager.node.lockfile", "package-lock.json"),
		claim(detect.FieldBuildCommand, "npm run build", 0.9, "build.node.script", "package.json"),
		claim(detect.FieldEntrypoint, "dist/index.js", 0.8, "entrypoint.node.main", "package.json"),
		claim(detect.FieldRuntimeVersion, "22", 0.95, "runtime.node.version-file", ".nvmrc"),
	)
	res := synthesize(t, p)

	want := []string{
		"STAGE_BOUNDARY[build] build",
		"BASE_IMAGE[build] node:22-bookworm-slim",
		"WORKDIR[build] /src",
		"COPY[build] package*.json npm-shrinkwrap.json* ./",
		"RUN[build] npm ci",
		"COPY[build] . .",
		"RUN[build] npm run build",
		"RUN[build] npm prune --omit=dev",
		"STAGE_BOUNDARY[final] final",
		"BASE_IMAGE[final] node:22-bookworm-slim",
		"WORKDIR[final] /app",
		"ENV[final] NODE_ENV production",
		"COPY[final] --from=build /src/ /app/",
		"USER[final] node",
		"ENTRYPOINT[final] node dist/index.js",
	}
	if diff := cmp.Diff(want, lines(res.IR)); diff != "" {
		t.Fatalf("unexpected instructions (-want +got):\n%s", diff)
	}
}

func TestInterpretedLanguageSingleStage(t *testing.T) {
	res := synthesize(t, fastAPIService())

	want := []string{
		"STAGE_BOUNDARY[final] final",
		"BASE_IMAGE[final] python:3.12-slim",
		"WORKDIR[final] /app",
		"ENV[final] PYTHONDONTWRITEBYTECODE 1",
		"ENV[final] PYTHONUNBUFFERED 1",
		"ENV[final] PIP_DISABLE_PIP_VERSION_CHECK 1",
		"COPY[final] requirements.txt ./",
		"RUN[final] pip install --no-cache-dir -r requirements.txt",
		"RUN[final] groupadd --system --gid 10001 app && useradd --system --uid 10001 --gid 10001 --no-create-home --shell /usr/sbin/nologin app",
		"COPY[final] . .",
		"USER[final] 10001:10001",
		"EXPOSE[final] 8000",
		"ENTRYPOINT[final] uvicorn main:app --host 0.0.0.0 --port 8000",
	}
	if diff := cmp.Diff(want, lines(res.IR)); diff != "" {
		t.Fatalf("unexpected instructions (-want +got):\n%s", diff)
	}

	require.Len(t, res.Superseded, 1)
	require.Equal(t, "entrypoint.derived", res.Superseded[0].Instruction.PolicyID)
	require.Equal(t, "entrypoint.run-command", res.Superseded[0].By)
	require.Equal(t, []string{"python", "main.py"}, res.Superseded[0].Instruction.Args)
}

func TestNonRootOptOutIsRecorded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NonRootUser = false
	res := synthesize(t, fastAPIService(), WithConfig(cfg))

	users := res.IR.Find(buildir.User)
	require.Len(t, users, 1)
	require.Equal(t, []string{"root"}, users[0].Args)
	require.Contains(t, users[0].Reason, "opt-out")

	var optOut *Decision
	for i, d := range res.Decisions {
		if d.Outcome == OptedOut {
			optOut = &res.Decisions[i]
		}
	}
	require.NotNil(t, optOut)
	require.Equal(t, "user.nonroot", optOut.Policy)
	require.Equal(t, InvariantNonRoot, optOut.Invariant)

	d, _ := res.Decision("user.create")
	require.Equal(t, NotApplicable, d.Outcome)
}

func violationOf(t *testing.T, err error) *diag.InvariantViolation {
	t.Helper()
	var v *diag.InvariantViolation
	require.True(t, errors.As(err, &v), "expected an invariant violation, got %v", err)
	return v
}

func TestNonRootUserCannotBeDroppedSilently(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Disable = []string{"user.nonroot"}
	e, err := NewEngine(nil, WithConfig(cfg))
	require.NoError(t, err)

	_, err = e.Synthesize(context.Background(), fastAPIService())
	require.Equal(t, InvariantNonRoot, violationOf(t, err).Invariant)
}

func TestUnpinnedBaseImageFailsClosed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseImages = map[string]string{"python": "python:latest"}
	e, err := NewEngine(nil, WithConfig(cfg))
	require.NoError(t, err)

	_, err = e.Synthesize(context.Background(), fastAPIService())
	v := violationOf(t, err)
	require.Equal(t, InvariantPinned, v.Invariant)
	require.Equal(t, "base-image.select", v.Rule)
}

func TestDigestPinning(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseImagePinning = PinDigest

	lock, err := imageref.NewLock().With("python:3.12-slim", testDigest)
	require.NoError(t, err)

	res := synthesize(t, fastAPIService(), WithConfig(cfg), WithLock(lock))
	require.Equal(t, []string{"python:3.12-slim@" + testDigest}, res.IR.Find(buildir.BaseImage)[0].Args)

	e, err := NewEngine(nil, WithConfig(cfg))
	require.NoError(t, err)
	_, err = e.Synthesize(context.Background(), fastAPIService())
	require.Equal(t, InvariantDigest, violationOf(t, err).Invariant)
}

func TestMissingRequiredFieldSkipsRule(t *testing.T) {
	p := resolve(
		claim(detect.FieldLanguage, "python", 0.9, "language.python.requirements", "requirements.txt"),
	)
	res := synthesize(t, p)

	require.Empty(t, res.IR.Find(buildir.Entrypoint))
	d, _ := res.Decision("entrypoint.derived")
	require.Equal(t, Unresolved, d.Outcome)
	require.Equal(t, []detect.Field{detect.FieldEntrypoint}, d.Fields)

	unresolved := res.Diagnostics.OfCode(diag.UnresolvedField)
	require.Len(t, unresolved, 1)
	require.Equal(t, "entrypoint", unresolved[0].Field)
	require.Equal(t, "entrypoint.derived", unresolved[0].Source)
}

func TestFailingPolicyContributesNothing(t *testing.T) {
	reg, err := Default().With(NewRule(Spec{
		ID:       "zz.broken",
		Priority: 50,
		Emit: func(*Plan) ([]buildir.Instruction, error) {
			panic("boom")
		},
	}))
	require.NoError(t, err)

	e, err := NewEngine(reg)
	require.NoError(t, err)
	res, err := e.Synthesize(context.Background(), goService())
	require.NoError(t, err)

	d, _ := res.Decision("zz.broken")
	require.Equal(t, Failed, d.Outcome)
	internal := res.Diagnostics.OfCode(diag.InternalRuleError)
	require.Len(t, internal, 1)
	require.Contains(t, internal[0].Message, "boom")
}

func TestMalformedBaseImageIsAViolation(t *testing.T) {
	reg, err := Default().With(NewRule(Spec{
		ID:       "zz.bad-base",
		Priority: 21,
		Emit: func(*Plan) ([]buildir.Instruction, error) {
			return []buildir.Instruction{{Kind: buildir.BaseImage, Stage: StageFinal}}, nil
		},
	}))
	require.NoError(t, err)

	e, err := NewEngine(reg)
	require.NoError(t, err)
	require.NotPanics(t, func() {
		_, err = e.Synthesize(context.Background(), goService())
	})
	v := violationOf(t, err)
	require.Equal(t, buildir.InvariantWellFormed, v.Invariant)
	require.Equal(t, "zz.bad-base", v.Rule)
}

func TestExposeMustMatchProfile(t *testing.T) {
	reg, err := Default().With(NewRule(Spec{
		ID:       "zz.extra-port",
		Priority: 86,
		Emit: func(*Plan) ([]buildir.Instruction, error) {
			return []buildir.Instruction{buildir.NewExpose(StageFinal, "9999")}, nil
		},
	}))
	require.NoError(t, err)

	e, err := NewEngine(reg)
	require.NoError(t, err)
	_, err = e.Synthesize(context.Background(), goService())
	v := violationOf(t, err)
	require.Equal(t, InvariantExposedPorts, v.Invariant)
	require.Equal(t, "zz.extra-port", v.Rule)
}

func TestDisableUnknownPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Disable = []string{"no.such.policy"}
	_, err := NewEngine(nil, WithConfig(cfg))
	require.ErrorContains(t, err, "no.such.policy")
}

func TestDisabledPolicyIsRecorded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Disable = []string{"env.runtime"}
	res := synthesize(t, fastAPIService(), WithConfig(cfg))

	require.Empty(t, res.IR.Find(buildir.Env))
	d, _ := res.Decision("env.runtime")
	require.Equal(t, Disabled, d.Outcome)
}

func TestForeignRuntimeVersionIsIgnored(t *testing.T) {
	p := resolve(
		claim(detect.FieldLanguage, "python", 0.9, "language.python.requirements", "requirements.txt"),
		claim(detect.FieldRuntimeVersion, "20", 0.95, "runtime.node.version-file", ".nvmrc"),
		claim(detect.FieldEntrypoint, "app.py", 0.5, "entrypoint.python.conventional", "app.py"),
	)
	res := synthesize(t, p)

	require.Equal(t, []string{"python:3.12-slim"}, res.IR.Find(buildir.BaseImage)[0].Args)
	require.True(t, res.Diagnostics.Has(diag.UnresolvedField))
}

func TestLabelsAndUnsupportedLanguage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Labels = map[string]string{
		"org.opencontainers.image.title":  "api",
		"org.opencontainers.image.source": "https://example.com/api",
	}
	res := synthesize(t, goService(), WithConfig(cfg))

	labels := res.IR.Find(buildir.Label)
	require.Len(t, labels, 2)
	require.Equal(t, "org.opencontainers.image.source", labels[0].Args[0])

	e, err := NewEngine(nil)
	require.NoError(t, err)
	_, err = e.Synthesize(context.Background(), resolve(claim(detect.FieldLanguage, "cobol", 0.9, "language.cobol")))
	require.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestRegistryOrder(t *testing.T) {
	require.Equal(t, []string{
		"structure.stages",
		"base-image.select",
		"metadata.labels",
		"workdir.set",
		"env.runtime",
		"deps.manifest-first",
		"user.create",
		"build.compile",
		"source.copy",
		"artifact.copy",
		"user.nonroot",
		"expose.ports",
		"entrypoint.derived",
		"entrypoint.run-command",
	}, Default().IDs())

	_, err := NewRegistry(Default().Rules()[0], Default().Rules()[0])
	require.ErrorContains(t, err, "duplicate")

	_, err = NewRegistry(NewRule(Spec{ID: "user.nonroot ", Priority: 90}))
	require.ErrorContains(t, err, "surrounding whitespace")
}
