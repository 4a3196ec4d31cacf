// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package render

import (
	"strings"
	"testing"

	"github.com/moby/buildkit/frontend/dockerfile/parser"
	"github.com/stretchr/testify/require"

	"stackcraft.sh/buildir"
)

func twoStage() *buildir.IR {
	return &buildir.IR{
		Stages: []buildir.Stage{{Name: "build"}, {Name: "final", Final: true}},
		Instructions: []buildir.Instruction{
			buildir.NewBoundary("build"),
			buildir.NewBaseImage("build", "golang:1.22-bookworm"),
			buildir.NewWorkdir("build", "/src"),
			buildir.NewEnv("build", "CGO_ENABLED", "0"),
			buildir.NewCopy("build", []string{"go.mod", "go.sum*"}, "./"),
			buildir.NewRun("build", "go mod download"),
			buildir.NewCopy("build", []string{"."}, "."),
			buildir.NewRun("build", `go build -ldflags="-s -w" -o /out/app .`),
			buildir.NewBoundary("final"),
			buildir.NewBaseImage("final", "gcr.io/distroless/static-debian12:nonroot"),
			buildir.NewLabel("final", "org.opencontainers.image.title", "api server"),
			buildir.NewWorkdir("final", "/app"),
			buildir.NewEnv("final", "JAVA_TOOL_OPTIONS", "-XX:MaxRAMPercentage=75"),
			buildir.NewCopyFrom("final", "build", []string{"/out/"}, "/app/").WithChown("65532:65532"),
			buildir.NewUser("final", "65532:65532"),
			buildir.NewExpose("final", "8080"),
			buildir.NewEntrypoint("final", "/app/app", "--addr=<host>&port"),
		},
	}
}

func TestRender(t *testing.T) {
	out, err := String(twoStage())
	require.NoError(t, err)

	want := strings.Join([]string{
		"# stage: build",
		"FROM golang:1.22-bookworm AS build",
		"WORKDIR /src",
		"ENV CGO_ENABLED=0",
		"COPY go.mod go.sum* ./",
		"RUN go mod download",
		"COPY . .",
		`RUN go build -ldflags="-s -w" -o /out/app .`,
		"# stage: final",
		"FROM gcr.io/distroless/static-debian12:nonroot AS final",
		`LABEL org.opencontainers.image.title="api server"`,
		"WORKDIR /app",
		`ENV JAVA_TOOL_OPTIONS="-XX:MaxRAMPercentage=75"`,
		"COPY --from=build --chown=65532:65532 /out/ /app/",
		"USER 65532:65532",
		"EXPOSE 8080",
		`ENTRYPOINT ["/app/app", "--addr=<host>&port"]`,
	}, "\n") + "\n"
	require.Equal(t, want, out)
}

func TestRenderParsesLineForLine(t *testing.T) {
	ir := twoStage()
	lines, err := Lines(ir)
	require.NoError(t, err)
	require.Len(t, lines, len(ir.Instructions))

	res, err := parser.Parse(strings.NewReader(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)

	nodes := res.AST.Children

	n := 0
	for i, inst := range ir.Instructions {
		if inst.Kind == buildir.StageBoundary {
			require.True(t, strings.HasPrefix(lines[i], "#"))
			continue
		}
		require.Less(t, n, len(nodes))
		node := nodes[n]
		n++

		require.Equal(t, i+1, node.StartLine, "line of %s", inst)
		want := strings.ToLower(string(inst.Kind))
		if inst.Kind == buildir.BaseImage {
			want = "from"
		}
		require.Equal(t, want, node.Value)
	}
	require.Equal(t, n, len(nodes))

	from := nodes[0]
	require.Equal(t, "golang:1.22-bookworm", from.Next.Value)
	require.Equal(t, "build", from.Next.Next.Next.Value)

	entry := nodes[len(nodes)-1]
	require.True(t, entry.Attributes["json"])
	require.Equal(t, "/app/app", entry.Next.Value)
	require.Equal(t, "--addr=<host>&port", entry.Next.Next.Value)
}

func TestCopyWithSpacesUsesJSONForm(t *testing.T) {
	line, err := Line(buildir.NewCopy("final", []string{"static files/"}, "/app/static/"))
	require.NoError(t, err)
	require.Equal(t, `COPY ["static files/", "/app/static/"]`, line)

	res, err := parser.Parse(strings.NewReader(line + "\n"))
	require.NoError(t, err)
	require.True(t, res.AST.Children[0].Attributes["json"])
}

func TestRenderRejectsMalformedInstructions(t *testing.T) {
	_, err := Line(buildir.NewRun("final", "echo a\necho b"))
	require.ErrorContains(t, err, "spans lines")

	_, err = Line(buildir.Instruction{Kind: "HEALTHCHECK", Stage: "final", Args: []string{"x"}})
	require.ErrorContains(t, err, "unknown instruction kind")

	_, err = Lines(&buildir.IR{Instructions: []buildir.Instruction{{Kind: buildir.User, Stage: "final"}}})
	require.ErrorContains(t, err, "instruction 1")
}
