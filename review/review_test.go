// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package review

import (
	"testing"

	"github.com/MakeNowJust/heredoc"
	"github.com/stretchr/testify/require"

	"stackcraft.sh/diag"
)

func rules(r *Report) []string {
	var out []string
	for _, f := range r.Findings {
		out = append(out, f.Rule)
	}
	return out
}

func TestReviewFlagsCommonMistakes(t *testing.T) {
	report, err := ReviewString(heredoc.Doc(`
		FROM python:latest
		WORKDIR /app
		RUN pip install -r requirements.txt
		RUN apt-get update && apt-get install -y curl
		ADD . /app
	`))
	require.NoError(t, err)

	require.ElementsMatch(t, []string{
		"base.unpinned",
		"base.not-slim",
		"pip.cache",
		"pip.requirements-not-copied",
		"apt.lists",
		"add.local",
		"user.missing",
		"start.missing",
	}, rules(report))
	require.False(t, report.Passed())
	require.Equal(t, 2, report.Count(diag.SeverityError))

	for _, f := range report.Findings {
		if f.Rule == "base.unpinned" {
			require.Equal(t, 1, f.Line)
		}
		if f.Rule == "pip.cache" {
			require.Equal(t, 3, f.Line)
		}
	}
}

func TestReviewAcceptsGeneratedStyle(t *testing.T) {
	tests := []struct {
		name       string
		dockerfile string
	}{
		{
			name: "python single stage",
			dockerfile: heredoc.Doc(`
				# stage: final
				FROM python:3.12-slim AS final
				WORKDIR /app
				ENV PYTHONUNBUFFERED=1
				COPY requirements.txt ./
				RUN pip install --no-cache-dir -r requirements.txt
				RUN groupadd --system --gid 10001 app && useradd --system --uid 10001 --gid 10001 --no-create-home --shell /usr/sbin/nologin app
				COPY . .
				USER 10001:10001
				EXPOSE 8000
				ENTRYPOINT ["uvicorn", "main:app", "--host", "0.0.0.0", "--port", "8000"]
			`),
		},
		{
			name: "uv",
			dockerfile: heredoc.Doc(`
				FROM python:3.12-slim AS final
				COPY pyproject.toml uv.lock* ./
				RUN pip install --no-cache-dir uv && uv pip install --system --no-cache -r pyproject.toml
				USER 10001:10001
				CMD ["python", "main.py"]
			`),
		},
		{
			name: "go two stage",
			dockerfile: heredoc.Doc(`
				# stage: build
				FROM golang:1.22-bookworm AS build
				WORKDIR /src
				COPY go.mod go.sum* ./
				RUN go mod download
				COPY . .
				RUN go build -o /out/app .
				# stage: final
				FROM gcr.io/distroless/static-debian12:nonroot AS final
				WORKDIR /app
				COPY --from=build /out/ /app/
				USER 65532:65532
				ENTRYPOINT ["/app/app"]
			`),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := ReviewString(tt.dockerfile)
			require.NoError(t, err)
			require.Empty(t, report.Findings)
			require.True(t, report.Passed())
		})
	}
}

func TestReviewUserAndStages(t *testing.T) {
	report, err := ReviewString(heredoc.Doc(`
		FROM node:20 AS deps
		RUN npm ci
		FROM deps
		USER root
		CMD ["node", "index.js"]
	`))
	require.NoError(t, err)
	require.Equal(t, []string{"user.root"}, rules(report))
	require.Equal(t, 4, report.Findings[0].Line)
	require.True(t, report.Passed())

	d := report.Findings[0].Diagnostic("Dockerfile")
	require.Equal(t, diag.ReviewFinding, d.Code)
	require.Equal(t, diag.SeverityInfo, d.Severity)
	require.Equal(t, "Dockerfile:4", d.Path)
	require.Equal(t, "review.user.root", d.Source)
}

func TestReviewWithoutFrom(t *testing.T) {
	report, err := ReviewString("RUN echo hi\n")
	require.NoError(t, err)
	require.Equal(t, []string{"from.missing"}, rules(report))
	require.False(t, report.Passed())
}
