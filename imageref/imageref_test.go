// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package imageref

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testDigest = "sha256:4c5a9e1f0b4a2d3c6e7f8091a2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4d5"

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Reference
	}{
		{"python:3.12-slim", Reference{Name: "python", Tag: "3.12-slim"}},
		{"localhost:5000/app", Reference{Name: "localhost:5000/app"}},
		{"localhost:5000/app:1.0", Reference{Name: "localhost:5000/app", Tag: "1.0"}},
		{"gcr.io/distroless/static-debian12:nonroot@" + testDigest, Reference{Name: "gcr.io/distroless/static-debian12", Tag: "nonroot", Digest: testDigest}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := Parse(tt.in)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.in, got.String())
		})
	}
}

func TestCheckPinned(t *testing.T) {
	require.NoError(t, CheckPinned("python:3.12-slim"))
	require.NoError(t, CheckPinned("gcr.io/distroless/static-debian12:nonroot"))
	require.NoError(t, CheckPinned("python@"+testDigest))
	require.NoError(t, CheckPinned("python:latest@"+testDigest))

	require.NoError(t, CheckPinned("gcr.io/distroless/static:nonroot@"+testDigest))

	for _, bad := range []string{"", "python", "python:latest", "node:LATEST", "localhost:5000/app", "gcr.io/distroless/static:nonroot", "gcr.io/distroless/cc:debug-nonroot"} {
		err := CheckPinned(bad)
		require.ErrorIs(t, err, ErrUnpinned, bad)
	}

	err := CheckPinned("python:3.12@sha256:xyz")
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrUnpinned))

	require.Error(t, CheckPinned("Python:3.12"))
}

func TestCatalogLookup(t *testing.T) {
	c := Default()

	img, err := c.Lookup("python", "", "", RoleFinal)
	require.NoError(t, err)
	require.Equal(t, "python:3.12-slim", img.Ref)
	require.True(t, img.Shell)
	require.Empty(t, img.User)

	img, err = c.Lookup("go", "", "1.23", RoleBuild)
	require.NoError(t, err)
	require.Equal(t, "golang:1.23-bookworm", img.Ref)

	img, err = c.Lookup("go", "", "1.23", RoleFinal)
	require.NoError(t, err)
	require.Equal(t, "gcr.io/distroless/static-debian12:nonroot", img.Ref)
	require.False(t, img.Shell)
	require.Equal(t, "65532:65532", img.User)

	img, err = c.Lookup("java", "gradle", "17", RoleBuild)
	require.NoError(t, err)
	require.Equal(t, "gradle:8.10-jdk17", img.Ref)

	img, err = c.Lookup("java", "maven", "17", RoleBuild)
	require.NoError(t, err)
	require.Equal(t, "maven:3.9-eclipse-temurin-17", img.Ref)

	img, err = c.Lookup("dotnet", "", "6.0", RoleFinal)
	require.NoError(t, err)
	require.Empty(t, img.User)
	img, err = c.Lookup("dotnet", "", "", RoleFinal)
	require.NoError(t, err)
	require.Equal(t, "app", img.User)

	_, err = c.Lookup("cobol", "", "", RoleFinal)
	require.Error(t, err)
	_, err = c.Lookup("node", "", ">=18", RoleFinal)
	require.Error(t, err)

	for _, img := range c.All() {
		require.NoError(t, CheckPinned(img.Ref), img.Ref)
	}
	require.Equal(t, []string{"dotnet", "go", "java", "node", "python", "rust"}, c.Families())
}

func TestLock(t *testing.T) {
	lock, err := NewLock().With("python:3.12-slim", testDigest)
	require.NoError(t, err)

	pinned, err := lock.Pin("python:3.12-slim")
	require.NoError(t, err)
	require.Equal(t, "python:3.12-slim@"+testDigest, pinned)

	_, err = lock.Pin("node:20-bookworm-slim")
	require.ErrorIs(t, err, ErrNotLocked)

	_, err = lock.With("python:3.11-slim", "sha256:short")
	require.Error(t, err)

	var buf bytes.Buffer
	require.NoError(t, lock.Write(&buf))
	reread, err := ReadLock(&buf)
	require.NoError(t, err)
	require.Equal(t, []string{"python:3.12-slim"}, reread.References())

	_, err = ReadLock(strings.NewReader(`{"schema_version": 2, "images": {}}`))
	require.Error(t, err)
	_, err = ReadLock(strings.NewReader(`{"schema_version": 1, "images": {"python:3.12": {"digest": "nope"}}}`))
	require.Error(t, err)
}

func TestDefaultLockLoads(t *testing.T) {
	lock, err := DefaultLock()
	require.NoError(t, err)
	require.NotNil(t, lock)
}

func TestRefresh(t *testing.T) {
	var asked []string
	r := ResolverFunc(func(_ context.Context, ref string) (string, error) {
		asked = append(asked, ref)
		return testDigest, nil
	})

	lock, err := Refresh(context.Background(), r, nil, "node:20-bookworm-slim", "golang:1.22-bookworm")
	require.NoError(t, err)
	require.Equal(t, 2, lock.Len())
	require.Equal(t, []string{"node:20-bookworm-slim", "golang:1.22-bookworm"}, asked)

	_, err = Refresh(context.Background(), r, lock, "node:latest")
	require.ErrorIs(t, err, ErrUnpinned)

	failing := ResolverFunc(func(context.Context, string) (string, error) {
		return "", errors.New("registry down")
	})
	_, err = Refresh(context.Background(), failing, lock, "python:3.12-slim")
	require.ErrorContains(t, err, "registry down")
}
