// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package log

import (
	"bytes"
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestGDefaultsToL(t *testing.T) {
	require.Equal(t, L, G(context.Background()))
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "debug", Type: "json", Output: &buf})
	require.NoError(t, err)

	ctx := WithLogger(context.Background(), logger)
	G(ctx).WithFields(logrus.Fields{"rule": "language.go.gomod"}).Debug("claim")

	require.Contains(t, buf.String(), `"rule":"language.go.gomod"`)
	require.Contains(t, buf.String(), `"msg":"claim"`)
}

func TestNewRejectsUnknown(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	require.Error(t, err)

	_, err = New(Options{Type: "sparkly"})
	require.Error(t, err)
}

func TestQuietDiscards(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Type: "quiet", Output: &buf})
	require.NoError(t, err)

	logger.Error("nothing to see")
	require.Empty(t, buf.String())
}
