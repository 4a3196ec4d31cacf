// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersion(t *testing.T) {
	require.NotEmpty(t, Version())
	require.True(t, strings.HasPrefix(String(), "stackcraft "+Version()))

	old := version
	t.Cleanup(func() { version = old })
	version = "v1.2.3"
	require.Equal(t, "v1.2.3", Version())
	require.Contains(t, String(), "stackcraft v1.2.3 (")
}
