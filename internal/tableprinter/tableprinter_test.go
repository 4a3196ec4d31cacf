// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package tableprinter

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	tp, err := NewTablePrinter(context.Background(), WithMaxWidth(120))
	require.NoError(t, err)

	tp.AddField("FIELD", nil)
	tp.AddField("VALUE", nil)
	tp.EndRow()
	tp.AddField("language", nil)
	tp.AddField("python", strings.ToUpper)
	tp.EndRow()
	tp.AddField("entrypoint", nil)
	tp.AddField("main.py", nil)

	var buf bytes.Buffer
	require.NoError(t, tp.Render(&buf))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[0], "FIELD")
	require.Contains(t, lines[1], "PYTHON")
	require.Contains(t, lines[2], "main.py")
	require.Equal(t, strings.Index(lines[1], "PYTHON"), strings.Index(lines[2], "main.py"))

	_, err = NewTablePrinter(context.Background(), WithMaxWidth(-1))
	require.Error(t, err)
}
