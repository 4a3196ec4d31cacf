// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

// Package tableprinter prints column-aligned tables for terminal output.
package tableprinter

import (
	"context"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// TablePrinter collects fields row by row. The first row is the header.
type TablePrinter struct {
	writer   table.Writer
	row      table.Row
	rows     int
	maxWidth int
}

type TablePrinterOption func(*TablePrinter)

// WithMaxWidth wraps rows to at most n columns; zero disables it.
func WithMaxWidth(n int) TablePrinterOption {
	return func(t *TablePrinter) { t.maxWidth = n }
}

func NewTablePrinter(_ context.Context, opts ...TablePrinterOption) (*TablePrinter, error) {
	t := &TablePrinter{writer: table.NewWriter()}
	for _, opt := range opts {
		opt(t)
	}
	if t.maxWidth < 0 {
		return nil, fmt.Errorf("negative table width %d", t.maxWidth)
	}

	style := table.StyleLight
	style.Options = table.OptionsNoBordersAndSeparators
	t.writer.SetStyle(style)
	if t.maxWidth > 0 {
		t.writer.SetAllowedRowLength(t.maxWidth)
	}
	return t, nil
}

// AddField appends a cell to the current row, styled by color when it is
// not nil.
func (t *TablePrinter) AddField(s string, color func(string) string) {
	if color != nil {
		s = color(s)
	}
	t.row = append(t.row, s)
}

// EndRow closes the current row.
func (t *TablePrinter) EndRow() {
	if t.rows == 0 {
		t.writer.AppendHeader(t.row)
	} else {
		t.writer.AppendRow(t.row)
	}
	t.rows++
	t.row = nil
}

// Render writes the table to w.
func (t *TablePrinter) Render(w io.Writer) error {
	if len(t.row) > 0 {
		t.EndRow()
	}
	_, err := fmt.Fprintln(w, t.writer.Render())
	return err
}
