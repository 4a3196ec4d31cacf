// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

// Package log carries a logrus logger through a context.Context.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// LoggerType selects the output formatter.
type LoggerType string

const (
	QUIET = LoggerType("quiet")
	BASIC = LoggerType("basic")
	FANCY = LoggerType("fancy")
	JSON  = LoggerType("json")
)

// LoggerTypes lists the accepted logger types.
func LoggerTypes() []LoggerType {
	return []LoggerType{QUIET, BASIC, FANCY, JSON}
}

// L is the default logger, used when the context carries none.
var L = logrus.NewEntry(logrus.StandardLogger())

type loggerKey struct{}

// WithLogger returns a new context with the provided logger.
func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// G returns the logger in the context, or the default logger.
func G(ctx context.Context) *logrus.Entry {
	if ctx == nil {
		return L
	}
	if logger, ok := ctx.Value(loggerKey{}).(*logrus.Entry); ok && logger != nil {
		return logger
	}
	return L
}

// Options configure New.
type Options struct {
	Level      string
	Type       string
	Timestamps bool
	Output     io.Writer
}

// New builds a logger from textual options as found in the configuration.
func New(opts Options) (*logrus.Entry, error) {
	logger := logrus.New()

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	logger.SetOutput(out)

	level := strings.TrimSpace(opts.Level)
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}
	logger.SetLevel(lvl)

	switch LoggerType(strings.ToLower(strings.TrimSpace(opts.Type))) {
	case QUIET:
		logger.SetOutput(io.Discard)
	case JSON:
		logger.SetFormatter(&logrus.JSONFormatter{
			DisableTimestamp: !opts.Timestamps,
		})
	case BASIC:
		logger.SetFormatter(&logrus.TextFormatter{
			DisableColors:    true,
			FullTimestamp:    opts.Timestamps,
			DisableTimestamp: !opts.Timestamps,
		})
	case FANCY, "":
		logger.SetFormatter(&logrus.TextFormatter{
			ForceColors:      isTerminal(out),
			DisableColors:    !isTerminal(out),
			FullTimestamp:    opts.Timestamps,
			DisableTimestamp: !opts.Timestamps,
		})
	default:
		return nil, fmt.Errorf("unknown log type %q", opts.Type)
	}

	return logrus.NewEntry(logger), nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
