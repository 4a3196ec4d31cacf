// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

// Package cli holds what the stackcraft commands share: start-up options,
// pipeline flags and output helpers.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"stackcraft.sh/config"
	"stackcraft.sh/iostreams"
	"stackcraft.sh/log"
)

// ConfigFileEnv names a configuration file to read instead of the default.
const ConfigFileEnv = "STACKCRAFT_CONFIG"

type CliOptions struct {
	Config    *config.Config
	IOStreams *iostreams.IOStreams
	Logger    *logrus.Entry
}

type CliOption func(*CliOptions) error

// WithDefaultConfig loads the configuration file and environment.
func WithDefaultConfig() CliOption {
	return func(copts *CliOptions) error {
		cfg, err := config.Load(os.Getenv(ConfigFileEnv))
		if err != nil {
			return fmt.Errorf("could not load configuration: %w", err)
		}
		copts.Config = cfg
		return nil
	}
}

func WithDefaultIOStreams() CliOption {
	return func(copts *CliOptions) error {
		copts.IOStreams = iostreams.System()
		if copts.Config != nil && copts.Config.NoColor {
			copts.IOStreams.SetColorEnabled(false)
		}
		return nil
	}
}

// WithDefaultLogger builds the logger from the configuration, writing to
// the error stream.
func WithDefaultLogger() CliOption {
	return func(copts *CliOptions) error {
		if copts.Config == nil {
			return fmt.Errorf("logger requires a configuration")
		}
		l, err := log.New(log.Options{
			Level:      copts.Config.Log.Level,
			Type:       copts.Config.Log.Type,
			Timestamps: copts.Config.Log.Timestamps,
			Output:     os.Stderr,
		})
		if err != nil {
			return err
		}
		copts.Logger = l
		return nil
	}
}

// Apply stores the options in ctx.
func (copts *CliOptions) Apply(ctx context.Context) context.Context {
	if copts.Config != nil {
		ctx = config.WithConfig(ctx, copts.Config)
	}
	if copts.IOStreams != nil {
		ctx = iostreams.WithIOStreams(ctx, copts.IOStreams)
	}
	if copts.Logger != nil {
		ctx = log.WithLogger(ctx, copts.Logger)
	}
	return ctx
}

// Reconfigure rebuilds the context's logger and color setting once flags
// have been parsed into the configuration.
func Reconfigure(ctx context.Context) (context.Context, error) {
	cfg := config.G(ctx)
	if err := cfg.Validate(); err != nil {
		return ctx, err
	}
	if cfg.NoColor {
		iostreams.G(ctx).SetColorEnabled(false)
	}
	l, err := log.New(log.Options{
		Level:      cfg.Log.Level,
		Type:       cfg.Log.Type,
		Timestamps: cfg.Log.Timestamps,
		Output:     iostreams.G(ctx).ErrOut,
	})
	if err != nil {
		return ctx, err
	}
	return log.WithLogger(ctx, l), nil
}
