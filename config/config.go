// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

// Package config holds the user configuration of stackcraft. Values come
// from struct tag defaults, the configuration file, STACKCRAFT_* environment
// variables and command line flags, in increasing precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"stackcraft.sh/evidence"
	"stackcraft.sh/log"
)

type Config struct {
	NoColor    bool `yaml:"no_color" env:"STACKCRAFT_NO_COLOR" long:"no-color" usage:"Disable color output"`
	NoWarnSudo bool `yaml:"no_warn_sudo" env:"STACKCRAFT_NO_WARN_SUDO" long:"no-warn-sudo" usage:"Do not warn on running via sudo" default:"false"`

	Log struct {
		Level      string `yaml:"level" env:"STACKCRAFT_LOG_LEVEL" long:"log-level" usage:"Log level verbosity. Choice of: [panic, fatal, error, warn, info, debug, trace]" default:"info"`
		Timestamps bool   `yaml:"timestamps" env:"STACKCRAFT_LOG_TIMESTAMPS" long:"log-timestamps" usage:"Enable log timestamps"`
		Type       string `yaml:"type" env:"STACKCRAFT_LOG_TYPE" long:"log-type" usage:"Log type. Choice of: [quiet, basic, fancy, json]" default:"fancy"`
	} `yaml:"log"`

	Scan struct {
		MaxFileSize string        `yaml:"max_file_size" env:"STACKCRAFT_SCAN_MAX_FILE_SIZE" long:"max-file-size" usage:"Skip files larger than this size" default:"1MiB"`
		MaxDepth    int           `yaml:"max_depth" env:"STACKCRAFT_SCAN_MAX_DEPTH" long:"max-depth" usage:"Maximum directory depth to scan" default:"6"`
		Workers     int           `yaml:"workers" env:"STACKCRAFT_SCAN_WORKERS" long:"workers" usage:"Number of files read concurrently" default:"4"`
		FileTimeout time.Duration `yaml:"file_timeout" env:"STACKCRAFT_SCAN_FILE_TIMEOUT" long:"file-timeout" usage:"Time allowed to read one file" default:"2s"`
		Deadline    time.Duration `yaml:"deadline" env:"STACKCRAFT_SCAN_DEADLINE" long:"scan-deadline" usage:"Time allowed for the whole scan" default:"30s"`
		Ignore      []string      `yaml:"ignore,omitempty" env:"STACKCRAFT_SCAN_IGNORE" long:"ignore" usage:"Glob of paths to skip (repeatable)"`
		NoGitignore bool          `yaml:"no_gitignore" env:"STACKCRAFT_SCAN_NO_GITIGNORE" long:"no-gitignore" usage:"Scan paths excluded by .gitignore"`
	} `yaml:"scan"`

	Epsilon float64 `yaml:"epsilon" env:"STACKCRAFT_EPSILON" long:"epsilon" usage:"Confidence margin within which candidates tie" default:"0.05"`

	Policy   string `yaml:"policy,omitempty" env:"STACKCRAFT_POLICY" usage:"Default policy document" noattribute:"true"`
	LockFile string `yaml:"lock_file,omitempty" env:"STACKCRAFT_LOCK_FILE" usage:"Default base image lock file" noattribute:"true"`

	Advisor struct {
		Model  string `yaml:"model" env:"STACKCRAFT_ADVISOR_MODEL" usage:"Gemini model consulted by --advise" noattribute:"true" default:"gemini-2.5-flash"`
		APIKey string `yaml:"api_key,omitempty" env:"STACKCRAFT_ADVISOR_API_KEY" usage:"Gemini API key" noattribute:"true"`
	} `yaml:"advisor"`
}

// Validate checks values that cannot be expressed by their type.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	known := false
	for _, t := range log.LoggerTypes() {
		if strings.EqualFold(c.Log.Type, string(t)) {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("log.type: unknown type %q", c.Log.Type)
	}

	if _, err := c.MaxFileSize(); err != nil {
		return err
	}
	if c.Scan.MaxDepth < 1 {
		return fmt.Errorf("scan.max_depth: must be at least 1")
	}
	if c.Scan.Workers < 1 {
		return fmt.Errorf("scan.workers: must be at least 1")
	}
	if c.Scan.FileTimeout <= 0 || c.Scan.Deadline <= 0 {
		return fmt.Errorf("scan: timeouts must be positive")
	}
	if c.Epsilon < 0 || c.Epsilon >= 1 {
		return fmt.Errorf("epsilon: %v is outside [0, 1)", c.Epsilon)
	}
	return nil
}

// MaxFileSize parses Scan.MaxFileSize, which accepts humanized sizes such
// as "512KiB" or "2MB".
func (c *Config) MaxFileSize() (int64, error) {
	n, err := humanize.ParseBytes(c.Scan.MaxFileSize)
	if err != nil {
		return 0, fmt.Errorf("scan.max_file_size: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("scan.max_file_size: must be positive")
	}
	return int64(n), nil
}

// CollectorOptions translates the scan budget into collector options.
func (c *Config) CollectorOptions() ([]evidence.Option, error) {
	size, err := c.MaxFileSize()
	if err != nil {
		return nil, err
	}
	return []evidence.Option{
		evidence.WithMaxFileSize(size),
		evidence.WithMaxDepth(c.Scan.MaxDepth),
		evidence.WithWorkers(c.Scan.Workers),
		evidence.WithFileTimeout(c.Scan.FileTimeout),
		evidence.WithDeadline(c.Scan.Deadline),
		evidence.WithIgnore(c.Scan.Ignore...),
		evidence.WithGitignore(!c.Scan.NoGitignore),
	}, nil
}

// Logger builds the logger the configuration describes.
func (c *Config) Logger() (*logrus.Entry, error) {
	return log.New(log.Options{
		Level:      c.Log.Level,
		Type:       c.Log.Type,
		Timestamps: c.Log.Timestamps,
	})
}
