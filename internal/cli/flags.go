// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"stackcraft.sh/config"
	"stackcraft.sh/detect"
	"stackcraft.sh/imageref"
	"stackcraft.sh/pipeline"
	"stackcraft.sh/policy"
	"stackcraft.sh/utils"
)

// DetectFlags are accepted by every command that scans a repository.
type DetectFlags struct {
	Set map[string]string `long:"set" usage:"Settle a profile field, e.g. --set entrypoint=main.py (repeatable)"`
}

// PolicyFlags are accepted by every command that synthesizes a Dockerfile.
type PolicyFlags struct {
	Policy         string `long:"policy" usage:"Policy document (YAML or JSON)"`
	LockFile       string `long:"lock-file" usage:"Base image digest lock file"`
	ResolveDigests bool   `long:"resolve-digests" usage:"Look up base image digests missing from the lock in the registry"`
}

// Answers validates --set values.
func (f DetectFlags) Answers() (map[detect.Field]string, error) {
	if len(f.Set) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(f.Set))
	for k := range f.Set {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := map[detect.Field]string{}
	for _, k := range keys {
		field := detect.Field(strings.TrimSpace(k))
		if !field.Valid() {
			return nil, fmt.Errorf("--set %s: unknown field; choose from %s", k, fieldNames())
		}
		out[field] = strings.TrimSpace(f.Set[k])
	}
	return out, nil
}

func fieldNames() string {
	var names []string
	for _, f := range detect.Fields() {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}

// PipelineOptions combines the configuration in ctx with command flags.
// Policy flags may be nil for commands that stop at the profile.
func PipelineOptions(ctx context.Context, d DetectFlags, p *PolicyFlags) (pipeline.Options, error) {
	cfg := config.G(ctx)

	collector, err := cfg.CollectorOptions()
	if err != nil {
		return pipeline.Options{}, err
	}
	answers, err := d.Answers()
	if err != nil {
		return pipeline.Options{}, err
	}
	opts := pipeline.Options{
		Collector: collector,
		Epsilon:   cfg.Epsilon,
		Answers:   answers,
	}
	if p == nil {
		return opts, nil
	}

	if path := utils.FirstNonEmpty(p.Policy, cfg.Policy); path != "" {
		pc, err := policy.LoadConfig(path)
		if err != nil {
			return opts, err
		}
		opts.Policy = &pc
	}

	if path := utils.FirstNonEmpty(p.LockFile, cfg.LockFile); path != "" {
		opts.Lock, err = imageref.LoadLock(path)
	} else {
		opts.Lock, err = imageref.DefaultLock()
	}
	if err != nil {
		return opts, fmt.Errorf("loading image lock: %w", err)
	}

	if p.ResolveDigests {
		opts.Resolver = imageref.Remote
	}
	return opts, nil
}

// RootDir returns the repository named by args, "." by default.
func RootDir(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return "."
}
