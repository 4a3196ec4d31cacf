// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

// Package version reports the build version, set at link time with
// -ldflags "-X stackcraft.sh/internal/version.version=...".
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	version   = ""
	commit    = ""
	buildTime = ""
)

// Version returns the release version, the module version recorded by the
// Go toolchain, or "devel".
func Version() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "devel"
}

// Commit returns the source revision, if known.
func Commit() string {
	if commit != "" {
		return commit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return ""
}

// String is the one-line description printed by the version command.
func String() string {
	s := fmt.Sprintf("stackcraft %s (%s, %s/%s)", Version(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
	if c := Commit(); c != "" {
		s += " commit " + c
	}
	if buildTime != "" {
		s += " built " + buildTime
	}
	return s
}
