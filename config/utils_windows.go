// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

//go:build windows

package config

import (
	"github.com/mitchellh/go-homedir"

	"stackcraft.sh/log"
)

func getHomeDir() string {
	home, err := homedir.Dir()
	if err != nil {
		log.L.WithError(err).Warn("could not determine home directory")
	}
	return home
}

// ChownToUser is a no-op on Windows.
func ChownToUser(string) error { return nil }

// InvokedViaSudo is always false on Windows.
func InvokedViaSudo() bool { return false }
