// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

//go:build !windows

package config

import (
	"os"
	"os/user"
	"strconv"

	"github.com/mitchellh/go-homedir"

	"stackcraft.sh/log"
)

// sudoUser describes the account that invoked sudo.
type sudoUser struct {
	HomeDir string
	UID     int
	GID     int
}

// lookupSudoUser returns the invoking account when running as root under
// sudo, nil otherwise.
func lookupSudoUser() *sudoUser {
	if os.Getuid() != 0 {
		return nil
	}
	name := os.Getenv("SUDO_USER")
	if name == "" {
		return nil
	}

	u, err := user.Lookup(name)
	if err != nil || u.HomeDir == "" {
		return nil
	}

	// SUDO_UID and SUDO_GID win over the passwd entry.
	uid, gid := u.Uid, u.Gid
	if v := os.Getenv("SUDO_UID"); v != "" {
		uid = v
	}
	if v := os.Getenv("SUDO_GID"); v != "" {
		gid = v
	}

	info := &sudoUser{HomeDir: u.HomeDir}
	info.UID, _ = strconv.Atoi(uid)
	info.GID, _ = strconv.Atoi(gid)
	return info
}

// getHomeDir returns the home directory holding the configuration. Under
// sudo it is the invoking user's, so privileged and unprivileged runs read
// the same file.
func getHomeDir() string {
	if info := lookupSudoUser(); info != nil {
		if _, err := os.Stat(info.HomeDir); err == nil {
			return info.HomeDir
		}
	}
	home, err := homedir.Dir()
	if err != nil {
		log.L.WithError(err).Warn("could not determine home directory")
	}
	return home
}

// ChownToUser hands a file written under sudo back to the invoking user.
// It does nothing otherwise.
func ChownToUser(path string) error {
	info := lookupSudoUser()
	if info == nil || info.UID == 0 {
		return nil
	}
	return os.Chown(path, info.UID, info.GID)
}

// InvokedViaSudo reports whether the process runs as root on behalf of
// another user.
func InvokedViaSudo() bool {
	return lookupSudoUser() != nil
}
