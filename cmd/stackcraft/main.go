// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2026, The stackcraft Authors.

package main

import (
	"os"

	"stackcraft.sh/internal/cli/stackcraft"
)

func main() {
	os.Exit(stackcraft.Main(os.Args))
}
