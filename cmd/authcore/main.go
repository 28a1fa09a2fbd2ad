// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package main is the entry point for the authcore CLI.
package main

import (
	"fmt"
	"os"

	"github.com/holomush/authcore/internal/auth"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd := NewRootCmd(nil)
	cmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := cmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode returns 2 for expected authentication outcomes and 1 otherwise.
func exitCode(err error) int {
	if auth.IsExpected(err) {
		return 2
	}
	return 1
}
