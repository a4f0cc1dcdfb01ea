// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package buildinfo holds values stamped at build time via ldflags.
package buildinfo

var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)
