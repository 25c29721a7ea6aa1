// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli implements the rimp command tree: nested subcommands
// with pflag flag sets, structured help output, and close-match
// suggestions for mistyped command and flag names.
package cli
