// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for RIMP packages.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (a select with a time.After fallback) for test steps
// that complete via real goroutine scheduling rather than a lib/clock
// fake. The timeout only fires on failure; a passing test never waits
// on it.
//
// [SocketDir] creates a temporary directory directly in /tmp suitable
// for Unix domain sockets. This exists because Unix domain sockets have
// a 108-byte path limit (sun_path in sockaddr_un) and nested TMPDIR
// settings can exceed it, making t.TempDir() unsuitable for socket
// files. The directory is automatically removed when the test
// completes.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no RIMP-internal dependencies.
package testutil
