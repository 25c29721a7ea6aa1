// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides connection error helpers shared by the
// socket transport's server and client.
package netutil

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// IsExpectedCloseError reports whether err is a normal connection
// termination: EOF, closed connection, broken pipe, or connection
// reset. Streams tear down by closing the whole connection, so the
// surviving side's in-flight read or write fails with one of these.
// None of them should be logged as failures.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
