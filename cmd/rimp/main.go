// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ocaravaca73/RIMP/cmd/rimp/cli"
	"github.com/ocaravaca73/RIMP/lib/process"
	"github.com/ocaravaca73/RIMP/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	// Ctrl-C cancels the context, which ends a running tail cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return rootCommand().Execute(ctx, os.Args[1:])
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:    "rimp",
		Summary: "Inspect and follow a RIMP telemetry daemon",
		Description: `Operator CLI for the RIMP telemetry pipeline.

status and tail talk to a running rimpd over its unix socket. query
reads the SQLite database directly, so it works whether or not the
daemon is up.

The socket and database locations default to the standard daemon
paths; override them with --socket / --db or the RIMP_SOCKET /
RIMP_DB environment variables.`,
		Subcommands: []*cli.Command{
			statusCommand(),
			queryCommand(),
			tailCommand(),
			versionCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "Check daemon health",
				Command:     "rimp status",
			},
			{
				Description: "Events from the last hour",
				Command:     "rimp query --kind event --start 1h",
			},
			{
				Description: "Follow live records as JSON lines",
				Command:     "rimp tail --json",
			},
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(context.Context, []string) error {
			fmt.Println(version.Full())
			return nil
		},
	}
}

// defaultSocket returns the daemon socket path: $RIMP_SOCKET if set,
// otherwise the standard daemon location.
func defaultSocket() string {
	if path := os.Getenv("RIMP_SOCKET"); path != "" {
		return path
	}
	return "/run/rimp/rimp.sock"
}

// defaultDatabase returns the record database path: $RIMP_DB if set,
// otherwise the standard daemon location.
func defaultDatabase() string {
	if path := os.Getenv("RIMP_DB"); path != "" {
		return path
	}
	return "/var/lib/rimp/records.db"
}
