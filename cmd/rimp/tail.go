// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/ocaravaca73/RIMP/cmd/rimp/cli"
	"github.com/ocaravaca73/RIMP/telemetry"
	"github.com/ocaravaca73/RIMP/transport"
)

type tailParams struct {
	socket string
	json   bool
}

func tailCommand() *cli.Command {
	var params tailParams

	return &cli.Command{
		Name:    "tail",
		Summary: "Follow records live as the daemon ingests them",
		Description: `Stream records as rimpd receives them, until interrupted
(Ctrl-C).

Tail is a live view, not a replay: records ingested before the
subscription started are not delivered, and a consumer that cannot
keep up misses records rather than slowing the daemon down. Use
query for anything that must be complete.`,
		Usage: "rimp tail [flags]",
		Examples: []cli.Example{
			{
				Description: "Follow live records",
				Command:     "rimp tail",
			},
			{
				Description: "Feed live records to another tool",
				Command:     "rimp tail --json | jq .data.message",
			},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("tail", pflag.ContinueOnError)
			flags.StringVar(&params.socket, "socket", defaultSocket(), "daemon unix socket path")
			flags.BoolVar(&params.json, "json", false, "output records as JSON lines")
			return flags
		},
		Run: func(ctx context.Context, args []string) error {
			client, err := transport.Dial(params.socket)
			if err != nil {
				return err
			}
			defer client.Close()

			return client.Tail(ctx, func(record telemetry.Record) {
				printTailed(record, params.json)
			})
		},
	}
}

// printTailed writes one streamed record to stdout. Encoding failures
// go to stderr so the stream keeps flowing.
func printTailed(record telemetry.Record, asJSON bool) {
	if asJSON {
		data, err := telemetry.MarshalRecordJSON(record)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: encoding record: %v\n", err)
			return
		}
		fmt.Println(string(data))
		return
	}

	fmt.Printf("%s  %-6s  %s  %s\n",
		formatTimestamp(record.RecordHeader().Time),
		telemetry.KindOf(record),
		recordName(record),
		recordDetail(record),
	)
}
