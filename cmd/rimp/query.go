// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/ocaravaca73/RIMP/cmd/rimp/cli"
	"github.com/ocaravaca73/RIMP/sink"
	"github.com/ocaravaca73/RIMP/store"
	"github.com/ocaravaca73/RIMP/telemetry"
)

type queryParams struct {
	database string
	kind     string
	start    string
	end      string
	limit    int
	json     bool
}

func queryCommand() *cli.Command {
	var params queryParams

	return &cli.Command{
		Name:    "query",
		Summary: "Query stored records by time range",
		Description: `Retrieve records from the daemon's database, oldest first. The
database is read directly, so query works whether or not the
daemon is running.

Both time bounds are inclusive; an omitted bound leaves that side
open. Time values accept Go durations (1h, 30m) meaning "that long
ago", day suffixes (7d), RFC 3339 timestamps, and dates
(2026-03-01).

--kind restricts results to one record kind: event, metric, or
trace. --limit caps the number of records returned; with --kind
the cap applies after filtering.`,
		Usage: "rimp query [flags]",
		Examples: []cli.Example{
			{
				Description: "Everything from the last hour",
				Command:     "rimp query --start 1h",
			},
			{
				Description: "Events in an absolute window",
				Command:     "rimp query --kind event --start 2026-03-01T00:00:00Z --end 2026-03-02T00:00:00Z",
			},
			{
				Description: "Latest 20 spans as JSON lines",
				Command:     "rimp query --kind trace --limit 20 --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("query", pflag.ContinueOnError)
			flags.StringVar(&params.database, "db", defaultDatabase(), "SQLite database file")
			flags.StringVar(&params.kind, "kind", "", "restrict to one kind: event, metric, or trace")
			flags.StringVar(&params.start, "start", "", "start of time range (inclusive)")
			flags.StringVar(&params.end, "end", "", "end of time range (inclusive)")
			flags.IntVar(&params.limit, "limit", 100, "maximum records to return (0 = unlimited)")
			flags.BoolVar(&params.json, "json", false, "output records as JSON lines")
			return flags
		},
		Run: func(ctx context.Context, args []string) error {
			return runQuery(ctx, params)
		},
	}
}

func runQuery(ctx context.Context, params queryParams) error {
	if _, err := os.Stat(params.database); err != nil {
		return fmt.Errorf("no database at %s (is rimpd configured with a different --db?): %w", params.database, err)
	}

	query := sink.Query{Limit: params.limit}
	var err error
	if query.Start, err = parseTimeFlag(params.start); err != nil {
		return fmt.Errorf("--start: %w", err)
	}
	if query.End, err = parseTimeFlag(params.end); err != nil {
		return fmt.Errorf("--end: %w", err)
	}

	var kindFilter telemetry.Kind
	if params.kind != "" {
		if kindFilter, err = parseKindFlag(params.kind); err != nil {
			return err
		}
		// The limit applies after kind filtering, so the scan itself
		// must be uncapped.
		query.Limit = 0
	}

	// Store logs are operational noise in a CLI; errors surface
	// through return values.
	recordStore, err := store.Open(ctx, store.Config{
		Path:     params.database,
		PoolSize: 1,
		Logger:   slog.New(slog.DiscardHandler),
	})
	if err != nil {
		return err
	}
	defer recordStore.Close()

	batch, err := recordStore.Retrieve(ctx, query)
	if err != nil {
		return err
	}

	if kindFilter != "" {
		batch = filterKind(batch, kindFilter)
		if params.limit > 0 && len(batch) > params.limit {
			batch = batch[:params.limit]
		}
	}

	if params.json {
		for _, record := range batch {
			data, err := telemetry.MarshalRecordJSON(record)
			if err != nil {
				return fmt.Errorf("encoding record: %w", err)
			}
			fmt.Println(string(data))
		}
		return nil
	}

	if len(batch) == 0 {
		fmt.Println("no records found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintf(writer, "TIME\tKIND\tNAME\tDETAIL\n")
	for _, record := range batch {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
			formatTimestamp(record.RecordHeader().Time),
			telemetry.KindOf(record),
			recordName(record),
			recordDetail(record),
		)
	}
	return writer.Flush()
}

// filterKind returns the records of one kind, preserving order.
func filterKind(batch telemetry.Batch, kind telemetry.Kind) telemetry.Batch {
	filtered := make(telemetry.Batch, 0, len(batch))
	for _, record := range batch {
		if telemetry.KindOf(record) == kind {
			filtered = append(filtered, record)
		}
	}
	return filtered
}
