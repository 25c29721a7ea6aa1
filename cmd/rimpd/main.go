// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"

	"github.com/ocaravaca73/RIMP/lib/clock"
	"github.com/ocaravaca73/RIMP/lib/process"
	"github.com/ocaravaca73/RIMP/lib/version"
	"github.com/ocaravaca73/RIMP/store"
	"github.com/ocaravaca73/RIMP/transport"
)

// retentionTimeout bounds one pruning pass. Pruning is a bulk DELETE
// across three tables; a pass that cannot finish in this window means
// the database is in serious trouble and the job should give up
// rather than pile onto it.
const retentionTimeout = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	flags := pflag.NewFlagSet("rimpd", pflag.ContinueOnError)
	var flagValues daemonConfig
	flags.StringVar(&flagValues.Socket, "socket", defaultSocketPath, "unix socket path for ingest, tail, and status connections")
	flags.StringVar(&flagValues.Database, "db", defaultDatabasePath, "SQLite database file for record storage")
	flags.DurationVar(&flagValues.RetentionAge, "retention-age", 0, "delete stored records older than this (0 disables retention)")
	flags.StringVar(&flagValues.RetentionSchedule, "retention-schedule", defaultRetentionSchedule, "5-field cron schedule for the retention job")
	configPath := flags.String("config", "", "YAML config file; explicit flags override file values")
	showVersion := flags.Bool("version", false, "print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	if *showVersion {
		fmt.Println(version.Full())
		return nil
	}

	config := defaultDaemonConfig()
	if *configPath != "" {
		loaded, err := loadDaemonConfig(*configPath)
		if err != nil {
			return err
		}
		config = loaded
	}
	config.applyFlags(flags, flagValues)
	if err := config.validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recordStore, err := store.Open(ctx, store.Config{
		Path:   config.Database,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	server, err := transport.NewServer(transport.ServerOptions{
		SocketPath: config.Socket,
		Handler:    recordStore.Deliver,
		Status:     recordStore.Counts,
		Clock:      clock.Real(),
		Logger:     logger,
	})
	if err != nil {
		recordStore.Close()
		return err
	}

	retention := cron.New()
	if config.RetentionAge > 0 {
		_, err := retention.AddFunc(config.RetentionSchedule, func() {
			pruneOnce(logger, recordStore, config.RetentionAge)
		})
		if err != nil {
			recordStore.Close()
			return fmt.Errorf("invalid retention schedule %q: %w", config.RetentionSchedule, err)
		}
		retention.Start()
		logger.Info("retention enabled",
			"age", config.RetentionAge.String(),
			"schedule", config.RetentionSchedule,
		)
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Serve(ctx)
	}()

	logger.Info("rimpd running",
		"socket", config.Socket,
		"database", config.Database,
	)

	<-ctx.Done()
	logger.Info("shutting down")

	// Ordered shutdown: the server drains its active connections
	// first, then the retention job finishes any in-flight pass, and
	// only then does the store close. Nothing touches the pool after
	// Close.
	if err := <-serverDone; err != nil {
		logger.Error("socket server error", "error", err)
	}
	<-retention.Stop().Done()
	if err := recordStore.Close(); err != nil {
		logger.Error("closing record store", "error", err)
	}
	return nil
}

// pruneOnce runs a single retention pass, deleting records older than
// the configured age. Failures are logged, not fatal: the next
// scheduled pass will retry.
func pruneOnce(logger *slog.Logger, recordStore *store.Store, age time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), retentionTimeout)
	defer cancel()

	cutoff := time.Now().Add(-age)
	deleted, err := recordStore.DeleteBefore(ctx, cutoff)
	if err != nil {
		logger.Error("retention pruning failed", "error", err)
		return
	}
	if deleted > 0 {
		logger.Info("retention pruned stored records",
			"records", deleted,
			"cutoff", cutoff.UTC().Format(time.RFC3339),
		)
	}
}
