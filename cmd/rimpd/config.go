// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	defaultSocketPath        = "/run/rimp/rimp.sock"
	defaultDatabasePath      = "/var/lib/rimp/records.db"
	defaultRetentionSchedule = "0 3 * * *"
)

// daemonConfig is the runtime configuration for rimpd, assembled from
// built-in defaults, an optional config file, and command-line flags
// in that precedence order (flags win).
type daemonConfig struct {
	// Socket is the unix socket path the daemon listens on.
	Socket string

	// Database is the SQLite file records are stored in.
	Database string

	// RetentionAge is how long stored records are kept. Zero disables
	// retention entirely: no pruning job is scheduled.
	RetentionAge time.Duration

	// RetentionSchedule is the 5-field cron expression the pruning
	// job runs on. Ignored when RetentionAge is zero.
	RetentionSchedule string
}

func defaultDaemonConfig() daemonConfig {
	return daemonConfig{
		Socket:            defaultSocketPath,
		Database:          defaultDatabasePath,
		RetentionSchedule: defaultRetentionSchedule,
	}
}

// fileDaemonConfig is the on-disk form of [daemonConfig]. Pointer
// fields distinguish "absent, keep the default" from an explicit
// zero; retention_age is a Go duration string ("720h", "30m").
type fileDaemonConfig struct {
	Socket            *string `yaml:"socket"`
	Database          *string `yaml:"database"`
	RetentionAge      *string `yaml:"retention_age"`
	RetentionSchedule *string `yaml:"retention_schedule"`
}

// loadDaemonConfig reads a YAML config file and applies it over
// [defaultDaemonConfig]. Unknown keys are rejected.
func loadDaemonConfig(path string) (daemonConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return daemonConfig{}, fmt.Errorf("reading config: %w", err)
	}

	var file fileDaemonConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	// An empty file decodes to EOF, which means "all defaults".
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return daemonConfig{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	config := defaultDaemonConfig()
	if file.Socket != nil {
		config.Socket = *file.Socket
	}
	if file.Database != nil {
		config.Database = *file.Database
	}
	if file.RetentionAge != nil {
		age, err := time.ParseDuration(*file.RetentionAge)
		if err != nil {
			return daemonConfig{}, fmt.Errorf("parsing retention_age: %w", err)
		}
		config.RetentionAge = age
	}
	if file.RetentionSchedule != nil {
		config.RetentionSchedule = *file.RetentionSchedule
	}
	return config, nil
}

// applyFlags overlays explicitly-set flags onto c. A flag the user
// left at its default does not override a config file value.
func (c *daemonConfig) applyFlags(flags *pflag.FlagSet, values daemonConfig) {
	if flags.Changed("socket") {
		c.Socket = values.Socket
	}
	if flags.Changed("db") {
		c.Database = values.Database
	}
	if flags.Changed("retention-age") {
		c.RetentionAge = values.RetentionAge
	}
	if flags.Changed("retention-schedule") {
		c.RetentionSchedule = values.RetentionSchedule
	}
}

func (c daemonConfig) validate() error {
	if c.Socket == "" {
		return fmt.Errorf("daemon config: socket path is required")
	}
	if c.Database == "" {
		return fmt.Errorf("daemon config: database path is required")
	}
	if c.RetentionAge < 0 {
		return fmt.Errorf("daemon config: retention age must not be negative, got %s", c.RetentionAge)
	}
	if c.RetentionAge > 0 && c.RetentionSchedule == "" {
		return fmt.Errorf("daemon config: retention schedule is required when retention is enabled")
	}
	return nil
}
