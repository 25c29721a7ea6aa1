// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"fmt"
	"time"
)

// OverflowPolicy selects what a full buffer does with the next
// record. Exactly one policy is active for a buffer's lifetime.
type OverflowPolicy uint8

const (
	// DropNewest rejects the incoming record when the buffer is full.
	// Records already admitted are never displaced, so a burst cannot
	// wipe out the history leading up to it. This is the default.
	DropNewest OverflowPolicy = 0

	// DropOldest evicts the oldest buffered record to make room for
	// the incoming one, preferring fresh data over history.
	DropOldest OverflowPolicy = 1
)

// String returns the snake_case policy name used in config files.
func (p OverflowPolicy) String() string {
	switch p {
	case DropNewest:
		return "drop_newest"
	case DropOldest:
		return "drop_oldest"
	default:
		return fmt.Sprintf("overflowpolicy(%d)", uint8(p))
	}
}

// ParseOverflowPolicy converts a policy name to its value. Valid
// names are "drop_newest" and "drop_oldest".
func ParseOverflowPolicy(name string) (OverflowPolicy, error) {
	switch name {
	case "drop_newest":
		return DropNewest, nil
	case "drop_oldest":
		return DropOldest, nil
	default:
		return 0, fmt.Errorf("unknown overflow policy %q", name)
	}
}

// Config is the pipeline configuration handed to a collector at
// construction. It is a plain value: the collector copies what it
// needs (DefaultTags are cloned), so mutating a Config after
// construction has no effect on a running pipeline. There is no
// process-wide config singleton.
type Config struct {
	// Enabled turns the pipeline on. When false, collect calls still
	// construct and return records, but nothing is buffered, sampled,
	// counted, or delivered.
	Enabled bool

	// BufferCapacity bounds the staging buffer. Must be positive.
	BufferCapacity int

	// FlushInterval is the scheduler's flush cadence. Must be
	// positive.
	FlushInterval time.Duration

	// FlushThreshold triggers an early flush when the buffer reaches
	// this size. 0 disables the threshold (interval-only flushing,
	// the default); otherwise it must be within 1..BufferCapacity.
	FlushThreshold int

	// SampleRate is the fraction of records admitted, in [0, 1]:
	// 1 admits everything, 0 admits nothing, 0.25 admits roughly a
	// quarter. Each collect call draws independently.
	SampleRate float64

	// OverflowPolicy selects the full-buffer behavior.
	OverflowPolicy OverflowPolicy

	// DefaultTags are merged into every admitted record. The record's
	// own tags win on key collision; defaults fill only missing keys.
	DefaultTags Tags
}

// DefaultConfig returns the standard pipeline configuration: enabled,
// 1024-record buffer, 5-second interval-only flushing, no sampling,
// drop-newest overflow, no default tags.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		BufferCapacity: 1024,
		FlushInterval:  5 * time.Second,
		FlushThreshold: 0,
		SampleRate:     1.0,
		OverflowPolicy: DropNewest,
		DefaultTags:    Tags{},
	}
}

// Validate checks the configuration. It runs once, at collector
// construction; invalid values fail fast and nothing is coerced.
func (c Config) Validate() error {
	if c.BufferCapacity <= 0 {
		return fmt.Errorf("telemetry config: BufferCapacity must be positive, got %d", c.BufferCapacity)
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("telemetry config: FlushInterval must be positive, got %v", c.FlushInterval)
	}
	if c.FlushThreshold < 0 || c.FlushThreshold > c.BufferCapacity {
		return fmt.Errorf("telemetry config: FlushThreshold must be within [0, BufferCapacity=%d], got %d", c.BufferCapacity, c.FlushThreshold)
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("telemetry config: SampleRate must be within [0, 1], got %g", c.SampleRate)
	}
	if c.OverflowPolicy != DropNewest && c.OverflowPolicy != DropOldest {
		return fmt.Errorf("telemetry config: unknown OverflowPolicy %d", c.OverflowPolicy)
	}
	return nil
}
