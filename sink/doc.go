// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

// Package sink defines the delivery contract for flushed telemetry
// batches and provides the two built-in implementations: an
// in-memory ring for tests and inspection, and an append-only JSONL
// file with optional zstd-archived segment rotation.
//
// A Sink receives batches; a Storage additionally answers time-range
// queries. The scheduler and bridge treat sinks as untrusted: a
// sink's error or panic is contained and logged by the caller and
// never disturbs delivery to other sinks.
//
// Retrieve results are ordered by record time ascending, stable for
// equal instants. Query bounds are inclusive on both ends; a zero
// bound is unbounded on that side. Limit caps the total merged
// count, 0 meaning everything retained.
package sink
