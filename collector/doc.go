// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

// Package collector implements the ingestion stage of the telemetry
// pipeline: a bounded staging [Buffer], the [Collector] that stamps,
// samples, tags, and admits records, and the [Scheduler] that drains
// the collector on a cadence and delivers batches to sinks.
//
// The design point is that producers never block and never see
// errors. Overload is handled by dropping (counted, observable
// through [Collector.Stats]), not by backpressure: telemetry is a
// witness to the host application, never a brake on it. The only
// blocking waits in the package are the bounded shutdown joins.
//
// Ingestion path, shared by the three typed collect calls:
//
//  1. Construct the record: fresh ID, clock time (UTC), cloned tags.
//     The record is always returned to the caller, even when the
//     pipeline is disabled or the record is sampled out.
//  2. Sampling: one uniform draw per call against SampleRate.
//  3. Default-tag merge: the record's own tags win on collision.
//  4. Buffer admission under the configured overflow policy.
//     Rejection is silent; Stats counts it.
//  5. Listener fan-out, synchronous, panic-isolated, outside all
//     buffer locks, regardless of admission outcome.
//
// The Scheduler owns the only background goroutine: a loop that
// flushes on a clock ticker and, when a flush threshold is
// configured, on the buffer's notify signal. Delivery is per-sink
// isolated in registration order; one failing or panicking sink
// never blocks the next.
package collector
