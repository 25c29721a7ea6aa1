// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists telemetry records in SQLite. It implements
// sink.Storage, so it plugs into the scheduler or the stream
// bridge's pull path unchanged.
//
// Each record kind has its own table (events, metrics, spans) keyed
// by record ID with an indexed time column. Batches commit in one
// immediate transaction; since IDs are primary keys and inserts
// replace, redelivering a batch is harmless. Rows that no longer
// decode — a corrupted tags column, an enum renamed across versions
// — are skipped on read, never fatal.
//
// The daemon's retention sweep calls DeleteBefore to age out old
// records in place.
package store
