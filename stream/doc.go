// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

// Package stream decouples record producers from slow consumers and
// storage. The Bridge keeps one bounded queue per record kind and a
// single worker goroutine that fans queued records out to registered
// consumers.
//
// Records reach the bridge two ways, and the ways never overlap:
// the push path (Push, usually wired as a collector listener) feeds
// consumers exclusively, while the pull path (a periodic drain of
// the collector's buffer) feeds the configured storage exclusively.
// A record therefore reaches each destination class at most once.
//
// Full queues evict their oldest entry to admit the newest: a live
// stream is worth more current than complete.
package stream
