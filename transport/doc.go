// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries telemetry between pipeline processes and
// the collector daemon over a Unix socket.
//
// Every connection opens with a CBOR handshake frame naming an
// action. "ingest" turns the connection into a batch stream: the
// server acks readiness, then the client sends batches and the server
// acks each one. "tail" streams live records the other way, with
// periodic heartbeats so clients can detect a dead server. "status"
// is a single request-reply carrying daemon counters.
//
// CBOR values are self-delimiting, so the wire needs no length
// prefixes or framing beyond the values themselves. Records travel
// inside the same self-describing envelopes the file sink writes,
// encoded with the deterministic codec configuration.
//
// The server owns the socket file: it removes a stale file before
// listening and removes its own on shutdown. Context cancellation
// closes the listener and all in-flight connections; Serve returns
// once every handler has finished.
package transport
