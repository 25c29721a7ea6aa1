// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides RIMP's standard CBOR encoding configuration.
//
// RIMP uses two serialization formats with a clear boundary:
//
//   - JSON for human-facing surfaces: the append-only file sink's
//     line format, stored tag columns, and CLI output.
//   - CBOR for the wire: the pipeline↔daemon socket protocol (batch
//     submission, live tail streams, status queries).
//
// This package provides the shared CBOR encoding and decoding modes so
// that every RIMP package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes.
//
// For buffer-oriented operations (record envelopes):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (sockets):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// # Struct Tag Rules
//
// The struct tag on a type documents its serialization format:
//
//   - `cbor` tag: this type is ONLY ever serialized as CBOR. It will
//     never be marshaled to JSON. Examples: socket protocol frames
//     (handshakes, acks, tail frames).
//   - `json` tag: this type may be serialized as BOTH JSON and CBOR.
//     fxamacker/cbor falls back to json tags when no cbor tag is
//     present, so one tag set serves both formats. Examples: the
//     record model (events, metrics, spans), which flows to the file
//     sink as JSON and over the socket as CBOR.
//
// Never put both cbor and json tags on one field unless the names
// differ intentionally.
package codec
