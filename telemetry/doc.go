// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry defines the pipeline's record model: events,
// metrics, and trace spans, plus the configuration every pipeline
// component is built from. A record is one of three concrete kinds
// sharing a common [Header] (process-unique ID, creation instant,
// tags); [Batch] is the ordered unit of delivery to sinks.
//
// Records serialize through a self-describing envelope
// {"type": ..., "data": ...} in two formats: JSON for the append-only
// file sink (one envelope per line, human-greppable) and CBOR for the
// daemon socket wire (see lib/codec for the encoding configuration).
// [MarshalRecordJSON] and friends implement the envelope; the type
// tag lets readers decode data without guessing the kind.
//
// Configuration is programmatic-first: construct a [Config], validate
// it once, hand it to a collector. [LoadConfig] reads the same
// structure from YAML or JSONC files with Go duration strings.
package telemetry
