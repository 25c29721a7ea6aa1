// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"

	"github.com/ocaravaca73/RIMP/lib/codec"
	"github.com/ocaravaca73/RIMP/telemetry"
)

// Actions selectable in the connection handshake.
const (
	actionIngest = "ingest"
	actionTail   = "tail"
	actionStatus = "status"
)

// handshake is the first CBOR value on every connection. The action
// decides what the rest of the connection carries.
type handshake struct {
	Action string `cbor:"action"`
}

// streamAck signals stream readiness and acknowledges ingested
// batches. A non-empty Error means the server is closing the stream.
type streamAck struct {
	OK    bool   `cbor:"ok"`
	Error string `cbor:"error,omitempty"`
}

// wireBatch carries one flushed batch on the ingest stream. Each
// record is a self-describing envelope from
// [telemetry.MarshalRecordCBOR]. Sequence increments per batch on a
// given connection, so the server can log delivery gaps after
// reconnects.
type wireBatch struct {
	Sequence uint64             `cbor:"sequence"`
	Records  []codec.RawMessage `cbor:"records"`
}

// Tail frame types.
const (
	tailFrameRecord    = "record"
	tailFrameHeartbeat = "heartbeat"
)

// tailFrame is one value on the tail stream: a live record, or a
// heartbeat keepalive with no payload.
type tailFrame struct {
	Type   string           `cbor:"type"`
	Record codec.RawMessage `cbor:"record,omitempty"`
}

// Status is the reply to the "status" action: the daemon's ingestion
// counters, stored record counts, and uptime.
type Status struct {
	BatchesReceived uint64  `cbor:"batches_received"`
	EventsReceived  uint64  `cbor:"events_received"`
	MetricsReceived uint64  `cbor:"metrics_received"`
	SpansReceived   uint64  `cbor:"spans_received"`
	EventsStored    int64   `cbor:"events_stored"`
	MetricsStored   int64   `cbor:"metrics_stored"`
	SpansStored     int64   `cbor:"spans_stored"`
	TailSubscribers int     `cbor:"tail_subscribers"`
	UptimeSeconds   float64 `cbor:"uptime_seconds"`
}

// encodeBatch envelopes every record of a batch for the wire.
func encodeBatch(batch telemetry.Batch, sequence uint64) (wireBatch, error) {
	records := make([]codec.RawMessage, 0, len(batch))
	for _, record := range batch {
		encoded, err := telemetry.MarshalRecordCBOR(record)
		if err != nil {
			return wireBatch{}, fmt.Errorf("encoding record for wire: %w", err)
		}
		records = append(records, codec.RawMessage(encoded))
	}
	return wireBatch{Sequence: sequence, Records: records}, nil
}

// decodeBatch decodes every wire envelope back into a concrete
// record. Any undecodable envelope fails the whole batch: the ingest
// stream is a cooperating peer, not untrusted storage, so corruption
// here means a protocol fault.
func decodeBatch(wire wireBatch) (telemetry.Batch, error) {
	batch := make(telemetry.Batch, 0, len(wire.Records))
	for _, raw := range wire.Records {
		record, err := telemetry.UnmarshalRecordCBOR(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding wire record: %w", err)
		}
		batch = append(batch, record)
	}
	return batch, nil
}
