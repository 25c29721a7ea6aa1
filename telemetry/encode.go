// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"encoding/json"
	"fmt"

	"github.com/ocaravaca73/RIMP/lib/codec"
)

// jsonEnvelope is the self-describing JSON wrapper for one record:
// {"type":"event","data":{...}}. The file sink writes one envelope
// per line; the type tag lets readers decode data without guessing
// the concrete kind.
type jsonEnvelope struct {
	Type Kind            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// cborEnvelope is the CBOR form of the record envelope, used on the
// daemon socket wire. Data stays raw until the type tag selects the
// concrete kind to decode into.
type cborEnvelope struct {
	Type Kind             `cbor:"type"`
	Data codec.RawMessage `cbor:"data"`
}

// MarshalRecordJSON encodes a record as a self-describing JSON
// envelope. Returns an error for record types other than *Event,
// *Metric, and *Span; never panics.
func MarshalRecordJSON(r Record) ([]byte, error) {
	kind := KindOf(r)
	if kind == "" {
		return nil, fmt.Errorf("marshaling record: unsupported type %T", r)
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s data: %w", kind, err)
	}
	encoded, err := json.Marshal(jsonEnvelope{Type: kind, Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshaling %s envelope: %w", kind, err)
	}
	return encoded, nil
}

// UnmarshalRecordJSON decodes one JSON record envelope produced by
// [MarshalRecordJSON]. Unknown type tags and missing data fail with
// an error; the concrete record is returned as a [Record].
func UnmarshalRecordJSON(data []byte) (Record, error) {
	var envelope jsonEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("parsing record envelope: %w", err)
	}
	if len(envelope.Data) == 0 {
		return nil, fmt.Errorf("record envelope has no data")
	}
	return unmarshalRecordData(envelope.Type, envelope.Data, json.Unmarshal)
}

// MarshalRecordCBOR encodes a record as a self-describing CBOR
// envelope for the socket wire. Same shape as the JSON envelope.
func MarshalRecordCBOR(r Record) ([]byte, error) {
	kind := KindOf(r)
	if kind == "" {
		return nil, fmt.Errorf("marshaling record: unsupported type %T", r)
	}
	data, err := codec.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s data: %w", kind, err)
	}
	encoded, err := codec.Marshal(cborEnvelope{Type: kind, Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshaling %s envelope: %w", kind, err)
	}
	return encoded, nil
}

// UnmarshalRecordCBOR decodes one CBOR record envelope produced by
// [MarshalRecordCBOR].
func UnmarshalRecordCBOR(data []byte) (Record, error) {
	var envelope cborEnvelope
	if err := codec.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("parsing record envelope: %w", err)
	}
	if len(envelope.Data) == 0 {
		return nil, fmt.Errorf("record envelope has no data")
	}
	return unmarshalRecordData(envelope.Type, envelope.Data, codec.Unmarshal)
}

// unmarshalRecordData decodes an envelope's data payload into the
// concrete record type named by kind, using the caller's unmarshal
// function (JSON or CBOR).
func unmarshalRecordData(kind Kind, data []byte, unmarshal func([]byte, any) error) (Record, error) {
	switch kind {
	case KindEvent:
		var event Event
		if err := unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("decoding event: %w", err)
		}
		return &event, nil
	case KindMetric:
		var metric Metric
		if err := unmarshal(data, &metric); err != nil {
			return nil, fmt.Errorf("decoding metric: %w", err)
		}
		return &metric, nil
	case KindSpan:
		var span Span
		if err := unmarshal(data, &span); err != nil {
			return nil, fmt.Errorf("decoding trace span: %w", err)
		}
		return &span, nil
	default:
		return nil, fmt.Errorf("unknown record type %q", kind)
	}
}
