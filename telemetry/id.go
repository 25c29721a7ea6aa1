// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/ocaravaca73/RIMP/lib/codec"
)

// TraceID is a 16-byte globally unique trace identifier. It correlates
// spans across subsystems and processes within a single distributed
// operation.
//
// Encoding: JSON uses 32-character lowercase hex text (via
// encoding.TextMarshaler). CBOR uses a 16-byte binary string (via
// cbor.Marshaler), saving 17 bytes per ID compared to hex text.
type TraceID [16]byte

// NewTraceID generates a cryptographically random 16-byte trace ID.
// Panics if the system entropy source fails — this indicates a
// system-level failure that no caller can recover from.
func NewTraceID() TraceID {
	var id TraceID
	if _, err := rand.Read(id[:]); err != nil {
		panic("telemetry: failed to generate TraceID: " + err.Error())
	}
	return id
}

// MarshalText implements encoding.TextMarshaler. Returns a 32-character
// lowercase hex string. A zero-value TraceID marshals as all zeros.
func (id TraceID) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(id[:])), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Parses a
// 32-character hex string into a TraceID.
func (id *TraceID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*id = TraceID{}
		return nil
	}
	decoded, err := hex.DecodeString(string(data))
	if err != nil {
		return fmt.Errorf("invalid TraceID hex: %w", err)
	}
	if len(decoded) != 16 {
		return fmt.Errorf("invalid TraceID: expected 16 bytes, got %d", len(decoded))
	}
	copy(id[:], decoded)
	return nil
}

// MarshalCBOR implements cbor.Marshaler. Encodes as a CBOR byte string
// (major type 2) containing the raw 16 bytes. This is 17 bytes on the
// wire versus 34 for the hex text encoding used by MarshalText.
func (id TraceID) MarshalCBOR() ([]byte, error) {
	return codec.Marshal(id[:])
}

// UnmarshalCBOR implements cbor.Unmarshaler. Decodes a CBOR byte string
// into the 16-byte array.
func (id *TraceID) UnmarshalCBOR(data []byte) error {
	var raw []byte
	if err := codec.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid TraceID CBOR: %w", err)
	}
	if len(raw) != 16 {
		return fmt.Errorf("invalid TraceID: expected 16 bytes, got %d", len(raw))
	}
	copy(id[:], raw)
	return nil
}

// IsZero reports whether this is an uninitialized zero-value TraceID.
func (id TraceID) IsZero() bool { return id == TraceID{} }

// String returns the 32-character lowercase hex representation.
func (id TraceID) String() string { return hex.EncodeToString(id[:]) }

// SpanID is an 8-byte span identifier, unique within a trace.
//
// Encoding: JSON uses 16-character lowercase hex text (via
// encoding.TextMarshaler). CBOR uses an 8-byte binary string (via
// cbor.Marshaler), saving 9 bytes per ID compared to hex text.
type SpanID [8]byte

// NewSpanID generates a cryptographically random 8-byte span ID.
// Panics if the system entropy source fails.
func NewSpanID() SpanID {
	var id SpanID
	if _, err := rand.Read(id[:]); err != nil {
		panic("telemetry: failed to generate SpanID: " + err.Error())
	}
	return id
}

// MarshalText implements encoding.TextMarshaler. Returns a 16-character
// lowercase hex string. A zero-value SpanID marshals as all zeros.
func (id SpanID) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(id[:])), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Parses a
// 16-character hex string into a SpanID.
func (id *SpanID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*id = SpanID{}
		return nil
	}
	decoded, err := hex.DecodeString(string(data))
	if err != nil {
		return fmt.Errorf("invalid SpanID hex: %w", err)
	}
	if len(decoded) != 8 {
		return fmt.Errorf("invalid SpanID: expected 8 bytes, got %d", len(decoded))
	}
	copy(id[:], decoded)
	return nil
}

// MarshalCBOR implements cbor.Marshaler. Encodes as a CBOR byte string
// (major type 2) containing the raw 8 bytes. This is 9 bytes on the
// wire versus 18 for the hex text encoding used by MarshalText.
func (id SpanID) MarshalCBOR() ([]byte, error) {
	return codec.Marshal(id[:])
}

// UnmarshalCBOR implements cbor.Unmarshaler. Decodes a CBOR byte string
// into the 8-byte array.
func (id *SpanID) UnmarshalCBOR(data []byte) error {
	var raw []byte
	if err := codec.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid SpanID CBOR: %w", err)
	}
	if len(raw) != 8 {
		return fmt.Errorf("invalid SpanID: expected 8 bytes, got %d", len(raw))
	}
	copy(id[:], raw)
	return nil
}

// IsZero reports whether this is an uninitialized zero-value SpanID.
func (id SpanID) IsZero() bool { return id == SpanID{} }

// String returns the 16-character lowercase hex representation.
func (id SpanID) String() string { return hex.EncodeToString(id[:]) }
