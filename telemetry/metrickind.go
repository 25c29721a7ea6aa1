// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import "fmt"

// MetricKind distinguishes how a metric's value should be
// interpreted. The zero value is invalid — a metric without an
// explicit kind is a bug, not a default.
type MetricKind uint8

const (
	// MetricKindCounter is a monotonically increasing value (total
	// requests, total bytes sent). Counters only go up; resets are
	// detected by the consumer.
	MetricKindCounter MetricKind = 1

	// MetricKindGauge is an instantaneous value that can go up or
	// down (queue depth, memory usage, active connections).
	MetricKindGauge MetricKind = 2

	// MetricKindHistogram is one sample contributing to a value
	// distribution. Aggregation into buckets happens downstream; the
	// pipeline carries raw samples.
	MetricKindHistogram MetricKind = 3

	// MetricKindTimer is an elapsed-duration sample. Semantically a
	// histogram whose unit is time.
	MetricKindTimer MetricKind = 4
)

// String returns the lowercase kind name, or "metrickind(N)" for
// values outside the defined range.
func (k MetricKind) String() string {
	switch k {
	case MetricKindCounter:
		return "counter"
	case MetricKindGauge:
		return "gauge"
	case MetricKindHistogram:
		return "histogram"
	case MetricKindTimer:
		return "timer"
	default:
		return fmt.Sprintf("metrickind(%d)", uint8(k))
	}
}

// MarshalText implements encoding.TextMarshaler. Kinds serialize as
// their lowercase names in both JSON and CBOR. Marshaling a value
// outside the defined range fails with an error.
func (k MetricKind) MarshalText() ([]byte, error) {
	if k < MetricKindCounter || k > MetricKindTimer {
		return nil, fmt.Errorf("invalid metric kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *MetricKind) UnmarshalText(data []byte) error {
	parsed, err := ParseMetricKind(string(data))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseMetricKind converts a kind name to its value. Valid names are
// "counter", "gauge", "histogram", and "timer".
func ParseMetricKind(name string) (MetricKind, error) {
	switch name {
	case "counter":
		return MetricKindCounter, nil
	case "gauge":
		return MetricKindGauge, nil
	case "histogram":
		return MetricKindHistogram, nil
	case "timer":
		return MetricKindTimer, nil
	default:
		return 0, fmt.Errorf("unknown metric kind %q", name)
	}
}
