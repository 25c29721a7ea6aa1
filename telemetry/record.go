// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies a record's signal class. It is the "type"
// discriminator in the record envelope and the wire name used by
// sinks, the store, and the transport.
type Kind string

const (
	// KindEvent identifies discrete occurrences: state changes,
	// errors, operator actions.
	KindEvent Kind = "event"

	// KindMetric identifies numeric measurements.
	KindMetric Kind = "metric"

	// KindSpan identifies trace spans. The wire name is "trace": the
	// envelope labels the signal class, and spans are the unit of the
	// tracing signal.
	KindSpan Kind = "trace"
)

// Header carries the fields shared by every record kind. It is
// embedded in [Event], [Metric], and [Span], so the shared fields
// serialize flat alongside the kind-specific ones.
type Header struct {
	// ID uniquely identifies this record within the emitting process.
	// Assigned exactly once at creation, never reused.
	ID uuid.UUID `json:"id" cbor:"id"`

	// Time is the creation instant, in UTC. Set exactly once when the
	// record is constructed and never mutated afterwards. JSON and
	// CBOR both carry it as RFC 3339 text with nanoseconds, so a
	// decoded record's Time equals the original as an instant.
	Time time.Time `json:"time" cbor:"time"`

	// Tags are string key-value annotations. Never nil on a record
	// that has passed through a collector: pipeline default tags fill
	// the keys the record did not set itself, and the record's own
	// values win on collision.
	Tags Tags `json:"tags,omitempty" cbor:"tags,omitempty"`
}

// Record is implemented by the three record kinds: [*Event],
// [*Metric], and [*Span]. RecordHeader returns a pointer so the
// collector can stamp identity and merge tags in place during
// admission.
type Record interface {
	RecordHeader() *Header
}

// Event is a discrete occurrence: a state change, an error, an
// operator action. Events are narrative; metrics are numeric.
type Event struct {
	Header

	// Source identifies the emitting subsystem ("auth", "scheduler",
	// "api.gateway").
	Source string `json:"source" cbor:"source"`

	// Message is the human-readable description of what happened.
	Message string `json:"message" cbor:"message"`

	// Severity classifies importance, debug through critical.
	Severity Severity `json:"severity" cbor:"severity"`
}

// RecordHeader implements [Record].
func (e *Event) RecordHeader() *Header { return &e.Header }

// Metric is a single numeric observation at a point in time.
type Metric struct {
	Header

	// Name is the measurement name, dot-scoped by convention:
	// "queue.depth", "request.latency", "cache.hits".
	Name string `json:"name" cbor:"name"`

	// Value is the observed number.
	Value float64 `json:"value" cbor:"value"`

	// Kind distinguishes how Value is interpreted: counter, gauge,
	// histogram sample, or timer.
	Kind MetricKind `json:"kind" cbor:"kind"`

	// Unit is the optional unit of measure ("ms", "bytes", "percent").
	Unit string `json:"unit,omitempty" cbor:"unit,omitempty"`
}

// RecordHeader implements [Record].
func (m *Metric) RecordHeader() *Header { return &m.Header }

// Span records one timed operation within a trace. The TraceID
// connects spans across subsystems into a causal chain; ParentSpanID
// establishes the parent-child relationship within that chain.
type Span struct {
	Header

	// TraceID is shared by every span of one distributed operation.
	TraceID TraceID `json:"trace_id" cbor:"trace_id"`

	// SpanID uniquely identifies this span within its trace.
	SpanID SpanID `json:"span_id" cbor:"span_id"`

	// ParentSpanID identifies this span's parent. Zero for root spans.
	ParentSpanID SpanID `json:"parent_span_id" cbor:"parent_span_id"`

	// Operation names the work this span represents, dot-scoped by
	// convention: "db.query", "http.request", "flush.deliver".
	Operation string `json:"operation" cbor:"operation"`

	// Duration is how long the operation took.
	Duration time.Duration `json:"duration" cbor:"duration"`
}

// RecordHeader implements [Record].
func (s *Span) RecordHeader() *Header { return &s.Header }

// KindOf returns the Kind of a record, or "" when the concrete type
// is not one of the three record kinds. Encoders reject "" with an
// error rather than guessing.
func KindOf(r Record) Kind {
	switch r.(type) {
	case *Event:
		return KindEvent
	case *Metric:
		return KindMetric
	case *Span:
		return KindSpan
	default:
		return ""
	}
}

// Batch is an ordered collection of records. Order within a batch is
// admission order; sinks receive batches, not individual records.
type Batch []Record

// Events returns the batch's events, in batch order.
func (b Batch) Events() []*Event {
	var events []*Event
	for _, record := range b {
		if event, ok := record.(*Event); ok {
			events = append(events, event)
		}
	}
	return events
}

// Metrics returns the batch's metrics, in batch order.
func (b Batch) Metrics() []*Metric {
	var metrics []*Metric
	for _, record := range b {
		if metric, ok := record.(*Metric); ok {
			metrics = append(metrics, metric)
		}
	}
	return metrics
}

// Spans returns the batch's spans, in batch order.
func (b Batch) Spans() []*Span {
	var spans []*Span
	for _, record := range b {
		if span, ok := record.(*Span); ok {
			spans = append(spans, span)
		}
	}
	return spans
}
