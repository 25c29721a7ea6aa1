// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"context"
	"sync"

	"github.com/ocaravaca73/RIMP/telemetry"
)

// MemorySink retains delivered records in memory, bounded per record
// kind. Intended for tests, inspection, and short-lived processes
// that want queryable telemetry without touching disk.
type MemorySink struct {
	mu        sync.Mutex
	retention int
	events    []telemetry.Record
	metrics   []telemetry.Record
	spans     []telemetry.Record
}

// NewMemorySink creates a MemorySink keeping at most retention
// records of each kind, evicting oldest first. A retention of 0
// keeps everything.
func NewMemorySink(retention int) *MemorySink {
	return &MemorySink{retention: retention}
}

// Name implements Sink.
func (s *MemorySink) Name() string { return "memory" }

// Deliver implements Sink. Records of unknown kind are ignored.
func (s *MemorySink) Deliver(ctx context.Context, batch telemetry.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range batch {
		switch record.(type) {
		case *telemetry.Event:
			s.events = s.appendBounded(s.events, record)
		case *telemetry.Metric:
			s.metrics = s.appendBounded(s.metrics, record)
		case *telemetry.Span:
			s.spans = s.appendBounded(s.spans, record)
		}
	}
	return nil
}

func (s *MemorySink) appendBounded(records []telemetry.Record, record telemetry.Record) []telemetry.Record {
	records = append(records, record)
	if s.retention > 0 && len(records) > s.retention {
		records[0] = nil // release for GC
		records = records[1:]
	}
	return records
}

// Retrieve implements Storage. Matching records from all kinds are
// merged and sorted by time ascending.
func (s *MemorySink) Retrieve(ctx context.Context, query Query) (telemetry.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make(telemetry.Batch, 0, len(s.events)+len(s.metrics)+len(s.spans))
	for _, retained := range [][]telemetry.Record{s.events, s.metrics, s.spans} {
		for _, record := range retained {
			if query.Matches(record.RecordHeader().Time) {
				merged = append(merged, record)
			}
		}
	}
	sortBatch(merged)
	return limitBatch(merged, query.Limit), nil
}

// Len reports how many records of each kind are currently retained.
func (s *MemorySink) Len() (events, metrics, spans int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events), len(s.metrics), len(s.spans)
}
