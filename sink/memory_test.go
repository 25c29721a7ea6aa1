// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ocaravaca73/RIMP/telemetry"
)

var retentionEpoch = time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC)

func timedEvent(instant time.Time, message string) *telemetry.Event {
	return &telemetry.Event{
		Header: telemetry.Header{
			ID:   uuid.New(),
			Time: instant,
			Tags: telemetry.Tags{"env": "test"},
		},
		Source:   "test",
		Message:  message,
		Severity: telemetry.SeverityInfo,
	}
}

func timedMetric(instant time.Time, name string, value float64) *telemetry.Metric {
	return &telemetry.Metric{
		Header: telemetry.Header{
			ID:   uuid.New(),
			Time: instant,
		},
		Name:  name,
		Value: value,
		Kind:  telemetry.MetricKindGauge,
		Unit:  "ms",
	}
}

func timedSpan(instant time.Time, operation string) *telemetry.Span {
	return &telemetry.Span{
		Header: telemetry.Header{
			ID:   uuid.New(),
			Time: instant,
		},
		TraceID:   telemetry.NewTraceID(),
		SpanID:    telemetry.NewSpanID(),
		Operation: operation,
		Duration:  42 * time.Millisecond,
	}
}

func TestMemorySinkRetrieveMergesKindsAscending(t *testing.T) {
	memory := NewMemorySink(0)
	ctx := context.Background()

	batch := telemetry.Batch{
		timedSpan(retentionEpoch.Add(2*time.Minute), "db.query"),
		timedEvent(retentionEpoch, "started"),
		timedMetric(retentionEpoch.Add(time.Minute), "latency", 12.5),
	}
	if err := memory.Deliver(ctx, batch); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	retrieved, err := memory.Retrieve(ctx, Query{})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(retrieved) != 3 {
		t.Fatalf("expected 3 records, got %d", len(retrieved))
	}
	if _, ok := retrieved[0].(*telemetry.Event); !ok {
		t.Errorf("record 0: expected the earliest record (event), got %T", retrieved[0])
	}
	if _, ok := retrieved[1].(*telemetry.Metric); !ok {
		t.Errorf("record 1: expected metric, got %T", retrieved[1])
	}
	if _, ok := retrieved[2].(*telemetry.Span); !ok {
		t.Errorf("record 2: expected span, got %T", retrieved[2])
	}
}

func TestMemorySinkRetentionEvictsOldestPerKind(t *testing.T) {
	memory := NewMemorySink(2)
	ctx := context.Background()

	batch := telemetry.Batch{
		timedEvent(retentionEpoch, "evicted"),
		timedEvent(retentionEpoch.Add(time.Second), "kept-1"),
		timedEvent(retentionEpoch.Add(2*time.Second), "kept-2"),
		timedMetric(retentionEpoch, "untouched", 1),
	}
	if err := memory.Deliver(ctx, batch); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	events, metrics, spans := memory.Len()
	if events != 2 || metrics != 1 || spans != 0 {
		t.Fatalf("Len: got (%d, %d, %d), want (2, 1, 0)", events, metrics, spans)
	}

	retrieved, err := memory.Retrieve(ctx, Query{})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	for _, record := range retrieved {
		if event, ok := record.(*telemetry.Event); ok && event.Message == "evicted" {
			t.Fatal("evicted record still retrievable")
		}
	}
}

func TestMemorySinkZeroRetentionKeepsEverything(t *testing.T) {
	memory := NewMemorySink(0)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		batch := telemetry.Batch{timedEvent(retentionEpoch.Add(time.Duration(i)*time.Second), "bulk")}
		if err := memory.Deliver(ctx, batch); err != nil {
			t.Fatalf("Deliver %d: %v", i, err)
		}
	}

	events, _, _ := memory.Len()
	if events != 100 {
		t.Fatalf("expected 100 retained events, got %d", events)
	}
}

func TestMemorySinkQueryBoundsInclusive(t *testing.T) {
	memory := NewMemorySink(0)
	ctx := context.Background()

	t0 := retentionEpoch
	t1 := retentionEpoch.Add(time.Minute)
	t2 := retentionEpoch.Add(2 * time.Minute)
	batch := telemetry.Batch{
		timedEvent(t0, "first"),
		timedEvent(t1, "second"),
		timedEvent(t2, "third"),
	}
	if err := memory.Deliver(ctx, batch); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	cases := []struct {
		name  string
		query Query
		want  []string
	}{
		{"unbounded", Query{}, []string{"first", "second", "third"}},
		{"start inclusive", Query{Start: t1}, []string{"second", "third"}},
		{"end inclusive", Query{End: t1}, []string{"first", "second"}},
		{"point query", Query{Start: t1, End: t1}, []string{"second"}},
		{"empty window", Query{Start: t2.Add(time.Second)}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			retrieved, err := memory.Retrieve(ctx, tc.query)
			if err != nil {
				t.Fatalf("Retrieve: %v", err)
			}
			if len(retrieved) != len(tc.want) {
				t.Fatalf("expected %d records, got %d", len(tc.want), len(retrieved))
			}
			for i, want := range tc.want {
				if got := retrieved[i].(*telemetry.Event).Message; got != want {
					t.Errorf("record %d: got %q, want %q", i, got, want)
				}
			}
		})
	}
}

func TestMemorySinkLimitCapsMergedTotal(t *testing.T) {
	memory := NewMemorySink(0)
	ctx := context.Background()

	var batch telemetry.Batch
	for i := 0; i < 3; i++ {
		batch = append(batch,
			timedEvent(retentionEpoch.Add(time.Duration(2*i)*time.Second), fmt.Sprintf("event-%d", i)),
			timedMetric(retentionEpoch.Add(time.Duration(2*i+1)*time.Second), fmt.Sprintf("metric-%d", i), 1),
		)
	}
	if err := memory.Deliver(ctx, batch); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	retrieved, err := memory.Retrieve(ctx, Query{Limit: 4})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(retrieved) != 4 {
		t.Fatalf("expected 4 records, got %d", len(retrieved))
	}
	// The cap keeps the earliest records across both kinds.
	last := retrieved[3].RecordHeader().Time
	if !last.Equal(retentionEpoch.Add(3 * time.Second)) {
		t.Fatalf("last record time: got %v, want %v", last, retentionEpoch.Add(3*time.Second))
	}
}

func TestMemorySinkStableOrderForEqualInstants(t *testing.T) {
	memory := NewMemorySink(0)
	ctx := context.Background()

	batch := telemetry.Batch{
		timedEvent(retentionEpoch, "alpha"),
		timedEvent(retentionEpoch, "beta"),
		timedEvent(retentionEpoch, "gamma"),
	}
	if err := memory.Deliver(ctx, batch); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	retrieved, err := memory.Retrieve(ctx, Query{})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	want := []string{"alpha", "beta", "gamma"}
	for i, message := range want {
		if got := retrieved[i].(*telemetry.Event).Message; got != message {
			t.Fatalf("record %d: got %q, want %q", i, got, message)
		}
	}
}

func TestMemorySinkName(t *testing.T) {
	if got := NewMemorySink(0).Name(); got != "memory" {
		t.Fatalf("Name: got %q, want %q", got, "memory")
	}
}
