// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package integration_test

import (
	"context"
	"testing"
	"time"

	"github.com/ocaravaca73/RIMP/collector"
	"github.com/ocaravaca73/RIMP/lib/clock"
	"github.com/ocaravaca73/RIMP/lib/testutil"
	"github.com/ocaravaca73/RIMP/sink"
	"github.com/ocaravaca73/RIMP/telemetry"
	"github.com/ocaravaca73/RIMP/transport"
)

// TestDaemonChainPersistsCollectedRecords runs the full production
// path: records collected in a client process flow through the
// scheduler to a remote sink, over the unix socket to the daemon,
// into the SQLite store, and come back out of a time-range query
// with every field intact.
func TestDaemonChainPersistsCollectedRecords(t *testing.T) {
	t.Parallel()

	daemon := startDaemon(t)

	remote, err := transport.NewRemoteSink(transport.RemoteSinkOptions{Client: daemon.Client})
	if err != nil {
		t.Fatalf("creating remote sink: %v", err)
	}

	fakeClock := clock.Fake(testEpoch)
	config := telemetry.DefaultConfig()
	config.FlushInterval = 100 * time.Millisecond
	config.DefaultTags = telemetry.Tags{"host": "web-1"}

	pipeline, err := collector.New(collector.Options{
		Config: config,
		Clock:  fakeClock,
		Logger: discardLogger(),
	})
	if err != nil {
		t.Fatalf("creating collector: %v", err)
	}

	scheduler, err := collector.NewScheduler(collector.SchedulerOptions{
		Collector: pipeline,
		Clock:     fakeClock,
		Logger:    discardLogger(),
		Interval:  config.FlushInterval,
	})
	if err != nil {
		t.Fatalf("creating scheduler: %v", err)
	}

	// The signal sink is registered after the remote sink; delivery
	// order is registration order, so once it fires the remote
	// delivery for the same cycle has completed.
	signal := newCapturingSink("signal")
	scheduler.RegisterSink(remote)
	scheduler.RegisterSink(signal)
	scheduler.Start()
	defer scheduler.Stop()

	event := pipeline.CollectEvent("auth", "login failed", telemetry.SeverityWarning, telemetry.Tags{"region": "eu-west"})
	fakeClock.Advance(time.Millisecond)
	metric := pipeline.CollectMetric("request.latency", 87.5, telemetry.MetricKindTimer, "ms", nil)
	fakeClock.Advance(time.Millisecond)
	span := pipeline.CollectSpan("db.query", telemetry.NewTraceID(), telemetry.NewSpanID(), telemetry.SpanID{}, 150*time.Millisecond, nil)

	fakeClock.WaitForTimers(1)
	fakeClock.Advance(config.FlushInterval)
	testutil.RequireReceive(t, signal.delivered, waitTimeout, "waiting for remote delivery")

	if dropped := remote.Dropped(); dropped != 0 {
		t.Fatalf("remote sink dropped %d records", dropped)
	}

	stored, err := daemon.Store.Retrieve(t.Context(), sink.Query{})
	if err != nil {
		t.Fatalf("retrieving from store: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("got %d stored records, want 3", len(stored))
	}

	storedEvent, ok := stored[0].(*telemetry.Event)
	if !ok {
		t.Fatalf("record 0: got %T, want *telemetry.Event", stored[0])
	}
	if storedEvent.ID != event.ID || !storedEvent.Time.Equal(event.Time) {
		t.Errorf("event identity: got %s at %v, want %s at %v", storedEvent.ID, storedEvent.Time, event.ID, event.Time)
	}
	if storedEvent.Message != "login failed" || storedEvent.Severity != telemetry.SeverityWarning {
		t.Errorf("event fields: got %+v", storedEvent)
	}
	if storedEvent.Tags["region"] != "eu-west" || storedEvent.Tags["host"] != "web-1" {
		t.Errorf("event tags: got %v, want caller and default tags", storedEvent.Tags)
	}

	storedMetric, ok := stored[1].(*telemetry.Metric)
	if !ok {
		t.Fatalf("record 1: got %T, want *telemetry.Metric", stored[1])
	}
	if storedMetric.ID != metric.ID || storedMetric.Value != 87.5 || storedMetric.Unit != "ms" {
		t.Errorf("metric fields: got %+v", storedMetric)
	}

	storedSpan, ok := stored[2].(*telemetry.Span)
	if !ok {
		t.Fatalf("record 2: got %T, want *telemetry.Span", stored[2])
	}
	if storedSpan.ID != span.ID || storedSpan.TraceID != span.TraceID || storedSpan.Duration != span.Duration {
		t.Errorf("span fields: got %+v, want %+v", storedSpan, span)
	}
	if !storedSpan.ParentSpanID.IsZero() {
		t.Errorf("root span parent: got %s, want zero", storedSpan.ParentSpanID)
	}
}

// TestDaemonChainStatusAggregates checks that the status endpoint
// combines live transport counters with stored totals from the
// database.
func TestDaemonChainStatusAggregates(t *testing.T) {
	t.Parallel()

	daemon := startDaemon(t)

	batch := telemetry.Batch{
		&telemetry.Event{Header: recordHeader(t, testEpoch), Source: "auth", Message: "ready", Severity: telemetry.SeverityInfo},
		&telemetry.Metric{Header: recordHeader(t, testEpoch.Add(time.Second)), Name: "queue.depth", Value: 4, Kind: telemetry.MetricKindGauge},
	}
	if err := daemon.Client.Submit(t.Context(), batch); err != nil {
		t.Fatalf("submitting batch: %v", err)
	}

	status, err := daemon.Client.Status(t.Context())
	if err != nil {
		t.Fatalf("fetching status: %v", err)
	}
	if status.BatchesReceived != 1 {
		t.Errorf("batches received: got %d, want 1", status.BatchesReceived)
	}
	if status.EventsReceived != 1 || status.MetricsReceived != 1 || status.SpansReceived != 0 {
		t.Errorf("received counters: got events=%d metrics=%d spans=%d",
			status.EventsReceived, status.MetricsReceived, status.SpansReceived)
	}
	if status.EventsStored != 1 || status.MetricsStored != 1 || status.SpansStored != 0 {
		t.Errorf("stored counters: got events=%d metrics=%d spans=%d",
			status.EventsStored, status.MetricsStored, status.SpansStored)
	}
}

// TestDaemonChainTailStreamsLiveRecords subscribes a tail consumer
// and confirms records submitted afterwards arrive on the live
// stream with their identity intact, without disturbing storage.
func TestDaemonChainTailStreamsLiveRecords(t *testing.T) {
	t.Parallel()

	daemon := startDaemon(t)

	tailCtx, cancelTail := context.WithCancel(context.Background())
	defer cancelTail()

	received := make(chan telemetry.Record, 16)
	tailDone := make(chan error, 1)
	go func() {
		tailDone <- daemon.Client.Tail(tailCtx, func(record telemetry.Record) {
			received <- record
		})
	}()
	waitForTailSubscribers(t, daemon, 1)

	event := &telemetry.Event{Header: recordHeader(t, testEpoch), Source: "deploy", Message: "rollout started", Severity: telemetry.SeverityInfo}
	if err := daemon.Client.Submit(t.Context(), telemetry.Batch{event}); err != nil {
		t.Fatalf("submitting batch: %v", err)
	}

	live := testutil.RequireReceive(t, received, waitTimeout, "waiting for tailed record")
	liveEvent, ok := live.(*telemetry.Event)
	if !ok {
		t.Fatalf("got %T, want *telemetry.Event", live)
	}
	if liveEvent.ID != event.ID || liveEvent.Message != "rollout started" {
		t.Errorf("tailed event: got %+v, want %+v", liveEvent, event)
	}

	// The same record also reached storage.
	events, _, _, err := daemon.Store.Counts(t.Context())
	if err != nil {
		t.Fatalf("counting stored records: %v", err)
	}
	if events != 1 {
		t.Errorf("stored events: got %d, want 1", events)
	}

	cancelTail()
	if err := testutil.RequireReceive(t, tailDone, waitTimeout, "waiting for tail shutdown"); err != nil {
		t.Errorf("tail returned error: %v", err)
	}
}
