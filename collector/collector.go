// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ocaravaca73/RIMP/lib/clock"
	"github.com/ocaravaca73/RIMP/telemetry"
)

// Listener receives every record that passes sampling, synchronously
// on the producing goroutine. Listeners must be fast; a slow listener
// slows the producer. A panicking listener is recovered and counted,
// and never affects the producer or other listeners.
type Listener func(telemetry.Record)

// ListenerHandle identifies a registered listener for later removal.
type ListenerHandle struct {
	fn Listener
}

// Options configures a Collector. Config carries the pipeline
// parameters; Clock and Logger are required so that tests control
// time and output.
type Options struct {
	Config telemetry.Config
	Clock  clock.Clock
	Logger *slog.Logger
}

// Stats is a point-in-time snapshot of collector counters. Counters
// only ever increase; two snapshots bracket the activity between
// them.
type Stats struct {
	EventsCollected  uint64
	MetricsCollected uint64
	SpansCollected   uint64
	SampledOut       uint64
	Admitted         uint64
	Dropped          uint64
	ListenerPanics   uint64
}

// Collector is the ingestion front of the pipeline. Producers call
// the Collect methods from any goroutine; each call stamps a record,
// applies sampling and default tags, stages the record in the
// bounded buffer, and fans it out to listeners — all without
// blocking and without surfacing errors to the producer.
type Collector struct {
	config telemetry.Config
	clock  clock.Clock
	logger *slog.Logger
	buffer *Buffer

	// randFloat returns a uniform draw in [0, 1) for sampling.
	// Swapped in tests for deterministic admission decisions.
	randFloat func() float64

	listenerMu sync.RWMutex
	listeners  []*ListenerHandle

	eventsCollected  atomic.Uint64
	metricsCollected atomic.Uint64
	spansCollected   atomic.Uint64
	sampledOut       atomic.Uint64
	admitted         atomic.Uint64
	listenerPanics   atomic.Uint64
}

// New validates the configuration and constructs a Collector. The
// default tags are cloned so later mutation of the caller's map
// cannot change tagging behavior.
func New(options Options) (*Collector, error) {
	if err := options.Config.Validate(); err != nil {
		return nil, err
	}
	if options.Clock == nil {
		return nil, fmt.Errorf("collector: Clock is required")
	}
	if options.Logger == nil {
		return nil, fmt.Errorf("collector: Logger is required")
	}
	config := options.Config
	config.DefaultTags = config.DefaultTags.Clone()
	return &Collector{
		config:    config,
		clock:     options.Clock,
		logger:    options.Logger,
		buffer:    NewBuffer(config.BufferCapacity, config.OverflowPolicy, config.FlushThreshold),
		randFloat: rand.Float64,
	}, nil
}

// CollectEvent records a discrete occurrence. The returned event is
// always non-nil and fully stamped, whether or not the pipeline
// admitted it.
func (c *Collector) CollectEvent(source, message string, severity telemetry.Severity, tags telemetry.Tags) *telemetry.Event {
	event := &telemetry.Event{
		Header:   c.newHeader(tags),
		Source:   source,
		Message:  message,
		Severity: severity,
	}
	if !c.config.Enabled {
		return event
	}
	c.eventsCollected.Add(1)
	c.admit(event)
	return event
}

// CollectMetric records a named measurement.
func (c *Collector) CollectMetric(name string, value float64, kind telemetry.MetricKind, unit string, tags telemetry.Tags) *telemetry.Metric {
	metric := &telemetry.Metric{
		Header: c.newHeader(tags),
		Name:   name,
		Value:  value,
		Kind:   kind,
		Unit:   unit,
	}
	if !c.config.Enabled {
		return metric
	}
	c.metricsCollected.Add(1)
	c.admit(metric)
	return metric
}

// CollectSpan records a completed unit of traced work. A zero
// parentSpanID marks a root span.
func (c *Collector) CollectSpan(operation string, traceID telemetry.TraceID, spanID telemetry.SpanID, parentSpanID telemetry.SpanID, duration time.Duration, tags telemetry.Tags) *telemetry.Span {
	span := &telemetry.Span{
		Header:       c.newHeader(tags),
		TraceID:      traceID,
		SpanID:       spanID,
		ParentSpanID: parentSpanID,
		Operation:    operation,
		Duration:     duration,
	}
	if !c.config.Enabled {
		return span
	}
	c.spansCollected.Add(1)
	c.admit(span)
	return span
}

func (c *Collector) newHeader(tags telemetry.Tags) telemetry.Header {
	return telemetry.Header{
		ID:   uuid.New(),
		Time: c.clock.Now().UTC(),
		Tags: tags.Clone(),
	}
}

// admit runs the post-construction pipeline stages: sampling,
// default-tag merge, buffer admission, listener fan-out. Buffer
// rejection is silent toward the producer; the buffer's drop counter
// is the only witness.
func (c *Collector) admit(record telemetry.Record) {
	if c.config.SampleRate < 1.0 && c.randFloat() >= c.config.SampleRate {
		c.sampledOut.Add(1)
		return
	}
	record.RecordHeader().Tags.Merge(c.config.DefaultTags)
	if c.buffer.Admit(record) {
		c.admitted.Add(1)
	}
	c.notifyListeners(record)
}

func (c *Collector) notifyListeners(record telemetry.Record) {
	c.listenerMu.RLock()
	handles := make([]*ListenerHandle, len(c.listeners))
	copy(handles, c.listeners)
	c.listenerMu.RUnlock()

	for _, handle := range handles {
		c.invokeListener(handle, record)
	}
}

func (c *Collector) invokeListener(handle *ListenerHandle, record telemetry.Record) {
	defer func() {
		if recovered := recover(); recovered != nil {
			c.listenerPanics.Add(1)
			c.logger.Error("telemetry listener panicked", "panic", recovered)
		}
	}()
	handle.fn(record)
}

// RegisterListener adds a listener to the synchronous fan-out and
// returns a handle for removal. Listeners see records that pass
// sampling, including records the buffer rejected.
func (c *Collector) RegisterListener(listener Listener) *ListenerHandle {
	handle := &ListenerHandle{fn: listener}
	c.listenerMu.Lock()
	c.listeners = append(c.listeners, handle)
	c.listenerMu.Unlock()
	return handle
}

// UnregisterListener removes a previously registered listener.
// Removing a handle twice, or a handle from another collector, is a
// no-op.
func (c *Collector) UnregisterListener(handle *ListenerHandle) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	for i, registered := range c.listeners {
		if registered == handle {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			return
		}
	}
}

// Flush drains the buffer and returns the batch in admission order.
// Safe to call at any time, with or without a running scheduler.
// Returns nil when the buffer is empty.
func (c *Collector) Flush() telemetry.Batch {
	return c.buffer.Drain()
}

// Stats returns a snapshot of the collector's counters. Dropped
// comes from the buffer, which is the single source of truth for
// overflow accounting.
func (c *Collector) Stats() Stats {
	return Stats{
		EventsCollected:  c.eventsCollected.Load(),
		MetricsCollected: c.metricsCollected.Load(),
		SpansCollected:   c.spansCollected.Load(),
		SampledOut:       c.sampledOut.Load(),
		Admitted:         c.admitted.Load(),
		Dropped:          c.buffer.Dropped(),
		ListenerPanics:   c.listenerPanics.Load(),
	}
}

// Buffer exposes the collector's staging buffer. The scheduler
// selects on its Notify channel; tests inspect its size directly.
func (c *Collector) Buffer() *Buffer {
	return c.buffer
}
