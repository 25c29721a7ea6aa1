// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ocaravaca73/RIMP/collector"
	"github.com/ocaravaca73/RIMP/lib/clock"
	"github.com/ocaravaca73/RIMP/sink"
	"github.com/ocaravaca73/RIMP/telemetry"
)

// BridgeState is the lifecycle position of a Bridge.
type BridgeState uint8

const (
	// BridgeIdle is the state before Start.
	BridgeIdle BridgeState = iota
	// BridgeRunning means the worker is active.
	BridgeRunning
	// BridgeStopping means Stop was called and the worker is
	// draining its queues.
	BridgeStopping
	// BridgeStopped means the worker has exited.
	BridgeStopped
)

func (s BridgeState) String() string {
	switch s {
	case BridgeIdle:
		return "idle"
	case BridgeRunning:
		return "running"
	case BridgeStopping:
		return "stopping"
	case BridgeStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// ErrShutdownTimeout reports that Stop gave up waiting for the
// worker. Queued records that the final drain would have delivered
// may be lost.
var ErrShutdownTimeout = errors.New("shutdown incomplete: bridge worker did not stop in time")

const (
	defaultStopTimeout = 5 * time.Second

	// storageTimeout bounds one pull-path delivery to storage.
	storageTimeout = 5 * time.Second
)

// Consumer receives one record at a time from the bridge worker.
// Consumers run sequentially on the worker goroutine; a slow
// consumer delays the others and lets the queues fill.
type Consumer func(telemetry.Record)

// ConsumerHandle identifies a registered consumer for later removal.
type ConsumerHandle struct {
	fn Consumer
}

// BridgeOptions configures a Bridge.
type BridgeOptions struct {
	// QueueCapacity bounds each per-kind queue. Required, positive.
	QueueCapacity int

	// Storage receives periodic drains of the collector's buffer.
	// Optional; when set, DrainInterval and Collector are required.
	Storage sink.Storage

	// DrainInterval is the pull-path period.
	DrainInterval time.Duration

	// Collector is the pull-path source.
	Collector *collector.Collector

	// Clock drives the drain ticker and the stop timeout. Required.
	Clock clock.Clock

	// Logger receives consumer and storage failures. Required.
	Logger *slog.Logger

	// StopTimeout bounds how long Stop waits for the worker. Zero
	// means 5 seconds.
	StopTimeout time.Duration
}

// Bridge fans records out from bounded per-kind queues to consumers,
// and optionally drains the collector to storage on a fixed period.
type Bridge struct {
	storage       sink.Storage
	drainInterval time.Duration
	collector     *collector.Collector
	clock         clock.Clock
	logger        *slog.Logger
	stopTimeout   time.Duration

	events  chan telemetry.Record
	metrics chan telemetry.Record
	spans   chan telemetry.Record

	evicted        atomic.Uint64
	consumerPanics atomic.Uint64

	consumerMu sync.RWMutex
	consumers  []*ConsumerHandle

	mu     sync.Mutex
	state  BridgeState
	cancel context.CancelFunc
	done   chan struct{}
}

// NewBridge validates the options and constructs a Bridge in the
// idle state. Nothing runs until Start.
func NewBridge(options BridgeOptions) (*Bridge, error) {
	if options.QueueCapacity <= 0 {
		return nil, fmt.Errorf("stream: QueueCapacity must be positive, got %d", options.QueueCapacity)
	}
	if options.Clock == nil {
		return nil, fmt.Errorf("stream: Clock is required")
	}
	if options.Logger == nil {
		return nil, fmt.Errorf("stream: Logger is required")
	}
	if options.Storage != nil {
		if options.DrainInterval <= 0 {
			return nil, fmt.Errorf("stream: DrainInterval must be positive when Storage is set, got %v", options.DrainInterval)
		}
		if options.Collector == nil {
			return nil, fmt.Errorf("stream: Collector is required when Storage is set")
		}
	}
	stopTimeout := options.StopTimeout
	if stopTimeout == 0 {
		stopTimeout = defaultStopTimeout
	}
	return &Bridge{
		storage:       options.Storage,
		drainInterval: options.DrainInterval,
		collector:     options.Collector,
		clock:         options.Clock,
		logger:        options.Logger,
		stopTimeout:   stopTimeout,
		events:        make(chan telemetry.Record, options.QueueCapacity),
		metrics:       make(chan telemetry.Record, options.QueueCapacity),
		spans:         make(chan telemetry.Record, options.QueueCapacity),
		done:          make(chan struct{}),
	}, nil
}

// Push queues a record for consumer fan-out, never blocking. When
// the record's queue is full, the oldest queued record is evicted to
// make room. The signature matches collector.Listener so a bridge
// can subscribe directly:
//
//	collector.RegisterListener(bridge.Push)
//
// Records of unknown kind are ignored.
func (b *Bridge) Push(record telemetry.Record) {
	queue := b.queueFor(record)
	if queue == nil {
		return
	}
	for {
		select {
		case queue <- record:
			return
		default:
		}
		// Queue full: evict the oldest and retry. The non-blocking
		// receive keeps concurrent pushers from deadlocking when
		// the worker empties the queue first.
		select {
		case <-queue:
			b.evicted.Add(1)
		default:
		}
	}
}

func (b *Bridge) queueFor(record telemetry.Record) chan telemetry.Record {
	switch record.(type) {
	case *telemetry.Event:
		return b.events
	case *telemetry.Metric:
		return b.metrics
	case *telemetry.Span:
		return b.spans
	default:
		return nil
	}
}

// RegisterConsumer adds a consumer to the fan-out and returns a
// handle for removal.
func (b *Bridge) RegisterConsumer(consumer Consumer) *ConsumerHandle {
	handle := &ConsumerHandle{fn: consumer}
	b.consumerMu.Lock()
	b.consumers = append(b.consumers, handle)
	b.consumerMu.Unlock()
	return handle
}

// UnregisterConsumer removes a previously registered consumer.
// Removing a handle twice is a no-op.
func (b *Bridge) UnregisterConsumer(handle *ConsumerHandle) {
	b.consumerMu.Lock()
	defer b.consumerMu.Unlock()
	for i, registered := range b.consumers {
		if registered == handle {
			b.consumers = append(b.consumers[:i], b.consumers[i+1:]...)
			return
		}
	}
}

// Pending reports how many records sit in each queue.
func (b *Bridge) Pending() (events, metrics, spans int) {
	return len(b.events), len(b.metrics), len(b.spans)
}

// Evicted returns how many queued records were evicted by Push since
// creation.
func (b *Bridge) Evicted() uint64 {
	return b.evicted.Load()
}

// Start launches the worker. Only the first call on an idle bridge
// has any effect. A stopped bridge stays stopped.
func (b *Bridge) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != BridgeIdle {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.state = BridgeRunning
	go b.run(ctx, b.done)
}

// Stop signals the worker, which drains already-queued records to
// consumers and performs a final storage drain before exiting, then
// waits up to the stop timeout. Returns ErrShutdownTimeout if the
// worker does not finish in time. Stop on a bridge that is not
// running is a no-op.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	if b.state != BridgeRunning {
		b.mu.Unlock()
		return nil
	}
	b.state = BridgeStopping
	cancel := b.cancel
	b.mu.Unlock()

	cancel()

	select {
	case <-b.done:
		return nil
	case <-b.clock.After(b.stopTimeout):
		return ErrShutdownTimeout
	}
}

// State returns the bridge's lifecycle position.
func (b *Bridge) State() BridgeState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Done returns a channel closed when the worker has exited.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

func (b *Bridge) setState(state BridgeState) {
	b.mu.Lock()
	b.state = state
	b.mu.Unlock()
}

func (b *Bridge) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer b.setState(BridgeStopped)

	// The drain ticker exists only on the pull path. A nil channel
	// never selects.
	var drain <-chan time.Time
	if b.storage != nil {
		ticker := b.clock.NewTicker(b.drainInterval)
		defer ticker.Stop()
		drain = ticker.C
	}

	for {
		select {
		case record := <-b.events:
			b.dispatch(record)
		case record := <-b.metrics:
			b.dispatch(record)
		case record := <-b.spans:
			b.dispatch(record)
		case <-drain:
			b.drainToStorage()
		case <-ctx.Done():
			b.shutdown()
			return
		}
	}
}

// shutdown empties the queues to consumers and runs one final
// storage drain so nothing already accepted is abandoned.
func (b *Bridge) shutdown() {
	for {
		select {
		case record := <-b.events:
			b.dispatch(record)
		case record := <-b.metrics:
			b.dispatch(record)
		case record := <-b.spans:
			b.dispatch(record)
		default:
			if b.storage != nil {
				b.drainToStorage()
			}
			return
		}
	}
}

func (b *Bridge) dispatch(record telemetry.Record) {
	b.consumerMu.RLock()
	handles := make([]*ConsumerHandle, len(b.consumers))
	copy(handles, b.consumers)
	b.consumerMu.RUnlock()

	for _, handle := range handles {
		b.invokeConsumer(handle, record)
	}
}

func (b *Bridge) invokeConsumer(handle *ConsumerHandle, record telemetry.Record) {
	defer func() {
		if recovered := recover(); recovered != nil {
			b.consumerPanics.Add(1)
			b.logger.Error("stream consumer panicked", "panic", recovered)
		}
	}()
	handle.fn(record)
}

func (b *Bridge) drainToStorage() {
	batch := b.collector.Flush()
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()
	if err := b.storage.Deliver(ctx, batch); err != nil {
		b.logger.Warn("storage drain failed",
			"storage", b.storage.Name(),
			"records", len(batch),
			"error", err)
	}
}
