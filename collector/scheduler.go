// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ocaravaca73/RIMP/lib/clock"
	"github.com/ocaravaca73/RIMP/sink"
	"github.com/ocaravaca73/RIMP/telemetry"
)

// SchedulerState is the lifecycle position of a Scheduler.
type SchedulerState uint8

const (
	// SchedulerIdle is the state before Start.
	SchedulerIdle SchedulerState = iota
	// SchedulerRunning means the flush loop is active.
	SchedulerRunning
	// SchedulerStopping means Stop was called and the loop is
	// performing its final flush.
	SchedulerStopping
	// SchedulerStopped means the flush loop has exited.
	SchedulerStopped
)

func (s SchedulerState) String() string {
	switch s {
	case SchedulerIdle:
		return "idle"
	case SchedulerRunning:
		return "running"
	case SchedulerStopping:
		return "stopping"
	case SchedulerStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// ErrShutdownTimeout reports that Stop gave up waiting for the flush
// loop. The loop may still be wedged inside a sink delivery; buffered
// records that the final flush would have delivered may be lost.
var ErrShutdownTimeout = errors.New("shutdown incomplete: flush loop did not stop in time")

const (
	defaultStopTimeout = 5 * time.Second

	// deliverTimeout bounds one delivery cycle across all sinks. A
	// sink that honors its context cannot wedge the flush loop past
	// this.
	deliverTimeout = 5 * time.Second
)

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	// Collector supplies the batches. Required.
	Collector *Collector
	// Clock drives the flush interval and the stop timeout. Required.
	Clock clock.Clock
	// Logger receives delivery failures. Required.
	Logger *slog.Logger
	// Interval between automatic flushes. Required, positive.
	Interval time.Duration
	// StopTimeout bounds how long Stop waits for the final flush.
	// Zero means 5 seconds.
	StopTimeout time.Duration
}

// Scheduler owns the pipeline's only background goroutine: a loop
// that drains the collector on a fixed interval — or sooner, when
// the buffer signals its flush threshold — and delivers each batch
// to the registered sinks in registration order. One sink's failure
// or panic never affects delivery to the others.
type Scheduler struct {
	collector   *Collector
	clock       clock.Clock
	logger      *slog.Logger
	interval    time.Duration
	stopTimeout time.Duration

	mu     sync.Mutex
	state  SchedulerState
	sinks  []sink.Sink
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler validates the options and constructs a Scheduler in
// the idle state. Nothing runs until Start.
func NewScheduler(options SchedulerOptions) (*Scheduler, error) {
	if options.Collector == nil {
		return nil, fmt.Errorf("scheduler: Collector is required")
	}
	if options.Clock == nil {
		return nil, fmt.Errorf("scheduler: Clock is required")
	}
	if options.Logger == nil {
		return nil, fmt.Errorf("scheduler: Logger is required")
	}
	if options.Interval <= 0 {
		return nil, fmt.Errorf("scheduler: Interval must be positive, got %v", options.Interval)
	}
	stopTimeout := options.StopTimeout
	if stopTimeout == 0 {
		stopTimeout = defaultStopTimeout
	}
	return &Scheduler{
		collector:   options.Collector,
		clock:       options.Clock,
		logger:      options.Logger,
		interval:    options.Interval,
		stopTimeout: stopTimeout,
		done:        make(chan struct{}),
	}, nil
}

// RegisterSink adds a delivery target. Sinks receive batches in
// registration order. Registering while the scheduler runs is safe;
// the sink joins from the next flush cycle.
func (s *Scheduler) RegisterSink(target sink.Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, target)
}

// Start launches the flush loop. Only the first call on an idle
// scheduler has any effect; Start on a running, stopping, or stopped
// scheduler is a no-op. A stopped scheduler stays stopped.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SchedulerIdle {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.state = SchedulerRunning
	go s.run(ctx, s.done)
}

// Stop signals the flush loop, which performs one final flush so
// buffered records are not abandoned, then waits up to the stop
// timeout for the loop to exit. Returns ErrShutdownTimeout if the
// loop does not finish in time. Stop on a scheduler that is not
// running is a no-op and never triggers a second final flush.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.state != SchedulerRunning {
		s.mu.Unlock()
		return nil
	}
	s.state = SchedulerStopping
	cancel := s.cancel
	s.mu.Unlock()

	cancel()

	select {
	case <-s.done:
		return nil
	case <-s.clock.After(s.stopTimeout):
		// The loop is wedged, likely inside a sink delivery. It
		// will set the state to stopped if it ever exits.
		return ErrShutdownTimeout
	}
}

// State returns the scheduler's lifecycle position.
func (s *Scheduler) State() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done returns a channel closed when the flush loop has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

func (s *Scheduler) setState(state SchedulerState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	// Deferred in this order so the state is stopped before done
	// closes and Stop's wait returns.
	defer close(done)
	defer s.setState(SchedulerStopped)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	notify := s.collector.Buffer().Notify()

	for {
		select {
		case <-ticker.C:
			s.flushCycle()
		case <-notify:
			s.flushCycle()
		case <-ctx.Done():
			s.flushCycle()
			return
		}
	}
}

// flushCycle drains the collector once and delivers the batch to
// every sink. An empty buffer is a no-op cycle.
func (s *Scheduler) flushCycle() {
	batch := s.collector.Flush()
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	for _, target := range s.snapshotSinks() {
		s.deliver(ctx, target, batch)
	}
}

// deliver sends one batch to one sink, containing any error or panic
// so the remaining sinks still receive the batch.
func (s *Scheduler) deliver(ctx context.Context, target sink.Sink, batch telemetry.Batch) {
	defer func() {
		if recovered := recover(); recovered != nil {
			s.logger.Error("sink delivery panicked",
				"sink", target.Name(),
				"panic", recovered)
		}
	}()
	if err := target.Deliver(ctx, batch); err != nil {
		s.logger.Warn("sink delivery failed",
			"sink", target.Name(),
			"records", len(batch),
			"error", err)
	}
}

func (s *Scheduler) snapshotSinks() []sink.Sink {
	s.mu.Lock()
	defer s.mu.Unlock()
	sinks := make([]sink.Sink, len(s.sinks))
	copy(sinks, s.sinks)
	return sinks
}
