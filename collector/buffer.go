// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"fmt"
	"sync"

	"github.com/ocaravaca73/RIMP/telemetry"
)

// Buffer is a bounded, admission-ordered staging area for records
// between producers and the flush cycle. When full, the configured
// overflow policy decides: DropNewest rejects the incoming record,
// DropOldest evicts the head to make room. Either way the producer
// returns immediately — the pipeline loses data rather than
// exhausting memory or blocking the host application.
//
// The notify channel (capacity 1) signals the scheduler when an
// admission brings the size to the flush threshold. The scheduler
// selects on Notify() alongside its interval ticker.
//
// Thread-safe: all methods may be called concurrently.
type Buffer struct {
	mu             sync.Mutex
	records        []telemetry.Record
	capacity       int
	policy         telemetry.OverflowPolicy
	flushThreshold int
	dropped        uint64
	notify         chan struct{}
}

// NewBuffer creates a Buffer holding at most capacity records.
// Capacity must be positive — config validation guarantees this for
// buffers reached through a Collector, so a non-positive capacity
// here is a programming error and panics. A flushThreshold of 0
// disables threshold signalling.
func NewBuffer(capacity int, policy telemetry.OverflowPolicy, flushThreshold int) *Buffer {
	if capacity <= 0 {
		panic(fmt.Sprintf("buffer: capacity must be positive, got %d", capacity))
	}
	return &Buffer{
		capacity:       capacity,
		policy:         policy,
		flushThreshold: flushThreshold,
		notify:         make(chan struct{}, 1),
	}
}

// Admit appends a record, never blocking. At capacity, DropNewest
// rejects the incoming record and returns false; DropOldest evicts
// the oldest buffered record and admits the new one. Every dropped
// record, incoming or evicted, increments the Dropped counter.
func (b *Buffer) Admit(record telemetry.Record) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.records) >= b.capacity {
		if b.policy == telemetry.DropNewest {
			b.dropped++
			return false
		}
		// DropOldest: evict the head to make room.
		b.records[0] = nil // release for GC
		b.records = b.records[1:]
		b.dropped++
	}

	b.records = append(b.records, record)

	// Non-blocking signal to the scheduler when the configured
	// threshold is reached.
	if b.flushThreshold > 0 && len(b.records) >= b.flushThreshold {
		select {
		case b.notify <- struct{}{}:
		default:
		}
	}

	return true
}

// Drain atomically swaps out the buffered records and returns them
// in admission order. Concurrent Admit calls land in the fresh
// backing slice and never block on in-progress delivery. Returns nil
// when the buffer is empty.
func (b *Buffer) Drain() telemetry.Batch {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) == 0 {
		return nil
	}
	drained := telemetry.Batch(b.records)
	b.records = nil
	return drained
}

// Size returns the number of buffered records. Never exceeds the
// buffer's capacity.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// Dropped returns the total number of records dropped since
// creation, under either overflow policy.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Notify returns a channel that receives a signal (coalesced,
// capacity 1) when an admission brings the buffer to the flush
// threshold. A threshold of 0 means the channel never signals.
func (b *Buffer) Notify() <-chan struct{} {
	return b.notify
}
