// Copyright 2026 The RIMP Authors
// SPDX-License-Identifier: Apache-2.0

package sink

import (
	"context"
	"sort"
	"time"

	"github.com/ocaravaca73/RIMP/telemetry"
)

// Sink receives flushed batches. Deliver must be safe for concurrent
// use and should honor ctx for anything that can block; the caller
// bounds each delivery cycle with a deadline.
type Sink interface {
	// Name identifies the sink in logs.
	Name() string

	// Deliver persists or forwards one batch. Returning an error
	// causes the caller to log and move on; the batch is not
	// redelivered.
	Deliver(ctx context.Context, batch telemetry.Batch) error
}

// Storage is a Sink that can answer time-range queries over the
// records it retained.
type Storage interface {
	Sink

	// Retrieve returns retained records matching the query, ordered
	// by record time ascending.
	Retrieve(ctx context.Context, query Query) (telemetry.Batch, error)
}

// Query selects records by time range. Both bounds are inclusive; a
// zero bound leaves that side unbounded.
type Query struct {
	Start time.Time
	End   time.Time

	// Limit caps the total number of records returned across all
	// kinds. 0 means no cap.
	Limit int
}

// Matches reports whether a record stamped at t falls within the
// query's bounds.
func (q Query) Matches(t time.Time) bool {
	if !q.Start.IsZero() && t.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && t.After(q.End) {
		return false
	}
	return true
}

// sortBatch orders records by time ascending. The sort is stable so
// records sharing an instant keep their relative order.
func sortBatch(batch telemetry.Batch) {
	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].RecordHeader().Time.Before(batch[j].RecordHeader().Time)
	})
}

// limitBatch truncates a sorted batch to the query limit. 0 means
// unlimited.
func limitBatch(batch telemetry.Batch, limit int) telemetry.Batch {
	if limit > 0 && len(batch) > limit {
		return batch[:limit]
	}
	return batch
}
